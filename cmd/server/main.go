package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mass-messaging/internal/api"
	"mass-messaging/internal/config"
	"mass-messaging/internal/contacts"
	"mass-messaging/internal/database"
	"mass-messaging/internal/directory"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/logger"
	"mass-messaging/internal/metrics"
	"mass-messaging/internal/queue"
	"mass-messaging/internal/sms"
	"mass-messaging/internal/store"
	"mass-messaging/internal/templating"
	"mass-messaging/internal/webhook"
	"mass-messaging/internal/whatsapp"
	"mass-messaging/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.AppEnv)

	database.InitGorm(cfg, log)
	database.SyncConfig(database.GormDB, cfg, log)
	contacts.SetDefaultCountryCode(cfg.DefaultCountryCode)
	if cfg.DefaultLanguageCode != "" {
		dispatch.DefaultLanguageCode = cfg.DefaultLanguageCode
	}

	if cfg.AppEnv != "development" && cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), metrics.HTTPMiddleware())

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	hub := ws.NewHub(log)
	go hub.Run()

	renderer := templating.NewRenderer(brand(cfg))
	whatsappClient := whatsapp.NewClient(cfg, log)
	smsClient := sms.NewClient(cfg, log)
	webhookClient := webhook.NewClient(cfg, log)
	directoryClient := directory.NewClient(cfg, log)

	groups := store.NewGroupStore(database.GormDB)
	templates := store.NewTemplateStore(database.GormDB)
	history := store.NewHistoryStore(database.GormDB)

	opts := dispatch.Options{
		Chat:     whatsappClient,
		Bulk:     webhookClient,
		SMS:      smsClient,
		Recorder: history,
		Notifier: hub,
		Renderer: renderer,
		Logger:   log,
	}
	if cfg.QueueDriver != "" && cfg.QueueDriver != queue.DriverNone {
		publisher, err := queue.NewPublisher(cfg.QueueDriver, cfg.NATSURL, cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("failed to connect queue")
		}
		defer publisher.Close()
		opts.Queue = publisher
		log.Info().Str("driver", cfg.QueueDriver).Msg("email batches are queued")
	}
	service := dispatch.NewService(opts)

	webhookHandler := webhook.NewHandler(cfg, history, hub, log)
	handlers := api.Handlers{
		Contacts:  api.NewContactHandler(directoryClient),
		Groups:    api.NewGroupHandler(groups),
		Templates: api.NewTemplateHandler(templates, renderer),
		Broadcast: api.NewBroadcastHandler(whatsappClient, templates, groups, service, cfg, log),
		Messages:  api.NewMessageHandler(service, groups, smsClient),
		Dashboard: api.NewDashboardHandler(history),
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": hub.Clients()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	// Webhook Routes
	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleStatus)

	handlers.Register(r.Group("/api"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to run server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	hub.Stop()
}

// brand fills unset branding values from the default envelope
func brand(cfg *config.Config) templating.Brand {
	b := templating.DefaultBrand
	if cfg.BrandName != "" {
		b.Name = cfg.BrandName
		b.DefaultTitle = "Mensaje de " + cfg.BrandName
	}
	if cfg.BrandLogoURL != "" {
		b.LogoURL = cfg.BrandLogoURL
	}
	if cfg.BrandColor != "" {
		b.Color = cfg.BrandColor
	}
	if cfg.BrandNotice != "" {
		b.Notice = cfg.BrandNotice
	}
	if cfg.BrandCopyright != "" {
		b.Copyright = cfg.BrandCopyright
	}
	return b
}
