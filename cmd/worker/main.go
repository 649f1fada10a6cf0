package main

import (
	"context"
	"os/signal"
	"syscall"

	"mass-messaging/internal/config"
	"mass-messaging/internal/database"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/logger"
	"mass-messaging/internal/queue"
	"mass-messaging/internal/store"
	"mass-messaging/internal/webhook"
	"mass-messaging/pkg/models"
)

// The worker delivers email batches queued by the server
func main() {
	cfg := config.LoadConfig()
	log := logger.New(cfg.AppEnv).With().Str("service", "worker").Logger()

	if cfg.QueueDriver == "" || cfg.QueueDriver == queue.DriverNone {
		log.Fatal().Msg("QUEUE_DRIVER must be nats or amqp to run the worker")
	}

	database.InitGorm(cfg, log)
	database.SyncConfig(database.GormDB, cfg, log)

	service := dispatch.NewService(dispatch.Options{
		Bulk:     webhook.NewClient(cfg, log),
		Recorder: store.NewHistoryStore(database.GormDB),
		Logger:   log,
	})

	consumer, err := queue.NewConsumer(cfg.QueueDriver, cfg.NATSURL, cfg.AMQPURL, cfg.AMQPExchange, cfg.WorkerCount, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.QueueDriver).Msg("failed to connect queue")
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = consumer.Run(ctx, func(ctx context.Context, job models.BulkJob) error {
		outcome, err := service.ProcessJob(ctx, job)
		if err != nil {
			return err
		}
		log.Info().
			Str("batch_id", job.BatchID).
			Int("sent", outcome.Sent).
			Int("failed", outcome.Failed).
			Msg("batch delivered")
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("worker stopped")
	}
	log.Info().Msg("worker shut down")
}
