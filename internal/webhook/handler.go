package webhook

import (
	"context"
	"net/http"
	"strings"

	"mass-messaging/internal/config"
	"mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// StatusUpdater moves message log rows to a new delivery status
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, providerMessageID, status, errorMessage string) (int64, error)
}

// Notifier pushes events to connected operators
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

const EventMessageStatus = "message_status"

type Handler struct {
	Config   *config.Config
	Statuses StatusUpdater
	Hub      Notifier
	log      zerolog.Logger
}

func NewHandler(cfg *config.Config, statuses StatusUpdater, hub Notifier, log zerolog.Logger) *Handler {
	return &Handler{
		Config:   cfg,
		Statuses: statuses,
		Hub:      hub,
		log:      log.With().Str("component", "webhook").Logger(),
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "" && token != "" {
		if mode == "subscribe" && token == h.Config.VerifyToken {
			h.log.Info().Msg("webhook verified")
			c.String(http.StatusOK, challenge)
		} else {
			c.Status(http.StatusForbidden)
		}
	} else {
		c.Status(http.StatusBadRequest)
	}
}

// HandleStatus applies delivery status callbacks to the message history.
// Meta retries non-2xx answers, so storage errors are logged and still
// acknowledged.
func (h *Handler) HandleStatus(c *gin.Context) {
	var payload models.StatusWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn().Err(err).Msg("invalid webhook payload")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, st := range payload.Statuses() {
		errMsg := ""
		if len(st.Errors) > 0 {
			errMsg = st.Errors[0].Title
			if st.Errors[0].Message != "" {
				errMsg = st.Errors[0].Message
			}
		}
		status := strings.ToLower(st.Status)

		if h.Statuses != nil {
			n, err := h.Statuses.UpdateStatus(c.Request.Context(), st.ID, status, errMsg)
			if err != nil {
				h.log.Error().Err(err).Str("message_id", st.ID).Msg("failed to update message status")
				continue
			}
			if n == 0 {
				h.log.Debug().Str("message_id", st.ID).Msg("status for unknown message")
				continue
			}
		}
		if h.Hub != nil {
			h.Hub.BroadcastEvent(EventMessageStatus, gin.H{
				"message_id": st.ID,
				"status":     status,
				"recipient":  st.RecipientID,
				"error":      errMsg,
			})
		}
	}

	c.Status(http.StatusOK)
}
