package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mass-messaging/internal/config"
	"mass-messaging/pkg/models"

	"github.com/rs/zerolog"
)

const defaultSubject = "Mensaje sin asunto"

var ErrNotConfigured = errors.New("webhook url not configured for channel")

// Client posts bulk email and free-form chat batches to the n8n webhooks
type Client struct {
	Config *config.Config
	http   *http.Client
	log    zerolog.Logger
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		Config: cfg,
		http:   &http.Client{Timeout: cfg.WebhookTimeout},
		log:    log.With().Str("component", "webhook").Logger(),
	}
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type batchPayload struct {
	BatchID         string                 `json:"batch_id,omitempty"`
	Channel         string                 `json:"channel"`
	Recipients      []models.BulkRecipient `json:"recipients"`
	Subject         string                 `json:"subject,omitempty"`
	Message         string                 `json:"message"`
	Attachments     []string               `json:"attachments"`
	TotalRecipients int                    `json:"total_recipients"`
}

// batchReply is what the workflow answers. Every field is optional; an empty
// body means every recipient was accepted.
type batchReply struct {
	Success *bool                    `json:"success"`
	Sent    *int                     `json:"sent"`
	Failed  *int                     `json:"failed"`
	Total   *int                     `json:"total"`
	Results []models.RecipientResult `json:"results"`
	BatchID string                   `json:"batch_id"`
	Error   string                   `json:"error"`
}

// URL returns the webhook configured for ch
func (c *Client) URL(ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return c.Config.WebhookEmail
	case models.ChannelChat:
		return c.Config.WebhookWhatsApp
	}
	return ""
}

func wireChannel(ch models.Channel) string {
	if ch == models.ChannelChat {
		return "whatsapp"
	}
	return string(ch)
}

// SendBulk posts req in one call. A reply carrying only a batch id is an
// acknowledgement that the workflow delivers in the background.
func (c *Client) SendBulk(ctx context.Context, req models.BulkSendRequest) (models.BulkSendResponse, error) {
	url := c.URL(req.Channel)
	if url == "" {
		return models.BulkSendResponse{}, fmt.Errorf("%w: %s", ErrNotConfigured, req.Channel)
	}

	p := batchPayload{
		BatchID:         req.BatchID,
		Channel:         wireChannel(req.Channel),
		Recipients:      req.Recipients,
		Message:         req.Content,
		Attachments:     req.Attachments,
		TotalRecipients: len(req.Recipients),
	}
	if p.Attachments == nil {
		p.Attachments = []string{}
	}
	if req.Channel == models.ChannelEmail {
		p.Subject = strings.TrimSpace(req.Subject)
		if p.Subject == "" {
			p.Subject = defaultSubject
		}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return models.BulkSendResponse{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.BulkSendResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return models.BulkSendResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.BulkSendResponse{}, err
	}
	if resp.StatusCode >= 300 {
		return models.BulkSendResponse{}, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	total := len(req.Recipients)
	if len(bytes.TrimSpace(raw)) == 0 {
		return models.BulkSendResponse{Total: total, Sent: total}, nil
	}
	var reply batchReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return models.BulkSendResponse{}, fmt.Errorf("decode webhook reply: %w", err)
	}

	c.log.Info().
		Str("channel", string(req.Channel)).
		Str("batch_id", req.BatchID).
		Int("recipients", total).
		Msg("bulk batch posted")
	return toResponse(reply, total)
}

func toResponse(reply batchReply, total int) (models.BulkSendResponse, error) {
	if reply.Success != nil && !*reply.Success && reply.Sent == nil && len(reply.Results) == 0 {
		msg := reply.Error
		if msg == "" {
			msg = "workflow reported failure"
		}
		return models.BulkSendResponse{}, errors.New(msg)
	}
	if reply.BatchID != "" && reply.Sent == nil && len(reply.Results) == 0 {
		out := models.BulkSendResponse{BatchID: reply.BatchID, Total: total}
		if reply.Total != nil {
			out.Total = *reply.Total
		}
		return out, nil
	}

	out := models.BulkSendResponse{Total: total, Sent: total, Messages: reply.Results}
	if reply.Sent != nil {
		out.Sent = *reply.Sent
	}
	if reply.Failed != nil {
		out.Failed = *reply.Failed
	}
	return out, nil
}
