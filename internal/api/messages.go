package api

import (
	"context"
	"errors"
	"net/http"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/sms"
	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
)

// CreditSource reports the remaining SMS balance
type CreditSource interface {
	Credits(ctx context.Context) (float64, error)
}

type MessageHandler struct {
	Service *dispatch.Service
	Groups  contacts.GroupFetcher
	Credits CreditSource
}

func NewMessageHandler(svc *dispatch.Service, groups contacts.GroupFetcher, credits CreditSource) *MessageHandler {
	return &MessageHandler{Service: svc, Groups: groups, Credits: credits}
}

type BulkMessageRequest struct {
	Channel     models.Channel         `json:"channel" binding:"required,oneof=email chat"`
	Subject     string                 `json:"subject" binding:"required_if=Channel email,max=500"`
	Content     string                 `json:"content" binding:"required"`
	Attachments []string               `json:"attachments" binding:"omitempty,dive,url"`
	Recipients  []models.ContactRecord `json:"recipients" binding:"required_without=GroupIDs"`
	GroupIDs    []uint                 `json:"group_ids"`
}

// SendBulk sends a free-form email or chat message. Queued email answers
// 202 with the batch id.
func (h *MessageHandler) SendBulk(c *gin.Context) {
	var req BulkMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	merged, ok := selectRecipients(c, h.Groups, req.Recipients, req.GroupIDs)
	if !ok {
		return
	}

	outcome, err := h.Service.SendBulk(c.Request.Context(), dispatch.BulkInput{
		Channel:     req.Channel,
		Subject:     req.Subject,
		Content:     req.Content,
		Attachments: req.Attachments,
	}, merged.Added)
	if err != nil {
		dispatchError(c, err, outcome, merged.Rejected)
		return
	}
	resp := SendResponse{SendOutcome: outcome, Rejected: merged.Rejected}
	if outcome.Async {
		c.JSON(http.StatusAccepted, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type SMSMessageRequest struct {
	Message    string                 `json:"message" binding:"required"`
	Recipients []models.ContactRecord `json:"recipients" binding:"required_without=GroupIDs"`
	GroupIDs   []uint                 `json:"group_ids"`
	Custom     map[string]string      `json:"custom"`
}

// SendSMS personalizes the message for every recipient and sends it
func (h *MessageHandler) SendSMS(c *gin.Context) {
	var req SMSMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	merged, ok := selectRecipients(c, h.Groups, req.Recipients, req.GroupIDs)
	if !ok {
		return
	}

	outcome, err := h.Service.SendSMS(c.Request.Context(), req.Message, merged.Added, templating.CustomValues(req.Custom))
	if err != nil {
		dispatchError(c, err, outcome, merged.Rejected)
		return
	}
	c.JSON(http.StatusOK, SendResponse{SendOutcome: outcome, Rejected: merged.Rejected})
}

func (h *MessageHandler) GetCredits(c *gin.Context) {
	credits, err := h.Credits.Credits(c.Request.Context())
	switch {
	case errors.Is(err, sms.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "SMS provider not configured"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}
