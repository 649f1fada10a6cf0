package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mass-messaging/internal/config"
	"mass-messaging/internal/contacts"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/metrics"
	"mass-messaging/internal/store"
	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ChatCatalogue reads approved chat templates from the provider
type ChatCatalogue interface {
	GetTemplates(ctx context.Context, status string, limit int) ([]models.ChatTemplate, error)
	GetTemplate(ctx context.Context, name string) (models.ChatTemplate, bool, error)
}

type BroadcastHandler struct {
	Catalogue ChatCatalogue
	Templates *store.TemplateStore
	Groups    contacts.GroupFetcher
	Service   *dispatch.Service
	Config    *config.Config
	log       zerolog.Logger
}

func NewBroadcastHandler(catalogue ChatCatalogue, templates *store.TemplateStore, groups contacts.GroupFetcher, svc *dispatch.Service, cfg *config.Config, log zerolog.Logger) *BroadcastHandler {
	return &BroadcastHandler{
		Catalogue: catalogue,
		Templates: templates,
		Groups:    groups,
		Service:   svc,
		Config:    cfg,
		log:       log.With().Str("component", "broadcast").Logger(),
	}
}

// SyncTemplates fetches templates from Meta and stores them locally
func (h *BroadcastHandler) SyncTemplates(c *gin.Context) {
	if h.Config.WhatsAppBusinessAccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WABA_ID not configured"})
		return
	}

	list, err := h.Catalogue.GetTemplates(c.Request.Context(), "", 0)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch templates from Meta: " + err.Error()})
		return
	}
	synced, err := h.Templates.SaveChatTemplates(c.Request.Context(), list)
	if err != nil {
		h.log.Error().Err(err).Int("synced", synced).Msg("template sync interrupted")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "count": synced})
		return
	}

	h.log.Info().Int("count", synced).Msg("chat templates synced")
	c.JSON(http.StatusOK, gin.H{"status": "Templates synced", "count": synced})
}

// GetChatTemplates returns templates from Meta, approved ones unless another
// status is asked for. With ?source=local the synced copy is returned.
func (h *BroadcastHandler) GetChatTemplates(c *gin.Context) {
	status := c.DefaultQuery("status", "APPROVED")
	if c.Query("source") == "local" {
		list, err := h.Templates.ChatTemplates(c.Request.Context(), status)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, list)
		return
	}

	if h.Config.WhatsAppBusinessAccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "WABA_ID not configured"})
		return
	}
	list, err := h.Catalogue.GetTemplates(c.Request.Context(), status, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

// findTemplate prefers the synced copy and falls back to Meta
func (h *BroadcastHandler) findTemplate(ctx context.Context, name string) (models.ChatTemplate, bool, error) {
	tpl, err := h.Templates.ChatTemplate(ctx, name)
	if err == nil {
		return tpl, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.ChatTemplate{}, false, err
	}
	if h.Catalogue == nil {
		return models.ChatTemplate{}, false, nil
	}
	return h.Catalogue.GetTemplate(ctx, name)
}

type ChatTemplateSendRequest struct {
	TemplateName   string                 `json:"template_name" binding:"required"`
	LanguageCode   string                 `json:"language_code"`
	HeaderMediaURL string                 `json:"header_media_url" binding:"omitempty,url"`
	Recipients     []models.ContactRecord `json:"recipients" binding:"required_without=GroupIDs"`
	GroupIDs       []uint                 `json:"group_ids"`
	Custom         map[string]string      `json:"custom"`
	Confirm        bool                   `json:"confirm"`
}

// SendBroadcast sends an approved chat template to the selection. A template
// whose header needs media is only sent without it when confirm is set.
func (h *BroadcastHandler) SendBroadcast(c *gin.Context) {
	var req ChatTemplateSendRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	tpl, found, err := h.findTemplate(ctx, req.TemplateName)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load template: " + err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		return
	}
	if tpl.Status != "" && !strings.EqualFold(tpl.Status, "APPROVED") {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Template is not approved", "status": tpl.Status})
		return
	}

	merged, ok := selectRecipients(c, h.Groups, req.Recipients, req.GroupIDs)
	if !ok {
		return
	}

	outcome, err := h.Service.SendChatTemplate(ctx, dispatch.ChatTemplateInput{
		Template:       tpl,
		LanguageCode:   req.LanguageCode,
		HeaderMediaURL: req.HeaderMediaURL,
		Custom:         templating.CustomValues(req.Custom),
	}, merged.Added, req.Confirm)
	if err != nil {
		dispatchError(c, err, outcome, merged.Rejected)
		return
	}
	c.JSON(http.StatusOK, SendResponse{SendOutcome: outcome, Rejected: merged.Rejected})
}

var errNoGroupStore = errors.New("group store not configured")

// SendResponse is a dispatch outcome with the selection entries that were
// dropped before sending
type SendResponse struct {
	models.SendOutcome
	Rejected []contacts.Rejection `json:"rejected"`
}

// selection deduplicates and validates recipients, then merges in the
// members of groupIDs
func selection(ctx context.Context, groups contacts.GroupFetcher, recipients []models.ContactRecord, groupIDs []uint) (contacts.MergeResult, error) {
	if len(groupIDs) > 0 && groups == nil {
		return contacts.MergeResult{}, errNoGroupStore
	}
	merged := contacts.Merge(nil, recipients)
	if len(groupIDs) == 0 {
		return merged, nil
	}
	resolved, err := contacts.ResolveGroups(ctx, groups, groupIDs)
	if err != nil {
		return contacts.MergeResult{}, err
	}
	members := contacts.Merge(merged.Added, contacts.FromGroups(resolved))
	merged.Added = append(merged.Added, members.Added...)
	merged.Rejected = append(merged.Rejected, members.Rejected...)
	return merged, nil
}

// selectRecipients answers the request itself when the selection cannot be built
func selectRecipients(c *gin.Context, groups contacts.GroupFetcher, recipients []models.ContactRecord, groupIDs []uint) (contacts.MergeResult, bool) {
	merged, err := selection(c.Request.Context(), groups, recipients, groupIDs)
	switch {
	case errors.Is(err, errNoGroupStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Contact groups not available"})
		return merged, false
	case err != nil:
		storeError(c, err, "Group")
		return merged, false
	}
	for _, r := range merged.Rejected {
		metrics.IncContactsRejected(string(r.Reason))
	}
	return merged, true
}
