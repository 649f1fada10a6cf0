package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"mass-messaging/internal/compose"
	"mass-messaging/internal/contacts"
	"mass-messaging/internal/models"
	"mass-messaging/internal/store"
	"mass-messaging/internal/templating"
	domain "mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TemplateHandler struct {
	Store    *store.TemplateStore
	Renderer *templating.Renderer
}

func NewTemplateHandler(s *store.TemplateStore, renderer *templating.Renderer) *TemplateHandler {
	return &TemplateHandler{Store: s, Renderer: renderer}
}

type TemplateRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Subject  string `json:"subject" binding:"max=500"`
	Content  string `json:"content" binding:"required"`
	Channel  string `json:"channel" binding:"required,oneof=email sms chat"`
	Grammar  string `json:"grammar" binding:"omitempty,oneof=double single"`
	Envelope *bool  `json:"envelope"`
}

func (r TemplateRequest) model() models.Template {
	t := models.Template{
		Name:     r.Name,
		Subject:  r.Subject,
		Content:  r.Content,
		Channel:  r.Channel,
		Grammar:  templating.ParseGrammar(r.Grammar).String(),
		Envelope: r.Envelope,
	}
	// Record at save time whether email content is already a full document
	if t.Channel == string(domain.ChannelEmail) && t.Envelope == nil {
		full := domain.LooksLikeHTMLDocument(t.Content)
		t.Envelope = &full
	}
	return t
}

// TemplateView is a stored template with the content an editor should show
type TemplateView struct {
	models.Template
	EditableContent string `json:"editable_content"`
}

func (h *TemplateHandler) view(t models.Template) TemplateView {
	v := TemplateView{Template: t, EditableContent: t.Content}
	if t.Channel == string(domain.ChannelEmail) {
		if body, ok := templating.EnvelopeBody(t.Content); ok {
			v.EditableContent = body
		}
	}
	return v
}

func (h *TemplateHandler) GetTemplates(c *gin.Context) {
	list, err := h.Store.List(c.Request.Context(), c.Query("channel"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "Template")
		return
	}
	c.JSON(http.StatusOK, h.view(*t))
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req TemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t := req.model()
	if err := h.Store.Create(c.Request.Context(), &t); err != nil {
		storeError(c, err, "Template")
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req TemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.Store.Update(c.Request.Context(), id, req.model())
	if err != nil {
		storeError(c, err, "Template")
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		storeError(c, err, "Template")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Template deleted"})
}

// GetVariables lists the variables of a template split into automatic and
// custom ones
func (h *TemplateHandler) GetVariables(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "Template")
		return
	}
	g := templating.ParseGrammar(t.Grammar)
	c.JSON(http.StatusOK, gin.H{
		"grammar":    g.String(),
		"resolution": templating.Resolve(templating.TemplateVariables(t.Domain(), g)),
	})
}

type PreviewRequest struct {
	Recipients []domain.ContactRecord `json:"recipients"`
	Custom     map[string]string      `json:"custom"`
}

type PreviewItem struct {
	Key     string `json:"key,omitempty"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Preview renders a template for each given recipient, or once with an empty
// contact when none is given
func (h *TemplateHandler) Preview(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req PreviewRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "Template")
		return
	}

	s := compose.NewSession(h.Renderer)
	res := s.SetTemplate(t.Domain(), templating.ParseGrammar(t.Grammar))
	ignored := []string{}
	for k, v := range req.Custom {
		if err := s.SetCustom(k, v); errors.Is(err, compose.ErrUnknownVariable) {
			ignored = append(ignored, k)
		}
	}
	for i := range req.Recipients {
		if strings.TrimSpace(req.Recipients[i].Key) == "" {
			req.Recipients[i].Key = uuid.NewString()
		}
	}
	sort.Strings(ignored)
	merged := s.AddContacts(req.Recipients)

	items := []PreviewItem{}
	selection := s.Selection()
	if len(selection) == 0 {
		out, _ := s.Preview("")
		items = append(items, PreviewItem{Subject: out.Subject, Body: out.Body})
	} else {
		rendered, _ := s.PreviewAll()
		for i, out := range rendered {
			items = append(items, PreviewItem{Key: selection[i].Key, Name: selection[i].Name, Subject: out.Subject, Body: out.Body})
		}
	}

	rejected := merged.Rejected
	if rejected == nil {
		rejected = []contacts.Rejection{}
	}
	c.JSON(http.StatusOK, gin.H{
		"resolution": res,
		"custom":     s.CustomValues(),
		"ignored":    ignored,
		"previews":   items,
		"rejected":   rejected,
	})
}
