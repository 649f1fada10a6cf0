package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mass-messaging/internal/config"
	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"

	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("whatsapp api credentials not configured")

type Client struct {
	Config *config.Config
	http   *http.Client
	log    zerolog.Logger
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		Config: cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		log:    log.With().Str("component", "whatsapp").Logger(),
	}
}

// HTTPClient exposes the underlying client so tests can stub its transport
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// --- Message Structures ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	Text             *TextObj     `json:"text,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"` // For documents
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type          string    `json:"type"`
	ParameterName string    `json:"parameter_name,omitempty"`
	Text          string    `json:"text,omitempty"`
	Image         *MediaObj `json:"image,omitempty"`
	Video         *MediaObj `json:"video,omitempty"`
	Document      *MediaObj `json:"document,omitempty"`
}

// APIError is an error answer of the Graph API
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("API error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// --- Helper Functions ---

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var payload struct {
			Error struct {
				Message string `json:"message"`
				Code    int    `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(respBody, &payload) == nil && payload.Error.Message != "" {
			apiErr.Message = payload.Error.Message
			apiErr.Code = payload.Error.Code
		}
		return respBody, apiErr
	}

	return respBody, nil
}

// FormatPhone converts a phone to the form the API expects: digits only, no
// leading +, and Colombian 10-digit mobiles prefixed with 57.
func FormatPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) == 10 && strings.HasPrefix(cleaned, "3") {
		cleaned = "57" + cleaned
	}
	return cleaned
}

// --- Messaging Methods ---

// SendRawMessage posts msg and returns the id the API assigned to it
func (c *Client) SendRawMessage(ctx context.Context, msg GenericMessage) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", c.Config.WhatsAppGraphURL(), c.Config.PhoneNumberID)
	resp, err := c.sendRequest(ctx, http.MethodPost, url, msg)
	if err != nil {
		return "", err
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", nil
	}
	return out.Messages[0].ID, nil
}

// TemplateMessage builds the message for one recipient of req. Body
// parameters are named after the template variables and only carry non-empty
// values.
func TemplateMessage(req models.ChatTemplateRequest, rec models.ChatTemplateRecipient) GenericMessage {
	tpl := &TemplateObj{
		Name:     req.TemplateName,
		Language: LanguageObj{Code: req.LanguageCode},
	}
	if header := headerComponent(req.HeaderFormat, req.HeaderMediaURL); header != nil {
		tpl.Components = append(tpl.Components, *header)
	}
	if params := BodyParameters(req, rec); len(params) > 0 {
		tpl.Components = append(tpl.Components, ComponentObj{Type: "body", Parameters: params})
	}
	return GenericMessage{
		MessagingProduct: "whatsapp",
		To:               FormatPhone(rec.Phone),
		Type:             "template",
		Template:         tpl,
	}
}

// BodyParameters resolves every body variable for rec, in template order
func BodyParameters(req models.ChatTemplateRequest, rec models.ChatTemplateRecipient) []ParameterObj {
	contact := models.ContactRecord{
		Name:       rec.Name,
		Phone:      rec.Phone,
		Email:      rec.Email,
		Department: rec.Department,
		Position:   rec.Position,
	}
	custom := templating.CustomValues(rec.Custom)

	params := []ParameterObj{}
	for _, v := range req.BodyVariables {
		var value string
		if field, ok := req.VariableMapping[strings.ToLower(v)]; ok {
			value = templating.FieldValue(contact, templating.ContactField(field))
		} else {
			value = custom.Get(v)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		params = append(params, ParameterObj{Type: "text", ParameterName: v, Text: value})
	}
	return params
}

func headerComponent(format, link string) *ComponentObj {
	if link == "" {
		return nil
	}
	media := &MediaObj{Link: link}
	param := ParameterObj{Type: strings.ToLower(format)}
	switch strings.ToUpper(format) {
	case "IMAGE":
		param.Image = media
	case "VIDEO":
		param.Video = media
	case "DOCUMENT":
		param.Document = media
	default:
		return nil
	}
	return &ComponentObj{Type: "header", Parameters: []ParameterObj{param}}
}

// SendBulkTemplate sends the template to every recipient one by one. Failures
// are reported per recipient; only missing credentials fail the whole call.
func (c *Client) SendBulkTemplate(ctx context.Context, req models.ChatTemplateRequest) (models.ChatTemplateSendResponse, error) {
	if c.Config.WhatsAppToken == "" || c.Config.PhoneNumberID == "" {
		return models.ChatTemplateSendResponse{}, ErrNotConfigured
	}

	result := models.ChatTemplateSendResponse{
		Total:    len(req.Recipients),
		Messages: []models.RecipientResult{},
	}
	for _, rec := range req.Recipients {
		entry := models.RecipientResult{Recipient: rec.Name, Phone: rec.Phone}
		switch {
		case strings.TrimSpace(rec.Phone) == "":
			entry.Error = "No phone number provided"
		case ctx.Err() != nil:
			entry.Error = ctx.Err().Error()
		default:
			id, err := c.SendRawMessage(ctx, TemplateMessage(req, rec))
			if err != nil {
				c.log.Warn().Err(err).Str("template", req.TemplateName).Str("phone", rec.Phone).Msg("template send failed")
				entry.Error = err.Error()
			} else {
				entry.Success = true
				entry.MessageID = id
			}
		}
		if entry.Success {
			result.Sent++
		} else {
			result.Failed++
		}
		result.Messages = append(result.Messages, entry)
	}

	c.log.Info().
		Str("template", req.TemplateName).
		Int("total", result.Total).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("bulk template send complete")
	return result, nil
}

// --- Template Management Methods ---

type rawTemplate struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Status     string         `json:"status"`
	Category   string         `json:"category"`
	Language   string         `json:"language"`
	Components []rawComponent `json:"components"`
}

type rawComponent struct {
	Type    string                      `json:"type"`
	Format  string                      `json:"format"`
	Text    string                      `json:"text"`
	Buttons []models.ChatTemplateButton `json:"buttons"`
}

// GetTemplates lists the account's message templates, optionally filtered by
// status (APPROVED, PENDING, REJECTED)
func (c *Client) GetTemplates(ctx context.Context, status string, limit int) ([]models.ChatTemplate, error) {
	if c.Config.WhatsAppToken == "" || c.Config.WhatsAppBusinessAccountID == "" {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{}
	q.Set("fields", "name,status,category,language,components,id")
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", strings.ToUpper(status))
	}
	endpoint := fmt.Sprintf("%s/%s/message_templates?%s", c.Config.WhatsAppGraphURL(), c.Config.WhatsAppBusinessAccountID, q.Encode())

	resp, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var page struct {
		Data []rawTemplate `json:"data"`
	}
	if err := json.Unmarshal(resp, &page); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	out := make([]models.ChatTemplate, 0, len(page.Data))
	for _, raw := range page.Data {
		out = append(out, parseTemplate(raw))
	}
	return out, nil
}

// GetTemplate finds an approved template by name
func (c *Client) GetTemplate(ctx context.Context, name string) (models.ChatTemplate, bool, error) {
	templates, err := c.GetTemplates(ctx, "", 0)
	if err != nil {
		return models.ChatTemplate{}, false, err
	}
	for _, t := range templates {
		if t.Name == name {
			return t, true, nil
		}
	}
	return models.ChatTemplate{}, false, nil
}

func parseTemplate(raw rawTemplate) models.ChatTemplate {
	tpl := models.ChatTemplate{
		ID:        raw.ID,
		Name:      raw.Name,
		Language:  raw.Language,
		Category:  raw.Category,
		Status:    raw.Status,
		Variables: []string{},
	}
	for _, comp := range raw.Components {
		switch strings.ToUpper(comp.Type) {
		case "HEADER":
			format := strings.ToUpper(comp.Format)
			if format == "" {
				format = "TEXT"
			}
			tpl.Header = &models.ChatTemplateHeader{Format: format, Text: comp.Text}
		case "BODY":
			tpl.Body = comp.Text
			tpl.Variables = templating.Extract(comp.Text, templating.Double)
		case "FOOTER":
			tpl.Footer = comp.Text
		case "BUTTONS":
			tpl.Buttons = append(tpl.Buttons, comp.Buttons...)
		}
	}
	return tpl
}
