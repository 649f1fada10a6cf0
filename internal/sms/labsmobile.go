package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mass-messaging/internal/config"
	"mass-messaging/pkg/models"

	"github.com/rs/zerolog"
)

var ErrNotConfigured = errors.New("labsmobile is not configured: set LABSMOBILE_USERNAME, LABSMOBILE_TOKEN and LABSMOBILE_SENDER")

// Client sends SMS through the LabsMobile JSON API
type Client struct {
	Config *config.Config
	http   *http.Client
	log    zerolog.Logger
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		Config: cfg,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		log:    log.With().Str("component", "sms").Logger(),
	}
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type msisdn struct {
	MSISDN string `json:"msisdn"`
}

type sendPayload struct {
	Message   string   `json:"message"`
	TPOA      string   `json:"tpoa"`
	Recipient []msisdn `json:"recipient"`
	Test      string   `json:"test,omitempty"`
}

// apiResponse is LabsMobile's answer; code "0" means accepted. Numeric fields
// arrive either as strings or numbers.
type apiResponse struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	SubID   string          `json:"subid"`
	Credits json.RawMessage `json:"credits"`
}

func (r apiResponse) ok() bool {
	return strings.Trim(string(r.Code), `" `) == "0"
}

func (r apiResponse) errorMessage() string {
	if r.Message != "" {
		return r.Message
	}
	return "unknown error (code " + strings.Trim(string(r.Code), `"`) + ")"
}

func number(raw json.RawMessage) float64 {
	s := strings.Trim(string(raw), `" `)
	if s == "" || s == "null" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// FormatMSISDN converts a phone to international digits without +. Colombian
// 10-digit mobiles get the 57 prefix.
func FormatMSISDN(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if len(clean) == 10 && strings.HasPrefix(clean, "3") {
		return "57" + clean
	}
	return clean
}

func (c *Client) Configured() bool {
	return c.Config.SMSConfigured()
}

func (c *Client) do(ctx context.Context, method, url string, body interface{}) (apiResponse, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return apiResponse{}, err
	}
	req.SetBasicAuth(c.Config.LabsMobileUsername, c.Config.LabsMobileToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return apiResponse{}, err
	}
	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode >= 400 {
			return apiResponse{}, fmt.Errorf("labsmobile: %s - %s", resp.Status, string(raw))
		}
		return apiResponse{}, fmt.Errorf("labsmobile: decode response: %w", err)
	}
	return out, nil
}

func (c *Client) payload(message string, phones ...string) sendPayload {
	p := sendPayload{Message: message, TPOA: c.Config.LabsMobileSender}
	for _, ph := range phones {
		p.Recipient = append(p.Recipient, msisdn{MSISDN: FormatMSISDN(ph)})
	}
	if c.Config.LabsMobileTestMode {
		p.Test = "1"
	}
	return p
}

// SendSMS delivers req. When every recipient gets the same text it is sent
// in one request; personalized texts are sent one by one.
func (c *Client) SendSMS(ctx context.Context, req models.SMSSendRequest) (models.SMSSendResponse, error) {
	if !c.Configured() {
		return models.SMSSendResponse{}, ErrNotConfigured
	}
	if personalized(req) {
		return c.sendEach(ctx, req), nil
	}

	phones := make([]string, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		phones = append(phones, r.Phone)
	}
	message := req.Message
	if len(req.Recipients) > 0 && req.Recipients[0].Message != "" {
		message = req.Recipients[0].Message
	}

	resp, err := c.do(ctx, http.MethodPost, c.Config.LabsMobileURL, c.payload(message, phones...))
	if err != nil {
		return models.SMSSendResponse{}, err
	}
	out := models.SMSSendResponse{Total: len(phones)}
	if !resp.ok() {
		out.Failed = len(phones)
		out.Error = resp.errorMessage()
		c.log.Warn().Str("error", out.Error).Int("recipients", len(phones)).Msg("bulk sms rejected")
		return out, nil
	}
	out.Success = true
	out.Sent = len(phones)
	out.CreditsUsed = number(resp.Credits)
	c.log.Info().Int("recipients", len(phones)).Float64("credits", out.CreditsUsed).Str("subid", resp.SubID).Msg("bulk sms accepted")
	return out, nil
}

func personalized(req models.SMSSendRequest) bool {
	for _, r := range req.Recipients {
		if r.Message != "" && r.Message != req.Message {
			return true
		}
	}
	return false
}

func (c *Client) sendEach(ctx context.Context, req models.SMSSendRequest) models.SMSSendResponse {
	out := models.SMSSendResponse{
		Total:    len(req.Recipients),
		Messages: []models.RecipientResult{},
	}
	for _, r := range req.Recipients {
		entry := models.RecipientResult{Recipient: r.Name, Phone: r.Phone}
		text := r.Message
		if text == "" {
			text = req.Message
		}

		switch {
		case strings.TrimSpace(r.Phone) == "":
			entry.Error = "No phone number provided"
		case ctx.Err() != nil:
			entry.Error = ctx.Err().Error()
		default:
			resp, err := c.do(ctx, http.MethodPost, c.Config.LabsMobileURL, c.payload(text, r.Phone))
			switch {
			case err != nil:
				entry.Error = err.Error()
			case !resp.ok():
				entry.Error = resp.errorMessage()
			default:
				entry.Success = true
				entry.MessageID = resp.SubID
				out.CreditsUsed += number(resp.Credits)
			}
		}

		if entry.Success {
			out.Sent++
		} else {
			out.Failed++
			c.log.Warn().Str("phone", r.Phone).Str("error", entry.Error).Msg("sms send failed")
		}
		out.Messages = append(out.Messages, entry)
	}
	out.Success = out.Sent > 0
	if !out.Success && len(out.Messages) > 0 {
		out.Error = out.Messages[0].Error
	}
	return out
}

// Credits returns the account balance
func (c *Client) Credits(ctx context.Context) (float64, error) {
	if !c.Configured() {
		return 0, ErrNotConfigured
	}
	resp, err := c.do(ctx, http.MethodGet, c.Config.LabsMobileBalanceURL, nil)
	if err != nil {
		return 0, err
	}
	return number(resp.Credits), nil
}
