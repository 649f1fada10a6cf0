package directory

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
	"sync"
	"time"

	"mass-messaging/internal/config"
	"mass-messaging/internal/metrics"
	"mass-messaging/pkg/models"

	"github.com/rs/zerolog"
)

const (
	maxAttempts   = 3
	refreshMargin = 5 * time.Minute

	DepartmentCustomer    = "Apostador"
	DepartmentOperational = "Operacional"
	DepartmentInactive    = "Inactivo"
)

var (
	ErrNotConfigured = errors.New("contact directory credentials not configured")
	ErrUnauthorized  = errors.New("contact directory rejected the token and re-authentication failed")

	// errAuth marks answers that mean the token is no longer accepted: auth
	// statuses, redirects to a login page, or a body that is not JSON.
	errAuth = errors.New("directory authentication required")
)

// Departments lists the classifications a directory contact can get
func Departments() []string {
	return []string{DepartmentCustomer, DepartmentOperational, DepartmentInactive}
}

// Client reads contacts from the OWO directory. The login token is cached and
// renewed shortly before it expires.
type Client struct {
	cfg  *config.Config
	http *http.Client
	log  zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	token  string
	issued time.Time
}

func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: 2 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:   log.With().Str("component", "directory").Logger(),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func (c *Client) HTTPClient() *http.Client {
	return c.http
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func (c *Client) Configured() bool {
	return c.cfg.DirectoryLoginURL != "" && c.cfg.DirectoryContactsURL != "" &&
		c.cfg.DirectoryEmail != "" && c.cfg.DirectoryPassword != ""
}

// Token returns the cached token or logs in again when it is missing, close
// to expiry, or force is set
func (c *Client) Token(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && c.now().Sub(c.issued) < c.cfg.DirectoryTokenTTL-refreshMargin {
		return c.token, nil
	}
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		token, err := c.login(ctx)
		if err == nil {
			c.token, c.issued = token, c.now()
			c.log.Debug().Int("attempt", attempt+1).Msg("directory token obtained")
			return token, nil
		}
		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("directory login failed")
		if attempt < maxAttempts-1 {
			if err := c.sleep(ctx, backoff(attempt)); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("authenticate with directory after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    c.cfg.DirectoryEmail,
		"password": c.cfg.DirectoryPassword,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DirectoryLoginURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("login: %s", resp.Status)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("login: decode response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("login: no token received")
	}
	return out.Token, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// rawContact is a directory entry as the API returns it
type rawContact struct {
	CustomerName string          `json:"customerName"`
	FullName     string          `json:"fullName"`
	Name         string          `json:"name"`
	LastName     string          `json:"lastName"`
	PhoneNumber  string          `json:"phoneNumber"`
	Email        string          `json:"email"`
	State        string          `json:"state"`
	IsCustomer   json.RawMessage `json:"isCustomer"`
}

func (c *Client) fetch(ctx context.Context, token string) ([]rawContact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DirectoryContactsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect,
		http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s", errAuth, resp.Status)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch contacts: %s", resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	contacts, err := decodeContacts(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errAuth, err)
	}
	return contacts, nil
}

// decodeContacts accepts {payload:{data:[...]}}, {payload:[...]} or a bare list
func decodeContacts(raw []byte) ([]rawContact, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []rawContact
		err := json.Unmarshal(raw, &list)
		return list, err
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	payload := bytes.TrimSpace(envelope.Payload)
	switch {
	case len(payload) == 0:
		return []rawContact{}, nil
	case payload[0] == '[':
		var list []rawContact
		err := json.Unmarshal(payload, &list)
		return list, err
	case payload[0] == '{':
		var inner struct {
			Data []rawContact `json:"data"`
		}
		err := json.Unmarshal(payload, &inner)
		return inner.Data, err
	}
	return []rawContact{}, nil
}

// Contacts fetches every directory contact. An auth failure renews the token
// once; other failures are retried with exponential backoff.
func (c *Client) Contacts(ctx context.Context) (out []models.DirectoryContact, err error) {
	start := time.Now()
	defer func() { metrics.ObserveCollaborator("directory", start, err) }()

	token, err := c.Token(ctx, false)
	if err != nil {
		return nil, err
	}

	refreshed := false
	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, ferr := c.fetch(ctx, token)
		if ferr == nil {
			out = make([]models.DirectoryContact, 0, len(raw))
			for i, r := range raw {
				out = append(out, Transform(r, i))
			}
			return out, nil
		}
		err = ferr

		if errors.Is(ferr, errAuth) {
			if refreshed {
				return nil, ErrUnauthorized
			}
			refreshed = true
			c.log.Info().Err(ferr).Msg("directory token rejected, refreshing")
			c.invalidate()
			if token, err = c.Token(ctx, true); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
			}
			continue
		}

		c.log.Warn().Err(ferr).Int("attempt", attempt+1).Msg("directory fetch failed")
		if attempt < maxAttempts-1 {
			if serr := c.sleep(ctx, backoff(attempt)); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, fmt.Errorf("fetch contacts after %d attempts: %w", maxAttempts, err)
}

// Query narrows a directory listing
type Query struct {
	Search     string
	Department string
	Limit      int
	Offset     int
}

// Page is one filtered slice of the directory
type Page struct {
	Total    int                       `json:"total"`
	Contacts []models.DirectoryContact `json:"contacts"`
}

// FetchContacts fetches, filters and pages the directory
func (c *Client) FetchContacts(ctx context.Context, q Query) (Page, error) {
	all, err := c.Contacts(ctx)
	if err != nil {
		return Page{}, err
	}
	filtered := Filter(all, q.Search, q.Department)

	page := Page{Total: len(filtered), Contacts: []models.DirectoryContact{}}
	if q.Offset >= len(filtered) {
		return page, nil
	}
	end := len(filtered)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page.Contacts = filtered[q.Offset:end]
	return page, nil
}

// Transform maps a raw entry to a directory contact. index gives the id,
// since the API does not return a stable one.
func Transform(r rawContact, index int) models.DirectoryContact {
	department := DepartmentOperational
	switch {
	case r.State == "N":
		department = DepartmentInactive
	case truthy(r.IsCustomer):
		department = DepartmentCustomer
	}

	name := "Sin nombre"
	switch {
	case strings.TrimSpace(r.CustomerName) != "":
		name = strings.TrimSpace(r.CustomerName)
	case strings.TrimSpace(r.FullName) != "":
		name = strings.TrimSpace(r.FullName)
	case strings.TrimSpace(r.Name+r.LastName) != "":
		name = strings.TrimSpace(strings.TrimSpace(r.Name) + " " + strings.TrimSpace(r.LastName))
	}

	phone := strings.TrimSpace(r.PhoneNumber)
	if phone != "" && !strings.HasPrefix(phone, "+") {
		phone = "+57" + phone
	}

	return models.DirectoryContact{
		ID:         strconv.Itoa(index + 1),
		Name:       name,
		Phone:      phone,
		Email:      strings.TrimSpace(r.Email),
		Department: department,
	}
}

func truthy(raw json.RawMessage) bool {
	s := strings.ToLower(strings.Trim(strings.TrimSpace(string(raw)), `"`))
	switch s {
	case "true", "1", "yes", "si", "sí":
		return true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return false
}

// Filter keeps contacts whose name, email or phone contains search and whose
// department equals department, both case-insensitively. Empty arguments do
// not filter.
func Filter(contacts []models.DirectoryContact, search, department string) []models.DirectoryContact {
	search = strings.ToLower(strings.TrimSpace(search))
	department = strings.TrimSpace(department)

	out := make([]models.DirectoryContact, 0, len(contacts))
	for _, c := range contacts {
		if department != "" && !strings.EqualFold(c.Department, department) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) &&
			!strings.Contains(c.Phone, search) {
			continue
		}
		out = append(out, c)
	}
	return out
}
