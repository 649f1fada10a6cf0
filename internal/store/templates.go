package store

import (
	"context"
	"encoding/json"
	"strings"

	"mass-messaging/internal/models"
	domain "mass-messaging/pkg/models"

	"gorm.io/gorm"
)

// TemplateStore keeps stored templates and the synced chat template catalogue
type TemplateStore struct {
	db *gorm.DB
}

func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// List returns stored templates, optionally for one channel
func (s *TemplateStore) List(ctx context.Context, channel string) ([]models.Template, error) {
	q := s.db.WithContext(ctx).Order("name")
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var out []models.Template
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Template{}
	}
	return out, nil
}

func (s *TemplateStore) Get(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

// Create stores t. Names are unique across channels.
func (s *TemplateStore) Create(ctx context.Context, t *models.Template) error {
	t.Name = strings.TrimSpace(t.Name)
	db := s.db.WithContext(ctx)
	if taken, err := nameTaken(db, &models.Template{}, t.Name, 0); err != nil {
		return err
	} else if taken {
		return ErrConflict
	}
	return translate(db.Create(t).Error)
}

// Update replaces the editable fields of template id with those of t
func (s *TemplateStore) Update(ctx context.Context, id uint, t models.Template) (*models.Template, error) {
	db := s.db.WithContext(ctx)
	var cur models.Template
	if err := db.First(&cur, id).Error; err != nil {
		return nil, translate(err)
	}
	name := strings.TrimSpace(t.Name)
	if taken, err := nameTaken(db, &models.Template{}, name, id); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrConflict
	}

	cur.Name = name
	cur.Subject = t.Subject
	cur.Content = t.Content
	cur.Channel = t.Channel
	cur.Grammar = t.Grammar
	cur.Envelope = t.Envelope
	if err := db.Save(&cur).Error; err != nil {
		return nil, translate(err)
	}
	return &cur, nil
}

func (s *TemplateStore) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Template{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type chatComponents struct {
	Header  *domain.ChatTemplateHeader  `json:"header,omitempty"`
	Body    string                      `json:"body"`
	Footer  string                      `json:"footer,omitempty"`
	Buttons []domain.ChatTemplateButton `json:"buttons,omitempty"`
}

// SaveChatTemplates upserts the catalogue fetched from the provider and
// returns how many rows were stored
func (s *TemplateStore) SaveChatTemplates(ctx context.Context, list []domain.ChatTemplate) (int, error) {
	synced := 0
	for _, ct := range list {
		components, err := json.Marshal(chatComponents{Header: ct.Header, Body: ct.Body, Footer: ct.Footer, Buttons: ct.Buttons})
		if err != nil {
			return synced, err
		}
		row := models.ChatTemplate{
			ID:         ct.ID,
			Name:       ct.Name,
			Language:   ct.Language,
			Category:   ct.Category,
			Status:     ct.Status,
			Components: string(components),
			Variables:  strings.Join(ct.Variables, ","),
		}
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

// ChatTemplates lists synced chat templates, optionally filtered by status
func (s *TemplateStore) ChatTemplates(ctx context.Context, status string) ([]domain.ChatTemplate, error) {
	q := s.db.WithContext(ctx).Order("name")
	if status != "" {
		q = q.Where("status = ?", strings.ToUpper(status))
	}
	var rows []models.ChatTemplate
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChatTemplate, 0, len(rows))
	for _, r := range rows {
		out = append(out, chatTemplate(r))
	}
	return out, nil
}

// ChatTemplate returns the synced chat template called name
func (s *TemplateStore) ChatTemplate(ctx context.Context, name string) (domain.ChatTemplate, error) {
	var row models.ChatTemplate
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return domain.ChatTemplate{}, translate(err)
	}
	return chatTemplate(row), nil
}

func chatTemplate(r models.ChatTemplate) domain.ChatTemplate {
	var c chatComponents
	_ = json.Unmarshal([]byte(r.Components), &c)
	return domain.ChatTemplate{
		ID:        r.ID,
		Name:      r.Name,
		Language:  r.Language,
		Category:  r.Category,
		Status:    r.Status,
		Header:    c.Header,
		Body:      c.Body,
		Footer:    c.Footer,
		Buttons:   c.Buttons,
		Variables: r.VariableList(),
	}
}
