package models

import (
	"strings"
	"time"

	"mass-messaging/pkg/models"
)

// Group is a saved list of contacts
type Group struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Contacts    []GroupContact `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE;" json:"contacts,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Group) TableName() string {
	return "groups"
}

// GroupContact is a contact belonging to one group
type GroupContact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	GroupID   uint      `gorm:"index;not null" json:"group_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone,omitempty"`
	Email     string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (GroupContact) TableName() string {
	return "group_contacts"
}

func (c GroupContact) Member() models.GroupMember {
	return models.GroupMember{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email}
}

// Template is a stored email, sms or free-form chat template
type Template struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Subject   string    `gorm:"type:varchar(500)" json:"subject"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	Channel   string    `gorm:"type:varchar(20);default:'email'" json:"channel"`
	Grammar   string    `gorm:"type:varchar(10);default:'double'" json:"grammar"` // double or single
	Envelope  *bool     `json:"envelope,omitempty"`                               // nil for legacy rows
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

func (t Template) Domain() models.Template {
	return models.Template{
		ID:       t.ID,
		Name:     t.Name,
		Subject:  t.Subject,
		Content:  t.Content,
		Channel:  models.Channel(t.Channel),
		Envelope: t.Envelope,
	}
}

// ChatTemplate is a WhatsApp template synced from Meta
type ChatTemplate struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(255);index" json:"name"`
	Language   string    `gorm:"type:varchar(50)" json:"language"`
	Category   string    `gorm:"type:varchar(100)" json:"category"`
	Status     string    `gorm:"type:varchar(50)" json:"status"`
	Components string    `gorm:"type:text" json:"components"` // JSON components
	Variables  string    `gorm:"type:text" json:"variables"`  // comma separated, body order
	SyncedAt   time.Time `gorm:"autoUpdateTime" json:"synced_at"`
}

func (ChatTemplate) TableName() string {
	return "chat_templates"
}

func (t ChatTemplate) VariableList() []string {
	if t.Variables == "" {
		return []string{}
	}
	return strings.Split(t.Variables, ",")
}

// Message log statuses
const (
	StatusPending   = "pending"
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// MessageLog is one recipient of one dispatch
type MessageLog struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	BatchID           string     `gorm:"type:varchar(64);index" json:"batch_id"`
	RecipientName     string     `gorm:"type:varchar(255)" json:"recipient_name"`
	RecipientPhone    string     `gorm:"type:varchar(50)" json:"recipient_phone,omitempty"`
	RecipientEmail    string     `gorm:"type:varchar(255)" json:"recipient_email,omitempty"`
	Subject           string     `gorm:"type:varchar(500)" json:"subject,omitempty"`
	Content           string     `gorm:"type:text" json:"message_content"`
	Channel           string     `gorm:"type:varchar(20);index;not null" json:"channel"`
	Status            string     `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	ErrorMessage      string     `gorm:"type:text" json:"error_message,omitempty"`
	ProviderMessageID string     `gorm:"type:varchar(255);index" json:"provider_message_id,omitempty"`
	Attachments       string     `gorm:"type:text" json:"attachments,omitempty"` // comma separated
	SentAt            *time.Time `json:"sent_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageLog) TableName() string {
	return "message_logs"
}

// SystemSetting overrides a configuration value at runtime
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// All lists every model managed by AutoMigrate
func All() []interface{} {
	return []interface{}{
		&Group{},
		&GroupContact{},
		&Template{},
		&ChatTemplate{},
		&MessageLog{},
		&SystemSetting{},
	}
}
