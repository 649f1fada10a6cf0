package models

import "strings"

// Channel is a delivery medium
type Channel string

const (
	ChannelChat  Channel = "chat"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Template is a stored message template. Envelope records whether Content is
// already a complete HTML document; nil means the template predates the flag.
type Template struct {
	ID       uint    `json:"id"`
	Name     string  `json:"name"`
	Subject  string  `json:"subject,omitempty"`
	Content  string  `json:"content"`
	Channel  Channel `json:"channel"`
	Envelope *bool   `json:"envelope,omitempty"`
}

// IsFullDocument reports whether the content must be sent without wrapping
func (t Template) IsFullDocument() bool {
	if t.Envelope != nil {
		return *t.Envelope
	}
	return LooksLikeHTMLDocument(t.Content)
}

// LooksLikeHTMLDocument sniffs for a doctype or <html root tag
func LooksLikeHTMLDocument(s string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html")
}

// ChatTemplate is an approved chat-app (WhatsApp Business) template
type ChatTemplate struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	Language  string               `json:"language"`
	Category  string               `json:"category"`
	Status    string               `json:"status"` // APPROVED, REJECTED, PENDING
	Header    *ChatTemplateHeader  `json:"header,omitempty"`
	Body      string               `json:"body"`
	Footer    string               `json:"footer,omitempty"`
	Buttons   []ChatTemplateButton `json:"buttons,omitempty"`
	Variables []string             `json:"variables"`
}

type ChatTemplateHeader struct {
	Format string `json:"format"` // TEXT, IMAGE, VIDEO, DOCUMENT
	Text   string `json:"text,omitempty"`
}

type ChatTemplateButton struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// RequiresMedia reports whether the header expects an image, video or document
func (t ChatTemplate) RequiresMedia() bool {
	if t.Header == nil {
		return false
	}
	switch strings.ToUpper(t.Header.Format) {
	case "IMAGE", "VIDEO", "DOCUMENT":
		return true
	}
	return false
}
