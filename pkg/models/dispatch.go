package models

// --- Chat template dispatch ---

// ChatTemplateRecipient is one parameter set of a chat template send
type ChatTemplateRecipient struct {
	Name       string            `json:"name"`
	Phone      string            `json:"phone"`
	Email      string            `json:"email,omitempty"`
	Department string            `json:"department,omitempty"`
	Position   string            `json:"position,omitempty"`
	Custom     map[string]string `json:"custom,omitempty"`
}

// ChatTemplateRequest is shared across all recipients of one send
type ChatTemplateRequest struct {
	TemplateName    string                  `json:"template_name" binding:"required"`
	LanguageCode    string                  `json:"language_code"`
	Recipients      []ChatTemplateRecipient `json:"recipients"`
	VariableMapping map[string]string       `json:"variable_mapping"` // variable (lower-cased) -> contact field
	HeaderMediaURL  string                  `json:"header_media_url,omitempty"`
	HeaderFormat    string                  `json:"header_format,omitempty"`

	// Body variables in template order, used to build positional parameters
	BodyVariables []string `json:"body_variables,omitempty"`
}

// RecipientResult is the per-recipient delivery outcome reported by a collaborator
type RecipientResult struct {
	Recipient string `json:"recipient"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ChatTemplateSendResponse struct {
	Total    int               `json:"total"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Messages []RecipientResult `json:"messages"`
}

// --- Bulk (email / free-form chat) dispatch ---

type BulkRecipient struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type BulkSendRequest struct {
	BatchID     string          `json:"batch_id,omitempty"`
	Recipients  []BulkRecipient `json:"recipients"`
	Subject     string          `json:"subject,omitempty"`
	Content     string          `json:"content"`
	Channel     Channel         `json:"channel"`
	Attachments []string        `json:"attachments"`
}

// BulkSendResponse is either a synchronous tally or, when BatchID is set, an
// acknowledgement that the batch is processed in the background.
type BulkSendResponse struct {
	Total    int               `json:"total"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Messages []RecipientResult `json:"messages,omitempty"`
	BatchID  string            `json:"batch_id,omitempty"`
}

// BulkJob is a bulk request queued for background delivery
type BulkJob struct {
	BatchID string          `json:"batch_id"`
	Request BulkSendRequest `json:"request"`
}

// --- SMS dispatch ---

type SMSRecipient struct {
	Phone   string `json:"phone"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

type SMSSendRequest struct {
	Recipients []SMSRecipient `json:"recipients"`
	Message    string         `json:"message"`
}

type SMSSendResponse struct {
	Success     bool    `json:"success"`
	Total       int     `json:"total,omitempty"`
	Sent        int     `json:"sent,omitempty"`
	Failed      int     `json:"failed,omitempty"`
	CreditsUsed float64 `json:"credits_used,omitempty"`
	Error       string  `json:"error,omitempty"`

	// Filled when messages were personalized and sent one by one
	Messages []RecipientResult `json:"messages,omitempty"`
}

// --- Uniform result ---

// OutcomeStatus classifies a send outcome for display
type OutcomeStatus string

const (
	OutcomeSuccess  OutcomeStatus = "success"
	OutcomePartial  OutcomeStatus = "partial"
	OutcomeFailed   OutcomeStatus = "failed"
	OutcomeAccepted OutcomeStatus = "accepted" // queued, tally not yet known
)

// SendOutcome is the channel-independent summary of one dispatch
type SendOutcome struct {
	Channel  Channel           `json:"channel"`
	Total    int               `json:"total"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Excluded int               `json:"excluded"`
	BatchID  string            `json:"batch_id,omitempty"`
	Async    bool              `json:"async"`
	Status   OutcomeStatus     `json:"status"`
	Results  []RecipientResult `json:"results,omitempty"`
}
