package dispatch

import (
	"strings"

	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"
)

// DefaultLanguageCode is used when neither the request nor the template names one
var DefaultLanguageCode = "es_CO"

// ChatTemplateInput is what the operator chose for a chat template send
type ChatTemplateInput struct {
	Template       models.ChatTemplate
	LanguageCode   string
	HeaderMediaURL string
	Custom         templating.CustomValues
}

// ChatTemplatePlan is a chat template request ready for the collaborator.
// Excluded holds the selected recipients that were left out because they
// have no phone. Warnings must be confirmed by the operator before sending.
type ChatTemplatePlan struct {
	Request  models.ChatTemplateRequest `json:"request"`
	Excluded []models.ContactRecord     `json:"excluded"`
	Warnings []Code                     `json:"warnings"`
}

// NeedsConfirmation reports whether the plan carries soft warnings
func (p ChatTemplatePlan) NeedsConfirmation() bool {
	return len(p.Warnings) > 0
}

// ChatTemplateVariables returns the body variables of tpl in template order
func ChatTemplateVariables(tpl models.ChatTemplate) []string {
	if len(tpl.Variables) > 0 {
		return append([]string{}, tpl.Variables...)
	}
	return templating.Extract(tpl.Body, templating.Double)
}

// BuildChatTemplate builds one parameter set per recipient with a phone.
// It fails with no_eligible_recipients when none is left.
func BuildChatTemplate(in ChatTemplateInput, recipients []models.ContactRecord) (ChatTemplatePlan, error) {
	vars := ChatTemplateVariables(in.Template)
	res := templating.Resolve(vars)
	custom := in.Custom.Only(res.Custom)

	plan := ChatTemplatePlan{
		Request: models.ChatTemplateRequest{
			TemplateName:    in.Template.Name,
			LanguageCode:    firstNonEmpty(in.LanguageCode, in.Template.Language, DefaultLanguageCode),
			Recipients:      []models.ChatTemplateRecipient{},
			VariableMapping: res.VariableMapping(),
			HeaderMediaURL:  strings.TrimSpace(in.HeaderMediaURL),
			BodyVariables:   vars,
		},
		Excluded: []models.ContactRecord{},
		Warnings: []Code{},
	}
	if in.Template.Header != nil {
		plan.Request.HeaderFormat = strings.ToUpper(in.Template.Header.Format)
	}
	if in.Template.RequiresMedia() && plan.Request.HeaderMediaURL == "" {
		plan.Warnings = append(plan.Warnings, CodeMissingRequiredMedia)
	}

	for _, r := range recipients {
		if strings.TrimSpace(r.Phone) == "" {
			plan.Excluded = append(plan.Excluded, r)
			continue
		}
		values := make(map[string]string, len(custom))
		for k, v := range custom {
			values[k] = v
		}
		plan.Request.Recipients = append(plan.Request.Recipients, models.ChatTemplateRecipient{
			Name:       r.Name,
			Phone:      r.Phone,
			Email:      r.Email,
			Department: r.Department,
			Position:   r.Position,
			Custom:     values,
		})
	}
	if len(plan.Request.Recipients) == 0 {
		return plan, NoEligibleRecipients(len(plan.Excluded))
	}
	return plan, nil
}

// BulkInput is a free-form email or chat message
type BulkInput struct {
	Channel     models.Channel
	Subject     string
	Content     string
	Attachments []string
}

// BulkPlan is a flat bulk request. Unreachable lists recipients that lack
// the address the channel needs; they are reported as failed.
type BulkPlan struct {
	Request     models.BulkSendRequest   `json:"request"`
	Unreachable []models.RecipientResult `json:"unreachable"`
}

// Total is the number of recipients the outcome must account for
func (p BulkPlan) Total() int {
	return len(p.Request.Recipients) + len(p.Unreachable)
}

// BuildBulk builds the single request for an email or free-form chat send.
// Personalization is left to the collaborator; email content is wrapped in
// the envelope once here.
func BuildBulk(in BulkInput, recipients []models.ContactRecord, renderer *templating.Renderer) (BulkPlan, error) {
	if len(recipients) == 0 {
		return BulkPlan{}, NoEligibleRecipients(0)
	}
	content := in.Content
	if in.Channel == models.ChannelEmail {
		content = renderer.Wrap(content, in.Subject)
	}
	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	plan := BulkPlan{
		Request: models.BulkSendRequest{
			Recipients:  []models.BulkRecipient{},
			Subject:     in.Subject,
			Content:     content,
			Channel:     in.Channel,
			Attachments: attachments,
		},
		Unreachable: []models.RecipientResult{},
	}
	for _, r := range recipients {
		if reason := missingAddress(in.Channel, r); reason != "" {
			plan.Unreachable = append(plan.Unreachable, models.RecipientResult{
				Recipient: r.Name,
				Phone:     r.Phone,
				Email:     r.Email,
				Error:     reason,
			})
			continue
		}
		plan.Request.Recipients = append(plan.Request.Recipients, models.BulkRecipient{
			Name:  r.Name,
			Phone: r.Phone,
			Email: r.Email,
		})
	}
	if len(plan.Request.Recipients) == 0 {
		return plan, NoEligibleRecipients(len(plan.Unreachable))
	}
	return plan, nil
}

func missingAddress(ch models.Channel, r models.ContactRecord) string {
	switch ch {
	case models.ChannelEmail:
		if strings.TrimSpace(r.Email) == "" {
			return "recipient has no email"
		}
	default:
		if strings.TrimSpace(r.Phone) == "" {
			return "recipient has no phone number"
		}
	}
	return ""
}

// SMSPlan is an SMS request with one personalized message per recipient
type SMSPlan struct {
	Request  models.SMSSendRequest  `json:"request"`
	Excluded []models.ContactRecord `json:"excluded"`
}

// BuildSMS renders content for every recipient with a phone. The SMS gateway
// accepts only final text, so personalization happens here.
func BuildSMS(content string, recipients []models.ContactRecord, custom templating.CustomValues, renderer *templating.Renderer) (SMSPlan, error) {
	tpl := models.Template{Channel: models.ChannelSMS, Content: content}
	res := templating.Resolve(templating.Extract(content, templating.Double))

	plan := SMSPlan{
		Request: models.SMSSendRequest{
			Recipients: []models.SMSRecipient{},
			Message:    content,
		},
		Excluded: []models.ContactRecord{},
	}
	for _, r := range recipients {
		if strings.TrimSpace(r.Phone) == "" {
			plan.Excluded = append(plan.Excluded, r)
			continue
		}
		out := renderer.Render(tpl, templating.Double, r, res, custom)
		plan.Request.Recipients = append(plan.Request.Recipients, models.SMSRecipient{
			Phone:   r.Phone,
			Name:    r.Name,
			Message: out.Body,
		})
	}
	if len(plan.Request.Recipients) == 0 {
		return plan, NoEligibleRecipients(len(plan.Excluded))
	}
	return plan, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
