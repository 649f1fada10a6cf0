package templating

import (
	"html"
	"regexp"
	"strings"

	"mass-messaging/pkg/models"
)

var (
	markupTag   = regexp.MustCompile(`<[A-Za-z!/][^>]*>`)
	lineBreaker = strings.NewReplacer("\r\n", "<br>", "\n", "<br>")
)

// Rendered is the personalized output for one recipient
type Rendered struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// Renderer substitutes placeholders and applies the email envelope
type Renderer struct {
	brand Brand
}

func NewRenderer(brand Brand) *Renderer {
	return &Renderer{brand: brand}
}

// Render personalizes tpl for one recipient. Variables are looked up in res;
// automatic ones read from rec and custom ones from custom.
//
// Chat templates keep the placeholder of a variable that resolves to an empty
// value, since the chat API validates every parameter. Email bodies are
// wrapped in the envelope unless tpl already is a full document.
func (r *Renderer) Render(tpl models.Template, g Grammar, rec models.ContactRecord, res Resolution, custom CustomValues) Rendered {
	values := substitutionTable(res, rec, custom)

	switch tpl.Channel {
	case models.ChannelChat:
		return Rendered{Body: substitute(tpl.Content, g, values, true, nil)}
	case models.ChannelEmail:
		subject := substitute(tpl.Subject, g, values, false, nil)
		return Rendered{
			Subject: subject,
			Body:    r.emailBody(tpl, g, values, subject),
		}
	default:
		return Rendered{
			Subject: substitute(tpl.Subject, g, values, false, nil),
			Body:    substitute(tpl.Content, g, values, false, nil),
		}
	}
}

func (r *Renderer) emailBody(tpl models.Template, g Grammar, values map[string]string, title string) string {
	if tpl.IsFullDocument() {
		return substitute(tpl.Content, g, values, false, html.EscapeString)
	}
	if IsPlainText(tpl.Content) {
		body := substitute(tpl.Content, g, values, false, nil)
		return r.brand.Envelope(lineBreaker.Replace(html.EscapeString(body)), title)
	}
	return r.brand.Envelope(substitute(tpl.Content, g, values, false, html.EscapeString), title)
}

// Wrap prepares an already personalized (or collaborator-personalized) email
// body: full documents pass through, plain text gets explicit line breaks,
// and everything else is placed in the envelope.
func (r *Renderer) Wrap(body, title string) string {
	if models.LooksLikeHTMLDocument(body) {
		return body
	}
	if IsPlainText(body) {
		body = lineBreaker.Replace(html.EscapeString(body))
	}
	return r.brand.Envelope(body, title)
}

// IsPlainText reports whether s carries no markup
func IsPlainText(s string) bool {
	return !markupTag.MatchString(s)
}

// substitutionTable maps lower-cased variables to their value for rec. The
// first spelling of a variable wins when several differ only in case.
func substitutionTable(res Resolution, rec models.ContactRecord, custom CustomValues) map[string]string {
	table := make(map[string]string, len(res.Order))
	for _, v := range res.Order {
		key := strings.ToLower(v)
		if _, ok := table[key]; ok {
			continue
		}
		if field, ok := res.Automatic[v]; ok {
			table[key] = FieldValue(rec, field)
			continue
		}
		table[key] = custom.Get(v)
	}
	return table
}

// substitute replaces every placeholder of a known variable in one pass, so
// inserted values are never scanned again. Unknown tokens are left alone.
func substitute(text string, g Grammar, values map[string]string, keepEmpty bool, escape func(string) string) string {
	if text == "" {
		return text
	}
	var b strings.Builder
	last := 0
	for _, m := range matches(text, g) {
		value, ok := values[strings.ToLower(text[m[2]:m[3]])]
		if !ok || (keepEmpty && value == "") {
			continue
		}
		if escape != nil {
			value = escape(value)
		}
		b.WriteString(text[last:m[0]])
		b.WriteString(value)
		last = m[1]
	}
	b.WriteString(text[last:])
	return b.String()
}
