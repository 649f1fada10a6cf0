package compose

import (
	"errors"
	"sync"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"
)

var (
	ErrNoTemplate      = errors.New("no template selected")
	ErrUnknownVariable = errors.New("variable is not a custom variable of the active template")
	ErrUnknownContact  = errors.New("contact is not in the selection")
)

// Session is the composer state for one operator: the selection, the active
// template and the custom values entered for it. Safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	selection  []models.ContactRecord
	template   *models.Template
	grammar    templating.Grammar
	resolution templating.Resolution
	custom     templating.CustomValues
	renderer   *templating.Renderer
}

func NewSession(renderer *templating.Renderer) *Session {
	if renderer == nil {
		renderer = templating.NewRenderer(templating.DefaultBrand)
	}
	return &Session{
		selection: []models.ContactRecord{},
		custom:    templating.CustomValues{},
		renderer:  renderer,
	}
}

// AddContacts merges incoming into the selection through the deduplicator
func (s *Session) AddContacts(incoming []models.ContactRecord) contacts.MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := contacts.Merge(s.selection, incoming)
	s.selection = append(s.selection, res.Added...)
	return res
}

// Remove drops the record with key from the selection
func (s *Session) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.selection {
		if r.Key == key {
			s.selection = append(s.selection[:i:i], s.selection[i+1:]...)
			return nil
		}
	}
	return ErrUnknownContact
}

// ClearSource removes every record of kind. For groups a non-zero groupID
// limits the removal to that group. It returns the number removed.
func (s *Session) ClearSource(kind models.ProvenanceKind, groupID uint) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.ContactRecord, 0, len(s.selection))
	for _, r := range s.selection {
		if r.Provenance.Kind == kind && (groupID == 0 || r.Provenance.GroupID == groupID) {
			continue
		}
		kept = append(kept, r)
	}
	removed := len(s.selection) - len(kept)
	s.selection = kept
	return removed
}

// Selection returns a copy of the current selection
func (s *Session) Selection() []models.ContactRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ContactRecord{}, s.selection...)
}

// SetTemplate activates tpl and recomputes the variable partition. Values
// entered for the previous template are discarded.
func (s *Session) SetTemplate(tpl models.Template, g templating.Grammar) templating.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.template = &tpl
	s.grammar = g
	s.resolution = templating.Resolve(templating.TemplateVariables(tpl, g))
	s.custom = templating.CustomValues{}
	return s.resolution
}

// SetChatTemplate activates an approved chat template
func (s *Session) SetChatTemplate(ct models.ChatTemplate) templating.Resolution {
	return s.SetTemplate(models.Template{
		Name:    ct.Name,
		Content: ct.Body,
		Channel: models.ChannelChat,
	}, templating.Double)
}

// SetCustom stores the value for one custom variable of the active template
func (s *Session) SetCustom(variable, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.template == nil {
		return ErrNoTemplate
	}
	for _, v := range s.resolution.Custom {
		if v == variable {
			s.custom[v] = value
			return nil
		}
	}
	return ErrUnknownVariable
}

// CustomValues returns the entered values, one entry per custom variable
func (s *Session) CustomValues() templating.CustomValues {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.custom.Only(s.resolution.Custom)
}

// Resolution is the variable partition of the active template
func (s *Session) Resolution() templating.Resolution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolution
}

// Preview renders the active template for the selected contact with key. An
// empty key previews with an empty contact.
func (s *Session) Preview(key string) (templating.Rendered, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.template == nil {
		return templating.Rendered{}, ErrNoTemplate
	}
	var rec models.ContactRecord
	if key != "" {
		found := false
		for _, r := range s.selection {
			if r.Key == key {
				rec, found = r, true
				break
			}
		}
		if !found {
			return templating.Rendered{}, ErrUnknownContact
		}
	}
	return s.renderer.Render(*s.template, s.grammar, rec, s.resolution, s.custom), nil
}

// PreviewAll renders the active template for every selected contact
func (s *Session) PreviewAll() ([]templating.Rendered, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.template == nil {
		return nil, ErrNoTemplate
	}
	out := make([]templating.Rendered, 0, len(s.selection))
	for _, r := range s.selection {
		out = append(out, s.renderer.Render(*s.template, s.grammar, r, s.resolution, s.custom))
	}
	return out, nil
}
