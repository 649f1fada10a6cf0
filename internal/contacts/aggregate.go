package contacts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"mass-messaging/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func newKey() string {
	return uuid.NewString()
}

// FromDirectory normalizes contacts pulled from the remote directory
func FromDirectory(raw []models.DirectoryContact) []models.ContactRecord {
	out := make([]models.ContactRecord, 0, len(raw))
	for _, c := range raw {
		out = append(out, models.ContactRecord{
			Key:        newKey(),
			Provenance: models.Provenance{Kind: models.ProvenanceDirectory, SourceID: c.ID},
			Name:       strings.TrimSpace(c.Name),
			Phone:      strings.TrimSpace(c.Phone),
			Email:      strings.TrimSpace(c.Email),
			Department: strings.TrimSpace(c.Department),
			Position:   strings.TrimSpace(c.Position),
		})
	}
	return out
}

// FromGroups concatenates the members of every group. Members present in
// several groups appear once per group; Merge removes the repeats.
func FromGroups(groups []models.GroupContacts) []models.ContactRecord {
	var out []models.ContactRecord
	for _, g := range groups {
		for _, m := range g.Members {
			out = append(out, models.ContactRecord{
				Key: newKey(),
				Provenance: models.Provenance{
					Kind:     models.ProvenanceGroup,
					GroupID:  g.GroupID,
					SourceID: strconv.FormatUint(uint64(m.ID), 10),
				},
				Name:  strings.TrimSpace(m.Name),
				Phone: strings.TrimSpace(m.Phone),
				Email: strings.TrimSpace(m.Email),
			})
		}
	}
	if out == nil {
		out = []models.ContactRecord{}
	}
	return out
}

// FromManual classifies a single typed value. Email entries without an
// explicit name are named after the local part of the address.
func FromManual(value, name string) (models.ContactRecord, error) {
	phone, email, err := Classify(value)
	if err != nil {
		return models.ContactRecord{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" && email != "" {
		name = email[:strings.Index(email, "@")]
	}
	return models.ContactRecord{
		Key:        newKey(),
		Provenance: models.Provenance{Kind: models.ProvenanceManual},
		Name:       name,
		Phone:      phone,
		Email:      email,
	}, nil
}

// InvalidToken is a pasted entry that could not be classified
type InvalidToken struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// BulkPreview is shown to the operator before a pasted list is committed
type BulkPreview struct {
	Valid   []models.ContactRecord `json:"valid"`
	Invalid []InvalidToken         `json:"invalid"`
}

// FromBulkPaste splits raw on commas, semicolons and newlines and classifies
// every token on its own. Bare 10-digit numbers get the default country code.
func FromBulkPaste(raw string) BulkPreview {
	preview := BulkPreview{
		Valid:   []models.ContactRecord{},
		Invalid: []InvalidToken{},
	}
	for _, token := range bulkTokenSplitter.Split(raw, -1) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		rec := models.ContactRecord{
			Key:        newKey(),
			Provenance: models.Provenance{Kind: models.ProvenanceBulk},
		}
		if strings.Contains(token, "@") {
			if !IsValidEmail(token) {
				preview.Invalid = append(preview.Invalid, InvalidToken{Token: token, Reason: "invalid email address"})
				continue
			}
			rec.Email = token
		} else {
			phone := NormalizeLocalPhone(token)
			if !IsValidPhone(phone) {
				preview.Invalid = append(preview.Invalid, InvalidToken{
					Token:  token,
					Reason: "invalid phone number: expected + and 10 to 15 digits",
				})
				continue
			}
			rec.Phone = phone
		}
		preview.Valid = append(preview.Valid, rec)
	}
	return preview
}

// GroupFetcher loads the members of one saved group
type GroupFetcher interface {
	GroupMembers(ctx context.Context, groupID uint) ([]models.GroupMember, error)
}

// ResolveGroups fetches every group concurrently and returns once all fetches
// are done, in the order of ids.
func ResolveGroups(ctx context.Context, fetcher GroupFetcher, ids []uint) ([]models.GroupContacts, error) {
	out := make([]models.GroupContacts, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			members, err := fetcher.GroupMembers(ctx, id)
			if err != nil {
				return fmt.Errorf("fetch group %d: %w", id, err)
			}
			out[i] = models.GroupContacts{GroupID: id, Members: members}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
