package contacts

import "mass-messaging/pkg/models"

// Reason explains why a candidate was not added to the selection
type Reason string

const (
	ReasonDuplicate     Reason = "duplicate"
	ReasonInvalidFormat Reason = "invalid_format"
)

// Rejection is a candidate that Merge refused
type Rejection struct {
	Record models.ContactRecord `json:"record"`
	Reason Reason               `json:"reason"`
}

// MergeResult partitions an incoming batch
type MergeResult struct {
	Added    []models.ContactRecord `json:"added"`
	Rejected []Rejection            `json:"rejected"`
}

// Merge partitions incoming into records that can join the selection and
// records that collide with it (or with an earlier incoming record) or carry
// no usable phone or email. Neither slice is modified.
func Merge(existing, incoming []models.ContactRecord) MergeResult {
	phones := make(map[string]struct{}, len(existing)+len(incoming))
	emails := make(map[string]struct{}, len(existing)+len(incoming))
	remember := func(r models.ContactRecord) {
		if k := phoneKey(r.Phone); k != "" {
			phones[k] = struct{}{}
		}
		if k := emailKey(r.Email); k != "" {
			emails[k] = struct{}{}
		}
	}
	for _, r := range existing {
		remember(r)
	}

	result := MergeResult{
		Added:    []models.ContactRecord{},
		Rejected: []Rejection{},
	}
	for _, r := range incoming {
		if !IsValidPhone(r.Phone) && !IsValidEmail(r.Email) {
			result.Rejected = append(result.Rejected, Rejection{Record: r, Reason: ReasonInvalidFormat})
			continue
		}
		if seen(phones, phoneKey(r.Phone)) || seen(emails, emailKey(r.Email)) {
			result.Rejected = append(result.Rejected, Rejection{Record: r, Reason: ReasonDuplicate})
			continue
		}
		remember(r)
		result.Added = append(result.Added, r)
	}
	return result
}

func seen(set map[string]struct{}, key string) bool {
	if key == "" {
		return false
	}
	_, ok := set[key]
	return ok
}
