package store

import (
	"context"
	"strings"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/models"
	domain "mass-messaging/pkg/models"

	"gorm.io/gorm"
)

// GroupSummary is a group with its member count
type GroupSummary struct {
	models.Group
	ContactCount int64 `json:"contact_count"`
}

// GroupStore keeps saved contact groups
type GroupStore struct {
	db *gorm.DB
}

func NewGroupStore(db *gorm.DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) List(ctx context.Context) ([]GroupSummary, error) {
	var groups []models.Group
	if err := s.db.WithContext(ctx).Order("name").Find(&groups).Error; err != nil {
		return nil, err
	}

	var counts []struct {
		GroupID uint
		N       int64
	}
	err := s.db.WithContext(ctx).Model(&models.GroupContact{}).
		Select("group_id, count(*) as n").
		Group("group_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	byGroup := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byGroup[c.GroupID] = c.N
	}

	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupSummary{Group: g, ContactCount: byGroup[g.ID]})
	}
	return out, nil
}

// Get loads a group with its contacts
func (s *GroupStore) Get(ctx context.Context, id uint) (*models.Group, error) {
	var g models.Group
	err := s.db.WithContext(ctx).
		Preload("Contacts", func(db *gorm.DB) *gorm.DB { return db.Order("name") }).
		First(&g, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *GroupStore) Create(ctx context.Context, name, description string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	db := s.db.WithContext(ctx)
	if taken, err := nameTaken(db, &models.Group{}, name, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrConflict
	}

	g := models.Group{Name: name, Description: strings.TrimSpace(description)}
	if err := db.Create(&g).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

func (s *GroupStore) Update(ctx context.Context, id uint, name, description string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	db := s.db.WithContext(ctx)

	var g models.Group
	if err := db.First(&g, id).Error; err != nil {
		return nil, translate(err)
	}
	if taken, err := nameTaken(db, &models.Group{}, name, id); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrConflict
	}

	g.Name = name
	g.Description = strings.TrimSpace(description)
	if err := db.Save(&g).Error; err != nil {
		return nil, translate(err)
	}
	return &g, nil
}

// Delete removes a group and its contacts
func (s *GroupStore) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ?", id).Delete(&models.GroupContact{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Group{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// NewContact is a contact to add to a group
type NewContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

// AddContacts stores the candidates that are valid and not already members.
// Local phone numbers get the default country code.
func (s *GroupStore) AddContacts(ctx context.Context, groupID uint, candidates []NewContact) ([]models.GroupContact, []contacts.Rejection, error) {
	var added []models.GroupContact
	var rejected []contacts.Rejection

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Group
		if err := tx.First(&g, groupID).Error; err != nil {
			return translate(err)
		}
		var members []models.GroupContact
		if err := tx.Where("group_id = ?", groupID).Find(&members).Error; err != nil {
			return err
		}

		existing := make([]domain.ContactRecord, 0, len(members))
		for _, m := range members {
			existing = append(existing, domain.ContactRecord{Name: m.Name, Phone: m.Phone, Email: m.Email})
		}
		incoming := make([]domain.ContactRecord, 0, len(candidates))
		for _, c := range candidates {
			rec := domain.ContactRecord{
				Name:  strings.TrimSpace(c.Name),
				Email: strings.TrimSpace(c.Email),
			}
			if p := strings.TrimSpace(c.Phone); p != "" {
				rec.Phone = contacts.NormalizeLocalPhone(p)
			}
			incoming = append(incoming, rec)
		}

		merged := contacts.Merge(existing, incoming)
		rejected = merged.Rejected
		for _, rec := range merged.Added {
			name := rec.Name
			if name == "" {
				name = firstNonEmpty(rec.Email, rec.Phone)
			}
			added = append(added, models.GroupContact{GroupID: groupID, Name: name, Phone: rec.Phone, Email: rec.Email})
		}
		if len(added) == 0 {
			return nil
		}
		return tx.Create(&added).Error
	})
	if err != nil {
		return nil, nil, err
	}
	if added == nil {
		added = []models.GroupContact{}
	}
	return added, rejected, nil
}

func (s *GroupStore) UpdateContact(ctx context.Context, groupID, contactID uint, c NewContact) (*models.GroupContact, error) {
	db := s.db.WithContext(ctx)
	var gc models.GroupContact
	if err := db.Where("group_id = ?", groupID).First(&gc, contactID).Error; err != nil {
		return nil, translate(err)
	}

	phone := strings.TrimSpace(c.Phone)
	if phone != "" {
		phone = contacts.NormalizeLocalPhone(phone)
	}
	email := strings.TrimSpace(c.Email)
	if !contacts.IsValidPhone(phone) && !contacts.IsValidEmail(email) {
		return nil, contacts.ErrInvalidFormat
	}

	gc.Name = firstNonEmpty(strings.TrimSpace(c.Name), email, phone)
	gc.Phone = phone
	gc.Email = email
	if err := db.Save(&gc).Error; err != nil {
		return nil, err
	}
	return &gc, nil
}

func (s *GroupStore) DeleteContact(ctx context.Context, groupID, contactID uint) error {
	res := s.db.WithContext(ctx).Where("group_id = ?", groupID).Delete(&models.GroupContact{}, contactID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GroupMembers returns the members of one group
func (s *GroupStore) GroupMembers(ctx context.Context, groupID uint) ([]domain.GroupMember, error) {
	var g models.Group
	if err := s.db.WithContext(ctx).Select("id").First(&g, groupID).Error; err != nil {
		return nil, translate(err)
	}
	var rows []models.GroupContact
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.GroupMember, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Member())
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
