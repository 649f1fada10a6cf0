package store

import (
	"context"
	"strings"
	"time"

	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/models"
	domain "mass-messaging/pkg/models"

	"gorm.io/gorm"
)

// HistoryStore writes one message log row per recipient of every dispatch
// and keeps the rows current as deliveries complete.
type HistoryStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db, now: time.Now}
}

// RecordDispatch stores the outcome of a dispatch. Queued recipients are
// stored with status queued until CompleteBatch runs.
func (s *HistoryStore) RecordDispatch(ctx context.Context, rec dispatch.Record) error {
	now := s.now()
	base := models.MessageLog{
		BatchID:     rec.BatchID,
		Subject:     rec.Subject,
		Content:     rec.Content,
		Channel:     string(rec.Channel),
		Attachments: strings.Join(rec.Attachments, ","),
	}

	rows := make([]models.MessageLog, 0, len(rec.Outcome.Results)+len(rec.Queued))
	for _, r := range rec.Outcome.Results {
		row := base
		row.RecipientName = r.Recipient
		row.RecipientPhone = r.Phone
		row.RecipientEmail = r.Email
		row.ProviderMessageID = r.MessageID
		row.Status = models.StatusFailed
		row.ErrorMessage = r.Error
		if r.Success {
			row.Status = models.StatusSent
			row.ErrorMessage = ""
		}
		row.SentAt = &now
		rows = append(rows, row)
	}
	for _, r := range rec.Queued {
		row := base
		row.RecipientName = r.Name
		row.RecipientPhone = r.Phone
		row.RecipientEmail = r.Email
		row.Status = models.StatusQueued
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 200).Error
}

// CompleteBatch settles the queued rows of a batch from its final outcome.
// Rows without a matching result are marked failed.
func (s *HistoryStore) CompleteBatch(ctx context.Context, batchID string, outcome domain.SendOutcome) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var queued []models.MessageLog
		if err := tx.Where("batch_id = ? AND status = ?", batchID, models.StatusQueued).Order("id").Find(&queued).Error; err != nil {
			return err
		}

		used := make([]bool, len(queued))
		for _, r := range outcome.Results {
			idx := -1
			for i, row := range queued {
				if used[i] {
					continue
				}
				if (r.Email != "" && strings.EqualFold(row.RecipientEmail, r.Email)) ||
					(r.Email == "" && r.Phone != "" && row.RecipientPhone == r.Phone) {
					idx = i
					break
				}
			}
			if idx < 0 {
				continue
			}
			used[idx] = true

			status, errMsg := models.StatusSent, ""
			if !r.Success {
				status, errMsg = models.StatusFailed, r.Error
			}
			err := tx.Model(&models.MessageLog{}).Where("id = ?", queued[idx].ID).Updates(map[string]interface{}{
				"status":              status,
				"error_message":       errMsg,
				"provider_message_id": r.MessageID,
				"sent_at":             now,
			}).Error
			if err != nil {
				return err
			}
		}

		var leftover []uint
		for i, row := range queued {
			if !used[i] {
				leftover = append(leftover, row.ID)
			}
		}
		if len(leftover) == 0 {
			return nil
		}
		return tx.Model(&models.MessageLog{}).Where("id IN ?", leftover).Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"error_message": "no result reported for recipient",
			"sent_at":       now,
		}).Error
	})
}

// UpdateStatus applies a provider delivery status to the rows sent with
// providerMessageID and returns how many rows changed
func (s *HistoryStore) UpdateStatus(ctx context.Context, providerMessageID, status, errorMessage string) (int64, error) {
	if providerMessageID == "" {
		return 0, nil
	}
	updates := map[string]interface{}{"status": status}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	res := s.db.WithContext(ctx).Model(&models.MessageLog{}).
		Where("provider_message_id = ?", providerMessageID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// Filter narrows a history listing
type Filter struct {
	Channel string
	Status  string
	BatchID string
	Search  string
	Limit   int
	Offset  int
}

// Page is one page of message logs with the total matching count
type Page struct {
	Total    int64               `json:"total"`
	Messages []models.MessageLog `json:"messages"`
}

func (s *HistoryStore) List(ctx context.Context, f Filter) (Page, error) {
	q := s.db.WithContext(ctx).Model(&models.MessageLog{})
	if f.Channel != "" {
		q = q.Where("channel = ?", f.Channel)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BatchID != "" {
		q = q.Where("batch_id = ?", f.BatchID)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		q = q.Where("LOWER(recipient_name) LIKE ? OR LOWER(recipient_email) LIKE ? OR recipient_phone LIKE ?", like, like, like)
	}

	q = q.Session(&gorm.Session{})

	var page Page
	if err := q.Count(&page.Total).Error; err != nil {
		return Page{}, err
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&page.Messages).Error; err != nil {
		return Page{}, err
	}
	if page.Messages == nil {
		page.Messages = []models.MessageLog{}
	}
	return page, nil
}

// Stats aggregates message logs by status and by channel
type Stats struct {
	Total     int64            `json:"total"`
	ByStatus  map[string]int64 `json:"by_status"`
	ByChannel map[string]int64 `json:"by_channel"`
}

func (s *HistoryStore) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByStatus: map[string]int64{}, ByChannel: map[string]int64{}}
	for _, dim := range []struct {
		column string
		into   map[string]int64
	}{
		{"status", st.ByStatus},
		{"channel", st.ByChannel},
	} {
		var rows []struct {
			Bucket string
			N      int64
		}
		err := s.db.WithContext(ctx).Model(&models.MessageLog{}).
			Select(dim.column + " as bucket, count(*) as n").
			Group(dim.column).
			Scan(&rows).Error
		if err != nil {
			return Stats{}, err
		}
		for _, r := range rows {
			dim.into[r.Bucket] = r.N
		}
	}
	for _, n := range st.ByStatus {
		st.Total += n
	}
	return st, nil
}
