package dispatch

import (
	"strings"

	"mass-messaging/pkg/models"
)

const errNoResult = "no result reported for recipient"

type addressee struct {
	name, phone, email string
}

// ReduceChatTemplate folds the chat collaborator response into a SendOutcome
func ReduceChatTemplate(plan ChatTemplatePlan, resp models.ChatTemplateSendResponse) models.SendOutcome {
	sent := make([]addressee, 0, len(plan.Request.Recipients))
	for _, r := range plan.Request.Recipients {
		sent = append(sent, addressee{name: r.Name, phone: r.Phone, email: r.Email})
	}
	out := tally(models.ChannelChat, sent, resp.Messages, false, resp.Sent, len(resp.Messages) == 0)
	out.Excluded = len(plan.Excluded)
	return out
}

// ReduceBulk folds either a synchronous tally or a batch acknowledgement
func ReduceBulk(plan BulkPlan, resp models.BulkSendResponse) models.SendOutcome {
	if resp.BatchID != "" {
		return models.SendOutcome{
			Channel: plan.Request.Channel,
			Total:   plan.Total(),
			Failed:  len(plan.Unreachable),
			BatchID: resp.BatchID,
			Async:   true,
			Status:  models.OutcomeAccepted,
			Results: append([]models.RecipientResult{}, plan.Unreachable...),
		}
	}

	sent := make([]addressee, 0, len(plan.Request.Recipients))
	for _, r := range plan.Request.Recipients {
		sent = append(sent, addressee{name: r.Name, phone: r.Phone, email: r.Email})
	}
	byEmail := plan.Request.Channel == models.ChannelEmail
	out := tally(plan.Request.Channel, sent, resp.Messages, byEmail, resp.Sent, len(resp.Messages) == 0)
	return withUnreachable(out, plan.Unreachable)
}

// ReduceSMS folds the SMS gateway response. A bare success flag without
// counts means every message was accepted.
func ReduceSMS(plan SMSPlan, resp models.SMSSendResponse) models.SendOutcome {
	sent := make([]addressee, 0, len(plan.Request.Recipients))
	for _, r := range plan.Request.Recipients {
		sent = append(sent, addressee{name: r.Name, phone: r.Phone})
	}
	reported := resp.Sent
	if resp.Success && resp.Sent == 0 && resp.Failed == 0 {
		reported = len(sent)
	}
	if !resp.Success && resp.Sent == 0 {
		reported = 0
	}
	out := tally(models.ChannelSMS, sent, resp.Messages, false, reported, len(resp.Messages) == 0)
	if !resp.Success && resp.Error != "" {
		for i := range out.Results {
			if out.Results[i].Error == "" || out.Results[i].Error == errNoResult {
				out.Results[i].Error = resp.Error
			}
		}
	}
	out.Excluded = len(plan.Excluded)
	return out
}

// tally accounts for every recipient exactly once. With per-recipient results
// each recipient is matched by address, then by position; recipients with no
// matching result count as failed. Without results the reported sent count is
// trusted, capped at the number of recipients.
func tally(ch models.Channel, recipients []addressee, reported []models.RecipientResult, byEmail bool, reportedSent int, countsOnly bool) models.SendOutcome {
	out := models.SendOutcome{Channel: ch, Total: len(recipients), Results: []models.RecipientResult{}}

	if countsOnly {
		out.Sent = clamp(reportedSent, 0, out.Total)
		out.Failed = out.Total - out.Sent
		for i, r := range recipients {
			res := models.RecipientResult{Recipient: r.name, Phone: r.phone, Email: r.email, Success: i < out.Sent}
			if !res.Success {
				res.Error = errNoResult
			}
			out.Results = append(out.Results, res)
		}
		out.Status = statusOf(out.Sent, out.Total)
		return out
	}

	used := make([]bool, len(reported))
	next := 0
	for _, r := range recipients {
		idx := -1
		for j, rep := range reported {
			if !used[j] && sameAddress(r, rep, byEmail) {
				idx = j
				break
			}
		}
		if idx < 0 {
			for next < len(reported) && (used[next] || hasAddress(reported[next], byEmail)) {
				next++
			}
			if next < len(reported) {
				idx = next
			}
		}

		res := models.RecipientResult{Recipient: r.name, Phone: r.phone, Email: r.email, Error: errNoResult}
		if idx >= 0 {
			used[idx] = true
			rep := reported[idx]
			res.Success = rep.Success
			res.MessageID = rep.MessageID
			res.Error = rep.Error
			if !rep.Success && res.Error == "" {
				res.Error = "delivery failed"
			}
		}
		if res.Success {
			out.Sent++
		}
		out.Results = append(out.Results, res)
	}
	out.Failed = out.Total - out.Sent
	out.Status = statusOf(out.Sent, out.Total)
	return out
}

func withUnreachable(out models.SendOutcome, unreachable []models.RecipientResult) models.SendOutcome {
	if len(unreachable) == 0 {
		return out
	}
	out.Total += len(unreachable)
	out.Failed += len(unreachable)
	out.Results = append(out.Results, unreachable...)
	out.Status = statusOf(out.Sent, out.Total)
	return out
}

func statusOf(sent, total int) models.OutcomeStatus {
	switch {
	case total == 0 || sent == 0:
		return models.OutcomeFailed
	case sent == total:
		return models.OutcomeSuccess
	default:
		return models.OutcomePartial
	}
}

func sameAddress(r addressee, rep models.RecipientResult, byEmail bool) bool {
	if byEmail {
		return r.email != "" && strings.EqualFold(strings.TrimSpace(r.email), strings.TrimSpace(rep.Email))
	}
	return samePhone(r.phone, rep.Phone)
}

func hasAddress(rep models.RecipientResult, byEmail bool) bool {
	if byEmail {
		return rep.Email != ""
	}
	return rep.Phone != ""
}

// samePhone compares digits only; a number with country code matches the
// same number without it.
func samePhone(a, b string) bool {
	da, db := digits(a), digits(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	if len(da) < len(db) {
		da, db = db, da
	}
	return len(db) >= 10 && strings.HasSuffix(da, db)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
