package dispatch

import (
	"context"
	"errors"
	"time"

	"mass-messaging/internal/metrics"
	"mass-messaging/internal/templating"
	"mass-messaging/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChatTemplateSender delivers an approved chat template to many recipients
type ChatTemplateSender interface {
	SendBulkTemplate(ctx context.Context, req models.ChatTemplateRequest) (models.ChatTemplateSendResponse, error)
}

// BulkSender delivers one flat email or free-form chat request
type BulkSender interface {
	SendBulk(ctx context.Context, req models.BulkSendRequest) (models.BulkSendResponse, error)
}

// SMSSender delivers final SMS texts
type SMSSender interface {
	SendSMS(ctx context.Context, req models.SMSSendRequest) (models.SMSSendResponse, error)
}

// Enqueuer hands a bulk job to background workers
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.BulkJob) error
}

// Record is what the history keeps about one dispatch
type Record struct {
	BatchID     string
	Channel     models.Channel
	Subject     string
	Content     string
	Attachments []string
	Outcome     models.SendOutcome

	// Recipients accepted by a queue, not yet attempted
	Queued []models.BulkRecipient
}

// Recorder persists dispatch history
type Recorder interface {
	RecordDispatch(ctx context.Context, rec Record) error
	CompleteBatch(ctx context.Context, batchID string, outcome models.SendOutcome) error
}

// Notifier pushes progress events to connected operators
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

const (
	EventSendStarted = "send_started"
	EventSendOutcome = "send_outcome"
)

type Options struct {
	Chat     ChatTemplateSender
	Bulk     BulkSender
	SMS      SMSSender
	Queue    Enqueuer // nil sends email synchronously
	Recorder Recorder
	Notifier Notifier
	Renderer *templating.Renderer
	Logger   zerolog.Logger
}

// Service builds payloads, calls the channel collaborator and records the
// outcome. It never retries a failed send.
type Service struct {
	chat     ChatTemplateSender
	bulk     BulkSender
	sms      SMSSender
	queue    Enqueuer
	recorder Recorder
	notifier Notifier
	renderer *templating.Renderer
	log      zerolog.Logger
}

func NewService(opts Options) *Service {
	renderer := opts.Renderer
	if renderer == nil {
		renderer = templating.NewRenderer(templating.DefaultBrand)
	}
	return &Service{
		chat:     opts.Chat,
		bulk:     opts.Bulk,
		sms:      opts.SMS,
		queue:    opts.Queue,
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		renderer: renderer,
		log:      opts.Logger,
	}
}

// SendChatTemplate sends an approved chat template. A plan with warnings is
// only sent when confirmed is true.
func (s *Service) SendChatTemplate(ctx context.Context, in ChatTemplateInput, recipients []models.ContactRecord, confirmed bool) (models.SendOutcome, error) {
	plan, err := BuildChatTemplate(in, recipients)
	if err != nil {
		metrics.IncDispatch(string(models.ChannelChat), string(CodeNoEligibleRecipients))
		return models.SendOutcome{Channel: models.ChannelChat, Excluded: len(plan.Excluded)}, err
	}
	if plan.NeedsConfirmation() && !confirmed {
		return models.SendOutcome{Channel: models.ChannelChat, Excluded: len(plan.Excluded)}, ErrMissingRequiredMedia
	}
	if s.chat == nil {
		return models.SendOutcome{}, CollaboratorFailure("whatsapp", errNotConfigured)
	}

	s.notify(EventSendStarted, startedEvent(models.ChannelChat, len(plan.Request.Recipients), len(plan.Excluded)))
	start := time.Now()
	resp, err := s.chat.SendBulkTemplate(ctx, plan.Request)
	metrics.ObserveCollaborator("whatsapp", start, err)
	if err != nil {
		return s.failed(models.ChannelChat, "whatsapp", err)
	}

	outcome := ReduceChatTemplate(plan, resp)
	s.finish(ctx, Record{
		BatchID: uuid.NewString(),
		Channel: models.ChannelChat,
		Subject: plan.Request.TemplateName,
		Content: in.Template.Body,
		Outcome: outcome,
	})
	return outcome, nil
}

// SendBulk sends a free-form email or chat message. Email goes through the
// queue when one is configured and is acknowledged with a batch id.
func (s *Service) SendBulk(ctx context.Context, in BulkInput, recipients []models.ContactRecord) (models.SendOutcome, error) {
	plan, err := BuildBulk(in, recipients, s.renderer)
	if err != nil {
		metrics.IncDispatch(string(in.Channel), string(CodeNoEligibleRecipients))
		return models.SendOutcome{Channel: in.Channel}, err
	}
	s.notify(EventSendStarted, startedEvent(in.Channel, len(plan.Request.Recipients), 0))

	var resp models.BulkSendResponse
	batchID := uuid.NewString()
	switch {
	case in.Channel == models.ChannelEmail && s.queue != nil:
		start := time.Now()
		err = s.queue.Enqueue(ctx, models.BulkJob{BatchID: batchID, Request: plan.Request})
		metrics.ObserveCollaborator("queue", start, err)
		if err != nil {
			return s.failed(in.Channel, "queue", err)
		}
		resp = models.BulkSendResponse{BatchID: batchID, Total: len(plan.Request.Recipients)}
	default:
		if s.bulk == nil {
			return models.SendOutcome{}, CollaboratorFailure("webhook", errNotConfigured)
		}
		start := time.Now()
		resp, err = s.bulk.SendBulk(ctx, plan.Request)
		metrics.ObserveCollaborator("webhook", start, err)
		if err != nil {
			return s.failed(in.Channel, "webhook", err)
		}
		if resp.BatchID != "" {
			batchID = resp.BatchID
		}
	}

	outcome := ReduceBulk(plan, resp)
	rec := Record{
		BatchID:     batchID,
		Channel:     in.Channel,
		Subject:     in.Subject,
		Content:     in.Content,
		Attachments: plan.Request.Attachments,
		Outcome:     outcome,
	}
	if outcome.Async {
		rec.Queued = plan.Request.Recipients
	}
	s.finish(ctx, rec)
	return outcome, nil
}

// SendSMS personalizes content per recipient and sends it
func (s *Service) SendSMS(ctx context.Context, content string, recipients []models.ContactRecord, custom templating.CustomValues) (models.SendOutcome, error) {
	plan, err := BuildSMS(content, recipients, custom, s.renderer)
	if err != nil {
		metrics.IncDispatch(string(models.ChannelSMS), string(CodeNoEligibleRecipients))
		return models.SendOutcome{Channel: models.ChannelSMS, Excluded: len(plan.Excluded)}, err
	}
	if s.sms == nil {
		return models.SendOutcome{}, CollaboratorFailure("sms", errNotConfigured)
	}

	s.notify(EventSendStarted, startedEvent(models.ChannelSMS, len(plan.Request.Recipients), len(plan.Excluded)))
	start := time.Now()
	resp, err := s.sms.SendSMS(ctx, plan.Request)
	metrics.ObserveCollaborator("sms", start, err)
	if err != nil {
		return s.failed(models.ChannelSMS, "sms", err)
	}

	outcome := ReduceSMS(plan, resp)
	rec := Record{
		BatchID: uuid.NewString(),
		Channel: models.ChannelSMS,
		Content: content,
		Outcome: outcome,
	}
	if !resp.Success {
		// The gateway refused the batch: keep the failed rows, answer with one error.
		s.record(ctx, rec)
		reason := resp.Error
		if reason == "" {
			reason = "gateway rejected the messages"
		}
		_, err := s.failed(models.ChannelSMS, "sms", errors.New(reason))
		return outcome, err
	}
	s.finish(ctx, rec)
	return outcome, nil
}

// ProcessJob delivers a queued bulk job and completes its history rows
func (s *Service) ProcessJob(ctx context.Context, job models.BulkJob) (models.SendOutcome, error) {
	if s.bulk == nil {
		return models.SendOutcome{}, CollaboratorFailure("webhook", errNotConfigured)
	}
	req := job.Request
	req.BatchID = job.BatchID
	start := time.Now()
	resp, err := s.bulk.SendBulk(ctx, req)
	metrics.ObserveCollaborator("webhook", start, err)
	if err != nil {
		derr := CollaboratorFailure("webhook", err)
		outcome := failedBatch(req, derr.Error())
		outcome.BatchID = job.BatchID
		s.complete(ctx, job.BatchID, outcome)
		return outcome, derr
	}
	// A webhook that itself answers asynchronously leaves the rows queued.
	resp.BatchID = ""

	outcome := ReduceBulk(BulkPlan{Request: req}, resp)
	outcome.BatchID = job.BatchID
	s.complete(ctx, job.BatchID, outcome)
	return outcome, nil
}

func (s *Service) complete(ctx context.Context, batchID string, outcome models.SendOutcome) {
	if s.recorder != nil {
		if err := s.recorder.CompleteBatch(ctx, batchID, outcome); err != nil {
			s.log.Warn().Err(err).Str("batch_id", batchID).Msg("failed to complete batch history")
		}
	}
	s.observe(outcome)
	s.notify(EventSendOutcome, outcome)
}

// failedBatch marks every recipient of req as failed with reason
func failedBatch(req models.BulkSendRequest, reason string) models.SendOutcome {
	out := models.SendOutcome{
		Channel: req.Channel,
		Total:   len(req.Recipients),
		Failed:  len(req.Recipients),
		Status:  models.OutcomeFailed,
		Results: make([]models.RecipientResult, 0, len(req.Recipients)),
	}
	for _, r := range req.Recipients {
		out.Results = append(out.Results, models.RecipientResult{Recipient: r.Name, Phone: r.Phone, Email: r.Email, Error: reason})
	}
	return out
}

func (s *Service) failed(ch models.Channel, collaborator string, err error) (models.SendOutcome, error) {
	metrics.IncDispatch(string(ch), "error")
	s.log.Error().Err(err).Str("channel", string(ch)).Str("collaborator", collaborator).Msg("dispatch failed")
	derr := CollaboratorFailure(collaborator, err)
	s.notify(EventSendOutcome, map[string]interface{}{"channel": ch, "error": derr.Error()})
	return models.SendOutcome{}, derr
}

func (s *Service) record(ctx context.Context, rec Record) {
	if s.recorder != nil {
		if err := s.recorder.RecordDispatch(ctx, rec); err != nil {
			s.log.Warn().Err(err).Str("batch_id", rec.BatchID).Msg("failed to record dispatch history")
		}
	}
}

func (s *Service) finish(ctx context.Context, rec Record) {
	s.record(ctx, rec)
	s.observe(rec.Outcome)
	s.log.Info().
		Str("channel", string(rec.Outcome.Channel)).
		Str("status", string(rec.Outcome.Status)).
		Int("total", rec.Outcome.Total).
		Int("sent", rec.Outcome.Sent).
		Int("failed", rec.Outcome.Failed).
		Int("excluded", rec.Outcome.Excluded).
		Str("batch_id", rec.BatchID).
		Msg("dispatch finished")
	s.notify(EventSendOutcome, rec.Outcome)
}

func (s *Service) observe(o models.SendOutcome) {
	ch := string(o.Channel)
	metrics.IncDispatch(ch, string(o.Status))
	metrics.AddRecipients(ch, "sent", o.Sent)
	metrics.AddRecipients(ch, "failed", o.Failed)
	metrics.AddRecipients(ch, "excluded", o.Excluded)
	if o.Async {
		metrics.AddRecipients(ch, "queued", o.Total-o.Failed)
	}
}

func (s *Service) notify(event string, data interface{}) {
	if s.notifier != nil {
		s.notifier.BroadcastEvent(event, data)
	}
}

func startedEvent(ch models.Channel, recipients, excluded int) map[string]interface{} {
	return map[string]interface{}{
		"channel":    ch,
		"recipients": recipients,
		"excluded":   excluded,
	}
}
