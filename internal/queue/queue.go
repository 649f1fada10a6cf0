package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mass-messaging/internal/metrics"
	"mass-messaging/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DriverNone = "none"
	DriverNATS = "nats"
	DriverAMQP = "amqp"

	JobType = "bulk.email"
)

var ErrUnknownDriver = errors.New("unknown queue driver")

// Handler processes one queued bulk job. A returned error marks the job as
// failed; jobs are never redelivered.
type Handler func(ctx context.Context, job models.BulkJob) error

// Publisher hands bulk jobs to the broker
type Publisher interface {
	Enqueue(ctx context.Context, job models.BulkJob) error
	Close() error
}

// Consumer feeds queued jobs to a handler until ctx is cancelled
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// Meta identifies a queued message
type Meta struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Time time.Time `json:"time"`
}

// Envelope is the wire form of a queued job
type Envelope struct {
	Meta Meta           `json:"meta"`
	Data models.BulkJob `json:"data"`
}

func encode(job models.BulkJob) (Envelope, []byte, error) {
	env := Envelope{
		Meta: Meta{ID: uuid.NewString(), Type: JobType, Time: time.Now().UTC()},
		Data: job,
	}
	body, err := json.Marshal(env)
	return env, body, err
}

func decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode job: %w", err)
	}
	if env.Meta.Type != JobType {
		return Envelope{}, fmt.Errorf("decode job: unexpected type %q", env.Meta.Type)
	}
	if env.Data.BatchID == "" {
		return Envelope{}, errors.New("decode job: missing batch id")
	}
	return env, nil
}

// process decodes body and runs handler. Every outcome is acknowledged:
// malformed jobs are discarded and failed jobs are recorded by the handler.
func process(ctx context.Context, driver string, body []byte, handler Handler, log zerolog.Logger) error {
	env, err := decode(body)
	if err != nil {
		metrics.IncQueueJob(driver, "discarded")
		log.Error().Err(err).Msg("discarding malformed job")
		return err
	}

	jl := log.With().Str("batch_id", env.Data.BatchID).Str("message_id", env.Meta.ID).Logger()
	jl.Info().Int("recipients", len(env.Data.Request.Recipients)).Msg("processing bulk job")
	if err := handler(ctx, env.Data); err != nil {
		metrics.IncQueueJob(driver, "failed")
		jl.Error().Err(err).Msg("bulk job failed")
		return err
	}
	metrics.IncQueueJob(driver, "processed")
	return nil
}

// NewPublisher connects the publisher selected by driver
func NewPublisher(driver, natsURL, amqpURL, exchange string, log zerolog.Logger) (Publisher, error) {
	var (
		p   Publisher
		err error
	)
	switch driver {
	case DriverNATS:
		p, err = NewNATSPublisher(natsURL, log)
	case DriverAMQP:
		p, err = NewAMQPPublisher(amqpURL, exchange, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewConsumer connects the consumer selected by driver
func NewConsumer(driver, natsURL, amqpURL, exchange string, workers int, log zerolog.Logger) (Consumer, error) {
	var (
		c   Consumer
		err error
	)
	switch driver {
	case DriverNATS:
		c, err = NewNATSConsumer(natsURL, workers, log)
	case DriverAMQP:
		c, err = NewAMQPConsumer(amqpURL, exchange, workers, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
