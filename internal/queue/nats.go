package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mass-messaging/internal/metrics"
	"mass-messaging/pkg/models"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	StreamName   = "BULK"
	StreamSubj   = "BULK.*"
	SubjectEmail = "BULK.email"
	ConsumerName = "BULK_WORKER"

	// Webhook calls for large batches can take minutes
	natsAckWait  = 15 * time.Minute
	natsFetchMax = 10 * time.Second
)

// SetupNATS connects to NATS and makes sure the work-queue stream exists
func SetupNATS(url string, log zerolog.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name("mass-messaging"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{StreamSubj},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn().Err(err).Str("stream", StreamName).Msg("could not create stream")
	}
	return nc, js, nil
}

type NATSPublisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log zerolog.Logger
}

func NewNATSPublisher(url string, log zerolog.Logger) (*NATSPublisher, error) {
	l := log.With().Str("component", "queue").Str("driver", DriverNATS).Logger()
	nc, js, err := SetupNATS(url, l)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, js: js, log: l}, nil
}

// Enqueue publishes job. The batch id is the message id, so a repeated
// publish of the same batch is dropped by the stream.
func (p *NATSPublisher) Enqueue(ctx context.Context, job models.BulkJob) error {
	env, body, err := encode(job)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(SubjectEmail, body, nats.Context(ctx), nats.MsgId(job.BatchID)); err != nil {
		metrics.IncQueueJob(DriverNATS, "publish_failed")
		return fmt.Errorf("publish job: %w", err)
	}
	metrics.IncQueueJob(DriverNATS, "published")
	p.log.Info().Str("batch_id", job.BatchID).Str("message_id", env.Meta.ID).Msg("job published")
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

type NATSConsumer struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	workers int
	log     zerolog.Logger
}

func NewNATSConsumer(url string, workers int, log zerolog.Logger) (*NATSConsumer, error) {
	l := log.With().Str("component", "queue").Str("driver", DriverNATS).Logger()
	nc, js, err := SetupNATS(url, l)
	if err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe(SubjectEmail, ConsumerName, nats.AckWait(natsAckWait), nats.MaxDeliver(1))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	return &NATSConsumer{nc: nc, sub: sub, workers: workers, log: l}, nil
}

// Run fetches jobs with one puller per worker until ctx is cancelled
func (c *NATSConsumer) Run(ctx context.Context, handler Handler) error {
	c.log.Info().Int("workers", c.workers).Msg("worker started, waiting for bulk jobs")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				fctx, cancel := context.WithTimeout(ctx, natsFetchMax)
				msgs, err := c.sub.Fetch(1, nats.Context(fctx))
				cancel()
				if err != nil {
					if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) || ctx.Err() != nil {
						continue
					}
					c.log.Warn().Err(err).Msg("fetch failed")
					time.Sleep(2 * time.Second)
					continue
				}
				for _, msg := range msgs {
					if err := process(ctx, DriverNATS, msg.Data, handler, c.log); err != nil {
						_ = msg.Term()
						continue
					}
					_ = msg.Ack()
				}
			}
		})
	}
	return g.Wait()
}

func (c *NATSConsumer) Close() error {
	return c.nc.Drain()
}
