package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mass-messaging/internal/metrics"
	"mass-messaging/pkg/models"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const amqpQueue = "bulk.email.jobs"

var errNacked = errors.New("broker did not confirm the job")

type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      zerolog.Logger
}

func NewAMQPPublisher(url, exchange string, log zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		log:      log.With().Str("component", "queue").Str("driver", DriverAMQP).Logger(),
	}, nil
}

// Enqueue publishes job as a persistent message and waits for the broker
// confirmation
func (p *AMQPPublisher) Enqueue(ctx context.Context, job models.BulkJob) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if err := ch.Confirm(false); err != nil {
		return err
	}

	env, body, err := encode(job)
	if err != nil {
		return err
	}
	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, JobType, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     env.Meta.ID,
			CorrelationId: job.BatchID,
			Type:          JobType,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err == nil {
		var ok bool
		ok, err = confirm.WaitContext(ctx)
		if err == nil && !ok {
			err = errNacked
		}
	}
	if err != nil {
		metrics.IncQueueJob(DriverAMQP, "publish_failed")
		return fmt.Errorf("publish job: %w", err)
	}

	metrics.IncQueueJob(DriverAMQP, "published")
	p.log.Info().Str("batch_id", job.BatchID).Str("exchange", p.exchange).Msg("job published")
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

type AMQPConsumer struct {
	conn    *amqp091.Connection
	ch      *amqp091.Channel
	workers int
	log     zerolog.Logger
}

func NewAMQPConsumer(url, exchange string, workers int, log zerolog.Logger) (*AMQPConsumer, error) {
	if workers < 1 {
		workers = 1
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	setup := func() error {
		if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.Qos(workers, 0, false); err != nil {
			return err
		}
		q, err := ch.QueueDeclare(amqpQueue, true, false, false, false, nil)
		if err != nil {
			return err
		}
		return ch.QueueBind(q.Name, JobType, exchange, false, nil)
	}
	if err := setup(); err != nil {
		conn.Close()
		return nil, err
	}

	return &AMQPConsumer{
		conn:    conn,
		ch:      ch,
		workers: workers,
		log:     log.With().Str("component", "queue").Str("driver", DriverAMQP).Logger(),
	}, nil
}

// Run consumes jobs with a pool of workers until ctx is cancelled or the
// broker closes the channel
func (c *AMQPConsumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, amqpQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.log.Info().Int("workers", c.workers).Str("queue", amqpQueue).Msg("worker started, waiting for bulk jobs")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					if err := process(ctx, DriverAMQP, d.Body, handler, c.log); err != nil {
						_ = d.Nack(false, false)
						continue
					}
					_ = d.Ack(false)
				}
			}
		})
	}
	return g.Wait()
}

func (c *AMQPConsumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}
