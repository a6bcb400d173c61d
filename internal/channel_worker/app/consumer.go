package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Delivery is one bus message awaiting settlement. jetstream.Msg satisfies it.
type Delivery interface {
	Data() []byte
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Nak() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// BatchFetcher pulls deliveries from a durable consumer. jetstream.Consumer satisfies it.
type BatchFetcher interface {
	Fetch(batch int, opts ...jetstream.FetchOpt) (jetstream.MessageBatch, error)
}

// DeadLetterPublisher parks deliveries that ran out of attempts.
// messagebroker.NATSClient satisfies it.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// Action is how a delivery is settled with the bus.
type Action string

const (
	ActionAck  Action = "ack"
	ActionNak  Action = "nak"
	ActionTerm Action = "term"
	// ActionDeadLetter is a Nak on the last allowed delivery: the payload is
	// republished on the dead-letter subject and the delivery is terminated.
	ActionDeadLetter Action = "dead_letter"
)

// SettleAction maps a worker result to a bus acknowledgement.
//
// A reply failure is acked because the primary post already exists and only
// the whole message could be redelivered. A payload that cannot be decoded is
// terminated. Any other primary failure is redelivered.
func SettleAction(r Result) Action {
	switch {
	case !r.Failed():
		return ActionAck
	case r.Detail == StageReply:
		return ActionAck
	case r.IsDeserialization():
		return ActionTerm
	default:
		return ActionNak
	}
}

// RetryPolicy spaces out redeliveries of failed primary posts. Delays double
// from BaseDelay up to MaxDelay.
type RetryPolicy struct {
	MaxDeliver int // matches the durable consumer's MaxDeliver; 0 means unlimited
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Delay returns the wait before the redelivery that follows attempt
// numDelivered (1-based).
func (p RetryPolicy) Delay(numDelivered uint64) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := uint64(1); i < numDelivered; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether numDelivered was the last attempt the bus allows.
func (p RetryPolicy) Exhausted(numDelivered uint64) bool {
	return p.MaxDeliver > 0 && numDelivered >= uint64(p.MaxDeliver)
}

// ConsumerOptions configures a Consumer.
type ConsumerOptions struct {
	BatchSize int
	FetchWait time.Duration
	Retry     RetryPolicy

	DeadLetter        DeadLetterPublisher
	DeadLetterSubject string
}

// Consumer feeds batches from a durable bus consumer through a Worker and
// settles each delivery according to its own result.
type Consumer struct {
	worker  *Worker
	fetcher BatchFetcher
	channel string
	opts    ConsumerOptions
	logger  *slog.Logger
}

func NewConsumer(worker *Worker, fetcher BatchFetcher, opts ConsumerOptions, logger *slog.Logger) *Consumer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.FetchWait <= 0 {
		opts.FetchWait = 5 * time.Second
	}
	return &Consumer{
		worker:  worker,
		fetcher: fetcher,
		channel: worker.channel.Name(),
		opts:    opts,
		logger:  logger.With("component", "bus_consumer", "channel", worker.channel.Name()),
	}
}

// HandleBatch processes deliveries and settles each one. Results are aligned
// with deliveries.
func (c *Consumer) HandleBatch(ctx context.Context, deliveries []Delivery) []Result {
	payloads := make([][]byte, len(deliveries))
	for i, d := range deliveries {
		payloads[i] = d.Data()
	}

	results := c.worker.ProcessBatch(ctx, payloads)
	for i, d := range deliveries {
		action, err := c.settle(ctx, d, results[i])
		deliveriesSettledCounter.WithLabelValues(c.channel, string(action)).Inc()
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to settle delivery", "error", err, "action", action, "key", results[i].Key)
			continue
		}
		c.logger.DebugContext(ctx, "Delivery settled", "action", action, "key", results[i].Key, "state", results[i].State)
	}
	return results
}

func (c *Consumer) settle(ctx context.Context, d Delivery, res Result) (Action, error) {
	action := SettleAction(res)
	switch action {
	case ActionAck:
		return action, d.Ack()
	case ActionTerm:
		return action, d.Term()
	}

	attempt := uint64(1)
	var streamSeq uint64
	if meta, err := d.Metadata(); err == nil {
		attempt, streamSeq = meta.NumDelivered, meta.Sequence.Stream
	}

	if !c.opts.Retry.Exhausted(attempt) {
		delay := c.opts.Retry.Delay(attempt)
		c.logger.WarnContext(ctx, "Primary post failed, redelivering", "key", res.Key, "attempt", attempt, "delay", delay, "error", res.Err)
		return ActionNak, d.NakWithDelay(delay)
	}

	c.logger.ErrorContext(ctx, "Primary post failed on final delivery, moving to dead letter",
		"key", res.Key, "attempt", attempt, "subject", c.opts.DeadLetterSubject, "error", res.Err)
	if c.opts.DeadLetter == nil {
		return ActionDeadLetter, d.Term()
	}
	msgID := fmt.Sprintf("%s-%d", c.channel, streamSeq)
	if err := c.opts.DeadLetter.Publish(ctx, c.opts.DeadLetterSubject, d.Data(), msgID); err != nil {
		// Without a dead-letter copy the delivery stays unacked so it remains
		// visible on the consumer's pending list.
		return ActionDeadLetter, fmt.Errorf("publish dead letter: %w", err)
	}
	return ActionDeadLetter, d.Term()
}

// Run fetches and handles batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "Starting bus consumer", "batch_size", c.opts.BatchSize, "fetch_wait", c.opts.FetchWait)
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Bus consumer stopping")
			return nil
		default:
		}

		deliveries, err := c.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfoContext(ctx, "Bus consumer stopping")
				return nil
			}
			c.logger.ErrorContext(ctx, "Fetch from bus failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if len(deliveries) == 0 {
			continue
		}
		c.HandleBatch(ctx, deliveries)
	}
}

// fetch collects one batch. Fetch itself takes no context, so the wait is
// abandoned on cancellation and anything already received is handed back to
// the bus for prompt redelivery.
func (c *Consumer) fetch(ctx context.Context) ([]Delivery, error) {
	batch, err := c.fetcher.Fetch(c.opts.BatchSize, jetstream.FetchMaxWait(c.opts.FetchWait))
	if err != nil {
		return nil, err
	}
	var deliveries []Delivery
	msgs := batch.Messages()
collect:
	for {
		select {
		case <-ctx.Done():
			for _, d := range deliveries {
				if err := d.Nak(); err != nil {
					c.logger.Warn("Failed to release delivery on shutdown", "error", err)
				}
			}
			return nil, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				break collect
			}
			deliveries = append(deliveries, msg)
		}
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
		if len(deliveries) == 0 {
			return nil, err
		}
		c.logger.Warn("Batch ended early", "error", err, "received", len(deliveries))
	}
	return deliveries, nil
}
