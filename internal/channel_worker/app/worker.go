package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/postcaster/golang_services/internal/channel_worker/channel"
	"github.com/postcaster/golang_services/internal/content/domain"
)

// State is where one message got to in the primary-then-reply sequence.
type State string

const (
	StateReceived      State = "RECEIVED"
	StatePrimaryPosted State = "PRIMARY_POSTED"
	StateReplyPosted   State = "REPLY_POSTED"
	StateFailed        State = "FAILED"
)

// Stage names the step a failed message stopped at.
type Stage string

const (
	StagePrimary Stage = "primary"
	StageReply   Stage = "reply"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Result is the outcome of one message. Detail carries the failed stage and
// is empty on success. PrimaryID is set whenever the primary post exists,
// including when the reply failed.
type Result struct {
	Key       string
	Outcome   string
	Detail    Stage
	State     State
	PrimaryID string
	ReplyID   string
	Err       error
}

// Failed reports whether the message ended in FAILED.
func (r Result) Failed() bool { return r.State == StateFailed }

// IsDeserialization reports whether r failed because its payload can never be processed.
func (r Result) IsDeserialization() bool {
	var desErr *domain.DeserializationError
	return errors.As(r.Err, &desErr)
}

// Worker publishes fan-out messages to one channel: a primary post with the
// message body, then a reply under it carrying the footer.
//
// The worker does not deduplicate. A message delivered twice produces two
// primary posts and two replies.
type Worker struct {
	channel     channel.Channel
	footer      string
	concurrency int
	logger      *slog.Logger
}

func NewWorker(ch channel.Channel, footer string, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		channel:     ch,
		footer:      footer,
		concurrency: concurrency,
		logger:      logger.With("component", "channel_worker", "channel", ch.Name()),
	}
}

// Process runs the state machine for one raw fan-out payload.
func (w *Worker) Process(ctx context.Context, data []byte) Result {
	res := Result{State: StateReceived}

	msg, err := domain.DecodeFanoutMessage(data)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to deserialize fan-out message", "error", err, "data_len", len(data))
		return w.fail(res, StagePrimary, err)
	}
	res.Key = msg.Key
	logger := w.logger.With("key", msg.Key)

	primaryID, err := w.call(ctx, StagePrimary, func() (string, error) {
		return w.channel.CreatePost(ctx, msg.Body)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Primary post failed", "error", err)
		return w.fail(res, StagePrimary, err)
	}
	res.State, res.PrimaryID = StatePrimaryPosted, primaryID
	logger.InfoContext(ctx, "Primary post created", "post_id", primaryID)

	replyID, err := w.call(ctx, StageReply, func() (string, error) {
		return w.channel.CreateReply(ctx, primaryID, w.footer)
	})
	if err != nil {
		logger.ErrorContext(ctx, "Reply failed, primary post stays", "error", err, "post_id", primaryID)
		return w.fail(res, StageReply, err)
	}
	res.State, res.ReplyID, res.Outcome = StateReplyPosted, replyID, OutcomeSuccess
	logger.InfoContext(ctx, "Reply created", "post_id", primaryID, "reply_id", replyID)

	messagesProcessedCounter.WithLabelValues(w.channel.Name(), OutcomeSuccess, "").Inc()
	return res
}

func (w *Worker) call(ctx context.Context, stage Stage, fn func() (string, error)) (string, error) {
	start := time.Now()
	id, err := fn()
	channelCallDurationHist.WithLabelValues(w.channel.Name(), string(stage)).Observe(time.Since(start).Seconds())
	if err == nil && id == "" {
		err = channel.ErrEmptyPostID
	}
	if err != nil {
		return "", &domain.ChannelError{Channel: w.channel.Name(), Stage: string(stage), Err: err}
	}
	return id, nil
}

func (w *Worker) fail(res Result, stage Stage, err error) Result {
	res.State, res.Outcome, res.Detail, res.Err = StateFailed, OutcomeFailure, stage, err
	messagesProcessedCounter.WithLabelValues(w.channel.Name(), OutcomeFailure, string(stage)).Inc()
	return res
}

// ProcessBatch processes every payload independently, up to the worker's
// concurrency at a time, and returns results aligned with the input. A
// failed message never stops the others.
func (w *Worker) ProcessBatch(ctx context.Context, batch [][]byte) []Result {
	results := make([]Result, len(batch))
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for i, data := range batch {
		i, data := i, data
		g.Go(func() error {
			results[i] = w.Process(ctx, data)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	w.logger.InfoContext(ctx, "Batch processed", "size", len(batch), "failed", failed)
	return results
}
