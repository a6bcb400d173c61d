package app

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// Publisher is the bus side of the dispatcher. msgID is a dedupe hint for
// brokers that support it and may be ignored.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, msgID string) error
}

// OutcomeKind classifies one dispatcher invocation.
type OutcomeKind string

const (
	OutcomeNothingToSend OutcomeKind = "nothing_to_send"
	OutcomeDispatched    OutcomeKind = "dispatched"
	OutcomeFailed        OutcomeKind = "failed"
)

// Outcome reports what one invocation did. Deleted is false for recurring
// scheduled items and whenever the publish or delete did not succeed.
type Outcome struct {
	Kind       OutcomeKind
	Key        string
	Collection domain.Collection
	Deleted    bool
	Err        error
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeNothingToSend:
		return "nothing to send"
	case OutcomeDispatched:
		if o.Deleted {
			return "dispatched " + o.Key + " from " + string(o.Collection) + " and deleted it"
		}
		return "dispatched " + o.Key + " from " + string(o.Collection)
	default:
		if o.Err != nil {
			return "failed: " + o.Err.Error()
		}
		return "failed"
	}
}

// FanoutMsgID derives a stable broker dedupe id for item within the hour of
// now. The next hour's firing of a recurring item gets a new id. A retried
// invocation collapses onto the earlier message only while that message is
// still inside the stream's duplicate window (NATS_DUPLICATE_WINDOW, one hour
// by default).
func FanoutMsgID(item domain.ContentItem, now time.Time) string {
	h := sha3.New256()
	h.Write([]byte(item.Key))
	h.Write([]byte{0})
	h.Write([]byte(item.Body))
	h.Write([]byte{0})
	h.Write([]byte(now.UTC().Truncate(time.Hour).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// Dispatcher publishes a selection to the fan-out subject and then removes
// it from its collection when the selection asks for that.
type Dispatcher struct {
	store     domain.ContentStore
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

func NewDispatcher(store domain.ContentStore, publisher Publisher, subject string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		publisher: publisher,
		subject:   subject,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Dispatch never deletes an item whose publish failed. A delete failure
// after a successful publish is reported as failed but the published message
// is not retracted, so the item may be sent again on a later invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, sel *domain.Selection, now time.Time) Outcome {
	if sel == nil {
		d.logger.InfoContext(ctx, "Nothing to dispatch")
		return Outcome{Kind: OutcomeNothingToSend}
	}

	out := Outcome{Key: sel.Item.Key, Collection: sel.Source}
	payload, err := domain.NewFanoutMessage(sel.Item).Encode()
	if err != nil {
		out.Kind, out.Err = OutcomeFailed, err
		return out
	}

	if err := d.publisher.Publish(ctx, d.subject, payload, FanoutMsgID(sel.Item, now)); err != nil {
		var busErr *domain.BusError
		if !errors.As(err, &busErr) {
			err = &domain.BusError{Subject: d.subject, Err: err}
		}
		d.logger.ErrorContext(ctx, "Failed to publish post", "error", err, "key", sel.Item.Key, "collection", sel.Source)
		out.Kind, out.Err = OutcomeFailed, err
		return out
	}
	d.logger.InfoContext(ctx, "Post published", "key", sel.Item.Key, "collection", sel.Source, "subject", d.subject)

	if !sel.DeleteAfterDispatch {
		d.logger.InfoContext(ctx, "Recurring post kept in store", "key", sel.Item.Key)
		out.Kind = OutcomeDispatched
		return out
	}

	if err := d.store.Delete(ctx, sel.Source, sel.Item.Key); err != nil {
		d.logger.ErrorContext(ctx, "Post published but could not be deleted", "error", err, "key", sel.Item.Key, "collection", sel.Source)
		out.Kind, out.Err = OutcomeFailed, err
		return out
	}
	out.Kind, out.Deleted = OutcomeDispatched, true
	return out
}
