package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// Selector picks at most one item to publish per invocation.
//
// Scheduled items whose fire hour equals the current hour win; among several
// matches the first one in scan order is taken, and scan order is whatever
// the store returns, so the choice is deliberately nondeterministic. With no
// match the first record of a limit-1 backlog scan is taken.
//
// An item scheduled for hour H fires on every invocation during H. With an
// hourly trigger that is once; a faster trigger fires it repeatedly.
type Selector struct {
	store  domain.ContentStore
	logger *slog.Logger
}

func NewSelector(store domain.ContentStore, logger *slog.Logger) *Selector {
	return &Selector{store: store, logger: logger.With("component", "selector")}
}

// Select returns nil when neither backlog has anything to send. A failed
// scheduled scan degrades to the backlog fallback; a failed backlog scan is
// returned as an error.
func (s *Selector) Select(ctx context.Context, now time.Time) (*domain.Selection, error) {
	if item, ok := s.matchScheduled(ctx, now); ok {
		s.logger.InfoContext(ctx, "Selected scheduled post", "key", item.Key, "recurring", item.Recurring, "hour", now.Hour())
		return domain.SelectScheduled(item), nil
	}

	records, err := s.store.ScanLimit(ctx, domain.CollectionImmediate, 1)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to scan backlog", "error", err)
		return nil, fmt.Errorf("scan backlog: %w", err)
	}
	if len(records) == 0 {
		s.logger.InfoContext(ctx, "Backlog is empty and no scheduled post matches", "hour", now.Hour())
		return nil, nil
	}

	item, err := domain.DecodeContentItem(records[0])
	if err != nil {
		s.logger.ErrorContext(ctx, "Backlog record could not be decoded", "error", err)
		return nil, &domain.StoreError{Op: "scan_limit", Collection: domain.CollectionImmediate, Err: err}
	}
	s.logger.InfoContext(ctx, "Selected backlog post", "key", item.Key)
	return domain.SelectImmediate(item), nil
}

func (s *Selector) matchScheduled(ctx context.Context, now time.Time) (domain.ScheduledItem, bool) {
	records, err := s.store.ScanAll(ctx, domain.CollectionScheduled)
	if err != nil {
		scheduledScanFailuresCounter.Inc()
		s.logger.WarnContext(ctx, "Scheduled scan failed, falling back to backlog", "error", err)
		return domain.ScheduledItem{}, false
	}

	s.logger.DebugContext(ctx, "Looking through scheduled posts", "count", len(records), "hour", now.Hour())
	for _, rec := range records {
		item, err := domain.DecodeScheduledItem(rec)
		if err != nil {
			scheduledDecodeFailuresCounter.Inc()
			s.logger.WarnContext(ctx, "Skipping malformed scheduled record", "error", err)
			continue
		}
		if item.FiresAt(now) {
			return item, true
		}
	}
	return domain.ScheduledItem{}, false
}
