package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// --- Mocks ---

type MockContentStore struct {
	mock.Mock
}

func (m *MockContentStore) ScanAll(ctx context.Context, c domain.Collection) ([]domain.Record, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockContentStore) ScanLimit(ctx context.Context, c domain.Collection, n int) ([]domain.Record, error) {
	args := m.Called(ctx, c, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Record), args.Error(1)
}

func (m *MockContentStore) Delete(ctx context.Context, c domain.Collection, key string) error {
	args := m.Called(ctx, c, key)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte, msgID string) error {
	args := m.Called(ctx, subject, data, msgID)
	return args.Error(0)
}

// --- Helpers ---

const testSubject = "posts.fanout"

var at1422 = time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC)

func scheduledRecord(key, body, fire string, recurring bool) domain.Record {
	return domain.Record{domain.AttrKey: key, domain.AttrBody: body, domain.AttrTime: fire, domain.AttrRecurring: recurring}
}

func immediateRecord(key, body string) domain.Record {
	return domain.Record{domain.AttrKey: key, domain.AttrBody: body}
}

// payloadFor matches a published fan-out payload by content, not byte layout.
func payloadFor(key, body string) interface{} {
	return mock.MatchedBy(func(data []byte) bool {
		var got map[string]string
		if err := json.Unmarshal(data, &got); err != nil {
			return false
		}
		return len(got) == 2 && got["key"] == key && got["body"] == body
	})
}

func newTestRunner(store *MockContentStore, pub *MockPublisher, now time.Time) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRunner(
		NewSelector(store, logger),
		NewDispatcher(store, pub, testSubject, logger),
		time.UTC, time.Minute, logger,
	)
	r.now = func() time.Time { return now }
	return r
}

// --- Tests ---

func TestRunOnce_ScheduledMatchWins(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).
		Return([]domain.Record{scheduledRecord("S1", "Hello", "2024-01-01T14:00:00Z", false)}, nil).Once()
	pub.On("Publish", mock.Anything, testSubject, payloadFor("S1", "Hello"), mock.AnythingOfType("string")).Return(nil).Once()
	store.On("Delete", mock.Anything, domain.CollectionScheduled, "S1").Return(nil).Once()

	out := newTestRunner(store, pub, at1422).RunOnce(context.Background())

	assert.Equal(t, OutcomeDispatched, out.Kind)
	assert.Equal(t, "S1", out.Key)
	assert.Equal(t, domain.CollectionScheduled, out.Collection)
	assert.True(t, out.Deleted)
	store.AssertNotCalled(t, "ScanLimit", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRunOnce_FallsBackToBacklog(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).
		Return([]domain.Record{scheduledRecord("S1", "Hello", "2024-01-01T14:00:00Z", false)}, nil).Once()
	store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).
		Return([]domain.Record{immediateRecord("P1", "World")}, nil).Once()
	pub.On("Publish", mock.Anything, testSubject, payloadFor("P1", "World"), mock.AnythingOfType("string")).Return(nil).Once()
	store.On("Delete", mock.Anything, domain.CollectionImmediate, "P1").Return(nil).Once()

	out := newTestRunner(store, pub, time.Date(2024, 3, 5, 15, 5, 0, 0, time.UTC)).RunOnce(context.Background())

	assert.Equal(t, OutcomeDispatched, out.Kind)
	assert.Equal(t, "P1", out.Key)
	assert.Equal(t, domain.CollectionImmediate, out.Collection)
	store.AssertNotCalled(t, "Delete", mock.Anything, domain.CollectionScheduled, "S1")
	store.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestRunOnce_NothingToSend(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{}, nil).Once()
	store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).Return([]domain.Record{}, nil).Once()
	noop := dispatchInvocationsCounter.WithLabelValues(string(OutcomeNothingToSend), "")
	before := testutil.ToFloat64(noop)

	out := newTestRunner(store, pub, at1422).RunOnce(context.Background())

	assert.Equal(t, OutcomeNothingToSend, out.Kind)
	assert.Equal(t, before+1, testutil.ToFloat64(noop))
	assert.Equal(t, "nothing to send", out.String())
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestRunOnce_PublishFailureKeepsItem(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{}, nil).Once()
	store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).
		Return([]domain.Record{immediateRecord("P1", "World")}, nil).Once()
	pub.On("Publish", mock.Anything, testSubject, mock.Anything, mock.Anything).Return(errors.New("no responders")).Once()

	out := newTestRunner(store, pub, at1422).RunOnce(context.Background())

	assert.Equal(t, OutcomeFailed, out.Kind)
	var busErr *domain.BusError
	require.ErrorAs(t, out.Err, &busErr)
	assert.Equal(t, testSubject, busErr.Subject)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	pub.AssertExpectations(t)
}

func TestRunOnce_RecurringItemIsKept(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).
		Return([]domain.Record{scheduledRecord("S2", "Daily", "2024-01-01T14:00:00Z", true)}, nil).Once()
	pub.On("Publish", mock.Anything, testSubject, payloadFor("S2", "Daily"), mock.Anything).Return(nil).Once()

	out := newTestRunner(store, pub, at1422).RunOnce(context.Background())

	assert.Equal(t, OutcomeDispatched, out.Kind)
	assert.False(t, out.Deleted)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
	pub.AssertExpectations(t)
}

func TestRunOnce_DeleteFailureAfterPublish(t *testing.T) {
	store := new(MockContentStore)
	pub := new(MockPublisher)

	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{}, nil).Once()
	store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).
		Return([]domain.Record{immediateRecord("P1", "World")}, nil).Once()
	pub.On("Publish", mock.Anything, testSubject, mock.Anything, mock.Anything).Return(nil).Once()
	deleteErr := &domain.StoreError{Op: "delete", Collection: domain.CollectionImmediate, Err: errors.New("throttled")}
	store.On("Delete", mock.Anything, domain.CollectionImmediate, "P1").Return(deleteErr).Once()

	out := newTestRunner(store, pub, at1422).RunOnce(context.Background())

	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, "P1", out.Key)
	assert.False(t, out.Deleted)
	assert.ErrorIs(t, out.Err, deleteErr)
	pub.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestSelect_ScheduledScanErrorFallsBack(t *testing.T) {
	store := new(MockContentStore)
	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return(nil, errors.New("scan failed")).Once()
	store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).
		Return([]domain.Record{immediateRecord("P1", "World")}, nil).Once()

	sel, err := NewSelector(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Select(context.Background(), at1422)
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "P1", sel.Item.Key)
	assert.Equal(t, domain.CollectionImmediate, sel.Source)
}

func TestSelect_SkipsMalformedScheduledRecords(t *testing.T) {
	store := new(MockContentStore)
	store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{
		{domain.AttrKey: "bad", domain.AttrTime: "2024-01-01T14:00:00Z"},
		scheduledRecord("S1", "Hello", "2024-01-01T14:00:00Z", false),
	}, nil).Once()
	skippedBefore := testutil.ToFloat64(scheduledDecodeFailuresCounter)

	sel, err := NewSelector(store, slog.New(slog.NewTextHandler(io.Discard, nil))).Select(context.Background(), at1422)
	require.NoError(t, err)
	require.NotNil(t, sel)
	assert.Equal(t, "S1", sel.Item.Key)
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(scheduledDecodeFailuresCounter))
}

func TestSelect_BacklogErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("ScanError", func(t *testing.T) {
		store := new(MockContentStore)
		store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{}, nil).Once()
		scanErr := &domain.StoreError{Op: "scan_limit", Collection: domain.CollectionImmediate, Err: errors.New("down")}
		store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).Return(nil, scanErr).Once()

		sel, err := NewSelector(store, logger).Select(context.Background(), at1422)
		assert.Nil(t, sel)
		assert.ErrorIs(t, err, scanErr)
	})

	t.Run("MalformedRecord", func(t *testing.T) {
		store := new(MockContentStore)
		store.On("ScanAll", mock.Anything, domain.CollectionScheduled).Return([]domain.Record{}, nil).Once()
		store.On("ScanLimit", mock.Anything, domain.CollectionImmediate, 1).
			Return([]domain.Record{{domain.AttrKey: "P1"}}, nil).Once()

		sel, err := NewSelector(store, logger).Select(context.Background(), at1422)
		assert.Nil(t, sel)
		var decErr *domain.DecodeError
		assert.ErrorAs(t, err, &decErr)
	})
}

func TestFanoutMsgID(t *testing.T) {
	item := domain.ContentItem{Key: "S1", Body: "Hello"}
	id := FanoutMsgID(item, at1422)

	assert.Len(t, id, 64)
	assert.Equal(t, id, FanoutMsgID(item, time.Date(2024, 3, 5, 14, 59, 0, 0, time.UTC)), "same hour, same id")
	assert.NotEqual(t, id, FanoutMsgID(item, time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)), "next hour, new id")
	assert.NotEqual(t, id, FanoutMsgID(domain.ContentItem{Key: "S1", Body: "Other"}, at1422))
}

func TestRun_RejectsInvalidSchedule(t *testing.T) {
	r := newTestRunner(new(MockContentStore), new(MockPublisher), at1422)
	err := r.Run(context.Background(), "every now and then")
	assert.Error(t, err)
}
