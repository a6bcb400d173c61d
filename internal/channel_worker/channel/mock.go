package channel

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrSimulatedFailure is returned by Mock when a failure is switched on.
var ErrSimulatedFailure = errors.New("mock channel simulated failure")

// MockPost is one post recorded by Mock. ParentID is empty for primary posts.
type MockPost struct {
	ID       string
	ParentID string
	Text     string
}

// Mock is an in-memory channel that records everything posted to it.
type Mock struct {
	logger *slog.Logger

	mu        sync.Mutex
	posts     []MockPost
	FailPost  bool
	FailReply bool
}

func NewMock(logger *slog.Logger) *Mock {
	return &Mock{logger: logger.With("channel", "mock")}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) CreatePost(ctx context.Context, text string) (string, error) {
	return m.record(ctx, "", text)
}

func (m *Mock) CreateReply(ctx context.Context, parentID, text string) (string, error) {
	return m.record(ctx, parentID, text)
}

func (m *Mock) record(ctx context.Context, parentID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if (parentID == "" && m.FailPost) || (parentID != "" && m.FailReply) {
		m.logger.WarnContext(ctx, "Mock channel simulating failure", "is_reply", parentID != "")
		return "", ErrSimulatedFailure
	}
	id := "mock-" + uuid.NewString()
	m.posts = append(m.posts, MockPost{ID: id, ParentID: parentID, Text: text})
	m.logger.InfoContext(ctx, "Mock channel post recorded", "id", id, "is_reply", parentID != "")
	return id, nil
}

// SetFailures switches simulated failures on or off.
func (m *Mock) SetFailures(post, reply bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailPost, m.FailReply = post, reply
}

// Posts returns a copy of everything recorded so far, in call order.
func (m *Mock) Posts() []MockPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockPost, len(m.posts))
	copy(out, m.posts)
	return out
}
