package channel

import (
	"context"
	"errors"
)

// ErrEmptyPostID is returned when a platform accepts a post but does not
// report an identifier for it, leaving nothing to reply to.
var ErrEmptyPostID = errors.New("platform returned an empty post id")

// Channel is one output platform. CreateReply attaches text under an
// existing post returned by CreatePost.
type Channel interface {
	Name() string
	CreatePost(ctx context.Context, text string) (string, error)
	CreateReply(ctx context.Context, parentID, text string) (string, error)
}
