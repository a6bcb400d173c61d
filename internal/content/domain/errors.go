package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates that a requested record was not found.
	ErrNotFound = errors.New("record not found")
	// ErrEmptyBody indicates a fan-out payload without any text to publish.
	ErrEmptyBody = errors.New("payload has no post body")
)

// StoreError wraps a scan or delete failure of the content store.
type StoreError struct {
	Op         string // "scan", "scan_limit", "delete", ...
	Collection Collection
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s on %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// BusError wraps a failed publish onto the fan-out bus.
type BusError struct {
	Subject string
	Err     error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus publish to %s: %v", e.Subject, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// DecodeError lists every missing or malformed attribute of one stored record.
type DecodeError struct {
	Collection Collection
	Key        string
	Problems   []string
}

func (e *DecodeError) Error() string {
	key := e.Key
	if key == "" {
		key = "<unknown>"
	}
	return fmt.Sprintf("decode %s record %s: %s", e.Collection, key, strings.Join(e.Problems, "; "))
}

// DeserializationError marks a fan-out payload that can never be processed.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize fan-out payload: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// ChannelError wraps a platform call failure at one publish stage.
type ChannelError struct {
	Channel string
	Stage   string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s %s: %v", e.Channel, e.Stage, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }
