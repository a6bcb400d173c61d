package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// FanoutMessage is the payload handed to the bus for one dispatched item.
// It is never persisted; the key is its only identity.
type FanoutMessage struct {
	Key  string `json:"key"`
	Body string `json:"body"`
}

// NewFanoutMessage builds the bus payload for a selected item.
func NewFanoutMessage(item ContentItem) FanoutMessage {
	return FanoutMessage{Key: item.Key, Body: item.Body}
}

// Encode marshals the message for publishing.
func (m FanoutMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// fanoutWire accepts the field spellings used by older publishers.
type fanoutWire struct {
	Key  string `json:"key"`
	UUID string `json:"uuid"`
	Body string `json:"body"`
	Post string `json:"post"`
}

// DecodeFanoutMessage parses a delivered payload. Besides {key, body} it
// accepts {uuid, post} and a bare JSON string holding only the text. The key
// is optional; missing text is a DeserializationError.
func DecodeFanoutMessage(data []byte) (FanoutMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return FanoutMessage{}, &DeserializationError{Err: errors.New("empty payload")}
	}

	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return FanoutMessage{}, &DeserializationError{Err: err}
		}
		if strings.TrimSpace(text) == "" {
			return FanoutMessage{}, &DeserializationError{Err: ErrEmptyBody}
		}
		return FanoutMessage{Body: text}, nil
	}

	var w fanoutWire
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return FanoutMessage{}, &DeserializationError{Err: err}
	}
	msg := FanoutMessage{Key: w.Key, Body: w.Body}
	if msg.Key == "" {
		msg.Key = w.UUID
	}
	if msg.Body == "" {
		msg.Body = w.Post
	}
	if strings.TrimSpace(msg.Body) == "" {
		return FanoutMessage{}, &DeserializationError{Err: ErrEmptyBody}
	}
	return msg, nil
}
