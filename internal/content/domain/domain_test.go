package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduledItem_FiresAt(t *testing.T) {
	item := ScheduledItem{Key: "s1", Body: "Hello", FireWindow: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)}

	t.Run("SameHourDifferentDay", func(t *testing.T) {
		now := time.Date(2024, 3, 5, 14, 22, 0, 0, time.UTC)
		assert.True(t, item.FiresAt(now))
	})

	t.Run("EveryInvocationWithinTheHour", func(t *testing.T) {
		assert.True(t, item.FiresAt(time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)))
		assert.True(t, item.FiresAt(time.Date(2024, 3, 5, 14, 59, 59, 0, time.UTC)))
	})

	t.Run("DifferentHour", func(t *testing.T) {
		assert.False(t, item.FiresAt(time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)))
	})

	t.Run("ComparedInNowsLocation", func(t *testing.T) {
		plus2 := time.FixedZone("UTC+2", 2*60*60)
		// 14:00Z is 16:00 at UTC+2.
		assert.True(t, item.FiresAt(time.Date(2024, 3, 5, 16, 10, 0, 0, plus2)))
		assert.False(t, item.FiresAt(time.Date(2024, 3, 5, 14, 10, 0, 0, plus2)))
		assert.Equal(t, 16, item.HourIn(plus2))
	})
}

func TestSelections(t *testing.T) {
	imm := SelectImmediate(ContentItem{Key: "p1", Body: "World"})
	assert.Equal(t, CollectionImmediate, imm.Source)
	assert.True(t, imm.DeleteAfterDispatch)

	once := SelectScheduled(ScheduledItem{Key: "s1", Body: "Hello", Recurring: false})
	assert.Equal(t, CollectionScheduled, once.Source)
	assert.True(t, once.DeleteAfterDispatch)
	assert.Equal(t, ContentItem{Key: "s1", Body: "Hello"}, once.Item)

	rec := SelectScheduled(ScheduledItem{Key: "s2", Body: "Again", Recurring: true})
	assert.False(t, rec.DeleteAfterDispatch)
}

func TestDecodeScheduledItem(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		item, err := DecodeScheduledItem(Record{
			AttrKey: "s1", AttrBody: "Hello", AttrTime: "2024-01-01T14:00:00Z", AttrRecurring: false,
		})
		require.NoError(t, err)
		assert.Equal(t, "s1", item.Key)
		assert.Equal(t, "Hello", item.Body)
		assert.Equal(t, 14, item.FireWindow.Hour())
		assert.False(t, item.Recurring)
	})

	t.Run("AllProblemsReportedAtOnce", func(t *testing.T) {
		_, err := DecodeScheduledItem(Record{
			AttrKey: "s9", AttrTime: "tomorrow", AttrRecurring: "yes",
		})
		require.Error(t, err)

		var decErr *DecodeError
		require.True(t, errors.As(err, &decErr))
		assert.Equal(t, CollectionScheduled, decErr.Collection)
		assert.Equal(t, "s9", decErr.Key)
		require.Len(t, decErr.Problems, 3)
		assert.Contains(t, decErr.Problems[0], `missing "post"`)
		assert.Contains(t, decErr.Problems[1], `malformed "time"`)
		assert.Contains(t, decErr.Problems[2], `malformed "recurring"`)
	})

	t.Run("RoundTripsThroughRecord", func(t *testing.T) {
		in := ScheduledItem{Key: "s3", Body: "x", FireWindow: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), Recurring: true}
		out, err := DecodeScheduledItem(ScheduledItemRecord(in))
		require.NoError(t, err)
		assert.True(t, in.FireWindow.Equal(out.FireWindow))
		assert.Equal(t, in.Recurring, out.Recurring)
	})
}

func TestDecodeContentItem(t *testing.T) {
	item, err := DecodeContentItem(Record{AttrKey: "p1", AttrBody: "World"})
	require.NoError(t, err)
	assert.Equal(t, ContentItem{Key: "p1", Body: "World"}, item)

	_, err = DecodeContentItem(Record{AttrBody: 42})
	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, CollectionImmediate, decErr.Collection)
	assert.Len(t, decErr.Problems, 2)
	assert.Contains(t, err.Error(), "<unknown>")
}

func TestDecodeFanoutMessage(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    FanoutMessage
	}{
		{"KeyBody", `{"key":"p1","body":"World"}`, FanoutMessage{Key: "p1", Body: "World"}},
		{"UUIDPost", `{"uuid":"p2","post":"Legacy"}`, FanoutMessage{Key: "p2", Body: "Legacy"}},
		{"PostOnly", `{"post":"No key"}`, FanoutMessage{Body: "No key"}},
		{"BareString", `"Just text"`, FanoutMessage{Body: "Just text"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeFanoutMessage([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{``, `not json`, `{"key":"p1"}`, `""`, `{"body":"  "}`} {
		_, err := DecodeFanoutMessage([]byte(bad))
		var desErr *DeserializationError
		assert.True(t, errors.As(err, &desErr), "payload %q", bad)
	}
}

func TestFanoutMessage_Encode(t *testing.T) {
	data, err := NewFanoutMessage(ContentItem{Key: "s1", Body: "Hello"}).Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"s1","body":"Hello"}`, string(data))
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	assert.ErrorIs(t, &StoreError{Op: "delete", Collection: CollectionScheduled, Err: cause}, cause)
	assert.ErrorIs(t, &BusError{Subject: "posts.fanout", Err: cause}, cause)
	assert.ErrorIs(t, &ChannelError{Channel: "deso", Stage: "reply", Err: cause}, cause)
	assert.ErrorIs(t, &DeserializationError{Err: ErrEmptyBody}, ErrEmptyBody)
}
