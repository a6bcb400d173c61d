package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("dispatch_service")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "posts.fanout", cfg.NATSSubject)
	assert.Equal(t, "posts", cfg.ContentTable)
	assert.Equal(t, "scheduled_posts", cfg.ScheduledTable)
	assert.Equal(t, "@hourly", cfg.DispatchSchedule)
	assert.Equal(t, 5*time.Minute, cfg.DispatchTimeout)
	assert.Equal(t, time.Hour, cfg.NATSDuplicateWindow, "dedupe window spans a trigger hour")
	assert.Equal(t, "posts.deadletter", cfg.NATSDeadLetterSubject)
	assert.Equal(t, 10, cfg.ChannelMaxDeliver)
	assert.Equal(t, 5*time.Second, cfg.ChannelRetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.ChannelRetryMax)
	assert.Equal(t, DefaultFooter, cfg.ChannelFooter)
	assert.Equal(t, 10, cfg.ChannelBatchSize)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("APP_CHANNEL_NAME", "deso")
	t.Setenv("APP_CHANNEL_BATCH_SIZE", "3")
	t.Setenv("APP_CHANNEL_FETCH_WAIT", "750ms")

	cfg, err := Load("channel_worker_service")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "deso", cfg.ChannelName)
	assert.Equal(t, 3, cfg.ChannelBatchSize)
	assert.Equal(t, 750*time.Millisecond, cfg.ChannelFetchWait)
}

func TestValidate(t *testing.T) {
	cfg := Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS_SUBJECT")
	assert.Contains(t, err.Error(), "NATS_DEAD_LETTER_SUBJECT")
	assert.Contains(t, err.Error(), "DISPATCH_TIMEOUT")
	assert.Contains(t, err.Error(), "CHANNEL_CONCURRENCY")
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, (&Config{DispatchTimezone: "Local"}).Location())
	assert.Equal(t, time.Local, (&Config{DispatchTimezone: "Not/AZone"}).Location())
	assert.Equal(t, "UTC", (&Config{DispatchTimezone: "UTC"}).Location().String())
}

func TestSubjects(t *testing.T) {
	cfg := &Config{NATSSubject: "posts.fanout", NATSDeadLetterSubject: "posts.deadletter"}
	assert.Equal(t, []string{"posts.fanout", "posts.deadletter.>"}, cfg.StreamSubjects())
	assert.Equal(t, "posts.deadletter.deso", cfg.DeadLetterSubject("deso"))
}
