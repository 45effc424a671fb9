package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"minder/internal/delivery"
	"minder/internal/reminder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendChunkedLongNotification(t *testing.T) {
	now := time.Date(2030, 1, 1, 10, 0, 0, 0, time.UTC)
	r := &reminder.Reminder{
		Key:          "42:1893492000",
		MemberID:     "42",
		MemberName:   "alice",
		ChannelID:    "100",
		ChannelName:  "general",
		ProvidedWhen: "in 1 hour",
		Content:      strings.Repeat("x", 1900),
		TriggerTS:    float64(now.Unix()),
		CreatedTS:    float64(now.Add(-time.Hour).Unix()),
		TimezoneName: "UTC",
	}
	msg := delivery.Compose(r, now)
	require.Greater(t, len(msg), maxMessageLength)

	var sent []string
	err := sendChunked(context.Background(), msg, func(chunk string) error {
		sent = append(sent, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, sent, 2)
	for _, chunk := range sent {
		assert.LessOrEqual(t, len(chunk), maxMessageLength)
	}
	assert.Equal(t, msg, strings.Join(sent, "\n"))
	assert.Contains(t, sent[1], r.Content)
}

func TestSendChunkedStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := sendChunked(context.Background(), strings.Repeat("a", maxMessageLength*3), func(string) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "part 2 of 3")
	assert.Equal(t, 2, calls)
}

func TestSendChunkedShortMessage(t *testing.T) {
	var sent []string
	require.NoError(t, sendChunked(context.Background(), "hello", func(chunk string) error {
		sent = append(sent, chunk)
		return nil
	}))
	assert.Equal(t, []string{"hello"}, sent)
}
