package status

import (
	"context"
	"testing"
	"time"

	"minder/internal/db"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseAction(t *testing.T) {
	a, err := ParseAction("join")
	require.NoError(t, err)
	assert.Equal(t, Join, a)

	a, err = ParseAction("LOGOFF")
	require.NoError(t, err)
	assert.Equal(t, Logoff, a)

	_, err = ParseAction("dance")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	fake := clock.NewFake()
	fake.Set(time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC))
	kv := db.NewMemory()
	r := NewRecorder(kv, fake, zap.NewNop())

	first, err := r.Record(ctx, "logon", "connected", nil)
	require.NoError(t, err)
	assert.Equal(t, "LOGON", first.Action)
	assert.Equal(t, "LOGON:1714550400.000000", Key(first))

	fake.Add(time.Minute)
	_, err = r.Record(ctx, "JOIN", "joined guild", map[string]string{"guild_id": "900"})
	require.NoError(t, err)

	_, err = r.Record(ctx, "JOIN", "same instant", nil)
	require.NoError(t, err, "colliding keys get a suffix")

	_, err = r.Record(ctx, "nap", "nope", nil)
	assert.ErrorIs(t, err, ErrInvalidAction)

	all, err := r.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "LOGON", all[2].Action)
	assert.Equal(t, "900", all[0].Context["guild_id"]+all[1].Context["guild_id"])

	limited, err := r.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	keys, err := kv.ListKeys(ctx, Namespace)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
}

func TestLogSwallowsErrors(t *testing.T) {
	r := NewRecorder(db.NewMemory(), clock.New(), zap.NewNop())
	r.Log(context.Background(), Action("BOGUS"), "ignored", nil)

	all, err := r.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}
