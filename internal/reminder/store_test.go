package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"minder/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, *db.Memory) {
	t.Helper()
	kv := db.NewMemory()
	return NewStore(kv, zap.NewNop()), kv
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, r := range []*Reminder{
		New(fuzzyIn(time.Hour), owner, "channel one", general),
		New(fuzzyIn(2*time.Hour), owner, "dm one", nil),
	} {
		require.NoError(t, s.Create(ctx, r))
		got, err := s.Fetch(ctx, r.Key)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}
}

func TestStoreFetchMissing(t *testing.T) {
	s, _ := newTestStore(t)

	r, err := s.Fetch(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, r)

	_, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	first := New(fuzzyIn(time.Hour), owner, "first", nil)
	second := New(fuzzyIn(time.Hour), owner, "second", general)
	require.Equal(t, first.Key, second.Key)

	require.NoError(t, s.Create(ctx, first))
	assert.ErrorIs(t, s.Create(ctx, second), ErrDuplicateKey)

	got, err := s.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Content)
}

func TestStoreFetchAllSkipsGarbage(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)

	a := New(fuzzyIn(time.Hour), owner, "a", nil)
	b := New(fuzzyIn(2*time.Hour), owner, "b", nil)
	require.NoError(t, s.Create(ctx, a))
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, kv.Set(ctx, Namespace, "broken", []byte("{not json")))

	all, err := s.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "a", all[a.Key].Content)
	assert.Equal(t, "b", all[b.Key].Content)
}

func TestStoreMarkNotified(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	r := New(fuzzyIn(time.Hour), owner, "a", nil)
	require.NoError(t, s.Create(ctx, r))

	updated, err := s.MarkNotified(ctx, r.Key)
	require.NoError(t, err)
	assert.True(t, updated.UserNotified)

	again, err := s.MarkNotified(ctx, r.Key)
	require.NoError(t, err)
	assert.True(t, again.UserNotified)

	got, err := s.Get(ctx, r.Key)
	require.NoError(t, err)
	assert.True(t, got.UserNotified)
}

func TestStoreUpdateKeepsKeyAndHandlesDeletion(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	r := New(fuzzyIn(time.Hour), owner, "a", nil)
	require.NoError(t, s.Create(ctx, r))

	updated, err := s.Update(ctx, r.Key, func(rem *Reminder) error {
		rem.Key = "hijacked"
		rem.Content = "b"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, r.Key, updated.Key)
	assert.Equal(t, "b", updated.Content)

	ok, err := s.Delete(ctx, r.Key)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.MarkNotified(ctx, r.Key)
	assert.ErrorIs(t, err, ErrNotFound)

	r2, err := s.Fetch(ctx, r.Key)
	require.NoError(t, err)
	assert.Nil(t, r2, "mark-notified must not resurrect a deleted reminder")
}

func TestStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	r := New(fuzzyIn(time.Hour), owner, "", nil)
	require.NoError(t, s.Create(ctx, r))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, r.Key, func(rem *Reminder) error {
				rem.Content += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, r.Key)
	require.NoError(t, err)
	assert.Equal(t, "xxxx", got.Content)
}
