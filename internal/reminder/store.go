package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"minder/internal/db"

	"go.uber.org/zap"
)

// ErrConflict is returned when an update keeps losing compare-and-swap races.
var ErrConflict = errors.New("reminder changed concurrently")

const maxUpdateAttempts = 5

// Store persists reminders in the key-value store under Namespace.
type Store struct {
	kv  db.Store
	log *zap.Logger
}

func NewStore(kv db.Store, log *zap.Logger) *Store {
	return &Store{kv: kv, log: log.Named("reminder_store")}
}

// Create stores r only if its key is unused.
func (s *Store) Create(ctx context.Context, r *Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reminder %s: %w", r.Key, err)
	}
	ok, err := s.kv.SetIfAbsent(ctx, Namespace, r.Key, data)
	if err != nil {
		return fmt.Errorf("store reminder %s: %w", r.Key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, r.Key)
	}
	return nil
}

// Save writes r unconditionally.
func (s *Store) Save(ctx context.Context, r *Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reminder %s: %w", r.Key, err)
	}
	if err := s.kv.Set(ctx, Namespace, r.Key, data); err != nil {
		return fmt.Errorf("store reminder %s: %w", r.Key, err)
	}
	return nil
}

// Fetch returns the reminder stored under key, or nil when there is none.
func (s *Store) Fetch(ctx context.Context, key string) (*Reminder, error) {
	r, _, err := s.load(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	return r, err
}

// Get is Fetch for callers that treat absence as an error.
func (s *Store) Get(ctx context.Context, key string) (*Reminder, error) {
	r, err := s.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r, nil
}

// FetchAll loads every stored reminder. Undecodable records are logged and skipped.
func (s *Store) FetchAll(ctx context.Context) (map[string]*Reminder, error) {
	keys, err := s.kv.ListKeys(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	out := make(map[string]*Reminder, len(keys))
	for _, key := range keys {
		r, _, err := s.load(ctx, key)
		switch {
		case errors.Is(err, db.ErrNotFound):
			// deleted between listing and loading
			continue
		case errors.Is(err, errDecode):
			s.log.Warn("Skipping unreadable reminder", zap.String("key", key), zap.Error(err))
			continue
		case err != nil:
			return nil, err
		}
		out[key] = r
	}
	return out, nil
}

// Delete removes the reminder and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	ok, err := s.kv.Delete(ctx, Namespace, key)
	if err != nil {
		return false, fmt.Errorf("delete reminder %s: %w", key, err)
	}
	return ok, nil
}

// Update applies fn to the stored reminder with compare-and-swap, retrying when another
// writer got there first. The key cannot be changed by fn.
func (s *Store) Update(ctx context.Context, key string, fn func(*Reminder) error) (*Reminder, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		r, raw, err := s.load(ctx, key)
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if err != nil {
			return nil, err
		}

		if err := fn(r); err != nil {
			return nil, err
		}
		r.Key = key

		data, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encode reminder %s: %w", key, err)
		}
		ok, err := s.kv.CompareAndSwap(ctx, Namespace, key, raw, data)
		if err != nil {
			return nil, fmt.Errorf("update reminder %s: %w", key, err)
		}
		if ok {
			return r, nil
		}
		s.log.Debug("Reminder changed during update, retrying", zap.String("key", key), zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("%w: %s", ErrConflict, key)
}

// MarkNotified sets UserNotified on the stored copy.
func (s *Store) MarkNotified(ctx context.Context, key string) (*Reminder, error) {
	return s.Update(ctx, key, func(r *Reminder) error {
		r.MarkNotified()
		return nil
	})
}

var errDecode = errors.New("decode reminder")

func (s *Store) load(ctx context.Context, key string) (*Reminder, []byte, error) {
	raw, err := s.kv.Get(ctx, Namespace, key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("load reminder %s: %w", key, err)
	}

	var r Reminder
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, nil, fmt.Errorf("%w %s: %v", errDecode, key, err)
	}
	if r.Key == "" {
		r.Key = key
	}
	return &r, raw, nil
}
