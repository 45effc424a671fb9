// Package status records the bot's audit trail: logons, guild membership changes,
// message edits and errors.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"minder/internal/db"
	"minder/internal/db/models"
	"minder/internal/fuzzytime"

	"github.com/google/uuid"
	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

// Namespace is the key-value namespace status entries live in.
const Namespace = "bot_status"

var ErrInvalidAction = errors.New("invalid status action")

type Action string

const (
	Logon  Action = "LOGON"
	Logoff Action = "LOGOFF"
	Join   Action = "JOIN"
	Part   Action = "PART"
	Error  Action = "ERROR"
	Debug  Action = "DEBUG"
	Edit   Action = "EDIT"
	Delete Action = "DELETE"
)

var actions = map[Action]bool{
	Logon: true, Logoff: true, Join: true, Part: true,
	Error: true, Debug: true, Edit: true, Delete: true,
}

// ParseAction accepts any casing of a known action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if !actions[a] {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
	return a, nil
}

type Recorder struct {
	kv  db.Store
	clk clock.Clock
	log *zap.Logger
}

func NewRecorder(kv db.Store, clk clock.Clock, log *zap.Logger) *Recorder {
	return &Recorder{kv: kv, clk: clk, log: log.Named("status")}
}

// Key is "{ACTION}:{epoch seconds}".
func Key(e *models.StatusEntry) string {
	return e.Action + ":" + strconv.FormatFloat(fuzzytime.Timestamp(e.Timestamp), 'f', 6, 64)
}

// Record validates the action and stores a new entry.
func (r *Recorder) Record(ctx context.Context, action, message string, details map[string]string) (*models.StatusEntry, error) {
	a, err := ParseAction(action)
	if err != nil {
		return nil, err
	}

	entry := &models.StatusEntry{
		ID:        uuid.New(),
		Action:    string(a),
		Message:   message,
		Context:   details,
		Timestamp: r.clk.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode status entry: %w", err)
	}

	key := Key(entry)
	ok, err := r.kv.SetIfAbsent(ctx, Namespace, key, data)
	if err == nil && !ok {
		// same action within the same microsecond
		ok, err = r.kv.SetIfAbsent(ctx, Namespace, key+":"+entry.ID.String(), data)
	}
	if err != nil {
		return nil, fmt.Errorf("store status entry: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("store status entry: key %s in use", key)
	}
	return entry, nil
}

// Log records an entry and only logs when that fails. Chat event handlers use it.
func (r *Recorder) Log(ctx context.Context, action Action, message string, details map[string]string) {
	if _, err := r.Record(ctx, string(action), message, details); err != nil {
		r.log.Error("Failed to record status entry",
			zap.String("action", string(action)), zap.String("message", message), zap.Error(err))
	}
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (r *Recorder) List(ctx context.Context, limit int) ([]*models.StatusEntry, error) {
	keys, err := r.kv.ListKeys(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("list status entries: %w", err)
	}

	entries := make([]*models.StatusEntry, 0, len(keys))
	for _, key := range keys {
		raw, err := r.kv.Get(ctx, Namespace, key)
		if errors.Is(err, db.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load status entry %s: %w", key, err)
		}
		var e models.StatusEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			r.log.Warn("Skipping unreadable status entry", zap.String("key", key), zap.Error(err))
			continue
		}
		entries = append(entries, &e)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
