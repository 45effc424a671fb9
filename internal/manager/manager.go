// Package manager connects reminder creation, persistence, scheduling and delivery.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"minder/internal/delivery"
	"minder/internal/fuzzytime"
	"minder/internal/reminder"
	"minder/internal/scheduler"
	"minder/internal/timezone"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

// TimezoneSource looks up the zone a member prefers.
type TimezoneSource interface {
	Timezone(ctx context.Context, memberID, fallback string) string
}

type Deps struct {
	Store     *reminder.Store
	Scheduler *scheduler.Scheduler
	Delivery  *delivery.Handler
	Resolver  *fuzzytime.Resolver
	Timezones TimezoneSource
	Clock     clock.Clock
	Log       *zap.Logger
}

type Options struct {
	DefaultTimezone string
	// FireOverdue delivers, at startup, reminders whose trigger passed while the
	// process was down. When false they are logged and left alone.
	FireOverdue bool
}

type Manager struct {
	store     *reminder.Store
	sched     *scheduler.Scheduler
	delivery  *delivery.Handler
	resolver  *fuzzytime.Resolver
	timezones TimezoneSource
	clk       clock.Clock
	log       *zap.Logger
	opts      Options

	mu        sync.RWMutex
	listeners []Listener
}

func New(d Deps, opts Options) *Manager {
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "UTC"
	}
	m := &Manager{
		store:     d.Store,
		sched:     d.Scheduler,
		delivery:  d.Delivery,
		resolver:  d.Resolver,
		timezones: d.Timezones,
		clk:       d.Clock,
		log:       d.Log.Named("manager"),
		opts:      opts,
	}
	d.Delivery.OnNotified(func(r *reminder.Reminder) { m.emit(EventNotified, r) })
	return m
}

// Start arms a job for every reminder that still needs delivering, then starts the
// scheduler.
func (m *Manager) Start(ctx context.Context) error {
	all, err := m.store.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("rescan reminders: %w", err)
	}

	now := m.clk.Now()
	var armed, overdue, skipped int
	for _, r := range sortByTrigger(all) {
		fields := delivery.Fields(r)
		if r.UserNotified {
			continue
		}
		// Created through a command that arrived before the rescan.
		if m.sched.GetJob(r.Key) != nil {
			armed++
			continue
		}

		if r.IsComplete(now) {
			if !m.opts.FireOverdue {
				m.log.Warn("Skipping overdue reminder", fields...)
				skipped++
				continue
			}
			m.log.Info("Delivering overdue reminder", fields...)
			overdue++
		} else if _, ok := r.SecondsRemaining(now); !ok {
			m.log.Warn("Skipping reminder without remaining time", fields...)
			skipped++
			continue
		}

		if err := m.arm(r); err != nil {
			m.log.Error("Failed to schedule reminder", append(fields, zap.Error(err))...)
			skipped++
			continue
		}
		armed++
	}

	m.log.Info("Reminders rescanned",
		zap.Int("total", len(all)), zap.Int("armed", armed),
		zap.Int("overdue", overdue), zap.Int("skipped", skipped))
	return m.sched.Start()
}

// Shutdown stops the scheduler and waits for deliveries in flight.
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.sched.Shutdown(ctx)
}

type AddRequest struct {
	When    string
	Content string
	Owner   reminder.Member
	// Channel is nil for direct-message reminders.
	Channel *reminder.Channel
	// Timezone overrides the member's configured zone when set.
	Timezone string
	// Key overrides the derived key when set.
	Key string
}

// Add resolves, stores and schedules a new reminder.
func (m *Manager) Add(ctx context.Context, req AddRequest) (*reminder.Reminder, error) {
	if req.Owner.ID == "" {
		return nil, fmt.Errorf("%w: owner id is required", reminder.ErrInvalid)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", reminder.ErrInvalid)
	}

	tz, err := m.timezoneFor(ctx, req.Owner.ID, req.Timezone)
	if err != nil {
		return nil, err
	}
	ft, err := m.resolver.Resolve(req.When, m.clk.Now(), tz)
	if err != nil {
		return nil, err
	}

	var opts []reminder.Option
	if req.Key != "" {
		opts = append(opts, reminder.WithKey(req.Key))
	}
	r := reminder.New(ft, req.Owner, req.Content, req.Channel, opts...)

	if err := m.store.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := m.arm(r); err != nil {
		if errors.Is(err, scheduler.ErrDuplicateJob) {
			if _, delErr := m.store.Delete(ctx, r.Key); delErr != nil {
				m.log.Error("Failed to roll back reminder", zap.String("key", r.Key), zap.Error(delErr))
			}
			return nil, fmt.Errorf("%w: %s", reminder.ErrDuplicateKey, r.Key)
		}
		// Stored but not armed; the next startup rescan picks it up.
		m.log.Warn("Reminder stored without a job", append(delivery.Fields(r), zap.Error(err))...)
	}

	m.log.Info("Reminder created", delivery.Fields(r)...)
	m.emit(EventCreated, r)
	return r, nil
}

// Resolve previews how when would be interpreted for memberID.
func (m *Manager) Resolve(ctx context.Context, when, tzOverride, memberID string) (*fuzzytime.FuzzyTime, error) {
	tz, err := m.timezoneFor(ctx, memberID, tzOverride)
	if err != nil {
		return nil, err
	}
	return m.resolver.Resolve(when, m.clk.Now(), tz)
}

func (m *Manager) Get(ctx context.Context, key string) (*reminder.Reminder, error) {
	return m.store.Get(ctx, key)
}

type Filter struct {
	MemberID        string
	ChannelID       string
	ExcludeComplete bool
	ExcludeNotified bool
}

// List returns the matching reminders ordered by trigger time.
func (m *Manager) List(ctx context.Context, f Filter) ([]*reminder.Reminder, error) {
	all, err := m.store.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	now := m.clk.Now()
	out := make([]*reminder.Reminder, 0, len(all))
	for _, r := range sortByTrigger(all) {
		switch {
		case f.MemberID != "" && r.MemberID != f.MemberID:
		case f.ChannelID != "" && r.ChannelID != f.ChannelID:
		case f.ExcludeComplete && r.IsComplete(now):
		case f.ExcludeNotified && r.UserNotified:
		default:
			out = append(out, r)
		}
	}
	return out, nil
}

// Delete removes the reminder and cancels its job.
func (m *Manager) Delete(ctx context.Context, key string) error {
	r, err := m.store.Fetch(ctx, key)
	if err != nil {
		return err
	}
	m.cancel(key)
	ok, err := m.store.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !ok || r == nil {
		return fmt.Errorf("%w: %s", reminder.ErrNotFound, key)
	}

	m.log.Info("Reminder deleted", delivery.Fields(r)...)
	m.emit(EventDeleted, r)
	return nil
}

// Clean purges complete reminders, or every reminder of memberID when it is set.
// It returns the deleted keys.
func (m *Manager) Clean(ctx context.Context, memberID string) ([]string, error) {
	f := Filter{MemberID: memberID}
	candidates, err := m.List(ctx, f)
	if err != nil {
		return nil, err
	}

	now := m.clk.Now()
	var deleted []string
	for _, r := range candidates {
		if memberID == "" && !r.IsComplete(now) {
			continue
		}
		err := m.Delete(ctx, r.Key)
		if errors.Is(err, reminder.ErrNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		deleted = append(deleted, r.Key)
	}
	m.log.Info("Reminders cleaned", zap.String("member_id", memberID), zap.Int("deleted", len(deleted)))
	return deleted, nil
}

// Update applies a partial change given as raw field values. Every field is type-checked
// before anything is written. A changed trigger re-arms the job.
func (m *Manager) Update(ctx context.Context, key string, fields map[string]string) (*reminder.Reminder, error) {
	p, err := parsePatch(fields)
	if err != nil {
		return nil, err
	}

	var before reminder.Reminder
	updated, err := m.store.Update(ctx, key, func(r *reminder.Reminder) error {
		before = *r
		p.apply(r)
		return r.Validate()
	})
	if err != nil {
		return nil, err
	}

	if updated.TriggerTS != before.TriggerTS || updated.UserNotified != before.UserNotified {
		m.cancel(key)
		if !updated.UserNotified {
			if err := m.arm(updated); err != nil {
				m.log.Error("Failed to re-arm reminder", append(delivery.Fields(updated), zap.Error(err))...)
			}
		}
	}

	m.log.Info("Reminder updated", append(delivery.Fields(updated), zap.Strings("fields", p.names()))...)
	m.emit(EventUpdated, updated)
	return updated, nil
}

// Armed reports whether a job is waiting for key.
func (m *Manager) Armed(key string) bool {
	return m.sched.GetJob(key) != nil
}

func (m *Manager) arm(r *reminder.Reminder) error {
	key := r.Key
	_, err := m.sched.AddOneShot(key, r.TriggerTime(), func(ctx context.Context) {
		m.delivery.Deliver(ctx, key)
	})
	return err
}

func (m *Manager) cancel(key string) {
	if job := m.sched.GetJob(key); job != nil {
		job.Remove()
	}
}

func (m *Manager) timezoneFor(ctx context.Context, memberID, override string) (timezone.Timezone, error) {
	if override != "" {
		return timezone.Build(override)
	}
	name := m.opts.DefaultTimezone
	if m.timezones != nil && memberID != "" {
		name = m.timezones.Timezone(ctx, memberID, name)
	}
	if tz, ok := timezone.BuildOrWarn(name, m.log); ok {
		return tz, nil
	}
	return timezone.UTC(), nil
}

func sortByTrigger(all map[string]*reminder.Reminder) []*reminder.Reminder {
	out := make([]*reminder.Reminder, 0, len(all))
	for _, r := range all {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerTS != out[j].TriggerTS {
			return out[i].TriggerTS < out[j].TriggerTS
		}
		return out[i].Key < out[j].Key
	})
	return out
}
