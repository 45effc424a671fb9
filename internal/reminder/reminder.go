// Package reminder holds the persisted reminder record and its derived properties.
package reminder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"minder/internal/fuzzytime"
	"minder/internal/timezone"
)

// Namespace is the key-value namespace reminders live in.
const Namespace = "reminders"

var (
	ErrDuplicateKey = errors.New("duplicate reminder key")
	ErrNotFound     = errors.New("reminder not found")
	ErrInvalid      = errors.New("invalid reminder")
)

type Member struct {
	ID   string
	Name string
}

type Channel struct {
	ID   string
	Name string
}

// Reminder is the stored record. Completion is derived from TriggerTS and is never stored;
// UserNotified is the only flag that changes after creation.
type Reminder struct {
	Key          string  `json:"key"`
	MemberID     string  `json:"member_id"`
	MemberName   string  `json:"member_name"`
	ChannelID    string  `json:"channel_id,omitempty"`
	ChannelName  string  `json:"channel_name,omitempty"`
	ProvidedWhen string  `json:"provided_when"`
	Content      string  `json:"content"`
	TriggerTS    float64 `json:"trigger_ts"`
	CreatedTS    float64 `json:"created_ts"`
	UserNotified bool    `json:"user_notified"`
	FromDM       bool    `json:"from_dm"`
	TimezoneName string  `json:"timezone_name"`
}

type Option func(*Reminder)

// WithKey assigns an explicit key instead of the one derived from owner and trigger.
func WithKey(key string) Option {
	return func(r *Reminder) { r.Key = key }
}

// MakeKey derives the identity of a reminder from its owner and trigger timestamp.
func MakeKey(memberID string, triggerTS float64) string {
	return memberID + ":" + strconv.FormatFloat(triggerTS, 'f', -1, 64)
}

// New builds a reminder from an already resolved time. A nil channel means the reminder
// is delivered by direct message.
func New(when *fuzzytime.FuzzyTime, owner Member, content string, channel *Channel, opts ...Option) *Reminder {
	r := &Reminder{
		MemberID:     owner.ID,
		MemberName:   owner.Name,
		ProvidedWhen: when.ProvidedWhen,
		Content:      content,
		TriggerTS:    when.ResolvedTimestamp(),
		CreatedTS:    when.CreatedTimestamp(),
		FromDM:       channel == nil,
		TimezoneName: when.Timezone.Name(),
	}
	if channel != nil {
		r.ChannelID = channel.ID
		r.ChannelName = channel.Name
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Key == "" {
		r.Key = MakeKey(r.MemberID, r.TriggerTS)
	}
	return r
}

// Build resolves the text expression with resolver at the resolver's current time, then
// builds the reminder. A zero tz means UTC.
func Build(resolver *fuzzytime.Resolver, when string, owner Member, content string, channel *Channel, tz timezone.Timezone, opts ...Option) (*Reminder, error) {
	ft, err := resolver.Resolve(when, time.Time{}, tz)
	if err != nil {
		return nil, err
	}
	return New(ft, owner, content, channel, opts...), nil
}

// Timezone rebuilds the zone from its stored name, falling back to UTC.
func (r *Reminder) Timezone() timezone.Timezone {
	tz, err := timezone.Build(r.TimezoneName)
	if err != nil {
		return timezone.UTC()
	}
	return tz
}

func (r *Reminder) TriggerTime() time.Time {
	return fuzzytime.TimeFromTimestamp(r.TriggerTS, r.Timezone())
}

func (r *Reminder) CreatedTime() time.Time {
	return fuzzytime.TimeFromTimestamp(r.CreatedTS, r.Timezone())
}

// FuzzyTime reconstructs the resolved time from the stored scalars.
func (r *Reminder) FuzzyTime() *fuzzytime.FuzzyTime {
	return fuzzytime.FromTimestamps(r.ProvidedWhen, r.CreatedTS, r.TriggerTS, r.Timezone())
}

// IsComplete reports whether the trigger time is at or before now.
func (r *Reminder) IsComplete(now time.Time) bool {
	return !r.TriggerTime().After(now)
}

func (r *Reminder) SecondsRemaining(now time.Time) (int64, bool) {
	return r.FuzzyTime().SecondsRemaining(now)
}

// MarkNotified records a successful delivery. Calling it again has no further effect.
func (r *Reminder) MarkNotified() {
	r.UserNotified = true
}

func (r *Reminder) Clone() *Reminder {
	c := *r
	return &c
}

// Validate checks the invariants a stored reminder must satisfy.
func (r *Reminder) Validate() error {
	var problems []string
	if r.Key == "" {
		problems = append(problems, "missing key")
	}
	if r.MemberID == "" {
		problems = append(problems, "missing member_id")
	}
	if r.TriggerTS <= 0 {
		problems = append(problems, "missing trigger_ts")
	}
	if r.FromDM != (r.ChannelID == "") {
		problems = append(problems, "from_dm does not match channel_id")
	}
	if r.TimezoneName != "" && !timezone.IsValid(r.TimezoneName) {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", r.TimezoneName))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, ", "))
	}
	return nil
}

// AsMap is the flat projection used by the API, including the derived is_complete.
func (r *Reminder) AsMap(now time.Time) map[string]any {
	return map[string]any{
		"key":           r.Key,
		"member_id":     r.MemberID,
		"member_name":   r.MemberName,
		"channel_id":    r.ChannelID,
		"channel_name":  r.ChannelName,
		"provided_when": r.ProvidedWhen,
		"content":       r.Content,
		"trigger_ts":    r.TriggerTS,
		"created_ts":    r.CreatedTS,
		"user_notified": r.UserNotified,
		"from_dm":       r.FromDM,
		"timezone_name": r.TimezoneName,
		"is_complete":   r.IsComplete(now),
	}
}
