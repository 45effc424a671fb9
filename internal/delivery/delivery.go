// Package delivery sends due reminders to their destination and records the outcome.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minder/internal/reminder"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"
)

var ErrDeliveryFailure = errors.New("delivery failure")

// Failure wraps the transport error of a failed send.
type Failure struct {
	Key    string
	Target string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("delivering reminder %s via %s: %v", f.Key, f.Target, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrDeliveryFailure }

// Messenger is the chat transport.
type Messenger interface {
	// ChannelAvailable reports whether the channel still exists and can be written to.
	ChannelAvailable(ctx context.Context, channelID string) bool
	SendChannelMessage(ctx context.Context, channelID, content string) error
	SendDirectMessage(ctx context.Context, memberID, content string) error
}

type Outcome int

const (
	Delivered Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}

const (
	targetChannel = "channel"
	targetDM      = "direct message"
)

type Handler struct {
	store      *reminder.Store
	messenger  Messenger
	clk        clock.Clock
	log        *zap.Logger
	onNotified func(*reminder.Reminder)
}

func NewHandler(store *reminder.Store, messenger Messenger, clk clock.Clock, log *zap.Logger) *Handler {
	return &Handler{
		store:      store,
		messenger:  messenger,
		clk:        clk,
		log:        log.Named("delivery"),
		onNotified: func(*reminder.Reminder) {},
	}
}

// OnNotified registers fn to run after a delivery has been persisted.
func (h *Handler) OnNotified(fn func(*reminder.Reminder)) {
	h.onNotified = fn
}

// Deliver loads the current state of the reminder, sends it and marks it notified.
// Send failures are logged and leave the reminder unnotified; they are never returned.
func (h *Handler) Deliver(ctx context.Context, key string) Outcome {
	r, err := h.store.Fetch(ctx, key)
	if err != nil {
		h.log.Error("Failed to load reminder for delivery", zap.String("key", key), zap.Error(err))
		return Failed
	}
	if r == nil {
		h.log.Info("Reminder no longer exists, nothing to deliver", zap.String("key", key))
		return Skipped
	}
	fields := Fields(r)
	if r.UserNotified {
		h.log.Info("Reminder already notified", fields...)
		return Skipped
	}

	target, err := h.send(ctx, r)
	if err != nil {
		failure := &Failure{Key: key, Target: target, Err: err}
		h.log.Error("Reminder delivery failed", append(fields, zap.Error(failure))...)
		return Failed
	}

	updated, err := h.store.MarkNotified(ctx, key)
	switch {
	case errors.Is(err, reminder.ErrNotFound):
		h.log.Warn("Reminder deleted while being delivered", fields...)
		return Delivered
	case err != nil:
		h.log.Error("Reminder sent but notified flag not saved", append(fields, zap.Error(err))...)
		return Delivered
	}

	h.log.Info("Reminder delivered", append(fields, zap.String("target", target))...)
	h.onNotified(updated)
	return Delivered
}

func (h *Handler) send(ctx context.Context, r *reminder.Reminder) (string, error) {
	msg := Compose(r, h.clk.Now())
	if !r.FromDM && r.ChannelID != "" {
		if h.messenger.ChannelAvailable(ctx, r.ChannelID) {
			return targetChannel, h.messenger.SendChannelMessage(ctx, r.ChannelID, msg)
		}
		h.log.Warn("Channel unavailable, falling back to direct message",
			zap.String("key", r.Key), zap.String("channel_id", r.ChannelID))
	}
	return targetDM, h.messenger.SendDirectMessage(ctx, r.MemberID, msg)
}

// Compose builds the notification text.
func Compose(r *reminder.Reminder, now time.Time) string {
	return fmt.Sprintf(":wave: <@%s>, here is your reminder:\n%s", r.MemberID, r.Render(now))
}

// Fields describes a reminder for structured logs.
func Fields(r *reminder.Reminder) []zap.Field {
	return []zap.Field{
		zap.String("key", r.Key),
		zap.String("member_id", r.MemberID),
		zap.String("member_name", r.MemberName),
		zap.String("channel_id", r.ChannelID),
		zap.Bool("from_dm", r.FromDM),
		zap.String("provided_when", r.ProvidedWhen),
		zap.Float64("trigger_ts", r.TriggerTS),
		zap.String("timezone", r.TimezoneName),
	}
}
