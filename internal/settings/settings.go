// Package settings validates named settings through a fixed table of handlers and
// stores per-member settings.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"minder/internal/config"
	"minder/internal/timezone"

	"go.uber.org/zap"
)

var (
	ErrDuplicateSetting = errors.New("setting already has a handler")
	ErrUnknownSetting   = errors.New("unknown setting")
	ErrInvalidValue     = errors.New("invalid setting value")
)

// Handler validates and normalises the settings it claims.
type Handler interface {
	Name() string
	Settings() []string
	Process(ctx context.Context, setting string, value any) (any, error)
}

// DefaultHandlers is the full set of handlers the bot ships with.
func DefaultHandlers() []Handler {
	return []Handler{TimezoneHandler{}, AdminHandler{}}
}

// TimezoneHandler owns "timezone" and normalises it to a canonical zone name.
type TimezoneHandler struct{}

func (TimezoneHandler) Name() string       { return "timezone" }
func (TimezoneHandler) Settings() []string { return []string{"timezone"} }

func (TimezoneHandler) Process(_ context.Context, _ string, value any) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%w: timezone must be a string, got %T", ErrInvalidValue, value)
	}
	tz, err := timezone.Build(name)
	if err != nil {
		return nil, err
	}
	return tz.Name(), nil
}

// AdminHandler owns the "admins" and "admin_channels" id lists.
type AdminHandler struct{}

func (AdminHandler) Name() string       { return "admin" }
func (AdminHandler) Settings() []string { return []string{"admins", "admin_channels"} }

func (AdminHandler) Process(_ context.Context, setting string, value any) (any, error) {
	var raw []string
	switch v := value.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				raw = append(raw, part)
			}
		}
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		return nil, fmt.Errorf("%w: %s must be a list of ids, got %T", ErrInvalidValue, setting, value)
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			return nil, fmt.Errorf("%w: %s entry %q is not an id", ErrInvalidValue, setting, id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Registry maps each setting name to the one handler that owns it.
type Registry struct {
	handlers map[string]Handler
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger, handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler), log: log.Named("settings")}
	for _, h := range handlers {
		for _, setting := range h.Settings() {
			if existing, ok := r.handlers[setting]; ok {
				return nil, fmt.Errorf("%w: %q claimed by %s and %s", ErrDuplicateSetting, setting, existing.Name(), h.Name())
			}
			r.handlers[setting] = h
		}
	}
	return r, nil
}

func (r *Registry) Handler(setting string) (Handler, bool) {
	h, ok := r.handlers[setting]
	return h, ok
}

// Settings lists every known setting name, sorted.
func (r *Registry) Settings() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProcessOne validates a single setting.
func (r *Registry) ProcessOne(ctx context.Context, setting string, value any) (any, error) {
	h, ok := r.handlers[setting]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSetting, setting)
	}
	return h.Process(ctx, setting, value)
}

// Process validates every entry. Unknown or invalid settings are logged and left out of
// the result, and ok turns false.
func (r *Registry) Process(ctx context.Context, settings map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(settings))
	ok := true
	for name, value := range settings {
		v, err := r.ProcessOne(ctx, name, value)
		if err != nil {
			r.log.Warn("Setting rejected", zap.String("setting", name), zap.Error(err))
			ok = false
			continue
		}
		out[name] = v
	}
	return out, ok
}

// ValidateBotConfig runs the admin lists of the bot configuration through the registry.
func (r *Registry) ValidateBotConfig(ctx context.Context, bot config.BotConfig) error {
	if _, err := r.ProcessOne(ctx, "admins", bot.Admins); err != nil {
		return err
	}
	for id, g := range bot.Guilds {
		if _, err := r.ProcessOne(ctx, "admin_channels", g.AdminChannels); err != nil {
			return fmt.Errorf("guild %s: %w", id, err)
		}
	}
	for id, u := range bot.Users {
		if u.Timezone == "" {
			continue
		}
		if _, err := r.ProcessOne(ctx, "timezone", u.Timezone); err != nil {
			return fmt.Errorf("user %s: %w", id, err)
		}
	}
	return nil
}
