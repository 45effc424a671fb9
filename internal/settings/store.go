package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"minder/internal/config"
	"minder/internal/db"
	"minder/internal/db/models"

	"gopkg.in/yaml.v3"
)

// Namespace is the key-value namespace per-member settings live in.
const Namespace = "user_settings"

// Store keeps validated per-member settings, falling back to the bot configuration.
type Store struct {
	kv       db.Store
	registry *Registry
	bot      config.BotConfig
}

func NewStore(kv db.Store, registry *Registry, bot config.BotConfig) *Store {
	return &Store{kv: kv, registry: registry, bot: bot}
}

func (s *Store) Registry() *Registry { return s.registry }

// Get returns the stored settings of memberID; a member without any gets an empty set.
func (s *Store) Get(ctx context.Context, memberID string) (*models.UserSettings, error) {
	raw, err := s.kv.Get(ctx, Namespace, memberID)
	if errors.Is(err, db.ErrNotFound) {
		return &models.UserSettings{MemberID: memberID, Settings: map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", memberID, err)
	}

	var us models.UserSettings
	if err := json.Unmarshal(raw, &us); err != nil {
		return nil, fmt.Errorf("decode settings for %s: %w", memberID, err)
	}
	return &us, nil
}

// Set validates one setting and stores it for memberID.
func (s *Store) Set(ctx context.Context, memberID, guildID, setting string, value any) (*models.UserSettings, error) {
	v, err := s.registry.ProcessOne(ctx, setting, value)
	if err != nil {
		return nil, err
	}
	us, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if guildID != "" {
		us.GuildID = guildID
	}
	us.Put(setting, v)
	return us, s.write(ctx, us)
}

// Save validates and stores a complete settings document.
func (s *Store) Save(ctx context.Context, us *models.UserSettings) error {
	if us.MemberID == "" {
		return fmt.Errorf("%w: member_id is required", ErrInvalidValue)
	}
	processed, ok := s.registry.Process(ctx, us.Settings)
	if !ok {
		return fmt.Errorf("%w: settings for %s were rejected", ErrInvalidValue, us.MemberID)
	}
	us.Settings = processed
	return s.write(ctx, us)
}

// Timezone resolves the zone to use for memberID: stored setting, then configuration,
// then fallback.
func (s *Store) Timezone(ctx context.Context, memberID, fallback string) string {
	def := s.bot.UserSetting(memberID, "timezone", fallback)
	us, err := s.Get(ctx, memberID)
	if err != nil {
		return def
	}
	return us.GetString("timezone", def)
}

// Effective merges configured and stored settings for display.
func (s *Store) Effective(ctx context.Context, memberID string) (map[string]any, error) {
	out := make(map[string]any)
	if u, ok := s.bot.Users[memberID]; ok {
		for k, v := range u.Settings {
			out[k] = v
		}
		if u.Timezone != "" {
			out["timezone"] = u.Timezone
		}
	}
	us, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	for k, v := range us.Settings {
		out[k] = v
	}
	return out, nil
}

// Import loads a YAML settings document from path and saves it.
func (s *Store) Import(ctx context.Context, path string) (*models.UserSettings, error) {
	us, err := LoadUserSettingsYAML(path)
	if err != nil {
		return nil, err
	}
	return us, s.Save(ctx, us)
}

func (s *Store) write(ctx context.Context, us *models.UserSettings) error {
	data, err := json.Marshal(us)
	if err != nil {
		return fmt.Errorf("encode settings for %s: %w", us.MemberID, err)
	}
	if err := s.kv.Set(ctx, Namespace, us.MemberID, data); err != nil {
		return fmt.Errorf("store settings for %s: %w", us.MemberID, err)
	}
	return nil
}

// LoadUserSettingsYAML reads a document with member_id, guild_id and settings keys.
func LoadUserSettingsYAML(path string) (*models.UserSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}
	var us models.UserSettings
	if err := yaml.Unmarshal(data, &us); err != nil {
		return nil, fmt.Errorf("error parsing settings file: %w", err)
	}
	if us.Settings == nil {
		us.Settings = map[string]any{}
	}
	return &us, nil
}
