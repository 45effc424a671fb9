package config

import "slices"

// BotConfig holds the chat-side settings: admins, guild allow-list and per-user defaults.
type BotConfig struct {
	Admins            []string               `yaml:"admins"`
	ExtendedErrors    bool                   `yaml:"extended_errors"`
	IgnoreOtherGuilds bool                   `yaml:"ignore_other_guilds"`
	Users             map[string]UserConfig  `yaml:"users"`
	Guilds            map[string]GuildConfig `yaml:"guilds"`
}

type UserConfig struct {
	Name     string            `yaml:"name"`
	Timezone string            `yaml:"timezone"`
	Settings map[string]string `yaml:"settings"`
}

type GuildConfig struct {
	Name          string   `yaml:"name"`
	LogChannel    string   `yaml:"log_channel"`
	AdminChannels []string `yaml:"admin_channels"`
}

// IsAdmin reports whether userID is listed as a bot admin.
func (b BotConfig) IsAdmin(userID string) bool {
	return slices.Contains(b.Admins, userID)
}

// UserSetting returns the configured value of name for userID, or def when unset.
func (b BotConfig) UserSetting(userID, name, def string) string {
	user, ok := b.Users[userID]
	if !ok {
		return def
	}
	if name == "timezone" && user.Timezone != "" {
		return user.Timezone
	}
	if v, ok := user.Settings[name]; ok && v != "" {
		return v
	}
	return def
}

func (b BotConfig) Guild(guildID string) (GuildConfig, bool) {
	g, ok := b.Guilds[guildID]
	return g, ok
}

// AllowsGuild reports whether commands from guildID should be served.
func (b BotConfig) AllowsGuild(guildID string) bool {
	if !b.IgnoreOtherGuilds || guildID == "" {
		return true
	}
	_, ok := b.Guilds[guildID]
	return ok
}
