package models

import "fmt"

// UserSettings are the per-member preferences set from chat or imported from YAML.
type UserSettings struct {
	MemberID string         `json:"member_id" yaml:"member_id"`
	GuildID  string         `json:"guild_id,omitempty" yaml:"guild_id"`
	Settings map[string]any `json:"settings" yaml:"settings"`
}

// Get returns the value of name, or def when unset.
func (u *UserSettings) Get(name string, def any) any {
	if u == nil {
		return def
	}
	if v, ok := u.Settings[name]; ok && v != nil {
		return v
	}
	return def
}

func (u *UserSettings) GetString(name, def string) string {
	v := u.Get(name, nil)
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (u *UserSettings) Put(name string, value any) {
	if u.Settings == nil {
		u.Settings = make(map[string]any)
	}
	u.Settings[name] = value
}
