package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserSettingsGet(t *testing.T) {
	var missing *UserSettings
	assert.Equal(t, "UTC", missing.Get("timezone", "UTC"))
	assert.Equal(t, "UTC", missing.GetString("timezone", "UTC"))

	us := &UserSettings{MemberID: "1"}
	us.Put("timezone", "Europe/Paris")
	us.Put("count", 3)

	assert.Equal(t, "Europe/Paris", us.GetString("timezone", "UTC"))
	assert.Equal(t, "3", us.GetString("count", ""))
	assert.Equal(t, "x", us.Get("other", "x"))
}
