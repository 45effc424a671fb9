package reminder

import (
	"testing"
	"time"

	"minder/internal/fuzzytime"
	"minder/internal/timezone"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	created = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)
	owner   = Member{ID: "1001", Name: "alice"}
	general = &Channel{ID: "2002", Name: "general"}
)

func fuzzyIn(d time.Duration) *fuzzytime.FuzzyTime {
	return &fuzzytime.FuzzyTime{
		ProvidedWhen: "in a bit",
		CreatedTime:  created,
		ResolvedTime: created.Add(d),
		Timezone:     timezone.UTC(),
	}
}

func TestNewDerivesDMAndKey(t *testing.T) {
	dm := New(fuzzyIn(time.Hour), owner, "stretch", nil)
	assert.True(t, dm.FromDM)
	assert.Empty(t, dm.ChannelID)
	assert.Equal(t, MakeKey("1001", fuzzytime.Timestamp(created.Add(time.Hour))), dm.Key)
	assert.False(t, dm.UserNotified)
	assert.Equal(t, "UTC", dm.TimezoneName)

	ch := New(fuzzyIn(time.Hour), owner, "stretch", general)
	assert.False(t, ch.FromDM)
	assert.Equal(t, "2002", ch.ChannelID)
	assert.Equal(t, "general", ch.ChannelName)
}

func TestKeyIsStable(t *testing.T) {
	a := New(fuzzyIn(time.Hour), owner, "one", nil)
	b := New(fuzzyIn(time.Hour), owner, "two", general)
	assert.Equal(t, a.Key, b.Key)

	c := New(fuzzyIn(time.Hour+time.Millisecond), owner, "one", nil)
	assert.NotEqual(t, a.Key, c.Key)

	other := New(fuzzyIn(time.Hour), Member{ID: "1002", Name: "bob"}, "one", nil)
	assert.NotEqual(t, a.Key, other.Key)

	explicit := New(fuzzyIn(time.Hour), owner, "one", nil, WithKey("custom"))
	assert.Equal(t, "custom", explicit.Key)

	key := a.Key
	a.Content = "changed"
	a.MarkNotified()
	assert.Equal(t, key, a.Key)
}

func TestMakeKeyFormat(t *testing.T) {
	assert.Equal(t, "1001:1704888000.5", MakeKey("1001", 1704888000.5))
	assert.Equal(t, "1001:1704888000", MakeKey("1001", 1704888000))
}

func TestIsCompleteIgnoresNotified(t *testing.T) {
	fake := clock.NewFake()
	fake.Set(created)
	r := New(fuzzyIn(time.Minute), owner, "tea", nil)

	assert.False(t, r.IsComplete(fake.Now()))
	r.MarkNotified()
	assert.False(t, r.IsComplete(fake.Now()))

	fake.Add(time.Minute)
	assert.True(t, r.IsComplete(fake.Now()), "trigger equal to now is complete")
	r.UserNotified = false
	assert.True(t, r.IsComplete(fake.Now()))
}

func TestMarkNotifiedIsIdempotent(t *testing.T) {
	r := New(fuzzyIn(time.Minute), owner, "tea", nil)
	r.MarkNotified()
	r.MarkNotified()
	assert.True(t, r.UserNotified)
}

func TestSecondsRemaining(t *testing.T) {
	r := New(fuzzyIn(5*time.Minute), owner, "tea", nil)

	secs, ok := r.SecondsRemaining(created)
	require.True(t, ok)
	assert.Equal(t, int64(300), secs)

	_, ok = r.SecondsRemaining(created.Add(10 * time.Minute))
	assert.False(t, ok)
}

func TestTimezoneDerivation(t *testing.T) {
	tokyo, err := timezone.Build("Asia/Tokyo")
	require.NoError(t, err)
	ft := fuzzyIn(time.Hour)
	ft.Timezone = tokyo

	r := New(ft, owner, "ramen", nil)
	assert.Equal(t, "Asia/Tokyo", r.TimezoneName)
	assert.Equal(t, "Asia/Tokyo", r.Timezone().Name())
	assert.Equal(t, "Asia/Tokyo", r.TriggerTime().Location().String())
	assert.True(t, r.TriggerTime().Equal(created.Add(time.Hour)))

	r.TimezoneName = "Bogus/Zone"
	assert.Equal(t, "UTC", r.Timezone().Name())
}

func TestBuildFromText(t *testing.T) {
	fake := clock.NewFake()
	fake.Set(created)
	resolver := fuzzytime.NewResolver(fake)

	r, err := Build(resolver, "in 5 minutes", owner, "tea", nil, timezone.Timezone{})
	require.NoError(t, err)
	assert.Equal(t, "in 5 minutes", r.ProvidedWhen)
	assert.Equal(t, "UTC", r.TimezoneName)
	assert.WithinDuration(t, created.Add(5*time.Minute), r.TriggerTime(), time.Second)
	assert.InDelta(t, fuzzytime.Timestamp(created), r.CreatedTS, 1e-6)

	_, err = Build(resolver, "", owner, "tea", nil, timezone.UTC())
	assert.ErrorIs(t, err, fuzzytime.ErrUnresolvableTime)
}

func TestValidate(t *testing.T) {
	r := New(fuzzyIn(time.Hour), owner, "tea", general)
	require.NoError(t, r.Validate())

	bad := r.Clone()
	bad.FromDM = true
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)

	bad = r.Clone()
	bad.TimezoneName = "Nope/Nope"
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)

	bad = r.Clone()
	bad.MemberID = ""
	assert.ErrorIs(t, bad.Validate(), ErrInvalid)
}

func TestAsMap(t *testing.T) {
	r := New(fuzzyIn(time.Hour), owner, "tea", general)
	m := r.AsMap(created)

	for _, field := range []string{
		"member_id", "member_name", "channel_id", "channel_name", "provided_when", "content",
		"trigger_ts", "created_ts", "user_notified", "from_dm", "timezone_name", "is_complete",
	} {
		assert.Contains(t, m, field)
	}
	assert.Equal(t, false, m["is_complete"])
	assert.Equal(t, true, r.AsMap(created.Add(2*time.Hour))["is_complete"])
}

func TestRender(t *testing.T) {
	r := New(fuzzyIn(90*time.Minute), owner, "drink water", general)

	pending := r.Render(created)
	assert.Contains(t, pending, "Pending Reminder for alice")
	assert.Contains(t, pending, "1h 30m 0s")
	assert.Contains(t, pending, "in a bit")
	assert.Contains(t, pending, "```drink water```")
	assert.Contains(t, pending, "#general")

	done := r.Render(created.Add(2 * time.Hour))
	assert.Contains(t, done, "Complete Reminder")
	assert.Contains(t, done, "`N/A`")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h 0m 1s", FormatDuration(3*time.Hour+time.Second))
	assert.Equal(t, "2d 1h 0m", FormatDuration(49*time.Hour))
}
