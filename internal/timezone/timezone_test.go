package timezone

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func reasonOf(t *testing.T, err error) Reason {
	t.Helper()
	var tzErr *Error
	require.True(t, errors.As(err, &tzErr), "expected *timezone.Error, got %v", err)
	return tzErr.Reason
}

func TestBuild(t *testing.T) {
	tz, err := Build("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", tz.Name())

	tz, err = Build("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", tz.Name())
	assert.Equal(t, "America/New_York", tz.Location().String())
}

func TestBuildIgnoresCase(t *testing.T) {
	cases := map[string]string{
		"utc":              "UTC",
		"america/new_york": "America/New_York",
		"Europe/london":    "Europe/London",
		"US/EASTERN":       "US/Eastern",
		"asia/tokyo":       "Asia/Tokyo",
	}
	for input, want := range cases {
		tz, err := Build(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, tz.Name(), input)
	}
	assert.True(t, IsValid("america/denver"))
	assert.False(t, IsValid("america/nowhere"))
}

func TestBuildRejects(t *testing.T) {
	cases := map[string]Reason{
		"Not/AZone":     UnknownZone,
		"Local":         UnknownZone,
		"":              Malformed,
		"../etc":        Malformed,
		"/etc/zone":     Malformed,
		"Europe/ Paris": Malformed,
	}
	for name, want := range cases {
		_, err := Build(name)
		require.Error(t, err, name)
		assert.ErrorIs(t, err, ErrInvalidTimezone, name)
		assert.Equal(t, want, reasonOf(t, err), name)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("Europe/London"))
	assert.False(t, IsValid("Mars/Olympus_Mons"))
}

func TestBuildOrWarn(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	_, ok := BuildOrWarn("Not/AZone", log)
	assert.False(t, ok)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Not/AZone", logs.All()[0].ContextMap()["timezone"])

	tz, ok := BuildOrWarn("Asia/Tokyo", log)
	assert.True(t, ok)
	assert.Equal(t, "Asia/Tokyo", tz.Name())
	assert.Equal(t, 1, logs.Len())
}

func TestZeroValueIsUTC(t *testing.T) {
	var tz Timezone
	assert.True(t, tz.IsZero())
	assert.Equal(t, "UTC", tz.Name())
	assert.Equal(t, time.UTC, tz.Location())
	assert.False(t, UTC().IsZero())
}

func TestUTCOffset(t *testing.T) {
	kolkata, err := Build("Asia/Kolkata")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Hour+30*time.Minute, kolkata.UTCOffset(time.Now()))

	ny, err := Build("America/New_York")
	require.NoError(t, err)
	winter := time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)
	summer := time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, -5*time.Hour, ny.UTCOffset(winter))
	assert.Equal(t, -4*time.Hour, ny.UTCOffset(summer))
}

func TestDate(t *testing.T) {
	ny, err := Build("America/New_York")
	require.NoError(t, err)

	got, err := ny.Date(2024, time.June, 1, 9, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, -4*time.Hour, ny.UTCOffset(got))

	_, err = ny.Date(2024, time.March, 10, 2, 30, 0)
	assert.ErrorIs(t, err, ErrInvalidTimezone)
	assert.Equal(t, NonExistentTime, reasonOf(t, err))

	_, err = ny.Date(2024, time.November, 3, 1, 30, 0)
	assert.ErrorIs(t, err, ErrInvalidTimezone)
	assert.Equal(t, AmbiguousTime, reasonOf(t, err))

	_, err = ny.Date(2024, time.February, 1, 25, 0, 0)
	assert.Equal(t, Malformed, reasonOf(t, err))

	_, err = UTC().Date(2024, time.March, 10, 2, 30, 0)
	assert.NoError(t, err)
}
