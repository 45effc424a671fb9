// Package timezone wraps IANA zone names into validated, reusable values.
package timezone

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

// ErrInvalidTimezone matches every *Error via errors.Is.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Reason tells apart the ways a zone or a local time can be rejected.
type Reason int

const (
	Malformed Reason = iota
	UnknownZone
	NonExistentTime
	AmbiguousTime
)

func (r Reason) String() string {
	switch r {
	case UnknownZone:
		return "unknown zone"
	case NonExistentTime:
		return "non-existent local time"
	case AmbiguousTime:
		return "ambiguous local time"
	default:
		return "malformed"
	}
}

type Error struct {
	Name   string
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("invalid timezone %q: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrInvalidTimezone }

// Timezone is an immutable handle on a named zone. The zero value behaves as UTC.
type Timezone struct {
	name string
	loc  *time.Location
}

// UTC returns the UTC zone.
func UTC() Timezone {
	return Timezone{name: "UTC", loc: time.UTC}
}

// Build validates name against the zone database.
func Build(name string) (Timezone, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "..") || strings.ContainsAny(name, "\\ \t") {
		return Timezone{}, &Error{Name: name, Reason: Malformed}
	}
	// "Local" would tie results to the host configuration.
	if strings.EqualFold(name, "local") {
		return Timezone{}, &Error{Name: name, Reason: UnknownZone}
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		canonical, ok := lookupName(name)
		if !ok {
			return Timezone{}, &Error{Name: name, Reason: UnknownZone, Err: err}
		}
		if loc, err = time.LoadLocation(canonical); err != nil {
			return Timezone{}, &Error{Name: name, Reason: UnknownZone, Err: err}
		}
	}
	return Timezone{name: loc.String(), loc: loc}, nil
}

//go:embed zones.txt
var zoneList string

var zoneIndex = sync.OnceValue(func() map[string]string {
	index := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(zoneList))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		index[strings.ToLower(line)] = line
	}
	return index
})

// lookupName maps a zone name in any letter case to its canonical spelling.
func lookupName(name string) (string, bool) {
	canonical, ok := zoneIndex()[strings.ToLower(name)]
	return canonical, ok
}

// BuildOrWarn is the non-failing variant of Build: an invalid name is logged and
// reported through ok instead of an error.
func BuildOrWarn(name string, log *zap.Logger) (tz Timezone, ok bool) {
	tz, err := Build(name)
	if err != nil {
		log.Warn("Ignoring invalid timezone", zap.String("timezone", name), zap.Error(err))
		return Timezone{}, false
	}
	return tz, true
}

// IsValid reports whether Build would accept name.
func IsValid(name string) bool {
	_, err := Build(name)
	return err == nil
}

func (tz Timezone) Name() string {
	if tz.loc == nil {
		return "UTC"
	}
	return tz.name
}

func (tz Timezone) String() string { return tz.Name() }

func (tz Timezone) IsZero() bool { return tz.loc == nil }

func (tz Timezone) Location() *time.Location {
	if tz.loc == nil {
		return time.UTC
	}
	return tz.loc
}

// UTCOffset returns the zone offset in effect at the given instant.
func (tz Timezone) UTCOffset(at time.Time) time.Duration {
	_, offset := at.In(tz.Location()).Zone()
	return time.Duration(offset) * time.Second
}

// In converts t to this zone.
func (tz Timezone) In(t time.Time) time.Time {
	return t.In(tz.Location())
}

// Date builds a wall-clock time in this zone, failing when the wall clock is skipped
// or repeated by a DST transition.
func (tz Timezone) Date(year int, month time.Month, day, hour, min, sec int) (time.Time, error) {
	if month < time.January || month > time.December || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || min < 0 || min > 59 || sec < 0 || sec > 59 {
		return time.Time{}, &Error{Name: tz.Name(), Reason: Malformed,
			Err: fmt.Errorf("%04d-%02d-%02d %02d:%02d:%02d out of range", year, month, day, hour, min, sec)}
	}

	t := time.Date(year, month, day, hour, min, sec, 0, tz.Location())
	if !sameWallClock(t, year, month, day, hour, min, sec) {
		return time.Time{}, &Error{Name: tz.Name(), Reason: NonExistentTime}
	}

	_, offset := t.Zone()
	for _, probe := range []time.Duration{-3 * time.Hour, 3 * time.Hour} {
		_, other := t.Add(probe).Zone()
		if other == offset {
			continue
		}
		alt := t.Add(time.Duration(offset-other) * time.Second)
		if _, altOffset := alt.Zone(); altOffset == other && sameWallClock(alt, year, month, day, hour, min, sec) {
			return time.Time{}, &Error{Name: tz.Name(), Reason: AmbiguousTime}
		}
	}
	return t, nil
}

func sameWallClock(t time.Time, year int, month time.Month, day, hour, min, sec int) bool {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return y == year && mo == month && d == day && h == hour && mi == min && s == sec
}
