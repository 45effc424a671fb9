// Package fuzzytime resolves free-text time expressions ("in 5 minutes", "friday") into
// absolute instants.
package fuzzytime

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"minder/internal/timezone"

	"github.com/jmhodges/clock"
	dps "github.com/markusmobius/go-dateparser"
)

// ErrUnresolvableTime matches every *UnresolvableError via errors.Is.
var ErrUnresolvableTime = errors.New("unresolvable time")

// UnresolvableError carries the text that could not be parsed so callers can echo it back.
type UnresolvableError struct {
	ProvidedWhen string
	Err          error
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("unable to resolve %q into a date/time", e.ProvidedWhen)
}

func (e *UnresolvableError) Unwrap() error { return e.Err }

func (e *UnresolvableError) Is(target error) bool { return target == ErrUnresolvableTime }

// FuzzyTime is the outcome of resolving ProvidedWhen at CreatedTime within Timezone.
type FuzzyTime struct {
	ProvidedWhen string
	CreatedTime  time.Time
	ResolvedTime time.Time
	Timezone     timezone.Timezone
}

// Resolver parses expressions with a natural-language date parser, preferring future
// interpretations when the text does not say which way to go.
type Resolver struct {
	clk       clock.Clock
	languages []string
}

func NewResolver(clk clock.Clock) *Resolver {
	return &Resolver{clk: clk, languages: []string{"en"}}
}

var defaultResolver = NewResolver(clock.New())

// Build resolves providedWhen with the wall clock. A zero createdAt means now and a zero
// tz means UTC.
func Build(providedWhen string, createdAt time.Time, tz timezone.Timezone) (*FuzzyTime, error) {
	return defaultResolver.Resolve(providedWhen, createdAt, tz)
}

// Resolve interprets providedWhen relative to createdAt in tz.
func (r *Resolver) Resolve(providedWhen string, createdAt time.Time, tz timezone.Timezone) (*FuzzyTime, error) {
	text := strings.TrimSpace(providedWhen)
	if text == "" {
		return nil, &UnresolvableError{ProvidedWhen: providedWhen, Err: errors.New("empty expression")}
	}
	if tz.IsZero() {
		tz = timezone.UTC()
	}
	if createdAt.IsZero() {
		createdAt = r.clk.Now()
	}
	loc := tz.Location()

	if wall, ok := parseWallClock(text); ok {
		resolved, err := tz.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second())
		if err != nil {
			return nil, &UnresolvableError{ProvidedWhen: providedWhen, Err: err}
		}
		return &FuzzyTime{
			ProvidedWhen: providedWhen,
			CreatedTime:  tz.In(createdAt),
			ResolvedTime: resolved,
			Timezone:     tz,
		}, nil
	}

	cfg := &dps.Configuration{
		CurrentTime:         tz.In(createdAt),
		DefaultTimezone:     loc,
		PreferredDateSource: dps.Future,
		DefaultLanguages:    r.languages,
	}
	dt, err := dps.Parse(cfg, text)
	if err != nil {
		return nil, &UnresolvableError{ProvidedWhen: providedWhen, Err: err}
	}
	if dt.Time.IsZero() {
		return nil, &UnresolvableError{ProvidedWhen: providedWhen}
	}

	return &FuzzyTime{
		ProvidedWhen: providedWhen,
		CreatedTime:  tz.In(createdAt),
		ResolvedTime: tz.In(dt.Time),
		Timezone:     tz,
	}, nil
}

// FromTimestamps rebuilds a FuzzyTime from its persisted scalars without parsing again.
func FromTimestamps(providedWhen string, createdTS, resolvedTS float64, tz timezone.Timezone) *FuzzyTime {
	if tz.IsZero() {
		tz = timezone.UTC()
	}
	return &FuzzyTime{
		ProvidedWhen: providedWhen,
		CreatedTime:  TimeFromTimestamp(createdTS, tz),
		ResolvedTime: TimeFromTimestamp(resolvedTS, tz),
		Timezone:     tz,
	}
}

// SecondsRemaining returns whole seconds until ResolvedTime, or false once it is not in
// the future.
func (f *FuzzyTime) SecondsRemaining(now time.Time) (int64, bool) {
	left := f.ResolvedTime.Sub(now)
	if left <= 0 {
		return 0, false
	}
	return int64(left / time.Second), true
}

func (f *FuzzyTime) CreatedTimestamp() float64 { return Timestamp(f.CreatedTime) }

func (f *FuzzyTime) ResolvedTimestamp() float64 { return Timestamp(f.ResolvedTime) }

func (f *FuzzyTime) String() string {
	return fmt.Sprintf("%q -> %s", f.ProvidedWhen, f.ResolvedTime.Format(time.RFC1123))
}

// Timestamp projects t to epoch seconds with microsecond precision.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

// TimeFromTimestamp is the inverse of Timestamp, expressed in tz.
func TimeFromTimestamp(ts float64, tz timezone.Timezone) time.Time {
	return tz.In(time.UnixMicro(int64(math.Round(ts * 1e6))))
}

// wallClockLayouts are the explicit zone-less forms checked against DST transitions
// before falling back to the natural-language parser.
var wallClockLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// parseWallClock reads text as a calendar date and clock time with no zone attached.
func parseWallClock(text string) (time.Time, bool) {
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
