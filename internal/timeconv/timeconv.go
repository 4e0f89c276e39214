// Package timeconv converts between naive wall-clock strings in an IANA zone
// and absolute UTC instants.
package timeconv

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

var (
	ErrInvalidTimezone = errors.New("invalid timezone")
	ErrInvalidDateTime = errors.New("invalid date-time")
)

// DisplayLayout is the rendering format: RFC 3339 with the zone offset.
const DisplayLayout = time.RFC3339

// naive layouts must carry year through second; fractional seconds are
// accepted by time.Parse after the seconds field.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LoadLocation resolves an IANA zone name. Empty and "Local" are rejected so
// results never depend on the host's zone.
func LoadLocation(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	return loc, nil
}

// LocalToUTC interprets local as wall-clock time in tz and returns the instant.
//
// Ambiguous wall times (clocks set back) resolve to the earlier instant.
// Wall times inside a gap (clocks set forward) are shifted forward by the gap.
func LocalToUTC(local, tz string) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	wall, err := parseNaive(local)
	if err != nil {
		return time.Time{}, err
	}
	return resolve(wall, loc).UTC(), nil
}

// UTCToLocalString renders t in tz using the offset in effect at t.
func UTCToLocalString(t time.Time, tz string) (string, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(DisplayLayout), nil
}

// ISO renders t as a UTC RFC 3339 string with millisecond precision.
func ISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func parseNaive(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, s)
}

// resolve maps a wall clock (parsed as UTC) onto loc deterministically.
func resolve(wall time.Time, loc *time.Location) time.Time {
	guess := time.Date(wall.Year(), wall.Month(), wall.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)

	// offsets in effect around the guess cover both sides of any transition
	before := guess.Add(-24 * time.Hour)
	var best time.Time
	for _, probe := range []time.Time{before, guess, guess.Add(24 * time.Hour)} {
		cand := withOffset(wall, probe).In(loc)
		if !sameWall(cand, wall) {
			continue
		}
		if best.IsZero() || cand.Before(best) {
			best = cand
		}
	}
	if !best.IsZero() {
		return best
	}
	// gap: apply the pre-transition offset, which lands after the gap
	return withOffset(wall, before).In(loc)
}

func withOffset(wall, probe time.Time) time.Time {
	_, off := probe.Zone()
	return wall.Add(-time.Duration(off) * time.Second)
}

func sameWall(t, wall time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := wall.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute() &&
		t.Second() == wall.Second() && t.Nanosecond() == wall.Nanosecond()
}
