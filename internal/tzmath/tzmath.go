// Package tzmath derives UTC offsets and daylight-saving status for named
// zones from nothing more than a "render this instant in that zone" primitive.
//
// Offsets are computed by rendering the same instant twice, once in the
// target zone and once in UTC, re-reading both renderings as UTC wall clocks
// and subtracting. Results are never cached: zone rules change by legislation
// and callers always want the current answer.
package tzmath

import (
	"fmt"
	"time"
)

// FieldLayout is the fixed, sortable calendar/time field layout every
// Formatter must produce.
const FieldLayout = "2006-01-02 15:04:05"

// Formatter renders an instant as wall-clock fields (FieldLayout) in the
// named IANA zone. It returns an error for zones it does not recognise.
type Formatter interface {
	FormatInZone(t time.Time, zone string) (string, error)
}

// LocationFormatter is the default Formatter, backed by time.LoadLocation.
type LocationFormatter struct{}

func (LocationFormatter) FormatInZone(t time.Time, zone string) (string, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return "", fmt.Errorf("loading zone %q: %w", zone, err)
	}
	return t.In(loc).Format(FieldLayout), nil
}

// Math computes offsets and DST flags through a Formatter.
// It holds no mutable state and is safe for concurrent use.
type Math struct {
	f Formatter
}

// New returns a Math using f. A nil f selects LocationFormatter.
func New(f Formatter) *Math {
	if f == nil {
		f = LocationFormatter{}
	}
	return &Math{f: f}
}

// Valid reports whether the formatter recognises zone.
func (m *Math) Valid(zone string) bool {
	if zone == "" {
		return false
	}
	_, err := m.f.FormatInZone(time.Unix(0, 0).UTC(), zone)
	return err == nil
}

// OffsetMinutes returns the signed distance of zone's wall clock from UTC at
// instant t, in minutes.
func (m *Math) OffsetMinutes(t time.Time, zone string) (int, error) {
	local, err := m.wallClock(t, zone)
	if err != nil {
		return 0, err
	}
	utc, err := m.wallClock(t, "UTC")
	if err != nil {
		return 0, err
	}
	return int(local.Sub(utc).Round(time.Minute) / time.Minute), nil
}

// wallClock renders t in zone and parses the fields back as if they were UTC.
func (m *Math) wallClock(t time.Time, zone string) (time.Time, error) {
	s, err := m.f.FormatInZone(t, zone)
	if err != nil {
		return time.Time{}, err
	}
	wc, err := time.Parse(FieldLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing wall clock %q for zone %q: %w", s, zone, err)
	}
	return wc, nil
}

// Offset returns the RFC3339 offset of zone at instant t: "Z" for zero,
// otherwise ±HH:MM. Failures yield "Z".
func (m *Math) Offset(t time.Time, zone string) string {
	minutes, err := m.OffsetMinutes(t, zone)
	if err != nil {
		return "Z"
	}
	return FormatOffset(minutes)
}

// FormatOffset renders a signed minute offset as an RFC3339 suffix.
func FormatOffset(minutes int) string {
	if minutes == 0 {
		return "Z"
	}
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("%c%02d:%02d", sign, minutes/60, minutes%60)
}

// IsDST reports whether zone observes daylight saving at instant t.
//
// The offsets on January 1 and July 1 of t's year in zone are compared; if they are
// equal the zone has no seasonal change that year. Otherwise t is considered
// in DST when its offset equals the smaller of the two. This follows the
// northern-hemisphere convention and is a heuristic, not a transition-table
// lookup: it is wrong for southern-hemisphere zones and for zones with more
// than one transition pair per year. Failures yield false.
func (m *Math) IsDST(t time.Time, zone string) bool {
	local, err := m.wallClock(t, zone)
	if err != nil {
		return false
	}
	year := local.Year()
	jan, err := m.OffsetMinutes(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), zone)
	if err != nil {
		return false
	}
	jul, err := m.OffsetMinutes(time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC), zone)
	if err != nil {
		return false
	}
	if jan == jul {
		return false
	}
	current, err := m.OffsetMinutes(t, zone)
	if err != nil {
		return false
	}
	return current == min(jan, jul)
}
