package tzmath

import (
	"fmt"
	"time"
)

const wallLayout = "2006-01-02T15:04:05"

// naiveLayouts are the zone-less forms accepted by ToRFC3339.
var naiveLayouts = []string{
	wallLayout,
	"2006-01-02T15:04",
	"2006-01-02",
}

// ToRFC3339 normalises a datetime argument to RFC3339. Values that already
// carry an offset are returned unchanged. Zone-less values are read as wall
// clock time in zone; if zone cannot be resolved they are taken as UTC.
func (m *Math) ToRFC3339(value, zone string) (string, error) {
	if _, err := time.Parse(time.RFC3339, value); err == nil {
		return value, nil
	}

	var (
		wc  time.Time
		err error
	)
	for _, layout := range naiveLayouts {
		if wc, err = time.Parse(layout, value); err == nil {
			break
		}
	}
	if err != nil {
		return "", fmt.Errorf("invalid datetime %q: use RFC3339 (2024-01-15T09:00:00-05:00) or a local datetime (2024-01-15T09:00:00)", value)
	}

	minutes, err := m.settleOffset(wc, zone)
	if err != nil {
		minutes = 0
	}
	return wc.Format(wallLayout) + FormatOffset(minutes), nil
}

// settleOffset finds the offset that applies at wall clock wc in zone. The
// first guess uses wc read as UTC; a second pass corrects it when the guess
// landed on the other side of a transition.
func (m *Math) settleOffset(wc time.Time, zone string) (int, error) {
	first, err := m.OffsetMinutes(wc, zone)
	if err != nil {
		return 0, err
	}
	second, err := m.OffsetMinutes(wc.Add(-time.Duration(first)*time.Minute), zone)
	if err != nil {
		return 0, err
	}
	return second, nil
}

// FormatInstant renders t as an RFC3339 timestamp in zone's wall clock with
// the derived offset. If zone cannot be resolved, t is rendered in UTC.
func (m *Math) FormatInstant(t time.Time, zone string) string {
	wc, err := m.wallClock(t, zone)
	if err != nil {
		return t.UTC().Format(time.RFC3339)
	}
	return wc.Format(wallLayout) + m.Offset(t, zone)
}
