package tzmath

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedFormatter renders wall clocks from a per-zone offset rule so tests do
// not depend on the host zone database.
type fixedFormatter map[string]func(t time.Time) time.Duration

func (f fixedFormatter) FormatInZone(t time.Time, zone string) (string, error) {
	if zone == "UTC" {
		return t.UTC().Format(FieldLayout), nil
	}
	rule, ok := f[zone]
	if !ok {
		return "", errors.New("unknown zone")
	}
	return t.UTC().Add(rule(t)).Format(FieldLayout), nil
}

func constant(d time.Duration) func(time.Time) time.Duration {
	return func(time.Time) time.Duration { return d }
}

// seasonal switches from winter to summer offset between April and October.
func seasonal(winter, summer time.Duration) func(time.Time) time.Duration {
	return func(t time.Time) time.Duration {
		if m := t.UTC().Month(); m >= time.April && m < time.October {
			return summer
		}
		return winter
	}
}

func newFixed() *Math {
	return New(fixedFormatter{
		"Test/Plus0530": constant(5*time.Hour + 30*time.Minute),
		"Test/Minus0930": constant(-(9*time.Hour + 30*time.Minute)),
		"Test/Seasonal": seasonal(-5*time.Hour, -4*time.Hour),
	})
}

func TestOffset_UTCIsZ(t *testing.T) {
	m := New(nil)
	for _, ts := range []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 15, 12, 30, 0, 0, time.UTC),
		time.Unix(0, 0),
	} {
		assert.Equal(t, "Z", m.Offset(ts, "UTC"))
	}
}

func TestOffset_Formatting(t *testing.T) {
	m := newFixed()
	ts := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, "+05:30", m.Offset(ts, "Test/Plus0530"))
	assert.Equal(t, "-09:30", m.Offset(ts, "Test/Minus0930"))
	assert.Equal(t, "-05:00", m.Offset(ts, "Test/Seasonal"))
	assert.Equal(t, "-04:00", m.Offset(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "Test/Seasonal"))
}

func TestOffset_UnknownZoneFallsBackToZ(t *testing.T) {
	assert.Equal(t, "Z", newFixed().Offset(time.Now(), "Nowhere/Atlantis"))
	assert.Equal(t, "Z", New(nil).Offset(time.Now(), "Nowhere/Atlantis"))
}

func TestOffset_LocationFormatter(t *testing.T) {
	m := New(LocationFormatter{})

	assert.Equal(t, "+05:30", m.Offset(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "Asia/Kolkata"))
	assert.Equal(t, "-05:00", m.Offset(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "America/New_York"))
	assert.Equal(t, "-04:00", m.Offset(time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC), "America/New_York"))
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "Z"},
		{60, "+01:00"},
		{-300, "-05:00"},
		{330, "+05:30"},
		{-570, "-09:30"},
		{765, "+12:45"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatOffset(tt.minutes), "minutes=%d", tt.minutes)
	}
}

func TestIsDST_NoSeasonalChange(t *testing.T) {
	m := newFixed()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 366; d += 7 {
		ts := start.AddDate(0, 0, d)
		assert.False(t, m.IsDST(ts, "Test/Plus0530"), ts)
		assert.False(t, m.IsDST(ts, "UTC"), ts)
	}
}

func TestIsDST_MatchesSmallerOffset(t *testing.T) {
	m := newFixed()

	// January/July offsets are -300/-240; the smaller (-300) marks DST.
	assert.True(t, m.IsDST(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "Test/Seasonal"))
	assert.False(t, m.IsDST(time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), "Test/Seasonal"))
}

func TestIsDST_UsesYearInZone(t *testing.T) {
	// Seasonal only from 2025 on. The instant below is still 2024 in UTC but
	// already New Year's Day in the zone.
	reform := func(t time.Time) time.Duration {
		if t.UTC().Year() < 2025 {
			return 13 * time.Hour
		}
		return seasonal(13*time.Hour, 14*time.Hour)(t)
	}
	m := New(fixedFormatter{"Test/Reform": reform})
	ts := time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)

	assert.True(t, m.IsDST(ts, "Test/Reform"))
}

func TestIsDST_UnknownZone(t *testing.T) {
	assert.False(t, newFixed().IsDST(time.Now(), "Nowhere/Atlantis"))
}

func TestValid(t *testing.T) {
	m := New(nil)
	assert.True(t, m.Valid("UTC"))
	assert.True(t, m.Valid("Europe/Berlin"))
	assert.False(t, m.Valid("Not/AZone"))
	assert.False(t, m.Valid(""))
}

func TestToRFC3339(t *testing.T) {
	m := newFixed()
	tests := []struct {
		name  string
		value string
		zone  string
		want  string
	}{
		{"already has offset", "2024-01-15T09:00:00-05:00", "Test/Plus0530", "2024-01-15T09:00:00-05:00"},
		{"already UTC", "2024-01-15T09:00:00Z", "Test/Plus0530", "2024-01-15T09:00:00Z"},
		{"naive in zone", "2024-01-15T09:00:00", "Test/Plus0530", "2024-01-15T09:00:00+05:30"},
		{"naive without seconds", "2024-01-15T09:00", "Test/Minus0930", "2024-01-15T09:00:00-09:30"},
		{"date only", "2024-07-04", "Test/Seasonal", "2024-07-04T00:00:00-04:00"},
		{"naive in UTC", "2024-01-15T09:00:00", "UTC", "2024-01-15T09:00:00Z"},
		{"unknown zone is UTC", "2024-01-15T09:00:00", "Nowhere/Atlantis", "2024-01-15T09:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.ToRFC3339(tt.value, tt.zone)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToRFC3339_Invalid(t *testing.T) {
	_, err := newFixed().ToRFC3339("next tuesday", "UTC")
	assert.Error(t, err)
}

func TestFormatInstant(t *testing.T) {
	m := newFixed()
	ts := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "2024-01-15T17:30:00+05:30", m.FormatInstant(ts, "Test/Plus0530"))
	assert.Equal(t, "2024-01-15T12:00:00Z", m.FormatInstant(ts, "UTC"))
	assert.Equal(t, "2024-01-15T12:00:00Z", m.FormatInstant(ts, "Nowhere/Atlantis"))
}
