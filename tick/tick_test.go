package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromTimeToTimeRoundTrip(t *testing.T) {
	now := time.Now()
	got := ToTime(FromTime(now))
	assert.WithinDuration(t, now, got, time.Microsecond)
}

func TestLocalDateTruncatesToMidnight(t *testing.T) {
	moment := time.Date(2026, 7, 31, 23, 59, 59, 0, time.Local)
	date := LocalDate(FromTime(moment))
	assert.Equal(t, 2026, date.Year())
	assert.Equal(t, time.July, date.Month())
	assert.Equal(t, 31, date.Day())
	assert.Equal(t, 0, date.Hour())
}

func TestFloorToIntervalAlignsToTenMinutes(t *testing.T) {
	base := FromTime(time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	mid := base + TenMinutes/2
	assert.Equal(t, base, FloorToInterval(mid))
	assert.Equal(t, base+TenMinutes, FloorToInterval(base+TenMinutes+1))
}

func TestFloorToIntervalIsIdempotent(t *testing.T) {
	base := FromTime(time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC))
	once := FloorToInterval(base + 12345)
	twice := FloorToInterval(once)
	assert.Equal(t, once, twice)
}
