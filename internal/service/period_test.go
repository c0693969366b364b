package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tutor-tasks/internal/model"
	"tutor-tasks/internal/service"
	"tutor-tasks/internal/testutil"
)

func TestPeriodFor(t *testing.T) {
	tests := []struct {
		name      string
		freq      model.Frequency
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "daily",
			freq:      model.FrequencyDaily,
			now:       testutil.Day(2026, 3, 10).Add(23*time.Hour + 59*time.Minute),
			wantStart: testutil.Day(2026, 3, 10),
			wantEnd:   testutil.Day(2026, 3, 11).Add(-time.Millisecond),
		},
		{
			name:      "monthly in february",
			freq:      model.FrequencyMonthly,
			now:       testutil.Day(2028, 2, 29),
			wantStart: testutil.Day(2028, 2, 1),
			wantEnd:   testutil.Day(2028, 3, 1).Add(-time.Millisecond),
		},
		{
			name:      "monthly at year end",
			freq:      model.FrequencyMonthly,
			now:       testutil.Day(2026, 12, 31).Add(time.Hour),
			wantStart: testutil.Day(2026, 12, 1),
			wantEnd:   testutil.Day(2027, 1, 1).Add(-time.Millisecond),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := service.PeriodFor(tt.freq, tt.now)
			assert.True(t, tt.wantStart.Equal(start), "start %v", start)
			assert.True(t, tt.wantEnd.Equal(end), "end %v", end)
		})
	}
}

func TestRenewalWindow(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	now := time.Date(2026, 3, 10, 0, 5, 0, 0, loc)

	start, end := service.RenewalWindow(now)
	assert.True(t, time.Date(2026, 3, 10, 0, 0, 0, 0, loc).Equal(start))
	assert.True(t, time.Date(2026, 3, 11, 23, 59, 59, int(999*time.Millisecond), loc).Equal(end))
}
