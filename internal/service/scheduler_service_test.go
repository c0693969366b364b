package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/service"
)

func TestSchedulerService_ScheduleDaily(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	scheduler := service.NewSchedulerService(loc, logger.Discard())

	for _, bad := range []string{"", "7", "24:00", "12:60", "ab:cd", "1:2:3"} {
		_, err := scheduler.ScheduleDaily(bad, func() {})
		assert.Error(t, err, bad)
	}

	id, err := scheduler.ScheduleDaily("00:05", func() {})
	require.NoError(t, err)

	scheduler.Start()
	defer scheduler.Stop()

	next := scheduler.Next(id).In(loc)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 5, next.Minute())
	assert.Equal(t, 0, next.Second())
	assert.True(t, next.After(time.Now()))
	assert.True(t, next.Before(time.Now().Add(24*time.Hour+time.Minute)))
}
