package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Satisfies(t *testing.T) {
	tests := []struct {
		name    string
		current Metrics
		target  Metrics
		want    bool
	}{
		{name: "single target met", current: Metrics{ExercisesSubmitted: 5}, target: Metrics{ExercisesSubmitted: 5}, want: true},
		{name: "single target exceeded", current: Metrics{ExercisesSubmitted: 7}, target: Metrics{ExercisesSubmitted: 5}, want: true},
		{name: "single target short", current: Metrics{ExercisesSubmitted: 4}, target: Metrics{ExercisesSubmitted: 5}, want: false},
		{name: "all targets met", current: Metrics{ExercisesSubmitted: 5, HoursSpent: 2.5}, target: Metrics{ExercisesSubmitted: 5, HoursSpent: 2}, want: true},
		{name: "one of two targets short", current: Metrics{ExercisesSubmitted: 5, HoursSpent: 1}, target: Metrics{ExercisesSubmitted: 5, HoursSpent: 2}, want: false},
		{name: "zero targets ignored", current: Metrics{LevelsCompleted: 1}, target: Metrics{LevelsCompleted: 1}, want: true},
		{name: "no targets never satisfied", current: Metrics{ExercisesSubmitted: 10}, target: Metrics{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.current.Satisfies(tt.target))
		})
	}
}

func TestMetrics_SetAndAdd(t *testing.T) {
	var m Metrics
	assert.True(t, m.Set(MetricHoursSpent, 1.5))
	assert.True(t, m.Add(MetricHoursSpent, 1))
	assert.Equal(t, 2.5, m.Get(MetricHoursSpent))
	assert.False(t, m.Set("minutes", 3))
	assert.Equal(t, Metrics{HoursSpent: 2.5}, m)
}

func TestMetricSet_ValueScan(t *testing.T) {
	set := MetricSet{MetricExercisesSubmitted, MetricHoursSpent}
	value, err := set.Value()
	require.NoError(t, err)

	var scanned MetricSet
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, set, scanned)
	assert.True(t, scanned.Contains(MetricHoursSpent))
	assert.False(t, scanned.Contains(MetricLevelsCompleted))

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))
}
