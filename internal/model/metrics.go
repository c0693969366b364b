package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MetricKey names a progress metric tracked against a target.
type MetricKey string

const (
	MetricExercisesSubmitted MetricKey = "exercises_submitted"
	MetricLevelsCompleted    MetricKey = "levels_completed"
	MetricHoursSpent         MetricKey = "hours_spent"
)

// MetricKeys lists every tracked metric in a stable order.
var MetricKeys = []MetricKey{MetricExercisesSubmitted, MetricLevelsCompleted, MetricHoursSpent}

func (k MetricKey) Valid() bool {
	switch k {
	case MetricExercisesSubmitted, MetricLevelsCompleted, MetricHoursSpent:
		return true
	}
	return false
}

// Metrics holds one value per tracked metric. Embedded into tables with a
// column prefix (target_, current_).
type Metrics struct {
	ExercisesSubmitted float64 `gorm:"not null;default:0" json:"exercises_submitted" validate:"min=0"`
	LevelsCompleted    float64 `gorm:"not null;default:0" json:"levels_completed" validate:"min=0"`
	HoursSpent         float64 `gorm:"not null;default:0" json:"hours_spent" validate:"min=0"`
}

func (m Metrics) Get(key MetricKey) float64 {
	switch key {
	case MetricExercisesSubmitted:
		return m.ExercisesSubmitted
	case MetricLevelsCompleted:
		return m.LevelsCompleted
	case MetricHoursSpent:
		return m.HoursSpent
	}
	return 0
}

// Set stores value under key and reports whether the key is known.
func (m *Metrics) Set(key MetricKey, value float64) bool {
	switch key {
	case MetricExercisesSubmitted:
		m.ExercisesSubmitted = value
	case MetricLevelsCompleted:
		m.LevelsCompleted = value
	case MetricHoursSpent:
		m.HoursSpent = value
	default:
		return false
	}
	return true
}

func (m *Metrics) Add(key MetricKey, delta float64) bool {
	return m.Set(key, m.Get(key)+delta)
}

// Satisfies reports whether m reaches every nonzero threshold of target.
// Zero thresholds are ignored; a target without any nonzero threshold is
// never satisfied.
func (m Metrics) Satisfies(target Metrics) bool {
	tracked := 0
	for _, key := range MetricKeys {
		want := target.Get(key)
		if want <= 0 {
			continue
		}
		tracked++
		if m.Get(key) < want {
			return false
		}
	}
	return tracked > 0
}

// MetricSet is the list of metrics a template tracks, stored as a JSON array.
type MetricSet []MetricKey

func (s MetricSet) Contains(key MetricKey) bool {
	for _, k := range s {
		if k == key {
			return true
		}
	}
	return false
}

func (s MetricSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]MetricKey(s))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (s *MetricSet) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = MetricSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan metric set: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*s = MetricSet{}
		return nil
	}
	var keys []MetricKey
	if err := json.Unmarshal(raw, &keys); err != nil {
		return fmt.Errorf("scan metric set: %w", err)
	}
	*s = keys
	return nil
}
