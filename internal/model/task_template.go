package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskTemplate is a reusable task definition that gets instantiated into
// AssignedTask rows. Templates are never removed; Active=false hides them.
type TaskTemplate struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Title       string `gorm:"not null" json:"title"`
	Description string `json:"description"`
	// Recurrence is derived from RecurrenceRaw on load and written back in
	// canonical form on save.
	Recurrence    Recurrence     `gorm:"-" json:"recurrence"`
	RecurrenceRaw datatypes.JSON `gorm:"column:recurrence" json:"-"`
	Metrics       MetricSet      `gorm:"type:text" json:"metrics"`
	Target        Metrics        `gorm:"embedded;embeddedPrefix:target_" json:"target"`
	Active        bool           `gorm:"not null;default:true;index" json:"active"`
	CreatedBy     *uint          `json:"createdBy,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (t *TaskTemplate) BeforeSave(tx *gorm.DB) error {
	t.Recurrence = t.Recurrence.Normalized()
	t.RecurrenceRaw = datatypes.JSON(t.Recurrence.JSON())
	if t.Metrics == nil {
		t.Metrics = MetricSet{}
	}
	return nil
}

func (t *TaskTemplate) AfterFind(tx *gorm.DB) error {
	t.Recurrence = ParseRecurrence(t.RecurrenceRaw)
	return nil
}
