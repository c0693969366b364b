package model

import (
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the lifecycle state of an assigned task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed" // period elapsed without completion, set by an admin
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusActive, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// AssignedTask is one instance of a template for one child over one period.
// Target and recurrence are snapshots taken at assignment time.
type AssignedTask struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	TemplateID     uint           `gorm:"not null;index:idx_assigned_template_child" json:"templateId"`
	ChildID        uint           `gorm:"not null;index:idx_assigned_template_child;index" json:"childId"`
	PeriodStart    time.Time      `gorm:"not null;index" json:"periodStart"`
	PeriodEnd      time.Time      `gorm:"not null;index" json:"periodEnd"`
	RecurrenceType Frequency      `gorm:"type:varchar(16);not null" json:"recurrenceType"`
	MetricsTarget  Metrics        `gorm:"embedded;embeddedPrefix:target_" json:"metricsTarget"`
	MetricsCurrent Metrics        `gorm:"embedded;embeddedPrefix:current_" json:"metricsCurrent"`
	Status         TaskStatus     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CompletedAt    *time.Time     `json:"completedAt"`
	AutoRenew      bool           `gorm:"not null;default:false;index" json:"autoRenew"`
	CreatedBy      *uint          `json:"createdBy,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// ResolveCompletion marks the task completed the first time its current
// metrics satisfy the target. It reports whether the transition happened now;
// completed, failed and unsatisfied tasks are left untouched.
func (t *AssignedTask) ResolveCompletion(now time.Time) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusActive {
		return false
	}
	if !t.MetricsCurrent.Satisfies(t.MetricsTarget) {
		return false
	}
	completedAt := now
	t.Status = TaskStatusCompleted
	t.CompletedAt = &completedAt
	return true
}

// Covers reports whether instant falls inside the task period.
func (t AssignedTask) Covers(instant time.Time) bool {
	return !instant.Before(t.PeriodStart) && !instant.After(t.PeriodEnd)
}
