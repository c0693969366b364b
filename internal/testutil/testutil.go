// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

// PrepareDB opens a private in-memory SQLite database with the schema applied.
func PrepareDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repository.NewDB("sqlite", dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	// one connection keeps the in-memory database alive and serializes access
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, firstName string, role model.Role) model.User {
	t.Helper()
	usr := model.User{FirstName: firstName, Role: role}
	if err := repository.NewUserRepository(db).Create(context.Background(), &usr); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateTemplate(t *testing.T, db *gorm.DB, title string, freq model.Frequency, target model.Metrics) model.TaskTemplate {
	t.Helper()
	tmpl := model.TaskTemplate{
		Title:      title,
		Recurrence: model.Recurrence{Frequency: freq},
		Metrics:    model.MetricSet{model.MetricExercisesSubmitted},
		Target:     target,
		Active:     true,
	}
	if err := repository.NewTemplateRepository(db).Create(context.Background(), &tmpl); err != nil {
		t.Fatalf("CreateTemplate() failed: %v", err)
	}
	return tmpl
}

// CreateAssignedTask inserts task as given; zero Status becomes pending.
func CreateAssignedTask(t *testing.T, db *gorm.DB, task model.AssignedTask) model.AssignedTask {
	t.Helper()
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	if task.RecurrenceType == "" {
		task.RecurrenceType = model.FrequencyDaily
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("CreateAssignedTask() failed: %v", err)
	}
	return task
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Clock is a settable time source.
type Clock struct {
	Current time.Time
}

func (c *Clock) Now() time.Time {
	return c.Current
}

func (c *Clock) Advance(d time.Duration) {
	c.Current = c.Current.Add(d)
}
