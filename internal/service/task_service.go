package service

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

// TaskQuery filters a child's task listing.
type TaskQuery struct {
	Status string `query:"status" json:"status" validate:"omitempty,oneof=pending active completed failed"`
	// Current keeps only tasks whose period contains the current instant.
	Current bool `query:"current" json:"current"`
}

// TaskService wraps assigned task reads and administrative changes.
type TaskService struct {
	tasks *repository.AssignedTaskRepository
	clock Clock
	log   logger.Logger
}

func NewTaskService(tasks *repository.AssignedTaskRepository, clock Clock, log logger.Logger) *TaskService {
	return &TaskService{tasks: tasks, clock: clock, log: log}
}

func (s *TaskService) ListForChild(ctx context.Context, caller *model.User, childID uint, query TaskQuery) ([]model.AssignedTask, error) {
	if !canAccessChild(caller, childID) {
		return nil, ErrForbidden
	}
	if err := validateStruct(query); err != nil {
		return nil, err
	}

	var filter repository.TaskFilter
	if query.Status != "" {
		status := model.TaskStatus(query.Status)
		filter.Status = &status
	}
	if query.Current {
		now := s.clock.Now()
		filter.CoveringAt = &now
	}
	tasks, err := s.tasks.ListByChild(ctx, childID, filter)
	if err != nil {
		return nil, newStoreError("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) ListForTemplate(ctx context.Context, caller *model.User, templateID uint) ([]model.AssignedTask, error) {
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	tasks, err := s.tasks.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, newStoreError("list tasks", err)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, caller *model.User, taskID uint) (*model.AssignedTask, error) {
	task, err := s.find(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !canAccessChild(caller, task.ChildID) {
		return nil, ErrForbidden
	}
	return task, nil
}

// SetStatus is the administrative status change. Completion is left to the
// progress resolver, and completed tasks are final.
func (s *TaskService) SetStatus(ctx context.Context, caller *model.User, taskID uint, status model.TaskStatus) (*model.AssignedTask, error) {
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	switch status {
	case model.TaskStatusPending, model.TaskStatusActive, model.TaskStatusFailed:
	default:
		return nil, NewValidationError(errInvalidInput, FieldError{Field: "status", Error: "status must be one of pending, active, failed"})
	}

	task, err := s.find(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == model.TaskStatusCompleted {
		return nil, NewValidationError(errInvalidInput, FieldError{Field: "status", Error: "task is already completed"})
	}
	if task.Status == status {
		return task, nil
	}

	previous := task.Status
	task.Status = status
	if err := s.tasks.Save(ctx, task); err != nil {
		return nil, newStoreError("save task status", err)
	}
	s.log.Info("task status changed", logger.Fields{"task_id": task.ID, "from": previous, "to": status, "by": caller.ID})
	return task, nil
}

// Delete soft-deletes a task. A deleted task is never renewed and also stops
// its predecessors from being renewed again.
func (s *TaskService) Delete(ctx context.Context, caller *model.User, taskID uint) error {
	if !isAdmin(caller) {
		return ErrForbidden
	}
	if err := s.tasks.Delete(ctx, taskID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTaskNotFound
		}
		return newStoreError("delete task", err)
	}
	s.log.Info("task deleted", logger.Fields{"task_id": taskID, "by": caller.ID})
	return nil
}

func (s *TaskService) find(ctx context.Context, taskID uint) (*model.AssignedTask, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, newStoreError("find task", err)
	}
	return task, nil
}
