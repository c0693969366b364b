package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

// IncrementInput adds Delta to one metric. Delta may be negative as long as
// the result stays non-negative.
type IncrementInput struct {
	Metric string  `json:"metric" validate:"required,metric_key"`
	Delta  float64 `json:"delta" validate:"required"`
}

// ProgressResult is the task after a progress update. Completed is true only
// for the update that completed the task.
type ProgressResult struct {
	Task      *model.AssignedTask `json:"task"`
	Completed bool                `json:"completed"`
}

// ProgressService records metric progress and resolves completion.
type ProgressService struct {
	tasks *repository.AssignedTaskRepository
	clock Clock
	log   logger.Logger
}

func NewProgressService(tasks *repository.AssignedTaskRepository, clock Clock, log logger.Logger) *ProgressService {
	return &ProgressService{tasks: tasks, clock: clock, log: log}
}

// SetMetrics replaces the current metric values of a task.
func (s *ProgressService) SetMetrics(ctx context.Context, caller *model.User, taskID uint, current model.Metrics) (*ProgressResult, error) {
	if err := validateStruct(current); err != nil {
		return nil, err
	}
	return s.update(ctx, caller, taskID, func(task *model.AssignedTask) error {
		task.MetricsCurrent = current
		return nil
	})
}

// IncrementMetric adds a delta to a single metric of a task.
func (s *ProgressService) IncrementMetric(ctx context.Context, caller *model.User, taskID uint, input IncrementInput) (*ProgressResult, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}
	key := model.MetricKey(input.Metric)
	return s.update(ctx, caller, taskID, func(task *model.AssignedTask) error {
		task.MetricsCurrent.Add(key, input.Delta)
		if task.MetricsCurrent.Get(key) < 0 {
			return NewValidationError(errInvalidInput, FieldError{
				Field: "delta",
				Error: fmt.Sprintf("%s would drop below zero", key),
			})
		}
		return nil
	})
}

func (s *ProgressService) update(ctx context.Context, caller *model.User, taskID uint, mutate func(*model.AssignedTask) error) (*ProgressResult, error) {
	if caller == nil {
		return nil, ErrForbidden
	}
	var result ProgressResult
	err := s.tasks.Transaction(ctx, func(tx *repository.AssignedTaskRepository) error {
		task, err := tx.FindByIDForUpdate(ctx, taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTaskNotFound
			}
			return newStoreError("find assigned task", err)
		}
		if !canAccessChild(caller, task.ChildID) {
			return ErrForbidden
		}
		if err := mutate(task); err != nil {
			return err
		}
		result.Completed = task.ResolveCompletion(s.clock.Now())
		if err := tx.Save(ctx, task); err != nil {
			return newStoreError("save progress", err)
		}
		result.Task = task
		return nil
	})
	if err != nil {
		var serr *StoreError
		if errors.As(err, &serr) || IsClientError(err) {
			return nil, err
		}
		return nil, newStoreError("update progress", err)
	}

	if result.Completed {
		s.log.Info("task completed", logger.Fields{
			"task_id":     result.Task.ID,
			"template_id": result.Task.TemplateID,
			"child_id":    result.Task.ChildID,
		})
	}
	return &result, nil
}
