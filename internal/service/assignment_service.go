package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

// AssignInput describes one assignment request. When the period is omitted
// it is derived from today and the template recurrence.
type AssignInput struct {
	TemplateID  uint       `json:"templateId" validate:"required"`
	ChildIDs    []uint     `json:"childIds" validate:"required,min=1,dive,required"`
	PeriodStart *time.Time `json:"periodStart" validate:"required_with=PeriodEnd"`
	PeriodEnd   *time.Time `json:"periodEnd" validate:"required_with=PeriodStart"`
	AutoRenew   bool       `json:"autoRenew"`
}

// AssignResult reports what an assignment call did.
type AssignResult struct {
	Created         []model.AssignedTask `json:"created"`
	CreatedCount    int                  `json:"createdCount"`
	SkippedCount    int                  `json:"skippedCount"`
	SkippedChildIDs []uint               `json:"skippedChildIds"`
}

// AssignmentService instantiates templates into per-child assigned tasks.
type AssignmentService struct {
	templates *repository.TemplateRepository
	tasks     *repository.AssignedTaskRepository
	users     *repository.UserRepository
	clock     Clock
	log       logger.Logger
}

func NewAssignmentService(
	templates *repository.TemplateRepository,
	tasks *repository.AssignedTaskRepository,
	users *repository.UserRepository,
	clock Clock,
	log logger.Logger,
) *AssignmentService {
	return &AssignmentService{templates: templates, tasks: tasks, users: users, clock: clock, log: log}
}

// Assign creates one pending task per child for the template and period.
// Children that already hold a task for this template that has not ended
// before the new period starts are skipped, not rejected.
func (s *AssignmentService) Assign(ctx context.Context, caller *model.User, input AssignInput) (*AssignResult, error) {
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	tmpl, err := s.templates.FindByID(ctx, input.TemplateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, newStoreError("find template", err)
	}
	if !tmpl.Active {
		return nil, ErrTemplateInactive
	}

	childIDs := uniqueIDs(input.ChildIDs)
	if err := s.ensureUsersExist(ctx, childIDs); err != nil {
		return nil, err
	}

	start, end, err := s.resolvePeriod(tmpl.Recurrence.Frequency, input)
	if err != nil {
		return nil, err
	}

	result := &AssignResult{Created: []model.AssignedTask{}, SkippedChildIDs: []uint{}}
	err = s.tasks.Transaction(ctx, func(tx *repository.AssignedTaskRepository) error {
		existing, err := tx.ChildrenAlreadyAssigned(ctx, tmpl.ID, childIDs, start)
		if err != nil {
			return err
		}
		assigned := make(map[uint]bool, len(existing))
		for _, id := range existing {
			assigned[id] = true
		}

		tasks := make([]model.AssignedTask, 0, len(childIDs))
		for _, childID := range childIDs {
			if assigned[childID] {
				result.SkippedChildIDs = append(result.SkippedChildIDs, childID)
				continue
			}
			tasks = append(tasks, model.AssignedTask{
				TemplateID:     tmpl.ID,
				ChildID:        childID,
				PeriodStart:    start,
				PeriodEnd:      end,
				RecurrenceType: tmpl.Recurrence.Frequency,
				MetricsTarget:  tmpl.Target,
				MetricsCurrent: model.Metrics{},
				Status:         model.TaskStatusPending,
				AutoRenew:      input.AutoRenew,
				CreatedBy:      &caller.ID,
			})
		}
		if err := tx.CreateBatch(ctx, tasks); err != nil {
			return err
		}
		result.Created = tasks
		return nil
	})
	if err != nil {
		return nil, newStoreError("assign template", err)
	}

	result.CreatedCount = len(result.Created)
	result.SkippedCount = len(result.SkippedChildIDs)
	s.log.Info("template assigned", logger.Fields{
		"template_id":  tmpl.ID,
		"created":      result.CreatedCount,
		"skipped":      result.SkippedCount,
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
		"auto_renew":   input.AutoRenew,
		"by":           caller.ID,
	})
	return result, nil
}

func (s *AssignmentService) resolvePeriod(freq model.Frequency, input AssignInput) (time.Time, time.Time, error) {
	if input.PeriodStart == nil {
		start, end := PeriodFor(freq, s.clock.Now())
		return start, end, nil
	}
	start, end := *input.PeriodStart, *input.PeriodEnd
	if end.Before(start) {
		return time.Time{}, time.Time{}, NewValidationError(errInvalidInput, FieldError{Field: "periodEnd", Error: "periodEnd must not be before periodStart"})
	}
	return start, end, nil
}

func (s *AssignmentService) ensureUsersExist(ctx context.Context, ids []uint) error {
	found, err := s.users.ExistingIDs(ctx, ids)
	if err != nil {
		return newStoreError("find users", err)
	}
	known := make(map[uint]bool, len(found))
	for _, id := range found {
		known[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, fmt.Sprint(id))
		}
	}
	if len(missing) > 0 {
		return NewValidationError(errInvalidInput, FieldError{Field: "childIds", Error: "unknown users: " + strings.Join(missing, ", ")})
	}
	return nil
}

// uniqueIDs drops duplicates keeping first-seen order.
func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
