package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

// TemplateInput is the admin-editable part of a template. Recurrence accepts
// every legacy shape and is normalized on decode.
type TemplateInput struct {
	Title       string           `json:"title" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	Recurrence  model.Recurrence `json:"recurrence"`
	Metrics     model.MetricSet  `json:"metrics" validate:"omitempty,dive,metric_key"`
	Target      model.Metrics    `json:"target"`
}

// TemplateService manages reusable task templates.
type TemplateService struct {
	repo *repository.TemplateRepository
	log  logger.Logger
}

func NewTemplateService(repo *repository.TemplateRepository, log logger.Logger) *TemplateService {
	return &TemplateService{repo: repo, log: log}
}

func (s *TemplateService) Create(ctx context.Context, caller *model.User, input TemplateInput) (*model.TaskTemplate, error) {
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	if err := prepareTemplateInput(&input); err != nil {
		return nil, err
	}

	tmpl := model.TaskTemplate{Active: true, CreatedBy: &caller.ID}
	applyTemplateInput(&tmpl, input)
	if err := s.repo.Create(ctx, &tmpl); err != nil {
		return nil, newStoreError("create template", err)
	}

	s.log.Info("template created", logger.Fields{"template_id": tmpl.ID, "frequency": tmpl.Recurrence.Frequency, "by": caller.ID})
	return &tmpl, nil
}

// Update replaces the editable fields. Already assigned tasks keep their snapshot.
func (s *TemplateService) Update(ctx context.Context, caller *model.User, id uint, input TemplateInput) (*model.TaskTemplate, error) {
	if !isAdmin(caller) {
		return nil, ErrForbidden
	}
	if err := prepareTemplateInput(&input); err != nil {
		return nil, err
	}

	tmpl, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	applyTemplateInput(tmpl, input)
	if err := s.repo.Save(ctx, tmpl); err != nil {
		return nil, newStoreError("save template", err)
	}

	s.log.Info("template updated", logger.Fields{"template_id": tmpl.ID, "frequency": tmpl.Recurrence.Frequency, "by": caller.ID})
	return tmpl, nil
}

func (s *TemplateService) Get(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	return s.find(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, includeInactive bool) ([]model.TaskTemplate, error) {
	templates, err := s.repo.List(ctx, !includeInactive)
	if err != nil {
		return nil, newStoreError("list templates", err)
	}
	return templates, nil
}

// Delete deactivates the template; the row stays for historical assignments.
func (s *TemplateService) Delete(ctx context.Context, caller *model.User, id uint) error {
	if !isAdmin(caller) {
		return ErrForbidden
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		return newStoreError("deactivate template", err)
	}
	s.log.Info("template deactivated", logger.Fields{"template_id": id, "by": caller.ID})
	return nil
}

func (s *TemplateService) find(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	tmpl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, newStoreError("find template", err)
	}
	return tmpl, nil
}

// prepareTemplateInput validates input and fills derived defaults: the
// tracked metric set falls back to every metric with a positive target.
func prepareTemplateInput(input *TemplateInput) error {
	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.Recurrence = input.Recurrence.Normalized()
	if err := validateStruct(input); err != nil {
		return err
	}

	var tracked model.MetricSet
	for _, key := range model.MetricKeys {
		if input.Target.Get(key) > 0 {
			tracked = append(tracked, key)
		}
	}
	if len(tracked) == 0 {
		return NewValidationError(errInvalidInput, FieldError{Field: "target", Error: "at least one target must be greater than zero"})
	}
	if len(input.Metrics) == 0 {
		input.Metrics = tracked
	}
	return nil
}

func applyTemplateInput(tmpl *model.TaskTemplate, input TemplateInput) {
	tmpl.Title = input.Title
	tmpl.Description = input.Description
	tmpl.Recurrence = input.Recurrence
	tmpl.Metrics = dedupeMetricKeys(input.Metrics)
	tmpl.Target = input.Target
}

func dedupeMetricKeys(keys model.MetricSet) model.MetricSet {
	out := make(model.MetricSet, 0, len(keys))
	for _, key := range keys {
		if !out.Contains(key) {
			out = append(out, key)
		}
	}
	return out
}

func isAdmin(user *model.User) bool {
	return user != nil && user.IsAdmin()
}

// canAccessChild reports whether caller may read or update childID's tasks.
func canAccessChild(caller *model.User, childID uint) bool {
	return caller != nil && (caller.IsAdmin() || caller.ID == childID)
}
