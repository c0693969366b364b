package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"tutor-tasks/internal/model"
)

// TemplateRepository stores task templates. Rows are never removed.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, tmpl *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Create(tmpl).Error; err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepository) Save(ctx context.Context, tmpl *model.TaskTemplate) error {
	if err := r.db.WithContext(ctx).Save(tmpl).Error; err != nil {
		return fmt.Errorf("save template: %w", err)
	}
	return nil
}

// FindByID returns gorm.ErrRecordNotFound unwrapped when the id is unknown.
func (r *TemplateRepository) FindByID(ctx context.Context, id uint) (*model.TaskTemplate, error) {
	var tmpl model.TaskTemplate
	if err := r.db.WithContext(ctx).First(&tmpl, id).Error; err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// FindByIDs loads templates keyed by id; unknown ids are simply absent.
func (r *TemplateRepository) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.TaskTemplate, error) {
	out := make(map[uint]model.TaskTemplate, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var templates []model.TaskTemplate
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("find templates: %w", err)
	}
	for _, tmpl := range templates {
		out[tmpl.ID] = tmpl
	}
	return out, nil
}

func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]model.TaskTemplate, error) {
	var templates []model.TaskTemplate
	db := r.db.WithContext(ctx)
	if activeOnly {
		db = db.Where("active = ?", true)
	}
	if err := db.Order("id ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// Deactivate flips the soft-delete flag. Assigned tasks keep referencing the row.
func (r *TemplateRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&model.TaskTemplate{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("deactivate template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
