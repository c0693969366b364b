package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutor-tasks/internal/model"
)

// TaskFilter narrows assigned task listings.
type TaskFilter struct {
	Status *model.TaskStatus
	// CoveringAt keeps only tasks whose period contains the instant.
	CoveringAt *time.Time
}

// AssignedTaskRepository handles assigned task rows.
type AssignedTaskRepository struct {
	db *gorm.DB
}

func NewAssignedTaskRepository(db *gorm.DB) *AssignedTaskRepository {
	return &AssignedTaskRepository{db: db}
}

// Transaction runs fn with a repository bound to a single transaction.
func (r *AssignedTaskRepository) Transaction(ctx context.Context, fn func(tx *AssignedTaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&AssignedTaskRepository{db: tx})
	})
}

// CreateBatch inserts all tasks in one statement.
func (r *AssignedTaskRepository) CreateBatch(ctx context.Context, tasks []model.AssignedTask) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&tasks).Error; err != nil {
		return fmt.Errorf("create assigned tasks: %w", err)
	}
	return nil
}

// FindByID returns gorm.ErrRecordNotFound unwrapped when the id is unknown or deleted.
func (r *AssignedTaskRepository) FindByID(ctx context.Context, id uint) (*model.AssignedTask, error) {
	var task model.AssignedTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByIDForUpdate is FindByID with a row lock where the dialect supports one.
func (r *AssignedTaskRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.AssignedTask, error) {
	var task model.AssignedTask
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *AssignedTaskRepository) Save(ctx context.Context, task *model.AssignedTask) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save assigned task: %w", err)
	}
	return nil
}

// Delete soft-deletes the task. The row stays visible to successor checks.
func (r *AssignedTaskRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.AssignedTask{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete assigned task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *AssignedTaskRepository) ListByChild(ctx context.Context, childID uint, filter TaskFilter) ([]model.AssignedTask, error) {
	db := r.db.WithContext(ctx).Where("child_id = ?", childID)
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.CoveringAt != nil {
		db = db.Where("period_start <= ? AND period_end >= ?", *filter.CoveringAt, *filter.CoveringAt)
	}
	var tasks []model.AssignedTask
	if err := db.Order("period_start DESC, id DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list child tasks: %w", err)
	}
	return tasks, nil
}

func (r *AssignedTaskRepository) ListByTemplate(ctx context.Context, templateID uint) ([]model.AssignedTask, error) {
	var tasks []model.AssignedTask
	if err := r.db.WithContext(ctx).Where("template_id = ?", templateID).
		Order("period_start DESC, id DESC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list template tasks: %w", err)
	}
	return tasks, nil
}

// ChildrenAlreadyAssigned returns the children among childIDs that have a task
// for templateID whose period has not ended before from.
func (r *AssignedTaskRepository) ChildrenAlreadyAssigned(ctx context.Context, templateID uint, childIDs []uint, from time.Time) ([]uint, error) {
	if len(childIDs) == 0 {
		return nil, nil
	}
	var found []uint
	if err := r.db.WithContext(ctx).Model(&model.AssignedTask{}).
		Where("template_id = ? AND child_id IN ? AND period_end >= ?", templateID, childIDs, from).
		Distinct().
		Pluck("child_id", &found).Error; err != nil {
		return nil, fmt.Errorf("find existing assignments: %w", err)
	}
	return found, nil
}

// ListRenewable returns the auto-renewing tasks whose period ended strictly
// before cutoff and that no later row of the same (template, child) keeps
// alive. A later row keeps the chain alive when it renews itself, has not
// ended before cutoff, or was deleted. A finished one-off row in between
// does not, so the chain resumes once it is over.
func (r *AssignedTaskRepository) ListRenewable(ctx context.Context, cutoff time.Time) ([]model.AssignedTask, error) {
	later := r.db.Table("assigned_tasks AS later").
		Select("1").
		Where("later.template_id = assigned_tasks.template_id").
		Where("later.child_id = assigned_tasks.child_id").
		Where("later.period_start > assigned_tasks.period_start").
		Where("(later.auto_renew = ? OR later.period_end >= ? OR later.deleted_at IS NOT NULL)", true, cutoff)

	var tasks []model.AssignedTask
	if err := r.db.WithContext(ctx).
		Where("assigned_tasks.auto_renew = ? AND assigned_tasks.period_end < ?", true, cutoff).
		Where("NOT EXISTS (?)", later).
		Order("template_id ASC, child_id ASC, period_start ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list renewable tasks: %w", err)
	}
	return tasks, nil
}
