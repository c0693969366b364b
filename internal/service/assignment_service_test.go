package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
	"tutor-tasks/internal/service"
	"tutor-tasks/internal/testutil"
)

func newAssignmentService(db *gorm.DB, clock service.Clock) *service.AssignmentService {
	return service.NewAssignmentService(
		repository.NewTemplateRepository(db),
		repository.NewAssignedTaskRepository(db),
		repository.NewUserRepository(db),
		clock,
		logger.Discard(),
	)
}

func TestAssignmentService_Assign(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	clock := &testutil.Clock{Current: testutil.Day(2026, 3, 10).Add(9 * time.Hour)}
	svc := newAssignmentService(db, clock)

	admin := testutil.CreateUser(t, db, "Anna", model.RoleAdmin)
	kid1 := testutil.CreateUser(t, db, "Petya", model.RoleStudent)
	kid2 := testutil.CreateUser(t, db, "Masha", model.RoleStudent)
	daily := testutil.CreateTemplate(t, db, "5 exercises", model.FrequencyDaily, model.Metrics{ExercisesSubmitted: 5})

	res, err := svc.Assign(ctx, &admin, service.AssignInput{
		TemplateID: daily.ID,
		ChildIDs:   []uint{kid1.ID, kid2.ID, kid1.ID},
		AutoRenew:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CreatedCount)
	assert.Equal(t, 0, res.SkippedCount)

	first := res.Created[0]
	assert.Equal(t, kid1.ID, first.ChildID)
	assert.Equal(t, testutil.Day(2026, 3, 10), first.PeriodStart)
	assert.Equal(t, testutil.Day(2026, 3, 11).Add(-time.Millisecond), first.PeriodEnd)
	assert.Equal(t, model.FrequencyDaily, first.RecurrenceType)
	assert.Equal(t, model.Metrics{ExercisesSubmitted: 5}, first.MetricsTarget)
	assert.Equal(t, model.Metrics{}, first.MetricsCurrent)
	assert.Equal(t, model.TaskStatusPending, first.Status)
	assert.Nil(t, first.CompletedAt)
	assert.True(t, first.AutoRenew)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, admin.ID, *first.CreatedBy)

	t.Run("second call for the same period skips everyone", func(t *testing.T) {
		res, err := svc.Assign(ctx, &admin, service.AssignInput{TemplateID: daily.ID, ChildIDs: []uint{kid1.ID}})
		require.NoError(t, err)
		assert.Equal(t, 0, res.CreatedCount)
		assert.Equal(t, 1, res.SkippedCount)
		assert.Equal(t, []uint{kid1.ID}, res.SkippedChildIDs)

		tasks, err := repository.NewAssignedTaskRepository(db).ListByChild(ctx, kid1.ID, repository.TaskFilter{})
		require.NoError(t, err)
		assert.Len(t, tasks, 1)
	})

	t.Run("next day is a new period", func(t *testing.T) {
		clock.Advance(24 * time.Hour)
		res, err := svc.Assign(ctx, &admin, service.AssignInput{TemplateID: daily.ID, ChildIDs: []uint{kid1.ID}})
		require.NoError(t, err)
		assert.Equal(t, 1, res.CreatedCount)
		assert.False(t, res.Created[0].AutoRenew)
	})
}

func TestAssignmentService_AssignMonthlyAndExplicitPeriod(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	clock := &testutil.Clock{Current: testutil.Day(2026, 2, 14)}
	svc := newAssignmentService(db, clock)

	admin := testutil.CreateUser(t, db, "Anna", model.RoleAdmin)
	kid := testutil.CreateUser(t, db, "Petya", model.RoleStudent)
	monthly := testutil.CreateTemplate(t, db, "levels", model.FrequencyMonthly, model.Metrics{LevelsCompleted: 10})

	res, err := svc.Assign(ctx, &admin, service.AssignInput{TemplateID: monthly.ID, ChildIDs: []uint{kid.ID}})
	require.NoError(t, err)
	require.Len(t, res.Created, 1)
	assert.Equal(t, testutil.Day(2026, 2, 1), res.Created[0].PeriodStart)
	assert.Equal(t, testutil.Day(2026, 3, 1).Add(-time.Millisecond), res.Created[0].PeriodEnd)
	assert.Equal(t, model.FrequencyMonthly, res.Created[0].RecurrenceType)

	t.Run("overlapping explicit period is skipped", func(t *testing.T) {
		start, end := testutil.Day(2026, 2, 20), testutil.Day(2026, 2, 21)
		res, err := svc.Assign(ctx, &admin, service.AssignInput{TemplateID: monthly.ID, ChildIDs: []uint{kid.ID}, PeriodStart: &start, PeriodEnd: &end})
		require.NoError(t, err)
		assert.Equal(t, 1, res.SkippedCount)
	})

	t.Run("explicit period after the current one is created", func(t *testing.T) {
		start, end := testutil.Day(2026, 3, 1), testutil.Day(2026, 4, 1).Add(-time.Millisecond)
		res, err := svc.Assign(ctx, &admin, service.AssignInput{TemplateID: monthly.ID, ChildIDs: []uint{kid.ID}, PeriodStart: &start, PeriodEnd: &end})
		require.NoError(t, err)
		require.Equal(t, 1, res.CreatedCount)
		assert.Equal(t, start, res.Created[0].PeriodStart)
	})
}

func TestAssignmentService_AssignRejects(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	svc := newAssignmentService(db, &testutil.Clock{Current: testutil.Day(2026, 3, 10)})

	admin := testutil.CreateUser(t, db, "Anna", model.RoleAdmin)
	kid := testutil.CreateUser(t, db, "Petya", model.RoleStudent)
	tmpl := testutil.CreateTemplate(t, db, "daily", model.FrequencyDaily, model.Metrics{ExercisesSubmitted: 1})
	inactive := testutil.CreateTemplate(t, db, "old", model.FrequencyDaily, model.Metrics{ExercisesSubmitted: 1})
	require.NoError(t, repository.NewTemplateRepository(db).Deactivate(ctx, inactive.ID))

	start, end := testutil.Day(2026, 3, 12), testutil.Day(2026, 3, 11)

	tests := []struct {
		name      string
		caller    *model.User
		input     service.AssignInput
		wantErr   error
		wantField string
	}{
		{name: "student caller", caller: &kid, input: service.AssignInput{TemplateID: tmpl.ID, ChildIDs: []uint{kid.ID}}, wantErr: service.ErrForbidden},
		{name: "no caller", caller: nil, input: service.AssignInput{TemplateID: tmpl.ID, ChildIDs: []uint{kid.ID}}, wantErr: service.ErrForbidden},
		{name: "unknown template", caller: &admin, input: service.AssignInput{TemplateID: 999, ChildIDs: []uint{kid.ID}}, wantErr: service.ErrTemplateNotFound},
		{name: "inactive template", caller: &admin, input: service.AssignInput{TemplateID: inactive.ID, ChildIDs: []uint{kid.ID}}, wantErr: service.ErrTemplateInactive},
		{name: "no children", caller: &admin, input: service.AssignInput{TemplateID: tmpl.ID}, wantField: "childIds"},
		{name: "unknown child", caller: &admin, input: service.AssignInput{TemplateID: tmpl.ID, ChildIDs: []uint{kid.ID, 404}}, wantField: "childIds"},
		{name: "half a period", caller: &admin, input: service.AssignInput{TemplateID: tmpl.ID, ChildIDs: []uint{kid.ID}, PeriodStart: &start}, wantField: "periodEnd"},
		{name: "reversed period", caller: &admin, input: service.AssignInput{TemplateID: tmpl.ID, ChildIDs: []uint{kid.ID}, PeriodStart: &start, PeriodEnd: &end}, wantField: "periodEnd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Assign(ctx, tt.caller, tt.input)
			require.Error(t, err)
			assert.True(t, service.IsClientError(err))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var verr *service.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}
