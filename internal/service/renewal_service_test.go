package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
	"tutor-tasks/internal/service"
	"tutor-tasks/internal/testutil"
)

func newRenewalService(db *gorm.DB, clock service.Clock) *service.RenewalService {
	return service.NewRenewalService(
		repository.NewAssignedTaskRepository(db),
		repository.NewTemplateRepository(db),
		clock,
		logger.Discard(),
		time.Minute,
	)
}

func TestRenewalService_Renew(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	today := testutil.Day(2026, 3, 10)
	clock := &testutil.Clock{Current: today.Add(5 * time.Minute)}
	svc := newRenewalService(db, clock)
	tasks := repository.NewAssignedTaskRepository(db)

	admin := testutil.CreateUser(t, db, "Anna", model.RoleAdmin)
	kid1 := testutil.CreateUser(t, db, "Petya", model.RoleStudent)
	kid2 := testutil.CreateUser(t, db, "Masha", model.RoleStudent)
	kid3 := testutil.CreateUser(t, db, "Kolya", model.RoleStudent)
	daily := testutil.CreateTemplate(t, db, "daily", model.FrequencyDaily, model.Metrics{ExercisesSubmitted: 5})
	monthly := testutil.CreateTemplate(t, db, "monthly", model.FrequencyMonthly, model.Metrics{LevelsCompleted: 3, HoursSpent: 2})

	completedAt := today.Add(-time.Hour)
	expired := testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID:     daily.ID,
		ChildID:        kid1.ID,
		PeriodStart:    today.AddDate(0, 0, -1),
		PeriodEnd:      today.Add(-time.Millisecond),
		RecurrenceType: model.FrequencyDaily,
		MetricsTarget:  model.Metrics{ExercisesSubmitted: 7},
		MetricsCurrent: model.Metrics{ExercisesSubmitted: 7},
		Status:         model.TaskStatusCompleted,
		CompletedAt:    &completedAt,
		AutoRenew:      true,
		CreatedBy:      &admin.ID,
	})
	// older link of the kid2 chain, superseded by the one below
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: monthly.ID, ChildID: kid2.ID, RecurrenceType: model.FrequencyMonthly,
		PeriodStart: testutil.Day(2026, 1, 1), PeriodEnd: testutil.Day(2026, 2, 1).Add(-time.Millisecond),
		MetricsTarget: monthly.Target, AutoRenew: true,
	})
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: monthly.ID, ChildID: kid2.ID, RecurrenceType: model.FrequencyMonthly,
		PeriodStart: testutil.Day(2026, 2, 1), PeriodEnd: testutil.Day(2026, 3, 1).Add(-time.Millisecond),
		MetricsTarget: monthly.Target, AutoRenew: true,
	})
	// not renewable: auto renew off, ends exactly at today's start, template gone
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: daily.ID, ChildID: kid3.ID,
		PeriodStart: today.AddDate(0, 0, -1), PeriodEnd: today.Add(-time.Millisecond),
	})
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: monthly.ID, ChildID: kid3.ID,
		PeriodStart: today.AddDate(0, 0, -1), PeriodEnd: today, AutoRenew: true,
	})
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: 999, ChildID: kid3.ID,
		PeriodStart: today.AddDate(0, 0, -1), PeriodEnd: today.Add(-time.Millisecond), AutoRenew: true,
	})

	count, err := svc.Renew(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	created, err := tasks.ListByChild(ctx, kid1.ID, repository.TaskFilter{CoveringAt: &clock.Current})
	require.NoError(t, err)
	require.Len(t, created, 1)
	next := created[0]
	assert.NotEqual(t, expired.ID, next.ID)
	assert.True(t, today.Equal(next.PeriodStart))
	assert.True(t, today.AddDate(0, 0, 2).Add(-time.Millisecond).Equal(next.PeriodEnd))
	assert.Equal(t, expired.TemplateID, next.TemplateID)
	assert.Equal(t, expired.RecurrenceType, next.RecurrenceType)
	assert.Equal(t, model.Metrics{ExercisesSubmitted: 7}, next.MetricsTarget)
	assert.Equal(t, model.Metrics{}, next.MetricsCurrent)
	assert.Equal(t, model.TaskStatusPending, next.Status)
	assert.Nil(t, next.CompletedAt)
	assert.True(t, next.AutoRenew)
	require.NotNil(t, next.CreatedBy)
	assert.Equal(t, admin.ID, *next.CreatedBy)

	prev, err := tasks.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusCompleted, prev.Status)
	assert.Equal(t, 7.0, prev.MetricsCurrent.ExercisesSubmitted)

	monthlyNext, err := tasks.ListByChild(ctx, kid2.ID, repository.TaskFilter{CoveringAt: &clock.Current})
	require.NoError(t, err)
	require.Len(t, monthlyNext, 1)
	assert.Equal(t, model.FrequencyMonthly, monthlyNext[0].RecurrenceType)
	assert.True(t, today.AddDate(0, 0, 2).Add(-time.Millisecond).Equal(monthlyNext[0].PeriodEnd))

	kid3Tasks, err := tasks.ListByChild(ctx, kid3.ID, repository.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, kid3Tasks, 3)

	t.Run("second run on the same day creates nothing", func(t *testing.T) {
		clock.Advance(3 * time.Hour)
		count, err := svc.Renew(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("deleting the successor ends the chain", func(t *testing.T) {
		require.NoError(t, tasks.Delete(ctx, next.ID))
		clock.Current = today.AddDate(0, 0, 2).Add(time.Minute)

		res := svc.Trigger(ctx)
		assert.True(t, res.Success)
		// kid2 chain continues, kid3 row that ended on the boundary is now due
		assert.Equal(t, 2, res.Count)

		left, err := tasks.ListByChild(ctx, kid1.ID, repository.TaskFilter{})
		require.NoError(t, err)
		assert.Len(t, left, 1)
	})
}

func TestRenewalService_ChainResumesAfterOneOff(t *testing.T) {
	db := testutil.PrepareDB(t)
	ctx := context.Background()
	clock := &testutil.Clock{Current: testutil.Day(2026, 3, 10).Add(time.Minute)}
	svc := newRenewalService(db, clock)
	assign := newAssignmentService(db, clock)
	tasks := repository.NewAssignedTaskRepository(db)

	admin := testutil.CreateUser(t, db, "Anna", model.RoleAdmin)
	kid := testutil.CreateUser(t, db, "Petya", model.RoleStudent)
	daily := testutil.CreateTemplate(t, db, "daily", model.FrequencyDaily, model.Metrics{ExercisesSubmitted: 5})
	testutil.CreateAssignedTask(t, db, model.AssignedTask{
		TemplateID: daily.ID, ChildID: kid.ID, RecurrenceType: model.FrequencyDaily,
		PeriodStart: testutil.Day(2026, 3, 9), PeriodEnd: testutil.Day(2026, 3, 10).Add(-time.Millisecond),
		MetricsTarget: daily.Target, AutoRenew: true,
	})

	res, err := assign.Assign(ctx, &admin, service.AssignInput{TemplateID: daily.ID, ChildIDs: []uint{kid.ID}})
	require.NoError(t, err)
	require.Equal(t, 1, res.CreatedCount)
	require.False(t, res.Created[0].AutoRenew)

	// the one-off row covers the 10th, nothing renews while it runs
	count, err := svc.Renew(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	want := map[int]int{11: 1, 12: 0, 13: 1, 14: 0, 15: 1}
	for day := 11; day <= 15; day++ {
		clock.Current = testutil.Day(2026, 3, day).Add(time.Minute)
		count, err := svc.Renew(ctx)
		require.NoError(t, err)
		assert.Equal(t, want[day], count, "day %d", day)
	}

	all, err := tasks.ListByChild(ctx, kid.ID, repository.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.True(t, all[0].AutoRenew)
	assert.True(t, testutil.Day(2026, 3, 15).Equal(all[0].PeriodStart))
}

type entry struct {
	msg    string
	fields logger.Fields
}

type recordingLogger struct {
	errors []entry
}

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(string, ...interface{})  {}

func (l *recordingLogger) Error(msg string, args ...interface{}) {
	e := entry{msg: msg}
	for _, arg := range args {
		if f, ok := arg.(logger.Fields); ok {
			e.fields = f
		}
	}
	l.errors = append(l.errors, e)
}

type taskStoreMock struct {
	mock.Mock
}

func (m *taskStoreMock) ListRenewable(ctx context.Context, cutoff time.Time) ([]model.AssignedTask, error) {
	args := m.Called(ctx, cutoff)
	tasks, _ := args.Get(0).([]model.AssignedTask)
	return tasks, args.Error(1)
}

func (m *taskStoreMock) CreateBatch(ctx context.Context, tasks []model.AssignedTask) error {
	args := m.Called(ctx, tasks)
	return args.Error(0)
}

type templateStoreMock struct {
	mock.Mock
}

func (m *templateStoreMock) FindByIDs(ctx context.Context, ids []uint) (map[uint]model.TaskTemplate, error) {
	args := m.Called(ctx, ids)
	templates, _ := args.Get(0).(map[uint]model.TaskTemplate)
	return templates, args.Error(1)
}

func TestRenewalService_Failures(t *testing.T) {
	ctx := context.Background()
	today := testutil.Day(2026, 3, 10)
	clock := &testutil.Clock{Current: today.Add(time.Minute)}
	expired := []model.AssignedTask{
		{ID: 1, TemplateID: 1, ChildID: 1, PeriodStart: today.AddDate(0, 0, -1), PeriodEnd: today.Add(-time.Millisecond), AutoRenew: true},
		{ID: 2, TemplateID: 1, ChildID: 2, PeriodStart: today.AddDate(0, 0, -1), PeriodEnd: today.Add(-time.Millisecond), AutoRenew: true},
	}
	templates := map[uint]model.TaskTemplate{1: {ID: 1}}

	t.Run("batch insert failure aborts the run", func(t *testing.T) {
		taskStore := new(taskStoreMock)
		templateStore := new(templateStoreMock)
		taskStore.On("ListRenewable", ctx, today).Return(expired, nil)
		templateStore.On("FindByIDs", ctx, []uint{1}).Return(templates, nil)
		taskStore.On("CreateBatch", ctx, mock.MatchedBy(func(tasks []model.AssignedTask) bool {
			return len(tasks) == 2
		})).Return(errors.New("disk full"))

		svc := service.NewRenewalService(taskStore, templateStore, clock, logger.Discard(), 0)
		count, err := svc.Renew(ctx)
		assert.Zero(t, count)
		var berr *service.RenewalBatchError
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, 2, berr.Attempted)
		var serr *service.StoreError
		assert.True(t, errors.As(err, &serr))
		assert.False(t, service.IsClientError(err))

		res := svc.Trigger(ctx)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "disk full")
		taskStore.AssertExpectations(t)
		templateStore.AssertExpectations(t)
	})

	t.Run("template lookup failure logs every pending row", func(t *testing.T) {
		taskStore := new(taskStoreMock)
		templateStore := new(templateStoreMock)
		taskStore.On("ListRenewable", ctx, today).Return(expired, nil)
		templateStore.On("FindByIDs", ctx, []uint{1}).Return(nil, errors.New("timeout"))

		log := &recordingLogger{}
		svc := service.NewRenewalService(taskStore, templateStore, clock, log, 0)
		_, err := svc.Renew(ctx)
		var berr *service.RenewalBatchError
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, 2, berr.Attempted)
		taskStore.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)

		var rows []logger.Fields
		for _, e := range log.errors {
			if e.msg == "renewal row not resolved" {
				rows = append(rows, e.fields)
			}
		}
		require.Len(t, rows, 2)
		assert.Equal(t, uint(1), rows[0]["template_id"])
		assert.Equal(t, uint(1), rows[0]["child_id"])
		assert.Equal(t, uint(2), rows[1]["child_id"])
		assert.Equal(t, expired[0].PeriodStart.Format(time.RFC3339), rows[0]["period_start"])
		assert.Equal(t, expired[0].PeriodEnd.Format(time.RFC3339), rows[0]["period_end"])
	})

	t.Run("read failure aborts before any write", func(t *testing.T) {
		taskStore := new(taskStoreMock)
		templateStore := new(templateStoreMock)
		taskStore.On("ListRenewable", ctx, today).Return(nil, errors.New("connection reset"))

		svc := service.NewRenewalService(taskStore, templateStore, clock, logger.Discard(), 0)
		_, err := svc.Renew(ctx)
		var berr *service.RenewalBatchError
		require.True(t, errors.As(err, &berr))
		assert.Zero(t, berr.Attempted)
		taskStore.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("overlapping runs are rejected", func(t *testing.T) {
		taskStore := new(taskStoreMock)
		templateStore := new(templateStoreMock)
		entered := make(chan struct{})
		release := make(chan struct{})
		taskStore.On("ListRenewable", ctx, today).Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).Return(nil, nil)

		svc := service.NewRenewalService(taskStore, templateStore, clock, logger.Discard(), 0)
		done := make(chan error, 1)
		go func() {
			_, err := svc.Renew(ctx)
			done <- err
		}()
		<-entered

		_, err := svc.Renew(ctx)
		assert.ErrorIs(t, err, service.ErrRenewalInProgress)
		res := svc.Trigger(ctx)
		assert.False(t, res.Success)

		close(release)
		require.NoError(t, <-done)
	})
}
