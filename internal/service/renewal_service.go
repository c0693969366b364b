package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
)

// RenewalTaskStore is the assigned task access renewal needs.
type RenewalTaskStore interface {
	ListRenewable(ctx context.Context, cutoff time.Time) ([]model.AssignedTask, error)
	CreateBatch(ctx context.Context, tasks []model.AssignedTask) error
}

// RenewalTemplateStore resolves the templates of renewable rows.
type RenewalTemplateStore interface {
	FindByIDs(ctx context.Context, ids []uint) (map[uint]model.TaskTemplate, error)
}

// RenewalResult is what a manual trigger reports back.
type RenewalResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// RenewalService rolls expired auto-renewing tasks into a fresh period.
type RenewalService struct {
	tasks     RenewalTaskStore
	templates RenewalTemplateStore
	clock     Clock
	log       logger.Logger
	timeout   time.Duration

	running sync.Mutex
}

func NewRenewalService(tasks RenewalTaskStore, templates RenewalTemplateStore, clock Clock, log logger.Logger, timeout time.Duration) *RenewalService {
	return &RenewalService{tasks: tasks, templates: templates, clock: clock, log: log, timeout: timeout}
}

// Renew runs one renewal pass and returns the number of tasks created.
//
// Tasks with auto renew whose period ended before today get one successor
// covering today and tomorrow. Only the latest row of each (template, child)
// chain is renewed. A row is skipped while a later row of the same pair keeps
// the chain alive (see AssignedTaskRepository.ListRenewable), so repeated
// passes on the same day create nothing, a deleted successor ends the chain
// and a finished one-off assignment does not. Predecessors are never
// modified. All successors are inserted together; on failure nothing is
// written.
func (s *RenewalService) Renew(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		return 0, ErrRenewalInProgress
	}
	defer s.running.Unlock()

	runID := uuid.NewString()
	now := s.clock.Now()
	cutoff := StartOfDay(now)
	start, end := RenewalWindow(now)

	expired, err := s.tasks.ListRenewable(ctx, cutoff)
	if err != nil {
		return 0, s.abort(runID, 0, newStoreError("list renewable tasks", err))
	}
	candidates := latestPerChain(expired)
	if len(candidates) == 0 {
		s.log.Info("renewal finished", logger.Fields{"run_id": runID, "created": 0})
		return 0, nil
	}

	templateIDs := make([]uint, 0, len(candidates))
	for _, task := range candidates {
		templateIDs = append(templateIDs, task.TemplateID)
	}
	templates, err := s.templates.FindByIDs(ctx, uniqueIDs(templateIDs))
	if err != nil {
		s.logRows(runID, "renewal row not resolved", candidates)
		return 0, s.abort(runID, len(candidates), newStoreError("find templates", err))
	}

	successors := make([]model.AssignedTask, 0, len(candidates))
	for _, prev := range candidates {
		if _, ok := templates[prev.TemplateID]; !ok {
			s.log.Warn("renewal skipped: template missing", logger.Fields{
				"run_id":      runID,
				"task_id":     prev.ID,
				"template_id": prev.TemplateID,
				"child_id":    prev.ChildID,
			})
			continue
		}
		successors = append(successors, successorOf(prev, start, end))
	}

	if err := s.tasks.CreateBatch(ctx, successors); err != nil {
		s.logRows(runID, "renewal row not written", successors)
		return 0, s.abort(runID, len(successors), newStoreError("create successors", err))
	}

	s.log.Info("renewal finished", logger.Fields{
		"run_id":       runID,
		"expired":      len(expired),
		"created":      len(successors),
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
	})
	return len(successors), nil
}

// RunScheduled is the cron entry point. It bounds the pass by the configured
// timeout and only logs the outcome.
func (s *RenewalService) RunScheduled() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.Renew(ctx); err != nil {
		if errors.Is(err, ErrRenewalInProgress) {
			s.log.Warn("scheduled renewal skipped: previous run still active")
			return
		}
		s.log.Error("scheduled renewal failed", err)
	}
}

// Trigger runs the same pass synchronously for a manual request.
func (s *RenewalService) Trigger(ctx context.Context) RenewalResult {
	count, err := s.Renew(ctx)
	if err != nil {
		return RenewalResult{Success: false, Error: err.Error(), Err: err}
	}
	return RenewalResult{Success: true, Count: count}
}

func (s *RenewalService) abort(runID string, attempted int, err error) error {
	s.log.Error("renewal aborted", logger.Fields{"run_id": runID, "attempted": attempted}, err)
	return &RenewalBatchError{Attempted: attempted, Err: err}
}

func (s *RenewalService) logRows(runID, msg string, tasks []model.AssignedTask) {
	for _, task := range tasks {
		s.log.Error(msg, logger.Fields{
			"run_id":       runID,
			"template_id":  task.TemplateID,
			"child_id":     task.ChildID,
			"period_start": task.PeriodStart.Format(time.RFC3339),
			"period_end":   task.PeriodEnd.Format(time.RFC3339),
		})
	}
}

// latestPerChain keeps the row with the latest period start for every
// (template, child) pair, ordered by template then child.
func latestPerChain(tasks []model.AssignedTask) []model.AssignedTask {
	type chain struct{ templateID, childID uint }
	latest := make(map[chain]model.AssignedTask, len(tasks))
	for _, task := range tasks {
		key := chain{task.TemplateID, task.ChildID}
		cur, ok := latest[key]
		if !ok || task.PeriodStart.After(cur.PeriodStart) ||
			(task.PeriodStart.Equal(cur.PeriodStart) && task.ID > cur.ID) {
			latest[key] = task
		}
	}
	out := make([]model.AssignedTask, 0, len(latest))
	for _, task := range latest {
		out = append(out, task)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TemplateID != out[j].TemplateID {
			return out[i].TemplateID < out[j].TemplateID
		}
		return out[i].ChildID < out[j].ChildID
	})
	return out
}

func successorOf(prev model.AssignedTask, start, end time.Time) model.AssignedTask {
	return model.AssignedTask{
		TemplateID:     prev.TemplateID,
		ChildID:        prev.ChildID,
		PeriodStart:    start,
		PeriodEnd:      end,
		RecurrenceType: prev.RecurrenceType,
		MetricsTarget:  prev.MetricsTarget,
		MetricsCurrent: model.Metrics{},
		Status:         model.TaskStatusPending,
		CompletedAt:    nil,
		AutoRenew:      true,
		CreatedBy:      prev.CreatedBy,
	}
}
