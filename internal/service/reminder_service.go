package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
)

var metricLabels = map[model.MetricKey]string{
	model.MetricExercisesSubmitted: "упражнения",
	model.MetricLevelsCompleted:    "уровни",
	model.MetricHoursSpent:         "часы",
}

var statusIcons = map[model.TaskStatus]string{
	model.TaskStatusPending:   "🟢",
	model.TaskStatusActive:    "⏳",
	model.TaskStatusCompleted: "✅",
	model.TaskStatusFailed:    "⚠️",
}

// ReminderService builds human-readable summaries for Telegram notifications.
type ReminderService struct {
	tasks     *repository.AssignedTaskRepository
	templates *repository.TemplateRepository
}

func NewReminderService(tasks *repository.AssignedTaskRepository, templates *repository.TemplateRepository) *ReminderService {
	return &ReminderService{tasks: tasks, templates: templates}
}

// DailySummary lists the user's tasks whose period contains now, open ones first.
func (s *ReminderService) DailySummary(ctx context.Context, user model.User, now time.Time) (string, error) {
	tasks, err := s.tasks.ListByChild(ctx, user.ID, repository.TaskFilter{CoveringAt: &now})
	if err != nil {
		return "", newStoreError("list tasks", err)
	}

	ids := make([]uint, 0, len(tasks))
	for _, task := range tasks {
		ids = append(ids, task.TemplateID)
	}
	templates, err := s.templates.FindByIDs(ctx, uniqueIDs(ids))
	if err != nil {
		return "", newStoreError("find templates", err)
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		doneI := tasks[i].Status == model.TaskStatusCompleted
		doneJ := tasks[j].Status == model.TaskStatusCompleted
		if doneI != doneJ {
			return !doneI
		}
		return tasks[i].PeriodEnd.Before(tasks[j].PeriodEnd)
	})

	var builder strings.Builder
	builder.WriteString("📋 <b>Задания на сегодня</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", now.Format("02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("— заданий нет\n")
		return strings.TrimSpace(builder.String()), nil
	}
	for _, task := range tasks {
		title := fmt.Sprintf("Задание #%d", task.TemplateID)
		if tmpl, ok := templates[task.TemplateID]; ok {
			title = tmpl.Title
		}
		builder.WriteString(FormatAssignedTask(task, title, now))
	}
	return strings.TrimSpace(builder.String()), nil
}

// FormatAssignedTask renders one task as an HTML block for Telegram.
func FormatAssignedTask(task model.AssignedTask, title string, now time.Time) string {
	var sb strings.Builder

	icon, ok := statusIcons[task.Status]
	if !ok {
		icon = "•"
	}
	sb.WriteString(fmt.Sprintf("%s #%d %s", icon, task.ID, html.EscapeString(strings.TrimSpace(title))))

	var progress []string
	for _, key := range model.MetricKeys {
		target := task.MetricsTarget.Get(key)
		if target <= 0 {
			continue
		}
		progress = append(progress, fmt.Sprintf("%s %s/%s", metricLabels[key], formatAmount(task.MetricsCurrent.Get(key)), formatAmount(target)))
	}
	if len(progress) > 0 {
		sb.WriteString("\n   📈 " + strings.Join(progress, " · "))
	}

	end := task.PeriodEnd.In(now.Location())
	switch {
	case task.Status == model.TaskStatusCompleted:
		sb.WriteString("\n   ✔️ выполнено")
	case now.After(end):
		sb.WriteString(fmt.Sprintf("\n   ⏰ до %s — <b>просрочено</b>", end.Format("02.01 15:04")))
	default:
		sb.WriteString(fmt.Sprintf("\n   ⏰ до %s", end.Format("02.01 15:04")))
	}
	if task.AutoRenew {
		sb.WriteString(" · ♻️")
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
