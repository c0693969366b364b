package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/service"
)

var metricButtonLabels = map[model.MetricKey]string{
	model.MetricExercisesSubmitted: "+1 упражнение",
	model.MetricLevelsCompleted:    "+1 уровень",
	model.MetricHoursSpent:         "+1 час",
}

func (b *Bot) handleStart(msg *tgbotapi.Message, user *model.User) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "друг"
	}
	text := fmt.Sprintf(
		"👋 Привет, %s!\n<b>Я слежу за твоими заданиями и прогрессом.</b>\n\n%s",
		escape(name), helpText(user),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message, user *model.User) error {
	return b.sendText(msg.Chat.ID, "ℹ️ <b>Подсказки</b>\n"+helpText(user))
}

func helpText(user *model.User) string {
	text := "• /tasks — задания на сегодня и кнопки для отметки прогресса\n" +
		"• /templates — список шаблонов заданий\n" +
		"• /whoami — твой ID и роль"
	if user.IsAdmin() {
		text += "\n\n<b>Для преподавателя</b>\n" +
			"• /assign &lt;шаблон&gt; &lt;ученик&gt;... [renew] — назначить задание, например /assign 3 12 15 renew\n" +
			"• /renew — продлить истёкшие задания вручную"
	}
	return text
}

func (b *Bot) handleWhoAmI(msg *tgbotapi.Message, user *model.User) error {
	role := "ученик"
	if user.IsAdmin() {
		role = "преподаватель"
	}
	text := fmt.Sprintf("🪪 %s\nID: <b>%d</b>\nРоль: %s", escape(user.DisplayName()), user.ID, role)
	return b.sendText(msg.Chat.ID, text)
}

// sendTaskSummary sends today's tasks with one progress button per tracked
// metric of every open task.
func (b *Bot) sendTaskSummary(ctx context.Context, chatID int64, user *model.User) error {
	now := b.clock.Now()
	text, err := b.svc.Reminders.DailySummary(ctx, *user, now)
	if err != nil {
		return b.sendText(chatID, errorText(err))
	}
	tasks, err := b.svc.Tasks.ListForChild(ctx, user, user.ID, service.TaskQuery{Current: true})
	if err != nil {
		return b.sendText(chatID, errorText(err))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		if task.Status != model.TaskStatusPending && task.Status != model.TaskStatusActive {
			continue
		}
		var row []tgbotapi.InlineKeyboardButton
		for _, key := range model.MetricKeys {
			if task.MetricsTarget.Get(key) <= 0 {
				continue
			}
			label := fmt.Sprintf("#%d %s", task.ID, metricButtonLabels[key])
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, incrementData(task.ID, key)))
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return b.sendText(chatID, text)
	}
	return b.sendWithReplyMarkup(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) incrementAndRefresh(ctx context.Context, cb *tgbotapi.CallbackQuery, user *model.User, taskID uint, key model.MetricKey) error {
	res, err := b.svc.Progress.IncrementMetric(ctx, user, taskID, service.IncrementInput{Metric: string(key), Delta: 1})
	if err != nil {
		b.answerCallback(cb.ID, "")
		return b.sendText(cb.Message.Chat.ID, errorText(err))
	}
	if res.Completed {
		b.answerCallback(cb.ID, "🎉 Задание выполнено!")
	} else {
		b.answerCallback(cb.ID, "Засчитано")
	}
	return b.sendTaskSummary(ctx, cb.Message.Chat.ID, user)
}

func (b *Bot) handleTemplates(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	templates, err := b.svc.Templates.List(ctx, user.IsAdmin())
	if err != nil {
		return b.sendText(msg.Chat.ID, errorText(err))
	}
	if len(templates) == 0 {
		return b.sendText(msg.Chat.ID, "Шаблонов пока нет.")
	}

	var sb strings.Builder
	sb.WriteString("🗂 <b>Шаблоны заданий</b>\n")
	for _, tmpl := range templates {
		freq := "ежедневно"
		if tmpl.Recurrence.Frequency == model.FrequencyMonthly {
			freq = "ежемесячно"
		}
		sb.WriteString(fmt.Sprintf("\n<b>#%d</b> %s · %s", tmpl.ID, escape(shortTitle(tmpl.Title, 40)), freq))
		if !tmpl.Active {
			sb.WriteString(" · <i>отключён</i>")
		}
	}
	return b.sendText(msg.Chat.ID, sb.String())
}

func (b *Bot) handleAssign(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	if !user.IsAdmin() {
		return b.sendText(msg.Chat.ID, errorText(service.ErrForbidden))
	}
	input, err := parseAssignArgs(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s\nПример: /assign 3 12 15 renew", escape(err.Error())))
	}
	res, err := b.svc.Assignments.Assign(ctx, user, input)
	if err != nil {
		return b.sendText(msg.Chat.ID, errorText(err))
	}

	text := fmt.Sprintf("📌 Назначено: <b>%d</b>, пропущено: <b>%d</b>", res.CreatedCount, res.SkippedCount)
	if res.SkippedCount > 0 {
		ids := make([]string, 0, len(res.SkippedChildIDs))
		for _, id := range res.SkippedChildIDs {
			ids = append(ids, fmt.Sprint(id))
		}
		text += "\nУже есть задание на этот период: " + strings.Join(ids, ", ")
	}
	if input.AutoRenew {
		text += "\n♻️ Автопродление включено"
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleRenew(msg *tgbotapi.Message, user *model.User) error {
	if !user.IsAdmin() {
		return b.sendText(msg.Chat.ID, errorText(service.ErrForbidden))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, "♻️ Продлить все истёкшие задания с автопродлением?", renewKeyboard())
}

func (b *Bot) runRenewal(ctx context.Context, chatID int64, user *model.User) error {
	if !user.IsAdmin() {
		return b.sendText(chatID, errorText(service.ErrForbidden))
	}
	res := b.svc.Renewals.Trigger(ctx)
	b.log.Info("manual renewal from bot", logger.Fields{"by": user.ID, "success": res.Success, "count": res.Count})
	if !res.Success {
		return b.sendText(chatID, errorText(res.Err))
	}
	return b.sendText(chatID, fmt.Sprintf("✅ Продлено заданий: <b>%d</b> (%s)", res.Count, b.clock.Now().Format("02.01.2006")))
}
