package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"tutor-tasks/internal/config"
	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/model"
	"tutor-tasks/internal/repository"
	"tutor-tasks/internal/service"
)

const (
	cbIncrementPrefix = "inc:"
	cbRenewConfirm    = "renew:confirm"
	cbRenewCancel     = "renew:cancel"
)

const (
	menuLabelTasks     = "📋 Мои задания"
	menuLabelTemplates = "🗂 Шаблоны"
	menuLabelHelp      = "ℹ️ Помощь"
)

// Services groups what the bot talks to.
type Services struct {
	Users       *repository.UserRepository
	Templates   *service.TemplateService
	Assignments *service.AssignmentService
	Progress    *service.ProgressService
	Tasks       *service.TaskService
	Reminders   *service.ReminderService
	Renewals    *service.RenewalService
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api    *tgbotapi.BotAPI
	svc    Services
	config *config.Config
	clock  service.Clock
	log    logger.Logger
}

func New(token string, svc Services, cfg *config.Config, clock service.Clock, log logger.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Info("bot authorized", logger.Fields{"account": api.Self.UserName})

	return &Bot{
		api:    api,
		svc:    svc,
		config: cfg,
		clock:  clock,
		log:    log,
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.log.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.log.Error("handle callback", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.log.Error("handle message", err)
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
		return b.sendText(msg.Chat.ID, "Я пока не понял сообщение. Набери /tasks, чтобы увидеть задания, или /help для списка команд.")
	}

	b.log.Info("command", logger.Fields{"from": msg.From.ID, "command": msg.Command(), "args": msg.CommandArguments()})
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	return b.handleCommand(ctx, msg, user)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg, user)
	case "help":
		return b.handleHelp(msg, user)
	case "whoami":
		return b.handleWhoAmI(msg, user)
	case "tasks":
		return b.sendTaskSummary(ctx, msg.Chat.ID, user)
	case "templates":
		return b.handleTemplates(ctx, msg, user)
	case "assign":
		return b.handleAssign(ctx, msg, user)
	case "renew":
		return b.handleRenew(msg, user)
	default:
		return b.sendText(msg.Chat.ID, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelTasks), strings.ToLower(menuLabelTemplates), strings.ToLower(menuLabelHelp):
	default:
		return false, nil
	}

	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return true, err
	}
	switch text {
	case strings.ToLower(menuLabelTasks):
		return true, b.sendTaskSummary(ctx, msg.Chat.ID, user)
	case strings.ToLower(menuLabelTemplates):
		return true, b.handleTemplates(ctx, msg, user)
	default:
		return true, b.handleHelp(msg, user)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		b.answerCallback(cb.ID, "")
		return err
	}

	switch data := cb.Data; {
	case strings.HasPrefix(data, cbIncrementPrefix):
		b.log.Info("callback increment", logger.Fields{"user": cb.From.ID, "data": data})
		taskID, metric, err := parseIncrement(data)
		if err != nil {
			b.answerCallback(cb.ID, "")
			return nil
		}
		return b.incrementAndRefresh(ctx, cb, user, taskID, metric)
	case data == cbRenewConfirm:
		b.answerCallback(cb.ID, "")
		return b.runRenewal(ctx, cb.Message.Chat.ID, user)
	case data == cbRenewCancel:
		b.answerCallback(cb.ID, "Отменено")
		return nil
	default:
		b.answerCallback(cb.ID, "")
		return nil
	}
}

// SendDailyDigest sends every Telegram user a summary of their current tasks.
func (b *Bot) SendDailyDigest(ctx context.Context) error {
	users, err := b.svc.Users.ListWithTelegram(ctx)
	if err != nil {
		return err
	}
	now := b.clock.Now()
	sent := 0
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.IsAdmin() || user.TelegramID == nil {
			continue
		}
		text, err := b.svc.Reminders.DailySummary(ctx, user, now)
		if err != nil {
			b.log.Warn("build digest", logger.Fields{"user_id": user.ID}, err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.log.Warn("send digest", logger.Fields{"user_id": user.ID}, err)
			continue
		}
		sent++
	}
	b.log.Info("digest sent", logger.Fields{"users": sent})
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	role := model.RoleStudent
	if b.config != nil && b.config.IsAdminTelegramID(from.ID) {
		role = model.RoleAdmin
	}
	return b.svc.Users.UpsertFromTelegram(ctx, from.ID, from.FirstName, from.LastName, from.UserName, role)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn("callback ack", err)
	}
}

// errorText turns a service error into a message for the chat.
func errorText(err error) string {
	var verr *service.ValidationError
	switch {
	case errors.Is(err, service.ErrForbidden):
		return "⛔ Команда доступна только преподавателю."
	case errors.Is(err, service.ErrTemplateNotFound):
		return "Шаблон не найден."
	case errors.Is(err, service.ErrTemplateInactive):
		return "Шаблон отключён, назначить его нельзя."
	case errors.Is(err, service.ErrTaskNotFound):
		return "Задание не найдено."
	case errors.Is(err, service.ErrRenewalInProgress):
		return "⏳ Продление уже выполняется, попробуй чуть позже."
	case errors.As(err, &verr):
		parts := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			parts = append(parts, f.Field+": "+f.Error)
		}
		if len(parts) == 0 {
			return "Некорректные данные."
		}
		return "Некорректные данные: " + escape(strings.Join(parts, "; "))
	}
	return fmt.Sprintf("Ошибка: %s", escape(err.Error()))
}

// parseIncrement reads "inc:<task id>:<metric>" callback data.
func parseIncrement(data string) (uint, model.MetricKey, error) {
	parts := strings.SplitN(strings.TrimPrefix(data, cbIncrementPrefix), ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("malformed callback %q", data)
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id == 0 {
		return 0, "", fmt.Errorf("malformed task id in %q", data)
	}
	key := model.MetricKey(parts[1])
	if !key.Valid() {
		return 0, "", fmt.Errorf("unknown metric in %q", data)
	}
	return uint(id), key, nil
}

func incrementData(taskID uint, key model.MetricKey) string {
	return fmt.Sprintf("%s%d:%s", cbIncrementPrefix, taskID, key)
}

// parseAssignArgs reads "<template id> <user id>... [renew]".
func parseAssignArgs(args string) (service.AssignInput, error) {
	var input service.AssignInput
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return input, fmt.Errorf("нужны ID шаблона и хотя бы один ID ученика")
	}
	for i, field := range fields {
		if i > 0 && strings.EqualFold(field, "renew") {
			input.AutoRenew = true
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(field, ","), 10, 64)
		if err != nil || id == 0 {
			return input, fmt.Errorf("%q не похоже на ID", field)
		}
		if i == 0 {
			input.TemplateID = uint(id)
			continue
		}
		input.ChildIDs = append(input.ChildIDs, uint(id))
	}
	if len(input.ChildIDs) == 0 {
		return input, fmt.Errorf("нужен хотя бы один ID ученика")
	}
	return input, nil
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelTasks),
			tgbotapi.NewKeyboardButton(menuLabelTemplates),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelHelp),
		),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func renewKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Запустить", cbRenewConfirm),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Отмена", cbRenewCancel),
		),
	)
}

func shortTitle(title string, maxLen int) string {
	clean := normalizeTitle(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func escape(s string) string {
	return html.EscapeString(s)
}

func normalizeTitle(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	runes := []rune(value)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
