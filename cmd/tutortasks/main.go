package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutor-tasks/internal/api"
	"tutor-tasks/internal/bot"
	"tutor-tasks/internal/config"
	"tutor-tasks/internal/logger"
	"tutor-tasks/internal/repository"
	"tutor-tasks/internal/service"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	std := logger.NewStd(log.New(os.Stdout, "", log.LstdFlags), cfg.Debug)
	var appLog logger.Logger = std
	if cfg.RollbarToken != "" {
		rb := logger.NewRollbar(std, cfg.RollbarToken, cfg.Env, version)
		defer rb.Close()
		appLog = rb
	}

	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	clock := service.SystemClock(cfg.Location)

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	taskRepo := repository.NewAssignedTaskRepository(db)

	templateSvc := service.NewTemplateService(templateRepo, appLog)
	assignmentSvc := service.NewAssignmentService(templateRepo, taskRepo, userRepo, clock, appLog)
	progressSvc := service.NewProgressService(taskRepo, clock, appLog)
	taskSvc := service.NewTaskService(taskRepo, clock, appLog)
	reminderSvc := service.NewReminderService(taskRepo, templateRepo)
	renewalSvc := service.NewRenewalService(taskRepo, templateRepo, clock, appLog, cfg.RenewalTimeout)

	scheduler := service.NewSchedulerService(cfg.Location, appLog)
	renewalID, err := scheduler.ScheduleDaily(cfg.RenewalTime, renewalSvc.RunScheduled)
	if err != nil {
		log.Fatalf("schedule renewal: %v", err)
	}

	var telegramBot *bot.Bot
	if cfg.TelegramToken != "" {
		telegramBot, err = bot.New(cfg.TelegramToken, bot.Services{
			Users:       userRepo,
			Templates:   templateSvc,
			Assignments: assignmentSvc,
			Progress:    progressSvc,
			Tasks:       taskSvc,
			Reminders:   reminderSvc,
			Renewals:    renewalSvc,
		}, &cfg, clock, appLog)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
		if cfg.DigestTime != "" {
			if _, err := scheduler.ScheduleDaily(cfg.DigestTime, func() {
				jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				if err := telegramBot.SendDailyDigest(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
					appLog.Error("digest failed", err)
				}
			}); err != nil {
				log.Fatalf("schedule digest: %v", err)
			}
		}
	} else {
		appLog.Info("TELEGRAM_TOKEN is empty, bot disabled")
	}

	scheduler.Start()
	defer scheduler.Stop()
	appLog.Info("renewal scheduled", logger.Fields{"at": cfg.RenewalTime, "next": scheduler.Next(renewalID).Format(time.RFC3339)})

	if cfg.RenewOnStartup {
		go renewalSvc.RunScheduled()
	}

	handler := api.NewHandler(templateSvc, assignmentSvc, progressSvc, taskSvc, renewalSvc, appLog)
	app := api.NewApp(handler, cfg.JWTSecret, userRepo, appLog)
	go func() {
		appLog.Info("http listening", logger.Fields{"addr": cfg.HTTPAddr})
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			appLog.Error("http server stopped", err)
			stop()
		}
	}()

	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				appLog.Error("bot stopped with error", err)
			}
		}()
	}

	appLog.Info("tutor tasks started", logger.Fields{"env": cfg.Env, "version": version})
	<-ctx.Done()

	if err := app.Shutdown(); err != nil {
		appLog.Warn("http shutdown", err)
	}
	appLog.Info("shutdown complete")
}
