package main

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"pdf-podcaster/internal/config"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/logging"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/webhook"
	"pdf-podcaster/internal/worker"
	"pdf-podcaster/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

// retryDelay backs off exponentially: 30s, 1m, 2m, 4m, capped at 30m.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := 30 * time.Second
	maxDelay := 30 * time.Minute

	for i := 0; i < n; i++ {
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
			break
		}
	}

	log.WithFields(log.Fields{"task": task.Type(), "attempt": n + 1}).WithError(err).Warnf("Task failed, retrying in %v", delay)
	return delay
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	db.InitDB(cfg.DatabaseURL)

	var sink notice.Sink = notice.Discard
	if cfg.TelegramBotToken != "" && cfg.TelegramNotifyChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatalf("Failed to create Telegram bot: %v", err)
		}
		sink = notice.NewTelegramSink(bot, cfg.TelegramNotifyChatID, log.StandardLogger())
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				"high":    2,
				"default": 1,
			},
			RetryDelayFunc: retryDelay,
			Logger:         log.StandardLogger(),
		},
	)

	mux := asynq.NewServeMux()
	taskHandler := worker.NewTaskHandler(webhook.NewClient(cfg.SubmitWebhookURL, cfg.AudioWebhookURL), sink)

	mux.HandleFunc(tasks.TypeGenerateAudio, taskHandler.HandleGenerateAudioTask)
	mux.HandleFunc(tasks.TypePublishReminder, taskHandler.HandlePublishReminderTask)

	log.Infof("Worker starting (commit: %s)", CommitSHA)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("could not run server: %v", err)
	}
}
