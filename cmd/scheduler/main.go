package main

import (
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"pdf-podcaster/internal/config"
	"pdf-podcaster/internal/logging"
	"pdf-podcaster/pkg/tasks"
)

// CommitSHA is set at build time via ldflags
var CommitSHA = "unknown"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logging.Setup(cfg.LogFormat, cfg.LogLevel)

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{Logger: log.StandardLogger()},
	)

	task, err := tasks.NewPublishReminderTask()
	if err != nil {
		log.Fatalf("could not create task: %v", err)
	}

	// Weekdays at 09:00 UTC
	if _, err = scheduler.Register("0 9 * * 1-5", task); err != nil {
		log.Fatalf("could not register task: %v", err)
	}

	log.Infof("Scheduler starting (commit: %s)", CommitSHA)
	if err := scheduler.Run(); err != nil {
		log.Fatalf("could not run scheduler: %v", err)
	}
}
