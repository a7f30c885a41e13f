package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/webhook"
	"pdf-podcaster/pkg/tasks"
)

// reminderLimit caps how many waiting episodes one reminder lists.
const reminderLimit = 20

// AudioGenerator triggers audio generation in the automation.
type AudioGenerator interface {
	GenerateAudio(ctx context.Context, p tasks.GenerateAudioPayload) error
}

type TaskHandler struct {
	audio AudioGenerator
	sink  notice.Sink
}

func NewTaskHandler(audio AudioGenerator, sink notice.Sink) *TaskHandler {
	return &TaskHandler{audio: audio, sink: sink}
}

// HandleGenerateAudioTask posts the approved scripts to the audio
// webhook. Client errors are not retried; the operator hears about a
// failure once retries are exhausted.
func (h *TaskHandler) HandleGenerateAudioTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.GenerateAudioPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}
	logger := log.WithFields(log.Fields{"episode": p.EpisodeName, "episode_id": p.EpisodeID})
	logger.Info("Triggering audio generation")

	err := h.audio.GenerateAudio(ctx, p)
	if err == nil {
		logger.Info("Audio generation triggered")
		return nil
	}

	var statusErr *webhook.StatusError
	permanent := errors.As(err, &statusErr) && statusErr.Code >= http.StatusBadRequest && statusErr.Code < http.StatusInternalServerError
	if permanent || lastAttempt(ctx) {
		logger.WithError(err).Error("Audio generation failed")
		h.sink.Notify(ctx, notice.Notice{
			Episode:     p.EpisodeName,
			Level:       notice.LevelError,
			Title:       "Audio Generation Failed",
			Description: fmt.Sprintf("Audio for %q could not be generated. Check the automation.", p.EpisodeName),
		})
	} else {
		logger.WithError(err).Warn("Audio generation failed, will retry")
	}
	if permanent {
		return fmt.Errorf("audio webhook rejected the request: %w: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("failed to trigger audio generation: %w", err)
}

func lastAttempt(ctx context.Context) bool {
	retried, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	return ok1 && ok2 && retried >= maxRetry
}

// HandlePublishReminderTask reminds operators of episodes that are ready
// but were never published.
func (h *TaskHandler) HandlePublishReminderTask(ctx context.Context, t *asynq.Task) error {
	records, err := db.ListByPodcastStatus(ctx, models.ProcessReadyToPublish, reminderLimit)
	if err != nil {
		return fmt.Errorf("failed to list episodes ready to publish: %w", err)
	}
	if len(records) == 0 {
		log.Debug("No episodes waiting to be published")
		return nil
	}

	names := make([]string, 0, len(records))
	for _, rec := range records {
		names = append(names, rec.EpisodeName)
	}
	log.WithField("count", len(records)).Info("Sending publish reminder")
	h.sink.Notify(ctx, notice.Notice{
		Level:       notice.LevelWarning,
		Title:       "Episodes Ready to Publish",
		Description: strings.Join(names, ", "),
	})
	return nil
}
