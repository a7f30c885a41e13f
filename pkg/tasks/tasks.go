package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeGenerateAudio   = "audio:generate"
	TypePublishReminder = "publish:remind"
)

// GenerateAudioPayload is both the task payload and the JSON body posted
// to the audio automation webhook.
type GenerateAudioPayload struct {
	EpisodeID   string             `json:"episodeId"`
	EpisodeName string             `json:"episodeName"`
	ScriptLinks map[string]*string `json:"scriptLinks"`
	Timestamp   string             `json:"timestamp"`
	Action      string             `json:"action"`
}

func NewGenerateAudioTask(episodeID, episodeName string, scriptLinks map[string]*string, now time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(GenerateAudioPayload{
		EpisodeID:   episodeID,
		EpisodeName: episodeName,
		ScriptLinks: scriptLinks,
		Timestamp:   now.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Action:      "generate_audio",
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeGenerateAudio, payload, asynq.MaxRetry(5)), nil
}

func NewPublishReminderTask() (*asynq.Task, error) {
	return asynq.NewTask(TypePublishReminder, nil), nil
}
