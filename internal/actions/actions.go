// Package actions performs the operator's state transitions on a
// workflow row: approving scripts, starting text file and asset
// generation, and scheduling publication.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/metrics"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/reconcile"
	"pdf-podcaster/pkg/tasks"
)

var (
	// ErrNoEpisode means no workflow row could be found for the view.
	ErrNoEpisode = errors.New("episode ID or name is missing")
	// ErrActionDisabled means the action's guardrail is not satisfied.
	ErrActionDisabled = errors.New("action is not available for this episode")
)

// Store is the subset of the workflow store the actions write to.
type Store interface {
	FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error)
	ApproveScripts(ctx context.Context, id string) error
	UpdateTextFilesStatus(ctx context.Context, id string, status models.ProcessStatus) error
	UpdatePodcastStatus(ctx context.Context, id string, status models.ProcessStatus) error
	SavePublishing(ctx context.Context, id string, p db.Publishing) error
}

// CoverArtUploader stores cover art and returns its public URL.
type CoverArtUploader interface {
	Upload(episodeID, filename, contentType string, data io.Reader) (string, error)
}

type Service struct {
	store  Store
	queue  tasks.TaskEnqueuer
	covers CoverArtUploader
	sink   notice.Sink
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(store Store, queue tasks.TaskEnqueuer, covers CoverArtUploader, sink notice.Sink, log logrus.FieldLogger) *Service {
	return &Service{store: store, queue: queue, covers: covers, sink: sink, log: log, now: time.Now}
}

func (s *Service) notify(ctx context.Context, operator int64, episode string, level notice.Level, title, description string) {
	s.sink.Notify(ctx, notice.Notice{
		Operator:    operator,
		Episode:     episode,
		Title:       title,
		Description: description,
		Level:       level,
	})
}

// resolveID returns the view's row id, looking it up by name when the
// view does not know it yet.
func (s *Service) resolveID(ctx context.Context, v reconcile.View) (string, error) {
	if v.EpisodeID != "" {
		return v.EpisodeID, nil
	}
	if v.EpisodeName == "" {
		return "", ErrNoEpisode
	}
	rec, err := s.store.FindByEpisodeName(ctx, v.EpisodeName)
	if errors.Is(err, db.ErrNotFound) {
		return "", fmt.Errorf("%w: no row for %q", ErrNoEpisode, v.EpisodeName)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up episode %q: %w", v.EpisodeName, err)
	}
	return rec.ID, nil
}

// Approve marks the scripts approved, resets both downstream pipelines
// and queues audio generation. A failed write changes nothing.
func (s *Service) Approve(ctx context.Context, operator int64, v reconcile.View) (upd reconcile.Update, err error) {
	defer func() { metrics.RecordAction("approve", err) }()
	if !v.CanApprove() {
		return upd, ErrActionDisabled
	}
	id, err := s.resolveID(ctx, v)
	if err != nil {
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Episode ID or name is missing")
		return upd, err
	}
	log := s.log.WithFields(logrus.Fields{"episode": v.EpisodeName, "id": id})

	if err := s.store.ApproveScripts(ctx, id); err != nil {
		log.WithError(err).Error("Failed to approve scripts")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Update Error", "Failed to update script status in the database.")
		if errors.Is(err, db.ErrNotPending) {
			return upd, fmt.Errorf("%w: %w", ErrActionDisabled, err)
		}
		return upd, err
	}

	task, err := tasks.NewGenerateAudioTask(id, v.EpisodeName, v.ScriptLinks.Map(), s.now())
	if err == nil {
		_, err = s.queue.Enqueue(task)
	}
	if err != nil {
		log.WithError(err).Warn("Scripts approved but audio generation was not queued")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelWarning, "Scripts Approved",
			"Scripts were approved, but audio generation could not be started.")
	} else {
		log.Info("Scripts approved, audio generation queued")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelSuccess, "Scripts Approved",
			"All scripts have been successfully approved. Audio generation has started.")
	}

	approved := models.ScriptApproved
	pending := models.ProcessPending
	textPending := models.ProcessPending
	return reconcile.Update{
		EpisodeID:       &id,
		ScriptStatus:    &approved,
		TextFilesStatus: &textPending,
		PodcastStatus:   &pending,
	}, nil
}

func (s *Service) GenerateTextFiles(ctx context.Context, operator int64, v reconcile.View) (upd reconcile.Update, err error) {
	defer func() { metrics.RecordAction("text_files", err) }()
	if !v.CanGenerateTextFiles() {
		return upd, ErrActionDisabled
	}
	id, err := s.resolveID(ctx, v)
	if err != nil {
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Episode ID or name is missing")
		return upd, err
	}
	if err := s.store.UpdateTextFilesStatus(ctx, id, models.ProcessProcessing); err != nil {
		s.log.WithError(err).WithField("episode", v.EpisodeName).Error("Failed to start text files generation")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Failed to start text files generation")
		return upd, err
	}
	s.notify(ctx, operator, v.EpisodeName, notice.LevelSuccess, "Text Files Generation Started",
		fmt.Sprintf("Text files for %q are being generated.", v.EpisodeName))

	status := models.ProcessProcessing
	return reconcile.Update{EpisodeID: &id, TextFilesStatus: &status}, nil
}

func (s *Service) GenerateAssets(ctx context.Context, operator int64, v reconcile.View) (upd reconcile.Update, err error) {
	defer func() { metrics.RecordAction("assets", err) }()
	if !v.CanGenerateAssets() {
		return upd, ErrActionDisabled
	}
	id, err := s.resolveID(ctx, v)
	if err != nil {
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Episode ID or name is missing")
		return upd, err
	}
	if err := s.store.UpdatePodcastStatus(ctx, id, models.ProcessProcessing); err != nil {
		s.log.WithError(err).WithField("episode", v.EpisodeName).Error("Failed to start episode assets generation")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Failed to start episode assets generation")
		return upd, err
	}
	s.notify(ctx, operator, v.EpisodeName, notice.LevelSuccess, "Episode Assets Generation Started",
		fmt.Sprintf("Assets for %q are being generated.", v.EpisodeName))

	status := models.ProcessProcessing
	return reconcile.Update{EpisodeID: &id, PodcastStatus: &status}, nil
}

// PublishForm is the publishing section of the dashboard.
type PublishForm struct {
	CoverArt            io.Reader
	CoverArtFilename    string
	CoverArtContentType string
	ScheduledDate       string
}

// CanPublish gates publication: the podcast must be ready and every
// publishing field set.
func CanPublish(status models.ProcessStatus, coverArtSet, scheduledDateSet bool, unixTimestamp int64) bool {
	return status == models.ProcessReadyToPublish && coverArtSet && scheduledDateSet && unixTimestamp > 0
}

// publishHour is 10:00 at UTC-7, expressed in UTC.
const publishHour = 17

// ScheduledTimestamp derives the publication instant for a calendar date
// (YYYY-MM-DD): 17:00 UTC on that date, whatever the local time zone.
func ScheduledTimestamp(date string) (int64, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, fmt.Errorf("invalid scheduled date %q: %w", date, err)
	}
	return day.Add(publishHour * time.Hour).Unix(), nil
}

// Publish uploads the cover art and records the publishing metadata.
func (s *Service) Publish(ctx context.Context, operator int64, v reconcile.View, form PublishForm) (upd reconcile.Update, err error) {
	defer func() { metrics.RecordAction("publish", err) }()
	ts, tsErr := ScheduledTimestamp(form.ScheduledDate)
	if !CanPublish(v.PodcastStatus, form.CoverArt != nil && form.CoverArtFilename != "", form.ScheduledDate != "", ts) {
		if tsErr != nil && form.ScheduledDate != "" {
			return upd, fmt.Errorf("%w: %w", ErrActionDisabled, tsErr)
		}
		return upd, ErrActionDisabled
	}
	id, err := s.resolveID(ctx, v)
	if err != nil {
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Episode ID or name is missing")
		return upd, err
	}
	log := s.log.WithFields(logrus.Fields{"episode": v.EpisodeName, "id": id})

	url, err := s.covers.Upload(id, form.CoverArtFilename, form.CoverArtContentType, form.CoverArt)
	if err != nil {
		log.WithError(err).Error("Failed to upload cover art")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Failed to publish to Podbean")
		return upd, err
	}
	err = s.store.SavePublishing(ctx, id, db.Publishing{
		CoverArtURL:   url,
		ScheduledDate: form.ScheduledDate,
		UnixTimestamp: ts,
	})
	if err != nil {
		log.WithError(err).Error("Failed to save publishing metadata")
		s.notify(ctx, operator, v.EpisodeName, notice.LevelError, "Error", "Failed to publish to Podbean")
		return upd, err
	}
	log.WithField("timestamp", ts).Info("Publishing scheduled")
	s.notify(ctx, operator, v.EpisodeName, notice.LevelSuccess, "Publishing Started",
		fmt.Sprintf("%q is being published to Podbean.", v.EpisodeName))

	status := models.ProcessPublishing
	return reconcile.Update{EpisodeID: &id, PodcastStatus: &status}, nil
}
