package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pdf-podcaster/internal/models"
)

var (
	// ErrNotFound is returned when no workflow row matches a lookup.
	ErrNotFound = errors.New("workflow record not found")
	// ErrNotPending is returned when an approval finds no Pending row to move.
	ErrNotPending = errors.New("workflow record is not pending approval")
)

const workflowColumns = `id, created_at, episode_interview_file_name,
	episode_interview_script_1, episode_interview_script_2, episode_interview_script_3, episode_interview_script_4,
	episode_interview_full_script, episode_interview_file,
	episode_interview_script_status, episode_text_files_status, podcast_status,
	episode_titles, episode_description, episode_intro_transcript, linkedin_post, x_post, podcast_excerpt,
	show_notes, intro_audio, master_audio,
	podbean_cover_art_url, podbean_scheduled_date, podbean_timestamp`

// FindByEpisodeName returns the most recent row for an episode name. The
// automation may insert while we look, so several rows can share a name.
func FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error) {
	rec := models.WorkflowRecord{}
	err := DB.GetContext(ctx, &rec, `SELECT `+workflowColumns+`
		FROM autoworkflow
		WHERE episode_interview_file_name = $1
		ORDER BY created_at DESC
		LIMIT 1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

func GetWorkflowByID(ctx context.Context, id string) (models.WorkflowRecord, error) {
	rec := models.WorkflowRecord{}
	err := DB.GetContext(ctx, &rec, `SELECT `+workflowColumns+` FROM autoworkflow WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// ListRecentWorkflows returns the newest rows, for the episodes list.
func ListRecentWorkflows(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	var records []models.WorkflowRecord
	err := DB.SelectContext(ctx, &records, `SELECT `+workflowColumns+`
		FROM autoworkflow
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	return records, err
}

// ListWithMasterAudio returns rows whose master audio has been produced.
func ListWithMasterAudio(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	var records []models.WorkflowRecord
	err := DB.SelectContext(ctx, &records, `SELECT `+workflowColumns+`
		FROM autoworkflow
		WHERE master_audio IS NOT NULL AND btrim(master_audio) <> ''
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	return records, err
}

// ListByPodcastStatus returns rows whose podcast pipeline is in status.
func ListByPodcastStatus(ctx context.Context, status models.ProcessStatus, limit int) ([]models.WorkflowRecord, error) {
	var records []models.WorkflowRecord
	err := DB.SelectContext(ctx, &records, `SELECT `+workflowColumns+`
		FROM autoworkflow
		WHERE podcast_status = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(status), limit)
	return records, err
}

// ApproveScripts moves a row to Approved and resets both downstream
// pipelines to Pending in a single statement. The row must still be
// Pending, so a repeated or stale approval never moves a status backwards.
func ApproveScripts(ctx context.Context, id string) error {
	res, err := DB.ExecContext(ctx, `
		UPDATE autoworkflow
		SET episode_interview_script_status = $1, episode_text_files_status = $2, podcast_status = $3
		WHERE id = $4 AND COALESCE(NULLIF(btrim(episode_interview_script_status), ''), $5) = $5`,
		string(models.ScriptApproved), string(models.ProcessPending), string(models.ProcessPending), id,
		string(models.ScriptPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("approve workflow %s: %w", id, ErrNotPending)
	}
	return nil
}

func UpdateTextFilesStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	res, err := DB.ExecContext(ctx, "UPDATE autoworkflow SET episode_text_files_status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

func UpdatePodcastStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	res, err := DB.ExecContext(ctx, "UPDATE autoworkflow SET podcast_status = $1 WHERE id = $2", string(status), id)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

// Publishing is the metadata written when an episode is scheduled on Podbean.
type Publishing struct {
	CoverArtURL   string
	ScheduledDate string
	UnixTimestamp int64
}

func SavePublishing(ctx context.Context, id string, p Publishing) error {
	res, err := DB.ExecContext(ctx, `
		UPDATE autoworkflow
		SET podcast_status = $1, podbean_cover_art_url = $2, podbean_scheduled_date = $3, podbean_timestamp = $4
		WHERE id = $5`,
		string(models.ProcessPublishing), p.CoverArtURL, p.ScheduledDate, p.UnixTimestamp, id)
	if err != nil {
		return err
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("update of workflow %s: %w", id, ErrNotFound)
	}
	return nil
}

// Repo exposes the package functions as a value, for components that
// take the store as an interface.
type Repo struct{}

func (Repo) FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error) {
	return FindByEpisodeName(ctx, name)
}

func (Repo) GetByID(ctx context.Context, id string) (models.WorkflowRecord, error) {
	return GetWorkflowByID(ctx, id)
}

func (Repo) ApproveScripts(ctx context.Context, id string) error {
	return ApproveScripts(ctx, id)
}

func (Repo) UpdateTextFilesStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	return UpdateTextFilesStatus(ctx, id, status)
}

func (Repo) UpdatePodcastStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	return UpdatePodcastStatus(ctx, id, status)
}

func (Repo) SavePublishing(ctx context.Context, id string, p Publishing) error {
	return SavePublishing(ctx, id, p)
}

func (Repo) ListRecent(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	return ListRecentWorkflows(ctx, limit)
}

func (Repo) ListWithMasterAudio(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	return ListWithMasterAudio(ctx, limit)
}

func (Repo) ListByPodcastStatus(ctx context.Context, status models.ProcessStatus, limit int) ([]models.WorkflowRecord, error) {
	return ListByPodcastStatus(ctx, status, limit)
}
