package test

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"pdf-podcaster/internal/db"
)

// MockTaskEnqueuer is a mock implementation of tasks.TaskEnqueuer for testing.
type MockTaskEnqueuer struct {
	EnqueuedTasks []*asynq.Task
	Err           error
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "sqlmock")

	originalDB := db.DB
	db.DB = sqlxDB
	t.Cleanup(func() {
		db.DB = originalDB
		mockDb.Close()
	})

	return sqlxDB, mock
}

// WorkflowColumns are the columns returned by the workflow queries, in order.
var WorkflowColumns = []string{
	"id", "created_at", "episode_interview_file_name",
	"episode_interview_script_1", "episode_interview_script_2", "episode_interview_script_3", "episode_interview_script_4",
	"episode_interview_full_script", "episode_interview_file",
	"episode_interview_script_status", "episode_text_files_status", "podcast_status",
	"episode_titles", "episode_description", "episode_intro_transcript", "linkedin_post", "x_post", "podcast_excerpt",
	"show_notes", "intro_audio", "master_audio",
	"podbean_cover_art_url", "podbean_scheduled_date", "podbean_timestamp",
}

// WorkflowRow builds a row for WorkflowColumns. Unset columns are NULL,
// except created_at which defaults to now.
func WorkflowRow(values map[string]driver.Value) []driver.Value {
	row := make([]driver.Value, len(WorkflowColumns))
	for i, col := range WorkflowColumns {
		row[i] = values[col]
	}
	if values["created_at"] == nil {
		row[1] = time.Now()
	}
	return row
}
