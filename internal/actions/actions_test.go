package actions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/reconcile"
	testhelpers "pdf-podcaster/internal/test"
	"pdf-podcaster/pkg/tasks"
)

func strPtr(s string) *string { return &s }

type fakeStore struct {
	rows        map[string]models.WorkflowRecord
	writeErr    error
	approved    []string
	textFiles   map[string]models.ProcessStatus
	podcast     map[string]models.ProcessStatus
	publishings map[string]db.Publishing
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:        map[string]models.WorkflowRecord{},
		textFiles:   map[string]models.ProcessStatus{},
		podcast:     map[string]models.ProcessStatus{},
		publishings: map[string]db.Publishing{},
	}
}

func (s *fakeStore) FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error) {
	rec, ok := s.rows[name]
	if !ok {
		return models.WorkflowRecord{}, db.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ApproveScripts(ctx context.Context, id string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.approved = append(s.approved, id)
	return nil
}

func (s *fakeStore) UpdateTextFilesStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.textFiles[id] = status
	return nil
}

func (s *fakeStore) UpdatePodcastStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.podcast[id] = status
	return nil
}

func (s *fakeStore) SavePublishing(ctx context.Context, id string, p db.Publishing) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.publishings[id] = p
	return nil
}

type fakeCovers struct {
	key  string
	body string
	err  error
}

func (c *fakeCovers) Upload(episodeID, filename, contentType string, data io.Reader) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	b, _ := io.ReadAll(data)
	c.key = episodeID + "/" + filename
	c.body = string(b)
	return "https://cdn.example.com/" + episodeID + "_cover_art.png", nil
}

func generatedView() reconcile.View {
	return reconcile.View{
		EpisodeName:  "Ep-100",
		ScriptStatus: models.ScriptPending,
		ScriptLinks: models.ScriptLinks{
			Script1: strPtr("https://x/1"),
			Script4: strPtr("https://x/4"),
		},
	}
}

func newService(store Store, queue tasks.TaskEnqueuer, covers CoverArtUploader) (*Service, *notice.Recorder) {
	logger, _ := test.NewNullLogger()
	sink := &notice.Recorder{}
	return NewService(store, queue, covers, sink, logger), sink
}

func TestApproveLooksUpIDAndQueuesAudio(t *testing.T) {
	store := newFakeStore()
	store.rows["Ep-100"] = models.WorkflowRecord{ID: "42", EpisodeName: "Ep-100"}
	queue := &testhelpers.MockTaskEnqueuer{}
	svc, sink := newService(store, queue, nil)

	upd, err := svc.Approve(context.Background(), 7, generatedView())
	require.NoError(t, err)

	assert.Equal(t, []string{"42"}, store.approved)
	require.NotNil(t, upd.EpisodeID)
	assert.Equal(t, "42", *upd.EpisodeID)
	assert.Equal(t, models.ScriptApproved, *upd.ScriptStatus)
	assert.Equal(t, models.ProcessPending, *upd.TextFilesStatus)
	assert.Equal(t, models.ProcessPending, *upd.PodcastStatus)

	require.Len(t, queue.EnqueuedTasks, 1)
	task := queue.EnqueuedTasks[0]
	assert.Equal(t, tasks.TypeGenerateAudio, task.Type())
	var p tasks.GenerateAudioPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, "42", p.EpisodeID)
	assert.Equal(t, "https://x/4", *p.ScriptLinks["episode_interview_script_4"])

	require.Len(t, sink.Notices(), 1)
	assert.Equal(t, int64(7), sink.Notices()[0].Operator)
	assert.Equal(t, "Scripts Approved", sink.Notices()[0].Title)
	assert.Equal(t, notice.LevelSuccess, sink.Notices()[0].Level)
}

func TestApproveRequiresSummaryScript(t *testing.T) {
	store := newFakeStore()
	queue := &testhelpers.MockTaskEnqueuer{}
	svc, sink := newService(store, queue, nil)

	v := generatedView()
	v.EpisodeID = "42"
	v.ScriptLinks.Script4 = nil

	_, err := svc.Approve(context.Background(), 7, v)
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.Empty(t, store.approved)
	assert.Empty(t, queue.EnqueuedTasks)
	assert.Empty(t, sink.Notices())
}

func TestApproveOnlyFromPending(t *testing.T) {
	svc, _ := newService(newFakeStore(), &testhelpers.MockTaskEnqueuer{}, nil)
	v := generatedView()
	v.EpisodeID = "42"
	v.ScriptStatus = models.ScriptApproved

	_, err := svc.Approve(context.Background(), 7, v)
	assert.ErrorIs(t, err, ErrActionDisabled)
}

func TestApproveWriteFailureChangesNothing(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("connection reset")
	queue := &testhelpers.MockTaskEnqueuer{}
	svc, sink := newService(store, queue, nil)
	v := generatedView()
	v.EpisodeID = "42"

	upd, err := svc.Approve(context.Background(), 7, v)
	require.Error(t, err)
	assert.Nil(t, upd.ScriptStatus)
	assert.Empty(t, queue.EnqueuedTasks)
	assert.Equal(t, []string{"Update Error"}, sink.Titles())
}

func TestApproveEnqueueFailureStillApproves(t *testing.T) {
	store := newFakeStore()
	queue := &testhelpers.MockTaskEnqueuer{Err: errors.New("redis down")}
	svc, sink := newService(store, queue, nil)
	v := generatedView()
	v.EpisodeID = "42"

	upd, err := svc.Approve(context.Background(), 7, v)
	require.NoError(t, err)
	assert.Equal(t, models.ScriptApproved, *upd.ScriptStatus)
	require.Len(t, sink.Notices(), 1)
	assert.Equal(t, notice.LevelWarning, sink.Notices()[0].Level)
}

func TestApproveWithUnknownEpisode(t *testing.T) {
	svc, sink := newService(newFakeStore(), &testhelpers.MockTaskEnqueuer{}, nil)

	_, err := svc.Approve(context.Background(), 7, generatedView())
	assert.ErrorIs(t, err, ErrNoEpisode)
	assert.Equal(t, []string{"Error"}, sink.Titles())
}

func TestApproveAgainstDatabase(t *testing.T) {
	_, mock := testhelpers.NewMockDB(t)
	mock.ExpectExec("UPDATE autoworkflow").
		WithArgs("Approved", "Pending", "Pending", "42", "Pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc, _ := newService(db.Repo{}, &testhelpers.MockTaskEnqueuer{}, nil)
	v := generatedView()
	v.EpisodeID = "42"

	_, err := svc.Approve(context.Background(), 7, v)
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.ErrorIs(t, err, db.ErrNotPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateTextFiles(t *testing.T) {
	store := newFakeStore()
	svc, sink := newService(store, nil, nil)
	v := generatedView()
	v.EpisodeID = "42"

	upd, err := svc.GenerateTextFiles(context.Background(), 7, v)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessProcessing, store.textFiles["42"])
	assert.Equal(t, models.ProcessProcessing, *upd.TextFilesStatus)
	assert.Nil(t, upd.PodcastStatus)
	assert.Equal(t, []string{"Text Files Generation Started"}, sink.Titles())
	assert.Contains(t, sink.Notices()[0].Description, `"Ep-100"`)
}

func TestGenerateAssets(t *testing.T) {
	store := newFakeStore()
	svc, sink := newService(store, nil, nil)
	v := generatedView()
	v.EpisodeID = "42"

	upd, err := svc.GenerateAssets(context.Background(), 7, v)
	require.NoError(t, err)
	assert.Equal(t, models.ProcessProcessing, store.podcast["42"])
	assert.Equal(t, models.ProcessProcessing, *upd.PodcastStatus)
	assert.Equal(t, []string{"Episode Assets Generation Started"}, sink.Titles())
}

func TestGenerationNeedsGeneratedScripts(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(store, nil, nil)
	v := reconcile.View{EpisodeName: "Ep-100", EpisodeID: "42"}

	_, err := svc.GenerateTextFiles(context.Background(), 7, v)
	assert.ErrorIs(t, err, ErrActionDisabled)
	_, err = svc.GenerateAssets(context.Background(), 7, v)
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.Empty(t, store.textFiles)
	assert.Empty(t, store.podcast)
}

func TestGenerateTextFilesWriteFailure(t *testing.T) {
	store := newFakeStore()
	store.writeErr = errors.New("boom")
	svc, sink := newService(store, nil, nil)
	v := generatedView()
	v.EpisodeID = "42"

	_, err := svc.GenerateTextFiles(context.Background(), 7, v)
	require.Error(t, err)
	require.Len(t, sink.Notices(), 1)
	assert.Equal(t, "Failed to start text files generation", sink.Notices()[0].Description)
}

func TestScheduledTimestamp(t *testing.T) {
	ts, err := ScheduledTimestamp("2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, int64(1741626000), ts)

	_, err = ScheduledTimestamp("10/03/2025")
	assert.Error(t, err)
}

func TestScheduledTimestampIgnoresLocalZone(t *testing.T) {
	original := time.Local
	t.Cleanup(func() { time.Local = original })

	for _, zone := range []*time.Location{
		time.FixedZone("Asia/Tokyo", 9*3600),
		time.FixedZone("America/Los_Angeles", -7*3600),
	} {
		time.Local = zone
		ts, err := ScheduledTimestamp("2025-03-10")
		require.NoError(t, err, zone.String())
		assert.Equal(t, int64(1741626000), ts, zone.String())
	}
}

func TestCanPublish(t *testing.T) {
	assert.True(t, CanPublish(models.ProcessReadyToPublish, true, true, 1741626000))
	assert.False(t, CanPublish(models.ProcessCompleted, true, true, 1741626000))
	assert.False(t, CanPublish(models.ProcessReadyToPublish, false, true, 1741626000))
	assert.False(t, CanPublish(models.ProcessReadyToPublish, true, false, 1741626000))
	assert.False(t, CanPublish(models.ProcessReadyToPublish, true, true, 0))
}

func TestPublishUploadsCoverAndSavesMetadata(t *testing.T) {
	store := newFakeStore()
	covers := &fakeCovers{}
	svc, sink := newService(store, nil, covers)
	v := generatedView()
	v.EpisodeID = "42"
	v.PodcastStatus = models.ProcessReadyToPublish

	upd, err := svc.Publish(context.Background(), 7, v, PublishForm{
		CoverArt:            strings.NewReader("png-bytes"),
		CoverArtFilename:    "cover.png",
		CoverArtContentType: "image/png",
		ScheduledDate:       "2025-03-10",
	})
	require.NoError(t, err)

	assert.Equal(t, "42/cover.png", covers.key)
	assert.Equal(t, "png-bytes", covers.body)
	assert.Equal(t, db.Publishing{
		CoverArtURL:   "https://cdn.example.com/42_cover_art.png",
		ScheduledDate: "2025-03-10",
		UnixTimestamp: 1741626000,
	}, store.publishings["42"])
	assert.Equal(t, models.ProcessPublishing, *upd.PodcastStatus)
	assert.Equal(t, []string{"Publishing Started"}, sink.Titles())
}

func TestPublishRequiresReadyStatus(t *testing.T) {
	covers := &fakeCovers{}
	svc, _ := newService(newFakeStore(), nil, covers)
	v := generatedView()
	v.EpisodeID = "42"
	v.PodcastStatus = models.ProcessProcessing

	_, err := svc.Publish(context.Background(), 7, v, PublishForm{
		CoverArt:         strings.NewReader("png"),
		CoverArtFilename: "cover.png",
		ScheduledDate:    "2025-03-10",
	})
	assert.ErrorIs(t, err, ErrActionDisabled)
	assert.Empty(t, covers.key)
}

func TestPublishUploadFailureSkipsWrite(t *testing.T) {
	store := newFakeStore()
	svc, sink := newService(store, nil, &fakeCovers{err: errors.New("bucket missing")})
	v := generatedView()
	v.EpisodeID = "42"
	v.PodcastStatus = models.ProcessReadyToPublish

	_, err := svc.Publish(context.Background(), 7, v, PublishForm{
		CoverArt:         strings.NewReader("png"),
		CoverArtFilename: "cover.png",
		ScheduledDate:    "2025-03-10",
	})
	require.Error(t, err)
	assert.Empty(t, store.publishings)
	require.Len(t, sink.Notices(), 1)
	assert.Equal(t, "Failed to publish to Podbean", sink.Notices()[0].Description)
}
