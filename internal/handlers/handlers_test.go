package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pdf-podcaster/internal/actions"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/hub"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/present"
	"pdf-podcaster/internal/realtime"
	"pdf-podcaster/internal/session"
	"pdf-podcaster/internal/submission"
	testhelpers "pdf-podcaster/internal/test"
	"pdf-podcaster/web"
)

func strPtr(s string) *string { return &s }

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]models.WorkflowRecord
	approved  []string
	textFiles map[string]models.ProcessStatus
}

func newFakeStore(rows ...models.WorkflowRecord) *fakeStore {
	s := &fakeStore{rows: map[string]models.WorkflowRecord{}, textFiles: map[string]models.ProcessStatus{}}
	for _, r := range rows {
		s.rows[r.EpisodeName] = r
	}
	return s
}

func (s *fakeStore) FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.rows[name]
	if !ok {
		return models.WorkflowRecord{}, db.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ListRecent(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WorkflowRecord
	for _, r := range s.rows {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) ListWithMasterAudio(ctx context.Context, limit int) ([]models.WorkflowRecord, error) {
	recs, _ := s.ListRecent(ctx, limit)
	var out []models.WorkflowRecord
	for _, r := range recs {
		if models.IsValidLink(r.MasterAudio) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ApproveScripts(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = append(s.approved, id)
	return nil
}

func (s *fakeStore) UpdateTextFilesStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textFiles[id] = status
	return nil
}

func (s *fakeStore) UpdatePodcastStatus(ctx context.Context, id string, status models.ProcessStatus) error {
	return nil
}

func (s *fakeStore) SavePublishing(ctx context.Context, id string, p db.Publishing) error {
	return nil
}

type blockingTrigger struct{}

func (blockingTrigger) SubmitEpisode(ctx context.Context, name, filename string, pdf []byte) ([]models.WorkflowRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	h        *Handlers
	store    *fakeStore
	manager  *submission.Manager
	sessions *session.Registry
	queue    *testhelpers.MockTaskEnqueuer
}

func newFixture(t *testing.T, store *fakeStore) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	broker := realtime.NewBroker(logger)
	manager := submission.NewManager(ctx, store, blockingTrigger{}, broker, notice.Discard, logger, submission.Options{
		WaitBudget:   time.Minute,
		PollInterval: 10 * time.Millisecond,
	})
	queue := &testhelpers.MockTaskEnqueuer{}
	svc := actions.NewService(store, queue, nil, notice.Discard, logger)
	sessions := session.NewRegistry(func(op int64) *session.Coordinator {
		return session.NewCoordinator(ctx, op, session.Deps{
			Store:        store,
			Subscriber:   broker,
			Submitter:    manager,
			Actions:      svc,
			Log:          logger,
			PollInterval: time.Hour,
		})
	})
	tmpl, err := web.Templates()
	require.NoError(t, err)

	f := &fixture{
		h: New(Deps{
			Templates: tmpl,
			Sessions:  sessions,
			Flows:     manager,
			Store:     store,
			Hub:       hub.New(logger),
			FeedToken: "feed-secret",
			BaseURL:   "https://podcaster.example.com",
			Operators: map[int64]bool{7: true},
			Log:       logger,
		}),
		store:    store,
		manager:  manager,
		sessions: sessions,
		queue:    queue,
	}
	t.Cleanup(func() {
		sessions.CloseAll()
		cancel()
		manager.Wait()
	})
	return f
}

func asOperator(req *http.Request, id int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), models.OperatorContextKey, &models.Operator{TelegramID: id}))
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, fileField, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		part.Write(data)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return asOperator(req, 7)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestServeWebApp(t *testing.T) {
	f := newFixture(t, newFakeStore())
	rr := httptest.NewRecorder()
	f.h.ServeWebApp(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<title>PDF Podcaster</title>")
	assert.Contains(t, rr.Body.String(), `minlength="3"`)
}

func TestPostEpisodeValidation(t *testing.T) {
	f := newFixture(t, newFakeStore())
	req := multipartRequest(t, http.MethodPost, "/api/episodes", map[string]string{"episodeName": "ab"}, "pdfFile", "notes.txt", "text/plain", []byte("hello"))
	rr := httptest.NewRecorder()
	f.h.PostEpisode(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body errorBody
	decode(t, rr, &body)
	assert.Equal(t, "Episode name must be at least 3 characters.", body.Fields["episodeName"])
	assert.Equal(t, "Please upload a valid PDF file.", body.Fields["pdfFile"])
}

func TestSelectionAndView(t *testing.T) {
	f := newFixture(t, newFakeStore(models.WorkflowRecord{
		ID:           "42",
		EpisodeName:  "Ep-100",
		Script1:      strPtr("https://x/1"),
		Script4:      strPtr("https://x/4"),
		ScriptStatus: strPtr("Pending"),
	}))

	rr := httptest.NewRecorder()
	f.h.GetView(rr, asOperator(httptest.NewRequest(http.MethodGet, "/api/view", nil), 7))
	var page present.Page
	decode(t, rr, &page)
	assert.False(t, page.Selected)

	rr = httptest.NewRecorder()
	f.h.PostSelection(rr, multipartRequest(t, http.MethodPost, "/api/selection", map[string]string{"episodeName": "Ep-100"}, "", "", "", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &page)
	assert.True(t, page.Selected)
	assert.Equal(t, "42", page.EpisodeID)
	assert.True(t, page.GenerateAudio.Enabled)

	rr = httptest.NewRecorder()
	f.h.PostApprove(rr, asOperator(httptest.NewRequest(http.MethodPost, "/api/actions/approve", nil), 7))
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &page)
	assert.Equal(t, "Approved", page.ScriptStatus.Text)
	assert.Equal(t, []string{"42"}, f.store.approved)
	assert.Len(t, f.queue.EnqueuedTasks, 1)

	// approving twice is refused
	rr = httptest.NewRecorder()
	f.h.PostApprove(rr, asOperator(httptest.NewRequest(http.MethodPost, "/api/actions/approve", nil), 7))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	f.h.PostTextFiles(rr, asOperator(httptest.NewRequest(http.MethodPost, "/api/actions/text-files", nil), 7))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.ProcessProcessing, f.store.textFiles["42"])

	rr = httptest.NewRecorder()
	f.h.DeleteSelection(rr, asOperator(httptest.NewRequest(http.MethodDelete, "/api/selection", nil), 7))
	decode(t, rr, &page)
	assert.False(t, page.Selected)
}

func TestActionsWithoutSelection(t *testing.T) {
	f := newFixture(t, newFakeStore())
	rr := httptest.NewRecorder()
	f.h.PostAssets(rr, asOperator(httptest.NewRequest(http.MethodPost, "/api/actions/assets", nil), 7))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	f.h.PostRefresh(rr, asOperator(httptest.NewRequest(http.MethodPost, "/api/view/refresh", nil), 7))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestPostPublishRequiresFields(t *testing.T) {
	f := newFixture(t, newFakeStore())
	rr := httptest.NewRecorder()
	f.h.PostPublish(rr, multipartRequest(t, http.MethodPost, "/api/actions/publish", map[string]string{"scheduledDate": "2025-03-10"}, "", "", "", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body errorBody
	decode(t, rr, &body)
	assert.Equal(t, "Missing required publishing information", body.Error)
}

func TestSubmitAndLookUpSubmission(t *testing.T) {
	f := newFixture(t, newFakeStore())
	pdf := []byte("%PDF-1.4\n")
	req := multipartRequest(t, http.MethodPost, "/api/episodes", map[string]string{"episodeName": "Ep-100"}, "pdfFile", "ep.pdf", "application/pdf", pdf)

	// the PDF above is not parseable, so validation fails before any flow starts
	rr := httptest.NewRecorder()
	f.h.PostEpisode(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// flows started through the session are visible by id to their operator only
	flow, started, err := f.sessions.Get(7).Submit(submission.Request{EpisodeName: "Ep-100", PDF: pdf})
	require.NoError(t, err)
	require.True(t, started)

	rr = httptest.NewRecorder()
	get := mux.SetURLVars(asOperator(httptest.NewRequest(http.MethodGet, "/api/submissions/"+flow.ID, nil), 7), map[string]string{"id": flow.ID})
	f.h.GetSubmission(rr, get)
	require.Equal(t, http.StatusOK, rr.Code)
	var st submission.Status
	decode(t, rr, &st)
	assert.Equal(t, "Ep-100", st.EpisodeName)

	rr = httptest.NewRecorder()
	other := mux.SetURLVars(asOperator(httptest.NewRequest(http.MethodGet, "/api/submissions/"+flow.ID, nil), 8), map[string]string{"id": flow.ID})
	f.h.GetSubmission(rr, other)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetEpisodes(t *testing.T) {
	f := newFixture(t, newFakeStore(models.WorkflowRecord{ID: "1", EpisodeName: "Ep-1", PodcastStatus: strPtr("Failed")}))
	rr := httptest.NewRecorder()
	f.h.GetEpisodes(rr, asOperator(httptest.NewRequest(http.MethodGet, "/api/episodes", nil), 7))

	var rows []present.EpisodeRow
	decode(t, rr, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "Failed", rows[0].PodcastStatus.Text)
	assert.Equal(t, present.ToneRed, rows[0].PodcastStatus.Tone)
}

func TestGetRSSFeed(t *testing.T) {
	f := newFixture(t, newFakeStore(models.WorkflowRecord{ID: "1", EpisodeName: "Ep-1", MasterAudio: strPtr("https://cdn.example.com/1.mp3")}))

	rr := httptest.NewRecorder()
	f.h.GetRSSFeed(rr, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/rss/wrong", nil), map[string]string{"token": "wrong"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	f.h.GetRSSFeed(rr, mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/rss/feed-secret", nil), map[string]string{"token": "feed-secret"}))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/rss+xml", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "https://cdn.example.com/1.mp3")
	assert.Contains(t, rr.Body.String(), "https://podcaster.example.com/rss/feed-secret")
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func command(from int64, text string) *tgbotapi.Message {
	cmd := strings.SplitN(text, " ", 2)[0]
	return &tgbotapi.Message{
		Text:     text,
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: 99},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}
}

func TestBotCommands(t *testing.T) {
	f := newFixture(t, newFakeStore(models.WorkflowRecord{
		ID:            "1",
		EpisodeName:   "Ep-1",
		ScriptStatus:  strPtr("Approved"),
		PodcastStatus: strPtr("Ready to Publish"),
		MasterAudio:   strPtr("https://cdn.example.com/1.mp3"),
	}))
	bot := &fakeBot{}

	f.h.handleBotMessage(context.Background(), bot, command(7, "/list"))
	require.Len(t, bot.sent, 1)
	assert.Contains(t, bot.sent[0].Text, "<b>Ep-1</b>: script Approved, text files Not started, podcast Ready to Publish")
	assert.Equal(t, "HTML", bot.sent[0].ParseMode)

	f.h.handleBotMessage(context.Background(), bot, command(7, "/status Ep-1"))
	require.Len(t, bot.sent, 2)
	assert.Contains(t, bot.sent[1].Text, "Podcast: Ready to Publish")
	assert.Contains(t, bot.sent[1].Text, `<a href="https://cdn.example.com/1.mp3">Master Audio File</a>`)

	f.h.handleBotMessage(context.Background(), bot, command(7, "/status Nope"))
	assert.Contains(t, bot.sent[2].Text, "No episode named <b>Nope</b>.")

	// strangers get no answer at all
	f.h.handleBotMessage(context.Background(), bot, command(8, "/list"))
	assert.Len(t, bot.sent, 3)
}
