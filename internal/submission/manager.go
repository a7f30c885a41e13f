package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/metrics"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/race"
	"pdf-podcaster/internal/realtime"
)

const (
	armResponse = "response"
	armPoll     = "poll"
	armPush     = "push"
)

// finishedRetention is how long finished flows stay queryable by id.
const finishedRetention = time.Hour

// Store is the lookup the flow needs.
type Store interface {
	FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error)
}

// Trigger starts the external job.
type Trigger interface {
	SubmitEpisode(ctx context.Context, episodeName, filename string, pdf []byte) ([]models.WorkflowRecord, error)
}

// Request is one submission.
type Request struct {
	Operator    int64
	EpisodeName string
	Filename    string
	PDF         []byte
	// OnTick runs on every poll tick while the flow waits. Sessions use it
	// to refresh the episodes list.
	OnTick func()
}

type Options struct {
	WaitBudget   time.Duration
	PollInterval time.Duration
}

// Manager runs submission flows, at most one per episode name at a time.
type Manager struct {
	base    context.Context
	store   Store
	trigger Trigger
	subs    realtime.Subscriber
	sink    notice.Sink
	log     logrus.FieldLogger
	opts    Options

	mu     sync.Mutex
	active map[string]*Flow
	byID   map[string]*Flow
	wg     sync.WaitGroup
}

// NewManager creates a manager whose flows stop when base is cancelled.
func NewManager(base context.Context, store Store, trigger Trigger, subs realtime.Subscriber, sink notice.Sink, log logrus.FieldLogger, opts Options) *Manager {
	if opts.WaitBudget <= 0 {
		opts.WaitBudget = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Manager{
		base:    base,
		store:   store,
		trigger: trigger,
		subs:    subs,
		sink:    sink,
		log:     log,
		opts:    opts,
		active:  make(map[string]*Flow),
		byID:    make(map[string]*Flow),
	}
}

// Submit starts a flow for req, or returns the flow already running for
// the same episode name. started is false in the latter case.
func (m *Manager) Submit(req Request) (flow *Flow, started bool) {
	name := strings.TrimSpace(req.EpisodeName)
	req.EpisodeName = name

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.active[name]; ok {
		return f, false
	}
	m.prune(time.Now())

	f := newFlow(uuid.NewString(), name, req.Operator, time.Now())
	m.active[name] = f
	m.byID[f.ID] = f
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(f, req)
		m.mu.Lock()
		if m.active[name] == f {
			delete(m.active, name)
		}
		m.mu.Unlock()
	}()
	return f, true
}

// Get looks up a flow by id.
func (m *Manager) Get(id string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	return f, ok
}

// Active returns the running flow for an episode name.
func (m *Manager) Active(name string) (*Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.active[strings.TrimSpace(name)]
	return f, ok
}

// Wait blocks until every flow has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) prune(now time.Time) {
	for id, f := range m.byID {
		st := f.Status()
		if st.FinishedAt != nil && now.Sub(*st.FinishedAt) > finishedRetention {
			delete(m.byID, id)
		}
	}
}

func (m *Manager) notify(f *Flow, level notice.Level, title, description string) {
	m.sink.Notify(m.base, notice.Notice{
		Operator:    f.Operator,
		Episode:     f.EpisodeName,
		Title:       title,
		Description: description,
		Level:       level,
	})
}

func (m *Manager) run(f *Flow, req Request) {
	log := m.log.WithFields(logrus.Fields{"submission": f.ID, "episode": f.EpisodeName})
	ctx := m.base

	m.notify(f, notice.LevelInfo, "Processing Started",
		"Your request is being processed. This will take a few minutes to complete.")

	f.setState(StateCheckingExisting)
	existing, err := m.store.FindByEpisodeName(ctx, f.EpisodeName)
	switch {
	case err == nil:
		log.Info("Found existing workflow row, nothing submitted")
		f.finish(StateResolved, WinnerExisting, &existing, time.Now())
		metrics.RecordSubmission("existing")
		m.notify(f, notice.LevelSuccess, "Scripts Found!",
			fmt.Sprintf("Existing scripts for %q have been loaded.", f.EpisodeName))
		return
	case errors.Is(err, db.ErrNotFound):
	case ctx.Err() != nil:
		f.finish(StateCancelled, "", nil, time.Now())
		metrics.RecordSubmission("cancelled")
		return
	default:
		// a failed lookup does not block submitting; the poll arm retries it
		log.WithError(err).Warn("Failed to check for existing workflow row")
	}

	f.setState(StateSubmitting)
	log.Info("Submitting episode to automation")
	res, err := race.First(ctx, m.opts.WaitBudget,
		m.responseArm(f, req, log),
		m.pollArm(f, req, log),
		m.pushArm(f),
	)
	switch {
	case err == nil:
		log.WithField("arm", res.Winner).Info("Workflow row found")
		f.finish(StateResolved, res.Winner, &res.Value, time.Now())
		metrics.RecordRaceWin(res.Winner)
		metrics.RecordSubmission("resolved")
		m.notify(f, notice.LevelSuccess, "Success!",
			fmt.Sprintf("Scripts for %q have been generated.", f.EpisodeName))
	case errors.Is(err, race.ErrBudgetExceeded):
		log.WithField("budget", m.opts.WaitBudget).Warn("Gave up waiting for workflow row")
		f.finish(StateTimedOut, "", nil, time.Now())
		metrics.RecordSubmission("timed_out")
		m.notify(f, notice.LevelError, "Processing Timeout",
			"The request is taking longer than expected. Please check the episodes list for your submission.")
	default:
		log.WithError(err).Info("Submission cancelled")
		f.finish(StateCancelled, "", nil, time.Now())
		metrics.RecordSubmission("cancelled")
	}
}

func matches(rec models.WorkflowRecord, name string) bool {
	return strings.TrimSpace(rec.EpisodeName) == name
}

// responseArm resolves from the webhook's own reply. Failures only drop
// this arm; the automation may still finish the job.
func (m *Manager) responseArm(f *Flow, req Request, log logrus.FieldLogger) race.Arm[models.WorkflowRecord] {
	return race.Arm[models.WorkflowRecord]{Name: armResponse, Run: func(ctx context.Context, resolve func(models.WorkflowRecord) bool) {
		records, err := m.trigger.SubmitEpisode(ctx, f.EpisodeName, req.Filename, req.PDF)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("Submit webhook failed, still waiting for the workflow row")
			}
			return
		}
		if len(records) > 0 && matches(records[0], f.EpisodeName) {
			resolve(records[0])
		}
	}}
}

func (m *Manager) pollArm(f *Flow, req Request, log logrus.FieldLogger) race.Arm[models.WorkflowRecord] {
	return race.Arm[models.WorkflowRecord]{Name: armPoll, Run: func(ctx context.Context, resolve func(models.WorkflowRecord) bool) {
		ticker := time.NewTicker(m.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if req.OnTick != nil {
				req.OnTick()
			}
			rec, err := m.store.FindByEpisodeName(ctx, f.EpisodeName)
			if err == nil {
				resolve(rec)
				return
			}
			if !errors.Is(err, db.ErrNotFound) && ctx.Err() == nil {
				log.WithError(err).Debug("Poll failed")
			}
		}
	}}
}

func (m *Manager) pushArm(f *Flow) race.Arm[models.WorkflowRecord] {
	return race.Arm[models.WorkflowRecord]{Name: armPush, Run: func(ctx context.Context, resolve func(models.WorkflowRecord) bool) {
		handler := func(ev realtime.Event) {
			if matches(ev.Record, f.EpisodeName) {
				resolve(ev.Record)
			}
		}
		unsubscribeInsert := m.subs.Subscribe(realtime.Insert, handler)
		defer unsubscribeInsert()
		unsubscribeUpdate := m.subs.Subscribe(realtime.Update, handler)
		defer unsubscribeUpdate()
		<-ctx.Done()
	}}
}
