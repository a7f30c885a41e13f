// Package session keeps one operator's dashboard state: the selected
// episode, the polling and change subscriptions that feed it, and the
// submissions and actions started from it.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/actions"
	"pdf-podcaster/internal/db"
	"pdf-podcaster/internal/models"
	"pdf-podcaster/internal/notice"
	"pdf-podcaster/internal/realtime"
	"pdf-podcaster/internal/reconcile"
	"pdf-podcaster/internal/submission"
)

// ErrNoSelection is returned by operations that need a selected episode.
var ErrNoSelection = errors.New("no episode selected")

type Store interface {
	FindByEpisodeName(ctx context.Context, name string) (models.WorkflowRecord, error)
}

type Submitter interface {
	Submit(req submission.Request) (*submission.Flow, bool)
}

type Actions interface {
	Approve(ctx context.Context, operator int64, v reconcile.View) (reconcile.Update, error)
	GenerateTextFiles(ctx context.Context, operator int64, v reconcile.View) (reconcile.Update, error)
	GenerateAssets(ctx context.Context, operator int64, v reconcile.View) (reconcile.Update, error)
	Publish(ctx context.Context, operator int64, v reconcile.View, form actions.PublishForm) (reconcile.Update, error)
}

// Event is delivered to view listeners. Selected is false after the
// selection was cleared.
type Event struct {
	Selected bool
	Change   reconcile.Change
}

type Deps struct {
	Store        Store
	Subscriber   realtime.Subscriber
	Submitter    Submitter
	Actions      Actions
	Sink         notice.Sink
	Log          logrus.FieldLogger
	PollInterval time.Duration
}

// scope is everything tied to one selection. Releasing it stops the poll
// loop and drops both subscriptions.
type scope struct {
	gen               uint64
	name              string
	rec               *reconcile.Reconciler
	cancel            context.CancelFunc
	unsubscribeInsert func()
	unsubscribeUpdate func()
	done              chan struct{}
}

func (s *scope) release() {
	s.cancel()
	s.unsubscribeInsert()
	s.unsubscribeUpdate()
}

// Coordinator is one operator's session.
type Coordinator struct {
	operator int64
	deps     Deps
	base     context.Context
	log      logrus.FieldLogger

	mu            sync.Mutex
	gen           uint64
	scope         *scope
	closed        bool
	viewListeners []func(Event)
	listListeners []func()
}

// NewCoordinator creates a session. Background work stops when base is
// cancelled or Close is called.
func NewCoordinator(base context.Context, operator int64, deps Deps) *Coordinator {
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}
	if deps.Sink == nil {
		deps.Sink = notice.Discard
	}
	return &Coordinator{
		operator: operator,
		deps:     deps,
		base:     base,
		log:      deps.Log.WithField("operator", operator),
	}
}

func (c *Coordinator) Operator() int64 { return c.operator }

// OnView registers a listener for view changes. Listeners run while the
// session is locked and must not call back into it.
func (c *Coordinator) OnView(fn func(Event)) {
	c.mu.Lock()
	c.viewListeners = append(c.viewListeners, fn)
	c.mu.Unlock()
}

// OnListRefresh registers a listener asked to reload the episodes list.
func (c *Coordinator) OnListRefresh(fn func()) {
	c.mu.Lock()
	c.listListeners = append(c.listListeners, fn)
	c.mu.Unlock()
}

func (c *Coordinator) emitLocked(ev Event) {
	for _, fn := range c.viewListeners {
		fn(ev)
	}
}

func (c *Coordinator) refreshList() {
	c.mu.Lock()
	listeners := append([]func(){}, c.listListeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// View returns the selected episode's view.
func (c *Coordinator) View() (reconcile.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scope == nil {
		return reconcile.View{}, false
	}
	return c.scope.rec.View(), true
}

// Select makes name the selected episode, replacing any previous
// selection. initial, when given, seeds the view.
func (c *Coordinator) Select(name string, initial *models.WorkflowRecord) (reconcile.View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return reconcile.View{}, actions.ErrNoEpisode
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return reconcile.View{}, context.Canceled
	}
	prev := c.detachLocked()
	sc := c.attachLocked(name)
	change := reconcile.Change{Source: reconcile.SourceInitial, View: sc.rec.View()}
	if initial != nil {
		change = sc.rec.ApplyInitial(*initial)
	}
	c.emitLocked(Event{Selected: true, Change: change})
	c.mu.Unlock()

	c.wait(prev)
	c.log.WithField("episode", name).Debug("Episode selected")
	return change.View, nil
}

// Deselect clears the selection.
func (c *Coordinator) Deselect() {
	c.mu.Lock()
	prev := c.detachLocked()
	if prev != nil {
		c.emitLocked(Event{Selected: false})
	}
	c.mu.Unlock()
	c.wait(prev)
}

// Close releases the selection and refuses further selections.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	prev := c.detachLocked()
	c.mu.Unlock()
	c.wait(prev)
}

func (c *Coordinator) wait(sc *scope) {
	if sc != nil {
		<-sc.done
	}
}

func (c *Coordinator) detachLocked() *scope {
	sc := c.scope
	if sc == nil {
		return nil
	}
	c.scope = nil
	sc.release()
	return sc
}

func (c *Coordinator) attachLocked(name string) *scope {
	c.gen++
	ctx, cancel := context.WithCancel(c.base)
	sc := &scope{
		gen:    c.gen,
		name:   name,
		rec:    reconcile.New(name),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	push := func(ev realtime.Event) {
		c.applyRecord(sc.gen, reconcile.SourcePush, ev.Record)
	}
	sc.unsubscribeInsert = c.deps.Subscriber.Subscribe(realtime.Insert, push)
	sc.unsubscribeUpdate = c.deps.Subscriber.Subscribe(realtime.Update, push)
	c.scope = sc
	go c.poll(ctx, sc)
	return sc
}

func (c *Coordinator) poll(ctx context.Context, sc *scope) {
	defer close(sc.done)
	ticker := time.NewTicker(c.deps.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rec, err := c.deps.Store.FindByEpisodeName(ctx, sc.name)
		if err == nil {
			c.applyRecord(sc.gen, reconcile.SourcePoll, rec)
			continue
		}
		if !errors.Is(err, db.ErrNotFound) && ctx.Err() == nil {
			c.log.WithError(err).Debug("Status poll failed")
		}
	}
}

// currentLocked returns the scope if gen is still the live selection.
func (c *Coordinator) currentLocked(gen uint64) *scope {
	if c.scope == nil || c.scope.gen != gen {
		return nil
	}
	return c.scope
}

func (c *Coordinator) applyRecord(gen uint64, source reconcile.Source, rec models.WorkflowRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.currentLocked(gen)
	if sc == nil || strings.TrimSpace(rec.EpisodeName) != sc.name {
		return
	}
	c.emitLocked(Event{Selected: true, Change: sc.rec.Apply(source, reconcile.FromRecord(rec))})
}

func (c *Coordinator) applyUpdate(gen uint64, u reconcile.Update, uploadCleared bool) (reconcile.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc := c.currentLocked(gen)
	if sc == nil {
		return reconcile.View{}, false
	}
	change := sc.rec.ApplyLocal(u)
	change.UploadCleared = change.UploadCleared || uploadCleared
	c.emitLocked(Event{Selected: true, Change: change})
	return change.View, true
}

// Submit selects the episode named in req and starts, or joins, its
// submission flow. The view tracks the flow until it finishes.
func (c *Coordinator) Submit(req submission.Request) (*submission.Flow, bool, error) {
	name := strings.TrimSpace(req.EpisodeName)
	req.EpisodeName = name
	req.Operator = c.operator
	req.OnTick = c.refreshList

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, context.Canceled
	}
	var prev *scope
	sc := c.scope
	if sc == nil || sc.name != name {
		prev = c.detachLocked()
		sc = c.attachLocked(name)
	}
	c.emitLocked(Event{Selected: true, Change: sc.rec.SetSubmitting(true)})
	gen := sc.gen
	c.mu.Unlock()
	c.wait(prev)

	flow, started := c.deps.Submitter.Submit(req)
	go c.track(gen, flow)
	return flow, started, nil
}

// track folds the flow's outcome into the view once it finishes.
func (c *Coordinator) track(gen uint64, flow *submission.Flow) {
	select {
	case <-flow.Done():
	case <-c.base.Done():
		return
	}
	submitting := false
	u := reconcile.Update{Submitting: &submitting}
	if rec, ok := flow.Record(); ok {
		u = reconcile.FromRecord(rec)
		u.Submitting = &submitting
	}
	c.applyUpdate(gen, u, true)
	c.refreshList()
}

// Refresh re-reads the selected episode on demand.
func (c *Coordinator) Refresh(ctx context.Context) (reconcile.View, error) {
	c.mu.Lock()
	sc := c.scope
	c.mu.Unlock()
	if sc == nil {
		return reconcile.View{}, ErrNoSelection
	}

	rec, err := c.deps.Store.FindByEpisodeName(ctx, sc.name)
	if err != nil {
		c.log.WithError(err).WithField("episode", sc.name).Warn("Manual refresh failed")
		c.deps.Sink.Notify(ctx, notice.Notice{
			Operator:    c.operator,
			Episode:     sc.name,
			Title:       "Refresh failed",
			Description: "Failed to refresh status information.",
			Level:       notice.LevelError,
		})
		return reconcile.View{}, err
	}
	c.applyRecord(sc.gen, reconcile.SourcePoll, rec)
	c.deps.Sink.Notify(ctx, notice.Notice{
		Operator:    c.operator,
		Episode:     sc.name,
		Title:       "Status refreshed",
		Description: "The status information has been updated.",
		Level:       notice.LevelSuccess,
	})
	return sc.rec.View(), nil
}

// act runs an action against the current view and merges its result
// into the same selection it started from.
func (c *Coordinator) act(ctx context.Context, fn func(reconcile.View) (reconcile.Update, error)) (reconcile.View, error) {
	c.mu.Lock()
	sc := c.scope
	c.mu.Unlock()
	if sc == nil {
		return reconcile.View{}, ErrNoSelection
	}

	u, err := fn(sc.rec.View())
	if err != nil {
		return sc.rec.View(), err
	}
	v, _ := c.applyUpdate(sc.gen, u, false)
	c.refreshList()
	return v, nil
}

func (c *Coordinator) Approve(ctx context.Context) (reconcile.View, error) {
	return c.act(ctx, func(v reconcile.View) (reconcile.Update, error) {
		return c.deps.Actions.Approve(ctx, c.operator, v)
	})
}

func (c *Coordinator) GenerateTextFiles(ctx context.Context) (reconcile.View, error) {
	return c.act(ctx, func(v reconcile.View) (reconcile.Update, error) {
		return c.deps.Actions.GenerateTextFiles(ctx, c.operator, v)
	})
}

func (c *Coordinator) GenerateAssets(ctx context.Context) (reconcile.View, error) {
	return c.act(ctx, func(v reconcile.View) (reconcile.Update, error) {
		return c.deps.Actions.GenerateAssets(ctx, c.operator, v)
	})
}

func (c *Coordinator) Publish(ctx context.Context, form actions.PublishForm) (reconcile.View, error) {
	return c.act(ctx, func(v reconcile.View) (reconcile.Update, error) {
		return c.deps.Actions.Publish(ctx, c.operator, v, form)
	})
}
