// Package submission sends new episodes to the automation and waits for
// their workflow row to appear.
package submission

import (
	"sync"
	"time"

	"pdf-podcaster/internal/models"
)

type State string

const (
	StateIdle             State = "idle"
	StateCheckingExisting State = "checking_existing"
	StateSubmitting       State = "submitting"
	StateResolved         State = "resolved"
	StateTimedOut         State = "timed_out"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateTimedOut || s == StateCancelled
}

// WinnerExisting marks flows resolved from a row that existed before
// anything was submitted.
const WinnerExisting = "existing"

// Flow is one submission attempt.
type Flow struct {
	ID          string
	EpisodeName string
	Operator    int64

	mu         sync.Mutex
	state      State
	winner     string
	record     *models.WorkflowRecord
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

func newFlow(id, name string, operator int64, now time.Time) *Flow {
	return &Flow{
		ID:          id,
		EpisodeName: name,
		Operator:    operator,
		state:       StateIdle,
		startedAt:   now,
		done:        make(chan struct{}),
	}
}

// Done is closed when the flow reaches a terminal state.
func (f *Flow) Done() <-chan struct{} { return f.done }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Record is the row the flow resolved with, if any.
func (f *Flow) Record() (models.WorkflowRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil {
		return models.WorkflowRecord{}, false
	}
	return *f.record, true
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flow) finish(s State, winner string, rec *models.WorkflowRecord, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return
	}
	f.state = s
	f.winner = winner
	f.record = rec
	f.finishedAt = now
	close(f.done)
}

// Status is the JSON view of a flow.
type Status struct {
	ID          string                 `json:"id"`
	EpisodeName string                 `json:"episodeName"`
	State       State                  `json:"state"`
	Winner      string                 `json:"winner,omitempty"`
	Record      *models.WorkflowRecord `json:"record,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Status{
		ID:          f.ID,
		EpisodeName: f.EpisodeName,
		State:       f.state,
		Winner:      f.winner,
		StartedAt:   f.startedAt,
	}
	if f.record != nil {
		rec := *f.record
		s.Record = &rec
	}
	if !f.finishedAt.IsZero() {
		t := f.finishedAt
		s.FinishedAt = &t
	}
	return s
}
