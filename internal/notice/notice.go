// Package notice carries short operator-facing messages, the server side
// counterpart of the dashboard's toasts.
package notice

import (
	"context"
	"sync"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one dismissible message. Operator 0 addresses every
// connected operator.
type Notice struct {
	Operator    int64  `json:"-"`
	Episode     string `json:"episode,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Level       Level  `json:"level"`
}

// Sink delivers notices. Delivery is best effort.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice)

func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// MultiSink fans a notice out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notice) {
	for _, s := range m {
		if s != nil {
			s.Notify(ctx, n)
		}
	}
}

// Discard drops every notice.
var Discard Sink = SinkFunc(func(context.Context, Notice) {})

// Recorder keeps notices in memory. Tests use it as a sink.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *Recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

// Notices returns a copy of what was recorded so far.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Titles returns the recorded titles in order.
func (r *Recorder) Titles() []string {
	var titles []string
	for _, n := range r.Notices() {
		titles = append(titles, n.Title)
	}
	return titles
}
