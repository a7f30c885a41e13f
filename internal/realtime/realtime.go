// Package realtime turns Postgres notifications about the autoworkflow
// table into INSERT and UPDATE subscriptions.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"pdf-podcaster/internal/metrics"
	"pdf-podcaster/internal/models"
)

const (
	Channel = "autoworkflow_changes"
	Table   = "autoworkflow"
)

// TriggerSQL installs the row trigger that publishes every insert and
// update on autoworkflow to Channel.
const TriggerSQL = `
CREATE OR REPLACE FUNCTION notify_autoworkflow_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('autoworkflow_changes', json_build_object(
		'type', TG_OP,
		'table', TG_TABLE_NAME,
		'record', row_to_json(NEW)
	)::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS autoworkflow_notify ON autoworkflow;
CREATE TRIGGER autoworkflow_notify
	AFTER INSERT OR UPDATE ON autoworkflow
	FOR EACH ROW EXECUTE FUNCTION notify_autoworkflow_change();
`

// InstallTrigger runs TriggerSQL.
func InstallTrigger(ctx context.Context, db sqlx.ExecerContext) error {
	if _, err := db.ExecContext(ctx, TriggerSQL); err != nil {
		return fmt.Errorf("failed to install notify trigger: %w", err)
	}
	return nil
}

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
)

// Event is one decoded notification.
type Event struct {
	Type   EventType
	Table  string
	Record models.WorkflowRecord
}

type envelope struct {
	Type   EventType       `json:"type"`
	Table  string          `json:"table"`
	Record json.RawMessage `json:"record"`
}

// Handler receives events. It runs on the listener goroutine and must
// not block.
type Handler func(Event)

// Subscriber is what sessions and submission flows depend on.
type Subscriber interface {
	Subscribe(t EventType, h Handler) (unsubscribe func())
}

// Broker fans notifications out to subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[EventType]map[uint64]Handler
	nextID uint64
	log    logrus.FieldLogger
}

func NewBroker(log logrus.FieldLogger) *Broker {
	return &Broker{
		subs: map[EventType]map[uint64]Handler{Insert: {}, Update: {}},
		log:  log,
	}
}

// Subscribe registers h for one event type. The returned function
// removes it and is safe to call more than once.
func (b *Broker) Subscribe(t EventType, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[t] == nil {
		b.subs[t] = map[uint64]Handler{}
	}
	b.nextID++
	id := b.nextID
	b.subs[t][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[t], id)
			b.mu.Unlock()
		})
	}
}

// Subscribers reports how many handlers are registered for t.
func (b *Broker) Subscribers(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}

// Dispatch decodes a notification payload and delivers it. Payloads for
// other tables are dropped.
func (b *Broker) Dispatch(payload []byte) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	if env.Table != Table {
		return nil
	}
	rec, err := models.ParseRecord(env.Record)
	if err != nil {
		return err
	}
	metrics.RecordNotification(string(env.Type))

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[env.Type]))
	for _, h := range b.subs[env.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	ev := Event{Type: env.Type, Table: env.Table, Record: rec}
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

// Listener is the part of pq.Listener Run uses.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
}

// NewPQListener opens a reconnecting LISTEN connection.
func NewPQListener(dsn string, log logrus.FieldLogger) *pq.Listener {
	return pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.WithError(err).Warn("Notification listener event")
		}
	})
}

const pingInterval = 90 * time.Second

// Run listens on Channel until ctx is done. Notifications missed while
// the connection is down are not replayed; subscribers also poll.
func (b *Broker) Run(ctx context.Context, l Listener) error {
	if err := l.Listen(Channel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}
	b.log.WithField("channel", Channel).Info("Listening for workflow changes")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.NotificationChannel():
			if !ok {
				return fmt.Errorf("notification channel closed")
			}
			if n == nil {
				b.log.Info("Notification listener reconnected")
				continue
			}
			if err := b.Dispatch([]byte(n.Extra)); err != nil {
				b.log.WithError(err).Warn("Dropping notification")
			}
		case <-ticker.C:
			go func() {
				if err := l.Ping(); err != nil {
					b.log.WithError(err).Warn("Notification listener ping failed")
				}
			}()
		}
	}
}
