package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a query execution event.
type EventType string

const (
	QueryExecuteStart   EventType = "query:execute:start"
	QueryExecuteSuccess EventType = "query:execute:success"
	QueryExecuteFailed  EventType = "query:execute:failed"
)

// Event describes one stage of a query execution. All events of one
// execution share its ExecutionID.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"executionId"`
	Timestamp   int64     `json:"timestamp"`
	Expression  string    `json:"expression"`
	Rows        *int      `json:"rows,omitempty"`
	Error       *string   `json:"error,omitempty"`
	Duration    *int64    `json:"duration,omitempty"`
}

// EventHandler receives published events.
type EventHandler func(ctx context.Context, event Event) error

func newEvent(t EventType, executionID, expression string, started time.Time) Event {
	now := time.Now()
	event := Event{
		Type:        t,
		ExecutionID: executionID,
		Timestamp:   now.UnixMilli(),
		Expression:  expression,
	}
	if t != QueryExecuteStart {
		d := now.Sub(started).Milliseconds()
		event.Duration = &d
	}
	return event
}

func (p *Provider) emit(event Event) {
	if p.bus != nil && p.options.EmitEvents {
		p.bus.Emit(string(event.Type), event)
	}
}

// Subscribe registers handler for events of type t and returns an id for
// Unsubscribe.
func (p *Provider) Subscribe(t EventType, handler EventHandler) string {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	unsubscribe := p.bus.Subscribe(string(t), handler)
	id := uuid.New().String()
	p.subscriptions[id] = unsubscribe
	return id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (p *Provider) Unsubscribe(id string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if unsubscribe, ok := p.subscriptions[id]; ok {
		unsubscribe()
		delete(p.subscriptions, id)
	}
}
