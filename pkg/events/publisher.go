package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/rs/xid"
)

// AllSessions subscribes to envelopes of every session.
const AllSessions = ""

type subscriber struct {
	sessionID string
	ch        chan Envelope
}

func (s subscriber) wants(env Envelope) bool {
	return s.sessionID == AllSessions || s.sessionID == env.SessionID
}

// Publisher stamps dialogue notifications into envelopes, hands them to
// in-process subscribers and forwards them to the frame queue. Without a
// queue manager the envelopes stay in process.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu          sync.RWMutex
	subscribers map[string]subscriber
}

// NewPublisher creates a publisher that forwards to queueRef on queueMgr.
func NewPublisher(queueMgr queue.Manager, source string, queueRef string) *Publisher {
	return &Publisher{
		queueMgr:    queueMgr,
		source:      source,
		queueRef:    queueRef,
		subscribers: make(map[string]subscriber),
	}
}

// NewEnvelope stamps data with an ID, this publisher's source and the
// current time without delivering it.
func (p *Publisher) NewEnvelope(eventType EventType, sessionID string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        xid.New().String(),
		Type:      eventType,
		Source:    p.source,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}, nil
}

// Emit delivers an event to matching subscribers, then to the queue.
// Subscribers with a full buffer miss the envelope.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, sessionID string, data any) error {
	env, err := p.NewEnvelope(eventType, sessionID, data)
	if err != nil {
		return err
	}

	p.mu.RLock()
	for id, sub := range p.subscribers {
		if !sub.wants(env) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			slog.Warn("event dropped: subscriber buffer full",
				slog.String("subscriber", id),
				slog.String("session_id", sessionID),
				slog.String("event_type", string(eventType)))
		}
	}
	p.mu.RUnlock()

	if p.queueMgr == nil {
		return nil
	}
	return p.queueMgr.Publish(ctx, p.queueRef, env)
}

// Subscribe receives the envelopes of every session. Release it with
// Unsubscribe(id).
func (p *Publisher) Subscribe(id string, bufSize int) <-chan Envelope {
	return p.SubscribeSession(id, AllSessions, bufSize)
}

// SubscribeSession receives only the envelopes stamped with sessionID.
func (p *Publisher) SubscribeSession(id, sessionID string, bufSize int) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = 64
	}
	sub := subscriber{sessionID: sessionID, ch: make(chan Envelope, bufSize)}

	p.mu.Lock()
	if old, ok := p.subscribers[id]; ok {
		close(old.ch)
	}
	p.subscribers[id] = sub
	p.mu.Unlock()
	return sub.ch
}

// Unsubscribe closes the subscription's channel. Buffered envelopes can
// still be drained.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subscribers[id]; ok {
		close(sub.ch)
		delete(p.subscribers, id)
	}
}
