// Package realtime is the client of the backend's event channel. A Channel
// multiplexes named event handlers over one Transport and dispatches
// incoming events in arrival order.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/observability"
)

var ErrClosed = errors.New("channel closed")

// Transport moves envelopes to and from the backend. Receive blocks until
// an envelope arrives, ctx ends or the transport fails.
type Transport interface {
	Send(ctx context.Context, env Envelope) error
	Receive(ctx context.Context) (Envelope, error)
	Close() error
}

type Handler func(data json.RawMessage)

type Channel struct {
	transport Transport
	logger    *slog.Logger

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	room     string
	socketID string
}

func NewChannel(t Transport, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{transport: t, logger: logger, handlers: make(map[string]map[uint64]Handler)}
}

// Subscription detaches a handler when cancelled. Cancel is idempotent.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// On attaches h to event. Handlers of one event run in attach order.
func (c *Channel) On(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[uint64]Handler)
	}
	c.handlers[event][id] = h
	return &Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
	}}
}

// Handlers reports how many handlers are attached to event.
func (c *Channel) Handlers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[event])
}

// Emit sends one event without waiting for any reply.
func (c *Channel) Emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := c.transport.Send(ctx, Envelope{Event: event, Data: raw}); err != nil {
		observability.EmitsTotal.WithLabelValues(event, "error").Inc()
		c.logger.Warn("emit failed", "event", event, "error", err)
		return err
	}
	observability.EmitsTotal.WithLabelValues(event, "ok").Inc()
	return nil
}

func (c *Channel) Register(ctx context.Context, a models.Actor) error {
	return c.Emit(ctx, EventRegisterSocket, RegisterPayload{UserID: a.ID, Role: a.Role})
}

// JoinRoom subscribes to the ride's room. The room is remembered and joined
// again whenever the backend acknowledges a registration.
func (c *Channel) JoinRoom(ctx context.Context, rideID string) error {
	c.mu.Lock()
	c.room = rideID
	c.mu.Unlock()
	if rideID == "" {
		return nil
	}
	return c.Emit(ctx, EventJoinRoom, JoinPayload{RideID: rideID})
}

func (c *Channel) SendMessage(ctx context.Context, m MessagePayload) error {
	return c.Emit(ctx, EventSendMessage, m)
}

// SocketID is the id the backend assigned on registration, if any.
func (c *Channel) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Run reads and dispatches events until ctx ends or the transport fails.
// There is no reconnection; the caller decides whether to dial again.
func (c *Channel) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.transport.Close() })
	defer stop()
	for {
		env, err := c.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.dispatch(ctx, env)
	}
}

func (c *Channel) dispatch(ctx context.Context, env Envelope) {
	observability.PushEventsTotal.WithLabelValues(env.Event).Inc()
	if env.Event == EventRegistered {
		c.onRegistered(ctx, env.Data)
	}

	c.mu.Lock()
	ids := make([]uint64, 0, len(c.handlers[env.Event]))
	for id := range c.handlers[env.Event] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, c.handlers[env.Event][id])
	}
	c.mu.Unlock()

	if len(hs) == 0 {
		c.logger.Debug("event without handler", "event", env.Event)
	}
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Channel) onRegistered(ctx context.Context, data json.RawMessage) {
	var ack RegisteredPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ack); err != nil {
			c.logger.Warn("bad registration ack", "error", err)
		}
	}
	c.mu.Lock()
	if ack.SocketID != "" {
		c.socketID = ack.SocketID
	}
	room := c.room
	c.mu.Unlock()
	if room != "" {
		_ = c.Emit(ctx, EventJoinRoom, JoinPayload{RideID: room})
	}
}

func (c *Channel) Close() error { return c.transport.Close() }
