package ridestate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/realtime"
)

// Emitter sends chat messages over the real-time channel.
type Emitter interface {
	SendMessage(ctx context.Context, m realtime.MessagePayload) error
}

// ChatRoom is the message list of one open ride. It lives as long as the
// chat view and is never persisted.
type ChatRoom struct {
	emitter Emitter
	logger  *slog.Logger
	now     func() time.Time

	rideID string
	selfID string
	peerID string

	mu       sync.Mutex
	messages []models.ChatMessage
	subs     map[int]func(models.ChatMessage)
	nextSub  int
}

// socketOwner is an emitter that knows the socket id the backend gave it.
type socketOwner interface {
	SocketID() string
}

// NewChatRoom opens the chat of ride for role. Participants are addressed
// by the socket ids the backend stored on the ride; when the ride lacks our
// own, the emitter's registered socket id is used.
func NewChatRoom(ride models.Ride, role models.Role, e Emitter, logger *slog.Logger) *ChatRoom {
	if logger == nil {
		logger = slog.Default()
	}
	self, peer := ride.RiderSocketID, ride.CaptainSocket
	if role == models.RoleCaptain {
		self, peer = peer, self
	}
	if so, ok := e.(socketOwner); ok && self == "" {
		self = so.SocketID()
	}
	return &ChatRoom{
		emitter: e,
		logger:  logger,
		now:     time.Now,
		rideID:  ride.ID,
		selfID:  self,
		peerID:  peer,
		subs:    make(map[int]func(models.ChatMessage)),
	}
}

func (c *ChatRoom) RideID() string { return c.rideID }

// Send emits text to the counterpart and appends it as a self message.
func (c *ChatRoom) Send(ctx context.Context, text string) (models.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, fmt.Errorf("empty message: %w", api.ErrInvalidInput)
	}
	err := c.emitter.SendMessage(ctx, realtime.MessagePayload{RideID: c.rideID, FromID: c.selfID, ToID: c.peerID, Message: text})
	if err != nil {
		return models.ChatMessage{}, err
	}
	m := models.ChatMessage{ID: uuid.NewString(), RideID: c.rideID, Sender: "You", Text: text, Self: true, SentAt: c.now()}
	c.append(m)
	return m, nil
}

// HandleMessage is the receive-message push handler. Echoes of our own
// messages and messages for other rides are dropped.
func (c *ChatRoom) HandleMessage(data json.RawMessage) {
	var p realtime.MessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn("bad receive-message payload", "error", err)
		return
	}
	if p.RideID != "" && p.RideID != c.rideID {
		return
	}
	if c.selfID != "" && p.FromID == c.selfID {
		return
	}
	c.append(models.ChatMessage{ID: uuid.NewString(), RideID: c.rideID, Sender: p.FromID, Text: p.Message, SentAt: c.now()})
}

func (c *ChatRoom) Bind(ch *realtime.Channel) *realtime.Subscription {
	return ch.On(realtime.EventReceiveMessage, c.HandleMessage)
}

// Messages returns the conversation so far in arrival order.
func (c *ChatRoom) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *ChatRoom) Subscribe(fn func(models.ChatMessage)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *ChatRoom) append(m models.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	subs := make([]func(models.ChatMessage), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(m)
	}
}
