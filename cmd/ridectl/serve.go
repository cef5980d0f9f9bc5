package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/example/ride-client/internal/http"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/ridestate"
)

// chatRooms opens a chat room when the tracked ride becomes accepted and
// keeps it until the ride changes.
type chatRooms struct {
	ctx   context.Context
	a     *app
	ch    *realtime.Channel
	role  models.Role
	mu    sync.Mutex
	room  *ridestate.ChatRoom
	unsub func()
}

func (c *chatRooms) current() *ridestate.ChatRoom {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *chatRooms) follow(r models.Ride) {
	if c.ch == nil || r.Status.Rank() < models.StatusAccepted.Rank() || r.Status.Terminal() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != nil && c.room.RideID() == r.ID {
		return
	}
	if c.unsub != nil {
		c.unsub()
	}
	if err := c.ch.JoinRoom(c.ctx, r.ID); err != nil {
		c.a.logger.Warn("join ride room failed", "ride_id", r.ID, "error", err)
	}
	c.room = ridestate.NewChatRoom(r, c.role, c.ch, c.a.logger)
	c.unsub = c.room.Bind(c.ch).Cancel
}

func cmdServe(ctx context.Context, a *app, _ []string) error {
	t, deps, err := a.tracker(ctx)
	if err != nil {
		return err
	}
	actor := a.holder.Actor()

	ch, err := a.channel(ctx, actor)
	if err != nil {
		a.logger.Warn("real-time channel unavailable, polling only", "error", err)
		ch = nil
	}

	cfg := httpapi.Config{
		Session:        a.holder,
		Router:         a.router,
		Tracker:        t,
		Notices:        a.notices,
		Notifier:       a.notifier,
		CallbackSecret: a.cfg.RazorpaySecret,
		Logger:         a.logger,
	}
	if a.redis != nil {
		cfg.Checks = map[string]func(context.Context) error{"redis": a.redis.Ping}
	}
	rooms := &chatRooms{ctx: ctx, a: a, ch: ch, role: actor.Role}
	cfg.Chat = rooms.current
	if ch != nil {
		defer t.Bind(ch)()
		if actor.Role == models.RoleCaptain {
			offers := ridestate.NewOfferBox(deps, a.cfg.OfferTimeout)
			defer offers.Close()
			defer offers.Bind(ch).Cancel()
			cfg.Offers = offers
		}
	}
	srv := httpapi.New(cfg)
	defer srv.Close()
	srv.SetCheckout(a.checkout(srv))
	defer t.Subscribe(rooms.follow)()
	if ch != nil {
		// New offers and chat messages change the screen without touching
		// the tracker.
		defer ch.On(realtime.EventNewRide, func(json.RawMessage) { srv.Broadcast() }).Cancel()
		defer ch.On(realtime.EventReceiveMessage, func(json.RawMessage) { srv.Broadcast() }).Cancel()
	}

	if _, err := t.Resolve(ctx); err != nil && !errors.Is(err, ridestate.ErrNoRide) {
		a.logger.Warn("initial ride lookup failed", "error", err)
	}
	go poll(ctx, a, t)

	hs := &http.Server{Addr: a.cfg.ViewAddr, Handler: srv, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	a.logger.Info("view server listening", "addr", a.cfg.ViewAddr, "actor", actor.ID, "role", actor.Role)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}

// poll keeps reconciling with the backend while the view server runs.
// Watch returns once a ride is terminal; a ride booked after it is picked
// up from the slot on the following round.
func poll(ctx context.Context, a *app, t *ridestate.Tracker) {
	for {
		if err := t.Watch(ctx); err != nil && ctx.Err() == nil {
			a.logger.Debug("watch ended", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.PollInterval):
		}
	}
}
