package ridestate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/observability"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/session"
)

type Options struct {
	PollInterval  time.Duration
	NavigateDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.NavigateDelay < 0 {
		o.NavigateDelay = 0
	}
	return o
}

// Tracker holds the current ride of the session.
type Tracker struct {
	deps Deps
	opts Options

	waiting *WaitingMeter
	stops   *Stops

	mu       sync.Mutex
	focus    string
	ride     *models.Ride
	finished map[string]bool
	failing  bool
	subs     map[int]func(models.Ride)
	nextSub  int
}

func NewTracker(deps Deps, opts Options) *Tracker {
	deps = deps.withDefaults()
	return &Tracker{
		deps:     deps,
		opts:     opts.withDefaults(),
		waiting:  NewWaitingMeter(deps.API, deps.Notifier, deps.Logger, deps.Clock),
		stops:    &Stops{},
		finished: make(map[string]bool),
		subs:     make(map[int]func(models.Ride)),
	}
}

func (t *Tracker) Waiting() *WaitingMeter { return t.waiting }
func (t *Tracker) Stops() *Stops          { return t.stops }

// Focus points the tracker at a ride carried by navigation. It takes
// precedence over the persisted slot.
func (t *Tracker) Focus(rideID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.focus = rideID
}

// RideID returns the id of the ride to resolve: the navigation focus, then
// the current ride while it is live, then the persisted slot. A finished
// ride is returned only when the slot names nothing else, so a ride booked
// after it is picked up. Empty means none is known.
func (t *Tracker) RideID(ctx context.Context) (string, error) {
	t.mu.Lock()
	id := t.focus
	var done string
	if id == "" && t.ride != nil {
		if t.ride.Status.Terminal() {
			done = t.ride.ID
		} else {
			id = t.ride.ID
		}
	}
	t.mu.Unlock()
	if id != "" {
		return id, nil
	}
	id, err := t.deps.Slot.Load(ctx)
	if err != nil || id != "" {
		return id, err
	}
	return done, nil
}

// Current returns a copy of the tracked ride, or nil.
func (t *Tracker) Current() *models.Ride {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ride == nil {
		return nil
	}
	r := *t.ride
	r.Stops = append([]string(nil), t.ride.Stops...)
	return &r
}

// Controls returns what the signed-in actor may do with the current ride.
func (t *Tracker) Controls() []Control {
	r := t.Current()
	if r == nil {
		return nil
	}
	return Controls(t.deps.role(), r.Status, r.Kind)
}

// Subscribe registers fn to run after every change of the tracked ride.
func (t *Tracker) Subscribe(fn func(models.Ride)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

// Resolve fetches the current ride and applies it. On failure an error is
// notified and the tracked state is left untouched. A response that
// arrives after ctx ended is discarded.
func (t *Tracker) Resolve(ctx context.Context) (*models.Ride, error) {
	return t.resolve(ctx, models.OriginAction)
}

func (t *Tracker) resolve(ctx context.Context, origin models.Origin) (*models.Ride, error) {
	id, err := t.RideID(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ride id: %w", err)
	}
	ride, err := t.deps.API.CurrentRide(ctx, id)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err == nil && (ride == nil || ride.ID == "") {
		err = ErrNoRide
	}
	if err != nil {
		t.resolveFailed(err)
		return nil, err
	}
	t.mu.Lock()
	t.failing = false
	t.mu.Unlock()
	t.Apply(*ride, origin)
	return t.Current(), nil
}

// resolveFailed notifies once per streak of failures so a dead backend
// does not raise a toast on every poll.
func (t *Tracker) resolveFailed(err error) {
	if t.deps.Session != nil && t.deps.Session.Expired(err) {
		return
	}
	t.mu.Lock()
	first := !t.failing
	t.failing = true
	t.mu.Unlock()
	t.deps.Logger.Warn("ride lookup failed", "error", err)
	if first {
		t.deps.Notifier.Notify(notify.Error, "Error loading current ride")
	}
}

// Watch resolves the ride every PollInterval until the ride is terminal or
// ctx ends. It returns nil once a terminal status was observed.
func (t *Tracker) Watch(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	for {
		_, err := t.resolve(ctx, models.OriginPoll)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, api.ErrUnauthorized):
			observability.PollsTotal.WithLabelValues("unauthorized").Inc()
			return err
		case err != nil:
			observability.PollsTotal.WithLabelValues("error").Inc()
		default:
			observability.PollsTotal.WithLabelValues("ok").Inc()
		}
		if r := t.Current(); r != nil && r.Status.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Apply merges an observed ride into the tracked state. Transitions are
// keyed by target status: a status that does not rank above the current
// one is ignored, so repeated or stale observations are no-ops. A ride
// with a different id replaces the tracked one. It reports whether the
// tracked state changed.
func (t *Tracker) Apply(r models.Ride, origin models.Origin) bool {
	if r.ID == "" {
		return false
	}
	t.mu.Lock()
	cur := t.ride
	adopt := cur == nil || cur.ID != r.ID
	if !adopt && r.Status.Rank() <= cur.Status.Rank() {
		t.mu.Unlock()
		return false
	}
	next := r
	var from models.Status
	if !adopt {
		from = cur.Status
		fillMissing(&next, cur)
	}
	if next.Kind == "" {
		next.Kind = models.KindNormal
	}
	next.Stops = append([]string(nil), next.Stops...)
	t.ride = &next
	subs := make([]func(models.Ride), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	if adopt {
		t.stops.reset(next.Kind, next.Stops)
		t.waiting.Reset()
	} else {
		t.record(models.Transition{RideID: next.ID, ActorID: t.deps.actorID(), From: from, To: next.Status, Origin: origin, At: t.deps.Clock()})
	}
	for _, fn := range subs {
		fn(next)
	}
	if next.Status.Terminal() {
		t.finish(next)
	}
	return true
}

// ApplyStatus moves the ride with id to status, keeping everything else
// known about it.
func (t *Tracker) ApplyStatus(rideID string, status models.Status, origin models.Origin) bool {
	t.mu.Lock()
	var r models.Ride
	if t.ride != nil && t.ride.ID == rideID {
		r = *t.ride
	} else {
		r = models.Ride{ID: rideID}
	}
	t.mu.Unlock()
	r.Status = status
	return t.Apply(r, origin)
}

func (t *Tracker) record(tr models.Transition) {
	observability.TransitionsTotal.WithLabelValues(string(tr.To), string(tr.Origin)).Inc()
	t.deps.Logger.Info("ride transition", "ride_id", tr.RideID, "from", tr.From, "to", tr.To, "origin", tr.Origin)
	if err := t.deps.Journal.Record(context.Background(), tr); err != nil {
		t.deps.Logger.Warn("journal record failed", "ride_id", tr.RideID, "error", err)
	}
}

// finish runs the terminal side effects once per ride.
func (t *Tracker) finish(r models.Ride) {
	t.mu.Lock()
	if t.finished[r.ID] {
		t.mu.Unlock()
		return
	}
	t.finished[r.ID] = true
	if t.focus == r.ID {
		t.focus = ""
	}
	t.mu.Unlock()

	switch r.Status {
	case models.StatusCompleted:
		t.deps.Notifier.Notify(notify.Success, "Ride completed")
		session.NavigateAfter(t.deps.Navigator, t.opts.NavigateDelay, session.Target{View: session.ViewSummary, RideID: r.ID})
	case models.StatusRejected:
		t.deps.Notifier.Notify(notify.Error, "Ride was rejected")
		t.deps.Navigator.Navigate(session.Target{View: session.HomeFor(t.deps.role())})
	}
}

// HandleRideConfirmed handles the rider's ride-confirmed push: the ride is
// accepted and the chat view opens after the navigation delay.
func (t *Tracker) HandleRideConfirmed(data json.RawMessage) {
	r, err := realtime.DecodeRide(data)
	if err != nil || r.ID == "" {
		t.deps.Logger.Warn("bad ride-confirmed payload", "error", err)
		return
	}
	if cur := t.Current(); cur != nil && cur.ID != r.ID && !cur.Status.Terminal() {
		t.deps.Logger.Debug("ride-confirmed for another ride", "ride_id", r.ID, "current", cur.ID)
		return
	}
	if r.Status.Rank() < models.StatusAccepted.Rank() {
		r.Status = models.StatusAccepted
	}
	if err := t.deps.Slot.Store(context.Background(), r.ID); err != nil {
		t.deps.Logger.Warn("store ride id failed", "error", err)
	}
	t.Focus(r.ID)
	if !t.Apply(r, models.OriginPush) {
		return
	}
	t.deps.Notifier.Notify(notify.Success, "Ride confirmed")
	session.NavigateAfter(t.deps.Navigator, t.opts.NavigateDelay, session.Target{View: session.ViewChat, RideID: r.ID})
}

// HandleRideEnded completes the ride named by the push, or the tracked one
// when the payload carries no id. An end for another ride is ignored while
// the tracked one is live.
func (t *Tracker) HandleRideEnded(data json.RawMessage) {
	r, err := realtime.DecodeRide(data)
	if err != nil {
		t.deps.Logger.Warn("bad ride-ended payload", "error", err)
		return
	}
	cur := t.Current()
	if r.ID == "" {
		if cur != nil {
			t.ApplyStatus(cur.ID, models.StatusCompleted, models.OriginPush)
		}
		return
	}
	if cur != nil && cur.ID != r.ID && !cur.Status.Terminal() {
		t.deps.Logger.Debug("ride-ended for another ride", "ride_id", r.ID, "current", cur.ID)
		return
	}
	r.Status = models.StatusCompleted
	t.Apply(r, models.OriginPush)
}

// Bind attaches the tracker's push handlers; the returned func detaches
// them.
func (t *Tracker) Bind(ch *realtime.Channel) (cancel func()) {
	subs := []*realtime.Subscription{
		ch.On(realtime.EventRideConfirmed, t.HandleRideConfirmed),
		ch.On(realtime.EventRideEnded, t.HandleRideEnded),
	}
	return func() {
		for _, s := range subs {
			s.Cancel()
		}
	}
}

// StartRide starts the ride once the captain has the rider's OTP.
func (t *Tracker) StartRide(ctx context.Context, otp string) error {
	otp = strings.TrimSpace(otp)
	if otp == "" {
		return fmt.Errorf("otp is required: %w", api.ErrInvalidInput)
	}
	id, err := t.RideID(ctx)
	if err != nil {
		return err
	}
	if id == "" {
		return ErrNoRide
	}
	if err := t.deps.API.StartRide(ctx, id, otp); err != nil {
		return t.deps.actionFailed(err, "Error starting ride")
	}
	t.deps.Notifier.Notify(notify.Success, "Ride started successfully!")
	t.ApplyStatus(id, models.StatusInProgress, models.OriginAction)
	return nil
}

// PauseWaiting stops the waiting clock and charges the current ride.
func (t *Tracker) PauseWaiting(ctx context.Context) error {
	id, err := t.RideID(ctx)
	if err != nil {
		return err
	}
	if err := t.waiting.Pause(ctx, id); err != nil {
		if errors.Is(err, ErrNoRide) {
			return err
		}
		return t.deps.actionFailed(err, "Error recording waiting time")
	}
	return nil
}

// EndRide submits outstanding waiting time, then ends the ride. The slot is
// cleared only after the backend confirmed; on failure the id is kept so
// the action can be retried.
func (t *Tracker) EndRide(ctx context.Context) (*models.Ride, error) {
	id, err := t.RideID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNoRide
	}
	t.waiting.watch.Pause()
	if err := t.waiting.Submit(ctx, id); err != nil {
		t.deps.Logger.Warn("waiting submission before end failed", "ride_id", id, "error", err)
	}

	req := api.EndRideRequest{RideID: id, WaitingTime: t.waiting.Seconds(), Stops: t.stops.List()}
	ride, err := t.deps.API.EndRide(ctx, req)
	if err != nil {
		return nil, t.deps.actionFailed(err, "Error ending ride")
	}
	if err := t.deps.Slot.Clear(ctx); err != nil {
		t.deps.Logger.Warn("clear ride id failed", "error", err)
	}

	final := models.Ride{ID: id}
	if cur := t.Current(); cur != nil && cur.ID == id {
		final = *cur
	}
	if ride != nil && ride.ID == id {
		fillMissing(ride, &final)
		final = *ride
	}
	final.Status = models.StatusCompleted
	t.Apply(final, models.OriginAction)
	return t.Current(), nil
}

// Checkout opens a payment for an order without waiting for completion.
type Checkout interface {
	Open(ctx context.Context, order models.PaymentOrder) error
}

// Pay creates a payment order for the current ride and hands it to the
// checkout. Failures are logged and surfaced as a single notification.
func (t *Tracker) Pay(ctx context.Context, checkout Checkout) (*models.PaymentOrder, error) {
	id, err := t.RideID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNoRide
	}
	order, err := t.deps.API.CreatePayment(ctx, id)
	if err != nil {
		return nil, t.deps.actionFailed(err, "Payment failed")
	}
	if order.RideID == "" {
		order.RideID = id
	}
	if checkout != nil {
		if err := checkout.Open(ctx, *order); err != nil {
			return order, t.deps.actionFailed(err, "Payment failed")
		}
	}
	t.deps.Navigator.Navigate(session.Target{View: session.ViewPayment, RideID: id})
	return order, nil
}

// Settle forgets a paid ride: the slot is cleared when it still names
// rideID, so the next booking or poll does not land on the finished ride.
func (t *Tracker) Settle(ctx context.Context, rideID string) error {
	t.mu.Lock()
	if rideID == "" && t.ride != nil {
		rideID = t.ride.ID
	}
	if t.focus == rideID {
		t.focus = ""
	}
	t.mu.Unlock()
	cur, err := t.deps.Slot.Load(ctx)
	if err != nil {
		return err
	}
	if cur == "" || (rideID != "" && cur != rideID) {
		return nil
	}
	t.deps.Logger.Info("ride settled", "ride_id", rideID)
	return t.deps.Slot.Clear(ctx)
}

// fillMissing copies fields left empty in dst from src.
func fillMissing(dst, src *models.Ride) {
	if dst.Pickup == "" {
		dst.Pickup = src.Pickup
	}
	if dst.Destination == "" {
		dst.Destination = src.Destination
	}
	if dst.Fare == 0 {
		dst.Fare = src.Fare
	}
	if dst.RiderID == "" {
		dst.RiderID = src.RiderID
	}
	if dst.CaptainID == "" {
		dst.CaptainID = src.CaptainID
	}
	if dst.OTP == "" {
		dst.OTP = src.OTP
	}
	if dst.Kind == "" {
		dst.Kind = src.Kind
	}
	if dst.VehicleType == "" {
		dst.VehicleType = src.VehicleType
	}
	if dst.WaitingSeconds == 0 {
		dst.WaitingSeconds = src.WaitingSeconds
	}
	if len(dst.Stops) == 0 {
		dst.Stops = src.Stops
	}
	if dst.CaptainName == "" {
		dst.CaptainName = src.CaptainName
	}
	if dst.UserName == "" {
		dst.UserName = src.UserName
	}
	if dst.RiderSocketID == "" {
		dst.RiderSocketID = src.RiderSocketID
	}
	if dst.CaptainSocket == "" {
		dst.CaptainSocket = src.CaptainSocket
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
}
