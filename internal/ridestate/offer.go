package ridestate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/observability"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/session"
)

// OfferBox holds the one ride offer a captain is deciding on. Offers only
// arrive over the real-time channel.
type OfferBox struct {
	deps    Deps
	timeout time.Duration

	mu       sync.Mutex
	offer    *models.Offer
	inFlight bool
	timer    *time.Timer
}

// NewOfferBox returns a box whose offers expire after timeout; zero keeps
// offers until they are answered.
func NewOfferBox(deps Deps, timeout time.Duration) *OfferBox {
	return &OfferBox{deps: deps.withDefaults(), timeout: timeout}
}

// Offer replaces the held offer with ride.
func (b *OfferBox) Offer(ride models.Ride) {
	now := b.deps.Clock()
	o := &models.Offer{Ride: ride, ReceivedAt: now}
	if b.timeout > 0 {
		o.ExpiresAt = now.Add(b.timeout)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offer != nil && b.offer.Ride.ID != ride.ID {
		observability.OffersTotal.WithLabelValues("replaced").Inc()
	}
	b.offer = o
	b.stopTimerLocked()
	if b.timeout > 0 {
		id := ride.ID
		b.timer = time.AfterFunc(b.timeout, func() { b.expire(id) })
	}
	observability.OffersTotal.WithLabelValues("received").Inc()
	b.deps.Logger.Info("ride offer", "ride_id", ride.ID, "pickup", ride.Pickup, "fare", ride.Fare)
}

// Current returns a copy of the held offer, or nil.
func (b *OfferBox) Current() *models.Offer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offer == nil {
		return nil
	}
	o := *b.offer
	return &o
}

// Accept confirms the held offer. A second Accept while the first is in
// flight returns ErrAcceptInFlight without contacting the backend. On
// failure the offer stays so the captain can try again.
func (b *OfferBox) Accept(ctx context.Context) (*models.Ride, error) {
	b.mu.Lock()
	if b.offer == nil {
		b.mu.Unlock()
		return nil, ErrNoOffer
	}
	if b.inFlight {
		b.mu.Unlock()
		return nil, ErrAcceptInFlight
	}
	if b.offer.Expired(b.deps.Clock()) {
		b.clearLocked()
		b.mu.Unlock()
		observability.OffersTotal.WithLabelValues("expired").Inc()
		return nil, ErrOfferExpired
	}
	b.inFlight = true
	ride := b.offer.Ride
	b.mu.Unlock()

	err := b.deps.API.ConfirmRide(ctx, ride.ID)

	b.mu.Lock()
	b.inFlight = false
	if err != nil {
		b.mu.Unlock()
		return nil, b.deps.actionFailed(err, "Error accepting ride")
	}
	if b.offer != nil && b.offer.Ride.ID == ride.ID {
		b.clearLocked()
	}
	b.mu.Unlock()

	observability.OffersTotal.WithLabelValues("accepted").Inc()
	if err := b.deps.Slot.Store(ctx, ride.ID); err != nil {
		b.deps.Logger.Warn("store ride id failed", "error", err)
	}
	b.deps.Notifier.Notify(notify.Success, "Ride accepted")
	b.deps.Navigator.Navigate(session.Target{View: session.ViewChat, RideID: ride.ID})
	ride.Status = models.StatusAccepted
	return &ride, nil
}

// Reject discards the held offer. Nothing is sent to the backend.
func (b *OfferBox) Reject() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offer == nil {
		return ErrNoOffer
	}
	if b.inFlight {
		return ErrAcceptInFlight
	}
	b.clearLocked()
	observability.OffersTotal.WithLabelValues("rejected").Inc()
	return nil
}

// HandleNewRide is the new-ride push handler.
func (b *OfferBox) HandleNewRide(data json.RawMessage) {
	r, err := realtime.DecodeRide(data)
	if err != nil || r.ID == "" {
		b.deps.Logger.Warn("bad new-ride payload", "error", err)
		return
	}
	b.Offer(r)
	b.deps.Notifier.Notify(notify.Info, "New ride request")
}

func (b *OfferBox) Bind(ch *realtime.Channel) *realtime.Subscription {
	return ch.On(realtime.EventNewRide, b.HandleNewRide)
}

// Close stops the expiry timer.
func (b *OfferBox) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopTimerLocked()
}

func (b *OfferBox) expire(rideID string) {
	b.mu.Lock()
	if b.offer == nil || b.offer.Ride.ID != rideID || b.inFlight {
		b.mu.Unlock()
		return
	}
	b.offer = nil
	b.timer = nil
	b.mu.Unlock()
	observability.OffersTotal.WithLabelValues("expired").Inc()
	b.deps.Logger.Info("ride offer expired", "ride_id", rideID)
	b.deps.Notifier.Notify(notify.Info, "Ride request expired")
}

func (b *OfferBox) clearLocked() {
	b.offer = nil
	b.stopTimerLocked()
}

func (b *OfferBox) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
