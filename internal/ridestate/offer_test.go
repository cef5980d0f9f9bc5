package ridestate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/session"
)

func TestAcceptIgnoresSecondClickWhileInFlight(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 0)
	box.Offer(models.Ride{ID: "r1", Pickup: "A", Destination: "B", Status: models.StatusPending})

	h.api.confirmGate = make(chan struct{})
	h.api.confirmStart = make(chan struct{})
	type result struct {
		ride *models.Ride
		err  error
	}
	done := make(chan result, 1)
	go func() {
		r, err := box.Accept(context.Background())
		done <- result{r, err}
	}()
	<-h.api.confirmStart

	if _, err := box.Accept(context.Background()); !errors.Is(err, ErrAcceptInFlight) {
		t.Fatalf("expected ErrAcceptInFlight, got %v", err)
	}
	if err := box.Reject(); !errors.Is(err, ErrAcceptInFlight) {
		t.Fatalf("reject during accept: %v", err)
	}
	close(h.api.confirmGate)

	res := <-done
	if res.err != nil || res.ride.ID != "r1" || res.ride.Status != models.StatusAccepted {
		t.Fatalf("accept: %+v %v", res.ride, res.err)
	}
	if n := h.api.snapshot().confirms; n != 1 {
		t.Fatalf("expected one confirm request, got %d", n)
	}
	if box.Current() != nil {
		t.Fatal("offer should be cleared after accept")
	}
	if id, _ := h.slot.Load(context.Background()); id != "r1" {
		t.Fatalf("slot holds %q", id)
	}
	if got := h.router.Current(); got != (session.Target{View: session.ViewChat, RideID: "r1"}) {
		t.Fatalf("expected chat, got %+v", got)
	}
}

func TestAcceptFailureKeepsOffer(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 0)
	box.Offer(models.Ride{ID: "r1"})
	h.api.confirmErr = errors.New("already taken")

	if _, err := box.Accept(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if box.Current() == nil {
		t.Fatal("offer must stay for a retry")
	}
	if h.notes.Count(notify.Error) != 1 {
		t.Fatal("expected an error notification")
	}
	if _, err := box.Accept(context.Background()); errors.Is(err, ErrAcceptInFlight) {
		t.Fatal("control should be re-enabled after a failure")
	}
	if n := h.api.snapshot().confirms; n != 2 {
		t.Fatalf("expected 2 confirms, got %d", n)
	}
}

func TestRejectIsLocal(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 0)
	box.HandleNewRide([]byte(`{"_id":"r9","pickup":"A","destination":"B","fare":80,"status":"pending"}`))
	if o := box.Current(); o == nil || o.Ride.ID != "r9" || o.Ride.Fare != 80 {
		t.Fatalf("offer not held: %+v", o)
	}
	if err := box.Reject(); err != nil {
		t.Fatal(err)
	}
	if box.Current() != nil {
		t.Fatal("offer not discarded")
	}
	if err := box.Reject(); !errors.Is(err, ErrNoOffer) {
		t.Fatalf("expected ErrNoOffer, got %v", err)
	}
	if calls := h.api.snapshot(); calls.confirms != 0 || calls.calls != 0 {
		t.Fatalf("reject must not call the backend: %+v", calls)
	}
}

func TestOfferFareIsShownInRupees(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 0)
	box.HandleNewRide([]byte(`{"_id":"r1","pickup":"A","destination":"B","fare":120}`))
	o := box.Current()
	if o == nil || o.Ride.Pickup != "A" || o.Ride.Destination != "B" {
		t.Fatalf("offer not held: %+v", o)
	}
	if got := models.FormatFare(o.Ride.Fare); got != "₹120" {
		t.Fatalf("fare shown as %q", got)
	}
	if err := box.Reject(); err != nil {
		t.Fatal(err)
	}
	if calls := h.api.snapshot(); calls.confirms != 0 || calls.calls != 0 || len(calls.currentIDs) != 0 {
		t.Fatalf("reject must not call the backend: %+v", calls)
	}
}

func TestOfferExpires(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 20*time.Millisecond)
	defer box.Close()
	box.Offer(models.Ride{ID: "r1"})
	if !waitFor(func() bool { return box.Current() == nil }) {
		t.Fatal("offer never expired")
	}
	if _, err := box.Accept(context.Background()); !errors.Is(err, ErrNoOffer) {
		t.Fatalf("expected ErrNoOffer, got %v", err)
	}
}

func TestAcceptAfterDeadlineFails(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, time.Hour)
	defer box.Close()
	box.Offer(models.Ride{ID: "r1"})
	if o := box.Current(); o.ExpiresAt.Sub(o.ReceivedAt) != time.Hour {
		t.Fatalf("unexpected deadline %+v", o)
	}
	h.clock.Advance(2 * time.Hour)
	if _, err := box.Accept(context.Background()); !errors.Is(err, ErrOfferExpired) {
		t.Fatalf("expected ErrOfferExpired, got %v", err)
	}
	if h.api.snapshot().confirms != 0 {
		t.Fatal("expired offer must not be confirmed")
	}
}

func TestNoTimeoutKeepsOffer(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	box := NewOfferBox(h.deps, 0)
	box.Offer(models.Ride{ID: "r1"})
	h.clock.Advance(24 * time.Hour)
	if o := box.Current(); o == nil || !o.ExpiresAt.IsZero() {
		t.Fatalf("offer without timeout should never expire: %+v", o)
	}
}
