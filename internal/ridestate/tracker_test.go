package ridestate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/realtime"
	"github.com/example/ride-client/internal/session"
)

func TestApplyIsKeyedByTargetStatus(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	tr := NewTracker(h.deps, Options{})

	steps := []struct {
		status models.Status
		origin models.Origin
		want   bool
	}{
		{models.StatusPending, models.OriginPoll, true}, // adopt
		{models.StatusAccepted, models.OriginPush, true},
		{models.StatusAccepted, models.OriginPoll, false},
		{models.StatusPending, models.OriginPoll, false},
		{models.StatusInProgress, models.OriginAction, true},
		{models.StatusCompleted, models.OriginPoll, true},
		{models.StatusInProgress, models.OriginPoll, false},
		{models.StatusRejected, models.OriginPush, false},
	}
	for i, s := range steps {
		if got := tr.ApplyStatus("r1", s.status, s.origin); got != s.want {
			t.Fatalf("step %d (%s): got %v want %v", i, s.status, got, s.want)
		}
	}
	if got := tr.Current().Status; got != models.StatusCompleted {
		t.Fatalf("final status %s", got)
	}
	trs := h.journal.Transitions()
	want := []models.Status{models.StatusAccepted, models.StatusInProgress, models.StatusCompleted}
	if len(trs) != len(want) {
		t.Fatalf("expected %d transitions, got %+v", len(want), trs)
	}
	for i, tr := range trs {
		if tr.To != want[i] || tr.RideID != "r1" || tr.ActorID != "captain-1" {
			t.Fatalf("transition %d: %+v", i, tr)
		}
	}
	if trs[0].From != models.StatusPending || trs[0].Origin != models.OriginPush {
		t.Fatalf("unexpected first transition %+v", trs[0])
	}
	if n := h.visits(session.ViewSummary); n != 1 {
		t.Fatalf("summary navigated %d times", n)
	}
}

func TestWatchNavigatesToSummaryAfterCompletion(t *testing.T) {
	h := newHarness(models.RoleRider)
	_ = h.slot.Store(context.Background(), "r1")
	h.api.current = []*models.Ride{
		{ID: "r1", Status: models.StatusInProgress, Kind: models.KindNormal},
		{ID: "r1", Status: models.StatusCompleted, Kind: models.KindNormal},
	}
	tr := NewTracker(h.deps, Options{PollInterval: 5 * time.Millisecond, NavigateDelay: 20 * time.Millisecond})
	defer h.router.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tr.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if h.notes.Count(notify.Success) != 1 {
		t.Fatalf("expected one success notification, got %+v", h.notes.All())
	}
	if !waitFor(func() bool { return h.router.Current() == session.Target{View: session.ViewSummary, RideID: "r1"} }) {
		t.Fatalf("never navigated to summary, at %+v", h.router.Current())
	}
	calls := h.api.snapshot()
	if len(calls.currentIDs) < 2 || calls.currentIDs[0] != "r1" {
		t.Fatalf("expected polls by slot id, got %v", calls.currentIDs)
	}
	trs := h.journal.Transitions()
	if len(trs) != 1 || trs[0].Origin != models.OriginPoll || trs[0].To != models.StatusCompleted {
		t.Fatalf("unexpected journal %+v", trs)
	}
}

func TestPushAndPollRaceNavigateOnce(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusInProgress}, models.OriginPoll)

	tr.HandleRideEnded([]byte(`{"_id":"r1"}`))
	if tr.Apply(models.Ride{ID: "r1", Status: models.StatusCompleted}, models.OriginPoll) {
		t.Fatal("poll after push must be a no-op")
	}
	tr.HandleRideEnded([]byte(`{}`))

	if n := h.visits(session.ViewSummary); n != 1 {
		t.Fatalf("summary visited %d times", n)
	}
	if n := h.notes.Count(notify.Success); n != 1 {
		t.Fatalf("expected a single success notification, got %d", n)
	}
	if trs := h.journal.Transitions(); len(trs) != 1 || trs[0].Origin != models.OriginPush {
		t.Fatalf("unexpected journal %+v", trs)
	}
}

func TestResolveFailureKeepsStateAndNotifiesOncePerStreak(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusAccepted}, models.OriginPoll)

	h.api.currentErr = errors.New("connection reset")
	for i := 0; i < 3; i++ {
		if _, err := tr.Resolve(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	}
	if tr.Current().Status != models.StatusAccepted {
		t.Fatalf("state changed on failure: %+v", tr.Current())
	}
	if n := h.notes.Count(notify.Error); n != 1 {
		t.Fatalf("expected 1 error notification, got %d", n)
	}

	h.api.currentErr = nil
	h.api.current = []*models.Ride{{ID: "r1", Status: models.StatusAccepted}}
	if _, err := tr.Resolve(context.Background()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	h.api.currentErr = errors.New("down again")
	_, _ = tr.Resolve(context.Background())
	if n := h.notes.Count(notify.Error); n != 2 {
		t.Fatalf("expected a new notification after recovery, got %d", n)
	}
}

func TestResolveDiscardsResultAfterCancel(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	h.api.current = []*models.Ride{{ID: "r1", Status: models.StatusAccepted}}
	h.api.currentHook = func(context.Context) { cancel() }

	if _, err := tr.Resolve(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if tr.Current() != nil {
		t.Fatalf("late result applied: %+v", tr.Current())
	}
}

func TestResolveAuthFailureIsNotNotified(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	h.api.currentErr = &api.HTTPError{Status: 401}
	if _, err := tr.Resolve(context.Background()); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if h.notes.Count(notify.Error) != 0 {
		t.Fatal("auth failures go to login, not to a toast")
	}
}

func TestRejectedGoesHome(t *testing.T) {
	h := newHarness(models.RoleRider)
	h.router.Navigate(session.Target{View: session.ViewWaiting, RideID: "r1"})
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusPending}, models.OriginPoll)
	tr.ApplyStatus("r1", models.StatusRejected, models.OriginPush)
	if got := h.router.Current().View; got != session.ViewHome {
		t.Fatalf("expected home, got %s", got)
	}
}

func TestRideConfirmedOpensChat(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	payload := []byte(`{"_id":"r1","status":"accepted","otp":"1234","captainName":"Ravi"}`)

	tr.HandleRideConfirmed(payload)
	tr.HandleRideConfirmed(payload)

	cur := tr.Current()
	if cur == nil || cur.Status != models.StatusAccepted || cur.OTP != "1234" {
		t.Fatalf("unexpected ride %+v", cur)
	}
	if id, _ := h.slot.Load(context.Background()); id != "r1" {
		t.Fatalf("slot holds %q", id)
	}
	if got := h.router.Current(); got != (session.Target{View: session.ViewChat, RideID: "r1"}) {
		t.Fatalf("expected chat view, got %+v", got)
	}
	if n := h.notes.Count(notify.Success); n != 1 {
		t.Fatalf("duplicate push notified %d times", n)
	}
	if !Allowed(models.RoleRider, cur.Status, cur.Kind, ControlShowOTP) {
		t.Fatal("rider should see the otp once accepted")
	}
}

func TestStartRideValidatesOTP(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusAccepted}, models.OriginPoll)

	if err := tr.StartRide(context.Background(), "  "); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if n := len(h.api.snapshot().starts); n != 0 {
		t.Fatalf("validation failure made %d calls", n)
	}
	if err := tr.StartRide(context.Background(), "4821"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := h.api.snapshot().starts; len(got) != 1 || got[0] != "r1:4821" {
		t.Fatalf("unexpected start calls %v", got)
	}
	if tr.Current().Status != models.StatusInProgress {
		t.Fatalf("status %s", tr.Current().Status)
	}
}

func TestEndRideKeepsSlotUntilServerConfirms(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	ctx := context.Background()
	_ = h.slot.Store(ctx, "r1")
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusInProgress, Kind: models.KindReturn}, models.OriginPoll)
	if err := tr.Stops().Add("Mall"); err != nil {
		t.Fatalf("add stop: %v", err)
	}
	tr.Waiting().Start()
	h.clock.Advance(60 * time.Second)

	h.api.endErr = &api.HTTPError{Status: 500, Message: "db down"}
	if _, err := tr.EndRide(ctx); err == nil {
		t.Fatal("expected end failure")
	}
	if id, _ := h.slot.Load(ctx); id != "r1" {
		t.Fatalf("slot cleared on failure: %q", id)
	}
	if tr.Current().Status != models.StatusInProgress {
		t.Fatal("status must not change on failure")
	}

	h.api.endErr = nil
	ride, err := tr.EndRide(ctx)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ride.Status != models.StatusCompleted || ride.Fare != 150 {
		t.Fatalf("unexpected final ride %+v", ride)
	}
	if id, _ := h.slot.Load(ctx); id != "" {
		t.Fatalf("slot not cleared: %q", id)
	}
	calls := h.api.snapshot()
	if len(calls.waiting) != 1 || calls.waiting[0] != 60 {
		t.Fatalf("waiting should be charged once, got %v", calls.waiting)
	}
	last := calls.endReqs[len(calls.endReqs)-1]
	if last.WaitingTime != 60 || len(last.Stops) != 1 || last.Stops[0] != "Mall" {
		t.Fatalf("unexpected end request %+v", last)
	}
	if h.visits(session.ViewSummary) != 1 {
		t.Fatal("expected summary navigation")
	}
}

func TestEndRideWithoutRide(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	tr := NewTracker(h.deps, Options{})
	if _, err := tr.EndRide(context.Background()); !errors.Is(err, ErrNoRide) {
		t.Fatalf("expected ErrNoRide, got %v", err)
	}
}

func TestStopsOnlyOnReturnRides(t *testing.T) {
	h := newHarness(models.RoleCaptain)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusInProgress}, models.OriginPoll)
	if err := tr.Stops().Add("A"); !errors.Is(err, ErrStopsNotAllowed) {
		t.Fatalf("expected ErrStopsNotAllowed, got %v", err)
	}

	tr.Apply(models.Ride{ID: "r2", Status: models.StatusInProgress, Kind: models.KindReturn, Stops: []string{"A"}}, models.OriginPoll)
	s := tr.Stops()
	if err := s.Add(" B "); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(""); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if err := s.Remove(0); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(5); !errors.Is(err, api.ErrInvalidInput) {
		t.Fatalf("expected out of range, got %v", err)
	}
	if got := s.List(); len(got) != 1 || got[0] != "B" {
		t.Fatalf("unexpected stops %v", got)
	}
}

type fakeCheckout struct{ opened []models.PaymentOrder }

func (f *fakeCheckout) Open(_ context.Context, o models.PaymentOrder) error {
	f.opened = append(f.opened, o)
	return nil
}

func TestPayOpensCheckout(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusCompleted}, models.OriginPoll)

	co := &fakeCheckout{}
	order, err := tr.Pay(context.Background(), co)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(co.opened) != 1 || co.opened[0].OrderID != order.OrderID || co.opened[0].RideID != "r1" {
		t.Fatalf("checkout not opened with order %+v", co.opened)
	}
	if h.router.Current().View != session.ViewPayment {
		t.Fatalf("expected payment view, got %s", h.router.Current().View)
	}

	h.api.paymentErr = errors.New("gateway timeout")
	if _, err := tr.Pay(context.Background(), co); err == nil {
		t.Fatal("expected payment error")
	}
	if last, ok := h.notes.Last(); !ok || last.Level != notify.Error || last.Message != "Payment failed" {
		t.Fatalf("unexpected notification %+v", last)
	}
}

func TestBindDetachesHandlers(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	ch := realtime.NewChannel(nil, logging.Discard())
	cancel := tr.Bind(ch)
	if ch.Handlers(realtime.EventRideConfirmed) != 1 || ch.Handlers(realtime.EventRideEnded) != 1 {
		t.Fatal("handlers not attached")
	}
	cancel()
	if ch.Handlers(realtime.EventRideConfirmed) != 0 || ch.Handlers(realtime.EventRideEnded) != 0 {
		t.Fatal("handlers not detached")
	}
}

func TestNextRideIsResolvedAfterCompletion(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	tr.Focus("r1")
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusInProgress}, models.OriginPoll)
	tr.ApplyStatus("r1", models.StatusCompleted, models.OriginPush)

	ctx := context.Background()
	if id, err := tr.RideID(ctx); err != nil || id != "r1" {
		t.Fatalf("finished ride should stay addressable while the slot is empty, got %q %v", id, err)
	}

	_ = h.slot.Store(ctx, "r2")
	h.api.current = []*models.Ride{{ID: "r2", Status: models.StatusAccepted}}
	if id, _ := tr.RideID(ctx); id != "r2" {
		t.Fatalf("expected the booked ride, got %q", id)
	}
	r, err := tr.Resolve(ctx)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if r.ID != "r2" || r.Status != models.StatusAccepted {
		t.Fatalf("unexpected ride %+v", r)
	}
	calls := h.api.snapshot()
	if last := calls.currentIDs[len(calls.currentIDs)-1]; last != "r2" {
		t.Fatalf("resolved by %q", last)
	}
}

func TestRideEndedForAnotherRideIsIgnored(t *testing.T) {
	h := newHarness(models.RoleRider)
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r2", Status: models.StatusInProgress}, models.OriginPoll)

	tr.HandleRideEnded([]byte(`{"_id":"r1"}`))

	if cur := tr.Current(); cur.ID != "r2" || cur.Status != models.StatusInProgress {
		t.Fatalf("tracked ride changed: %+v", cur)
	}
	if n := h.visits(session.ViewSummary); n != 0 {
		t.Fatalf("summary visited %d times", n)
	}
	if len(h.journal.Transitions()) != 0 {
		t.Fatalf("unexpected journal %+v", h.journal.Transitions())
	}
}

func TestSettleClearsPaidRide(t *testing.T) {
	h := newHarness(models.RoleRider)
	ctx := context.Background()
	_ = h.slot.Store(ctx, "r1")
	tr := NewTracker(h.deps, Options{})
	tr.Apply(models.Ride{ID: "r1", Status: models.StatusCompleted}, models.OriginPoll)

	if err := tr.Settle(ctx, "r9"); err != nil {
		t.Fatal(err)
	}
	if id, _ := h.slot.Load(ctx); id != "r1" {
		t.Fatalf("slot for another ride cleared, got %q", id)
	}
	if err := tr.Settle(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if id, _ := h.slot.Load(ctx); id != "" {
		t.Fatalf("slot not cleared, got %q", id)
	}
}
