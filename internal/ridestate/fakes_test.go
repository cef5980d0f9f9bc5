package ridestate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/session"
	"github.com/example/ride-client/internal/storage"
)

type fakeAPI struct {
	mu sync.Mutex

	current     []*models.Ride // successive CurrentRide results; the last one repeats
	currentErr  error
	currentHook func(ctx context.Context)
	currentIDs  []string

	confirmErr   error
	confirmGate  chan struct{}
	confirmStart chan struct{}
	confirms     int

	startErr error
	starts   []string

	waitingErrs []error
	waiting     []int64

	endErr  error
	endReqs []api.EndRideRequest

	fares   []models.FareOption
	created []api.RideRequest
	calls   int

	paymentErr error
}

func (f *fakeAPI) CurrentRide(ctx context.Context, id string) (*models.Ride, error) {
	f.mu.Lock()
	f.calls++
	f.currentIDs = append(f.currentIDs, id)
	hook := f.currentHook
	var r *models.Ride
	if len(f.current) > 0 {
		r = f.current[0]
		if len(f.current) > 1 {
			f.current = f.current[1:]
		}
	}
	err := f.currentErr
	f.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, &api.HTTPError{Status: 404}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAPI) ConfirmRide(ctx context.Context, id string) error {
	f.mu.Lock()
	f.confirms++
	gate, start := f.confirmGate, f.confirmStart
	err := f.confirmErr
	f.mu.Unlock()
	if start != nil {
		close(start)
	}
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeAPI) StartRide(ctx context.Context, id, otp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, id+":"+otp)
	return f.startErr
}

func (f *fakeAPI) SubmitWaiting(ctx context.Context, id string, secs int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waiting = append(f.waiting, secs)
	if len(f.waitingErrs) > 0 {
		err := f.waitingErrs[0]
		f.waitingErrs = f.waitingErrs[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) EndRide(ctx context.Context, r api.EndRideRequest) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endReqs = append(f.endReqs, r)
	if f.endErr != nil {
		return nil, f.endErr
	}
	return &models.Ride{ID: r.RideID, Status: models.StatusCompleted, Fare: 150}, nil
}

func (f *fakeAPI) FareEstimate(ctx context.Context, p, d string) ([]models.FareOption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.fares, nil
}

func (f *fakeAPI) CreateRide(ctx context.Context, r api.RideRequest) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.created = append(f.created, r)
	ride := &models.Ride{ID: "r-new", Pickup: r.Pickup, Destination: r.Destination, Status: models.StatusPending, VehicleType: r.VehicleType, Kind: models.KindNormal}
	f.current = []*models.Ride{ride}
	return ride, nil
}

func (f *fakeAPI) ScheduleRide(ctx context.Context, r api.RideRequest) (*models.Ride, error) {
	ride, err := f.CreateRide(ctx, r)
	if ride != nil {
		ride.Kind = models.KindReturn
	}
	return ride, err
}

func (f *fakeAPI) CreatePayment(ctx context.Context, id string) (*models.PaymentOrder, error) {
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	return &models.PaymentOrder{OrderID: "order_" + id, Amount: 15000, Currency: "INR"}, nil
}

type apiCalls struct {
	confirms   int
	starts     []string
	waiting    []int64
	endReqs    []api.EndRideRequest
	created    []api.RideRequest
	calls      int
	currentIDs []string
}

func (f *fakeAPI) snapshot() apiCalls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return apiCalls{
		confirms:   f.confirms,
		starts:     append([]string(nil), f.starts...),
		waiting:    append([]int64(nil), f.waiting...),
		endReqs:    append([]api.EndRideRequest(nil), f.endReqs...),
		created:    append([]api.RideRequest(nil), f.created...),
		calls:      f.calls,
		currentIDs: append([]string(nil), f.currentIDs...),
	}
}

type fakeSession struct{ actor *models.Actor }

func (s *fakeSession) Actor() *models.Actor { return s.actor }
func (s *fakeSession) Expired(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock { return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	api     *fakeAPI
	slot    *storage.MemorySlot
	journal *storage.MemoryJournal
	router  *session.Router
	notes   *notify.Recorder
	clock   *fakeClock
	deps    Deps
}

func newHarness(role models.Role) *harness {
	h := &harness{
		api:     &fakeAPI{},
		slot:    storage.NewMemorySlot(),
		journal: storage.NewMemoryJournal(),
		router:  session.NewRouter(session.HomeFor(role), logging.Discard()),
		notes:   notify.NewRecorder(0),
		clock:   newClock(),
	}
	h.deps = Deps{
		API:       h.api,
		Session:   &fakeSession{actor: &models.Actor{ID: string(role) + "-1", Role: role}},
		Slot:      h.slot,
		Journal:   h.journal,
		Navigator: h.router,
		Notifier:  h.notes,
		Logger:    logging.Discard(),
		Clock:     h.clock.Now,
	}
	return h
}

func (h *harness) visits(v session.View) int {
	n := 0
	for _, t := range h.router.History() {
		if t.View == v {
			n++
		}
	}
	return n
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
