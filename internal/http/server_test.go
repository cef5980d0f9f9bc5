package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/ridestate"
	"github.com/example/ride-client/internal/session"
	"github.com/example/ride-client/internal/storage"
)

type fakeBackend struct {
	mu        sync.Mutex
	ride      models.Ride
	started   []string
	confirmed []string
	ended     []api.EndRideRequest
}

func (f *fakeBackend) CurrentRide(context.Context, string) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.ride
	return &r, nil
}

func (f *fakeBackend) ConfirmRide(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, id)
	return nil
}

func (f *fakeBackend) StartRide(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return nil
}

func (f *fakeBackend) SubmitWaiting(context.Context, string, int64) error { return nil }

func (f *fakeBackend) EndRide(_ context.Context, r api.EndRideRequest) (*models.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, r)
	return &models.Ride{ID: r.RideID, Status: models.StatusCompleted}, nil
}

func (f *fakeBackend) FareEstimate(context.Context, string, string) ([]models.FareOption, error) {
	return nil, nil
}

func (f *fakeBackend) CreateRide(context.Context, api.RideRequest) (*models.Ride, error) {
	return nil, api.ErrNotFound
}

func (f *fakeBackend) ScheduleRide(context.Context, api.RideRequest) (*models.Ride, error) {
	return nil, api.ErrNotFound
}

func (f *fakeBackend) CreatePayment(_ context.Context, id string) (*models.PaymentOrder, error) {
	return &models.PaymentOrder{OrderID: "order_1", Amount: 15000, Currency: "INR"}, nil
}

type fakeSession struct{ actor *models.Actor }

func (s *fakeSession) Actor() *models.Actor { return s.actor }
func (s *fakeSession) Expired(error) bool   { return false }

type fixture struct {
	srv     *Server
	backend *fakeBackend
	tracker *ridestate.Tracker
	offers  *ridestate.OfferBox
	router  *session.Router
	notices *notify.Recorder
	slot    *storage.MemorySlot
}

func newFixture(t *testing.T, role models.Role, secret string) *fixture {
	t.Helper()
	logger := logging.Discard()
	f := &fixture{
		backend: &fakeBackend{},
		router:  session.NewRouter(session.HomeFor(role), logger),
		notices: notify.NewRecorder(0),
		slot:    storage.NewMemorySlot(),
	}
	deps := ridestate.Deps{
		API:       f.backend,
		Slot:      f.slot,
		Session:   &fakeSession{actor: &models.Actor{ID: "a1", Role: role}},
		Navigator: f.router,
		Notifier:  f.notices,
		Logger:    logger,
	}
	f.tracker = ridestate.NewTracker(deps, ridestate.Options{})
	f.offers = ridestate.NewOfferBox(deps, 0)
	f.srv = New(Config{
		Session:        deps.Session.(*fakeSession),
		Router:         f.router,
		Tracker:        f.tracker,
		Offers:         f.offers,
		Notices:        f.notices,
		CallbackSecret: secret,
		Logger:         logger,
	})
	t.Cleanup(f.srv.Close)
	t.Cleanup(f.router.Stop)
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Screen) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	var sc Screen
	if rec.Code == http.StatusOK && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &sc)
	}
	return rec, sc
}

func hasControl(cs []ridestate.Control, c ridestate.Control) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func TestCaptainStartsRideWithOTP(t *testing.T) {
	f := newFixture(t, models.RoleCaptain, "")
	f.tracker.Apply(models.Ride{ID: "r1", Status: models.StatusAccepted}, models.OriginPoll)

	rec, sc := f.do(t, "GET", "/view", "")
	if rec.Code != http.StatusOK || !hasControl(sc.Controls, ridestate.ControlStart) {
		t.Fatalf("expected start control, got %d %+v", rec.Code, sc.Controls)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}

	rec, _ = f.do(t, "POST", "/actions/start", `{"otp":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty otp: expected 400, got %d", rec.Code)
	}

	rec, sc = f.do(t, "POST", "/actions/start", `{"otp":"4821"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body.String())
	}
	if sc.Ride == nil || sc.Ride.Status != models.StatusInProgress {
		t.Fatalf("expected in-progress ride, got %+v", sc.Ride)
	}
	if len(f.backend.started) != 1 {
		t.Fatalf("expected one start call, got %v", f.backend.started)
	}
}

func TestRiderCannotUseCaptainActions(t *testing.T) {
	f := newFixture(t, models.RoleRider, "")
	f.tracker.Apply(models.Ride{ID: "r1", Status: models.StatusAccepted}, models.OriginPoll)

	rec, _ := f.do(t, "POST", "/actions/start", `{"otp":"4821"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	rec, _ = f.do(t, "POST", "/actions/end", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(f.backend.started) != 0 || len(f.backend.ended) != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestAcceptOfferAdoptsRide(t *testing.T) {
	f := newFixture(t, models.RoleCaptain, "")
	f.offers.Offer(models.Ride{ID: "r2", Status: models.StatusPending, Pickup: "A", Destination: "B"})

	rec, sc := f.do(t, "POST", "/actions/accept", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	if sc.Ride == nil || sc.Ride.ID != "r2" || sc.Ride.Status != models.StatusAccepted {
		t.Fatalf("unexpected ride %+v", sc.Ride)
	}
	if sc.Offer != nil {
		t.Fatal("offer should be cleared")
	}
	if got := f.router.Current(); got.View != session.ViewChat || got.RideID != "r2" {
		t.Fatalf("expected chat view, got %+v", got)
	}
	rec, _ = f.do(t, "POST", "/actions/accept", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second accept: expected 404, got %d", rec.Code)
	}
}

func TestOfferShowsFareAndRejectStaysLocal(t *testing.T) {
	f := newFixture(t, models.RoleCaptain, "")
	f.offers.HandleNewRide([]byte(`{"_id":"r1","pickup":"A","destination":"B","fare":120}`))

	rec, sc := f.do(t, "GET", "/view", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("view: %d", rec.Code)
	}
	if sc.Offer == nil || sc.Offer.Ride.ID != "r1" || sc.OfferFare != "₹120" {
		t.Fatalf("unexpected offer %+v %q", sc.Offer, sc.OfferFare)
	}
	rec, sc = f.do(t, "POST", "/actions/reject", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", rec.Code, rec.Body.String())
	}
	if sc.Offer != nil || sc.OfferFare != "" {
		t.Fatalf("offer still shown %+v", sc.Offer)
	}
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if len(f.backend.confirmed) != 0 || len(f.backend.started) != 0 {
		t.Fatalf("reject reached the backend: %+v", f.backend.confirmed)
	}
}

func TestStopsOnReturnRideOnly(t *testing.T) {
	f := newFixture(t, models.RoleCaptain, "")
	f.tracker.Apply(models.Ride{ID: "r1", Status: models.StatusInProgress, Kind: models.KindReturn}, models.OriginPoll)

	rec, sc := f.do(t, "POST", "/actions/stops", `{"stop":"Mall"}`)
	if rec.Code != http.StatusOK || len(sc.Stops) != 1 || sc.Stops[0] != "Mall" {
		t.Fatalf("add stop: %d %+v", rec.Code, sc.Stops)
	}
	rec, sc = f.do(t, "DELETE", "/actions/stops/0", "")
	if rec.Code != http.StatusOK || len(sc.Stops) != 0 {
		t.Fatalf("remove stop: %d %+v", rec.Code, sc.Stops)
	}

	g := newFixture(t, models.RoleCaptain, "")
	g.tracker.Apply(models.Ride{ID: "r9", Status: models.StatusInProgress}, models.OriginPoll)
	rec, _ = g.do(t, "POST", "/actions/stops", `{"stop":"Mall"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("normal ride: expected 403, got %d", rec.Code)
	}
}

func TestPayShowsCheckoutUntilCallback(t *testing.T) {
	f := newFixture(t, models.RoleRider, "s3cret")
	_ = f.slot.Store(context.Background(), "r1")
	f.tracker.Apply(models.Ride{ID: "r1", Status: models.StatusCompleted, Fare: 150}, models.OriginPoll)

	rec, _ := f.do(t, "POST", "/actions/pay", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("without checkout: expected 503, got %d", rec.Code)
	}

	f.srv.SetCheckout(&payments.RazorpayCheckout{Key: "rzp_test", Launcher: f.srv})
	rec, sc := f.do(t, "POST", "/actions/pay", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", rec.Code, rec.Body.String())
	}
	if sc.Checkout == nil || sc.Checkout.OrderID != "order_1" || sc.Checkout.RideID != "r1" || sc.Checkout.Options.Key != "rzp_test" {
		t.Fatalf("unexpected checkout %+v", sc.Checkout)
	}
	if sc.View.View != session.ViewPayment {
		t.Fatalf("expected payment view, got %+v", sc.View)
	}
	rec, _ = f.do(t, "GET", "/payments/checkout?order_id=order_1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout page: %d", rec.Code)
	}

	post := func(sig string) int {
		form := url.Values{
			"razorpay_order_id":   {"order_1"},
			"razorpay_payment_id": {"pay_1"},
			"razorpay_signature":  {sig},
		}
		req := httptest.NewRequest("POST", "/payments/callback", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := post("forged"); code != http.StatusBadRequest {
		t.Fatalf("forged callback: expected 400, got %d", code)
	}
	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte("order_1|pay_1"))
	if code := post(hex.EncodeToString(mac.Sum(nil))); code != http.StatusNoContent {
		t.Fatalf("callback: expected 204, got %d", code)
	}
	if id, ok := f.srv.Paid("order_1"); !ok || id != "pay_1" {
		t.Fatalf("payment not recorded: %q %v", id, ok)
	}
	if got := f.router.Current(); got.View != session.ViewSummary {
		t.Fatalf("expected summary view, got %+v", got)
	}
	if n, _ := f.notices.Last(); n.Message != "Payment successful" {
		t.Fatalf("unexpected notice %+v", n)
	}
	if id, _ := f.slot.Load(context.Background()); id != "" {
		t.Fatalf("paid ride still stored: %q", id)
	}
}

func signedCallback(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	body, _ := json.Marshal(map[string]string{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
		"razorpay_signature":  hex.EncodeToString(mac.Sum(nil)),
	})
	return string(body)
}

func TestCallbackMustMatchPendingOrder(t *testing.T) {
	f := newFixture(t, models.RoleRider, "s3cret")
	_ = f.slot.Store(context.Background(), "r1")
	f.tracker.Apply(models.Ride{ID: "r1", Status: models.StatusCompleted, Fare: 150}, models.OriginPoll)

	rec, _ := f.do(t, "POST", "/payments/callback", signedCallback("s3cret", "order_1", "pay_1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("no checkout pending: expected 409, got %d", rec.Code)
	}

	f.srv.SetCheckout(&payments.RazorpayCheckout{Key: "rzp_test", Launcher: f.srv})
	if rec, _ := f.do(t, "POST", "/actions/pay", ""); rec.Code != http.StatusOK {
		t.Fatalf("pay: %d", rec.Code)
	}
	rec, _ = f.do(t, "POST", "/payments/callback", signedCallback("s3cret", "order_other", "pay_2"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("other order: expected 409, got %d", rec.Code)
	}
	if _, ok := f.srv.Paid("order_other"); ok {
		t.Fatal("payment for an unknown order recorded")
	}
	if id, _ := f.slot.Load(context.Background()); id != "r1" {
		t.Fatalf("slot cleared by a rejected callback: %q", id)
	}

	rec, _ = f.do(t, "POST", "/payments/callback", signedCallback("s3cret", "order_1", "pay_1"))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("pending order: expected 204, got %d", rec.Code)
	}
	rec, _ = f.do(t, "POST", "/payments/callback", signedCallback("s3cret", "order_1", "pay_1"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("replayed callback: expected 409, got %d", rec.Code)
	}
}

func TestWebSocketStreamsScreens(t *testing.T) {
	f := newFixture(t, models.RoleRider, "")
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var sc Screen
	if err := conn.ReadJSON(&sc); err != nil {
		t.Fatalf("initial screen: %v", err)
	}
	if sc.View.View != session.ViewHome {
		t.Fatalf("expected home, got %+v", sc.View)
	}

	f.router.Navigate(session.Target{View: session.ViewWaiting, RideID: "r1"})
	if err := conn.ReadJSON(&sc); err != nil {
		t.Fatalf("pushed screen: %v", err)
	}
	if sc.View.View != session.ViewWaiting || sc.View.RideID != "r1" {
		t.Fatalf("unexpected pushed view %+v", sc.View)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	f := newFixture(t, models.RoleRider, "")
	h := f.srv.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHealthzRunsChecks(t *testing.T) {
	var down error
	srv := New(Config{
		Logger: logging.Discard(),
		Checks: map[string]func(context.Context) error{
			"redis": func(context.Context) error { return down },
		},
	})
	defer srv.Close()

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
		return rec
	}
	if rec := get(); rec.Code != http.StatusOK {
		t.Fatalf("healthy: expected 200, got %d", rec.Code)
	}
	down = errors.New("connection refused")
	rec := get()
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "redis not ready") {
		t.Fatalf("unhealthy: got %d %q", rec.Code, rec.Body.String())
	}
}
