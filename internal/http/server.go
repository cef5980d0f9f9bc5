// Package httpapi is the local view server. A thin UI renders the current
// screen from GET /view or the /ws stream and posts user actions back.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/ridestate"
	"github.com/example/ride-client/internal/session"
)

// Session is the read side of the session holder.
type Session interface {
	Actor() *models.Actor
}

type Config struct {
	Session  Session
	Router   *session.Router
	Tracker  *ridestate.Tracker
	Offers   *ridestate.OfferBox
	Notices  *notify.Recorder
	Notifier notify.Notifier
	// Chat returns the open chat room, or nil.
	Chat func() *ridestate.ChatRoom
	// CallbackSecret verifies gateway callbacks; empty skips verification.
	CallbackSecret string
	// Checks are probed by /healthz by name, e.g. the Redis slot.
	Checks map[string]func(context.Context) error
	Logger *slog.Logger
}

type Server struct {
	cfg      Config
	hub      *Hub
	logger   *slog.Logger
	mux      *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	checkout ridestate.Checkout
	pending  *payments.CheckoutRequest
	paid     map[string]string
	cancels  []func()
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notices == nil {
		cfg.Notices = notify.NewRecorder(0)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = cfg.Notices
	}
	if cfg.Chat == nil {
		cfg.Chat = func() *ridestate.ChatRoom { return nil }
	}
	s := &Server{
		cfg:    cfg,
		hub:    NewHub(cfg.Logger),
		logger: cfg.Logger,
		mux:    mux.NewRouter(),
		paid:   make(map[string]string),
	}
	s.registerMiddleware()
	s.routes()
	if cfg.Router != nil {
		s.cancels = append(s.cancels, cfg.Router.Subscribe(func(session.Target) { s.Broadcast() }))
	}
	if cfg.Tracker != nil {
		s.cancels = append(s.cancels, cfg.Tracker.Subscribe(func(models.Ride) { s.Broadcast() }))
	}
	return s
}

// SetCheckout sets the gateway the pay action opens.
func (s *Server) SetCheckout(c ridestate.Checkout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkout = c
}

func (s *Server) routes() {
	s.mux.HandleFunc("/view", s.handleView).Methods("GET")
	s.mux.HandleFunc("/ws", s.handleWS)

	a := s.mux.PathPrefix("/actions").Subrouter()
	a.HandleFunc("/accept", s.handleAccept).Methods("POST")
	a.HandleFunc("/reject", s.handleReject).Methods("POST")
	a.HandleFunc("/start", s.handleStart).Methods("POST")
	a.HandleFunc("/end", s.handleEnd).Methods("POST")
	a.HandleFunc("/pay", s.handlePay).Methods("POST")
	a.HandleFunc("/waiting/{op:start|pause|reset}", s.handleWaiting).Methods("POST")
	a.HandleFunc("/stops", s.handleAddStop).Methods("POST")
	a.HandleFunc("/stops/{index:[0-9]+}", s.handleRemoveStop).Methods("DELETE")
	a.HandleFunc("/chat", s.handleChat).Methods("POST")

	s.mux.HandleFunc("/payments/checkout", s.handleCheckout).Methods("GET")
	s.mux.HandleFunc("/payments/callback", s.handleCallback).Methods("POST")

	s.mux.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.cfg.Checks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			http.Error(w, name+" not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Close detaches the server from the router and tracker and drops every
// websocket view.
func (s *Server) Close() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	s.hub.Close()
}

type WaitingState struct {
	Seconds int64 `json:"seconds"`
	Running bool  `json:"running"`
	Sent    bool  `json:"sent"`
}

// Screen is everything a view needs to render.
type Screen struct {
	View      session.Target            `json:"view"`
	Actor     *models.Actor             `json:"actor,omitempty"`
	Ride      *models.Ride              `json:"ride,omitempty"`
	Controls  []ridestate.Control       `json:"controls"`
	Offer     *models.Offer             `json:"offer,omitempty"`
	OfferFare string                    `json:"offer_fare,omitempty"`
	Chat      []models.ChatMessage      `json:"chat,omitempty"`
	Waiting   WaitingState              `json:"waiting"`
	Stops     []string                  `json:"stops"`
	Notice    *notify.Notification      `json:"notice,omitempty"`
	Checkout  *payments.CheckoutRequest `json:"checkout,omitempty"`
	Paid      bool                      `json:"paid,omitempty"`
}

func (s *Server) Screen() Screen {
	sc := Screen{Controls: []ridestate.Control{}, Stops: []string{}}
	if s.cfg.Router != nil {
		sc.View = s.cfg.Router.Current()
	}
	if s.cfg.Session != nil {
		sc.Actor = s.cfg.Session.Actor()
	}
	if t := s.cfg.Tracker; t != nil {
		sc.Ride = t.Current()
		if c := t.Controls(); c != nil {
			sc.Controls = c
		}
		sc.Stops = t.Stops().List()
		w := t.Waiting()
		sc.Waiting = WaitingState{Seconds: w.Seconds(), Running: w.Running()}
		if sc.Ride != nil {
			sc.Waiting.Sent = w.Sent(sc.Ride.ID)
		}
	}
	if s.cfg.Offers != nil {
		if sc.Offer = s.cfg.Offers.Current(); sc.Offer != nil {
			sc.OfferFare = models.FormatFare(sc.Offer.Ride.Fare)
		}
	}
	if room := s.cfg.Chat(); room != nil {
		sc.Chat = room.Messages()
	}
	if n, ok := s.cfg.Notices.Last(); ok {
		sc.Notice = &n
	}
	s.mu.Lock()
	if s.pending != nil {
		p := *s.pending
		sc.Checkout = &p
		_, sc.Paid = s.paid[p.OrderID]
	}
	s.mu.Unlock()
	return sc
}

// Broadcast pushes the current screen to every websocket view.
func (s *Server) Broadcast() {
	if s.hub.Len() == 0 {
		return
	}
	s.hub.Broadcast(s.Screen())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Screen())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("view upgrade failed", "error", err)
		return
	}
	id := s.hub.Add(conn)
	if err := s.hub.Send(id, s.Screen()); err != nil {
		s.hub.Remove(id)
		return
	}
	// Views only listen; reading keeps close frames and pings flowing.
	go func() {
		defer s.hub.Remove(id)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
