package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/ridestate"
	"github.com/example/ride-client/internal/session"
)

var (
	errNotAllowed   = errors.New("action not available")
	errSignedOut    = errors.New("not signed in")
	errUnavailable  = errors.New("not configured")
	errUnknownOrder = errors.New("no pending checkout for order")
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, errSignedOut), errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, api.ErrInvalidInput), errors.Is(err, ridestate.ErrStopsNotAllowed),
		errors.Is(err, ridestate.ErrNoEstimate), errors.Is(err, payments.ErrInvalidOrder):
		return http.StatusBadRequest
	case errors.Is(err, ridestate.ErrNoRide), errors.Is(err, ridestate.ErrNoOffer), errors.Is(err, api.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ridestate.ErrAcceptInFlight), errors.Is(err, ridestate.ErrRideOutstanding),
		errors.Is(err, errUnknownOrder):
		return http.StatusConflict
	case errors.Is(err, ridestate.ErrOfferExpired):
		return http.StatusGone
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, payments.ErrBadSignature):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// done answers an action with the resulting screen.
func (s *Server) done(w http.ResponseWriter) {
	s.Broadcast()
	writeJSON(w, http.StatusOK, s.Screen())
}

// allow checks the control table for the signed-in actor and the current
// ride.
func (s *Server) allow(c ridestate.Control) error {
	if s.cfg.Session == nil || s.cfg.Session.Actor() == nil {
		return errSignedOut
	}
	if s.cfg.Tracker == nil {
		return errUnavailable
	}
	ride := s.cfg.Tracker.Current()
	if ride == nil {
		return ridestate.ErrNoRide
	}
	if !ridestate.Allowed(s.cfg.Session.Actor().Role, ride.Status, ride.Kind, c) {
		return errNotAllowed
	}
	return nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(api.ErrInvalidInput, err)
	}
	return nil
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Offers == nil {
		s.fail(w, ridestate.ErrNoOffer)
		return
	}
	ride, err := s.cfg.Offers.Accept(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.cfg.Tracker != nil {
		s.cfg.Tracker.Focus(ride.ID)
		s.cfg.Tracker.Apply(*ride, models.OriginAction)
	}
	s.done(w)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Offers == nil {
		s.fail(w, ridestate.ErrNoOffer)
		return
	}
	if err := s.cfg.Offers.Reject(); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OTP string `json:"otp"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.allow(ridestate.ControlStart); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.cfg.Tracker.StartRide(r.Context(), body.OTP); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if err := s.allow(ridestate.ControlEnd); err != nil {
		s.fail(w, err)
		return
	}
	if _, err := s.cfg.Tracker.EndRide(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	if err := s.allow(ridestate.ControlPay); err != nil {
		s.fail(w, err)
		return
	}
	s.mu.Lock()
	checkout := s.checkout
	s.mu.Unlock()
	if checkout == nil {
		s.fail(w, errUnavailable)
		return
	}
	if _, err := s.cfg.Tracker.Pay(r.Context(), checkout); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handleWaiting(w http.ResponseWriter, r *http.Request) {
	if err := s.allow(ridestate.ControlWaitingTimer); err != nil {
		s.fail(w, err)
		return
	}
	meter := s.cfg.Tracker.Waiting()
	switch mux.Vars(r)["op"] {
	case "start":
		meter.Start()
	case "pause":
		if err := s.cfg.Tracker.PauseWaiting(r.Context()); err != nil {
			s.fail(w, err)
			return
		}
	case "reset":
		meter.Reset()
	}
	s.done(w)
}

func (s *Server) handleAddStop(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Stop string `json:"stop"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.allow(ridestate.ControlStops); err != nil {
		s.fail(w, err)
		return
	}
	if err := s.cfg.Tracker.Stops().Add(body.Stop); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handleRemoveStop(w http.ResponseWriter, r *http.Request) {
	if err := s.allow(ridestate.ControlStops); err != nil {
		s.fail(w, err)
		return
	}
	i, _ := strconv.Atoi(mux.Vars(r)["index"])
	if err := s.cfg.Tracker.Stops().Remove(i); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, err)
		return
	}
	room := s.cfg.Chat()
	if room == nil {
		s.fail(w, ridestate.ErrNoRide)
		return
	}
	if _, err := room.Send(r.Context(), body.Message); err != nil {
		s.fail(w, err)
		return
	}
	s.done(w)
}

// Launch implements payments.Launcher: the checkout is shown to every view
// until the gateway calls back.
func (s *Server) Launch(_ context.Context, req payments.CheckoutRequest) error {
	s.mu.Lock()
	s.pending = &req
	s.mu.Unlock()
	s.logger.Info("checkout pending", "gateway", req.Gateway, "order_id", req.OrderID)
	s.Broadcast()
	return nil
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.pending
	s.mu.Unlock()
	if p == nil {
		s.fail(w, ridestate.ErrNoRide)
		return
	}
	if id := r.URL.Query().Get("order_id"); id != "" && id != p.OrderID {
		s.fail(w, api.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	cb, err := payments.ParseCallback(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.cfg.CallbackSecret != "" {
		if err := cb.Verify(s.cfg.CallbackSecret); err != nil {
			s.logger.Warn("payment callback rejected", "order_id", cb.OrderID, "error", err)
			s.fail(w, err)
			return
		}
	}
	s.mu.Lock()
	p := s.pending
	_, seen := s.paid[cb.OrderID]
	if p == nil || p.OrderID != cb.OrderID || seen {
		s.mu.Unlock()
		s.logger.Warn("payment callback for unknown order", "order_id", cb.OrderID)
		s.fail(w, errUnknownOrder)
		return
	}
	s.paid[cb.OrderID] = cb.PaymentID
	s.mu.Unlock()
	s.logger.Info("payment completed", "order_id", cb.OrderID, "payment_id", cb.PaymentID, "ride_id", p.RideID)
	s.cfg.Notifier.Notify(notify.Success, "Payment successful")
	if s.cfg.Tracker != nil {
		rideID := p.RideID
		if rideID == "" {
			if ride := s.cfg.Tracker.Current(); ride != nil {
				rideID = ride.ID
			}
		}
		if err := s.cfg.Tracker.Settle(r.Context(), rideID); err != nil {
			s.logger.Warn("clear paid ride failed", "ride_id", rideID, "error", err)
		}
		if s.cfg.Router != nil && rideID != "" {
			s.cfg.Router.Navigate(session.Target{View: session.ViewSummary, RideID: rideID})
		}
	}
	s.Broadcast()
	w.WriteHeader(http.StatusNoContent)
}

// Paid reports the gateway payment id recorded for an order.
func (s *Server) Paid(orderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.paid[orderID]
	return id, ok
}
