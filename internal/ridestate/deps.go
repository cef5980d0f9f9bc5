// Package ridestate tracks the session's current ride through its
// lifecycle and drives the controls each role sees for it.
//
// The remote backend is the source of truth. Push events and polling both
// feed Tracker.Apply, which only ever moves a ride forward, so the two
// sources can race without harm.
package ridestate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/session"
	"github.com/example/ride-client/internal/storage"
)

var (
	ErrNoRide          = errors.New("no current ride")
	ErrNoOffer         = errors.New("no ride offer")
	ErrOfferExpired    = errors.New("ride offer expired")
	ErrAcceptInFlight  = errors.New("accept already in progress")
	ErrRideOutstanding = errors.New("a ride is already in progress")
	ErrStopsNotAllowed = errors.New("stops are only allowed on return rides")
	ErrNoEstimate      = errors.New("request a fare estimate first")
)

// API is the subset of the backend the ride views use.
type API interface {
	CurrentRide(ctx context.Context, rideID string) (*models.Ride, error)
	ConfirmRide(ctx context.Context, rideID string) error
	StartRide(ctx context.Context, rideID, otp string) error
	SubmitWaiting(ctx context.Context, rideID string, seconds int64) error
	EndRide(ctx context.Context, r api.EndRideRequest) (*models.Ride, error)
	FareEstimate(ctx context.Context, pickup, destination string) ([]models.FareOption, error)
	CreateRide(ctx context.Context, r api.RideRequest) (*models.Ride, error)
	ScheduleRide(ctx context.Context, r api.RideRequest) (*models.Ride, error)
	CreatePayment(ctx context.Context, rideID string) (*models.PaymentOrder, error)
}

// Session is read for the actor and told about auth failures.
type Session interface {
	Actor() *models.Actor
	Expired(err error) bool
}

// Deps bundles the collaborators shared by the ride views. Slot, Journal,
// Notifier and Logger default to in-memory or no-op implementations.
type Deps struct {
	API       API
	Session   Session
	Slot      storage.Slot
	Journal   storage.Journal
	Navigator session.Navigator
	Notifier  notify.Notifier
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Slot == nil {
		d.Slot = storage.NewMemorySlot()
	}
	if d.Journal == nil {
		d.Journal = storage.NewMemoryJournal()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Log{Logger: d.Logger}
	}
	if d.Navigator == nil {
		d.Navigator = session.NewRouter(session.ViewLogin, d.Logger)
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

func (d Deps) role() models.Role {
	if d.Session == nil {
		return ""
	}
	if a := d.Session.Actor(); a != nil {
		return a.Role
	}
	return ""
}

func (d Deps) actorID() string {
	if d.Session == nil {
		return ""
	}
	if a := d.Session.Actor(); a != nil {
		return a.ID
	}
	return ""
}

// actionFailed reports a failed user action. Auth failures send the actor
// to login; anything else is a transient notification and the state stays
// as it was.
func (d Deps) actionFailed(err error, msg string) error {
	if d.Session != nil && d.Session.Expired(err) {
		return err
	}
	d.Logger.Warn(msg, "error", err)
	d.Notifier.Notify(notify.Error, msg)
	return err
}
