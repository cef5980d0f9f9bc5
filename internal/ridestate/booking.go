package ridestate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/notify"
	"github.com/example/ride-client/internal/session"
)

// Booker is the rider's request flow: estimate, then book or schedule.
type Booker struct {
	deps Deps

	mu          sync.Mutex
	pickup      string
	destination string
	options     []models.FareOption
}

func NewBooker(deps Deps) *Booker {
	return &Booker{deps: deps.withDefaults()}
}

// Estimate fetches fare options. Empty fields fail locally without a
// request.
func (b *Booker) Estimate(ctx context.Context, pickup, destination string) ([]models.FareOption, error) {
	pickup, destination = strings.TrimSpace(pickup), strings.TrimSpace(destination)
	if pickup == "" || destination == "" {
		return nil, fmt.Errorf("pickup and destination are required: %w", api.ErrInvalidInput)
	}
	opts, err := b.deps.API.FareEstimate(ctx, pickup, destination)
	if err != nil {
		return nil, b.deps.actionFailed(err, "Error fetching fare")
	}
	b.mu.Lock()
	b.pickup, b.destination = pickup, destination
	b.options = slices.Clone(opts)
	b.mu.Unlock()
	return opts, nil
}

// Options returns the options of the last estimate.
func (b *Booker) Options() []models.FareOption {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.options)
}

// Book requests a normal ride with the chosen vehicle type.
func (b *Booker) Book(ctx context.Context, vt models.VehicleType) (*models.Ride, error) {
	return b.request(ctx, vt, false)
}

// Schedule requests a return ride, the kind that accepts stops.
func (b *Booker) Schedule(ctx context.Context, vt models.VehicleType) (*models.Ride, error) {
	return b.request(ctx, vt, true)
}

func (b *Booker) request(ctx context.Context, vt models.VehicleType, scheduled bool) (*models.Ride, error) {
	if !vt.Valid() {
		return nil, fmt.Errorf("unknown vehicle type %q: %w", vt, api.ErrInvalidInput)
	}
	b.mu.Lock()
	req := api.RideRequest{Pickup: b.pickup, Destination: b.destination, VehicleType: vt}
	b.mu.Unlock()
	if req.Pickup == "" || req.Destination == "" {
		return nil, ErrNoEstimate
	}
	if err := b.checkOutstanding(ctx); err != nil {
		return nil, err
	}

	var (
		ride *models.Ride
		err  error
	)
	if scheduled {
		ride, err = b.deps.API.ScheduleRide(ctx, req)
	} else {
		ride, err = b.deps.API.CreateRide(ctx, req)
	}
	if err != nil {
		return nil, b.deps.actionFailed(err, "Error creating ride")
	}
	if ride == nil || ride.ID == "" {
		return nil, b.deps.actionFailed(ErrNoRide, "Error creating ride")
	}
	if err := b.deps.Slot.Store(ctx, ride.ID); err != nil {
		b.deps.Logger.Warn("store ride id failed", "error", err)
	}
	b.deps.Notifier.Notify(notify.Success, "Ride requested")
	b.deps.Navigator.Navigate(session.Target{View: session.ViewWaiting, RideID: ride.ID})
	return ride, nil
}

// checkOutstanding refuses a booking while the slot names a ride that is
// not yet terminal. A slot pointing at a ride the backend no longer knows
// is cleared.
func (b *Booker) checkOutstanding(ctx context.Context) error {
	id, err := b.deps.Slot.Load(ctx)
	if err != nil || id == "" {
		return err
	}
	ride, err := b.deps.API.CurrentRide(ctx, id)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return b.deps.Slot.Clear(ctx)
	case err != nil:
		return b.deps.actionFailed(err, "Error checking current ride")
	case ride != nil && !ride.Status.Terminal():
		return fmt.Errorf("ride %s is %s: %w", id, ride.Status, ErrRideOutstanding)
	}
	return nil
}
