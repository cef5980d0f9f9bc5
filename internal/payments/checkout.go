// Package payments hands a ride's payment order to a hosted gateway
// checkout. Completion arrives later through Callback; nothing here waits
// for the customer to pay.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/ride-client/internal/models"
)

var ErrInvalidOrder = errors.New("invalid payment order")

// CheckoutRequest is everything a front end needs to open the gateway's
// checkout widget.
type CheckoutRequest struct {
	Gateway      string           `json:"gateway"`
	OrderID      string           `json:"order_id"`
	RideID       string           `json:"ride_id,omitempty"`
	Amount       int64            `json:"amount"`
	Currency     string           `json:"currency"`
	Options      *CheckoutOptions `json:"options,omitempty"`
	ClientSecret string           `json:"client_secret,omitempty"`
}

// Launcher shows a checkout to the customer.
type Launcher interface {
	Launch(ctx context.Context, req CheckoutRequest) error
}

type LauncherFunc func(ctx context.Context, req CheckoutRequest) error

func (f LauncherFunc) Launch(ctx context.Context, req CheckoutRequest) error { return f(ctx, req) }

// LogLauncher only logs the checkout; the CLI uses it to print what a UI
// would open.
type LogLauncher struct{ Logger *slog.Logger }

func (l LogLauncher) Launch(_ context.Context, req CheckoutRequest) error {
	l.Logger.Info("checkout ready", "gateway", req.Gateway, "order_id", req.OrderID,
		"amount", req.Amount, "currency", req.Currency)
	return nil
}

func validOrder(o models.PaymentOrder) error {
	if o.OrderID == "" || o.Amount <= 0 {
		return fmt.Errorf("order %q amount %d: %w", o.OrderID, o.Amount, ErrInvalidOrder)
	}
	return nil
}
