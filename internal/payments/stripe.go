package payments

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/ride-client/internal/models"
)

// StripeClient is a thin wrapper around stripe-go for PaymentIntent flows.
type StripeClient struct {
	newIntent    func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	cancelIntent func(string, *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// NewStripeClient initializes the stripe client with the given secret key.
func NewStripeClient(key string) *StripeClient {
	stripe.Key = key
	return &StripeClient{newIntent: paymentintent.New, cancelIntent: paymentintent.Cancel}
}

// CreateIntent creates an automatically confirmed PaymentIntent and returns
// its id and client secret.
func (s *StripeClient) CreateIntent(ctx context.Context, amount int64, currency, rideID string) (id, clientSecret string, err error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if rideID != "" {
		params.AddMetadata("ride_id", rideID)
	}
	pi, err := s.newIntent(params)
	if err != nil {
		return "", "", fmt.Errorf("create payment intent: %w", err)
	}
	return pi.ID, pi.ClientSecret, nil
}

// Cancel releases a PaymentIntent that will not be completed.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := s.cancelIntent(paymentIntentID, params)
	return err
}

// StripeCheckout pays an order through a Stripe PaymentIntent.
type StripeCheckout struct {
	Client   *StripeClient
	Launcher Launcher
}

func (c *StripeCheckout) Open(ctx context.Context, o models.PaymentOrder) error {
	if err := validOrder(o); err != nil {
		return err
	}
	currency := o.Currency
	if currency == "" {
		currency = "inr"
	}
	id, secret, err := c.Client.CreateIntent(ctx, o.Amount, currency, o.RideID)
	if err != nil {
		return err
	}
	err = c.Launcher.Launch(ctx, CheckoutRequest{
		Gateway:      "stripe",
		OrderID:      id,
		RideID:       o.RideID,
		Amount:       o.Amount,
		Currency:     currency,
		ClientSecret: secret,
	})
	if err != nil {
		_ = c.Client.Cancel(ctx, id)
	}
	return err
}
