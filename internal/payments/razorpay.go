package payments

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/ride-client/internal/models"
)

type Theme struct {
	Color string `json:"color"`
}

// CheckoutOptions is the option object the Razorpay checkout script takes.
type CheckoutOptions struct {
	Key      string `json:"key"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
	OrderID  string `json:"order_id"`
	Theme    Theme  `json:"theme"`
}

// RazorpayCheckout opens orders created by the backend's payment endpoint
// in Razorpay's hosted checkout.
type RazorpayCheckout struct {
	Key      string
	Name     string
	Launcher Launcher
}

func (r *RazorpayCheckout) Options(o models.PaymentOrder) CheckoutOptions {
	name := r.Name
	if name == "" {
		name = "My Ride App"
	}
	return CheckoutOptions{
		Key:      r.Key,
		Amount:   o.Amount,
		Currency: o.Currency,
		Name:     name,
		OrderID:  o.OrderID,
		Theme:    Theme{Color: "#3399cc"},
	}
}

func (r *RazorpayCheckout) Open(ctx context.Context, o models.PaymentOrder) error {
	if err := validOrder(o); err != nil {
		return err
	}
	opts := r.Options(o)
	return r.Launcher.Launch(ctx, CheckoutRequest{
		Gateway:  "razorpay",
		OrderID:  o.OrderID,
		RideID:   o.RideID,
		Amount:   o.Amount,
		Currency: o.Currency,
		Options:  &opts,
	})
}

// CheckoutURL points a browser at the view server page that renders the
// checkout for an order.
func CheckoutURL(viewBase string, o models.PaymentOrder) string {
	q := url.Values{
		"order_id": {o.OrderID},
		"amount":   {strconv.FormatInt(o.Amount, 10)},
		"currency": {o.Currency},
	}
	return strings.TrimRight(viewBase, "/") + "/payments/checkout?" + q.Encode()
}
