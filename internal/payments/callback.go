package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrBadSignature = errors.New("payment signature mismatch")

// Callback is the gateway's completion notice for an order.
type Callback struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

// ParseCallback reads a callback posted either as JSON or as a form.
func ParseCallback(r *http.Request) (Callback, error) {
	var cb Callback
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
			return cb, fmt.Errorf("decode callback: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return cb, fmt.Errorf("parse callback: %w", err)
		}
		cb = Callback{
			OrderID:   r.PostForm.Get("razorpay_order_id"),
			PaymentID: r.PostForm.Get("razorpay_payment_id"),
			Signature: r.PostForm.Get("razorpay_signature"),
		}
	}
	if cb.OrderID == "" || cb.PaymentID == "" {
		return cb, fmt.Errorf("callback without order or payment id: %w", ErrInvalidOrder)
	}
	return cb, nil
}

// Verify checks the HMAC-SHA256 signature Razorpay puts on
// "order_id|payment_id" using the account secret.
func (c Callback) Verify(secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(c.OrderID + "|" + c.PaymentID))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(c.Signature)) {
		return ErrBadSignature
	}
	return nil
}
