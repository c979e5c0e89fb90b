package payment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/nexaric/portal/core"
)

var nowFunc = time.Now // mockable

// State of a payment handshake.
type State int

const (
	StateIdle State = iota
	StateCreatingOrder
	StateWidgetOpen
	StateVerifying
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{"idle", "creating_order", "widget_open", "verifying", "succeeded", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return StateIdle, errors.Errorf("unknown payment state %q", s)
}

// InFlight reports whether a handshake in this state still waits on the backend or the widget.
func (s State) InFlight() bool {
	return s == StateCreatingOrder || s == StateWidgetOpen || s == StateVerifying
}

func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	st, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

func (s State) Value() (driver.Value, error) { return s.String(), nil }

func (s *State) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return errors.Errorf("cannot scan %T into payment.State", src)
}

type (
	// Request is what the dashboard asks to pay.
	// Amounts are in the currency unit (rupees for INR); the backend converts to minor units.
	Request struct {
		Amount   decimal.Decimal `json:"amount" validate:"gt=0"`
		Currency string          `json:"currency" validate:"required,currency"`
		PayerID  string          `json:"payer_id" validate:"required,max=128,identifier"`
		Purpose  string          `json:"purpose" validate:"required,max=255"`
		FeeID    string          `json:"fee_id,omitempty" validate:"omitempty,max=128,identifier"`
		Discount decimal.Decimal `json:"discount" validate:"gte=0"`
		Fine     decimal.Decimal `json:"fine" validate:"gte=0"`
		Payer    Payer           `json:"payer"`
	}

	// Payer contact details, used to prefill the checkout widget.
	Payer struct {
		Name    string `json:"name,omitempty" validate:"max=255"`
		Email   string `json:"email,omitempty" validate:"omitempty,email"`
		Contact string `json:"contact,omitempty" validate:"max=32"`
	}

	// OrderHandle is the backend's answer to an order request.
	OrderHandle struct {
		OrderID  string `json:"order_id"`
		KeyID    string `json:"key_id"`
		Amount   int64  `json:"amount"` // minor units, as confirmed by the backend
		Currency string `json:"currency"`
		FeeID    string `json:"fee_id,omitempty"`
	}

	// Authorization is what the widget reports when the payer completes a payment.
	Authorization struct {
		OrderID   string `json:"razorpay_order_id"`
		PaymentID string `json:"razorpay_payment_id" validate:"required"`
		Signature string `json:"razorpay_signature" validate:"required"`
	}

	// GatewayFailure is the widget's payment.failed payload.
	GatewayFailure struct {
		Code        string          `json:"code"`
		Description string          `json:"description"`
		Source      string          `json:"source,omitempty"`
		Step        string          `json:"step,omitempty"`
		Reason      string          `json:"reason,omitempty"`
		Metadata    FailureMetadata `json:"metadata"`
	}

	FailureMetadata struct {
		OrderID   string `json:"order_id,omitempty"`
		PaymentID string `json:"payment_id,omitempty"`
	}

	// Result is sent to the backend for verification.
	Result struct {
		Authorization
		Request Request
	}

	// Outcome is the backend's verification verdict.
	Outcome struct {
		Success bool            `json:"success"`
		Message string          `json:"message,omitempty"`
		Payment json.RawMessage `json:"payment,omitempty"`
	}

	// CheckoutOptions configure the checkout widget.
	CheckoutOptions struct {
		Key         string            `json:"key"`
		Amount      int64             `json:"amount"`
		Currency    string            `json:"currency"`
		Name        string            `json:"name"`
		Description string            `json:"description"`
		OrderID     string            `json:"order_id"`
		Prefill     Payer             `json:"prefill"`
		Notes       map[string]string `json:"notes"`
		Theme       Theme             `json:"theme"`
	}

	Theme struct {
		Color string `json:"color,omitempty"`
	}

	// Checkout is returned once the widget is open.
	Checkout struct {
		HandshakeID string          `json:"handshake_id"`
		SessionID   string          `json:"session_id"`
		Options     CheckoutOptions `json:"options"`
	}

	// Receipt is a snapshot of a handshake.
	Receipt struct {
		HandshakeID string      `json:"handshake_id"`
		State       State       `json:"state"`
		Request     Request     `json:"request"`
		Order       OrderHandle `json:"order"`
		PaymentID   string      `json:"payment_id,omitempty"`
		Outcome     Outcome     `json:"outcome"`
		StartedAt   time.Time   `json:"started_at"`
		SettledAt   time.Time   `json:"settled_at"`
	}
)

// Clean normalises the free-text fields of the request.
func (r *Request) Clean() {
	r.Currency = strings.ToUpper(core.CleanString(r.Currency))
	r.PayerID = core.CleanString(r.PayerID)
	r.Purpose = core.CleanString(r.Purpose)
	r.FeeID = core.CleanString(r.FeeID)
	r.Payer.Name = core.CleanString(r.Payer.Name)
	r.Payer.Email = core.CleanString(r.Payer.Email, true /* lower */)
	r.Payer.Contact = core.CleanString(r.Payer.Contact)
}

func (r Request) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (a Authorization) Validate(validate *validator.Validate) error {
	return validate.Struct(a)
}
