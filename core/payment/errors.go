package payment

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrBusy            = errors.New("a payment is already in progress")
	ErrSettled         = errors.New("payment handshake already settled")
	ErrNoHandshake     = errors.New("no payment handshake started")
	ErrSessionNotFound = errors.New("checkout session not found")
)

// Kind tags the ways a handshake can fail.
type Kind int

const (
	KindUnexpected Kind = iota
	KindGatewayUnavailable
	KindOrderCreationFailed
	KindUserCancelled
	KindGatewayFailure
	KindVerificationFailed
)

var kindNames = [...]string{
	"unexpected",
	"gateway_unavailable",
	"order_creation_failed",
	"user_cancelled",
	"gateway_failure",
	"verification_failed",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return KindUnexpected, errors.Errorf("unknown payment error kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// Error is the terminal error of a failed handshake.
type Error struct {
	Kind        Kind
	Message     string
	OrderID     string
	PaymentID   string // set once the gateway captured a payment
	Code        string // gateway error code
	Description string // gateway error description
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Code != "" {
		_, _ = fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.PaymentID != "" {
		_, _ = fmt.Fprintf(&b, " (payment id %s)", e.PaymentID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Alarming is false for outcomes the payer chose, like closing the widget.
func (e *Error) Alarming() bool { return e.Kind != KindUserCancelled }

// UserMessage is the text shown to the payer.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindGatewayUnavailable:
		return "Payment gateway is not available. Please refresh the page and try again."
	case KindOrderCreationFailed:
		return "Could not initiate payment: " + e.Message
	case KindUserCancelled:
		return "Payment cancelled."
	case KindGatewayFailure:
		msg := "Payment failed: " + firstNonEmpty(e.Description, e.Message)
		if e.PaymentID != "" {
			msg += "\nPayment ID: " + e.PaymentID
		}
		return msg
	case KindVerificationFailed:
		return fmt.Sprintf(
			"Payment verification failed: %s\nPayment ID: %s\nPlease contact support with this payment ID.",
			e.Message, e.PaymentID,
		)
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// KindOf returns the Kind of err when it is, or wraps, an *Error.
func KindOf(err error) (Kind, bool) {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind, true
	}
	return KindUnexpected, false
}

// IsCancelled reports whether err means the payer closed the widget.
func IsCancelled(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindUserCancelled
}

// BackendError is returned by Backend implementations when the API answers with an error.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// backendMessage extracts the API's own message from err, when there is one.
func backendMessage(err error, fallback string) string {
	var berr *BackendError
	if errors.As(err, &berr) && berr.Message != "" {
		return berr.Message
	}
	return fallback
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// ErrorView is the JSON shape of a handshake error.
type ErrorView struct {
	Kind        Kind   `json:"kind"`
	Error       string `json:"error"`
	Alert       bool   `json:"alert"`
	OrderID     string `json:"order_id,omitempty"`
	PaymentID   string `json:"payment_id,omitempty"`
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
}

func (e *Error) View() *ErrorView {
	return &ErrorView{
		Kind:        e.Kind,
		Error:       e.UserMessage(),
		Alert:       e.Alarming(),
		OrderID:     e.OrderID,
		PaymentID:   e.PaymentID,
		Code:        e.Code,
		Description: e.Description,
	}
}

// ViewOf returns the view of err's *Error, nil when there is none.
func ViewOf(err error) *ErrorView {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.View()
	}
	return nil
}
