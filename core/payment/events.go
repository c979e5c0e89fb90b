package payment

import (
	"time"

	"github.com/pkg/errors"
)

// Event types
const (
	EventOpened    = "payment.opened"
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
	EventCancelled = "payment.cancelled"
)

// Event is published whenever a handshake opens the widget or settles.
type Event struct {
	Type        string    `json:"type"`
	HandshakeID string    `json:"handshake_id"`
	OrderID     string    `json:"order_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	PayerID     string    `json:"payer_id"`
	Purpose     string    `json:"purpose"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	State       State     `json:"state"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func NewEvent(r Receipt, err error) Event {
	evt := Event{
		HandshakeID: r.HandshakeID,
		OrderID:     r.Order.OrderID,
		PaymentID:   r.PaymentID,
		PayerID:     r.Request.PayerID,
		Purpose:     r.Request.Purpose,
		Amount:      r.Request.Amount.String(),
		Currency:    r.Request.Currency,
		State:       r.State,
		OccurredAt:  nowFunc().UTC(),
	}

	switch r.State {
	case StateSucceeded:
		evt.Type = EventSucceeded
	case StateFailed:
		evt.Type = EventFailed
	default:
		evt.Type = EventOpened
	}

	var perr *Error
	if errors.As(err, &perr) {
		if perr.Kind == KindUserCancelled {
			evt.Type = EventCancelled
		}
		evt.ErrorKind = perr.Kind.String()
		evt.ErrorCode = perr.Code
		evt.Message = perr.Message
		if evt.PaymentID == "" {
			evt.PaymentID = perr.PaymentID
		}
	} else if err != nil {
		evt.ErrorKind = KindUnexpected.String()
		evt.Message = err.Error()
	}
	return evt
}
