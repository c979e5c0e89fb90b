package payment

import (
	"context"

	"github.com/pkg/errors"
)

// handshake is one run of the controller. It implements Callbacks for the widget it opened.
// All fields are guarded by the controller's mutex.
type handshake struct {
	c       *Controller
	state   State
	receipt Receipt
	err     error
	widget  Widget
	done    chan struct{}
}

var _ Callbacks = (*handshake)(nil)

// transition moves from -> to and reports whether the handshake was in from.
func (hs *handshake) transition(from, to State) bool {
	if hs.state != from {
		return false
	}
	hs.state = to
	hs.receipt.State = to
	return true
}

// settle moves the handshake from `from` to a terminal state, tears the widget down
// and fires exactly one hook. It returns ErrSettled when the handshake left `from` already.
func (hs *handshake) settle(from, to State, err error) error {
	c := hs.c

	c.mu.Lock()
	if !hs.transition(from, to) {
		c.mu.Unlock()
		return ErrSettled
	}
	hs.receipt.SettledAt = nowFunc().UTC()
	hs.err = err
	w := hs.widget
	hs.widget = nil
	receipt := hs.receipt
	close(hs.done)
	c.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}

	hooks := c.opts.Hooks
	if to == StateSucceeded {
		if hooks.OnSuccess != nil {
			hooks.OnSuccess(receipt)
		}
	} else if hooks.OnFailure != nil {
		hooks.OnFailure(receipt, err)
	}
	return err
}

// Authorized verifies the payment the widget reports with the backend.
// Verification outlives ctx's cancellation: the payment is captured at this point.
func (hs *handshake) Authorized(ctx context.Context, auth Authorization) error {
	c := hs.c

	c.mu.Lock()
	if !hs.transition(StateWidgetOpen, StateVerifying) {
		c.mu.Unlock()
		return ErrSettled
	}
	hs.receipt.PaymentID = auth.PaymentID
	req, order := hs.receipt.Request, hs.receipt.Order
	c.mu.Unlock()

	if req.FeeID == "" {
		req.FeeID = order.FeeID
	}
	verifyErr := func(msg string, err error) error {
		return hs.settle(StateVerifying, StateFailed, &Error{
			Kind:      KindVerificationFailed,
			Message:   msg,
			OrderID:   order.OrderID,
			PaymentID: auth.PaymentID,
			Err:       err,
		})
	}

	if auth.OrderID == "" {
		auth.OrderID = order.OrderID
	}
	if auth.OrderID != order.OrderID {
		return verifyErr("payment does not belong to this order", errors.Errorf("authorized order %q, expected %q", auth.OrderID, order.OrderID))
	}

	ctx = context.WithoutCancel(ctx)
	token, err := c.token(ctx)
	if err != nil {
		return verifyErr("reading credentials", err)
	}

	outcome, err := c.backend.VerifyPayment(ctx, token, Result{Authorization: auth, Request: req})
	if err != nil {
		return verifyErr(backendMessage(err, "verification request failed"), err)
	}

	c.mu.Lock()
	hs.receipt.Outcome = outcome
	c.mu.Unlock()

	if !outcome.Success {
		return verifyErr(firstNonEmpty(outcome.Message, "payment could not be verified"), nil)
	}
	return hs.settle(StateVerifying, StateSucceeded, nil)
}

// Failed records the widget's payment failure. No verification is attempted.
func (hs *handshake) Failed(_ context.Context, failure GatewayFailure) error {
	hs.c.mu.Lock()
	orderID := hs.receipt.Order.OrderID
	if failure.Metadata.PaymentID != "" && hs.state == StateWidgetOpen {
		hs.receipt.PaymentID = failure.Metadata.PaymentID
	}
	hs.c.mu.Unlock()

	return hs.settle(StateWidgetOpen, StateFailed, &Error{
		Kind:        KindGatewayFailure,
		Message:     firstNonEmpty(failure.Reason, "payment failed"),
		OrderID:     orderID,
		PaymentID:   failure.Metadata.PaymentID,
		Code:        failure.Code,
		Description: failure.Description,
	})
}

// Dismissed records that the payer closed the widget.
func (hs *handshake) Dismissed(context.Context) error {
	hs.c.mu.Lock()
	orderID := hs.receipt.Order.OrderID
	hs.c.mu.Unlock()

	return hs.settle(StateWidgetOpen, StateFailed, &Error{
		Kind:    KindUserCancelled,
		Message: "payment cancelled by the payer",
		OrderID: orderID,
	})
}
