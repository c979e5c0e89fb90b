package payment

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type (
	// Hooks are told how each handshake ended. Exactly one of OnSuccess/OnFailure
	// fires per handshake; OnOpen fires before the widget opens.
	Hooks struct {
		OnOpen    func(Receipt)
		OnSuccess func(Receipt)
		OnFailure func(Receipt, error)
	}

	Options struct {
		BrandName  string
		ThemeColor string
		Hooks      Hooks
	}

	// Controller runs one payment handshake at a time:
	// create an order, open the checkout widget, verify what the widget reports.
	Controller struct {
		backend  Backend
		gateway  Gateway
		validate *validator.Validate
		token    TokenFunc
		opts     Options

		mu      sync.Mutex
		current *handshake
	}
)

func NewController(backend Backend, gateway Gateway, validate *validator.Validate, token TokenFunc, opts Options) *Controller {
	return &Controller{
		backend:  backend,
		gateway:  gateway,
		validate: validate,
		token:    token,
		opts:     opts,
	}
}

// Initiate starts a handshake for req and returns once the widget is open.
// It fails fast on an invalid request and with ErrBusy while another handshake is in flight;
// neither starts a handshake. Any other failure settles the handshake and is also returned.
func (c *Controller) Initiate(ctx context.Context, req Request) (Checkout, error) {
	req.Clean()
	if err := req.Validate(c.validate); err != nil {
		return Checkout{}, err
	}

	c.mu.Lock()
	if c.current != nil && c.current.state.InFlight() {
		c.mu.Unlock()
		return Checkout{}, ErrBusy
	}
	hs := &handshake{
		c:     c,
		state: StateCreatingOrder,
		done:  make(chan struct{}),
		receipt: Receipt{
			HandshakeID: uuid.NewString(),
			State:       StateCreatingOrder,
			Request:     req,
			StartedAt:   nowFunc().UTC(),
		},
	}
	c.current = hs
	c.mu.Unlock()

	if !c.gateway.Ready(ctx) {
		return Checkout{}, hs.settle(StateCreatingOrder, StateFailed, &Error{
			Kind:    KindGatewayUnavailable,
			Message: "checkout widget could not be loaded",
		})
	}

	token, err := c.token(ctx)
	if err != nil {
		return Checkout{}, hs.settle(StateCreatingOrder, StateFailed, &Error{
			Kind:    KindUnexpected,
			Message: "reading credentials",
			Err:     err,
		})
	}

	order, err := c.backend.CreateOrder(ctx, token, req)
	if err != nil {
		return Checkout{}, hs.settle(StateCreatingOrder, StateFailed, &Error{
			Kind:    KindOrderCreationFailed,
			Message: backendMessage(err, "order request failed"),
			Err:     err,
		})
	}
	if order.OrderID == "" || order.KeyID == "" {
		return Checkout{}, hs.settle(StateCreatingOrder, StateFailed, &Error{
			Kind:    KindOrderCreationFailed,
			Message: "invalid order response: missing required fields",
			OrderID: order.OrderID,
		})
	}
	if order.Currency == "" {
		order.Currency = req.Currency
	}
	opts := c.checkoutOptions(req, order)

	c.mu.Lock()
	hs.receipt.Order = order
	hs.transition(StateCreatingOrder, StateWidgetOpen)
	receipt := hs.receipt
	c.mu.Unlock()

	if c.opts.Hooks.OnOpen != nil {
		c.opts.Hooks.OnOpen(receipt)
	}

	w, err := c.gateway.Open(ctx, opts, hs)
	if err != nil {
		return Checkout{}, hs.settle(StateWidgetOpen, StateFailed, &Error{
			Kind:    KindGatewayUnavailable,
			Message: "checkout widget could not be opened",
			OrderID: order.OrderID,
			Err:     err,
		})
	}

	c.mu.Lock()
	settled := hs.state.Terminal()
	if !settled {
		hs.widget = w
	}
	c.mu.Unlock()
	if settled { // the widget reported before Open returned
		_ = w.Close()
	}

	return Checkout{
		HandshakeID: receipt.HandshakeID,
		SessionID:   w.ID(),
		Options:     opts,
	}, nil
}

// State returns the state of the latest handshake, StateIdle before the first one.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.state
}

// Snapshot returns the latest handshake and, once it failed, its error.
func (c *Controller) Snapshot() (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Receipt{State: StateIdle}, nil
	}
	return c.current.receipt, c.current.err
}

// SessionID returns the open widget's ID, empty when no widget is open.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.widget == nil {
		return ""
	}
	return c.current.widget.ID()
}

// Wait blocks until the latest handshake settles.
func (c *Controller) Wait(ctx context.Context) (Receipt, error) {
	c.mu.Lock()
	hs := c.current
	c.mu.Unlock()
	if hs == nil {
		return Receipt{}, ErrNoHandshake
	}

	select {
	case <-hs.done:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return hs.receipt, hs.err
}

func (c *Controller) checkoutOptions(req Request, order OrderHandle) CheckoutOptions {
	prefill := req.Payer
	if prefill.Name == "" {
		prefill.Name = "Student"
	}
	feeID := req.FeeID
	if feeID == "" {
		feeID = order.FeeID
	}
	return CheckoutOptions{
		Key:         order.KeyID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Name:        c.opts.BrandName,
		Description: "Payment for " + req.Purpose,
		OrderID:     order.OrderID,
		Prefill:     prefill,
		Notes: map[string]string{
			"student_id": req.PayerID,
			"fee_type":   req.Purpose,
			"fee_id":     feeID,
		},
		Theme: Theme{Color: c.opts.ThemeColor},
	}
}
