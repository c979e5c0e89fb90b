package payment

import (
	"context"

	"github.com/nexaric/portal/core"
)

type (
	// TokenFunc returns the bearer credential for backend calls.
	TokenFunc func(ctx context.Context) (string, error)

	// Backend is the payment API that issues orders and verifies signed payments.
	// Rejections are reported as *BackendError.
	Backend interface {
		CreateOrder(ctx context.Context, token string, req Request) (OrderHandle, error)
		// VerifyPayment returns the verdict; an Outcome with Success=false is not an error.
		VerifyPayment(ctx context.Context, token string, res Result) (Outcome, error)
	}

	// Callbacks receive the widget outcome. The first call settles the handshake;
	// later calls return ErrSettled. Each returns the handshake's terminal error, nil on success.
	Callbacks interface {
		Authorized(ctx context.Context, auth Authorization) error
		Failed(ctx context.Context, failure GatewayFailure) error
		Dismissed(ctx context.Context) error
	}

	// Widget is an open checkout widget.
	Widget interface {
		ID() string
		Close() error
	}

	// Gateway opens checkout widgets.
	Gateway interface {
		// Ready reports whether the vendor widget can be loaded at all.
		Ready(ctx context.Context) bool
		Open(ctx context.Context, opts CheckoutOptions, cb Callbacks) (Widget, error)
	}

	// Dispatcher routes widget events, received out of band, to the open widget's Callbacks.
	Dispatcher interface {
		Options(sessionID string) (CheckoutOptions, error)
		Authorize(ctx context.Context, sessionID string, auth Authorization) error
		Fail(ctx context.Context, sessionID string, failure GatewayFailure) error
		Dismiss(ctx context.Context, sessionID string) error
	}

	// Repository stores the ledger of handshake attempts.
	Repository interface {
		// SaveAttempt inserts or updates the attempt with the same ID. CreatedAt is kept from the first save.
		SaveAttempt(ctx context.Context, att Attempt) error
		GetAttempt(ctx context.Context, id string) (Attempt, error)
		QueryAttempts(ctx context.Context, filter AttemptFilter, orderings ...core.DBOrdering) ([]Attempt, error)
	}

	Publisher interface {
		Publish(ctx context.Context, evt Event) error
	}
)
