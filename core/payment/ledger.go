package payment

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/nexaric/portal/core"
)

type (
	// Attempt is the ledger row of one handshake.
	Attempt struct {
		ID          string          `json:"id" db:"id"`
		InitiatedBy string          `json:"initiated_by" db:"initiated_by"`
		PayerID     string          `json:"payer_id" db:"payer_id"`
		Purpose     string          `json:"purpose" db:"purpose"`
		FeeID       null.String     `json:"fee_id" db:"fee_id"`
		Amount      decimal.Decimal `json:"amount" db:"amount"`
		Discount    decimal.Decimal `json:"discount" db:"discount"`
		Fine        decimal.Decimal `json:"fine" db:"fine"`
		Currency    string          `json:"currency" db:"currency"`
		OrderID     null.String     `json:"order_id" db:"order_id"`
		PaymentID   null.String     `json:"payment_id" db:"payment_id"`
		State       State           `json:"state" db:"state"`
		ErrorKind   null.String     `json:"error_kind" db:"error_kind"`
		ErrorCode   null.String     `json:"error_code" db:"error_code"`
		Message     null.String     `json:"message" db:"message"`
		CreatedAt   time.Time       `json:"created_at" db:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	}

	// AttemptFilter is ANDed. Search matches payer, purpose, order id or payment id, case-insensitively.
	AttemptFilter struct {
		Search      string
		PayerID     string
		States      []State
		Kinds       []Kind
		CreatedFrom time.Time
		CreatedTo   time.Time
	}
)

// AttemptOrderings maps the API ordering fields to ledger columns.
var AttemptOrderings = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"payer_id":   "payer_id",
	"state":      "state",
}

// DefaultAttemptOrdering lists the latest attempts first.
var DefaultAttemptOrdering = core.DBOrdering{Field: "created_at"}

// NewAttempt builds the ledger row for a handshake snapshot and its terminal error.
func NewAttempt(initiatedBy string, r Receipt, err error) Attempt {
	att := Attempt{
		ID:          r.HandshakeID,
		InitiatedBy: initiatedBy,
		PayerID:     r.Request.PayerID,
		Purpose:     r.Request.Purpose,
		FeeID:       nullString(firstNonEmpty(r.Request.FeeID, r.Order.FeeID)),
		Amount:      r.Request.Amount,
		Discount:    r.Request.Discount,
		Fine:        r.Request.Fine,
		Currency:    r.Request.Currency,
		OrderID:     nullString(r.Order.OrderID),
		PaymentID:   nullString(r.PaymentID),
		State:       r.State,
		CreatedAt:   r.StartedAt,
		UpdatedAt:   nowFunc().UTC(),
	}
	if r.Outcome.Message != "" {
		att.Message = null.StringFrom(r.Outcome.Message)
	}

	var perr *Error
	if errors.As(err, &perr) {
		att.ErrorKind = null.StringFrom(perr.Kind.String())
		att.ErrorCode = nullString(perr.Code)
		att.Message = null.StringFrom(perr.Error())
		if perr.PaymentID != "" {
			att.PaymentID = null.StringFrom(perr.PaymentID)
		}
	} else if err != nil {
		att.ErrorKind = null.StringFrom(KindUnexpected.String())
		att.Message = null.StringFrom(err.Error())
	}
	return att
}

// Match reports whether att passes the filter.
func (f AttemptFilter) Match(att Attempt) bool {
	if f.PayerID != "" && att.PayerID != f.PayerID {
		return false
	}
	if len(f.States) > 0 && !containsState(f.States, att.State) {
		return false
	}
	if len(f.Kinds) > 0 {
		kind, err := ParseKind(att.ErrorKind.String)
		if !att.ErrorKind.Valid || err != nil || !containsKind(f.Kinds, kind) {
			return false
		}
	}
	if !f.CreatedFrom.IsZero() && att.CreatedAt.Before(f.CreatedFrom) {
		return false
	}
	if !f.CreatedTo.IsZero() && att.CreatedAt.After(f.CreatedTo) {
		return false
	}
	if s := strings.ToLower(core.CleanString(f.Search)); s != "" {
		fields := []string{att.PayerID, att.Purpose, att.OrderID.String, att.PaymentID.String}
		for _, fld := range fields {
			if strings.Contains(strings.ToLower(fld), s) {
				return true
			}
		}
		return false
	}
	return true
}

func containsState(states []State, s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, kd := range kinds {
		if kd == k {
			return true
		}
	}
	return false
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
