package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

const attemptColumns = `id, initiated_by, payer_id, purpose, fee_id, amount, discount, fine, currency,
	order_id, payment_id, state, error_kind, error_code, message, created_at, updated_at`

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

// SaveAttempt upserts att. created_at is never overwritten.
func (repo paymentRepository) SaveAttempt(ctx context.Context, att payment.Attempt) error {
	att.CreatedAt = att.CreatedAt.UTC()
	att.UpdatedAt = att.UpdatedAt.UTC()

	q := `INSERT INTO payment_attempt (` + attemptColumns + `)
	VALUES (:id, :initiated_by, :payer_id, :purpose, :fee_id, :amount, :discount, :fine, :currency,
		:order_id, :payment_id, :state, :error_kind, :error_code, :message, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		fee_id = EXCLUDED.fee_id,
		order_id = EXCLUDED.order_id,
		payment_id = EXCLUDED.payment_id,
		state = EXCLUDED.state,
		error_kind = EXCLUDED.error_kind,
		error_code = EXCLUDED.error_code,
		message = EXCLUDED.message,
		updated_at = EXCLUDED.updated_at`

	if _, err := repo.db.NamedExecContext(ctx, q, att); err != nil {
		return errors.Wrap(err, "saving payment attempt")
	}
	return nil
}

func (repo paymentRepository) GetAttempt(ctx context.Context, id string) (payment.Attempt, error) {
	if _, err := uuid.Parse(id); err != nil {
		return payment.Attempt{}, core.ErrNotFound
	}

	var att payment.Attempt
	err := repo.db.GetContext(ctx, &att, `SELECT `+attemptColumns+` FROM payment_attempt WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return payment.Attempt{}, core.ErrNotFound
	}
	if err != nil {
		return payment.Attempt{}, errors.Wrap(err, "finding payment attempt")
	}
	return att, nil
}

func (repo paymentRepository) QueryAttempts(ctx context.Context, filter payment.AttemptFilter, orderings ...core.DBOrdering) ([]payment.Attempt, error) {
	where, args, err := attemptWhere(filter)
	if err != nil {
		return nil, errors.Wrap(err, "building attempt filter")
	}

	q := `SELECT ` + attemptColumns + ` FROM payment_attempt ` + where + ` ` +
		core.OrderBy(orderings, payment.AttemptOrderings, payment.DefaultAttemptOrdering)

	atts := make([]payment.Attempt, 0)
	if err = repo.db.SelectContext(ctx, &atts, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying payment attempts")
	}
	return atts, nil
}

// attemptWhere renders filter with ? placeholders.
func attemptWhere(filter payment.AttemptFilter) (string, []interface{}, error) {
	var (
		conds []string
		args  []interface{}
	)

	if s := core.CleanString(filter.Search); s != "" {
		val := "%" + s + "%"
		conds = append(conds, "(payer_id ILIKE ? OR purpose ILIKE ? OR order_id ILIKE ? OR payment_id ILIKE ?)")
		args = append(args, val, val, val, val)
	}
	if filter.PayerID != "" {
		conds = append(conds, "payer_id = ?")
		args = append(args, filter.PayerID)
	}
	if len(filter.States) > 0 {
		states := make([]string, 0, len(filter.States))
		for _, st := range filter.States {
			states = append(states, st.String())
		}
		cond, inArgs, err := sqlx.In("state IN (?)", states)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, k.String())
		}
		cond, inArgs, err := sqlx.In("error_kind IN (?)", kinds)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, filter.CreatedTo.UTC())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args, nil
}
