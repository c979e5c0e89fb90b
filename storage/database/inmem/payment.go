package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

type paymentRepository struct {
	db *attemptTable
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *DB) *paymentRepository {
	return &paymentRepository{db: db.attempts}
}

func (repo *paymentRepository) SaveAttempt(_ context.Context, att payment.Attempt) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	att.CreatedAt = att.CreatedAt.UTC()
	att.UpdatedAt = att.UpdatedAt.UTC()
	if prev, ok := repo.db.table[att.ID]; ok {
		att.InitiatedBy = prev.InitiatedBy
		att.CreatedAt = prev.CreatedAt
	}
	repo.db.table[att.ID] = att
	return nil
}

func (repo *paymentRepository) GetAttempt(_ context.Context, id string) (payment.Attempt, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.table[id]; ok {
		return att, nil
	}
	return payment.Attempt{}, core.ErrNotFound
}

func (repo *paymentRepository) QueryAttempts(_ context.Context, filter payment.AttemptFilter, orderings ...core.DBOrdering) ([]payment.Attempt, error) {
	repo.db.RLock()
	atts := make([]payment.Attempt, 0, len(repo.db.table))
	for _, att := range repo.db.table {
		if filter.Match(att) {
			atts = append(atts, att)
		}
	}
	repo.db.RUnlock()

	ords := make([]core.DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if _, ok := payment.AttemptOrderings[ord.Field]; ok {
			ords = append(ords, ord)
		}
	}
	if len(ords) == 0 {
		ords = append(ords, payment.DefaultAttemptOrdering)
	}

	sort.SliceStable(atts, func(i, j int) bool {
		for _, ord := range ords {
			c := compareAttempts(atts[i], atts[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return atts, nil
}

func compareAttempts(a, b payment.Attempt, field string) int {
	switch field {
	case "created_at":
		return compareTimes(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareTimes(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "amount":
		return a.Amount.Cmp(b.Amount)
	case "payer_id":
		return strings.Compare(a.PayerID, b.PayerID)
	case "state":
		return strings.Compare(a.State.String(), b.State.String())
	}
	return 0
}

func compareTimes(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
