package sqlxrepos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexaric/portal/core/payment"
	"github.com/nexaric/portal/tests"
)

func Test_attemptWhere(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   payment.AttemptFilter
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name: "empty",
		},
		{
			name:     "search",
			filter:   payment.AttemptFilter{Search: "  pay_1 "},
			wantSQL:  "WHERE (payer_id ILIKE ? OR purpose ILIKE ? OR order_id ILIKE ? OR payment_id ILIKE ?)",
			wantArgs: []interface{}{"%pay_1%", "%pay_1%", "%pay_1%", "%pay_1%"},
		},
		{
			name: "payer, states, kinds and range",
			filter: payment.AttemptFilter{
				PayerID:     "STU-001",
				States:      []payment.State{payment.StateFailed, payment.StateSucceeded},
				Kinds:       []payment.Kind{payment.KindVerificationFailed},
				CreatedFrom: from,
			},
			wantSQL:  "WHERE payer_id = ? AND state IN (?, ?) AND error_kind IN (?) AND created_at >= ?",
			wantArgs: []interface{}{"STU-001", "failed", "succeeded", "verification_failed", from},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := attemptWhere(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestPaymentRepository(t *testing.T) {
	db := testutil.PrepareDB(t)
	testutil.AttemptRepositoryTest(t, NewPaymentRepository(db))
}
