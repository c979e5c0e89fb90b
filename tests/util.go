package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
	"github.com/nexaric/portal/storage/database"
)

// PrepareDB opens the test database, migrated and emptied. Tests are skipped unless ENV=TEST.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("ENV") != "TEST" {
		t.Skip("set ENV=TEST to run database tests")
	}

	conf := core.NewConfig()
	if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	if _, err = db.Exec("TRUNCATE payment_attempt"); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}

// CreateAttempt saves a settled attempt. A kind marks it failed.
func CreateAttempt(
	t *testing.T,
	repo payment.Repository,
	payerID, purpose, amount string,
	kind *payment.Kind,
	createdAt ...time.Time,
) payment.Attempt {
	t.Helper()

	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	id := uuid.NewString()
	att := payment.Attempt{
		ID:          id,
		InitiatedBy: "admin_1",
		PayerID:     payerID,
		Purpose:     purpose,
		Amount:      decimal.RequireFromString(amount),
		Discount:    decimal.Zero,
		Fine:        decimal.Zero,
		Currency:    "INR",
		OrderID:     null.StringFrom("order_" + id[:8]),
		PaymentID:   null.StringFrom("pay_" + id[:8]),
		State:       payment.StateSucceeded,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
	}
	if kind != nil {
		att.State = payment.StateFailed
		att.ErrorKind = null.StringFrom(kind.String())
		att.Message = null.StringFrom(kind.String())
	}
	if err := repo.SaveAttempt(context.Background(), att); err != nil {
		t.Fatalf("CreateAttempt(): %v", err)
	}
	return att
}

// AttemptRepositoryTest exercises any payment.Repository against an empty store.
func AttemptRepositoryTest(t *testing.T, repo payment.Repository) {
	ctx := context.Background()
	kPtr := func(k payment.Kind) *payment.Kind { return &k }
	ids := func(atts []payment.Attempt) []string {
		out := make([]string, 0, len(atts))
		for _, a := range atts {
			out = append(out, a.ID)
		}
		return out
	}

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	a1 := CreateAttempt(t, repo, "STU-001", "semester", "2500", nil, base)
	a2 := CreateAttempt(t, repo, "STU-002", "hostel", "1200.50", kPtr(payment.KindVerificationFailed), base.Add(time.Hour))
	a3 := CreateAttempt(t, repo, "STU-001", "library", "90", kPtr(payment.KindUserCancelled), base.Add(2*time.Hour))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetAttempt(ctx, a2.ID)
		require.NoError(t, err)
		assert.Equal(t, a2.PayerID, got.PayerID)
		assert.True(t, a2.Amount.Equal(got.Amount))
		assert.Equal(t, a2.ErrorKind, got.ErrorKind)
		assert.True(t, a2.CreatedAt.Equal(got.CreatedAt))

		_, err = repo.GetAttempt(ctx, uuid.NewString())
		assert.Equal(t, core.ErrNotFound, err)
	})

	t.Run("upsert keeps created_at", func(t *testing.T) {
		upd := a1
		upd.State = payment.StateFailed
		upd.ErrorKind = null.StringFrom(payment.KindGatewayFailure.String())
		upd.CreatedAt = base.Add(24 * time.Hour)
		upd.UpdatedAt = base.Add(24 * time.Hour)
		require.NoError(t, repo.SaveAttempt(ctx, upd))

		got, err := repo.GetAttempt(ctx, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StateFailed, got.State)
		assert.True(t, a1.CreatedAt.Equal(got.CreatedAt))
		assert.True(t, upd.UpdatedAt.Equal(got.UpdatedAt))

		require.NoError(t, repo.SaveAttempt(ctx, a1))
	})

	tests := []struct {
		name      string
		filter    payment.AttemptFilter
		orderings []core.DBOrdering
		want      []string
	}{
		{name: "all, latest first", want: []string{a3.ID, a2.ID, a1.ID}},
		{
			name:      "oldest first",
			orderings: []core.DBOrdering{{Field: "created_at", Ascending: true}},
			want:      []string{a1.ID, a2.ID, a3.ID},
		},
		{
			name:      "by amount, unknown fields ignored",
			orderings: []core.DBOrdering{{Field: "password"}, {Field: "amount", Ascending: true}},
			want:      []string{a3.ID, a2.ID, a1.ID},
		},
		{name: "payer", filter: payment.AttemptFilter{PayerID: "STU-001"}, want: []string{a3.ID, a1.ID}},
		{name: "search", filter: payment.AttemptFilter{Search: "HOSTEL"}, want: []string{a2.ID}},
		{name: "search payment id", filter: payment.AttemptFilter{Search: a3.PaymentID.String}, want: []string{a3.ID}},
		{name: "state", filter: payment.AttemptFilter{States: []payment.State{payment.StateSucceeded}}, want: []string{a1.ID}},
		{
			name:   "kinds",
			filter: payment.AttemptFilter{Kinds: []payment.Kind{payment.KindVerificationFailed, payment.KindGatewayFailure}},
			want:   []string{a2.ID},
		},
		{
			name:   "created range",
			filter: payment.AttemptFilter{CreatedFrom: base.Add(30 * time.Minute), CreatedTo: base.Add(90 * time.Minute)},
			want:   []string{a2.ID},
		},
		{name: "no match", filter: payment.AttemptFilter{PayerID: "STU-404"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QueryAttempts(ctx, tt.filter, tt.orderings...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	t.Run("amounts keep their precision", func(t *testing.T) {
		att := CreateAttempt(t, repo, "STU-003", "lab", "0.001", nil)
		att.Discount = decimal.RequireFromString("0.125")
		att.Fine = decimal.RequireFromString("1234567890123.4567")
		require.NoError(t, repo.SaveAttempt(ctx, att))

		got, err := repo.GetAttempt(ctx, att.ID)
		require.NoError(t, err)
		assert.Equal(t, "0.001", got.Amount.String())
		assert.Equal(t, "0.125", got.Discount.String())
		assert.Equal(t, "1234567890123.4567", got.Fine.String())
	})
}
