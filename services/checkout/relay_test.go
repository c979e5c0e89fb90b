package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/payment"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func newRelay(scriptURL string, sessionTTL, probeTTL time.Duration) *Relay {
	conf := &core.Config{}
	conf.Checkout.ScriptURL = scriptURL
	conf.Checkout.SessionTTL = sessionTTL
	conf.Checkout.ProbeTTL = probeTTL
	return NewRelay(conf, nopLogger{})
}

type recorder struct {
	mu         sync.Mutex
	authorized []payment.Authorization
	failed     []payment.GatewayFailure
	dismissed  int
	onDismiss  chan struct{}
}

func (r *recorder) Authorized(_ context.Context, auth payment.Authorization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorized = append(r.authorized, auth)
	return nil
}

func (r *recorder) Failed(_ context.Context, failure payment.GatewayFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, failure)
	return nil
}

func (r *recorder) Dismissed(context.Context) error {
	r.mu.Lock()
	r.dismissed++
	ch := r.onDismiss
	r.mu.Unlock()
	if ch != nil {
		close(ch)
	}
	return nil
}

func TestRelay_Ready(t *testing.T) {
	var (
		hits   int32
		status int32 = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	r := newRelay(srv.URL+"/v1/checkout.js", 0, time.Minute)

	assert.True(t, r.Ready(context.Background()))
	atomic.StoreInt32(&status, http.StatusNotFound)
	assert.True(t, r.Ready(context.Background()), "cached probe")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	assert.False(t, r.Ready(context.Background()))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRelay_Ready_cancelledCaller(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRelay(srv.URL+"/v1/checkout.js", 0, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, r.Ready(ctx), "a cancelled caller does not abort the probe")
	assert.True(t, r.Ready(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestRelay_Ready_cancelledCallerNotCached(t *testing.T) {
	var (
		hits   int32
		status int32 = http.StatusServiceUnavailable
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	r := newRelay(srv.URL+"/v1/checkout.js", 0, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, r.Ready(ctx))

	atomic.StoreInt32(&status, http.StatusOK)
	assert.True(t, r.Ready(context.Background()), "failure seen by a cancelled caller is not cached")
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestRelay_Ready_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := newRelay(url, 0, 0)
	assert.False(t, r.Ready(context.Background()))

	assert.True(t, newRelay("", 0, 0).Ready(context.Background()), "empty script URL skips the probe")
}

func TestRelay_dispatch(t *testing.T) {
	r := newRelay("", 0, 0)
	cb := &recorder{}
	opts := payment.CheckoutOptions{Key: "rzp_test", OrderID: "order_1", Amount: 250000, Currency: "INR"}

	w, err := r.Open(context.Background(), opts, cb)
	require.NoError(t, err)
	require.NotEmpty(t, w.ID())
	assert.Equal(t, 1, r.Len())

	got, err := r.Options(w.ID())
	require.NoError(t, err)
	assert.Equal(t, opts, got)

	auth := payment.Authorization{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}
	require.NoError(t, r.Authorize(context.Background(), w.ID(), auth))
	failure := payment.GatewayFailure{Code: "BAD_REQUEST_ERROR"}
	require.NoError(t, r.Fail(context.Background(), w.ID(), failure))
	require.NoError(t, r.Dismiss(context.Background(), w.ID()))

	assert.Equal(t, []payment.Authorization{auth}, cb.authorized)
	assert.Equal(t, []payment.GatewayFailure{failure}, cb.failed)
	assert.Equal(t, 1, cb.dismissed)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Equal(t, 0, r.Len())

	_, err = r.Options(w.ID())
	assert.Equal(t, payment.ErrSessionNotFound, err)
	assert.Equal(t, payment.ErrSessionNotFound, r.Authorize(context.Background(), w.ID(), auth))
	assert.Equal(t, payment.ErrSessionNotFound, r.Fail(context.Background(), "nope", failure))
	assert.Equal(t, payment.ErrSessionNotFound, r.Dismiss(context.Background(), "nope"))
}

func TestRelay_expiry(t *testing.T) {
	r := newRelay("", 20*time.Millisecond, 0)
	cb := &recorder{onDismiss: make(chan struct{})}

	_, err := r.Open(context.Background(), payment.CheckoutOptions{OrderID: "order_1"}, cb)
	require.NoError(t, err)

	select {
	case <-cb.onDismiss:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not expire")
	}
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRelay_Close(t *testing.T) {
	r := newRelay("", time.Hour, 0)
	cb1, cb2 := &recorder{}, &recorder{}

	_, err := r.Open(context.Background(), payment.CheckoutOptions{}, cb1)
	require.NoError(t, err)
	_, err = r.Open(context.Background(), payment.CheckoutOptions{}, cb2)
	require.NoError(t, err)

	r.Close()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, cb1.dismissed)
	assert.Equal(t, 1, cb2.dismissed)
}

type stubBackend struct{}

func (stubBackend) CreateOrder(context.Context, string, payment.Request) (payment.OrderHandle, error) {
	return payment.OrderHandle{OrderID: "order_1", KeyID: "rzp_test", Amount: 250000, Currency: "INR"}, nil
}

func (stubBackend) VerifyPayment(context.Context, string, payment.Result) (payment.Outcome, error) {
	return payment.Outcome{Success: true, Message: "Payment verified"}, nil
}

func TestRelay_withController(t *testing.T) {
	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	r := newRelay("", time.Hour, 0)
	token := func(context.Context) (string, error) { return "tok", nil }
	ctrl := payment.NewController(stubBackend{}, r, validate, token, payment.Options{BrandName: "Portal"})

	co, err := ctrl.Initiate(context.Background(), payment.Request{
		Amount:   decimal.RequireFromString("2500"),
		Currency: "INR",
		PayerID:  "STU-001",
		Purpose:  "semester",
	})
	require.NoError(t, err)
	assert.Equal(t, co.SessionID, ctrl.SessionID())
	assert.Equal(t, 1, r.Len())

	err = r.Authorize(context.Background(), co.SessionID, payment.Authorization{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, payment.StateSucceeded, ctrl.State())
	assert.Equal(t, 0, r.Len(), "settling closes the session")

	err = r.Dismiss(context.Background(), co.SessionID)
	assert.Equal(t, payment.ErrSessionNotFound, err)
}
