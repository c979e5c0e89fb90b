package paymentapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexaric/portal/core/payment"
)

func semesterFee() payment.Request {
	return payment.Request{
		Amount:   decimal.RequireFromString("2500"),
		Currency: "INR",
		PayerID:  "STU-001",
		Purpose:  "semester",
		FeeID:    "fee_42",
		Discount: decimal.RequireFromString("100"),
		Fine:     decimal.Zero,
	}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/api/", 5*time.Second)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{name: "absolute", baseURL: "https://cosmiccharm.in/api"},
		{name: "trailing slash", baseURL: "http://localhost:5000/api/"},
		{name: "relative", baseURL: "/api", wantErr: true},
		{name: "no host", baseURL: "https:///api", wantErr: true},
		{name: "empty", baseURL: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.baseURL, time.Second)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient(%q) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestClient_CreateOrder(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]interface{}
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, `{"success":true,"orderId":"order_1","key_id":"rzp_test","amount":250000,"currency":"INR","feeId":42}`)
	})

	order, err := c.CreateOrder(context.Background(), "tok", semesterFee())
	require.NoError(t, err)

	assert.Equal(t, "/api/payment/create-order", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, map[string]interface{}{
		"amount":    2500.0,
		"currency":  "INR",
		"studentId": "STU-001",
		"feeType":   "semester",
		"feeId":     "fee_42",
		"discount":  100.0,
		"fine":      0.0,
	}, gotBody)
	assert.Equal(t, payment.OrderHandle{
		OrderID:  "order_1",
		KeyID:    "rzp_test",
		Amount:   250000,
		Currency: "INR",
		FeeID:    "42",
	}, order)
}

func TestClient_CreateOrder_errors(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		contentType string
		body        string
		wantMsg     string
		wantStatus  int
	}{
		{
			name:        "rejected with message",
			code:        http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"success":false,"message":"Fee already paid"}`,
			wantMsg:     "Fee already paid",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "rejected without message",
			code:        http.StatusInternalServerError,
			contentType: "application/json",
			body:        `{}`,
			wantMsg:     "Failed to create order",
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "success false",
			code:        http.StatusOK,
			contentType: "application/json",
			body:        `{"success":false,"message":"Student not found"}`,
			wantMsg:     "Student not found",
		},
		{
			name:        "html",
			code:        http.StatusBadGateway,
			contentType: "text/html",
			body:        `<html>bad gateway</html>`,
			wantMsg:     "Server returned non-JSON response (text/html)",
			wantStatus:  http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.CreateOrder(context.Background(), "tok", semesterFee())

			var berr *payment.BackendError
			require.True(t, errors.As(err, &berr), "want *payment.BackendError, got %v", err)
			assert.Equal(t, tt.wantMsg, berr.Message)
			assert.Equal(t, tt.wantStatus, berr.StatusCode)
		})
	}
}

func TestClient_CreateOrder_fractionalAmount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"orderId":"order_1","key_id":"rzp_test","amount":2500.5,"currency":"INR"}`)
	})

	_, err := c.CreateOrder(context.Background(), "tok", semesterFee())
	require.Error(t, err)

	var berr *payment.BackendError
	assert.False(t, errors.As(err, &berr))
}

func TestClient_VerifyPayment(t *testing.T) {
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payment/verify-payment" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		writeJSON(w, http.StatusOK, `{"success":true,"message":"Payment verified","payment":{"id":"p1"}}`)
	})

	res := payment.Result{
		Authorization: payment.Authorization{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"},
		Request:       semesterFee(),
	}
	outcome, err := c.VerifyPayment(context.Background(), "tok", res)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "Payment verified", outcome.Message)
	assert.JSONEq(t, `{"id":"p1"}`, string(outcome.Payment))
	assert.Equal(t, "order_1", gotBody["razorpay_order_id"])
	assert.Equal(t, "pay_1", gotBody["razorpay_payment_id"])
	assert.Equal(t, "sig", gotBody["razorpay_signature"])
	assert.Equal(t, "STU-001", gotBody["studentId"])
	assert.Equal(t, "semester", gotBody["feeType"])
	assert.Equal(t, 2500.0, gotBody["amount"])
}

func TestClient_VerifyPayment_rejected(t *testing.T) {
	t.Run("well-formed verdict", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, `{"success":false,"message":"Invalid signature"}`)
		})
		outcome, err := c.VerifyPayment(context.Background(), "tok", payment.Result{Request: semesterFee()})
		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.Equal(t, "Invalid signature", outcome.Message)
	})

	t.Run("error status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, `{"error":"token expired"}`)
		})
		_, err := c.VerifyPayment(context.Background(), "tok", payment.Result{Request: semesterFee()})

		var berr *payment.BackendError
		require.True(t, errors.As(err, &berr))
		assert.Equal(t, "token expired", berr.Message)
		assert.Equal(t, http.StatusUnauthorized, berr.StatusCode)
	})
}
