// Package paymentapi is the HTTP client of the backend payment API.
package paymentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nexaric/portal/core/payment"
)

const (
	createOrderPath   = "/payment/create-order"
	verifyPaymentPath = "/payment/verify-payment"

	maxResponseSize = 1 << 20
)

type (
	Client struct {
		base *url.URL
		http *http.Client
	}

	createOrderBody struct {
		Amount    json.Number `json:"amount"`
		Currency  string      `json:"currency"`
		StudentID string      `json:"studentId"`
		FeeType   string      `json:"feeType"`
		FeeID     string      `json:"feeId,omitempty"`
		Discount  json.Number `json:"discount"`
		Fine      json.Number `json:"fine"`
	}

	createOrderResponse struct {
		Success  bool            `json:"success"`
		Message  string          `json:"message"`
		OrderID  string          `json:"orderId"`
		KeyID    string          `json:"key_id"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		FeeID    flexString      `json:"feeId"`
	}

	verifyPaymentBody struct {
		OrderID   string      `json:"razorpay_order_id"`
		PaymentID string      `json:"razorpay_payment_id"`
		Signature string      `json:"razorpay_signature"`
		StudentID string      `json:"studentId"`
		FeeType   string      `json:"feeType"`
		Amount    json.Number `json:"amount"`
		FeeID     string      `json:"feeId,omitempty"`
		Discount  json.Number `json:"discount"`
		Fine      json.Number `json:"fine"`
	}

	errorResponse struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	// flexString accepts JSON strings and numbers.
	flexString string
)

var _ payment.Backend = (*Client)(nil)

// NewClient returns a client for the API rooted at baseURL, which must be absolute.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, errors.Wrap(err, "parsing payment API base URL")
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, errors.Errorf("payment API base URL must be absolute, got %q", baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	return &Client{
		base: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path += path
	return u.String()
}

// CreateOrder asks the backend for an order. The amount is sent in the request's currency unit.
func (c *Client) CreateOrder(ctx context.Context, token string, req payment.Request) (payment.OrderHandle, error) {
	body := createOrderBody{
		Amount:    json.Number(req.Amount.String()),
		Currency:  req.Currency,
		StudentID: req.PayerID,
		FeeType:   req.Purpose,
		FeeID:     req.FeeID,
		Discount:  json.Number(req.Discount.String()),
		Fine:      json.Number(req.Fine.String()),
	}

	var res createOrderResponse
	if err := c.post(ctx, createOrderPath, token, body, &res, "Failed to create order"); err != nil {
		return payment.OrderHandle{}, err
	}
	if !res.Success {
		return payment.OrderHandle{}, &payment.BackendError{Message: firstNonEmpty(res.Message, "Failed to create order")}
	}
	if !res.Amount.Equal(res.Amount.Truncate(0)) {
		return payment.OrderHandle{}, errors.Errorf("order amount %s is not in minor units", res.Amount)
	}

	return payment.OrderHandle{
		OrderID:  res.OrderID,
		KeyID:    res.KeyID,
		Amount:   res.Amount.IntPart(),
		Currency: res.Currency,
		FeeID:    string(res.FeeID),
	}, nil
}

// VerifyPayment submits the widget's signed result. A well-formed rejection is an Outcome, not an error.
func (c *Client) VerifyPayment(ctx context.Context, token string, res payment.Result) (payment.Outcome, error) {
	body := verifyPaymentBody{
		OrderID:   res.OrderID,
		PaymentID: res.PaymentID,
		Signature: res.Signature,
		StudentID: res.Request.PayerID,
		FeeType:   res.Request.Purpose,
		Amount:    json.Number(res.Request.Amount.String()),
		FeeID:     res.Request.FeeID,
		Discount:  json.Number(res.Request.Discount.String()),
		Fine:      json.Number(res.Request.Fine.String()),
	}

	var outcome payment.Outcome
	if err := c.post(ctx, verifyPaymentPath, token, body, &outcome, "Payment verification failed"); err != nil {
		return payment.Outcome{}, err
	}
	return outcome, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out interface{}, failMsg string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s", path)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	if !isJSON(res.Header.Get("Content-Type")) {
		return &payment.BackendError{
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("Server returned non-JSON response (%s)", res.Header.Get("Content-Type")),
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(data, &e)
		return &payment.BackendError{StatusCode: res.StatusCode, Message: firstNonEmpty(e.Message, e.Error, failMsg)}
	}
	if err = json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = flexString(num.String())
	return nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
