package echoapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	. "github.com/nexaric/portal/apps/api/echo"
	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/core/identity"
	"github.com/nexaric/portal/core/payment"
	authsvc "github.com/nexaric/portal/services/auth"
	"github.com/nexaric/portal/services/checkout"
	"github.com/nexaric/portal/services/email"
	"github.com/nexaric/portal/services/events"
	"github.com/nexaric/portal/services/paymentapi"
	"github.com/nexaric/portal/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type testApp struct {
	server   *Server
	verifier *authsvc.JWTVerifier
	relay    *checkout.Relay
	mailSvc  *emailsvc.ConsoleServiceMock
}

// fakePaymentBackend mimics the backend payment API. Payer "STU-PAID" is refused an order;
// the signature "forged" fails verification.
func fakePaymentBackend(t *testing.T) *httptest.Server {
	var orders int32

	reply := func(w http.ResponseWriter, code int, body interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/payment/create-order", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			reply(w, http.StatusUnauthorized, map[string]interface{}{"message": "No token"})
			return
		}
		var body struct {
			Amount    decimal.Decimal `json:"amount"`
			Currency  string          `json:"currency"`
			StudentID string          `json:"studentId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.StudentID == "STU-PAID" {
			reply(w, http.StatusBadRequest, map[string]interface{}{"success": false, "message": "Fee already paid"})
			return
		}
		n := atomic.AddInt32(&orders, 1)
		reply(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"orderId":  fmt.Sprintf("order_%d", n),
			"key_id":   "rzp_test",
			"amount":   body.Amount.Shift(2).IntPart(),
			"currency": body.Currency,
		})
	})
	mux.HandleFunc("/api/payment/verify-payment", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Signature string `json:"razorpay_signature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Signature == "forged" {
			reply(w, http.StatusOK, map[string]interface{}{"success": false, "message": "Invalid signature"})
			return
		}
		reply(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Payment verified"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T) *testApp {
	conf := &core.Config{
		Debug:            false,
		TestMode:         true,
		AppName:          "Portal",
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Portal", Address: "noreply@portal.test"},
		SupportEmail:     mail.Address{Name: "Support", Address: "support@portal.test"},
		FrontendBaseURL:  "http://localhost:3000",
	}
	conf.Server.DisableReqLogs = true
	conf.Payment.Timeout = 5 * time.Second
	conf.Payment.DefaultCurrency = "INR"
	conf.Payment.BrandName = "Portal"
	conf.Checkout.SessionTTL = time.Hour

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	backend, err := paymentapi.NewClient(fakePaymentBackend(t).URL+"/api", conf.Payment.Timeout)
	if err != nil {
		t.Fatalf("paymentapi.NewClient(): %v", err)
	}

	logger := nopLogger{}
	relay := checkout.NewRelay(conf, logger)
	t.Cleanup(relay.Close)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	repo := inmemdb.NewPaymentRepository(inmemdb.Open())
	svc := payment.NewService(backend, relay, relay, repo, mailSvc, events.NoopPublisher{}, validate, logger, conf)
	verifier := authsvc.NewJWTVerifier(conf)

	return &testApp{
		server:   NewServer(conf, logger, verifier, svc, translator),
		verifier: verifier,
		relay:    relay,
		mailSvc:  mailSvc,
	}
}

func (app *testApp) token(t *testing.T, idt identity.Identity) string {
	token, err := app.verifier.GenerateToken(idt, time.Hour)
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

// do serves one request and decodes the JSON response into out, when given.
func (app *testApp) do(t *testing.T, method, path, token string, body interface{}, out ...interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("do(): %v", err)
		}
	}
	req, rec := newAuthRequest(method, path, token, buf.Bytes())
	app.server.ServeHTTP(rec, req)

	if len(out) > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out[0]); err != nil {
			t.Fatalf("do(): decoding %q: %v", rec.Body.String(), err)
		}
	}
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
