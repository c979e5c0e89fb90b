package emailsvc

import (
	"bytes"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexaric/portal/core"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

var testConf = &core.Config{
	AppName:          "NeXaric Portal",
	DefaultFromEmail: mail.Address{Name: "Portal", Address: "noreply@test.cd"},
}

type receiptData struct {
	PayerID, Purpose, Amount, Currency, OrderID, PaymentID, Message string
}

func receipt(tmpl string) *core.EmailMessage {
	return &core.EmailMessage{
		To:              []mail.Address{{Name: "Asha", Address: "asha@test.cd"}},
		Subject:         "Payment received",
		TemplateName:    tmpl,
		FrontendBaseURL: "http://localhost:3000",
		TemplateData: receiptData{
			PayerID:   "STU_007",
			Purpose:   "Semester Fee",
			Amount:    "2500.00",
			Currency:  "INR",
			OrderID:   "order_1",
			PaymentID: "pay_1",
			Message:   "Invalid signature",
		},
	}
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(testConf, nopLogger{})

	svc.SendMessages(receipt("payment_receipt"), receipt("payment_reconcile"), &core.EmailMessage{Subject: "no recipients", BodyStr: "x"})

	sent := svc.SentMessages()
	require.Len(t, sent, 2)

	assert.Contains(t, sent[0].TextContent, "Payment ID: pay_1")
	assert.Contains(t, sent[0].TextContent, "2500.00 INR")
	assert.Contains(t, sent[0].TextContent, "http://localhost:3000")
	assert.Contains(t, sent[0].HTMLContent, "<td>pay_1</td>")

	assert.Contains(t, sent[1].TextContent, "Reason: Invalid signature")
	assert.Contains(t, sent[1].HTMLContent, "<strong>pay_1</strong>")
}

func TestConsoleService_format(t *testing.T) {
	var out bytes.Buffer
	svc := NewConsoleService(testConf, nopLogger{})
	svc.out = &out

	msg := receipt("payment_receipt")
	require.NoError(t, svc.sendMessage(msg))

	body := out.String()
	for _, want := range []string{
		"From: \"Portal\" <noreply@test.cd>",
		"Subject: [NeXaric Portal] Payment received",
		"To: \"Asha\" <asha@test.cd>",
		"text/plain",
		"text/html",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q:\n%s", want, body)
		}
	}
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConf, nopLogger{})
	msg := receipt("payment_receipt")
	require.NoError(t, msg.Render())

	m := svc.prepare(*msg)

	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[NeXaric Portal] Payment received", m.Personalizations[0].Subject)
	assert.Equal(t, "asha@test.cd", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@test.cd", m.From.Address)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
