package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_envName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{key: "debug", want: "DEBUG"},
		{key: "server.host", want: "SERVER_HOST"},
		{key: "payment.apiBaseURL", want: "PAYMENT_API_BASE_URL"},
		{key: "checkout.sessionTTL", want: "CHECKOUT_SESSION_TTL"},
		{key: "checkout.scriptURL", want: "CHECKOUT_SCRIPT_URL"},
		{key: "auth.firebaseProjectID", want: "AUTH_FIREBASE_PROJECT_ID"},
		{key: "database.disableTLS", want: "DATABASE_DISABLE_TLS"},
		{key: "sendgridApiKey", want: "SENDGRID_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, envName(tt.key))
		})
	}
}

func TestNewConfig_env(t *testing.T) {
	t.Setenv("ENV", "QA")
	t.Setenv("QA_PAYMENT_API_BASE_URL", "https://payments.example.test/api")
	t.Setenv("QA_CHECKOUT_SESSION_TTL", "10m")
	t.Setenv("QA_DATABASE_IN_MEMORY", "true")
	t.Setenv("QA_KAFKA_TOPIC", "qa.payments")

	conf := NewConfig()
	assert.Equal(t, "QA", conf.Env)
	assert.Equal(t, "https://payments.example.test/api", conf.Payment.APIBaseURL)
	assert.Equal(t, 10*time.Minute, conf.Checkout.SessionTTL)
	assert.True(t, conf.Database.InMemory)
	assert.Equal(t, "qa.payments", conf.Kafka.Topic)
	assert.Equal(t, 5*time.Minute, conf.Checkout.ProbeTTL, "defaults apply")
}
