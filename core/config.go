package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		WorkDir          string
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address
		SupportEmail     mail.Address
		FrontendBaseURL  string

		Server    ServerConfig
		Database  DatabaseConfig
		Auth      AuthConfig
		Payment   PaymentConfig
		Checkout  CheckoutConfig
		Kafka     KafkaConfig
		Telemetry TelemetryConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		DisableReqLogs  bool
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		InMemory      bool
	}

	AuthConfig struct {
		Provider            string // jwt | firebase
		Issuer              string
		Audience            string
		FirebaseProjectID   string
		FirebaseCredentials string // path to a service account file
	}

	PaymentConfig struct {
		APIBaseURL      string
		Timeout         time.Duration
		DefaultCurrency string
		BrandName       string
		ThemeColor      string
	}

	CheckoutConfig struct {
		ScriptURL  string
		SessionTTL time.Duration
		ProbeTTL   time.Duration
	}

	KafkaConfig struct {
		Brokers []string
		Topic   string
	}

	TelemetryConfig struct {
		Enabled     bool
		ServiceName string
	}
)

func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// NewConfig loads the app configuration from the environment.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
// The matching config/.env.<env> file is loaded first when it exists.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	var keys []string
	setDefault := func(key string, value interface{}) {
		v.SetDefault(key, value)
		keys = append(keys, key)
	}
	setDefault("debug", true)
	setDefault("testMode", false)
	setDefault("build", "develop")
	setDefault("appName", "NeXaric Portal")
	setDefault("secretKey", "k2!o9v@r_8fe$xq+1t)n5s4w7c(b&uj3y%m6z0lhg#dpae-i")
	setDefault("rollbarToken", "")
	setDefault("sendgridApiKey", "")
	setDefault("defaultFromEmail", "noreply@localhost")
	setDefault("supportEmail", "support@localhost")
	setDefault("frontendBaseURL", "http://localhost:3000")

	setDefault("server.host", "0.0.0.0:8000")
	setDefault("server.debugHost", "0.0.0.0:4000")
	setDefault("server.disableReqLogs", false)
	setDefault("server.shutdownTimeout", 5*time.Second)

	setDefault("database.engine", "postgres")
	setDefault("database.host", "localhost")
	setDefault("database.port", "5432")
	setDefault("database.name", "portal")
	setDefault("database.user", "portal")
	setDefault("database.password", "portal")
	setDefault("database.adminUser", "postgres")
	setDefault("database.adminPassword", "")
	setDefault("database.disableTLS", true)
	setDefault("database.inMemory", false)

	setDefault("auth.provider", "jwt")
	setDefault("auth.issuer", "")
	setDefault("auth.audience", "")
	setDefault("auth.firebaseProjectID", "")
	setDefault("auth.firebaseCredentials", "")

	setDefault("payment.apiBaseURL", "https://cosmiccharm.in/api")
	setDefault("payment.timeout", 30*time.Second)
	setDefault("payment.defaultCurrency", "INR")
	setDefault("payment.brandName", "NeXaric Portal")
	setDefault("payment.themeColor", "#321fdb")

	setDefault("checkout.scriptURL", "https://checkout.razorpay.com/v1/checkout.js")
	setDefault("checkout.sessionTTL", 30*time.Minute)
	setDefault("checkout.probeTTL", 5*time.Minute)

	setDefault("kafka.brokers", "")
	setDefault("kafka.topic", "payments.handshakes")

	setDefault("telemetry.enabled", false)
	setDefault("telemetry.serviceName", "portal-api")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// payment.apiBaseURL is read from <ENV>_PAYMENT_API_BASE_URL
	for _, key := range keys {
		if err := v.BindEnv(key, env+"_"+envName(key)); err != nil {
			log.Fatalf("config.BindEnv(%s): %v", key, err)
		}
	}

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		WorkDir:          workDir,
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: parseAddress(v.GetString("defaultFromEmail")),
		SupportEmail:     parseAddress(v.GetString("supportEmail")),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			InMemory:      v.GetBool("database.inMemory"),
		},
		Auth: AuthConfig{
			Provider:            strings.ToLower(v.GetString("auth.provider")),
			Issuer:              v.GetString("auth.issuer"),
			Audience:            v.GetString("auth.audience"),
			FirebaseProjectID:   v.GetString("auth.firebaseProjectID"),
			FirebaseCredentials: v.GetString("auth.firebaseCredentials"),
		},
		Payment: PaymentConfig{
			APIBaseURL:      v.GetString("payment.apiBaseURL"),
			Timeout:         v.GetDuration("payment.timeout"),
			DefaultCurrency: strings.ToUpper(v.GetString("payment.defaultCurrency")),
			BrandName:       v.GetString("payment.brandName"),
			ThemeColor:      v.GetString("payment.themeColor"),
		},
		Checkout: CheckoutConfig{
			ScriptURL:  v.GetString("checkout.scriptURL"),
			SessionTTL: v.GetDuration("checkout.sessionTTL"),
			ProbeTTL:   v.GetDuration("checkout.probeTTL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     v.GetBool("telemetry.enabled"),
			ServiceName: v.GetString("telemetry.serviceName"),
		},
	}
}

// envName turns a config key into its env variable name, without the ENV prefix:
// "checkout.sessionTTL" becomes "CHECKOUT_SESSION_TTL".
func envName(key string) string {
	var b strings.Builder
	rs := []rune(key)
	for i, r := range rs {
		if r == '.' {
			b.WriteByte('_')
			continue
		}
		if i > 0 && unicode.IsUpper(r) {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func parseAddress(s string) mail.Address {
	addr, err := mail.ParseAddress(s)
	if err != nil {
		log.Fatalf("config.parseAddress(%s): %v", s, err)
	}
	return *addr
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
