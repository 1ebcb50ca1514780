package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig captures all tunable parameters for the API process.
// Values are primarily loaded from environment variables with sane
// defaults so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	OSRMBaseURL  string
	RouteTimeout time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string

	PushEndpoint string
	PushAPIKey   string

	ScanInterval time.Duration
	SummaryHour  int
	DispatchWait time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		KafkaTopic:      "ride-locations",
		RouteTimeout:    2 * time.Second,
		ScanInterval:    5 * time.Minute,
		SummaryHour:     20,
		DispatchWait:    10 * time.Second,
		LogLevel:        "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	// a missing .env is normal outside local dev
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.OSRMBaseURL, "OSRM_BASE_URL")
	setDurationFromEnv(&cfg.RouteTimeout, "ROUTE_TIMEOUT", &errs)

	setStringFromEnv(&cfg.SMTPHost, "SMTP_HOST")
	setIntFromEnv(&cfg.SMTPPort, "SMTP_PORT", &errs)
	setStringFromEnv(&cfg.SMTPUsername, "SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	setStringFromEnv(&cfg.SMTPFrom, "SMTP_FROM")

	setStringFromEnv(&cfg.TwilioSID, "TWILIO_ACCOUNT_SID")
	cfg.TwilioToken = os.Getenv("TWILIO_AUTH_TOKEN")
	setStringFromEnv(&cfg.TwilioFrom, "TWILIO_FROM_NUMBER")

	setStringFromEnv(&cfg.PushEndpoint, "PUSH_ENDPOINT")
	cfg.PushAPIKey = os.Getenv("PUSH_API_KEY")

	setDurationFromEnv(&cfg.ScanInterval, "SCAN_INTERVAL", &errs)
	setIntFromEnv(&cfg.SummaryHour, "SUMMARY_HOUR", &errs)
	setDurationFromEnv(&cfg.DispatchWait, "DISPATCH_WAIT", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.SummaryHour < 0 || cfg.SummaryHour > 23 {
		errs = append(errs, fmt.Errorf("SUMMARY_HOUR must be between 0 and 23"))
	}

	return cfg, errors.Join(errs...)
}

// EmailConfigured reports whether the SMTP channel has a complete,
// usable credential set. Partially set credentials count as absent so
// the dispatcher degrades instead of erroring per send.
func (c ServerConfig) EmailConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort > 0 && c.SMTPFrom != ""
}

// SMSConfigured requires a well-formed Twilio account SID. A malformed
// SID is indistinguishable from an absent one downstream, so it is
// rejected here rather than on every send.
func (c ServerConfig) SMSConfigured() bool {
	return strings.HasPrefix(c.TwilioSID, "AC") && c.TwilioToken != "" && c.TwilioFrom != ""
}

func (c ServerConfig) PushConfigured() bool {
	return c.PushEndpoint != "" && c.PushAPIKey != ""
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
