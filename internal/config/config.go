package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig captures all tunable parameters for the ride client.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run against a local backend without excessive setup.
type ClientConfig struct {
	APIBaseURL     string
	SocketURL      string
	EventsURL      string
	RequestTimeout time.Duration

	PollInterval  time.Duration
	NavigateDelay time.Duration
	OfferTimeout  time.Duration

	StateFile     string
	RedisAddr     string
	RedisPassword string
	RedisSlotKey  string

	KafkaBrokers []string
	KafkaTopic   string
	PGDSN        string

	RoutingProvider string
	ORSBaseURL      string
	ORSKey          string
	OSRMBaseURL     string
	GoogleMapsKey   string
	RouteCacheTTL   time.Duration

	RazorpayKey    string
	RazorpaySecret string
	StripeKey      string
	CheckoutName   string

	ViewAddr    string
	MetricsAddr string

	LogLevel  string
	LogFormat string
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:      "http://localhost:3000",
		RequestTimeout:  10 * time.Second,
		PollInterval:    2 * time.Second,
		NavigateDelay:   2 * time.Second,
		OfferTimeout:    30 * time.Second,
		RedisSlotKey:    "ride:current",
		KafkaTopic:      "ride-transitions",
		RoutingProvider: "ors",
		ORSBaseURL:      "https://api.openrouteservice.org",
		OSRMBaseURL:     "https://router.project-osrm.org",
		RouteCacheTTL:   5 * time.Minute,
		CheckoutName:    "My Ride App",
		ViewAddr:        ":8090",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func LoadClientConfig() (ClientConfig, error) {
	cfg := defaultClientConfig()
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "RIDE_API_URL")
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	setStringFromEnv(&cfg.SocketURL, "RIDE_SOCKET_URL")
	setStringFromEnv(&cfg.EventsURL, "RIDE_EVENTS_URL")
	if cfg.SocketURL == "" {
		cfg.SocketURL = websocketURL(cfg.APIBaseURL) + "/ws"
	}
	if cfg.EventsURL == "" {
		cfg.EventsURL = cfg.APIBaseURL + "/events"
	}
	setDurationFromEnv(&cfg.RequestTimeout, "RIDE_REQUEST_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.PollInterval, "RIDE_POLL_INTERVAL", &errs)
	setDurationFromEnv(&cfg.NavigateDelay, "RIDE_NAVIGATE_DELAY", &errs)
	setDurationFromEnv(&cfg.OfferTimeout, "RIDE_OFFER_TIMEOUT", &errs)

	setStringFromEnv(&cfg.StateFile, "RIDE_STATE_FILE")
	if cfg.StateFile == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			cfg.StateFile = dir + "/ridectl/state.json"
		} else {
			cfg.StateFile = ".ridectl-state.json"
		}
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisSlotKey, "REDIS_SLOT_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	cfg.PGDSN = os.Getenv("PG_DSN")

	setStringFromEnv(&cfg.RoutingProvider, "ROUTING_PROVIDER")
	cfg.RoutingProvider = strings.ToLower(cfg.RoutingProvider)
	setStringFromEnv(&cfg.ORSBaseURL, "ORS_BASE_URL")
	cfg.ORSKey = os.Getenv("ORS_KEY")
	setStringFromEnv(&cfg.OSRMBaseURL, "OSRM_BASE_URL")
	cfg.GoogleMapsKey = os.Getenv("GOOGLE_MAPS_KEY")
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	cfg.RazorpayKey = os.Getenv("RAZORPAY_KEY")
	cfg.RazorpaySecret = os.Getenv("RAZORPAY_SECRET")
	cfg.StripeKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.CheckoutName, "CHECKOUT_NAME")

	setStringFromEnv(&cfg.ViewAddr, "VIEW_ADDR")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.LogFormat, "LOG_FORMAT")

	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("RIDE_POLL_INTERVAL must be > 0"))
	}
	if cfg.NavigateDelay < 0 {
		errs = append(errs, fmt.Errorf("RIDE_NAVIGATE_DELAY must be >= 0"))
	}
	if cfg.OfferTimeout < 0 {
		errs = append(errs, fmt.Errorf("RIDE_OFFER_TIMEOUT must be >= 0"))
	}
	switch cfg.RoutingProvider {
	case "ors", "osrm", "google":
	default:
		errs = append(errs, fmt.Errorf("unknown ROUTING_PROVIDER %q", cfg.RoutingProvider))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the transition journal projector.
type ConsumerConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroup   string
	PGDSN        string
	RedisAddr    string
	MetricsAddr  string

	WriteAttempts int
	WriteBackoff  time.Duration

	LogLevel string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "ride-transitions",
		KafkaGroup:    "ride-journal",
		MetricsAddr:   ":2112",
		WriteAttempts: 3,
		WriteBackoff:  200 * time.Millisecond,
		LogLevel:      "info",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setIntFromEnv(&cfg.WriteAttempts, "JOURNAL_WRITE_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.WriteBackoff, "JOURNAL_WRITE_BACKOFF", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.PGDSN == "" {
		errs = append(errs, fmt.Errorf("PG_DSN is required"))
	}
	if cfg.WriteAttempts <= 0 {
		errs = append(errs, fmt.Errorf("JOURNAL_WRITE_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func websocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
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
