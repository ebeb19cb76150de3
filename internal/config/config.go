package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures every tunable of the dashboard and CLI processes.
// Values are loaded from environment variables with defaults that match a
// backend running on localhost:8080.
type Config struct {
	BackendURL     string
	RequestTimeout time.Duration

	WSURL             string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration

	PollInterval  time.Duration
	SnapshotLimit int

	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DriverID int64

	RedisAddr     string
	RedisPassword string

	PGDSN         string
	RunMigrations bool

	KafkaBrokers []string
	KafkaTopic   string

	LogLevel string
	LogFile  string
}

func defaultConfig() Config {
	return Config{
		BackendURL:        "http://localhost:8080",
		RequestTimeout:    10 * time.Second,
		WSURL:             "ws://localhost:8080/ws/websocket",
		HeartbeatInterval: 4 * time.Second,
		ReconnectDelay:    5 * time.Second,
		DialTimeout:       10 * time.Second,
		PollInterval:      10 * time.Second,
		SnapshotLimit:     100,
		HTTPAddr:          ":8090",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		DriverID:          1,
		KafkaTopic:        "ride-updates",
		LogLevel:          "info",
	}
}

func Load() (Config, error) {
	cfg := defaultConfig()
	var errs []error

	setStringFromEnv(&cfg.BackendURL, "BACKEND_URL")
	setDurationFromEnv(&cfg.RequestTimeout, "REQUEST_TIMEOUT", &errs)

	setStringFromEnv(&cfg.WSURL, "WS_URL")
	setDurationFromEnv(&cfg.HeartbeatInterval, "HEARTBEAT_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ReconnectDelay, "RECONNECT_DELAY", &errs)
	setDurationFromEnv(&cfg.DialTimeout, "WS_DIAL_TIMEOUT", &errs)

	setDurationFromEnv(&cfg.PollInterval, "POLL_INTERVAL", &errs)
	setIntFromEnv(&cfg.SnapshotLimit, "SNAPSHOT_LIMIT", &errs)

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setInt64FromEnv(&cfg.DriverID, "DRIVER_ID", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))

	errs = append(errs, cfg.Validate()...)
	return cfg, errors.Join(errs...)
}

// Validate reports configuration values that cannot work.
func (c Config) Validate() []error {
	var errs []error
	if c.SnapshotLimit <= 0 {
		errs = append(errs, fmt.Errorf("SNAPSHOT_LIMIT must be > 0"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be > 0"))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("RECONNECT_DELAY must be > 0"))
	}
	if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_URL %q is not an absolute URL", c.BackendURL))
	}
	if u, err := url.Parse(c.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("WS_URL %q must use ws:// or wss://", c.WSURL))
	}
	return errs
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

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
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
