// Package config reads process configuration from the environment, with
// optional .env files layered underneath.
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

type Config struct {
	Env         string
	ListenAddr  string
	MaxBodyKB   int
	DatabaseURL string
	SQLitePath  string

	SweepInterval time.Duration
	SweepWorkers  int

	UploadRequireCompletion bool
	UploadFastTrack         bool
	CloseGracePeriod        time.Duration

	RulesFile    string
	AMQPURL      string
	AMQPExchange string
}

// UsePostgres reports whether DATABASE_URL selects the Postgres store.
func (c Config) UsePostgres() bool { return c.DatabaseURL != "" }

// loadEnvFiles reads .env, then .env.<APP_ENV>, then .env.local. Real
// environment variables always win over .env; later files override earlier
// ones.
func loadEnvFiles() error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		name := ".env." + env
		if _, err := os.Stat(name); err == nil {
			if err := godotenv.Overload(name); err != nil {
				return fmt.Errorf("load %s: %w", name, err)
			}
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("load .env.local: %w", err)
		}
	}
	return nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// Load reads the .env files and parses the environment. All malformed
// values are reported together.
func Load() (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}
	return FromEnv()
}

// FromEnv parses the current environment without touching .env files.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Env:          getenv("APP_ENV", "development"),
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		SQLitePath:   getenv("SQLITE_PATH", "./data/sat.db"),
		RulesFile:    getenv("RULES_FILE", ""),
		AMQPURL:      getenv("AMQP_URL", ""),
		AMQPExchange: getenv("AMQP_EXCHANGE", "sat.events"),
	}
	cfg.SweepInterval = getenvDuration("SWEEP_INTERVAL", 15*time.Minute, &errs)
	cfg.SweepWorkers = getenvInt("SWEEP_WORKERS", 4, &errs)
	cfg.MaxBodyKB = getenvInt("MAX_BODY_KB", 1024, &errs)
	cfg.UploadRequireCompletion = getenvBool("UPLOAD_REQUIRE_COMPLETION", false, &errs)
	cfg.UploadFastTrack = getenvBool("UPLOAD_FAST_TRACK", false, &errs)
	cfg.CloseGracePeriod = getenvDuration("CLOSE_GRACE_PERIOD", 0, &errs)

	if cfg.SweepInterval < 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must not be negative"))
	}
	if cfg.CloseGracePeriod < 0 {
		errs = append(errs, errors.New("CLOSE_GRACE_PERIOD must not be negative"))
	}
	if cfg.SweepWorkers < 1 {
		errs = append(errs, errors.New("SWEEP_WORKERS must be at least 1"))
	}
	if cfg.MaxBodyKB < 1 {
		errs = append(errs, errors.New("MAX_BODY_KB must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenvInt(key string, def int, errs *[]error) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getenvBool(key string, def bool, errs *[]error) bool {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// getenvDuration accepts Go durations ("15m") and a bare "0".
func getenvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	if v == "0" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
