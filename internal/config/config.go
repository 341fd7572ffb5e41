package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	RedisAddr string

	TokenSecret string
	TokenTTL    time.Duration

	LedgerBaseURL string
	LedgerID      string
	LedgerToken   string

	MailRegion string
	MailFrom   string

	IdentityURL   string
	IdentityToken string

	Timezone *time.Location

	TwoFactorLogin  bool
	CodeTTL         time.Duration
	CodeMaxAttempts int
	CodeCooldown    time.Duration

	RateLimitPerMin int

	// DevBackends swaps Redis and the ledger client for in-memory
	// implementations; only for local development.
	DevBackends bool
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	tz := getEnv("PORTAL_TZ", "Asia/Manila")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("invalid PORTAL_TZ %q: %v, using UTC", tz, err)
		loc = time.UTC
	}

	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8081"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		TokenTTL:        durationEnv("TOKEN_TTL", 7*24*time.Hour),
		LedgerBaseURL:   os.Getenv("LEDGER_BASE_URL"),
		LedgerID:        os.Getenv("LEDGER_ID"),
		LedgerToken:     os.Getenv("LEDGER_TOKEN"),
		MailRegion:      getEnv("MAIL_REGION", "ap-southeast-1"),
		MailFrom:        os.Getenv("MAIL_FROM"),
		IdentityURL:     os.Getenv("IDENTITY_URL"),
		IdentityToken:   os.Getenv("IDENTITY_TOKEN"),
		Timezone:        loc,
		TwoFactorLogin:  boolEnv("TWO_FACTOR_LOGIN", false),
		CodeTTL:         durationEnv("CODE_TTL", 10*time.Minute),
		CodeMaxAttempts: intEnv("CODE_MAX_ATTEMPTS", 5),
		CodeCooldown:    durationEnv("CODE_COOLDOWN", time.Minute),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		DevBackends:     boolEnv("DEV_BACKENDS", false),
	}
}

// Validate enforces boot-time invariants: required secrets and credentials
// must be present before the server starts, never checked per request.
func (a App) Validate() error {
	var missing []string
	if a.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}
	if !a.DevBackends {
		if a.LedgerBaseURL == "" {
			missing = append(missing, "LEDGER_BASE_URL")
		}
		if a.LedgerID == "" {
			missing = append(missing, "LEDGER_ID")
		}
		if a.LedgerToken == "" {
			missing = append(missing, "LEDGER_TOKEN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %v", missing)
	}
	if a.CodeMaxAttempts <= 0 {
		return errors.New("config: CODE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
