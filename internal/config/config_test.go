package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV", "HTTP_PORT", "REDIS_ADDR", "TOKEN_SECRET", "TOKEN_TTL",
		"LEDGER_BASE_URL", "LEDGER_ID", "LEDGER_TOKEN",
		"MAIL_REGION", "MAIL_FROM", "IDENTITY_URL", "IDENTITY_TOKEN",
		"PORTAL_TZ", "TWO_FACTOR_LOGIN", "CODE_TTL", "CODE_MAX_ATTEMPTS",
		"CODE_COOLDOWN", "RATE_LIMIT_PER_MIN", "DEV_BACKENDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.CodeTTL)
	assert.Equal(t, 5, cfg.CodeMaxAttempts)
	assert.Equal(t, "Asia/Manila", cfg.Timezone.String())
}

func TestValidateRequiresTokenSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEV_BACKENDS", "1")
	cfg := Load()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOKEN_SECRET")
}

func TestValidateRequiresLedgerSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", "s3cret")
	cfg := Load()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_BASE_URL")
	assert.Contains(t, err.Error(), "LEDGER_ID")
	assert.Contains(t, err.Error(), "LEDGER_TOKEN")
}

func TestValidateDevBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("DEV_BACKENDS", "1")
	cfg := Load()

	assert.NoError(t, cfg.Validate())
}

func TestValidateFullProduction(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("LEDGER_BASE_URL", "https://ledger.internal")
	t.Setenv("LEDGER_ID", "book-1")
	t.Setenv("LEDGER_TOKEN", "cred")
	cfg := Load()

	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveAttempts(t *testing.T) {
	clearEnv(t)
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("DEV_BACKENDS", "1")
	cfg := Load()
	cfg.CodeMaxAttempts = 0

	assert.Error(t, cfg.Validate())
}
