package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("TEST_API_URL", "")
	t.Setenv("BAND_SCALE_LISTENING", "")

	cfg := FromEnv()
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.TestAPIURL)
	assert.Equal(t, "ielts.legacy", cfg.BandScaleListening)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 24*time.Hour, cfg.AuthTokenTTL)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, "fs", cfg.MediaDriver)
	assert.Equal(t, 30*time.Minute, cfg.SessionRetention)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("TEST_API_URL", "https://api.example.com/")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("AUTH_TOKEN_TTL", "90m")
	t.Setenv("SCORE_RATE_LIMIT", "not-a-number")
	t.Setenv("GRADING_ORDERED_MATCHING", "yes")

	cfg := FromEnv()
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, "https://api.example.com", cfg.TestAPIURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Minute, cfg.AuthTokenTTL)
	assert.Equal(t, 30, cfg.ScoreRateLimit)
	assert.True(t, cfg.GradingOrderedMatching)
}

func TestValidateRejectsDevSecretInProduction(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AUTH_HMAC_SECRET", "")
	assert.ErrorIs(t, FromEnv().Validate(), ErrInsecureSecret)

	t.Setenv("AUTH_HMAC_SECRET", "a-real-secret")
	assert.NoError(t, FromEnv().Validate())

	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("AUTH_HMAC_SECRET", "")
	assert.NoError(t, FromEnv().Validate())
}
