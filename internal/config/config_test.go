package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDatabaseURL(t *testing.T) {
	assert.NoError(t, ValidateDatabaseURL("mysql://user:pass@db:3306/gestoria"))
	assert.NoError(t, ValidateDatabaseURL("mariadb://user@db/gestoria?parseTime=true"))

	for _, raw := range []string{
		"postgres://user:pass@db:5432/gestoria",
		"mysql://user:pass@db:3306/",
		"file:test.db",
		"",
	} {
		assert.ErrorIs(t, ValidateDatabaseURL(raw), ErrInvalidDatabaseURL, raw)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "mysql://app:secret@db:3306/gestoria")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("OWNER_EMAIL", "owner@example.com")
	t.Setenv("OWNER_PASSWORD", "longenough")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JOBS_ENABLED", "false")
	t.Setenv("JWT_ACCESS_TTL_MINUTES", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.True(t, cfg.Owner.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
	assert.False(t, cfg.Jobs.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
}

func TestLoadRejectsPostgres(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db/x")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidDatabaseURL)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "mysql://u:p@db/x")
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestShortOwnerPassword(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://u:p@db/x")
	t.Setenv("OWNER_EMAIL", "o@example.com")
	t.Setenv("OWNER_PASSWORD", "short")
	_, err := Load()
	assert.Error(t, err)
}
