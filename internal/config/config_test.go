package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DATABASE_URL", "postgresql://app:pw@db:5432/docshare")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("GOOGLE_APP_CLIENT_ID", "")
}

func TestLoad_Defaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, "postgres://app:pw@db:5432/docshare", cfg.DatabaseURL)
	assert.Equal(t, 72*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 3*time.Minute, cfg.TwoFactorTokenTTL)
	assert.Equal(t, 2*time.Minute, cfg.TwoFactorCodeTTL)
	assert.Equal(t, 3, cfg.TwoFactorResendMax)
	assert.Equal(t, 5*time.Minute, cfg.TwoFactorResendWindow)
	assert.Equal(t, 60*time.Second, cfg.TwoFactorResendCooldown)
	assert.Equal(t, 5, cfg.TwoFactorMaxAttempts)
	assert.Empty(t, cfg.GoogleClientID)
	assert.Equal(t, 3*time.Minute, cfg.SingleUseTokenTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "docshare", cfg.JWTIssuer)
}

func TestLoad_Overrides(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test,https://b.test")
	t.Setenv("TWO_FACTOR_RESEND_MAX", "5")
	t.Setenv("ACCESS_TOKEN_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.TwoFactorResendMax)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
}

func TestLoad_JWTSecretKeyFallback(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_KEY", "from-alt")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-alt", cfg.JWTSecret)
}

func TestLoad_GoogleClientIDFallback(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GOOGLE_APP_CLIENT_ID", "app.apps.googleusercontent.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "app.apps.googleusercontent.com", cfg.GoogleClientID)
}

func TestLoad_RejectsZeroMaxAttempts(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TWO_FACTOR_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "TWO_FACTOR_MAX_ATTEMPTS")
}

func TestLoad_MissingSecret(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestLoad_MemoryDriverNeedsNoDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
}

func TestLoad_RejectsCodeOutlivingChallenge(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TWO_FACTOR_CODE_TTL", "5m")

	_, err := Load()
	assert.ErrorContains(t, err, "TWO_FACTOR_CODE_TTL")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestResolveDatabaseURL_FromParts(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGUSER", "app")
	t.Setenv("PGPASSWORD", "pw")
	t.Setenv("PGDATABASE", "docshare")
	t.Setenv("PGSSLMODE", "disable")

	assert.Equal(t, "postgres://app:pw@db.internal:5432/docshare?sslmode=disable", resolveDatabaseURL())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nexport DOTENV_A=\"quoted\"\nDOTENV_B='single'\nDOTENV_C=kept\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("DOTENV_A", "")
	t.Setenv("DOTENV_B", "")
	t.Setenv("DOTENV_C", "preset")
	require.NoError(t, os.Unsetenv("DOTENV_A"))
	require.NoError(t, os.Unsetenv("DOTENV_B"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "quoted", os.Getenv("DOTENV_A"))
	assert.Equal(t, "single", os.Getenv("DOTENV_B"))
	assert.Equal(t, "preset", os.Getenv("DOTENV_C"))
}

func TestLoadDotEnv_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("NOEQUALS\n"), 0o600))
	assert.ErrorContains(t, loadDotEnv(path), "missing '='")
}
