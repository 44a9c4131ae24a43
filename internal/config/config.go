package config

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config centralises runtime configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	HTTPPort       string        `envconfig:"HTTP_PORT"`
	AllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout    time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`

	StorageDriver  string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`
	// RedisURL may be empty with the memory driver, in which case an
	// embedded server is started.
	RedisURL    string `envconfig:"REDIS_URL"`
	CachePrefix string `envconfig:"CACHE_PREFIX" default:"docshare"`

	JWTSecret      string        `envconfig:"JWT_SECRET"`
	JWTIssuer      string        `envconfig:"JWT_ISSUER" default:"docshare"`
	AccessTokenTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"72h"`
	BcryptCost     int           `envconfig:"BCRYPT_COST" default:"10"`

	TwoFactorTokenTTL       time.Duration `envconfig:"TWO_FACTOR_TOKEN_TTL" default:"3m"`
	TwoFactorCodeTTL        time.Duration `envconfig:"TWO_FACTOR_CODE_TTL" default:"2m"`
	TwoFactorResendMax      int           `envconfig:"TWO_FACTOR_RESEND_MAX" default:"3"`
	TwoFactorResendWindow   time.Duration `envconfig:"TWO_FACTOR_RESEND_WINDOW" default:"5m"`
	TwoFactorResendCooldown time.Duration `envconfig:"TWO_FACTOR_RESEND_COOLDOWN" default:"60s"`
	TwoFactorMaxAttempts    int           `envconfig:"TWO_FACTOR_MAX_ATTEMPTS" default:"5"`
	SingleUseTokenTTL       time.Duration `envconfig:"SINGLE_USE_TOKEN_TTL" default:"3m"`

	// GoogleClientID enables Google sign-in when set. Tokens must carry it
	// as their audience.
	GoogleClientID string `envconfig:"GOOGLE_CLIENT_ID"`

	AppName   string `envconfig:"APP_NAME" default:"DocShare"`
	AppDomain string `envconfig:"APP_DOMAIN" default:"http://localhost:3000"`

	ResendBaseURL        string        `envconfig:"RESEND_BASE_URL" default:"https://api.resend.com"`
	ResendAPIKey         string        `envconfig:"RESEND_API_KEY"`
	ResendFrom           string        `envconfig:"RESEND_FROM" default:"noreply@docshare.app"`
	ResendTemplate2FA    string        `envconfig:"RESEND_TEMPLATE_2FA"`
	ResendTemplateVerify string        `envconfig:"RESEND_TEMPLATE_VERIFY_EMAIL"`
	ResendTemplateReset  string        `envconfig:"RESEND_TEMPLATE_RESET_PASSWORD"`
	ResendRetryMax       int           `envconfig:"RESEND_RETRY_MAX" default:"3"`
	ResendTimeout        time.Duration `envconfig:"RESEND_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from an optional .env file and the environment.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	if cfg.HTTPPort == "" {
		cfg.HTTPPort = firstNonEmpty(os.Getenv("PORT"), "8080")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET_KEY")
	}
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = os.Getenv("GOOGLE_APP_CLIENT_ID")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = resolveDatabaseURL()
	} else {
		cfg.DatabaseURL = normalisePostgresScheme(cfg.DatabaseURL)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = DriverPostgres
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database configuration missing: provide DATABASE_URL or PG* env vars")
		}
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required with the postgres storage driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":           c.AccessTokenTTL,
		"TWO_FACTOR_TOKEN_TTL":       c.TwoFactorTokenTTL,
		"TWO_FACTOR_CODE_TTL":        c.TwoFactorCodeTTL,
		"TWO_FACTOR_RESEND_WINDOW":   c.TwoFactorResendWindow,
		"TWO_FACTOR_RESEND_COOLDOWN": c.TwoFactorResendCooldown,
		"SINGLE_USE_TOKEN_TTL":       c.SingleUseTokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.TwoFactorCodeTTL >= c.TwoFactorTokenTTL {
		return errors.New("TWO_FACTOR_CODE_TTL must be shorter than TWO_FACTOR_TOKEN_TTL")
	}
	if c.TwoFactorResendMax < 1 {
		return errors.New("TWO_FACTOR_RESEND_MAX must be at least 1")
	}
	if c.TwoFactorMaxAttempts < 1 {
		return errors.New("TWO_FACTOR_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// resolveDatabaseURL looks for a postgres URL under the names used by common
// hosting providers, then assembles one from PG* parts.
func resolveDatabaseURL() string {
	for _, key := range []string{
		"DATABASE_PUBLIC_URL",
		"DATABASE_INTERNAL_URL",
		"POSTGRES_URL",
		"PGURL",
	} {
		if url := coerceDatabaseURL(os.Getenv(key)); url != "" {
			return url
		}
	}
	if path := os.Getenv("DATABASE_URL_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if url := coerceDatabaseURL(string(data)); url != "" {
				return url
			}
		}
	}

	host := firstNonEmpty(os.Getenv("PGHOST"), os.Getenv("POSTGRES_HOST"), os.Getenv("DATABASE_HOST"))
	user := firstNonEmpty(os.Getenv("PGUSER"), os.Getenv("POSTGRES_USER"), os.Getenv("DATABASE_USER"))
	if host == "" || user == "" {
		return ""
	}
	password := firstNonEmpty(os.Getenv("PGPASSWORD"), os.Getenv("POSTGRES_PASSWORD"), os.Getenv("DATABASE_PASSWORD"))
	database := firstNonEmpty(os.Getenv("PGDATABASE"), os.Getenv("POSTGRES_DB"), os.Getenv("DATABASE_NAME"), user)
	port := firstNonEmpty(os.Getenv("PGPORT"), os.Getenv("POSTGRES_PORT"), os.Getenv("DATABASE_PORT"), "5432")
	sslMode := firstNonEmpty(os.Getenv("PGSSLMODE"), os.Getenv("POSTGRES_SSL_MODE"), "require")

	dsn := &neturl.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + database,
		User:   neturl.User(user),
	}
	if password != "" {
		dsn.User = neturl.UserPassword(user, password)
	}
	query := dsn.Query()
	query.Set("sslmode", sslMode)
	dsn.RawQuery = query.Encode()
	return dsn.String()
}

func normalisePostgresScheme(url string) string {
	if strings.HasPrefix(url, "postgresql://") {
		return "postgres://" + strings.TrimPrefix(url, "postgresql://")
	}
	return url
}

func coerceDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://") {
		return normalisePostgresScheme(raw)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadDotEnv exports KEY=VALUE lines from path. A missing file is not an
// error. Variables already set in the environment are kept.
func loadDotEnv(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf(".env line %d: missing '='", lineNum)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return fmt.Errorf(".env line %d: empty key", lineNum)
		}
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf(".env line %d: %w", lineNum, err)
		}
	}
	return scanner.Err()
}
