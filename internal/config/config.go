package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	CallProvider CallProviderConfig
	Custody      CustodyConfig
	PriceAPI     PriceAPIConfig
	Billing      BillingConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// CallProviderConfig points at the voice/IVR call API.
type CallProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// CustodyConfig points at the custody/ledger API holding virtual accounts.
type CustodyConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// PriceAPIConfig points at the crypto spot-price API.
type PriceAPIConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// BillingConfig holds schedules and cache tuning for the metering pipeline.
type BillingConfig struct {
	// PollInterval controls the call-status poll task. Default: 1m.
	PollInterval time.Duration

	// SafetyNetSpec is a cron spec (with seconds) for the uncharged-overage
	// retry pass. Default: hourly.
	SafetyNetSpec string

	// ExpirySpec is a cron spec (with seconds) for the daily subscription
	// expiry check. Default: midnight.
	ExpirySpec string

	// PriceCacheTTL bounds how long a fetched spot price is reused.
	PriceCacheTTL time.Duration

	// ChargeLockTTL bounds the per-call charge critical section.
	ChargeLockTTL time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.CallProvider.BaseURL = strings.TrimSpace(os.Getenv("CALL_PROVIDER_URL"))
	c.CallProvider.APIKey = os.Getenv("CALL_PROVIDER_API_KEY")
	c.CallProvider.RequestTimeout = mustDuration("CALL_PROVIDER_TIMEOUT")

	c.Custody.BaseURL = strings.TrimSpace(os.Getenv("CUSTODY_URL"))
	c.Custody.APIKey = os.Getenv("CUSTODY_API_KEY")
	c.Custody.RequestTimeout = mustDuration("CUSTODY_TIMEOUT")

	c.PriceAPI.BaseURL = strings.TrimSpace(os.Getenv("PRICE_API_URL"))
	c.PriceAPI.RequestTimeout = mustDuration("PRICE_API_TIMEOUT")

	c.Billing.PollInterval = mustDuration("BILLING_POLL_INTERVAL")
	c.Billing.SafetyNetSpec = strings.TrimSpace(os.Getenv("BILLING_SAFETY_NET_SPEC"))
	c.Billing.ExpirySpec = strings.TrimSpace(os.Getenv("BILLING_EXPIRY_SPEC"))
	c.Billing.PriceCacheTTL = mustDuration("BILLING_PRICE_CACHE_TTL")
	c.Billing.ChargeLockTTL = mustDuration("BILLING_CHARGE_LOCK_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() && c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required in production"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}

	if c.CallProvider.BaseURL == "" {
		errs = append(errs, errors.New("CALL_PROVIDER_URL is required"))
	}
	if c.Custody.BaseURL == "" {
		errs = append(errs, errors.New("CUSTODY_URL is required"))
	}
	if c.PriceAPI.BaseURL == "" {
		errs = append(errs, errors.New("PRICE_API_URL is required"))
	}
	if c.CallProvider.RequestTimeout <= 0 {
		c.CallProvider.RequestTimeout = 10 * time.Second
	}
	if c.Custody.RequestTimeout <= 0 {
		c.Custody.RequestTimeout = 10 * time.Second
	}
	if c.PriceAPI.RequestTimeout <= 0 {
		c.PriceAPI.RequestTimeout = 10 * time.Second
	}

	if c.Billing.PollInterval <= 0 {
		c.Billing.PollInterval = time.Minute
	}
	if c.Billing.SafetyNetSpec == "" {
		c.Billing.SafetyNetSpec = "0 0 * * * *"
	}
	if c.Billing.ExpirySpec == "" {
		c.Billing.ExpirySpec = "0 0 0 * * *"
	}
	if c.Billing.PriceCacheTTL <= 0 {
		c.Billing.PriceCacheTTL = 5 * time.Minute
	}
	if c.Billing.ChargeLockTTL <= 0 {
		c.Billing.ChargeLockTTL = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
