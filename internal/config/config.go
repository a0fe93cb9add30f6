package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Fees          FeesConfig          `yaml:"fees"`
	Retry         RetryConfig         `yaml:"retry"`
	Dispute       DisputeConfig       `yaml:"dispute"`
	JWT           JWTConfig           `yaml:"jwt"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Settlement    SettlementConfig    `yaml:"settlement"`
	Log           LogConfig           `yaml:"log"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	GRPCPort               int    `yaml:"grpc_port"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	// Migrate applies the embedded schema on startup.
	Migrate bool `yaml:"migrate"`
}

// GatewayConfig contains payment gateway settings
type GatewayConfig struct {
	BaseURL           string `yaml:"base_url"`
	SecretKey         string `yaml:"secret_key"`
	WebhookSecret     string `yaml:"webhook_secret"`
	Currency          string `yaml:"currency"`
	CurrencyDecimals  int32  `yaml:"currency_decimals"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	RequestsPerSecond int    `yaml:"requests_per_second"`
	Burst             int    `yaml:"burst"`
	// Operators maps a provider name (lowercase) to the gateway operator ref id.
	Operators map[string]string `yaml:"operators"`
	// Banks maps a bank name (lowercase) to the gateway bank uuid.
	Banks map[string]string `yaml:"banks"`
}

// FeesConfig contains fee rates in basis points
type FeesConfig struct {
	ReserveBps     int64 `yaml:"reserve_bps"`
	PlatformBps    int64 `yaml:"platform_bps"`
	MinGrossAmount int64 `yaml:"min_gross_amount"`
}

// RetryConfig limits manual retries per actor
type RetryConfig struct {
	MaxAttempts   int `yaml:"max_attempts"`
	WindowMinutes int `yaml:"window_minutes"`
}

// DisputeConfig contains dispute filing rules
type DisputeConfig struct {
	MinReasonLength int `yaml:"min_reason_length"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	Issuer            string `yaml:"issuer"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// NotificationsConfig contains delivery channel settings
type NotificationsConfig struct {
	SendGridAPIKey          string `yaml:"sendgrid_api_key"`
	FromEmail               string `yaml:"from_email"`
	FromName                string `yaml:"from_name"`
	FirebaseCredentialsFile string `yaml:"firebase_credentials_file"`
	SMTPHost                string `yaml:"smtp_host"`
	SMTPPort                int    `yaml:"smtp_port"`
	SMTPUser                string `yaml:"smtp_user"`
	SMTPPassword            string `yaml:"smtp_password"`
	BatchSize               int    `yaml:"batch_size"`
	MaxAttempts             int    `yaml:"max_attempts"`
}

// SettlementConfig contains settlement lifecycle timings
type SettlementConfig struct {
	StalePendingMinutes    int `yaml:"stale_pending_minutes"`
	PollAfterMinutes       int `yaml:"poll_after_minutes"`
	ProcessingTimeoutHours int `yaml:"processing_timeout_hours"`
	BatchSize              int `yaml:"batch_size"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "text" or "console"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileSettlements string `yaml:"reconcile_settlements"`
	RecoverStalePending  string `yaml:"recover_stale_pending"`
	ExpireProcessing     string `yaml:"expire_processing"`
	DeliverNotifications string `yaml:"deliver_notifications"`
	AuditReserve         string `yaml:"audit_reserve"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from YAML bytes, applies environment
// overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Gateway
	if val := os.Getenv("GATEWAY_BASE_URL"); val != "" {
		c.Gateway.BaseURL = val
	}
	if val := os.Getenv("GATEWAY_SECRET_KEY"); val != "" {
		c.Gateway.SecretKey = val
	}
	if val := os.Getenv("GATEWAY_WEBHOOK_SECRET"); val != "" {
		c.Gateway.WebhookSecret = val
	}

	// Notifications
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notifications.SendGridAPIKey = val
	}
	if val := os.Getenv("FIREBASE_CREDENTIALS_FILE"); val != "" {
		c.Notifications.FirebaseCredentialsFile = val
	}
	if val := os.Getenv("SMTP_HOST"); val != "" {
		c.Notifications.SMTPHost = val
	}
	if val := os.Getenv("SMTP_USER"); val != "" {
		c.Notifications.SMTPUser = val
	}
	if val := os.Getenv("SMTP_PASSWORD"); val != "" {
		c.Notifications.SMTPPassword = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.GRPCPort)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 15
	}

	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	// Gateway validation
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base url is required")
	}
	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway secret key is required")
	}
	if c.Gateway.Currency == "" {
		c.Gateway.Currency = "MWK"
	}
	if c.Gateway.CurrencyDecimals < 0 {
		return fmt.Errorf("invalid currency decimals: %d", c.Gateway.CurrencyDecimals)
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 30
	}
	if c.Gateway.RequestsPerSecond == 0 {
		c.Gateway.RequestsPerSecond = 10
	}
	if c.Gateway.Burst == 0 {
		c.Gateway.Burst = c.Gateway.RequestsPerSecond
	}
	c.Gateway.Operators = lowerKeys(c.Gateway.Operators, DefaultOperators)
	c.Gateway.Banks = lowerKeys(c.Gateway.Banks, DefaultBanks)

	// Fee validation
	if c.Fees.ReserveBps == 0 && c.Fees.PlatformBps == 0 {
		c.Fees.ReserveBps = 100
		c.Fees.PlatformBps = 700
	}
	if c.Fees.ReserveBps < 0 || c.Fees.PlatformBps < 0 || c.Fees.ReserveBps+c.Fees.PlatformBps >= 10000 {
		return fmt.Errorf("invalid fee rates: reserve %d bps, platform %d bps", c.Fees.ReserveBps, c.Fees.PlatformBps)
	}
	if c.Fees.MinGrossAmount == 0 {
		c.Fees.MinGrossAmount = 1
	}

	// Retry defaults
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.WindowMinutes == 0 {
		c.Retry.WindowMinutes = 60
	}

	// Dispute defaults
	if c.Dispute.MinReasonLength == 0 {
		c.Dispute.MinReasonLength = 20
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "chipereganyu"
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}

	// Notification defaults
	if c.Notifications.BatchSize == 0 {
		c.Notifications.BatchSize = 50
	}
	if c.Notifications.MaxAttempts == 0 {
		c.Notifications.MaxAttempts = 5
	}
	if c.Notifications.SMTPHost != "" && c.Notifications.SMTPPort == 0 {
		c.Notifications.SMTPPort = 587
	}
	if c.Notifications.FromName == "" {
		c.Notifications.FromName = "Chipereganyu"
	}

	// Settlement defaults
	if c.Settlement.StalePendingMinutes == 0 {
		c.Settlement.StalePendingMinutes = 10
	}
	if c.Settlement.PollAfterMinutes == 0 {
		c.Settlement.PollAfterMinutes = 5
	}
	if c.Settlement.ProcessingTimeoutHours == 0 {
		c.Settlement.ProcessingTimeoutHours = 72
	}
	if c.Settlement.BatchSize == 0 {
		c.Settlement.BatchSize = 100
	}

	// Scheduler defaults
	if c.Scheduler.ReconcileSettlements == "" {
		c.Scheduler.ReconcileSettlements = "0 */5 * * * *" // Every 5 minutes
	}
	if c.Scheduler.RecoverStalePending == "" {
		c.Scheduler.RecoverStalePending = "30 */10 * * * *" // Every 10 minutes
	}
	if c.Scheduler.ExpireProcessing == "" {
		c.Scheduler.ExpireProcessing = "0 0 * * * *" // Hourly
	}
	if c.Scheduler.DeliverNotifications == "" {
		c.Scheduler.DeliverNotifications = "*/30 * * * * *" // Every 30 seconds
	}
	if c.Scheduler.AuditReserve == "" {
		c.Scheduler.AuditReserve = "0 0 1 * * *" // 1 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

func (c *Config) RetryWindow() time.Duration {
	return time.Duration(c.Retry.WindowMinutes) * time.Minute
}

// DefaultOperators are the mobile money operators supported by the gateway.
var DefaultOperators = map[string]string{
	"airtel":       "20be6c20-adeb-4b5b-a7ba-0769820df4fb",
	"airtel money": "20be6c20-adeb-4b5b-a7ba-0769820df4fb",
	"tnm":          "27494cb5-ba9e-437f-a114-4e7a7686bcca",
	"tnm mpamba":   "27494cb5-ba9e-437f-a114-4e7a7686bcca",
	"mpamba":       "27494cb5-ba9e-437f-a114-4e7a7686bcca",
}

// DefaultBanks are the banks supported by the gateway.
var DefaultBanks = map[string]string{
	"national bank":       "82310dd1-ec9b-4fe7-a32c-2f262ef08681",
	"standard bank":       "87e62436-0553-4fb5-a76d-f27d28420c5b",
	"fdh bank":            "b064172a-8a1b-4f7f-aad7-81b036c46c57",
	"nbs bank":            "e7447c2c-c147-4907-b194-e087fe8d8585",
	"first capital bank":  "968ac588-3b1f-4d89-81ff-a3d43a599003",
	"ecobank":             "c759d7b6-ae5c-4a95-814a-79171271897a",
	"centenary bank":      "86007bf5-1b04-49ba-84c1-9758bbf5c996",
	"cdh investment bank": "236760c9-3045-4a01-990e-497b28d115bb",
}

// lowerKeys normalizes lookup table keys for case-insensitive matching,
// falling back to defaults when the table is empty.
func lowerKeys(table, defaults map[string]string) map[string]string {
	if len(table) == 0 {
		table = defaults
	}
	out := make(map[string]string, len(table))
	for k, v := range table {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
