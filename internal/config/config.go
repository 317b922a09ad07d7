package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Expense  ExpenseConfig  `mapstructure:"expense"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// TrackingConfig holds location tracking configuration
type TrackingConfig struct {
	MinDistanceM     float64       `mapstructure:"min_distance_m"`
	CoarseCeilingM   float64       `mapstructure:"coarse_ceiling_m"`
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	AcquisitionLimit time.Duration `mapstructure:"acquisition_timeout"`

	// AgentEnabled runs an in-process tracking agent that feeds a
	// simulated location source into the named employee's active
	// trips. Meant for development and demo deployments.
	AgentEnabled    bool    `mapstructure:"agent_enabled"`
	AgentEmployeeID string  `mapstructure:"agent_employee_id"`
	AgentStartLat   float64 `mapstructure:"agent_start_lat"`
	AgentStartLon   float64 `mapstructure:"agent_start_lon"`
}

// ExpenseConfig holds expense policy configuration
type ExpenseConfig struct {
	DefaultPerKmRate      string `mapstructure:"default_per_km_rate"`
	DefaultDailyAllowance string `mapstructure:"default_daily_allowance"`
	FuelPricePerLitre     string `mapstructure:"fuel_price_per_litre"`
}

// ApprovalConfig holds claim approval configuration
type ApprovalConfig struct {
	EscalationPollInterval time.Duration `mapstructure:"escalation_poll_interval"`
}

// LarkConfig holds Lark messenger credentials. Empty credentials
// disable approver notifications.
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Best-effort .env overlay before viper reads the environment
	_ = gotenv.Load()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/tripexpense.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	viper.SetDefault("tracking.min_distance_m", 10.0)
	viper.SetDefault("tracking.coarse_ceiling_m", 5000.0)
	viper.SetDefault("tracking.sample_interval", 15*time.Second)
	viper.SetDefault("tracking.acquisition_timeout", 10*time.Second)
	viper.SetDefault("tracking.agent_enabled", false)
	viper.SetDefault("tracking.agent_start_lat", 28.6139)
	viper.SetDefault("tracking.agent_start_lon", 77.2090)

	viper.SetDefault("expense.default_per_km_rate", "8")
	viper.SetDefault("expense.default_daily_allowance", "0")
	viper.SetDefault("expense.fuel_price_per_litre", "100")

	viper.SetDefault("approval.escalation_poll_interval", 5*time.Minute)

	viper.SetDefault("lark.api_timeout", 10*time.Second)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	// Sensitive credentials come from the environment only
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Tracking.MinDistanceM < 0 {
		return fmt.Errorf("tracking.min_distance_m must not be negative")
	}
	if c.Tracking.AgentEnabled && c.Tracking.AgentEmployeeID == "" {
		return fmt.Errorf("tracking.agent_employee_id is required when tracking.agent_enabled is set")
	}
	if c.Expense.DefaultPerKmRate == "" {
		return fmt.Errorf("expense.default_per_km_rate is required")
	}
	if c.Expense.FuelPricePerLitre == "" {
		return fmt.Errorf("expense.fuel_price_per_litre is required")
	}
	// Lark credentials are optional: both or neither
	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}
	return nil
}
