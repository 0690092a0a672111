// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Serial    SerialConfig    `mapstructure:"serial"`
	Handshake HandshakeConfig `mapstructure:"handshake"`
	Schema    SchemaConfig    `mapstructure:"schema"`
	Provision ProvisionConfig `mapstructure:"provision"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Server    ServerConfig    `mapstructure:"server"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// SerialConfig represents the receiver serial line
type SerialConfig struct {
	Port     string        `mapstructure:"port"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	StopBits int           `mapstructure:"stop_bits"`
	Parity   string        `mapstructure:"parity"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// HandshakeConfig bounds the RESET/ENQ exchange
type HandshakeConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// SchemaConfig locates the receiver record layout
type SchemaConfig struct {
	Path string `mapstructure:"path"`
}

// ProvisionConfig controls a command line provisioning run
type ProvisionConfig struct {
	File    string `mapstructure:"file"`
	Verbose bool   `mapstructure:"verbose"`
	DryRun  bool   `mapstructure:"dry_run"`
}

// JournalConfig represents the run journal database
type JournalConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Retention    time.Duration `mapstructure:"retention"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Journal drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"port":      "serial.port",
	"speed":     "serial.baud_rate",
	"bit":       "serial.data_bits",
	"parity":    "serial.parity",
	"stop":      "serial.stop_bits",
	"schema":    "schema.path",
	"file":      "provision.file",
	"verbose":   "provision.verbose",
	"dry-run":   "provision.dry_run",
	"listen":    "server.port",
	"log-level": "logging.level",
}

// Load loads configuration from an optional file, environment variables
// and command line flags, in increasing priority
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gnssconf")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/gnssconf")
	}

	// Environment variable support
	v.SetEnvPrefix("GNSSCONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Serial.Parity = normalizeParity(config.Serial.Parity)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "gnssconf")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Serial defaults
	v.SetDefault("serial.port", "/dev/ttyUL1")
	v.SetDefault("serial.baud_rate", 115200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.parity", "none")
	v.SetDefault("serial.timeout", "1s")

	v.SetDefault("handshake.max_attempts", 256)

	v.SetDefault("schema.path", "./schema/Trimble-BX992.json")

	v.SetDefault("provision.verbose", false)
	v.SetDefault("provision.dry_run", false)

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.driver", DriverSQLite)
	v.SetDefault("journal.dsn", "./data/journal.db")
	v.SetDefault("journal.max_open_conns", 1)
	v.SetDefault("journal.max_idle_conns", 1)
	v.SetDefault("journal.max_lifetime", "5m")
	v.SetDefault("journal.retention", "720h")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8084")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")

	v.SetDefault("security.allowed_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
}

// normalizeParity accepts the single letter forms N, O and E
func normalizeParity(parity string) string {
	switch p := strings.ToLower(parity); p {
	case "n":
		return "none"
	case "o":
		return "odd"
	case "e":
		return "even"
	default:
		return p
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	if config.Serial.DataBits != 7 && config.Serial.DataBits != 8 {
		return fmt.Errorf("serial.data_bits must be 7 or 8")
	}
	if config.Serial.StopBits != 1 && config.Serial.StopBits != 2 {
		return fmt.Errorf("serial.stop_bits must be 1 or 2")
	}
	validParity := []string{"none", "odd", "even"}
	if !slices.Contains(validParity, config.Serial.Parity) {
		return fmt.Errorf("serial.parity must be one of: %v", validParity)
	}
	if config.Handshake.MaxAttempts <= 0 {
		return fmt.Errorf("handshake.max_attempts must be positive")
	}
	if config.Schema.Path == "" {
		return fmt.Errorf("schema.path is required")
	}

	if config.Journal.Enabled {
		if config.Journal.Driver != DriverSQLite && config.Journal.Driver != DriverPostgres {
			return fmt.Errorf("journal.driver must be %s or %s", DriverSQLite, DriverPostgres)
		}
		if config.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required")
		}
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !slices.Contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !slices.Contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.App.Environment == "development"
}
