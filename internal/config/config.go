package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. MINDER_DISCORD_TOKEN.
const EnvPrefix = "minder"

type Config struct {
	Discord   Discord   `yaml:"discord" envconfig:"discord"`
	Database  Database  `yaml:"database" envconfig:"database"`
	Web       Web       `yaml:"web" envconfig:"web"`
	Scheduler Scheduler `yaml:"scheduler" envconfig:"scheduler"`
	Log       Log       `yaml:"log" envconfig:"log"`
	Bot       BotConfig `yaml:"bot" ignored:"true"`
}

type Discord struct {
	Token      string   `yaml:"token" envconfig:"token"`
	ClientID   string   `yaml:"client_id" envconfig:"client_id"`
	DMCommands []string `yaml:"dm_commands" envconfig:"dm_commands"`
}

type Database struct {
	Driver   string `yaml:"driver" envconfig:"driver"`
	Host     string `yaml:"host" envconfig:"host"`
	Port     int    `yaml:"port" envconfig:"port"`
	User     string `yaml:"user" envconfig:"user"`
	Password string `yaml:"password" envconfig:"password"`
	DBName   string `yaml:"dbname" envconfig:"dbname"`
	SSLMode  string `yaml:"sslmode" envconfig:"sslmode"`
	Table    string `yaml:"table" envconfig:"table"`
	Path     string `yaml:"path" envconfig:"path"`
	MaxConns int32  `yaml:"max_conns" envconfig:"max_conns"`
	MinConns int32  `yaml:"min_conns" envconfig:"min_conns"`
}

// DSN returns the Postgres connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type Web struct {
	Addr           string        `yaml:"addr" envconfig:"addr"`
	JWTSecret      string        `yaml:"jwt_secret" envconfig:"jwt_secret"`
	TokenTTL       time.Duration `yaml:"token_ttl" envconfig:"token_ttl"`
	BcryptCost     int           `yaml:"bcrypt_cost" envconfig:"bcrypt_cost"`
	AllowedOrigins []string      `yaml:"allowed_origins" envconfig:"allowed_origins"`
}

type Scheduler struct {
	DefaultTimezone string        `yaml:"default_timezone" envconfig:"default_timezone"`
	FireOverdue     bool          `yaml:"fire_overdue" envconfig:"fire_overdue"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" envconfig:"delivery_timeout"`
}

type Log struct {
	Level    string `yaml:"level" envconfig:"level"`
	Encoding string `yaml:"encoding" envconfig:"encoding"`
}

// Default returns the configuration used for any key the file and environment leave unset.
func Default() *Config {
	return &Config{
		Discord: Discord{
			DMCommands: []string{"reminders", "when", "timezone", "settings"},
		},
		Database: Database{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			SSLMode:  "disable",
			Table:    "kv_entries",
			Path:     "minder.db",
			MaxConns: 10,
			MinConns: 2,
		},
		Web: Web{
			Addr:       ":9091",
			TokenTTL:   24 * time.Hour,
			BcryptCost: 12,
		},
		Scheduler: Scheduler{
			DefaultTimezone: "UTC",
			FireOverdue:     true,
			DeliveryTimeout: 30 * time.Second,
		},
		Log: Log{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Load reads the YAML file at path, expands ${VAR} placeholders and applies MINDER_* overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data, os.Environ())
}

// Parse builds a Config from raw YAML and the given environment.
func Parse(data []byte, environ []string) (*Config, error) {
	content := substituteEnv(string(data), environ)

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	restore := setEnv(environ)
	err := envconfig.Process(EnvPrefix, cfg)
	restore()
	if err != nil {
		return nil, fmt.Errorf("error applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the rest of the process relies on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Scheduler.DefaultTimezone == "" {
		c.Scheduler.DefaultTimezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Scheduler.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid scheduler.default_timezone %q: %w", c.Scheduler.DefaultTimezone, err)
	}
	if c.Scheduler.DeliveryTimeout <= 0 {
		return fmt.Errorf("scheduler.delivery_timeout must be positive")
	}
	return nil
}

func substituteEnv(content string, environ []string) string {
	for _, env := range environ {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		placeholder := "${" + pair[0] + "}"
		content = strings.ReplaceAll(content, placeholder, pair[1])
	}
	return content
}

// setEnv makes environ visible to envconfig, which only reads the process environment.
// The returned func puts back whatever was there before.
func setEnv(environ []string) func() {
	type prev struct {
		value string
		ok    bool
	}
	saved := make(map[string]prev)
	for _, env := range environ {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 || !strings.HasPrefix(strings.ToUpper(pair[0]), strings.ToUpper(EnvPrefix)+"_") {
			continue
		}
		if _, seen := saved[pair[0]]; !seen {
			v, ok := os.LookupEnv(pair[0])
			saved[pair[0]] = prev{v, ok}
		}
		os.Setenv(pair[0], pair[1])
	}
	return func() {
		for k, p := range saved {
			if p.ok {
				os.Setenv(k, p.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}
