/*
Package config loads planner configuration.

PRECEDENCE (highest first):
  1. Environment variables, PLANNER_ prefix, "." replaced by "_"
     (PLANNER_AUTH_JWT_SECRET, PLANNER_STORE_DRIVER, ...)
  2. YAML config file (explicit path, or ./config/config.yaml, ./config.yaml)
  3. Defaults below

cmd/server loads a .env file into the environment before calling Load.

VALIDATION:
  Struct tags are checked with go-playground/validator, then cross-field
  rules: region known, roles parse, employee ids unique, admin ids exist.
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/warp/vacation-planner/calendar"
	"github.com/warp/vacation-planner/directory"
	"github.com/warp/vacation-planner/leave"
	"github.com/warp/vacation-planner/logging"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       logging.Config  `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// StoreConfig selects the request store.
type StoreConfig struct {
	Driver     string      `mapstructure:"driver" validate:"oneof=memory sqlite redis"`
	SQLitePath string      `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig is used by the redis store and redis token revocation.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Key      string `mapstructure:"key"`
}

// PlannerConfig holds the admission policy.
type PlannerConfig struct {
	Region         string `mapstructure:"region" validate:"required,region"`
	MaxAbsent      int    `mapstructure:"max_absent" validate:"min=1"`
	MinSupervisors int    `mapstructure:"min_supervisors" validate:"min=0"`
	// DisplayYear selects the holiday list shown on the dashboard; 0 means
	// the current year.
	DisplayYear int `mapstructure:"display_year" validate:"min=0"`
	MaxRetries  int `mapstructure:"max_retries" validate:"min=1,max=50"`
}

// Policy returns the admission policy.
func (p PlannerConfig) Policy() leave.Policy {
	return leave.Policy{MaxAbsent: p.MaxAbsent, MinSupervisors: p.MinSupervisors}
}

// AuthConfig configures sessions and administrators.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=16"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
	AdminIDs  []string      `mapstructure:"admin_ids"`
	// LoginRate is login attempts per second per client IP.
	LoginRate  float64 `mapstructure:"login_rate" validate:"gt=0"`
	LoginBurst int     `mapstructure:"login_burst" validate:"min=1"`
	// Revocations selects where logged-out token ids live: memory or redis.
	Revocations string `mapstructure:"revocations" validate:"oneof=memory redis"`
}

// DirectoryConfig holds the roster.
type DirectoryConfig struct {
	Employees []EmployeeConfig `mapstructure:"employees" validate:"dive"`
}

// EmployeeConfig is one roster entry.
type EmployeeConfig struct {
	ID        string `mapstructure:"id" validate:"required"`
	Name      string `mapstructure:"name" validate:"required"`
	Greeting  string `mapstructure:"greeting"`
	Allowance int    `mapstructure:"allowance" validate:"gt=0"`
	Role      string `mapstructure:"role" validate:"required,role"`
}

// ReportConfig configures the periodic report.
type ReportConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	Dir      string        `mapstructure:"dir" validate:"required_if=Enabled true"`
}

// Load reads configuration from path (optional), the environment and
// defaults, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Directory.Employees) == 0 {
		cfg.Directory.Employees = defaultEmployees()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/planner.db")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key", "planner:requests")

	v.SetDefault("planner.region", "BW")
	v.SetDefault("planner.max_absent", leave.DefaultPolicy.MaxAbsent)
	v.SetDefault("planner.min_supervisors", leave.DefaultPolicy.MinSupervisors)
	v.SetDefault("planner.display_year", 0)
	v.SetDefault("planner.max_retries", leave.DefaultMaxRetries)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "8h")
	v.SetDefault("auth.admin_ids", []string{"1001"})
	v.SetDefault("auth.login_rate", 1.0)
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("auth.revocations", "memory")

	v.SetDefault("report.enabled", true)
	v.SetDefault("report.interval", "168h")
	v.SetDefault("report.dir", "./reports")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func defaultEmployees() []EmployeeConfig {
	emps := directory.DefaultEmployees()
	out := make([]EmployeeConfig, 0, len(emps))
	for _, e := range emps {
		out = append(out, EmployeeConfig{
			ID: e.ID, Name: e.Name, Greeting: e.Greeting, Allowance: e.Allowance, Role: string(e.Role),
		})
	}
	return out
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("region", func(fl validator.FieldLevel) bool {
		_, err := calendar.LookupRegion(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, err := leave.ParseRole(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks tags and cross-field rules.
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Store.Driver == "redis" || c.Auth.Revocations == "redis" {
		if c.Store.Redis.Addr == "" {
			return errors.New("invalid config: store.redis.addr is required for redis")
		}
	}

	ids := make(map[string]bool, len(c.Directory.Employees))
	for _, e := range c.Directory.Employees {
		if ids[e.ID] {
			return fmt.Errorf("invalid config: duplicate employee id %q", e.ID)
		}
		ids[e.ID] = true
	}
	for _, id := range c.Auth.AdminIDs {
		if !ids[id] {
			return fmt.Errorf("invalid config: admin id %q is not in the roster", id)
		}
	}
	return nil
}

// Employees converts the roster to domain employees.
func (c *Config) Employees() ([]leave.Employee, error) {
	out := make([]leave.Employee, 0, len(c.Directory.Employees))
	for _, e := range c.Directory.Employees {
		role, err := leave.ParseRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("employee %s: %w", e.ID, err)
		}
		greeting := e.Greeting
		if greeting == "" {
			greeting = e.Name
		}
		out = append(out, leave.Employee{
			ID: e.ID, Name: e.Name, Greeting: greeting, Allowance: e.Allowance, Role: role,
		})
	}
	return out, nil
}
