package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Fit    FitConfig    `yaml:"fit" mapstructure:"fit"`
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// FitConfig configures the multi-start estimator.
type FitConfig struct {
	Restarts          int     `yaml:"restarts" mapstructure:"restarts"`
	MaxIter           int     `yaml:"max_iter" mapstructure:"max_iter"`
	Seed              uint64  `yaml:"seed" mapstructure:"seed"`
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	KStartMax         float64 `yaml:"k_start_max" mapstructure:"k_start_max"`
	MStartMax         float64 `yaml:"m_start_max" mapstructure:"m_start_max"`
	KMax              float64 `yaml:"k_max" mapstructure:"k_max"`
	MMax              float64 `yaml:"m_max" mapstructure:"m_max"`
	DegenerateEpsilon float64 `yaml:"degenerate_epsilon" mapstructure:"degenerate_epsilon"`
}

// DataConfig locates trial data and fitted parameter files.
type DataConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	ParamsDir string `yaml:"params_dir" mapstructure:"params_dir"`
}

// StoreConfig configures the fit history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`

	// ConnectAttempts bounds retries of transient open and migrate failures.
	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	FitRatePerMin  float64  `yaml:"fit_rate_per_min" mapstructure:"fit_rate_per_min"`
	FitBurst       int      `yaml:"fit_burst" mapstructure:"fit_burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FITK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("fit.restarts", 1000)
	v.SetDefault("fit.max_iter", 10000)
	v.SetDefault("fit.seed", 0)
	v.SetDefault("fit.workers", 0)
	v.SetDefault("fit.k_start_max", 0.02)
	v.SetDefault("fit.m_start_max", 2.0)
	v.SetDefault("fit.k_max", 1.0)
	v.SetDefault("fit.m_max", 200.0)
	v.SetDefault("fit.degenerate_epsilon", 0.0)
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.params_dir", "data/fitted")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "fitk.db")
	v.SetDefault("store.connect_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.fit_rate_per_min", 6.0)
	v.SetDefault("server.fit_burst", 2)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "fit",
// "store" or "serve"; "serve" implies the other two.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkFit := func() {
		f := c.Fit
		if f.Restarts < 1 {
			problems = append(problems, "fit.restarts must be >= 1")
		}
		if f.MaxIter < 1 {
			problems = append(problems, "fit.max_iter must be >= 1")
		}
		if f.Workers < 0 {
			problems = append(problems, "fit.workers must be >= 0")
		}
		if f.KStartMax <= 0 || f.MStartMax <= 0 {
			problems = append(problems, "fit.k_start_max and fit.m_start_max must be > 0")
		}
		if f.KMax <= 0 || f.MMax <= 0 {
			problems = append(problems, "fit.k_max and fit.m_max must be > 0")
		}
		if f.DegenerateEpsilon < 0 || f.DegenerateEpsilon >= 0.5 {
			problems = append(problems, "fit.degenerate_epsilon must be in [0, 0.5)")
		}
	}
	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	}

	switch mode {
	case "fit":
		checkFit()
	case "store":
		checkStore()
	case "serve":
		checkFit()
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.FitRatePerMin <= 0 {
			problems = append(problems, "server.fit_rate_per_min must be > 0")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
