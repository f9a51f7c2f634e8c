/*
config.go Engine-level configuration for the doe binary: input document paths,
solver tuning and logging. Component-level handler configs (mongo, nats,
meters) stay in their own JSON documents and are referenced here by path.
*/

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full engine configuration.
type Config struct {
	Topology    string       `mapstructure:"topology"`
	Constraints string       `mapstructure:"constraints"`
	Forecast    string       `mapstructure:"forecast"`
	Meters      string       `mapstructure:"meters"`
	Workers     int          `mapstructure:"workers"`
	Solver      SolverConfig `mapstructure:"solver"`
	MongoConfig string       `mapstructure:"mongo_config"`
	NATSConfig  string       `mapstructure:"nats_config"`
	Log         LogConfig    `mapstructure:"log"`
}

// SolverConfig tunes the envelope search.
type SolverConfig struct {
	MaxSearchKW       float64 `mapstructure:"max_search_kw"`
	ResolutionKW      float64 `mapstructure:"resolution_kw"`
	MaxIterations     int     `mapstructure:"max_iterations"`
	UncertaintyMargin float64 `mapstructure:"uncertainty_margin"`
	PowerFactor       float64 `mapstructure:"power_factor"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the engine configuration from a file (or ./doe.yaml) with DOE_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("doe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("DOE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("workers", 4)
	v.SetDefault("solver.resolution_kw", 0.01)
	v.SetDefault("solver.max_iterations", 64)
	v.SetDefault("solver.uncertainty_margin", 0.15)
	v.SetDefault("solver.power_factor", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	if err := v.ReadInConfig(); err != nil {
		// config file is optional when every input comes from flags/env
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read")
		}
	}

	cfg := Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// InitLogger installs the global zap logger.
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
