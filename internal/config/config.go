// Package config merges configuration from file, environment, and flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig holds configuration for the serve command.
type ServerConfig struct {
	Port             string
	DatabaseURL      string
	RedisURL         string
	CacheTTL         time.Duration
	MCR              string
	PricerStepPeriod string
	OracleMaxAge     time.Duration
	HedgedShare      string
	MaxAssetExposure string
	MaxTotalExposure string
	LogLevel         string
}

// LoadServer merges config file, environment variables, and flags into
// ServerConfig. Environment variables use the ELISION_ prefix
// (ELISION_DATABASE_URL, ...).
func LoadServer(cfgFile string, flags *pflag.FlagSet) (ServerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("ELISION")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("mcr", "1.5")
	v.SetDefault("pricer-step-period", "1")
	v.SetDefault("oracle-max-age", 5*time.Minute)
	v.SetDefault("hedged-share", "0.5")
	v.SetDefault("max-asset-exposure", "100000")
	v.SetDefault("max-total-exposure", "500000")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return ServerConfig{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return ServerConfig{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := ServerConfig{
		Port:             v.GetString("port"),
		DatabaseURL:      v.GetString("database-url"),
		RedisURL:         v.GetString("redis-url"),
		CacheTTL:         v.GetDuration("cache-ttl"),
		MCR:              v.GetString("mcr"),
		PricerStepPeriod: v.GetString("pricer-step-period"),
		OracleMaxAge:     v.GetDuration("oracle-max-age"),
		HedgedShare:      v.GetString("hedged-share"),
		MaxAssetExposure: v.GetString("max-asset-exposure"),
		MaxTotalExposure: v.GetString("max-total-exposure"),
		LogLevel:         v.GetString("log-level"),
	}

	return cfg, nil
}
