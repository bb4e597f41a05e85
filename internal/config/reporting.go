package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReportingConfig tunes the read side. It can be edited at runtime.
type ReportingConfig struct {
	RankingLimit    int `mapstructure:"rankingLimit"`
	MaxTrendBuckets int `mapstructure:"maxTrendBuckets"`
	RecentLimit     int `mapstructure:"recentLimit"`
}

func DefaultReportingConfig() ReportingConfig {
	return ReportingConfig{
		RankingLimit:    10,
		MaxTrendBuckets: 24 * 62,
		RecentLimit:     10,
	}
}

type ReportingConfigHolder struct {
	current atomic.Value // holds ReportingConfig
}

// NewStaticReportingConfigHolder returns a holder that never reloads.
func NewStaticReportingConfigHolder(cfg ReportingConfig) *ReportingConfigHolder {
	holder := &ReportingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewReportingConfigHolder() (*ReportingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("reporting")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/staybook/config")
	v.AddConfigPath("/etc/staybook")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STAYBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultReportingConfig()
	v.SetDefault("reporting.rankingLimit", defaults.RankingLimit)
	v.SetDefault("reporting.maxTrendBuckets", defaults.MaxTrendBuckets)
	v.SetDefault("reporting.recentLimit", defaults.RecentLimit)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg ReportingConfig
	if err := v.UnmarshalKey("reporting", &cfg); err != nil {
		return nil, err
	}
	if err := validateReportingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticReportingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated ReportingConfig
		if err := v.UnmarshalKey("reporting", &updated); err != nil {
			log.Printf("[reporting-config] reload failed: %v", err)
			return
		}
		if err := validateReportingConfig(updated); err != nil {
			log.Printf("[reporting-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[reporting-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *ReportingConfigHolder) Get() ReportingConfig {
	return h.current.Load().(ReportingConfig)
}

func validateReportingConfig(cfg ReportingConfig) error {
	if cfg.RankingLimit <= 0 {
		return errors.New("reporting.rankingLimit must be positive")
	}
	if cfg.MaxTrendBuckets <= 0 {
		return errors.New("reporting.maxTrendBuckets must be positive")
	}
	if cfg.RecentLimit <= 0 {
		return errors.New("reporting.recentLimit must be positive")
	}
	return nil
}
