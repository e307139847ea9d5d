package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TenancyConfig controls how request hostnames map to organizations.
type TenancyConfig struct {
	LocalHosts        []string `mapstructure:"localHosts"`
	PrivatePrefixes   []string `mapstructure:"privatePrefixes"`
	MainDomainAliases []string `mapstructure:"mainDomainAliases"`
	DevOrgParam       string   `mapstructure:"devOrgParam"`
	DevDefaultOrg     string   `mapstructure:"devDefaultOrg"`
}

func DefaultTenancyConfig() TenancyConfig {
	return TenancyConfig{
		LocalHosts:        []string{"localhost", "127.0.0.1", "::1"},
		PrivatePrefixes:   []string{"192.168.", "10."},
		MainDomainAliases: []string{"www"},
		DevOrgParam:       "org",
		DevDefaultOrg:     "demo",
	}
}

type TenancyConfigHolder struct {
	current atomic.Value // holds TenancyConfig
}

// NewStaticTenancyConfigHolder returns a holder that never reloads.
func NewStaticTenancyConfigHolder(cfg TenancyConfig) *TenancyConfigHolder {
	holder := &TenancyConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewTenancyConfigHolder(log *zap.Logger) (*TenancyConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.tenancy")

	v := viper.New()

	v.SetConfigName("tenancy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/kasira")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KASIRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultTenancyConfig()
	v.SetDefault("tenancy.localHosts", defaults.LocalHosts)
	v.SetDefault("tenancy.privatePrefixes", defaults.PrivatePrefixes)
	v.SetDefault("tenancy.mainDomainAliases", defaults.MainDomainAliases)
	v.SetDefault("tenancy.devOrgParam", defaults.DevOrgParam)
	v.SetDefault("tenancy.devDefaultOrg", defaults.DevDefaultOrg)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg TenancyConfig
	if err := v.UnmarshalKey("tenancy", &cfg); err != nil {
		return nil, err
	}
	if err := validateTenancyConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticTenancyConfigHolder(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated TenancyConfig
			if err := v.UnmarshalKey("tenancy", &updated); err != nil {
				log.Warn("tenancy config reload failed", zap.Error(err))
				return
			}
			if err := validateTenancyConfig(updated); err != nil {
				log.Warn("invalid tenancy config ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("tenancy config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *TenancyConfigHolder) Get() TenancyConfig {
	if h == nil {
		return DefaultTenancyConfig()
	}
	cfg, ok := h.current.Load().(TenancyConfig)
	if !ok {
		return DefaultTenancyConfig()
	}
	return cfg
}

func validateTenancyConfig(cfg TenancyConfig) error {
	if len(cfg.LocalHosts) == 0 {
		return errors.New("tenancy.localHosts cannot be empty")
	}
	if strings.TrimSpace(cfg.DevOrgParam) == "" {
		return errors.New("tenancy.devOrgParam is required")
	}
	if strings.TrimSpace(cfg.DevDefaultOrg) == "" {
		return errors.New("tenancy.devDefaultOrg is required")
	}
	return nil
}
