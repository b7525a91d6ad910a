package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PackageOption is one sellable bundle of accounts.
type PackageOption struct {
	Size     int     `json:"size" mapstructure:"size"`
	Price    float64 `json:"price" mapstructure:"price"`
	Currency string  `json:"currency" mapstructure:"currency"`
}

// CatalogConfig is the storefront package catalog.
type CatalogConfig struct {
	Packages []PackageOption `json:"packages" mapstructure:"packages"`
}

func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Packages: []PackageOption{
			{Size: 25, Price: 9.99, Currency: "USD"},
			{Size: 50, Price: 17.99, Currency: "USD"},
			{Size: 100, Price: 29.99, Currency: "USD"},
		},
	}
}

// CatalogHolder serves the current catalog and hot-reloads it from disk.
type CatalogHolder struct {
	current atomic.Value // holds CatalogConfig
}

func NewCatalogHolder() (*CatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("storefront")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/vendora/config")
	v.AddConfigPath("/etc/vendora")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VENDORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCatalogConfig()
		v.SetDefault("storefront.packages", defaults.Packages)
	}

	var cfg CatalogConfig
	if err := v.UnmarshalKey("storefront", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Packages) == 0 {
		cfg = DefaultCatalogConfig()
	}
	if err := validateCatalog(cfg); err != nil {
		return nil, err
	}

	holder := &CatalogHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CatalogConfig
		if err := v.UnmarshalKey("storefront", &updated); err != nil {
			log.Printf("[storefront-config] reload failed: %v", err)
			return
		}
		if err := validateCatalog(updated); err != nil {
			log.Printf("[storefront-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[storefront-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticCatalogHolder wraps a fixed catalog without file watching.
func NewStaticCatalogHolder(cfg CatalogConfig) *CatalogHolder {
	holder := &CatalogHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CatalogHolder) Get() CatalogConfig {
	return h.current.Load().(CatalogConfig)
}

// KnownSize reports whether size is a sellable package size.
func (h *CatalogHolder) KnownSize(size int) bool {
	for _, p := range h.Get().Packages {
		if p.Size == size {
			return true
		}
	}
	return false
}

func validateCatalog(cfg CatalogConfig) error {
	if len(cfg.Packages) == 0 {
		return errors.New("storefront catalog needs at least one package")
	}
	seen := make(map[int]bool, len(cfg.Packages))
	for _, p := range cfg.Packages {
		if p.Size <= 0 {
			return fmt.Errorf("package size must be positive, got %d", p.Size)
		}
		if p.Price < 0 {
			return fmt.Errorf("package %d price must not be negative", p.Size)
		}
		if seen[p.Size] {
			return fmt.Errorf("duplicate package size %d", p.Size)
		}
		seen[p.Size] = true
	}
	return nil
}
