// Package config reads placer settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/adplacer/placer"
	"github.com/IvanBrykalov/adplacer/policy"
	"github.com/IvanBrykalov/adplacer/policy/atend"
	"github.com/IvanBrykalov/adplacer/policy/fixed"
	"github.com/IvanBrykalov/adplacer/policy/move"
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/supply"
	"github.com/IvanBrykalov/adplacer/transport/httprules"
	"github.com/caarlos0/env/v11"
)

// Config holds every environment-tunable setting.
type Config struct {
	SupplyCapacity      int           `env:"ADPLACER_SUPPLY_CAPACITY"       envDefault:"3"`
	SupplyTTL           time.Duration `env:"ADPLACER_SUPPLY_TTL"            envDefault:"15m"`
	SupplyRetryBase     time.Duration `env:"ADPLACER_SUPPLY_RETRY_BASE"     envDefault:"1s"`
	SupplyRetryMax      time.Duration `env:"ADPLACER_SUPPLY_RETRY_MAX"      envDefault:"5m"`
	SupplyRetryAttempts int           `env:"ADPLACER_SUPPLY_RETRY_ATTEMPTS" envDefault:"5"`

	RulesRetryBase time.Duration `env:"ADPLACER_RULES_RETRY_BASE" envDefault:"1s"`
	RulesRetryMax  time.Duration `env:"ADPLACER_RULES_RETRY_MAX"  envDefault:"5m"`

	// RulesURL selects remote rules; RulesFile selects a static YAML document.
	// At most one may be set. With neither, placement is content only.
	RulesURL      string        `env:"ADPLACER_RULES_URL"`
	RulesFile     string        `env:"ADPLACER_RULES_FILE"`
	RulesCacheTTL time.Duration `env:"ADPLACER_RULES_CACHE_TTL" envDefault:"0s"`

	StrategyName string `env:"ADPLACER_STRATEGY"  envDefault:"move"`
	Lookahead    int    `env:"ADPLACER_LOOKAHEAD" envDefault:"0"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch {
	case c.SupplyCapacity <= 0:
		return fmt.Errorf("config: supply capacity must be positive, got %d", c.SupplyCapacity)
	case c.SupplyTTL <= 0:
		return errors.New("config: supply ttl must be positive")
	case c.SupplyRetryAttempts <= 0:
		return fmt.Errorf("config: supply retry attempts must be positive, got %d", c.SupplyRetryAttempts)
	case c.Lookahead < 0:
		return errors.New("config: lookahead must not be negative")
	case c.RulesURL != "" && c.RulesFile != "":
		return errors.New("config: ADPLACER_RULES_URL and ADPLACER_RULES_FILE are mutually exclusive")
	}
	if _, err := c.Strategy(); err != nil {
		return err
	}
	return nil
}

// Strategy resolves StrategyName to a content-change policy.
func (c Config) Strategy() (policy.Policy, error) {
	switch c.StrategyName {
	case "", "move":
		return move.New(), nil
	case "fixed":
		return fixed.New(), nil
	case "atend":
		return atend.New(), nil
	default:
		return nil, fmt.Errorf("config: unknown strategy %q", c.StrategyName)
	}
}

// SupplyOptions returns the queue settings. Fetcher and the runtime
// collaborators are left for the caller.
func SupplyOptions[T any](c Config) supply.Options[T] {
	return supply.Options[T]{
		Capacity:         c.SupplyCapacity,
		TTL:              c.SupplyTTL,
		RetryBase:        c.SupplyRetryBase,
		RetryMaxDelay:    c.SupplyRetryMax,
		RetryMaxAttempts: c.SupplyRetryAttempts,
	}
}

// SourceOptions returns the remote rules settings. Transport is nil unless
// RulesURL is set.
func (c Config) SourceOptions(log *slog.Logger) (positioning.ServerOptions, error) {
	so := positioning.ServerOptions{
		RetryBase:     c.RulesRetryBase,
		MaxRetryDelay: c.RulesRetryMax,
	}
	if c.RulesURL == "" {
		return so, nil
	}
	client, err := httprules.New(httprules.Options{
		BaseURL:   c.RulesURL,
		UserAgent: "adplacer",
		CacheTTL:  c.RulesCacheTTL,
		Logger:    log,
	})
	if err != nil {
		return so, fmt.Errorf("config: rules transport: %w", err)
	}
	so.Transport = client
	return so, nil
}

// StaticRules loads RulesFile, or returns the empty rule set without one.
func (c Config) StaticRules() (rules.Rules, error) {
	if c.RulesFile == "" {
		return rules.Rules{}, nil
	}
	return rules.LoadFile(c.RulesFile)
}

// PlacerOptions assembles placer options from c. The caller still sets the
// item-specific hooks (ViewType, OnDispose) and the Sink.
func PlacerOptions[T any](c Config, fetcher supply.Fetcher[T], log *slog.Logger) (placer.Options[T], error) {
	strategy, err := c.Strategy()
	if err != nil {
		return placer.Options[T]{}, err
	}
	static, err := c.StaticRules()
	if err != nil {
		return placer.Options[T]{}, fmt.Errorf("config: %w", err)
	}
	source, err := c.SourceOptions(log)
	if err != nil {
		return placer.Options[T]{}, err
	}
	so := SupplyOptions[T](c)
	so.Fetcher = fetcher
	return placer.Options[T]{
		Rules:       static,
		Positioning: source,
		Supply:      so,
		Policy:      strategy,
		Lookahead:   c.Lookahead,
		Logger:      log,
	}, nil
}
