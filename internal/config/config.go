// Package config loads and validates user/config.json: the configured
// output (Client) list and the system.* tuning knobs.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/starscheduler/starscheduler/internal/model"
)

const envPrefix = "STARSCHEDULER_"

// defaults seeds the koanf instance before the file and env providers
// are merged on top, matching spec.md §6's documented defaults.
var defaults = map[string]interface{}{
	"system.performance.maxThreads":          4,
	"system.performance.schedulerPollIntervalMs": 100,
	"system.performance.cacheUpdateIntervalSec":  5,
	"system.logLevel":                 "info",
	"system.logSTDOUT":                false,
	"system.cancelPresentationsOnExit": false,
}

// Config is the validated, typed view of user/config.json.
type Config struct {
	Outputs []model.Client

	MaxThreads               int
	SchedulerPollIntervalMs  int
	CacheUpdateIntervalSec   int
	LogLevel                 string
	LogSTDOUT                bool
	CancelPresentationsOnExit bool
}

// rawOutput mirrors one entry of the "outputs" array exactly as it
// appears in config.json (spec.md §6), before conversion to
// model.Client.
type rawOutput struct {
	ID          string `koanf:"id"`
	Star        string `koanf:"star"`
	DisplayName string `koanf:"displayName"`
	Protocol    string `koanf:"protocol"`
	Credentials struct {
		Hostname string `koanf:"hostname"`
		Port     int    `koanf:"port"`
		User     string `koanf:"user"`
		Password string `koanf:"password"`
		SU       string `koanf:"su"`
	} `koanf:"credentials"`
}

// Load reads path (normally "user/config.json"), layers environment
// overrides of the form STARSCHEDULER_SYSTEM_LOGLEVEL=debug on top,
// and returns a validated Config. A missing or malformed file is a
// Config-missing error (spec.md §7): callers should treat it as fatal.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	// koanf keys are case-sensitive, so a lower-cased env key is mapped
	// back to the spelling of the matching default key.
	canonical := make(map[string]string, len(defaults))
	for key := range defaults {
		canonical[strings.ToLower(key)] = key
	}
	envKey := func(s string) string {
		key := envKeyTransform(s)
		if c, ok := canonical[key]; ok {
			return c
		}
		return key
	}
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("config: read environment overrides: %w", err)
	}

	var raw []rawOutput
	if err := k.Unmarshal("outputs", &raw); err != nil {
		return Config{}, fmt.Errorf("config: parse outputs: %w", err)
	}

	cfg := Config{
		MaxThreads:                k.Int("system.performance.maxThreads"),
		SchedulerPollIntervalMs:   k.Int("system.performance.schedulerPollIntervalMs"),
		CacheUpdateIntervalSec:    k.Int("system.performance.cacheUpdateIntervalSec"),
		LogLevel:                  k.String("system.logLevel"),
		LogSTDOUT:                 k.Bool("system.logSTDOUT"),
		CancelPresentationsOnExit: k.Bool("system.cancelPresentationsOnExit"),
	}
	for _, ro := range raw {
		cfg.Outputs = append(cfg.Outputs, toClient(ro))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeyTransform turns STARSCHEDULER_SYSTEM_LOGLEVEL into
// system.loglevel: it strips the prefix (koanf's env provider passes
// the full variable name), lower-cases the rest, and swaps "_" for the
// "." delimiter. Load maps the result back to the camelCase key.
func envKeyTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "_", ".")
}

func toClient(ro rawOutput) model.Client {
	family := model.Family(ro.Star)
	id := ro.ID
	if id == "" {
		id = model.DeriveID(family, ro.Credentials.Hostname)
	}
	transport := model.Transport(ro.Protocol)
	port := ro.Credentials.Port
	if port == 0 {
		port = transport.DefaultPort()
	}
	return model.Client{
		ID:             id,
		Family:         family,
		Transport:      transport,
		Hostname:       ro.Credentials.Hostname,
		Port:           port,
		User:           ro.Credentials.User,
		Password:       ro.Credentials.Password,
		SubstituteUser: ro.Credentials.SU,
	}
}

// Validate enforces the invariants from spec.md §3: client ids are
// unique and every client's own Validate (the i1 substitute-user
// requirement) passes.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Outputs))
	for _, cl := range c.Outputs {
		if seen[cl.ID] {
			return fmt.Errorf("config: duplicate client id %q", cl.ID)
		}
		seen[cl.ID] = true
		if err := cl.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("config: system.performance.maxThreads must be >= 1")
	}
	return nil
}
