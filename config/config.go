// Package config loads the settings of a high fives server from a TOML file
// and HIGHFIVES_* environment variables, the latter taking precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/highfives-app/highfives/nostr"
	"github.com/highfives-app/highfives/nostr/nip19"
	"github.com/highfives-app/highfives/sdk"
	"github.com/highfives-app/highfives/store"
	"github.com/highfives-app/highfives/store/boltstore"
	"github.com/highfives-app/highfives/store/slicestore"
	"github.com/highfives-app/highfives/store/sqlstore"
	"github.com/rs/zerolog"
)

const EnvPrefix = "HIGHFIVES_"

type Config struct {
	Listen   string `toml:"listen"`
	LogLevel string `toml:"log_level"`

	// SecretKey signs broadcast notes, as an nsec or hex. Broadcasting is off without it.
	SecretKey string `toml:"secret_key"`

	BroadcastRelays []string `toml:"broadcast_relays"`
	ProfileRelays   []string `toml:"profile_relays"`

	// Nameserver receives BIP-353 queries, the first one of /etc/resolv.conf when empty.
	Nameserver string `toml:"nameserver"`

	QueueSize   int      `toml:"queue_size"`
	CORSOrigins []string `toml:"cors_origins"`

	Store    Store    `toml:"store"`
	Timeouts Timeouts `toml:"timeouts"`
}

type Store struct {
	// Backend is one of "memory", "bolt" or "sql".
	Backend string `toml:"backend"`

	// Path is the bolt file, or the DSN for sql: a sqlite file or a postgres:// URL.
	Path string `toml:"path"`
}

type Timeouts struct {
	DNS       time.Duration `toml:"dns"`
	Lightning time.Duration `toml:"lightning"`
	Profile   time.Duration `toml:"profile"`
	Publish   time.Duration `toml:"publish"`
}

func Default() Config {
	return Config{
		Listen:    "127.0.0.1:8080",
		LogLevel:  "info",
		QueueSize: 256,
		Store:     Store{Backend: "memory"},
		Timeouts: Timeouts{
			DNS:       3 * time.Second,
			Lightning: 5 * time.Second,
			Profile:   4 * time.Second,
			Publish:   7 * time.Second,
		},
	}
}

// Load reads path over the defaults, then applies the environment. An empty
// path only uses the defaults and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return cfg, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return cfg, fmt.Errorf("unknown setting '%s' in %s", undecoded[0], path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	duration := func(name string, dst *time.Duration) error {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
		return nil
	}

	str("LISTEN", &cfg.Listen)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("SECRET_KEY", &cfg.SecretKey)
	str("NAMESERVER", &cfg.Nameserver)
	str("STORE", &cfg.Store.Backend)
	str("STORE_PATH", &cfg.Store.Path)
	list("BROADCAST_RELAYS", &cfg.BroadcastRelays)
	list("PROFILE_RELAYS", &cfg.ProfileRelays)
	list("CORS_ORIGINS", &cfg.CORSOrigins)

	if v, ok := lookup(EnvPrefix + "QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %sQUEUE_SIZE: %w", EnvPrefix, err)
		}
		cfg.QueueSize = n
	}

	for name, dst := range map[string]*time.Duration{
		"DNS_TIMEOUT":       &cfg.Timeouts.DNS,
		"LIGHTNING_TIMEOUT": &cfg.Timeouts.Lightning,
		"PROFILE_TIMEOUT":   &cfg.Timeouts.Profile,
		"PUBLISH_TIMEOUT":   &cfg.Timeouts.Publish,
	} {
		if err := duration(name, dst); err != nil {
			return err
		}
	}

	return nil
}

func splitList(v string) []string {
	var items []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func (cfg Config) Validate() error {
	switch cfg.Store.Backend {
	case "memory":
	case "bolt", "sql":
		if cfg.Store.Path == "" {
			return fmt.Errorf("store backend '%s' needs a path", cfg.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend '%s'", cfg.Store.Backend)
	}

	if _, _, err := cfg.Key(); err != nil {
		return err
	}

	for _, url := range append(append([]string{}, cfg.BroadcastRelays...), cfg.ProfileRelays...) {
		if !nostr.IsValidRelayURL(nostr.NormalizeURL(url)) {
			return fmt.Errorf("invalid relay url '%s'", url)
		}
	}

	if cfg.QueueSize < 0 {
		return fmt.Errorf("queue size can't be negative")
	}
	return nil
}

// Key parses SecretKey. ok is false when there is none.
func (cfg Config) Key() (sk nostr.SecretKey, ok bool, err error) {
	if cfg.SecretKey == "" {
		return sk, false, nil
	}
	sk, err = ParseSecretKey(cfg.SecretKey)
	return sk, err == nil, err
}

// ParseSecretKey accepts an nsec or 64 hex characters.
func ParseSecretKey(s string) (nostr.SecretKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "nsec1") {
		sk, err := nip19.DecodeNsec(s)
		if err != nil {
			return sk, fmt.Errorf("invalid nsec: %w", err)
		}
		return sk, nil
	}

	sk, err := nostr.SecretKeyFromHex(s)
	if err != nil {
		return sk, fmt.Errorf("secret key must be an nsec or hex: %w", err)
	}
	return sk, nil
}

// OpenStore creates and initializes the configured store. logger may be nil.
func (cfg Config) OpenStore(logger *zerolog.Logger) (store.Store, error) {
	var s store.Store
	switch cfg.Store.Backend {
	case "bolt":
		s = &boltstore.BoltBackend{Path: cfg.Store.Path}
	case "sql":
		s = &sqlstore.SQLBackend{DSN: cfg.Store.Path, Logger: logger}
	case "memory", "":
		s = &slicestore.SliceStore{}
	default:
		return nil, fmt.Errorf("unknown store backend '%s'", cfg.Store.Backend)
	}

	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	return s, nil
}

// SystemModifiers turns everything but the store into options for sdk.NewSystem.
func (cfg Config) SystemModifiers() ([]sdk.SystemModifier, error) {
	mods := []sdk.SystemModifier{
		sdk.WithNameserver(cfg.Nameserver),
		sdk.WithQueueSize(cfg.QueueSize),
		sdk.WithTimeouts(sdk.Timeouts(cfg.Timeouts)),
	}
	if len(cfg.BroadcastRelays) > 0 {
		mods = append(mods, sdk.WithBroadcastRelays(cfg.BroadcastRelays...))
	}
	if len(cfg.ProfileRelays) > 0 {
		mods = append(mods, sdk.WithProfileRelays(cfg.ProfileRelays...))
	}

	sk, ok, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if ok {
		mods = append(mods, sdk.WithSecretKey(sk))
	}

	return mods, nil
}
