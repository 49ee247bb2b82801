package shared

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Settings is a concurrency-safe view over the runtime-adjustable parts of [Config].
//
// The engine and policy gate read through it on every query so changes from `config set`
// or the server take effect without a restart.
type Settings struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewSettings copies cfg. When path is non-empty, [Settings.Save] writes back to it.
func NewSettings(cfg *Config, path string) *Settings {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	c.Policy.Allowlist = slices.Clone(cfg.Policy.Allowlist)
	c.Policy.Denylist = slices.Clone(cfg.Policy.Denylist)
	return &Settings{cfg: c, path: path}
}

func (s *Settings) CacheLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Cache.Level
}

func (s *Settings) CacheAgeDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Cache.AgeDays
}

func (s *Settings) RefreshDays() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.Cache.RefreshDays <= 0 {
		return 7
	}
	return s.cfg.Cache.RefreshDays
}

func (s *Settings) CommunityEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Community.Enabled
}

func (s *Settings) Allowlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cfg.Policy.Allowlist)
}

func (s *Settings) Denylist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cfg.Policy.Denylist)
}

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg
	c.Policy.Allowlist = slices.Clone(s.cfg.Policy.Allowlist)
	c.Policy.Denylist = slices.Clone(s.cfg.Policy.Denylist)
	return c
}

// SettingKeys lists the keys accepted by [Settings.Set].
var SettingKeys = []string{
	"cache.level",
	"cache.age_days",
	"cache.refresh_days",
	"community.enabled",
	"policy.allowlist",
	"policy.denylist",
}

// Set updates a single setting from its string form. List values are comma separated.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "cache.level":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 7 {
			return fmt.Errorf("%w: cache.level must be between 0 and 7", ErrInvalidArgument)
		}
		s.cfg.Cache.Level = n
	case "cache.age_days":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: cache.age_days must be a positive integer", ErrInvalidArgument)
		}
		s.cfg.Cache.AgeDays = n
	case "cache.refresh_days":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%w: cache.refresh_days must be a positive integer", ErrInvalidArgument)
		}
		s.cfg.Cache.RefreshDays = n
	case "community.enabled":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: community.enabled must be true or false", ErrInvalidArgument)
		}
		s.cfg.Community.Enabled = b
	case "policy.allowlist":
		s.cfg.Policy.Allowlist = splitList(value)
	case "policy.denylist":
		s.cfg.Policy.Denylist = splitList(value)
	default:
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidArgument, key)
	}
	return nil
}

// Save persists the current configuration to the path given to [NewSettings].
func (s *Settings) Save() error {
	if s.path == "" {
		return fmt.Errorf("%w: no config path to save to", ErrMissingConfig)
	}
	cfg := s.Snapshot()
	return SaveConfig(s.path, &cfg)
}

func splitList(value string) []string {
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
