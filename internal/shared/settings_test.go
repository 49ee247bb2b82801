package shared

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestSettings(t *testing.T) {
	t.Run("reads defaults", func(t *testing.T) {
		s := NewSettings(nil, "")
		if s.CacheLevel() != 7 {
			t.Errorf("expected level 7, got %d", s.CacheLevel())
		}
		if s.RefreshDays() != 7 {
			t.Errorf("expected refresh days 7, got %d", s.RefreshDays())
		}
		if !s.CommunityEnabled() {
			t.Error("expected community enabled by default")
		}
	})

	t.Run("Set", func(t *testing.T) {
		tc := []struct {
			key     string
			value   string
			wantErr bool
		}{
			{"cache.level", "3", false},
			{"cache.level", "9", true},
			{"cache.level", "abc", true},
			{"cache.age_days", "30", false},
			{"cache.age_days", "0", true},
			{"cache.refresh_days", "2", false},
			{"community.enabled", "false", false},
			{"community.enabled", "maybe", true},
			{"policy.denylist", "nightcore, 8d audio", false},
			{"server.port", "1", true},
		}

		s := NewSettings(nil, "")
		for _, tt := range tc {
			t.Run(tt.key+"="+tt.value, func(t *testing.T) {
				err := s.Set(tt.key, tt.value)
				if (err != nil) != tt.wantErr {
					t.Fatalf("Set(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
				}
				if err != nil && !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
			})
		}

		if s.CacheLevel() != 3 || s.CacheAgeDays() != 30 || s.RefreshDays() != 2 || s.CommunityEnabled() {
			t.Errorf("unexpected settings after updates: %+v", s.Snapshot().Cache)
		}
		if deny := s.Denylist(); len(deny) != 2 || deny[1] != "8d audio" {
			t.Errorf("unexpected denylist %v", deny)
		}
	})

	t.Run("Save", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := CreateConfigFile(path); err != nil {
			t.Fatalf("failed to create config: %v", err)
		}
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		s := NewSettings(cfg, path)
		if err := s.Set("cache.level", "1"); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := s.Save(); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		reloaded, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if reloaded.Cache.Level != 1 {
			t.Errorf("expected persisted level 1, got %d", reloaded.Cache.Level)
		}
	})

	t.Run("Save without path", func(t *testing.T) {
		if err := NewSettings(nil, "").Save(); !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		s := NewSettings(nil, "")
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					_ = s.Set("cache.level", "5")
				} else {
					_ = s.CacheLevel()
					_ = s.Allowlist()
				}
			}()
		}
		wg.Wait()
	})
}
