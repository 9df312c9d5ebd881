package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath                 string `yaml:"db_path"`
	BaseDir                string `yaml:"base_dir"`
	RateLimitGraceMinutes  int    `yaml:"rate_limit_grace_minutes"`
	SessionHostWaitSeconds int    `yaml:"session_host_wait_seconds"`
}

const (
	// defaultRateLimitGraceMinutes is the fallback window added to "now" when
	// an agent reports rate-limiting without an explicit reset_at (spec §4.6).
	defaultRateLimitGraceMinutes = 30
	// defaultSessionHostWaitSeconds bounds how long create_session waits for
	// the session-host's socket to appear (spec §4.4 step 8).
	defaultSessionHostWaitSeconds = 5
)

// RateLimitGraceMinutes returns the configured default reset window,
// falling back to 30 minutes when unset or invalid.
func RateLimitGraceMinutes() int {
	s, err := LoadSettings()
	if err != nil || s.RateLimitGraceMinutes <= 0 {
		return defaultRateLimitGraceMinutes
	}
	return s.RateLimitGraceMinutes
}

// SessionHostWaitSeconds returns the configured socket-appearance timeout,
// falling back to 5 seconds when unset or invalid.
func SessionHostWaitSeconds() int {
	s, err := LoadSettings()
	if err != nil || s.SessionHostWaitSeconds <= 0 {
		return defaultSessionHostWaitSeconds
	}
	return s.SessionHostWaitSeconds
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu/dbPathOverride and baseDirOverrideMu/baseDirOverride implement mutex-protected
// process-wide overrides for --db-path and --base-dir. These globals are required by the
// sync.Once pattern and the RWMutex pattern; they cannot be avoided.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex overrides are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string

	baseDirOverrideMu sync.RWMutex
	baseDirOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// SetBaseDirOverride sets a process-wide base directory override.
// Intended for CLI flag support (e.g. --base-dir).
func SetBaseDirOverride(path string) {
	baseDirOverrideMu.Lock()
	baseDirOverride = path
	baseDirOverrideMu.Unlock()
}

func getBaseDirOverride() string {
	baseDirOverrideMu.RLock()
	v := baseDirOverride
	baseDirOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/claustre/config.yaml
// 2) /etc/claustre/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		// 1) User config (~/.config/claustre/config.yaml)
		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 2) /etc
		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "claustre", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		// 3) Local ./config.yaml (lowest priority)
		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
