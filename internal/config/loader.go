package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "COMETIXTAB_"

// fileConfig is the on-disk schema. Durations are milliseconds so config
// files stay plain numbers. Pointer fields distinguish "absent" from zero.
type fileConfig struct {
	Enabled             *bool    `toml:"enabled" yaml:"enabled"`
	PredictionEnabled   *bool    `toml:"prediction_enabled" yaml:"prediction_enabled"`
	DiagnosticsHints    *bool    `toml:"diagnostics_hints" yaml:"diagnostics_hints"`
	ExcludedLanguages   []string `toml:"excluded_languages" yaml:"excluded_languages"`
	TriggerInComments   *bool    `toml:"trigger_in_comments" yaml:"trigger_in_comments"`
	AllowWhitespaceOnly *bool    `toml:"allow_whitespace_only" yaml:"allow_whitespace_only"`

	ClientDebounceMS *int `toml:"client_debounce_ms" yaml:"client_debounce_ms"`
	TotalDebounceMS  *int `toml:"total_debounce_ms" yaml:"total_debounce_ms"`
	MaxRequestAgeMS  *int `toml:"max_request_age_ms" yaml:"max_request_age_ms"`

	MaxTrackedRequests *int `toml:"max_tracked_requests" yaml:"max_tracked_requests"`
	StreamRetries      *int `toml:"stream_retries" yaml:"stream_retries"`
	StreamRetryDelayMS *int `toml:"stream_retry_delay_ms" yaml:"stream_retry_delay_ms"`
	PollIntervalMS     *int `toml:"poll_interval_ms" yaml:"poll_interval_ms"`
	CacheWindow        *int `toml:"cache_window" yaml:"cache_window"`
	CacheCapacity      *int `toml:"cache_capacity" yaml:"cache_capacity"`

	SuppressRadius        *int `toml:"suppress_radius" yaml:"suppress_radius"`
	AcceptRecencyWindowMS *int `toml:"accept_recency_window_ms" yaml:"accept_recency_window_ms"`
	RejectThreshold       *int `toml:"reject_threshold" yaml:"reject_threshold"`
	RejectCooldownMS      *int `toml:"reject_cooldown_ms" yaml:"reject_cooldown_ms"`

	SyncDebounceMS      *int     `toml:"sync_debounce_ms" yaml:"sync_debounce_ms"`
	MaxQueuedUpdates    *int     `toml:"max_queued_updates" yaml:"max_queued_updates"`
	MaxVersionDrift     *int     `toml:"max_version_drift" yaml:"max_version_drift"`
	MaxSyncLag          *int     `toml:"max_sync_lag" yaml:"max_sync_lag"`
	MinSyncStreak       *int     `toml:"min_sync_streak" yaml:"min_sync_streak"`
	PayloadRetries      *int     `toml:"payload_retries" yaml:"payload_retries"`
	PayloadRetryDelayMS *int     `toml:"payload_retry_delay_ms" yaml:"payload_retry_delay_ms"`
	HashProbability     *float64 `toml:"hash_probability" yaml:"hash_probability"`

	Provider *string `toml:"provider" yaml:"provider"`
	Endpoint *string `toml:"endpoint" yaml:"endpoint"`
	APIKey   *string `toml:"api_key" yaml:"api_key"`
	Model    *string `toml:"model" yaml:"model"`

	LogLevel *string `toml:"log_level" yaml:"log_level"`
}

// Load builds Settings from defaults, an optional config file, and
// environment overrides. A missing file is not an error.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		if err := applyFile(&s, path); err != nil {
			return s, err
		}
	}
	applyEnv(&s)
	return s, nil
}

// applyFile merges a TOML or YAML config file into s.
func applyFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	fc.merge(s)
	return nil
}

// merge copies every present field into s.
func (fc *fileConfig) merge(s *Settings) {
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setMS := func(dst *time.Duration, src *int) {
		if src != nil {
			*dst = time.Duration(*src) * time.Millisecond
		}
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	setBool(&s.Enabled, fc.Enabled)
	setBool(&s.PredictionEnabled, fc.PredictionEnabled)
	setBool(&s.DiagnosticsHints, fc.DiagnosticsHints)
	if fc.ExcludedLanguages != nil {
		s.ExcludedLanguages = fc.ExcludedLanguages
	}
	setBool(&s.TriggerInComments, fc.TriggerInComments)
	setBool(&s.AllowWhitespaceOnly, fc.AllowWhitespaceOnly)

	setMS(&s.ClientDebounce, fc.ClientDebounceMS)
	setMS(&s.TotalDebounce, fc.TotalDebounceMS)
	setMS(&s.MaxRequestAge, fc.MaxRequestAgeMS)

	setInt(&s.MaxTrackedRequests, fc.MaxTrackedRequests)
	setInt(&s.StreamRetries, fc.StreamRetries)
	setMS(&s.StreamRetryDelay, fc.StreamRetryDelayMS)
	setMS(&s.PollInterval, fc.PollIntervalMS)
	setInt(&s.CacheWindow, fc.CacheWindow)
	setInt(&s.CacheCapacity, fc.CacheCapacity)

	setInt(&s.SuppressRadius, fc.SuppressRadius)
	setMS(&s.AcceptRecencyWindow, fc.AcceptRecencyWindowMS)
	setInt(&s.RejectThreshold, fc.RejectThreshold)
	setMS(&s.RejectCooldown, fc.RejectCooldownMS)

	setMS(&s.SyncDebounce, fc.SyncDebounceMS)
	setInt(&s.MaxQueuedUpdates, fc.MaxQueuedUpdates)
	setInt(&s.MaxVersionDrift, fc.MaxVersionDrift)
	setInt(&s.MaxSyncLag, fc.MaxSyncLag)
	setInt(&s.MinSyncStreak, fc.MinSyncStreak)
	setInt(&s.PayloadRetries, fc.PayloadRetries)
	setMS(&s.PayloadRetryDelay, fc.PayloadRetryDelayMS)
	if fc.HashProbability != nil {
		s.HashProbability = *fc.HashProbability
	}

	setStr(&s.Provider, fc.Provider)
	setStr(&s.Endpoint, fc.Endpoint)
	setStr(&s.APIKey, fc.APIKey)
	setStr(&s.Model, fc.Model)
	setStr(&s.LogLevel, fc.LogLevel)
}

// applyEnv merges COMETIXTAB_-prefixed environment variables into s.
// Empty values count as set, matching os.LookupEnv semantics.
func applyEnv(s *Settings) {
	if v, ok := lookup("ENABLED"); ok {
		s.Enabled = parseBool(v, s.Enabled)
	}
	if v, ok := lookup("PREDICTION_ENABLED"); ok {
		s.PredictionEnabled = parseBool(v, s.PredictionEnabled)
	}
	if v, ok := lookup("EXCLUDED_LANGUAGES"); ok {
		s.ExcludedLanguages = splitList(v)
	}
	if v, ok := lookup("ENDPOINT"); ok {
		s.Endpoint = v
	}
	if v, ok := lookup("API_KEY"); ok {
		s.APIKey = v
	}
	if v, ok := lookup("MODEL"); ok {
		s.Model = v
	}
	if v, ok := lookup("PROVIDER"); ok {
		s.Provider = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		s.LogLevel = v
	}
	if v, ok := lookup("CLIENT_DEBOUNCE_MS"); ok {
		s.ClientDebounce = parseMS(v, s.ClientDebounce)
	}
	if v, ok := lookup("TOTAL_DEBOUNCE_MS"); ok {
		s.TotalDebounce = parseMS(v, s.TotalDebounce)
	}
	if v, ok := lookup("SYNC_DEBOUNCE_MS"); ok {
		s.SyncDebounce = parseMS(v, s.SyncDebounce)
	}
}

func lookup(name string) (string, bool) {
	return os.LookupEnv(EnvPrefix + name)
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func parseMS(v string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
