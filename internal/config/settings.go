// Package config provides the engine's settings schema, loading, live
// reload, and change notifications.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional TOML or YAML config file, and COMETIXTAB_-prefixed environment
// variables. Server-pushed tunables are applied at runtime through the same
// Store, so subscribers (admission control, sync scheduling) see them the
// same way they see a file reload.
package config

import "time"

// Settings holds every tunable the engine reads. All numeric policies mirror
// the shipped defaults but are plain configuration, not invariants.
type Settings struct {
	// Feature flags.

	// Enabled turns completion suggestions on or off globally.
	Enabled bool
	// PredictionEnabled turns cursor-prediction jump hints on or off.
	PredictionEnabled bool
	// DiagnosticsHints controls whether diagnostics are attached to requests.
	DiagnosticsHints bool
	// ExcludedLanguages lists language ids that never trigger requests.
	ExcludedLanguages []string
	// TriggerInComments controls whether typing inside a comment triggers.
	TriggerInComments bool
	// AllowWhitespaceOnly accepts candidates that only change whitespace.
	AllowWhitespaceOnly bool

	// Admission control.

	// ClientDebounce is how long a request waits before checking whether a
	// newer trigger superseded it.
	ClientDebounce time.Duration
	// TotalDebounce is the freshness window used to compute which earlier
	// in-flight requests a new trigger supersedes.
	TotalDebounce time.Duration
	// MaxRequestAge is the garbage-collection horizon for request entries.
	MaxRequestAge time.Duration

	// Orchestration.

	// MaxTrackedRequests caps concurrently tracked streams; the oldest is
	// soft-superseded beyond it.
	MaxTrackedRequests int
	// StreamRetries is how many times a failed stream is retried.
	StreamRetries int
	// StreamRetryDelay is the fixed delay between stream retries.
	StreamRetryDelay time.Duration
	// PollInterval is the chunk poll cadence while a stream is live.
	PollInterval time.Duration
	// CacheWindow is the maximum version lag for serving a cached suggestion.
	CacheWindow int
	// CacheCapacity bounds the superseded-suggestion ring buffer.
	CacheCapacity int

	// Validation and suppression.

	// CheckNoOp enables the no-op candidate check.
	CheckNoOp bool
	// CheckWhitespaceOnly enables the whitespace-only candidate check.
	CheckWhitespaceOnly bool
	// CheckDuplicatingLine enables the duplicated-next-line check.
	CheckDuplicatingLine bool
	// CheckRepeatedContent enables the repeated-content check.
	CheckRepeatedContent bool
	// SuppressRadius is the line distance within which prediction targets
	// near the cursor or a recent accept are suppressed.
	SuppressRadius int
	// AcceptRecencyWindow is how long an accepted suggestion suppresses
	// nearby prediction targets.
	AcceptRecencyWindow time.Duration

	// Rejection cooldown.

	// RejectThreshold is how many consecutive rejects arm the cooldown.
	RejectThreshold int
	// RejectCooldown is how long automatic triggers stay suppressed.
	RejectCooldown time.Duration

	// File sync.

	// SyncDebounce delays a sync flush after each local edit.
	SyncDebounce time.Duration
	// MaxQueuedUpdates bounds the per-document pending delta queue.
	MaxQueuedUpdates int
	// MaxVersionDrift forces a full upload when the synced version trails
	// the newest pending version by more than this.
	MaxVersionDrift int
	// MaxSyncLag is the version lag ceiling for relying on file sync.
	MaxSyncLag int
	// MinSyncStreak is the consecutive-success floor for relying on sync.
	MinSyncStreak int
	// PayloadRetries bounds the short waits for not-yet-queued local edits
	// while gathering a sync payload.
	PayloadRetries int
	// PayloadRetryDelay is the fixed delay between payload gather retries.
	PayloadRetryDelay time.Duration
	// HashProbability is the chance of attaching a content hash to a request
	// even when relying on sync, for server-side drift detection.
	HashProbability float64

	// Transport.

	// Provider selects the wire backend: "native" or "openai".
	Provider string
	// Endpoint is the completion service base URL.
	Endpoint string
	// APIKey authenticates against the provider, when required.
	APIKey string
	// Model is the model name requested from the provider.
	Model string
	// ControlToken is the per-session control token sent with requests.
	ControlToken string

	// Logging.

	// LogLevel is the minimum log level ("debug", "info", "warn", "error").
	LogLevel string
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Enabled:           true,
		PredictionEnabled: true,
		DiagnosticsHints:  true,
		TriggerInComments: true,

		ClientDebounce: 25 * time.Millisecond,
		TotalDebounce:  60 * time.Millisecond,
		MaxRequestAge:  10 * time.Second,

		MaxTrackedRequests: 6,
		StreamRetries:      2,
		StreamRetryDelay:   150 * time.Millisecond,
		PollInterval:       5 * time.Millisecond,
		CacheWindow:        3,
		CacheCapacity:      5,

		CheckNoOp:            true,
		CheckWhitespaceOnly:  true,
		CheckDuplicatingLine: true,
		CheckRepeatedContent: true,
		SuppressRadius:       5,
		AcceptRecencyWindow:  30 * time.Second,

		RejectThreshold: 2,
		RejectCooldown:  15 * time.Second,

		SyncDebounce:      250 * time.Millisecond,
		MaxQueuedUpdates:  30,
		MaxVersionDrift:   100,
		MaxSyncLag:        10,
		MinSyncStreak:     2,
		PayloadRetries:    8,
		PayloadRetryDelay: 5 * time.Millisecond,
		HashProbability:   0.01,

		Provider: "native",
		Endpoint: "http://localhost:8143",
		Model:    "fusion-1",

		LogLevel: "info",
	}
}

// LanguageExcluded reports whether the language id is on the exclusion list.
func (s Settings) LanguageExcluded(languageID string) bool {
	for _, l := range s.ExcludedLanguages {
		if l == languageID {
			return true
		}
	}
	return false
}
