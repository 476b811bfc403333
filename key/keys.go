// Package key defines the canonical set of configuration identifiers used for centralized settings management.
package key

// Backend - these keys locate the course backend that owns the progress records.
const (
	BackendBaseURL = "backend.base_url"
	BackendTimeout = "backend.timeout"
)

// Tracking cadence - these keys control how often the engine samples, checks and reports.
const (
	TrackingHeartbeatInterval = "tracking.heartbeat_interval"
	TrackingCheckInterval     = "tracking.check_interval"
	TrackingPollInterval      = "tracking.poll_interval"
	TrackingProgressThrottle  = "tracking.progress_throttle"
)

// Completion thresholds - tuned heuristics, expressed as integers so they survive TOML round-trips.
const (
	CompletionLongPercent    = "completion.long_percent"
	CompletionTailSeconds    = "completion.tail_seconds"
	CompletionShortPercent   = "completion.short_percent"
	CompletionShortCutoff    = "completion.short_cutoff"
	MediaSyntheticEndPercent = "media.synthetic_end_percent"
)

// Retry policy for the terminal completion push.
const (
	RetryMaxAttempts = "retry.max_attempts"
	RetryBaseDelay   = "retry.base_delay"
	RetryMaxDelay    = "retry.max_delay"
)

// Reconciliation - local safety nets around the backend of record.
const (
	ReconcileOutbox     = "reconcile.outbox"
	ReconcileCacheHours = "reconcile.cache_hours"
)

// Video sources.
const (
	WidgetOrigin  = "widget.origin"
	BridgeAddress = "bridge.address"
	PlayerMPVPath = "player.mpv_path"
)

// Certificates.
const (
	CertificateOffer = "certificate.offer"
)

// Iconography - these keys manage the visual rendering of UI symbols.
const (
	IconsVariant = "icons.variant"
)

// Terminal UI Configuration.
const (
	TUIItemSpacing = "tui.item_spacing"
	TUIShowURLs    = "tui.show_urls"
)

// Logging Infrastructure - these keys manage the application's internal diagnostics.
const (
	LogsWrite = "logs.write"
	LogsLevel = "logs.level"
	LogsJson  = "logs.json"
)

// CLI Execution Environment.
const (
	CliColored = "cli.colored"
)
