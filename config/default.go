package config

import "github.com/lessontrack/lessontrack/key"

// Default is every known setting keyed by name.
var Default = make(map[string]Field)

// EnvExposed lists the settings bound to environment variables, in registration order.
var EnvExposed []string

func register(k string, v any, desc string) {
	if _, exists := Default[k]; exists {
		panic("config: key registered twice: " + k)
	}
	Default[k] = Field{Key: k, Value: v, Description: desc}
	EnvExposed = append(EnvExposed, k)
}

func init() {
	// backend
	register(key.BackendBaseURL, "http://localhost:8080/api", "Base URL of the course backend that owns lesson progress")
	register(key.BackendTimeout, 15, "Timeout in seconds for a single backend request")

	// tracking
	register(key.TrackingHeartbeatInterval, 30, "Seconds between watch-time heartbeats sent while a lesson is playing")
	register(key.TrackingCheckInterval, 5, "Seconds between completion threshold checks")
	register(key.TrackingPollInterval, 2, "Seconds between state polls sent to an embedded widget")
	register(key.TrackingProgressThrottle, 1000, "Minimum milliseconds between progress events forwarded from a media element")
	register(key.CompletionLongPercent, 90, "Percentage of a lesson (60s or longer) that must be watched to complete it")
	register(key.CompletionTailSeconds, 10, "A long lesson also completes this many seconds before its end, whichever is later")
	register(key.CompletionShortPercent, 80, "Percentage of a short lesson that must be watched to complete it")
	register(key.CompletionShortCutoff, 60, "Lessons shorter than this many seconds use the short percentage")
	register(key.MediaSyntheticEndPercent, 90, "Position percentage at which a media element is treated as ended")

	// delivery
	register(key.RetryMaxAttempts, 5, "Attempts made to deliver a lesson completion before giving up")
	register(key.RetryBaseDelay, 500, "Base backoff delay in milliseconds between completion attempts")
	register(key.RetryMaxDelay, 10000, "Maximum backoff delay in milliseconds between completion attempts")
	register(key.ReconcileOutbox, true, "Queue undelivered completions on disk and replay them later")
	register(key.ReconcileCacheHours, 24, "Hours a pulled course progress snapshot stays usable offline")

	// players
	register(key.WidgetOrigin, "https://www.youtube.com", "The only origin accepted for embedded widget messages")
	register(key.BridgeAddress, "127.0.0.1:7777", "Listen address of the widget bridge and metrics endpoint")
	register(key.PlayerMPVPath, "mpv", "Path to the mpv executable used for direct media playback")
	register(key.CertificateOffer, true, "Offer certificate generation once every lesson of a course is complete")

	// interface
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, plain, squares, nerd (nerd-font required)")
	register(key.TUIItemSpacing, 1, "Spacing between lessons in the course list")
	register(key.TUIShowURLs, false, "Show lesson source URLs in the course list")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
}

