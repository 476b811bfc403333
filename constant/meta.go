// Package constant defines immutable application-level identifiers and configuration defaults.
package constant

const (
	// App is the canonical application identifier used for filesystem paths and CLI branding.
	App = "lessontrack"

	// Version is the current application semantic version string.
	Version = "0.3.0"

	// UserAgent is sent with every request to the course backend.
	UserAgent = App + "/" + Version
)

// Build metadata, overridden through -ldflags at release time.
var (
	BuiltAt  = "unknown"
	BuiltBy  = "unknown"
	Revision = "unknown"
)
