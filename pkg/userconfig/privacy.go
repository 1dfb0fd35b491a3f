package userconfig

import "log/slog"

// Privacy answers telemetry opt-out queries by re-reading the config file on
// every call. The dispatcher requires a fresh read per event, so no value is
// cached here.
type Privacy struct {
	path string
}

// NewPrivacy returns a Privacy source backed by the user config file.
func NewPrivacy() *Privacy {
	return &Privacy{path: Path()}
}

// TelemetryOptedOut reports whether the user has disabled telemetry. An
// unreadable or missing config counts as not opted out.
func (p *Privacy) TelemetryOptedOut() bool {
	config, err := loadFrom(p.path)
	if err != nil {
		slog.Debug("Failed to read user config for privacy check", "path", p.path, "error", err)
		return false
	}
	return config.GetSettings().TelemetryOptOut
}
