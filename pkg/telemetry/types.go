package telemetry

import (
	"fmt"
	"net/http"
)

// EventName identifies a telemetry event kind. The set is closed; new kinds
// are added here.
type EventName string

const (
	EventHeartbeat     EventName = "heartbeat"
	EventSignIn        EventName = "sign-in"
	EventSignOut       EventName = "sign-out"
	EventProfileUpdate EventName = "profile-update"
	EventConnect       EventName = "connect"
	EventDisconnect    EventName = "disconnect"
)

// ParseEventName validates a string against the closed event name set.
func ParseEventName(s string) (EventName, error) {
	switch name := EventName(s); name {
	case EventHeartbeat, EventSignIn, EventSignOut, EventProfileUpdate, EventConnect, EventDisconnect:
		return name, nil
	default:
		return "", fmt.Errorf("unknown event name %q", s)
	}
}

// EventPayload is the wire representation of a single telemetry event. It is
// built fresh for every dispatch attempt and never reused.
type EventPayload struct {
	Name   EventName   `json:"name"`
	Data   any         `json:"data,omitempty"`
	Origin EventOrigin `json:"origin"`
}

// EventOrigin describes where an event came from.
type EventOrigin struct {
	App AppOrigin `json:"app"`
	Pod PodOrigin `json:"pod"`
}

// AppOrigin identifies the reporting application. It is computed once at
// dispatcher construction and is identical across all payloads for the
// process lifetime.
type AppOrigin struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
}

// PodOrigin carries anonymized identifiers for the user's server and account.
// Both fields hold truncated one-way hashes; raw identifiers never appear
// here. An event is only sent when both hashes could be produced.
type PodOrigin struct {
	DomainHash string `json:"domain_hash"`
	UserHash   string `json:"user_hash,omitempty"`
}

// IdentitySource exposes the current user identity. Values may be empty
// before sign-in, in which case events are dropped rather than sent with
// placeholder hashes.
type IdentitySource interface {
	Domain() string
	Principal() string
}

// PrivacySettings exposes the user's telemetry opt-out flag. It is consulted
// fresh on every Record call.
type PrivacySettings interface {
	TelemetryOptedOut() bool
}

// HTTPClient interface for making HTTP requests (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
