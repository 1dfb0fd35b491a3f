package telemetry

import (
	"context"
	"errors"
	"time"
)

// Dispatch outcomes. All of them stay inside this package: Record absorbs
// every one of them into a log entry and never surfaces them to the caller.
var (
	errOptedOut           = errors.New("user opted out of telemetry reporting")
	errDisabledByOverride = errors.New("telemetry disabled by configuration override")
	errRateLimited        = errors.New("sending too frequently")
	errIncompleteOrigin   = errors.New("incomplete origin data")
)

// Record reports a named event with optional opaque data. It never blocks on
// network I/O and never returns or panics on failure: gating, rate limiting
// and payload construction happen synchronously, delivery runs in a detached
// goroutine whose outcome is observed only by logging.
func (d *Dispatcher) Record(ctx context.Context, name EventName, data any) {
	payload, err := d.prepare(name, data)
	if err != nil {
		d.absorb(name, err)
		return
	}

	// Detach from the caller's cancellation but keep its values; a bounded
	// timeout is applied in send.
	sendCtx := context.WithoutCancel(ctx)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		if err := d.send(sendCtx, payload); err != nil {
			d.logger.Warn("Failed to deliver telemetry event", "event", name, "error", err)
			return
		}
		d.logger.Debug("Delivered telemetry event", "event", name)
	}()
}

// prepare runs the synchronous gating pipeline: privacy opt-out, runtime
// override, cooldown reservation, then origin construction. The cooldown is
// reserved before the network attempt and is not rolled back when a later
// step or the delivery itself fails.
func (d *Dispatcher) prepare(name EventName, data any) (*EventPayload, error) {
	if d.privacy != nil && d.privacy.TelemetryOptedOut() {
		return nil, errOptedOut
	}

	if !d.enabled() {
		return nil, errDisabledByOverride
	}

	if !d.gate.reserve(name) {
		return nil, errRateLimited
	}

	pod, err := d.podOrigin()
	if err != nil {
		return nil, err
	}

	return &EventPayload{
		Name: name,
		Data: data,
		Origin: EventOrigin{
			App: d.app,
			Pod: pod,
		},
	}, nil
}

// podOrigin derives the anonymized per-dispatch origin from the current user
// identity. Empty raw identifiers are never hashed as filler; if either hash
// cannot be produced the event is dropped.
func (d *Dispatcher) podOrigin() (PodOrigin, error) {
	var pod PodOrigin

	if d.identity != nil {
		if domain := d.identity.Domain(); domain != "" {
			pod.DomainHash = anonymize(domain)
		}
		if principal := d.identity.Principal(); principal != "" {
			pod.UserHash = anonymize(principal)
		}
	}

	if pod.DomainHash == "" || pod.UserHash == "" {
		return PodOrigin{}, errIncompleteOrigin
	}

	return pod, nil
}

// Flush waits up to timeout for in-flight deliveries to finish and reports
// whether they all did. Intended for process shutdown; Record itself never
// waits on anything.
func (d *Dispatcher) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// absorb converts a dispatch outcome into a log entry. Expected, benign skips
// go to debug; anything unexpected goes to warn.
func (d *Dispatcher) absorb(name EventName, err error) {
	switch {
	case errors.Is(err, errOptedOut):
		d.logger.Debug("Skipping telemetry event", "event", name, "reason", "user opted out")
	case errors.Is(err, errDisabledByOverride):
		d.logger.Debug("Skipping telemetry event", "event", name, "reason", "disabled by override")
	case errors.Is(err, errRateLimited):
		d.logger.Debug("Skipping telemetry event", "event", name, "reason", "sending too frequently")
	case errors.Is(err, errIncompleteOrigin):
		d.logger.Debug("Skipping telemetry event", "event", name, "reason", "incomplete origin data")
	default:
		d.logger.Warn("Dropping telemetry event", "event", name, "error", err)
	}
}
