package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// requestTimeout bounds a single delivery attempt so a hung endpoint cannot
// accumulate detached goroutines. The value is an empirical choice; the
// cooldown gate already bounds how many attempts can be in flight.
const requestTimeout = 10 * time.Second

// send delivers one event payload to the collection endpoint. Requests carry
// no credentials or cookies; success is an HTTP 2xx status and the response
// body is not interpreted.
func (d *Dispatcher) send(ctx context.Context, payload *EventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+collectPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read up to 1KB of error response for the log entry
		errBody := make([]byte, 1024)
		n, _ := resp.Body.Read(errBody)

		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(errBody[:n]))
	}

	return nil
}
