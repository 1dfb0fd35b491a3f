package telemetry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockHTTPClient captures HTTP requests for testing
type MockHTTPClient struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	response *http.Response
	err      error
}

// NewMockHTTPClient creates a new mock HTTP client with a default success response
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{
		response: &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"success": true}`))),
			Header:     make(http.Header),
		},
	}
}

// SetResponse allows updating the mock response for testing different scenarios
func (m *MockHTTPClient) SetResponse(resp *http.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = resp
}

// SetError makes every subsequent request fail with err
func (m *MockHTTPClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Do implements HTTPClient and captures the request
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		m.bodies = append(m.bodies, body)
	} else {
		m.bodies = append(m.bodies, nil)
	}

	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// GetRequests returns all captured requests
func (m *MockHTTPClient) GetRequests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// GetBodies returns all captured request bodies
func (m *MockHTTPClient) GetBodies() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte{}, m.bodies...)
}

// GetRequestCount returns the number of HTTP requests made
func (m *MockHTTPClient) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type staticIdentity struct {
	domain    string
	principal string
}

func (s staticIdentity) Domain() string    { return s.domain }
func (s staticIdentity) Principal() string { return s.principal }

type staticPrivacy bool

func (s staticPrivacy) TelemetryOptedOut() bool { return bool(s) }

func newTestDispatcher(t *testing.T, identity IdentitySource, privacy PrivacySettings, opts ...Option) (*Dispatcher, *MockHTTPClient) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	mockHTTP := NewMockHTTPClient()

	base := []Option{
		WithHTTPClient(mockHTTP),
		WithBaseURL("https://collect.test"),
		// Enabled() reports false under "go test"; force the override on so
		// dispatch reaches the mock transport.
		WithEnabledCheck(func() bool { return true }),
		WithCooldown(100 * time.Millisecond),
	}

	return NewDispatcher(logger, identity, privacy, "linux", append(base, opts...)...), mockHTTP
}

func waitForRequests(t *testing.T, mockHTTP *MockHTTPClient, count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return mockHTTP.GetRequestCount() >= count
	}, time.Second, 5*time.Millisecond)
}

func TestRecordSendsAnonymizedPayload(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))

	d.Record(t.Context(), EventSignIn, map[string]any{"method": "password"})
	waitForRequests(t, mockHTTP, 1)

	req := mockHTTP.GetRequests()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "https://collect.test/events/v1/record", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Accept"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Empty(t, req.Header.Get("Cookie"))
	assert.Empty(t, req.Header.Get("Authorization"))

	var payload EventPayload
	require.NoError(t, json.Unmarshal(mockHTTP.GetBodies()[0], &payload))

	assert.Equal(t, EventSignIn, payload.Name)
	assert.Equal(t, "parley-core", payload.Origin.App.Name)
	assert.Equal(t, "linux", payload.Origin.App.Platform)
	assert.NotEmpty(t, payload.Origin.App.Version)

	// Hashes are deterministic, fixed-length, and never the raw identifiers
	domainSum := sha256.Sum256([]byte("example.org"))
	userSum := sha256.Sum256([]byte("alice"))
	assert.Equal(t, hex.EncodeToString(domainSum[:])[:16], payload.Origin.Pod.DomainHash)
	assert.Equal(t, hex.EncodeToString(userSum[:])[:16], payload.Origin.Pod.UserHash)
	assert.Len(t, payload.Origin.Pod.DomainHash, 16)
	assert.Len(t, payload.Origin.Pod.UserHash, 16)
	assert.NotEqual(t, "example.org", payload.Origin.Pod.DomainHash)
	assert.NotEqual(t, "alice", payload.Origin.Pod.UserHash)
}

func TestRecordRateLimitsPerEventName(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))

	d.Record(t.Context(), EventHeartbeat, nil)
	d.Record(t.Context(), EventHeartbeat, nil)

	waitForRequests(t, mockHTTP, 1)

	// The second call within the window is a no-op
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, mockHTTP.GetRequestCount())

	// Past the cooldown a new send goes out
	time.Sleep(100 * time.Millisecond)
	d.Record(t.Context(), EventHeartbeat, nil)
	waitForRequests(t, mockHTTP, 2)
}

func TestRecordDoesNotRateLimitAcrossEventNames(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))

	d.Record(t.Context(), EventSignIn, nil)
	d.Record(t.Context(), EventProfileUpdate, nil)

	waitForRequests(t, mockHTTP, 2)
}

func TestRecordRespectsOptOut(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(true))

	d.Record(t.Context(), EventHeartbeat, nil)
	d.Record(t.Context(), EventSignIn, map[string]any{"method": "password"})

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mockHTTP.GetRequestCount())
}

func TestRecordRespectsOverride(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false),
		WithEnabledCheck(func() bool { return false }))

	d.Record(t.Context(), EventHeartbeat, nil)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mockHTTP.GetRequestCount())
}

func TestRecordDropsIncompleteOrigin(t *testing.T) {
	tests := []struct {
		name     string
		identity staticIdentity
	}{
		{"empty principal", staticIdentity{domain: "example.org"}},
		{"empty domain", staticIdentity{principal: "alice"}},
		{"nothing", staticIdentity{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, mockHTTP := newTestDispatcher(t, tc.identity, staticPrivacy(false))

			d.Record(t.Context(), EventHeartbeat, nil)

			time.Sleep(50 * time.Millisecond)
			assert.Zero(t, mockHTTP.GetRequestCount())
		})
	}
}

func TestRecordWithNilIdentitySource(t *testing.T) {
	d, mockHTTP := newTestDispatcher(t, nil, staticPrivacy(false))

	// Must not panic and must not send
	d.Record(t.Context(), EventHeartbeat, nil)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, mockHTTP.GetRequestCount())
}

func TestPodOriginOmitsAbsentUserHash(t *testing.T) {
	data, err := json.Marshal(PodOrigin{DomainHash: "abcdef0123456789"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "domain_hash")
	assert.NotContains(t, raw, "user_hash")
}

func TestRecordNeverSurfacesTransportFailures(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}

	t.Run("network error", func(t *testing.T) {
		d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))
		mockHTTP.SetError(errors.New("connection refused"))

		d.Record(t.Context(), EventHeartbeat, nil)
		waitForRequests(t, mockHTTP, 1)
	})

	t.Run("server error status", func(t *testing.T) {
		d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))
		mockHTTP.SetResponse(&http.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       io.NopCloser(bytes.NewReader([]byte(`oops`))),
			Header:     make(http.Header),
		})

		d.Record(t.Context(), EventHeartbeat, nil)
		waitForRequests(t, mockHTTP, 1)

		// A failed send still consumes the cooldown window
		d.Record(t.Context(), EventHeartbeat, nil)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, mockHTTP.GetRequestCount())
	})

	t.Run("unserializable data", func(t *testing.T) {
		d, _ := newTestDispatcher(t, identity, staticPrivacy(false))

		// json.Marshal fails on channels; the failure must stay internal
		d.Record(t.Context(), EventHeartbeat, make(chan int))
		time.Sleep(50 * time.Millisecond)
	})
}

func TestAppOriginStableAcrossRecords(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))

	d.Record(t.Context(), EventSignIn, nil)
	d.Record(t.Context(), EventSignOut, nil)
	d.Record(t.Context(), EventProfileUpdate, nil)

	waitForRequests(t, mockHTTP, 3)

	var first AppOrigin
	for i, body := range mockHTTP.GetBodies() {
		var payload EventPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		if i == 0 {
			first = payload.Origin.App
			continue
		}
		assert.Equal(t, first, payload.Origin.App)
	}
}

func TestEnabledFromEnv(t *testing.T) {
	t.Setenv("PARLEY_TELEMETRY", "")
	assert.True(t, enabledFromEnv(), "telemetry should default to enabled")

	t.Setenv("PARLEY_TELEMETRY", "false")
	assert.False(t, enabledFromEnv())

	t.Setenv("PARLEY_TELEMETRY", "true")
	assert.True(t, enabledFromEnv())

	t.Setenv("PARLEY_TELEMETRY", "anything-else")
	assert.True(t, enabledFromEnv(), "only the literal string false disables")
}

func TestEnabledDisabledUnderTests(t *testing.T) {
	// This test binary defines test.v, so the default check must refuse
	assert.False(t, Enabled())
}

func TestDispatcherContext(t *testing.T) {
	d, _ := newTestDispatcher(t, staticIdentity{}, staticPrivacy(false))

	ctx := WithDispatcher(t.Context(), d)
	assert.Same(t, d, FromContext(ctx))
	assert.Nil(t, FromContext(t.Context()))

	// Package-level Record without a dispatcher is a no-op
	Record(t.Context(), EventHeartbeat, nil)
}

func TestParseEventName(t *testing.T) {
	for _, valid := range []string{"heartbeat", "sign-in", "sign-out", "profile-update", "connect", "disconnect"} {
		name, err := ParseEventName(valid)
		require.NoError(t, err)
		assert.Equal(t, EventName(valid), name)
	}

	_, err := ParseEventName("made-up")
	require.Error(t, err)
}

func TestFlushWaitsForInflightSends(t *testing.T) {
	identity := staticIdentity{domain: "example.org", principal: "alice"}
	d, mockHTTP := newTestDispatcher(t, identity, staticPrivacy(false))

	d.Record(t.Context(), EventSignIn, nil)

	assert.True(t, d.Flush(time.Second))
	assert.Equal(t, 1, mockHTTP.GetRequestCount())
}

func TestAnonymize(t *testing.T) {
	a := anonymize("example.org")
	b := anonymize("example.org")
	c := anonymize("example.com")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, hashLength)
	assert.NotEqual(t, "example.org", a)
}
