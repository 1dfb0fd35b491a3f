// Package httpclient builds the shared HTTP client used for outbound
// requests, tagging every request with the product User-Agent.
package httpclient

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/parley-im/parley-core/pkg/version"
)

type userAgentTransport struct {
	agent string
	rt    http.RoundTripper
}

func (u *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	r2.Header.Set("User-Agent", u.agent)
	return u.rt.RoundTrip(r2)
}

// UserAgent returns the User-Agent string attached to outbound requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", version.Name, version.Version, runtime.GOOS, runtime.GOARCH)
}

// New returns an *http.Client that sets the product User-Agent on every
// request. The client carries no cookie jar, so no cookies are ever attached
// implicitly.
func New() *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			agent: UserAgent(),
			rt:    http.DefaultTransport,
		},
	}
}
