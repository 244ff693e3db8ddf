// Package httpclient builds the shared outbound HTTP client used by every
// provider adapter.
package httpclient

import (
	"net/http"
	"time"
)

// New returns an http.Client configured for outbound requests.
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: Transport(),
	}
}

// Transport returns an http.Transport clone suitable for outbound calls.
// It respects HTTP(S)_PROXY/NO_PROXY from the environment.
func Transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	transport := base.Clone()
	transport.Proxy = http.ProxyFromEnvironment
	return transport
}
