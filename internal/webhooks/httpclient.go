package webhooks

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newDeliveryClient builds a tuned HTTP client for webhook delivery,
// grounded on the teacher's transport.NewHTTPClient: pooled connections,
// bounded idle timeouts, and a capped redirect chain. Per-delivery
// timeouts come from the subscriber's own Timeout field via the request
// context, not this client's Timeout (left at zero so it never overrides
// a shorter per-request deadline).
func newDeliveryClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxResponseHeaderBytes: 1 << 20,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}
