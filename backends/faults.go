package backends

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/promptdemo/options"
)

// WithFaultInjection wraps the provider's HTTP client so that every request
// is delayed by latency and fails with probability failureRate. Failures are
// either a client-side network error or an error status from the server.
func WithFaultInjection(latency time.Duration, failureRate float64) options.InferenceProviderOption {
	return func(opts *options.InferenceProviderOptions) {
		base := http.DefaultTransport
		client := &http.Client{}
		if opts.HTTPClient != nil {
			c := *opts.HTTPClient
			client = &c
			if c.Transport != nil {
				base = c.Transport
			}
		}
		client.Transport = &faultTransport{
			base:        base,
			latency:     latency,
			failureRate: failureRate,
			float:       rand.Float64,
			intn:        rand.IntN,
		}
		opts.HTTPClient = client
	}
}

type faultTransport struct {
	base        http.RoundTripper
	latency     time.Duration
	failureRate float64

	float func() float64
	intn  func(int) int
}

// Server errors returned by injected failures.
var faultStatusCodes = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

func (t *faultTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.latency > 0 {
		select {
		case <-time.After(t.latency):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if t.failureRate > 0 && t.float() < t.failureRate {
		if t.float() < 0.5 {
			return nil, fmt.Errorf("injected network error (failure rate %.2f)", t.failureRate)
		}
		code := faultStatusCodes[t.intn(len(faultStatusCodes))]
		resp := &http.Response{
			StatusCode: code,
			Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
			Body:       io.NopCloser(strings.NewReader(`{"error":{"message":"injected server error","type":"injected_error"}}`)),
			Request:    req,
		}
		resp.Header.Set("Content-Type", "application/json")
		return resp, nil
	}
	return t.base.RoundTrip(req)
}
