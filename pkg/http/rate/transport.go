package rate

import (
	"log/slog"
	"net/http"
)

// NewTransport returns a http RoundTripper which honors the specified rate limit
func NewTransport(rl AdjustableLimiter, transport http.RoundTripper) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &rateLimitingTransport{
		wrappedTransport: transport,
		ratelimiter:      rl,
	}
}

// rateLimitingTransport represents a http.RoundTripper valuing the provided rate limit
type rateLimitingTransport struct {
	wrappedTransport http.RoundTripper
	ratelimiter      AdjustableLimiter
}

// RoundTrip dispatches the HTTP request to the network
func (r *rateLimitingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	slog.Debug("waiting for rate limiter", "url", request.URL.String())
	err := r.ratelimiter.Wait(request.Context()) // This is a blocking call. Honors the rate limit
	if err != nil {
		return nil, err
	}
	response, err := r.wrappedTransport.RoundTrip(request)
	if err != nil {
		return response, err
	}
	if err := r.ratelimiter.AdjustLimit(response.Header); err != nil {
		slog.Debug("no rate limit in response", "error", err)
	}
	return response, nil
}
