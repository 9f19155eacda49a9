// Package http holds RoundTripper decorators shared by the API clients.
package http

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
)

// LogTransport dumps every request and response at debug level. Multipart
// upload bodies are elided to keep the log readable.
func LogTransport(transport http.RoundTripper) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &logTransport{transport: transport}
}

type logTransport struct {
	transport http.RoundTripper
}

func (l *logTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	withBody := request.ContentLength >= 0 && request.ContentLength < 4096 && request.GetBody != nil
	req, err := httputil.DumpRequestOut(request, withBody)
	if err != nil {
		slog.Debug("error dumping request", "error", err)
	} else {
		slog.Debug("http request", "dump", string(req))
	}

	response, respErr := l.transport.RoundTrip(request)
	if respErr != nil {
		slog.Debug("error sending request", "error", respErr)
		return response, respErr
	}

	res, err := httputil.DumpResponse(response, true)
	if err != nil {
		slog.Debug("error dumping response", "error", err)
	} else {
		slog.Debug("http response", "dump", string(res))
	}
	return response, nil
}
