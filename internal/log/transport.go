// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that logs each request and its outcome.
// Header values listed in Redact are replaced before logging.
type Transport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
	Redact []string
}

// NewTransport wraps base (http.DefaultTransport when nil) with logging.
func NewTransport(logger *slog.Logger, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		Base:   base,
		Logger: logger,
		Redact: []string{"Authorization", "Cookie", "X-Api-Key"},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	attrs := []any{
		"event", "http_request",
		"method", req.Method,
		"url", req.URL.Redacted(),
	}
	if t.Logger.Enabled(req.Context(), LevelTrace) {
		attrs = append(attrs, "header", t.headers(req.Header))
	}
	t.Logger.Debug("http request", attrs...)

	resp, err := t.Base.RoundTrip(req)

	attrs = append(attrs, DurationKey, time.Since(start).Milliseconds())
	if err != nil {
		t.Logger.Warn("http request failed", append(attrs, "error", err)...)
		return nil, err
	}
	t.Logger.Debug("http request completed", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}

func (t *Transport) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	for _, k := range t.Redact {
		if _, ok := out[http.CanonicalHeaderKey(k)]; ok {
			out[http.CanonicalHeaderKey(k)] = SanitizeSecret("")
		}
	}
	return out
}
