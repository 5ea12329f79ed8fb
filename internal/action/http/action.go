// Package http provides the http action: one JSON API call per case.
//
// Step config:
//
//	method:  GET (default), POST, PUT, PATCH, DELETE, HEAD or OPTIONS
//	url:     request URL, templated
//	header:  map of header values
//	query:   map of query parameters appended to url
//	body:    string sent as is, or an object/list sent as JSON
//	rate_limit, burst: per-step override of the shared limit
//
// The result is {status, header, body}. A JSON response body is decoded;
// anything else is returned as a string. HTTP error statuses are results,
// not errors, so an assert decides whether the case passes.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tombee/chord/internal/log"
	"github.com/tombee/chord/pkg/action"
	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/render"
)

// Kind is the registered action kind.
const Kind = "http"

var allowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Factory builds http actions sharing one client.
type Factory struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewFactory creates an http factory. A nil logger uses slog.Default.
func NewFactory(config Config, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{config: config, logger: logger}
	f.client = &http.Client{
		Transport: log.NewTransport(logger, http.DefaultTransport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return f.checkURL(req.URL)
		},
	}
	return f
}

// Create resolves the step's rate limit. All cases of the step share the
// limiter.
func (f *Factory) Create(_ context.Context, arg action.CreateArg) (action.Action, error) {
	cfg, err := action.ConfigOf(arg.Config())
	if err != nil {
		return nil, err
	}
	if _, err := cfg.RequireString("url"); err != nil {
		return nil, err
	}

	limit, err := rateOf(cfg, "rate_limit")
	if err != nil {
		return nil, err
	}
	burst, err := cfg.Int("burst", f.config.Burst)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = f.config.RateLimit
	}
	if burst < 1 {
		burst = 1
	}

	h := &httpAction{factory: f}
	if limit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	return h, nil
}

type httpAction struct {
	factory *Factory
	limiter *rate.Limiter
}

func (h *httpAction) Run(ctx context.Context, arg action.RunArg) (interface{}, error) {
	rendered, err := arg.RenderValue(arg.Config())
	if err != nil {
		return nil, err
	}
	cfg, err := action.ConfigOf(rendered)
	if err != nil {
		return nil, err
	}

	if h.factory.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.factory.config.Timeout)
		defer cancel()
	}

	req, err := h.factory.validateAndPrepareRequest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, &errors.ActionError{Code: CodeRequest, Message: "rate limit wait aborted", Cause: err}
		}
	}

	return h.factory.executeRequest(req)
}

// validateAndPrepareRequest builds the request from rendered step config.
func (f *Factory) validateAndPrepareRequest(ctx context.Context, cfg action.Config) (*http.Request, error) {
	rawURL, err := cfg.RequireString("url")
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(cfg.String("method", "GET"))
	if !contains(allowedMethods, method) {
		return nil, &errors.ActionError{
			Code:    CodeRequest,
			Message: fmt.Sprintf("invalid HTTP method: %s (allowed: %v)", method, allowedMethods),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		reason := "missing scheme or host"
		if err != nil {
			reason = err.Error()
		}
		return nil, &errors.ActionError{Code: CodeRequest, Message: "bad url", Cause: &InvalidURLError{URL: rawURL, Reason: reason}}
	}
	if err := f.checkURL(u); err != nil {
		return nil, &errors.ActionError{Code: CodeBlocked, Message: "request blocked", Cause: err}
	}

	if query := cfg.Map("query"); len(query) > 0 {
		values := u.Query()
		for k, v := range query {
			values.Set(k, render.ToString(v))
		}
		u.RawQuery = values.Encode()
	}

	body, isJSON, err := encodeBody(cfg["body"])
	if err != nil {
		return nil, &errors.ActionError{Code: CodeRequest, Message: "cannot encode body", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, &errors.ActionError{Code: CodeRequest, Message: "cannot build request", Cause: err}
	}
	for k, v := range cfg.Map("header") {
		req.Header.Set(k, render.ToString(v))
	}
	if body != nil && req.Header.Get("Content-Type") == "" && (isJSON || method != "GET") {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// executeRequest sends req and shapes the response into a result map.
func (f *Factory) executeRequest(req *http.Request) (interface{}, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &errors.TimeoutError{Operation: "http " + req.URL.Host, Duration: f.config.Timeout, Cause: err}
		}
		reason := err.Error()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			reason = "timeout"
		}
		return nil, &errors.ActionError{Code: CodeNetwork, Message: "request failed", Cause: &NetworkError{URL: req.URL.String(), Reason: reason}}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, f.config.MaxResponseSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, &errors.ActionError{Code: CodeNetwork, Message: "failed to read response", Cause: err}
	}
	if int64(len(data)) > f.config.MaxResponseSize {
		return nil, &errors.ActionError{Code: CodeTooBig, Message: fmt.Sprintf("response exceeds %d bytes", f.config.MaxResponseSize)}
	}

	header := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) == 1 {
			header[k] = v[0]
			continue
		}
		list := make([]interface{}, len(v))
		for i, s := range v {
			list[i] = s
		}
		header[k] = list
	}

	return map[string]interface{}{
		"status": int64(resp.StatusCode),
		"header": header,
		"body":   decodeBody(resp.Header.Get("Content-Type"), data),
	}, nil
}

// checkURL applies the scheme and host allow list.
func (f *Factory) checkURL(u *url.URL) error {
	if f.config.RequireHTTPS && u.Scheme != "https" {
		return &SecurityBlockedError{URL: u.String(), Reason: "https required"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &SecurityBlockedError{URL: u.String(), Reason: "unsupported scheme " + u.Scheme}
	}
	if len(f.config.AllowedHosts) > 0 && !contains(f.config.AllowedHosts, u.Hostname()) {
		return &SecurityBlockedError{URL: u.String(), Reason: "host not allowed"}
	}
	return nil
}

func encodeBody(body interface{}) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case string:
		if b == "" {
			return nil, false, nil
		}
		return strings.NewReader(b), false, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, false, err
		}
		return bytes.NewReader(data), true, nil
	}
}

func decodeBody(contentType string, data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	trimmed := bytes.TrimSpace(data)
	if strings.Contains(contentType, "json") || (len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')) {
		if v, err := render.DecodeJSON(trimmed); err == nil {
			return v
		}
	}
	return string(data)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
