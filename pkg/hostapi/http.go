package hostapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

type httpRequest struct {
	method  string
	url     string
	headers map[string]string
	body    string
	timeout time.Duration
}

type httpResponse struct {
	status   int
	headers  map[string]any
	bodyText string
}

func (r *httpResponse) toMap() map[string]any {
	return map[string]any{
		"status":   r.status,
		"headers":  r.headers,
		"bodyText": r.bodyText,
	}
}

// handleHTTPRequest performs the request described by the "request" table:
// {method, url, headers, body, timeoutMs}. GET and HEAD requests are retried
// on 429, 5xx and transport errors; once retries are exhausted the last
// response is still returned so the plugin can inspect the status.
func (s *Surface) handleHTTPRequest(ctx context.Context, caller Caller, args Args) (any, error) {
	req, err := parseHTTPRequest(args)
	if err != nil {
		return nil, err
	}

	cfg := s.retry
	idempotent := req.method == http.MethodGet || req.method == http.MethodHead
	if !idempotent {
		cfg.MaxRetries = 0
	}

	var last *httpResponse
	resp, err := ouerrors.Retry(ctx, cfg, func() (*httpResponse, error) {
		r, err := s.doHTTP(ctx, req, idempotent)
		if err != nil {
			return nil, err
		}
		last = r
		if idempotent && (r.status == http.StatusTooManyRequests || r.status >= 500) {
			return r, ouerrors.NewHostCallErrorWithStatus(string(CapabilityHTTPRequest), r.status, http.StatusText(r.status))
		}
		return r, nil
	})
	if err != nil {
		if last != nil && ctx.Err() == nil {
			s.logger.Debug("http request retries exhausted",
				"plugin", caller.PluginID, "url", req.url, "status", last.status)
			return last.toMap(), nil
		}
		return nil, err
	}
	return resp.toMap(), nil
}

func (s *Surface) doHTTP(ctx context.Context, req httpRequest, idempotent bool) (*httpResponse, error) {
	timeout := req.timeout
	if timeout <= 0 {
		timeout = s.httpTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityHTTPRequest), "invalid request", err, false)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityHTTPRequest),
			fmt.Sprintf("%s %s", req.method, req.url), err, idempotent)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxReadBytes+1))
	if err != nil {
		return nil, ouerrors.NewHostCallErrorWithCause(string(CapabilityHTTPRequest), "reading response body", err, idempotent)
	}
	if int64(len(data)) > s.maxReadBytes {
		return nil, ouerrors.NewHostCallError(string(CapabilityHTTPRequest),
			fmt.Sprintf("response body exceeds the %d byte read limit", s.maxReadBytes))
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	return &httpResponse{status: resp.StatusCode, headers: headers, bodyText: string(data)}, nil
}

func parseHTTPRequest(args Args) (httpRequest, error) {
	m, err := args.Map(CapabilityHTTPRequest, "request")
	if err != nil {
		return httpRequest{}, err
	}
	fields := Args(m)

	req := httpRequest{headers: map[string]string{}}
	if req.url, err = fields.String(CapabilityHTTPRequest, "url"); err != nil {
		return httpRequest{}, err
	}
	method, err := fields.OptionalString(CapabilityHTTPRequest, "method", http.MethodGet)
	if err != nil {
		return httpRequest{}, err
	}
	req.method = strings.ToUpper(method)
	if req.body, err = fields.OptionalString(CapabilityHTTPRequest, "body", ""); err != nil {
		return httpRequest{}, err
	}

	if raw, ok := fields["headers"]; ok && raw != nil {
		hdrs, ok := raw.(map[string]any)
		if !ok {
			return httpRequest{}, ouerrors.NewHostCallError(string(CapabilityHTTPRequest), "headers must be a table")
		}
		for k, v := range hdrs {
			req.headers[k] = fmt.Sprint(v)
		}
	}

	if raw, ok := fields["timeoutMs"]; ok && raw != nil {
		ms, ok := toInt64(raw)
		if !ok || ms < 0 {
			return httpRequest{}, ouerrors.NewHostCallError(string(CapabilityHTTPRequest), "timeoutMs must be a non-negative number")
		}
		req.timeout = time.Duration(ms) * time.Millisecond
	}

	return req, nil
}
