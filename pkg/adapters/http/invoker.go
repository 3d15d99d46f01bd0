package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/cadence/pkg/ports"
	"github.com/spf13/cast"
)

// DefaultToolTimeout bounds a single tool call.
const DefaultToolTimeout = 30 * time.Second

// maxResponseBytes caps how much of a tool response is read.
const maxResponseBytes = 10 << 20

// StatusError reports a non-2xx tool response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("tool responded with status %d: %s", e.StatusCode, body)
}

// Invoker implements ports.ToolInvoker over HTTP.
// Parameters travel as the query string for GET, HEAD and DELETE, and as a
// JSON body for every other method.
type Invoker struct {
	client *http.Client
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) InvokerOption {
	return func(i *Invoker) {
		i.client = c
	}
}

// WithTimeout sets the per-call timeout of the default client.
func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.client.Timeout = d
	}
}

// NewInvoker creates an HTTP tool invoker.
func NewInvoker(opts ...InvokerOption) *Invoker {
	inv := &Invoker{client: &http.Client{Timeout: DefaultToolTimeout}}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke performs the request and decodes the response.
func (i *Invoker) Invoke(ctx context.Context, req ports.ToolRequest) (*ports.ToolResponse, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	target, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid tool url %q: %w", req.URL, err)
	}

	var body io.Reader
	if paramsInQuery(method) {
		q := target.Query()
		for k, v := range req.Params {
			addQuery(q, k, v)
		}
		target.RawQuery = q.Encode()
	} else if req.Params != nil {
		payload, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool parameters: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tool request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tool response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	return &ports.ToolResponse{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(raw),
		Raw:        raw,
	}, nil
}

func paramsInQuery(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		return true
	}
	return false
}

func addQuery(q url.Values, key string, v any) {
	switch val := v.(type) {
	case nil:
		return
	case []any:
		for _, item := range val {
			addQuery(q, key, item)
		}
		return
	case []string:
		for _, item := range val {
			q.Add(key, item)
		}
		return
	}
	if s, err := cast.ToStringE(v); err == nil {
		q.Add(key, s)
		return
	}
	if raw, err := json.Marshal(v); err == nil {
		q.Add(key, string(raw))
	}
}

// decodeBody returns JSON values for JSON payloads and the text otherwise.
func decodeBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	var v any
	if json.Valid(trimmed) {
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
