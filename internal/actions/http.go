package actions

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lberrio/flowpilot/internal/resource"
	"github.com/lberrio/flowpilot/pkg/schema"
)

const (
	httpMaxBodyBytes   = 10 << 20 // 10 MiB response cap
	httpDefaultTimeout = 30 * time.Second
)

// HTTPRequestHandler serves the "http.request" action type: one HTTP call
// through the run's bound session. When the Handle is an *resource.HTTPSession
// the session's client (and its cookie jar) is used and relative URLs are
// joined to the session base; otherwise a plain client makes the call.
type HTTPRequestHandler struct {
	fallback *http.Client
}

// NewHTTPRequestHandler creates the handler.
func NewHTTPRequestHandler() *HTTPRequestHandler {
	return &HTTPRequestHandler{
		fallback: &http.Client{Timeout: httpDefaultTimeout},
	}
}

func (h *HTTPRequestHandler) Type() string { return "http.request" }

// Execute performs the request. Params:
//
//	url     string (required; relative allowed with a session handle)
//	method  string (default GET)
//	headers map[string]string
//	body    any (JSON-encoded unless already a string)
//
// Result: {status, headers, body} with body JSON-decoded when possible.
func (h *HTTPRequestHandler) Execute(ctx context.Context, in Input) (any, error) {
	rawURL, _ := in.Params["url"].(string)
	if rawURL == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "http.request requires a 'url' string parameter")
	}

	method, _ := in.Params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	client := h.fallback
	if sess, ok := in.Resource.(*resource.HTTPSession); ok {
		client = sess.Client()
		if joined, err := joinSessionURL(sess.BaseURL(), rawURL); err == nil {
			rawURL = joined
		}
	}

	var bodyReader io.Reader
	if body, ok := in.Params["body"]; ok && body != nil {
		switch b := body.(type) {
		case string:
			bodyReader = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: encode body: %s", err.Error())
			}
			bodyReader = strings.NewReader(string(encoded))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "http.request: %s", err.Error()).WithCause(err)
	}

	if headers, ok := in.Params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction, "http.request: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, httpMaxBodyBytes))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeAction, "http.request: read body: %s", err.Error()).WithCause(err)
	}

	respHeaders := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	var body any = string(raw)
	if len(raw) > 0 {
		var decoded any
		if json.Unmarshal(raw, &decoded) == nil {
			body = decoded
		}
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"headers": respHeaders,
		"body":    body,
	}, nil
}

// joinSessionURL resolves a possibly-relative request URL against the
// session's base URL.
func joinSessionURL(base, ref string) (string, error) {
	if base == "" {
		return ref, nil
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

var _ Handler = (*HTTPRequestHandler)(nil)
