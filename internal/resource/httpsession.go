package resource

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// HTTPSession is the reference Handle implementation: a cookie-jar-backed
// HTTP client bound to one base URL, with a ping-based liveness probe.
// Action handlers that drive an HTTP-reachable session type-assert their
// Handle to *HTTPSession to borrow the client.
type HTTPSession struct {
	key     string
	baseURL string
	client  *http.Client
	pingURL string
}

// HTTPSessionConfig configures a new HTTPSession.
type HTTPSessionConfig struct {
	BaseURL string
	PingURL string // liveness probe target; empty means BaseURL
	Timeout time.Duration
}

// NewHTTPSession creates an HTTPSession handle for the given key.
func NewHTTPSession(key string, cfg HTTPSessionConfig) (*HTTPSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pingURL := cfg.PingURL
	if pingURL == "" {
		pingURL = cfg.BaseURL
	}

	return &HTTPSession{
		key:     key,
		baseURL: cfg.BaseURL,
		pingURL: pingURL,
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}, nil
}

func (s *HTTPSession) Key() string { return s.key }

// BaseURL returns the session's base URL.
func (s *HTTPSession) BaseURL() string { return s.baseURL }

// Client returns the session's HTTP client. The cookie jar carries whatever
// authentication state the session was established with; the probe and all
// handler requests share it.
func (s *HTTPSession) Client() *http.Client { return s.client }

// IsLive issues a HEAD request against the ping URL. Any response, including
// an HTTP error status, counts as live; only transport failure counts as dead.
func (s *HTTPSession) IsLive(ctx context.Context) bool {
	if s.pingURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.pingURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Handle = (*HTTPSession)(nil)
