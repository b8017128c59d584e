package jellyfin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/narwhalmedia/narwhal-player/internal/domain/playback"
)

// Config configures the media server client
type Config struct {
	ServerURL     string
	AccessToken   string
	UserID        string
	DeviceID      string
	DeviceName    string
	ClientName    string
	ClientVersion string
	Timeout       time.Duration
}

// Client represents a media server API client
type Client struct {
	baseURL    *url.URL
	cfg        Config
	httpClient *http.Client
	rawClient  *http.Client
	logger     *zap.Logger
}

// StatusError is returned for non-success responses
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.Path, e.StatusCode)
}

// NewClient creates a new media server client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse server url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("server url %q must be absolute", cfg.ServerURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := &authTransport{
		base:   http.DefaultTransport,
		header: authorizationHeader(cfg),
		token:  cfg.AccessToken,
	}

	return &Client{
		baseURL: base,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		// Byte transfers are bounded by their context instead of a client timeout.
		rawClient: &http.Client{Transport: transport},
		logger:    logger.Named("jellyfin"),
	}, nil
}

// Credentials returns the identity used for URLs built outside the client
func (c *Client) Credentials() playback.Credentials {
	return playback.Credentials{
		ServerURL:   c.baseURL.String(),
		AccessToken: c.cfg.AccessToken,
		UserID:      c.cfg.UserID,
		DeviceID:    c.cfg.DeviceID,
	}
}

// HTTPClient returns an authenticated client without an overall timeout,
// used for segment and file transfers.
func (c *Client) HTTPClient() *http.Client {
	return c.rawClient
}

// URL resolves a server path or an absolute URL against the server base.
func (c *Client) URL(ref string, query url.Values) string {
	u, err := url.Parse(ref)
	if err != nil {
		u = &url.URL{Path: ref}
	}
	if !u.IsAbs() {
		rel := *u
		u = c.baseURL.JoinPath(rel.EscapedPath())
		u.RawQuery = rel.RawQuery
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Fetch performs an authenticated GET and returns the open response.
// The caller must close the body.
func (c *Client) Fetch(ctx context.Context, ref string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(ref, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.rawClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Method: http.MethodGet, Path: req.URL.Path, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, query), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// authTransport adds the server's authorization headers to every request
type authTransport struct {
	base   http.RoundTripper
	header string
	token  string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", t.header)
	if t.token != "" {
		r.Header.Set("X-Emby-Token", t.token)
	}
	return t.base.RoundTrip(r)
}

func authorizationHeader(cfg Config) string {
	parts := []string{
		fmt.Sprintf("Client=%q", orDefault(cfg.ClientName, "narwhal-player")),
		fmt.Sprintf("Device=%q", orDefault(cfg.DeviceName, "narwhal-player")),
		fmt.Sprintf("DeviceId=%q", cfg.DeviceID),
		fmt.Sprintf("Version=%q", orDefault(cfg.ClientVersion, "1.0.0")),
	}
	if cfg.AccessToken != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", cfg.AccessToken))
	}
	return "MediaBrowser " + strings.Join(parts, ", ")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
