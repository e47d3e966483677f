// Package client talks to a running httpmocker controller and to the apps it
// starts.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds every request unless WithTimeout overrides it.
const DefaultTimeout = 10 * time.Second

// Client is an HTTP client for the controller API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tlsConfig  *tls.Config
	token      string
	err        error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithToken sets the bearer token sent with controller requests.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTLS presents the client certificate in certFile/keyFile on HTTPS
// connections.
func WithTLS(certFile, keyFile string) Option {
	return func(c *Client) {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			c.err = fmt.Errorf("load client certificate: %w", err)
			return
		}
		c.tlsConfig.Certificates = append(c.tlsConfig.Certificates, cert)
	}
}

// WithInsecureSkipVerify accepts any server certificate, which is what
// self-signed app certificates need.
func WithInsecureSkipVerify() Option {
	return func(c *Client) {
		c.tlsConfig.InsecureSkipVerify = true //nolint:gosec // G402: opt-in for self-signed apps
	}
}

// New creates a client for the controller at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse controller url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		tlsConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.err != nil {
		return nil, c.err
	}
	c.httpClient.Transport = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: c.tlsConfig,
	}
	return c, nil
}

// BaseURL returns the controller URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// App returns a handle for an app of kind on port. Nothing is sent until
// App.Start.
func (c *Client) App(kind string, port int, opts ...AppOption) *App {
	a := &App{client: c, kind: kind, port: port}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Health checks that the controller answers.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, c.url("/health"), nil, nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, nil)
}

// Apps lists the apps known to the controller.
func (c *Client) Apps(ctx context.Context) ([]AppInfo, error) {
	resp, err := c.send(ctx, http.MethodGet, c.url("/mock/apps"), nil, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Apps []AppInfo `json:"apps"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Apps, nil
}

func (c *Client) url(path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// send performs a request. body may be nil, []byte or any JSON-encodable value.
func (c *Client) send(ctx context.Context, method, target string, headers map[string]string, body any) (*http.Response, error) {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// decodeResponse closes resp, decoding a 2xx body into v or turning anything
// else into an *APIError.
func decodeResponse(resp *http.Response, v any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Msg
		}
		apiErr.Detail = body.Detail
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// MockApp starts an app of kind on port through the controller at baseURL.
func MockApp(ctx context.Context, baseURL, kind string, port int, opts ...Option) (*App, error) {
	c, err := New(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	a := c.App(kind, port)
	if _, err := a.Start(ctx, nil); err != nil {
		return nil, err
	}
	return a, nil
}
