package webauth

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

	"github.com/google/uuid"
	"github.com/lingoleap/webauth/profile"
	"go.uber.org/zap"
)

// Client sends requests to the platform API on behalf of a Session. It adds
// the bearer token and turns every 401 into a logout and a redirect to the
// login route.
type Client struct {
	session   *Session
	nav       Navigator
	http      *http.Client
	baseURL   *url.URL
	userAgent string
	idHeader  string
	maxBody   int64
	newID     func() string
	logger    *zap.Logger

	optErr error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is kept.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL overrides Config.HTTP.BaseURL. NewClient fails with
// ErrInvalidConfig when raw is not an absolute URL.
func WithBaseURL(raw string) ClientOption {
	return func(c *Client) {
		u, err := url.Parse(raw)
		if err == nil && !u.IsAbs() {
			err = errors.New("not an absolute url")
		}
		if err != nil {
			c.optErr = fmt.Errorf("%w: base url %q: %v", ErrInvalidConfig, raw, err)
			return
		}
		c.baseURL = u
	}
}

// WithRequestIDFunc overrides request id generation.
func WithRequestIDFunc(fn func() string) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewClient returns a client bound to sess. nav receives the login route after a 401.
func NewClient(sess *Session, nav Navigator, opts ...ClientOption) (*Client, error) {
	if sess == nil {
		return nil, ErrSessionRequired
	}
	if nav == nil {
		return nil, ErrNavigatorRequired
	}

	cfg := sess.config.HTTP
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidConfig, err)
	}

	c := &Client{
		session:   sess,
		nav:       nav,
		http:      &http.Client{Timeout: cfg.Timeout},
		baseURL:   base,
		userAgent: cfg.UserAgent,
		idHeader:  cfg.RequestIDHeader,
		maxBody:   cfg.MaxErrorBody,
		newID:     func() string { return uuid.NewString() },
		logger:    sess.logger.Named("http"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.optErr != nil {
		return nil, c.optErr
	}
	return c, nil
}

// URL resolves path against the base URL. The base path is kept, so
// "/users/me" on "https://x/api" becomes "https://x/api/users/me".
func (c *Client) URL(path string) string {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return c.baseURL.String() + path
	}
	base := *c.baseURL
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(rel).String()
}

// NewRequest builds a request for path. A non-nil body is sent as JSON.
func (c *Client) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Do sends req. Responses below 400 are returned for the caller to read and
// close. Any other status closes the body and returns a *StatusError; a 401
// also logs the session out and navigates to the login route, once per
// credential.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token, epoch := c.session.credentials()
	if token != "" && !bearerDisabled(ctx) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = c.newID()
	}
	req.Header.Set(c.idHeader, requestID)
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	metrics := c.session.metrics
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.Inc(MetricRequest)
	metrics.Observe(MetricRequestLatency, time.Since(start))
	if err != nil {
		metrics.Inc(MetricRequestFailure)
		c.logger.Debug("request failed", zap.String("method", req.Method), zap.String("path", req.URL.Path),
			zap.String("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	statusErr := c.readStatusError(req, resp, requestID)
	c.logger.Debug("request rejected", zap.String("method", req.Method), zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode), zap.String("request_id", requestID))

	if resp.StatusCode == http.StatusUnauthorized && !unauthorizedPolicyDisabled(ctx) {
		c.session.handleUnauthorized(ctx, epoch, c.nav, requestID)
	}
	return nil, statusErr
}

func (c *Client) readStatusError(req *http.Request, resp *http.Response, requestID string) *StatusError {
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	_, _ = io.Copy(io.Discard, resp.Body)

	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Path:       req.URL.Path,
		RequestID:  requestID,
		Body:       body,
	}

	var payload struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		statusErr.Code = rawString(payload.Code)
		statusErr.Message = payload.Message
		if statusErr.Message == "" {
			statusErr.Message = rawString(payload.Error)
		}
	}
	return statusErr
}

// rawString renders a JSON string or number as text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// GetJSON decodes the response of GET path into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// Authenticate posts credentials to path (Config.HTTP.LoginPath when empty),
// signs the session in with the returned token and user, and returns the
// user's landing route. A rejected login is returned as a *StatusError
// without touching the current session.
func (c *Client) Authenticate(ctx context.Context, path string, credentials any) (Route, error) {
	if path == "" {
		path = c.session.config.HTTP.LoginPath
	}
	ctx = WithoutUnauthorizedPolicy(WithoutBearer(ctx))

	var resp AuthResponse
	if err := c.PostJSON(ctx, path, credentials, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return "", ErrInvalidAuthResponse
	}
	if err := c.session.Login(ctx, resp.AccessToken, resp.User); err != nil {
		return "", err
	}
	return c.session.LandingRoute(), nil
}

// SyncProfile fetches Config.HTTP.ProfilePath and merges the result into the
// session user.
func (c *Client) SyncProfile(ctx context.Context) (UserProfile, error) {
	var raw json.RawMessage
	if err := c.GetJSON(ctx, c.session.config.HTTP.ProfilePath, &raw); err != nil {
		return UserProfile{}, err
	}
	patch, err := profile.PatchFromJSON(raw)
	if err != nil {
		return UserProfile{}, fmt.Errorf("sync profile: %w", err)
	}
	if err := c.session.UpdateUser(ctx, patch); err != nil {
		return UserProfile{}, err
	}
	user, _ := c.session.Profile()
	return user, nil
}
