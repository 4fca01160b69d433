// Package api is the HTTP adapter for the external posting service. Every
// call attaches the session's bearer token, and any 401 clears the session
// and comes back as an *UnauthorizedError carrying the login redirect.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/postdeck/internal/model"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10

	// LoginRedirect is the navigation target attached to unauthorized errors.
	LoginRedirect = "/login"
)

// Session is the part of the session store the adapter depends on.
type Session interface {
	Token() string
	Login(token string, user *model.User) error
	Logout(reason string) error
}

// Client calls the posting service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	metrics    *Metrics
	logger     *slog.Logger
	requestID  func() string
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient.Timeout = d
	}
}

func WithMetrics(m *Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

func NewClient(baseURL string, sess Session, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		session:    sess,
		logger:     slog.Default(),
		requestID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type requestIDKey struct{}

// WithRequestID makes calls issued with the returned context reuse id as
// their X-Request-ID instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// call describes one request. endpoint is the path template used for
// metrics; token overrides the session token when set. anonymous calls carry
// no credentials and never touch the session.
type call struct {
	method      string
	endpoint    string
	path        string
	body        io.Reader
	contentType string
	token       string
	anonymous   bool
	out         any
}

// do sends the request and decodes a 2xx body into c.out. It returns the
// response status.
func (c *Client) do(ctx context.Context, cl call) (int, error) {
	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, cl.body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if cl.contentType == "" {
		cl.contentType = "application/json"
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", cl.contentType)
	}
	req.Header.Set("Accept", "application/json")

	reqID := RequestID(ctx)
	if reqID == "" {
		reqID = c.requestID()
	}
	req.Header.Set("X-Request-ID", reqID)

	token := cl.token
	if token == "" && c.session != nil && !cl.anonymous {
		token = c.session.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.observe(cl.method, cl.endpoint, 0, elapsed)
		c.logger.Error("posting service request", "method", cl.method, "path", cl.path,
			"request_id", reqID, "duration", elapsed, "error", err)
		return 0, fmt.Errorf("%s %s: %w", cl.method, cl.path, err)
	}
	defer resp.Body.Close()

	c.metrics.observe(cl.method, cl.endpoint, resp.StatusCode, elapsed)
	attrs := []any{"method", cl.method, "path", cl.path, "status", resp.StatusCode,
		"request_id", reqID, "duration", elapsed}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("posting service request", attrs...)
		if cl.out == nil {
			io.Copy(io.Discard, resp.Body)
			return resp.StatusCode, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", cl.method, cl.path, err)
		}
		return resp.StatusCode, nil
	}

	c.logger.Warn("posting service request", attrs...)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := parseDetail(body)

	if resp.StatusCode == http.StatusUnauthorized && !cl.anonymous {
		if c.session != nil {
			if err := c.session.Logout("unauthorized"); err != nil {
				c.logger.Error("logout after 401", "error", err)
			}
		}
		return resp.StatusCode, &UnauthorizedError{Path: cl.path, Detail: detail, Redirect: LoginRedirect}
	}
	return resp.StatusCode, &Error{Method: cl.method, Path: cl.path, Status: resp.StatusCode, Detail: detail}
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// Token exchanges credentials for a bearer token (form-encoded POST /token).
func (c *Client) Token(ctx context.Context, username, password string) (*model.Token, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var tok model.Token
	_, err := c.do(ctx, call{
		method:      http.MethodPost,
		endpoint:    "/token",
		path:        "/token",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
		out:         &tok,
	})
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("POST /token: empty access token")
	}
	return &tok, nil
}

// Me resolves the current user from the session token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	return c.meWithToken(ctx, "")
}

func (c *Client) meWithToken(ctx context.Context, token string) (*model.User, error) {
	var u model.User
	if _, err := c.do(ctx, call{method: http.MethodGet, endpoint: "/users/me/", path: "/users/me/", token: token, out: &u}); err != nil {
		return nil, err
	}
	return &u, nil
}

// Authenticate logs in: it obtains a token, resolves the user with that
// token, and only then transitions the session.
func (c *Client) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	tok, err := c.Token(ctx, username, password)
	if err != nil {
		return nil, err
	}
	user, err := c.meWithToken(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := c.session.Login(tok.AccessToken, user); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return user, nil
}

// CreateUser registers an account without logging in.
func (c *Client) CreateUser(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	var u model.User
	if _, err := c.do(ctx, call{method: http.MethodPost, endpoint: "/users/", path: "/users/", body: body, out: &u}); err != nil {
		return nil, err
	}
	return &u, nil
}

// Register creates the account and then authenticates with it.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if _, err := c.CreateUser(ctx, req); err != nil {
		return nil, err
	}
	return c.Authenticate(ctx, req.Username, req.Password)
}

// Platforms lists the platform identifiers the posting service supports.
func (c *Client) Platforms(ctx context.Context) ([]string, error) {
	var platforms []string
	if _, err := c.do(ctx, call{method: http.MethodGet, endpoint: "/platforms", path: "/platforms", out: &platforms}); err != nil {
		return nil, err
	}
	return platforms, nil
}

func (c *Client) ListSocialAccounts(ctx context.Context) ([]model.SocialAccount, error) {
	var accounts []model.SocialAccount
	if _, err := c.do(ctx, call{method: http.MethodGet, endpoint: "/social-accounts/", path: "/social-accounts/", out: &accounts}); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (c *Client) CreateSocialAccount(ctx context.Context, req model.CreateSocialAccountRequest) (*model.SocialAccount, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}
	var a model.SocialAccount
	if _, err := c.do(ctx, call{method: http.MethodPost, endpoint: "/social-accounts/", path: "/social-accounts/", body: body, out: &a}); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *Client) DeleteSocialAccount(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/social-accounts/%d", id)
	_, err := c.do(ctx, call{method: http.MethodDelete, endpoint: "/social-accounts/{id}", path: path})
	return err
}

func (c *Client) ListPosts(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if _, err := c.do(ctx, call{method: http.MethodGet, endpoint: "/posts/", path: "/posts/", out: &posts}); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePost submits a post and returns the created record with the
// response status.
func (c *Client) CreatePost(ctx context.Context, req model.CreatePostRequest) (*model.Post, int, error) {
	body, err := jsonBody(req)
	if err != nil {
		return nil, 0, err
	}
	var p model.Post
	status, err := c.do(ctx, call{method: http.MethodPost, endpoint: "/posts/", path: "/posts/", body: body, out: &p})
	if err != nil {
		return nil, status, err
	}
	return &p, status, nil
}

func (c *Client) DeletePost(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/posts/%d", id)
	_, err := c.do(ctx, call{method: http.MethodDelete, endpoint: "/posts/{id}", path: path})
	return err
}

// Health reports whether the posting service answers its health check.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, call{method: http.MethodGet, endpoint: "/health", path: "/health", anonymous: true})
	return err
}
