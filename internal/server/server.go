package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/collection"
	"github.com/dukerupert/postdeck/internal/compose"
	"github.com/dukerupert/postdeck/internal/handler"
	"github.com/dukerupert/postdeck/internal/media"
	"github.com/dukerupert/postdeck/internal/middleware"
	"github.com/dukerupert/postdeck/internal/session"
	ws "github.com/dukerupert/postdeck/internal/websocket"
	"github.com/dukerupert/postdeck/web"
)

const (
	credentialLimit  = 10
	credentialWindow = time.Minute
	healthTimeout    = 3 * time.Second
)

type Server struct {
	session     *session.Store
	client      *api.Client
	hub         *ws.Hub
	registry    *prometheus.Registry
	rateLimiter *middleware.RateLimiter
	authH       *handler.AuthHandler
	dashboardH  *handler.DashboardHandler
	composeH    *handler.ComposeHandler
	postsH      *handler.PostsHandler
	accountsH   *handler.AccountsHandler
	logger      *slog.Logger
}

// Option configures optional parts of the console.
type Option func(*options)

type options struct {
	uploader handler.MediaUploader
}

// WithUploader enables file uploads on the composer.
func WithUploader(u *media.Uploader) Option {
	return func(o *options) {
		if u.Enabled() {
			o.uploader = u
		}
	}
}

// New wires the console. Session transitions are broadcast to open tabs
// through the websocket hub.
func New(sess *session.Store, client *api.Client, registry *prometheus.Registry, logger *slog.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	render, err := handler.NewRenderer(web.Templates, logger.With("component", "template"))
	if err != nil {
		return nil, err
	}

	hub := ws.NewHub(logger)
	sess.OnChange(hub.SessionChanged)
	if err := registerHubMetrics(registry, hub); err != nil {
		return nil, err
	}

	flow := compose.New(client, logger)
	posts := collection.NewPostsView(client, logger)
	accounts := collection.NewAccountsView(client, logger)

	return &Server{
		session:     sess,
		client:      client,
		hub:         hub,
		registry:    registry,
		rateLimiter: middleware.NewRateLimiter(),
		authH:       handler.NewAuthHandler(client, sess, flow, render, logger.With("component", "auth")),
		dashboardH:  handler.NewDashboardHandler(client, render, logger.With("component", "dashboard")),
		composeH:    handler.NewComposeHandler(flow, hub, o.uploader, render, logger.With("component", "compose_handler")),
		postsH:      handler.NewPostsHandler(posts, hub, render, logger.With("component", "posts_handler")),
		accountsH:   handler.NewAccountsHandler(accounts, hub, render, logger.With("component", "accounts_handler")),
		logger:      logger,
	}, nil
}

func registerHubMetrics(reg prometheus.Registerer, hub *ws.Hub) error {
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "postdeck_websocket_dropped_messages_total",
		Help: "Console messages skipped because a tab's send buffer was full.",
	}, func() float64 { return float64(hub.Dropped()) })
	clients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "postdeck_websocket_clients",
		Help: "Console tabs currently connected.",
	}, func() float64 { return float64(hub.ClientCount()) })

	for _, c := range []prometheus.Collector{dropped, clients} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register websocket metrics: %w", err)
		}
	}
	return nil
}

// Hub returns the websocket hub so it can be closed on shutdown.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Session
	mux.HandleFunc("GET /login", s.authH.LoginPage)
	mux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))
	mux.HandleFunc("GET /register", s.authH.RegisterPage)
	mux.HandleFunc("POST /register", s.rateLimitedHandler(s.authH.Register))
	mux.HandleFunc("POST /logout", s.authH.Logout)

	// Pages
	mux.HandleFunc("GET /dashboard", s.dashboardH.Show)

	mux.HandleFunc("GET /create-post", s.composeH.Page)
	mux.HandleFunc("POST /create-post", s.composeH.Submit)
	mux.HandleFunc("POST /create-post/media", s.composeH.AddMedia)
	mux.HandleFunc("POST /create-post/media/upload", s.composeH.UploadMedia)
	mux.HandleFunc("POST /create-post/media/{index}/delete", s.composeH.RemoveMedia)
	mux.HandleFunc("POST /create-post/tags", s.composeH.AddTag)
	mux.HandleFunc("POST /create-post/tags/delete", s.composeH.RemoveTag)

	mux.HandleFunc("GET /posts", s.postsH.List)
	mux.HandleFunc("POST /posts/{id}/delete", s.postsH.Delete)
	mux.HandleFunc("POST /posts/dismiss", s.postsH.Dismiss)

	mux.HandleFunc("GET /social-accounts", s.accountsH.List)
	mux.HandleFunc("POST /social-accounts", s.accountsH.Create)
	mux.HandleFunc("POST /social-accounts/{id}/delete", s.accountsH.Delete)
	mux.HandleFunc("POST /social-accounts/dismiss", s.accountsH.Dismiss)

	// Infrastructure
	mux.Handle("GET /static/", http.FileServerFS(web.Static))
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	var h http.Handler = mux
	h = middleware.Guard(s.session)(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := map[string]string{
		"status":   "ok",
		"session":  s.session.State().String(),
		"upstream": "ok",
	}
	if err := s.client.Health(ctx); err != nil {
		s.logger.Warn("posting service health check failed", "error", err)
		resp["upstream"] = "unreachable"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	limited := middleware.RateLimit(s.rateLimiter, middleware.ByIP, credentialLimit, credentialWindow)(h)
	return limited.ServeHTTP
}
