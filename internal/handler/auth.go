package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/middleware"
	"github.com/dukerupert/postdeck/internal/model"
	"github.com/dukerupert/postdeck/internal/route"
)

const (
	msgLoginFailed      = "Failed to login. Please check your credentials."
	msgRegisterFailed   = "Failed to register. Please try again with different credentials."
	msgPasswordMismatch = "Passwords do not match"
	msgFieldsRequired   = "All fields are required"
)

// Authenticator signs the console in against the posting service.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.User, error)
}

type Logouter interface {
	Logout(reason string) error
}

// Resetter discards per-user state such as the post draft.
type Resetter interface {
	Reset()
}

type AuthHandler struct {
	client  Authenticator
	session Logouter
	drafts  Resetter
	render  *Renderer
	logger  *slog.Logger
}

func NewAuthHandler(client Authenticator, session Logouter, drafts Resetter, render *Renderer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		client:  client,
		session: session,
		drafts:  drafts,
		render:  render,
		logger:  logger,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Login")
	data["Username"] = ""
	h.render.Page(w, r, "login", http.StatusOK, data)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	data := pageData(r, "Login")
	data["Username"] = username

	if username == "" || password == "" {
		data["Error"] = msgFieldsRequired
		h.render.Page(w, r, "login", http.StatusOK, data)
		return
	}

	user, err := h.client.Authenticate(r.Context(), username, password)
	if err != nil {
		// A 401 here means bad credentials, not an expired session, so the
		// message is shown in place instead of navigating.
		h.logger.Warn("login failed", "username", username, "error", err)
		data["Error"] = api.Detail(err, msgLoginFailed)
		h.render.Page(w, r, "login", http.StatusOK, data)
		return
	}

	h.logger.Info("logged in", "user_id", user.ID, "username", user.Username)
	middleware.Redirect(w, r, route.Landing)
}

func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Register")
	data["Username"] = ""
	data["Email"] = ""
	h.render.Page(w, r, "register", http.StatusOK, data)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req := model.RegisterRequest{
		Username: strings.TrimSpace(r.FormValue("username")),
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
	}

	data := pageData(r, "Register")
	data["Username"] = req.Username
	data["Email"] = req.Email

	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		data["Error"] = msgFieldsRequired
	case req.Password != r.FormValue("confirm_password"):
		data["Error"] = msgPasswordMismatch
	}
	if data["Error"] != "" {
		h.render.Page(w, r, "register", http.StatusOK, data)
		return
	}

	user, err := h.client.Register(r.Context(), req)
	if err != nil {
		h.logger.Warn("register failed", "username", req.Username, "error", err)
		data["Error"] = api.Detail(err, msgRegisterFailed)
		h.render.Page(w, r, "register", http.StatusOK, data)
		return
	}

	h.logger.Info("registered", "user_id", user.ID, "username", user.Username)
	middleware.Redirect(w, r, route.Landing)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout("logout"); err != nil {
		h.logger.Error("logout", "error", err)
	}
	h.drafts.Reset()
	middleware.Redirect(w, r, route.Login)
}
