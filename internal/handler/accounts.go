package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/postdeck/internal/collection"
	"github.com/dukerupert/postdeck/internal/middleware"
	"github.com/dukerupert/postdeck/internal/model"
	"github.com/dukerupert/postdeck/internal/route"
	ws "github.com/dukerupert/postdeck/internal/websocket"
)

const msgConfirmAccountDelete = "Are you sure you want to delete this social account?"

type AccountsHandler struct {
	view   *collection.AccountsView
	hub    Broadcaster
	render *Renderer
	logger *slog.Logger
}

func NewAccountsHandler(view *collection.AccountsView, hub Broadcaster, render *Renderer, logger *slog.Logger) *AccountsHandler {
	return &AccountsHandler{view: view, hub: hub, render: render, logger: logger}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	if err := h.view.Load(r.Context()); err != nil && navigate(w, r, err) {
		return
	}
	h.show(w, r, "")
}

func (h *AccountsHandler) show(w http.ResponseWriter, r *http.Request, errMsg string) {
	snap := h.view.Snapshot()
	data := pageData(r, "Social Accounts")
	data["Accounts"] = snap.Accounts
	data["Platforms"] = snap.Platforms
	data["Loading"] = snap.Loading
	data["Error"] = snap.Error
	data["Success"] = snap.Success
	data["Dismiss"] = route.SocialAccounts + "/dismiss"
	if errMsg != "" {
		data["Error"] = errMsg
	}
	h.render.Page(w, r, "social_accounts", http.StatusOK, data)
}

func (h *AccountsHandler) Create(w http.ResponseWriter, r *http.Request) {
	req := model.CreateSocialAccountRequest{
		Platform: r.FormValue("platform"),
		APIKey:   r.FormValue("api_key"),
	}
	if pk := strings.TrimSpace(r.FormValue("profile_key")); pk != "" {
		req.ProfileKey = &pk
	}

	err := h.view.Create(r.Context(), req)
	if err != nil {
		if navigate(w, r, err) {
			return
		}
		h.show(w, r, userMessage(err, collection.MsgAccountAddFailed))
		return
	}

	h.hub.Broadcast(ws.Message{Type: ws.TypeAccountAdded})
	h.done(w, r)
}

func (h *AccountsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	err = h.view.Delete(r.Context(), id, r.FormValue("confirm") == "yes")
	switch {
	case errors.Is(err, collection.ErrNotConfirmed):
		h.render.confirm(w, r, "Delete Social Account", confirmation{
			Title:   "Delete social account?",
			Message: msgConfirmAccountDelete,
			Action:  r.URL.Path,
			Cancel:  route.SocialAccounts,
		})
		return
	case err != nil:
		if !navigate(w, r, err) {
			h.show(w, r, "")
		}
		return
	default:
		h.hub.Broadcast(ws.Message{Type: ws.TypeAccountDeleted, ID: id})
	}
	h.done(w, r)
}

func (h *AccountsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.view.ClearError()
	if isHTMX(r) {
		w.WriteHeader(http.StatusOK)
		return
	}
	middleware.Redirect(w, r, route.SocialAccounts)
}

// done re-renders the list for HTMX requests and redirects plain form
// posts back to the list.
func (h *AccountsHandler) done(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		h.show(w, r, "")
		return
	}
	middleware.Redirect(w, r, route.SocialAccounts)
}
