package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dukerupert/postdeck/internal/collection"
	"github.com/dukerupert/postdeck/internal/middleware"
	"github.com/dukerupert/postdeck/internal/route"
	ws "github.com/dukerupert/postdeck/internal/websocket"
)

const msgConfirmPostDelete = "Are you sure you want to delete this post? This action cannot be undone."

type PostsHandler struct {
	view   *collection.PostsView
	hub    Broadcaster
	render *Renderer
	logger *slog.Logger
}

func NewPostsHandler(view *collection.PostsView, hub Broadcaster, render *Renderer, logger *slog.Logger) *PostsHandler {
	return &PostsHandler{view: view, hub: hub, render: render, logger: logger}
}

// List fetches the posts and renders the requested tab. refresh=1 uses
// the refreshing indicator instead of the loading one.
func (h *PostsHandler) List(w http.ResponseWriter, r *http.Request) {
	tab := collection.ParseTab(r.URL.Query().Get("status"))

	var err error
	if r.URL.Query().Get("refresh") == "1" {
		err = h.view.Refresh(r.Context())
	} else {
		err = h.view.Load(r.Context())
	}
	if err != nil && navigate(w, r, err) {
		return
	}
	h.show(w, r, tab, "")
}

func (h *PostsHandler) show(w http.ResponseWriter, r *http.Request, tab collection.Tab, errMsg string) {
	snap := h.view.Snapshot(tab)
	data := pageData(r, "Posts")
	data["Tab"] = snap.Tab
	data["Tabs"] = collection.Tabs
	data["Posts"] = snap.Posts
	data["Loading"] = snap.Loading
	data["Refreshing"] = snap.Refreshing
	data["Error"] = snap.Error
	data["Success"] = snap.Success
	data["Dismiss"] = route.Posts + "/dismiss"
	if errMsg != "" {
		data["Error"] = errMsg
	}
	h.render.Page(w, r, "posts", http.StatusOK, data)
}

func (h *PostsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	tab := collection.ParseTab(r.FormValue("status"))

	err = h.view.Delete(r.Context(), id, r.FormValue("confirm") == "yes")
	switch {
	case errors.Is(err, collection.ErrNotConfirmed):
		h.render.confirm(w, r, "Delete Post", confirmation{
			Title:   "Delete post?",
			Message: msgConfirmPostDelete,
			Action:  r.URL.Path,
			Cancel:  "/posts?status=" + url.QueryEscape(string(tab)),
			Fields:  map[string]string{"status": string(tab)},
		})
		return
	case err != nil:
		if !navigate(w, r, err) {
			h.show(w, r, tab, "")
		}
		return
	default:
		h.hub.Broadcast(ws.Message{Type: ws.TypePostDeleted, ID: id})
	}

	if isHTMX(r) {
		h.show(w, r, tab, "")
		return
	}
	middleware.Redirect(w, r, "/posts?status="+url.QueryEscape(string(tab)))
}

// Dismiss clears the error banner. HTMX swaps the banner for the empty
// response.
func (h *PostsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.view.ClearError()
	if isHTMX(r) {
		w.WriteHeader(http.StatusOK)
		return
	}
	middleware.Redirect(w, r, route.Posts)
}
