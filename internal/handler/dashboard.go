package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/postdeck/internal/collection"
)

type DashboardHandler struct {
	api    collection.DashboardAPI
	render *Renderer
	logger *slog.Logger
}

func NewDashboardHandler(a collection.DashboardAPI, render *Renderer, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{api: a, render: render, logger: logger}
}

func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Dashboard")

	stats, err := collection.LoadDashboard(r.Context(), h.api)
	if err != nil {
		if navigate(w, r, err) {
			return
		}
		h.logger.Error("load dashboard", "error", err)
		data["Error"] = userMessage(err, collection.MsgDashboardFailed)
	}
	data["Stats"] = stats
	h.render.Page(w, r, "dashboard", http.StatusOK, data)
}
