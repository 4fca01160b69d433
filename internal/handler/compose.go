package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/postdeck/internal/compose"
	"github.com/dukerupert/postdeck/internal/media"
	"github.com/dukerupert/postdeck/internal/model"
	ws "github.com/dukerupert/postdeck/internal/websocket"
)

const (
	msgInvalidMediaURL = "Please enter a valid URL"
	msgUploadFailed    = "Failed to upload media. Please try again."
	msgUploadTooLarge  = "File is too large"
	msgUploadType      = "Only JPEG, PNG, GIF, WebP and MP4 files can be uploaded"
	msgUploadMissing   = "Choose a file to upload"
)

// MediaUploader stores an uploaded file and returns its public URL.
type MediaUploader interface {
	Enabled() bool
	MaxBytes() int64
	Upload(ctx context.Context, body io.Reader, size int64) (string, error)
}

// Broadcaster pushes a console event to every open tab.
type Broadcaster interface {
	Broadcast(msg ws.Message)
}

type ComposeHandler struct {
	flow     *compose.Workflow
	hub      Broadcaster
	uploader MediaUploader
	render   *Renderer
	logger   *slog.Logger
	now      func() time.Time
}

// NewComposeHandler builds the composer handlers. uploader may be nil, in
// which case file uploads are not offered.
func NewComposeHandler(flow *compose.Workflow, hub Broadcaster, uploader MediaUploader, render *Renderer, logger *slog.Logger) *ComposeHandler {
	return &ComposeHandler{flow: flow, hub: hub, uploader: uploader, render: render, logger: logger, now: time.Now}
}

func (h *ComposeHandler) uploadsEnabled() bool {
	return h.uploader != nil && h.uploader.Enabled()
}

func (h *ComposeHandler) Page(w http.ResponseWriter, r *http.Request) {
	h.page(w, r, pageData(r, "Create Post"))
}

// page renders the composer with the current draft. data may already carry
// an error or an outcome.
func (h *ComposeHandler) page(w http.ResponseWriter, r *http.Request, data map[string]any) {
	platforms, err := h.flow.Platforms(r.Context())
	if err != nil {
		if navigate(w, r, err) {
			return
		}
		if data["Error"] == "" {
			data["Error"] = userMessage(err, compose.MsgPlatformsFailed)
		}
	}
	data["Platforms"] = platforms
	data["Draft"] = h.flow.Draft()
	data["MaxLength"] = model.MaxContentLength
	data["Now"] = h.now()
	data["Uploads"] = h.uploadsEnabled()
	data["Submitting"] = h.flow.Submitting()
	if _, ok := data["Outcome"]; !ok {
		data["Outcome"] = (*compose.Outcome)(nil)
	}
	h.render.Page(w, r, "create_post", http.StatusOK, data)
}

// applyForm merges the main form into the draft when the request carries
// it. Media and tag forms include it under HTMX so typed text survives.
func (h *ComposeHandler) applyForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	if _, ok := r.PostForm["content"]; !ok {
		return nil
	}
	if err := h.flow.UpdateField("content", r.PostFormValue("content")); err != nil {
		return err
	}
	if err := h.flow.UpdateField("title", r.PostFormValue("title")); err != nil {
		return err
	}
	h.flow.SetPlatforms(r.PostForm["platforms"])
	return h.flow.UpdateField("schedule_date", r.PostFormValue("schedule_date"))
}

func (h *ComposeHandler) formError(w http.ResponseWriter, r *http.Request, err error) {
	data := pageData(r, "Create Post")
	data["Error"] = userMessage(err, "Invalid form data")
	var verr *compose.ValidationError
	if errors.As(err, &verr) {
		data["Field"] = verr.Field
	}
	h.page(w, r, data)
}

func (h *ComposeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}

	out, err := h.flow.Submit(r.Context())
	if err != nil {
		if navigate(w, r, err) {
			return
		}
		h.formError(w, r, err)
		return
	}

	if out.Post != nil {
		h.hub.Broadcast(ws.Message{Type: ws.TypePostCreated, ID: out.Post.ID})
	}
	data := pageData(r, "Create Post")
	data["Outcome"] = out
	h.page(w, r, data)
}

func (h *ComposeHandler) AddMedia(w http.ResponseWriter, r *http.Request) {
	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}
	data := pageData(r, "Create Post")
	if !h.flow.AddMediaURL(r.PostFormValue("media_url")) {
		data["Error"] = msgInvalidMediaURL
		data["Field"] = "media_url"
	}
	h.page(w, r, data)
}

// UploadMedia stores a file in the media bucket and appends its URL to the
// draft.
func (h *ComposeHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if !h.uploadsEnabled() {
		http.NotFound(w, r)
		return
	}
	// Multipart overhead on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.uploader.MaxBytes()+1<<20)
	if err := r.ParseMultipartForm(h.uploader.MaxBytes()); err != nil {
		var tooLarge *http.MaxBytesError
		data := pageData(r, "Create Post")
		data["Field"] = "media_file"
		if errors.As(err, &tooLarge) {
			data["Error"] = msgUploadTooLarge
		} else {
			data["Error"] = msgUploadMissing
		}
		h.page(w, r, data)
		return
	}
	defer r.MultipartForm.RemoveAll()

	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}

	data := pageData(r, "Create Post")
	file, header, err := r.FormFile("media_file")
	if err != nil {
		data["Error"] = msgUploadMissing
		data["Field"] = "media_file"
		h.page(w, r, data)
		return
	}
	defer file.Close()

	url, err := h.uploader.Upload(r.Context(), file, header.Size)
	switch {
	case errors.Is(err, media.ErrTooLarge):
		data["Error"] = msgUploadTooLarge
		data["Field"] = "media_file"
	case errors.Is(err, media.ErrUnsupportedType):
		data["Error"] = msgUploadType
		data["Field"] = "media_file"
	case err != nil:
		h.logger.Error("media upload failed", "filename", header.Filename, "error", err)
		data["Error"] = msgUploadFailed
		data["Field"] = "media_file"
	case !h.flow.AddMediaURL(url):
		data["Error"] = msgInvalidMediaURL
		data["Field"] = "media_url"
	}
	h.page(w, r, data)
}

func (h *ComposeHandler) RemoveMedia(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}
	h.flow.RemoveMediaURL(i)
	h.page(w, r, pageData(r, "Create Post"))
}

func (h *ComposeHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}
	h.flow.AddTag(r.PostFormValue("tag"))
	h.page(w, r, pageData(r, "Create Post"))
}

func (h *ComposeHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	if err := h.applyForm(r); err != nil {
		h.formError(w, r, err)
		return
	}
	h.flow.RemoveTag(r.PostFormValue("tag"))
	h.page(w, r, pageData(r, "Create Post"))
}
