package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/model"
)

const (
	// PostsPath is where a successful submission navigates to.
	PostsPath = "/posts"
	// RedirectDelay is how long the success indicator shows before navigating.
	RedirectDelay = 2 * time.Second

	localLayout = "2006-01-02T15:04"
)

const (
	MsgContentRequired  = "Post content is required"
	MsgContentTooLong   = "Post content must be 280 characters or fewer"
	MsgPlatformRequired = "Select at least one social media platform"
	MsgScheduleInPast   = "Schedule date must be in the future"
	MsgSubmitFailed     = "Failed to create post. Please try again."
	MsgSubmitInFlight   = "Your post is already being submitted"
	MsgPlatformsFailed  = "Could not load supported platforms. Please refresh and try again."
)

// API is the subset of the posting service the composer needs.
type API interface {
	Platforms(ctx context.Context) ([]string, error)
	CreatePost(ctx context.Context, req model.CreatePostRequest) (*model.Post, int, error)
}

// Draft is the in-progress post. Platforms and Tags keep insertion order.
type Draft struct {
	Content      string
	Title        string
	Platforms    []string
	MediaURLs    []string
	MediaInput   string
	Tags         []string
	TagInput     string
	ScheduleDate *time.Time
}

func (d Draft) clone() Draft {
	d.Platforms = slices.Clone(d.Platforms)
	d.MediaURLs = slices.Clone(d.MediaURLs)
	d.Tags = slices.Clone(d.Tags)
	if d.ScheduleDate != nil {
		t := *d.ScheduleDate
		d.ScheduleDate = &t
	}
	return d
}

// HasPlatform reports whether p is selected.
func (d Draft) HasPlatform(p string) bool {
	return slices.Contains(d.Platforms, p)
}

// ValidationError is a client-side problem with the draft. No request is
// sent while one is present.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// SubmitError is a failed create request. Message is what the user sees.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return e.Message }
func (e *SubmitError) Unwrap() error { return e.Err }

// Outcome describes what follows a successful submission.
type Outcome struct {
	Post     *model.Post
	Redirect string
	After    time.Duration
}

// Workflow owns the single draft of the console. It is safe for
// concurrent use.
type Workflow struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu         sync.Mutex
	draft      Draft
	submitting bool
}

type Option func(*Workflow)

// WithClock overrides the time source used for schedule validation.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

func New(a API, logger *slog.Logger, opts ...Option) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Workflow{
		api:    a,
		logger: logger.With("component", "compose"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (d Draft) equal(o Draft) bool {
	if d.Content != o.Content || d.Title != o.Title || d.MediaInput != o.MediaInput || d.TagInput != o.TagInput {
		return false
	}
	if !slices.Equal(d.Platforms, o.Platforms) || !slices.Equal(d.MediaURLs, o.MediaURLs) || !slices.Equal(d.Tags, o.Tags) {
		return false
	}
	if d.ScheduleDate == nil || o.ScheduleDate == nil {
		return d.ScheduleDate == nil && o.ScheduleDate == nil
	}
	return d.ScheduleDate.Equal(*o.ScheduleDate)
}

// Draft returns a copy of the current draft.
func (w *Workflow) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.clone()
}

// Submitting reports whether a submission is waiting on the posting
// service.
func (w *Workflow) Submitting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting
}

// Reset discards the draft.
func (w *Workflow) Reset() {
	w.mu.Lock()
	w.draft = Draft{}
	w.mu.Unlock()
}

// UpdateField merges a single form value into the draft without validating
// it. "platforms" toggles the named platform.
func (w *Workflow) UpdateField(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch name {
	case "content":
		w.draft.Content = value
	case "title":
		w.draft.Title = value
	case "media_input":
		w.draft.MediaInput = value
	case "tag_input":
		w.draft.TagInput = value
	case "platforms":
		w.togglePlatform(value, !w.draft.HasPlatform(value))
	case "schedule_date":
		if strings.TrimSpace(value) == "" {
			w.draft.ScheduleDate = nil
			return nil
		}
		t, err := parseSchedule(value)
		if err != nil {
			return &ValidationError{Field: "schedule_date", Message: "Invalid date"}
		}
		w.draft.ScheduleDate = &t
	default:
		return fmt.Errorf("unknown draft field %q", name)
	}
	return nil
}

func parseSchedule(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(localLayout, value, time.Local)
}

// TogglePlatform selects or deselects p.
func (w *Workflow) TogglePlatform(p string, on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.togglePlatform(p, on)
}

func (w *Workflow) togglePlatform(p string, on bool) {
	if p == "" {
		return
	}
	has := w.draft.HasPlatform(p)
	switch {
	case on && !has:
		w.draft.Platforms = append(w.draft.Platforms, p)
	case !on && has:
		w.draft.Platforms = slices.DeleteFunc(w.draft.Platforms, func(s string) bool { return s == p })
	}
}

// SetPlatforms replaces the selection, keeping the order given and
// dropping blanks and repeats.
func (w *Workflow) SetPlatforms(platforms []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Platforms = nil
	for _, p := range platforms {
		w.togglePlatform(p, true)
	}
}

// SetSchedule sets or clears the schedule date.
func (w *Workflow) SetSchedule(t *time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t == nil {
		w.draft.ScheduleDate = nil
		return
	}
	v := *t
	w.draft.ScheduleDate = &v
}

// ValidURL reports whether raw parses as an absolute URL.
func ValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}

// AddMediaURL appends raw when it is a valid URL and clears the media
// input. On rejection the draft, input included, is left untouched.
func (w *Workflow) AddMediaURL(raw string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.draft.MediaInput = raw
	if !ValidURL(raw) {
		return false
	}
	w.draft.MediaURLs = append(w.draft.MediaURLs, raw)
	w.draft.MediaInput = ""
	return true
}

// RemoveMediaURL removes the media URL at index i.
func (w *Workflow) RemoveMediaURL(i int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.draft.MediaURLs) {
		return
	}
	w.draft.MediaURLs = slices.Delete(w.draft.MediaURLs, i, i+1)
}

// AddTag adds tag once. Duplicates and blanks are ignored.
func (w *Workflow) AddTag(tag string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(w.draft.Tags, tag) {
		return false
	}
	w.draft.Tags = append(w.draft.Tags, tag)
	w.draft.TagInput = ""
	return true
}

func (w *Workflow) RemoveTag(tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Tags = slices.DeleteFunc(w.draft.Tags, func(s string) bool { return s == tag })
}

// Validate returns the first problem with the draft as a *ValidationError.
func (w *Workflow) Validate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.validate()
}

func (w *Workflow) validate() error {
	if w.draft.Content == "" {
		return &ValidationError{Field: "content", Message: MsgContentRequired}
	}
	if utf8.RuneCountInString(w.draft.Content) > model.MaxContentLength {
		return &ValidationError{Field: "content", Message: MsgContentTooLong}
	}
	if len(w.draft.Platforms) == 0 {
		return &ValidationError{Field: "platforms", Message: MsgPlatformRequired}
	}
	if w.draft.ScheduleDate != nil && w.draft.ScheduleDate.Before(w.now()) {
		return &ValidationError{Field: "schedule_date", Message: MsgScheduleInPast}
	}
	return nil
}

// Request builds the create payload. Empty optional fields stay nil so
// they are left out of the encoded body.
func (w *Workflow) Request() model.CreatePostRequest {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.request()
}

func (w *Workflow) request() model.CreatePostRequest {
	d := w.draft
	req := model.CreatePostRequest{
		Content:   d.Content,
		Platforms: slices.Clone(d.Platforms),
	}
	if len(d.MediaURLs) > 0 {
		req.MediaURLs = slices.Clone(d.MediaURLs)
	}
	if d.Title != "" {
		title := d.Title
		req.Title = &title
	}
	if len(d.Tags) > 0 {
		req.Tags = slices.Clone(d.Tags)
	}
	if d.ScheduleDate != nil {
		ts := model.NewTimestamp(*d.ScheduleDate)
		req.ScheduleDate = &ts
	}
	return req
}

// Submit validates the draft and sends it. Only one submission runs at a
// time; a second one gets a *ValidationError. On success the draft is reset
// unless it was edited while the request was in flight, and the returned
// Outcome says where to navigate. Errors are a *ValidationError, an
// unauthorized error carrying a redirect, or a *SubmitError; in each case
// the draft is kept.
func (w *Workflow) Submit(ctx context.Context) (*Outcome, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, &ValidationError{Message: MsgSubmitInFlight}
	}
	if err := w.validate(); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	req := w.request()
	sent := w.draft.clone()
	w.submitting = true
	w.mu.Unlock()

	post, status, err := w.api.CreatePost(ctx, req)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, err
		}
		w.logger.Error("create post failed", "status", status, "error", err)
		return nil, &SubmitError{Message: api.Detail(err, MsgSubmitFailed), Err: err}
	}

	if w.draft.equal(sent) {
		w.draft = Draft{}
	} else {
		w.logger.Info("draft edited during submission, keeping it")
	}
	w.logger.Info("post created", "status", status, "platforms", req.Platforms, "scheduled", req.ScheduleDate != nil)
	return &Outcome{Post: post, Redirect: PostsPath, After: RedirectDelay}, nil
}

// Platforms lists the platform identifiers supported by the posting
// service. The returned error carries the message to show the user.
func (w *Workflow) Platforms(ctx context.Context) ([]string, error) {
	platforms, err := w.api.Platforms(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return nil, err
		}
		w.logger.Error("fetch platforms failed", "error", err)
		return nil, &SubmitError{Message: MsgPlatformsFailed, Err: err}
	}
	return platforms, nil
}
