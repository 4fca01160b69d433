package handler

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/postdeck/internal/api"
	"github.com/dukerupert/postdeck/internal/auth"
	"github.com/dukerupert/postdeck/internal/collection"
	"github.com/dukerupert/postdeck/internal/compose"
	"github.com/dukerupert/postdeck/internal/middleware"
	"github.com/dukerupert/postdeck/internal/model"
)

const (
	displayLayout = "Jan 2, 2006 3:04 PM"
	inputLayout   = "2006-01-02T15:04"
)

var pages = []string{"login", "register", "dashboard", "create_post", "posts", "social_accounts", "confirm", "error"}

// Renderer executes page templates. Each page is parsed into its own copy
// of the layout so pages can define the same block names.
type Renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func NewRenderer(files fs.FS, logger *slog.Logger) (*Renderer, error) {
	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(files, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	rr := &Renderer{pages: make(map[string]*template.Template), logger: logger}
	for _, name := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		// post-item lives in posts.html and is shared with the dashboard.
		patterns := []string{"templates/posts.html"}
		if name != "posts" {
			patterns = append(patterns, "templates/"+name+".html")
		}
		for _, p := range patterns {
			if _, err := t.ParseFS(files, p); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
		}
		rr.pages[name] = t
	}
	return rr, nil
}

var funcs = template.FuncMap{
	"formatTime": func(v any) string {
		t, ok := asTime(v)
		if !ok {
			return ""
		}
		return t.Local().Format(displayLayout)
	},
	"localTime": func(v any) string {
		t, ok := asTime(v)
		if !ok {
			return ""
		}
		return t.Local().Format(inputLayout)
	},
	"seconds": func(d time.Duration) int {
		return int(d / time.Second)
	},
	"runeCount": utf8.RuneCountInString,
}

func asTime(v any) (time.Time, bool) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case *time.Time:
		if x == nil {
			return t, false
		}
		t = *x
	case model.Timestamp:
		t = x.Time
	case *model.Timestamp:
		if x == nil {
			return t, false
		}
		t = x.Time
	default:
		return t, false
	}
	return t, !t.IsZero()
}

// Page renders a full page, or only its content block for HTMX requests
// that are not boosted navigations.
func (rr *Renderer) Page(w http.ResponseWriter, r *http.Request, name string, status int, data map[string]any) {
	t, ok := rr.pages[name]
	if !ok {
		rr.logger.Error("unknown page", "page", name)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	entry := "layout"
	if r.Header.Get("HX-Request") == "true" && r.Header.Get("HX-Boosted") != "true" {
		entry = "content"
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, entry, data); err != nil {
		rr.logger.Error("template error", "page", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// confirmation describes the step shown before a destructive action.
// Fields are carried through as hidden inputs next to confirm=yes.
type confirmation struct {
	Title   string
	Message string
	Action  string
	Cancel  string
	Fields  map[string]string
}

// confirm renders the confirmation step. Its form is the only markup that
// carries confirm=yes. HTMX requests are retargeted so the step replaces
// the page content rather than the list being swapped.
func (rr *Renderer) confirm(w http.ResponseWriter, r *http.Request, title string, c confirmation) {
	if isHTMX(r) {
		w.Header().Set("HX-Retarget", "#main")
		w.Header().Set("HX-Reswap", "innerHTML")
		w.Header().Set("HX-Reselect", "#confirm")
	}
	data := pageData(r, title)
	data["Confirm"] = c
	rr.Page(w, r, "confirm", http.StatusOK, data)
}

// pageData is the data every page receives.
func pageData(r *http.Request, title string) map[string]any {
	data := map[string]any{
		"Title":   title,
		"User":    nil,
		"Error":   "",
		"Success": "",
		"Field":   "",
		"Dismiss": "",
		"HTMX":    isHTMX(r),
	}
	if ac, ok := auth.FromContext(r.Context()); ok {
		data["User"] = &ac
	}
	return data
}

// navigate consumes the navigation intent of an unauthorized posting
// service response. It is the only place a 401 turns into a redirect, and
// reports whether the response has been written.
func navigate(w http.ResponseWriter, r *http.Request, err error) bool {
	target, ok := api.RedirectFor(err)
	if !ok {
		return false
	}
	middleware.Redirect(w, r, target)
	return true
}

// userMessage returns the message an error carries for display, or
// fallback.
func userMessage(err error, fallback string) string {
	var cerr *collection.Error
	if errors.As(err, &cerr) {
		return cerr.Message
	}
	var serr *compose.SubmitError
	if errors.As(err, &serr) {
		return serr.Message
	}
	var verr *compose.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	return api.Detail(err, fallback)
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
