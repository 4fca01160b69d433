package collection

import (
	"errors"
	"sync"
	"time"

	"github.com/dukerupert/postdeck/internal/api"
)

// ErrNotConfirmed is returned by Delete when the user has not confirmed
// the destructive action. No request is sent.
var ErrNotConfirmed = errors.New("delete not confirmed")

// Error is a failed request surfaced to the user as a banner.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

type Option func(*banner)

// WithClock overrides the time source used to expire flash messages.
func WithClock(now func() time.Time) Option {
	return func(b *banner) { b.now = now }
}

// banner holds the transient status shown above a view: load flags, the
// last error and a success message that expires.
type banner struct {
	mu         sync.Mutex
	now        func() time.Time
	loading    bool
	refreshing bool
	errMsg     string
	success    string
	until      time.Time
}

func (b *banner) init(opts []Option) {
	b.now = time.Now
	for _, opt := range opts {
		opt(b)
	}
}

// flash must be called with mu held.
func (b *banner) flash(msg string, d time.Duration) {
	b.success = msg
	b.until = b.now().Add(d)
}

// successMessage must be called with mu held.
func (b *banner) successMessage() string {
	if b.success == "" || !b.now().Before(b.until) {
		b.success = ""
		return ""
	}
	return b.success
}

// fail records err as the banner message unless it is an unauthorized
// error, which navigates away instead. It returns the error to hand back
// to the caller. mu must be held.
func (b *banner) fail(err error, fallback string) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return err
	}
	b.errMsg = fallback
	return &Error{Message: fallback, Err: err}
}

// Status is the banner state of a view at one instant.
type Status struct {
	Loading    bool
	Refreshing bool
	Error      string
	Success    string
}

func (b *banner) status() Status {
	return Status{
		Loading:    b.loading,
		Refreshing: b.refreshing,
		Error:      b.errMsg,
		Success:    b.successMessage(),
	}
}

// ClearError dismisses the error banner.
func (b *banner) ClearError() {
	b.mu.Lock()
	b.errMsg = ""
	b.mu.Unlock()
}
