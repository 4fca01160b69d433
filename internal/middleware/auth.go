package middleware

import (
	"net/http"

	"github.com/dukerupert/postdeck/internal/auth"
	"github.com/dukerupert/postdeck/internal/model"
	"github.com/dukerupert/postdeck/internal/route"
)

// SessionState is the read side of the session the guard consults.
type SessionState interface {
	Authenticated() bool
	User() *model.User
}

// Guard resolves every request against the route table using the current
// session. Rendered requests of an authenticated session carry the user in
// their context.
func Guard(sess SessionState) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authenticated := sess.Authenticated()
			d := route.Resolve(authenticated, r.URL.Path)
			if d.Action == route.Redirect {
				Redirect(w, r, d.Target)
				return
			}

			if authenticated {
				r = r.WithContext(auth.WithUser(r.Context(), sess.User()))
			}
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}

// Redirect navigates the browser to target.
// HTMX-aware: sets the HX-Redirect header instead of a 303 for HTMX requests.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
