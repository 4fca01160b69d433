package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/postdeck/internal/auth"
	"github.com/dukerupert/postdeck/internal/model"
)

type stubSession struct {
	user  *model.User
	token bool
}

func (s stubSession) Authenticated() bool { return s.token }
func (s stubSession) User() *model.User   { return s.user }

func serveGuard(t *testing.T, sess SessionState, path string, hx bool) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	handler := Guard(sess)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", path, nil)
	if hx {
		req.Header.Set("HX-Request", "true")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, reached
}

func TestGuardProtectedWithoutToken(t *testing.T) {
	for _, path := range []string{"/dashboard", "/create-post", "/posts", "/social-accounts", "/posts/3/delete"} {
		rec, reached := serveGuard(t, stubSession{}, path, false)
		if reached {
			t.Errorf("%s: should not reach handler", path)
		}
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusSeeOther)
		}
		if loc := rec.Header().Get("Location"); loc != "/login" {
			t.Errorf("%s: Location = %q, want %q", path, loc, "/login")
		}
	}
}

func TestGuardPublicWithToken(t *testing.T) {
	for _, path := range []string{"/login", "/register"} {
		rec, reached := serveGuard(t, stubSession{token: true}, path, false)
		if reached {
			t.Errorf("%s: should not reach handler", path)
		}
		if loc := rec.Header().Get("Location"); loc != "/dashboard" {
			t.Errorf("%s: Location = %q, want %q", path, loc, "/dashboard")
		}
	}
}

func TestGuardHTMXRedirect(t *testing.T) {
	rec, reached := serveGuard(t, stubSession{}, "/posts", true)
	if reached {
		t.Fatal("should not reach handler")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("HX-Redirect"); got != "/login" {
		t.Errorf("HX-Redirect = %q, want %q", got, "/login")
	}
}

func TestGuardUnguardedPaths(t *testing.T) {
	for _, path := range []string{"/health", "/metrics", "/static/app.css", "/ws"} {
		_, reached := serveGuard(t, stubSession{}, path, false)
		if !reached {
			t.Errorf("%s: should reach handler without a session", path)
		}
	}
}

func TestGuardCarriesUser(t *testing.T) {
	sess := stubSession{token: true, user: &model.User{ID: 4, Username: "alice"}}

	var got auth.AuthContext
	handler := Guard(sess)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			t.Fatal("expected AuthContext in request context")
		}
		got = ac
	}))

	req := httptest.NewRequest("GET", "/dashboard", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.UserID != 4 || got.Username != "alice" {
		t.Errorf("AuthContext = %+v, want user 4 alice", got)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}
}

func TestGuardRootAndUnknown(t *testing.T) {
	tests := []struct {
		token bool
		path  string
		want  string
	}{
		{false, "/", "/login"},
		{true, "/", "/dashboard"},
		{false, "/nope", "/login"},
		{true, "/nope", "/dashboard"},
	}
	for _, tt := range tests {
		rec, _ := serveGuard(t, stubSession{token: tt.token}, tt.path, false)
		if loc := rec.Header().Get("Location"); loc != tt.want {
			t.Errorf("token=%v %s: Location = %q, want %q", tt.token, tt.path, loc, tt.want)
		}
	}
}
