// Package route decides whether a navigation target can be served given the
// current session.
package route

import "strings"

const (
	Login          = "/login"
	Register       = "/register"
	Dashboard      = "/dashboard"
	CreatePost     = "/create-post"
	Posts          = "/posts"
	SocialAccounts = "/social-accounts"

	// Landing is where authenticated users are sent from public pages.
	Landing = Dashboard
)

var public = map[string]bool{
	Login:    true,
	Register: true,
}

var protected = []string{Dashboard, CreatePost, Posts, SocialAccounts}

// Paths served regardless of session state.
var unguarded = []string{"/static/", "/health", "/metrics", "/ws", "/logout"}

type Action int

const (
	Render Action = iota
	Redirect
)

// Decision is the outcome of Resolve. Target is set for redirects.
type Decision struct {
	Action Action
	Target string
}

// Resolve is a pure function of session presence and the requested path.
func Resolve(authenticated bool, path string) Decision {
	path = normalize(path)

	for _, p := range unguarded {
		if path == strings.TrimSuffix(p, "/") || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return Decision{Action: Render}
		}
	}

	if public[path] {
		if authenticated {
			return Decision{Action: Redirect, Target: Landing}
		}
		return Decision{Action: Render}
	}

	if IsProtected(path) {
		if !authenticated {
			return Decision{Action: Redirect, Target: Login}
		}
		return Decision{Action: Render}
	}

	// Root and unknown paths.
	if authenticated {
		return Decision{Action: Redirect, Target: Landing}
	}
	return Decision{Action: Redirect, Target: Login}
}

// IsProtected reports whether path is, or lives under, a protected page.
func IsProtected(path string) bool {
	path = normalize(path)
	for _, p := range protected {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
