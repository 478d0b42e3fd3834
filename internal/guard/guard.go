// Package guard decides, for a requested location, whether to render the protected view
// or redirect. Guards are pure functions of the session snapshot; they hold no state and
// make no network calls.
package guard

import (
	domainauth "github.com/target/quiz-ui/internal/domain/auth"
)

// Default destinations.
const (
	DefaultLoginPath = "/login"
	DefaultHomePath  = "/home"
)

// Location is the navigation target being guarded.
type Location struct {
	Path     string
	RawQuery string
}

// String renders the location as a path with optional query.
func (l Location) String() string {
	if l.RawQuery == "" {
		return l.Path
	}
	return l.Path + "?" + l.RawQuery
}

// Decision is the outcome of a guard. Exactly one of Render or Redirect is meaningful.
type Decision struct {
	Render   bool
	Redirect string
	// From is the originally requested location, set when a sign-in redirect should
	// return the user there afterwards. It travels in navigation state, never in Redirect.
	From *Location
}

// Guard decides render vs redirect for a location.
type Guard interface {
	Decide(sess domainauth.Session, loc Location) Decision
}

// Func adapts a plain function to Guard.
type Func func(sess domainauth.Session, loc Location) Decision

// Decide calls f.
func (f Func) Decide(sess domainauth.Session, loc Location) Decision { return f(sess, loc) }

// Paths configures where guards redirect.
type Paths struct {
	Login string
	Home  string
}

func (p Paths) withDefaults() Paths {
	if p.Login == "" {
		p.Login = DefaultLoginPath
	}
	if p.Home == "" {
		p.Home = DefaultHomePath
	}
	return p
}

func render() Decision { return Decision{Render: true} }

func redirect(to string) Decision { return Decision{Redirect: to} }

// Landing always redirects: home when signed in, login otherwise.
func Landing(p Paths) Guard {
	p = p.withDefaults()
	return Func(func(sess domainauth.Session, _ Location) Decision {
		if sess.Authenticated() {
			return redirect(p.Home)
		}
		return redirect(p.Login)
	})
}

// RequireAuthenticated renders for any signed-in identity. Anonymous visitors go to login
// with the requested location preserved in From.
func RequireAuthenticated(p Paths) Guard {
	p = p.withDefaults()
	return Func(func(sess domainauth.Session, loc Location) Decision {
		if !sess.Authenticated() {
			from := loc
			return Decision{Redirect: p.Login, From: &from}
		}
		return render()
	})
}

// RequireAdmin renders only for admins. Anonymous visitors go to login; signed-in
// non-admins are sent home without an error.
func RequireAdmin(p Paths) Guard {
	p = p.withDefaults()
	return Func(func(sess domainauth.Session, loc Location) Decision {
		switch sess.State() {
		case domainauth.StateAnonymous:
			from := loc
			return Decision{Redirect: p.Login, From: &from}
		case domainauth.StateAuthenticatedAdmin:
			return render()
		default:
			return redirect(p.Home)
		}
	})
}
