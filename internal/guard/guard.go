// Package guard decides what a client sees when it asks for a view: the
// view itself, a loading placeholder, the login entry point or an
// access-denied notice followed by a redirect to the client's own dashboard.
package guard

import (
	"sync"
	"time"

	"microsight/dashboard-service/internal/models"
	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/role"
	"microsight/dashboard-service/internal/schedule"
	"microsight/dashboard-service/internal/session"
)

// DefaultGracePeriod is how long the access-denied state stays visible.
const DefaultGracePeriod = 1500 * time.Millisecond

const DeniedMessage = "You do not have permission to access this page"

type Outcome string

const (
	Loading       Outcome = "loading"
	Render        Outcome = "render"
	RedirectLogin Outcome = "redirect_login"
	Denied        Outcome = "access_denied"
)

// State is the session as the guard sees it.
type State struct {
	Ready         bool
	Session       models.Session
	Authenticated bool
}

func StateOf(sessions session.Store) State {
	if !sessions.Ready() {
		return State{}
	}
	s, ok := sessions.Get()
	return State{Ready: true, Session: s, Authenticated: ok}
}

type Decision struct {
	Outcome     Outcome       `json:"outcome"`
	Redirect    string        `json:"redirect,omitempty"`
	ReturnTo    string        `json:"return_to,omitempty"`
	GracePeriod time.Duration `json:"-"`
}

// Navigation is the redirect carried by the decision, if any.
func (d Decision) Navigation() nav.Navigation {
	switch d.Outcome {
	case RedirectLogin:
		return nav.Navigation{To: d.Redirect, Replace: true, From: d.ReturnTo}
	case Denied:
		return nav.Replace(d.Redirect)
	default:
		return nav.Navigation{}
	}
}

// Decide applies the guard rules. An empty allow-list admits any
// authenticated role. Nothing redirects while the session is still loading.
func Decide(state State, requested string, allowed []role.Role, grace time.Duration) Decision {
	if !state.Ready {
		return Decision{Outcome: Loading}
	}
	if !state.Authenticated {
		return Decision{Outcome: RedirectLogin, Redirect: nav.LoginPath, ReturnTo: requested}
	}
	current := role.Normalize(string(state.Session.Role))
	if len(allowed) > 0 && !role.Contains(allowed, current) {
		return Decision{Outcome: Denied, Redirect: nav.DashboardFor(current), GracePeriod: grace}
	}
	return Decision{Outcome: Render}
}

// Guard is one guarded view. The redirect that follows an access-denied
// decision is scheduled on the guard and dropped by Close if the view goes
// away first.
type Guard struct {
	sessions session.Store
	grace    time.Duration
	tasks    *schedule.Group

	mu      sync.Mutex
	pending *schedule.Task
	gen     uint64
}

func New(sessions session.Store, grace time.Duration) *Guard {
	if grace < 0 {
		grace = 0
	}
	return &Guard{sessions: sessions, grace: grace, tasks: schedule.NewGroup()}
}

// Evaluate decides for requested and, for a denied decision, calls navigate
// with the role dashboard once the grace period has passed. Login redirects
// are handed to navigate immediately.
func (g *Guard) Evaluate(requested string, allowed []role.Role, navigate func(nav.Navigation)) Decision {
	decision := Decide(StateOf(g.sessions), requested, allowed, g.grace)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropLocked()

	switch decision.Outcome {
	case RedirectLogin:
		if navigate != nil {
			navigate(decision.Navigation())
		}
	case Denied:
		if navigate != nil {
			target := decision.Navigation()
			gen := g.gen
			g.pending = g.tasks.After(decision.GracePeriod, func() {
				g.mu.Lock()
				defer g.mu.Unlock()
				if g.gen != gen {
					return
				}
				g.pending = nil
				navigate(target)
			})
		}
	}
	return decision
}

// Cancel drops the pending denied redirect. A redirect whose timer has
// already expired but which has not navigated yet is dropped as well.
// Call it whenever the session changes.
func (g *Guard) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dropLocked()
}

func (g *Guard) dropLocked() {
	g.gen++
	if g.pending != nil {
		g.pending.Cancel()
		g.pending = nil
	}
}

// Pending returns the scheduled denied redirect, or nil.
func (g *Guard) Pending() *schedule.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

func (g *Guard) Close() {
	g.tasks.Close()
}
