package guard

import (
	"net/url"
	"path"
	"strings"
	"time"

	"microsight/dashboard-service/internal/nav"
	"microsight/dashboard-service/internal/role"
)

type Action string

const (
	ActionRender   Action = "render"
	ActionRedirect Action = "redirect"
	ActionLoading  Action = "loading"
	ActionDenied   Action = "access_denied"
)

type Route struct {
	Path    string
	Prefix  bool
	Public  bool
	Index   bool
	Allowed []role.Role
}

func (r Route) matches(p string) bool {
	if r.Prefix {
		return p == r.Path || strings.HasPrefix(p, r.Path+"/")
	}
	return p == r.Path
}

// DefaultRoutes is the route surface of the dashboard.
var DefaultRoutes = []Route{
	{Path: nav.HomePath, Public: true},
	{Path: "/about", Public: true},
	{Path: "/contact", Public: true},
	{Path: "/faq", Public: true},
	{Path: "/features", Public: true},
	{Path: nav.RoleSelectionPath, Public: true},
	{Path: nav.LoginPath, Prefix: true, Public: true},
	{Path: nav.SignupPath, Prefix: true, Public: true},
	{Path: nav.UnauthorizedPath, Public: true},
	{Path: nav.DashboardPath, Index: true},
	{Path: nav.UserDashboard, Allowed: []role.Role{role.User}},
	{Path: nav.ResearchDashboard, Allowed: []role.Role{role.Researcher, "analyst"}},
	{Path: nav.AdminDashboard, Allowed: []role.Role{role.Admin}},
}

var entryRedirects = map[string]string{
	nav.LoginPath:  nav.RoleSelectionPath + "?mode=login",
	nav.SignupPath: nav.RoleSelectionPath,
	"/select-role": nav.RoleSelectionPath,
}

type Resolution struct {
	Action    Action   `json:"action"`
	Location  string   `json:"location,omitempty"`
	Permanent bool     `json:"permanent,omitempty"`
	Route     string   `json:"route,omitempty"`
	Decision  Decision `json:"decision"`
	// GraceMillis is set for access-denied resolutions.
	GraceMillis int64 `json:"grace_ms,omitempty"`
}

type Router struct {
	routes []Route
	grace  time.Duration
}

func NewRouter(grace time.Duration) *Router {
	return &Router{routes: DefaultRoutes, grace: grace}
}

func (r *Router) Grace() time.Duration {
	return r.grace
}

// Match returns the route serving p after legacy rewriting, if any.
func (r *Router) Match(p string) (Route, bool) {
	p = cleanPath(p)
	var best Route
	found := false
	for _, route := range r.routes {
		if route.matches(p) && (!found || len(route.Path) > len(best.Path)) {
			best = route
			found = true
		}
	}
	return best, found
}

// Resolve runs the whole routing pipeline for a requested location: legacy
// rewrites, entry redirects, the catch-all and finally the guard.
func (r *Router) Resolve(requested string, state State) Resolution {
	p, query := splitLocation(requested)

	if target, ok := LegacyRedirect(p); ok {
		return Resolution{Action: ActionRedirect, Location: withQuery(target, query), Permanent: true}
	}
	if target, ok := entryRedirects[p]; ok {
		return Resolution{Action: ActionRedirect, Location: target, Route: p}
	}

	route, ok := r.Match(p)
	if !ok {
		return Resolution{Action: ActionRedirect, Location: nav.HomePath}
	}
	if route.Public {
		return Resolution{Action: ActionRender, Route: route.Path, Decision: Decision{Outcome: Render}}
	}

	decision := Decide(state, withQuery(p, query), route.Allowed, r.grace)
	res := Resolution{Route: route.Path, Decision: decision}
	switch decision.Outcome {
	case Loading:
		res.Action = ActionLoading
	case RedirectLogin:
		res.Action = ActionRedirect
		res.Location = decision.Redirect
	case Denied:
		res.Action = ActionDenied
		res.Location = decision.Redirect
		res.GraceMillis = decision.GracePeriod.Milliseconds()
	default:
		if route.Index {
			res.Action = ActionRedirect
			res.Location = nav.DashboardFor(state.Session.Role)
		} else {
			res.Action = ActionRender
		}
	}
	return res
}

// SafeReturn reports whether a remembered location can be used as the
// post-login destination: it must be a local path the guard would render.
func (r *Router) SafeReturn(returnTo string, state State) (string, bool) {
	returnTo = strings.TrimSpace(returnTo)
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return "", false
	}
	res := r.Resolve(returnTo, state)
	if res.Action != ActionRender {
		return "", false
	}
	if route, ok := r.Match(returnTo); ok && route.Public {
		return "", false
	}
	return returnTo, true
}

// LegacyRedirect rewrites paths that still use the analyst alias. It works
// on path segments only and does not consult role normalization.
func LegacyRedirect(p string) (string, bool) {
	p = cleanPath(p)
	segments := strings.Split(strings.Trim(p, "/"), "/")
	if segments[0] == "analyst" {
		return nav.ResearchDashboard, true
	}
	changed := false
	for i, segment := range segments {
		if segment == "analyst" {
			segments[i] = "researcher"
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	return "/" + strings.Join(segments, "/"), true
}

func splitLocation(requested string) (string, string) {
	u, err := url.Parse(requested)
	if err != nil {
		return cleanPath(requested), ""
	}
	return cleanPath(u.Path), u.RawQuery
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func withQuery(p, query string) string {
	if query == "" {
		return p
	}
	return p + "?" + query
}
