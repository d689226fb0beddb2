package nav

import "microsight/dashboard-service/internal/role"

const (
	HomePath          = "/"
	LoginPath         = "/login"
	SignupPath        = "/signup"
	RoleSelectionPath = "/role-selection"
	UnauthorizedPath  = "/unauthorized"
	DashboardPath     = "/dashboard"
	UserDashboard     = "/dashboard/user"
	ResearchDashboard = "/dashboard/researcher"
	AdminDashboard    = "/dashboard/admin"
)

// Navigation is an instruction for the caller to move to another view.
// Operations return it instead of navigating themselves.
type Navigation struct {
	To      string `json:"to"`
	Replace bool   `json:"replace"`
	From    string `json:"from,omitempty"`
}

func (n Navigation) IsZero() bool {
	return n.To == ""
}

func Replace(to string) Navigation {
	return Navigation{To: to, Replace: true}
}

// DashboardFor returns the home dashboard of a role.
func DashboardFor(r role.Role) string {
	switch role.Normalize(string(r)) {
	case role.Admin:
		return AdminDashboard
	case role.Researcher:
		return ResearchDashboard
	default:
		return UserDashboard
	}
}
