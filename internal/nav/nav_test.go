package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"microsight/dashboard-service/internal/role"
)

func TestDashboardFor(t *testing.T) {
	assert.Equal(t, "/dashboard/admin", DashboardFor(role.Admin))
	assert.Equal(t, "/dashboard/researcher", DashboardFor(role.Researcher))
	assert.Equal(t, "/dashboard/researcher", DashboardFor("analyst"))
	assert.Equal(t, "/dashboard/user", DashboardFor(role.User))
	assert.Equal(t, "/dashboard/user", DashboardFor("student"))
	assert.Equal(t, "/dashboard/user", DashboardFor(""))
}

func TestReplace(t *testing.T) {
	n := Replace(LoginPath)
	assert.Equal(t, Navigation{To: "/login", Replace: true}, n)
	assert.False(t, n.IsZero())
	assert.True(t, Navigation{}.IsZero())
}
