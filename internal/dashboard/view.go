package dashboard

import "github.com/atlas-capital/atlas-portal/internal/identity"

// View is the top-level dashboard variant rendered at the dashboard index.
type View uint8

const (
	ClientView View = iota
	AdminView
)

// SelectView maps a role to its dashboard. Only an explicit admin role gets
// the admin view; everything else, including no role, gets the client view.
func SelectView(role identity.Role) View {
	switch role {
	case identity.RoleAdmin:
		return AdminView
	default:
		return ClientView
	}
}

// Template is the page template rendering v.
func (v View) Template() string {
	if v == AdminView {
		return "pages/dashboard_admin.html"
	}
	return "pages/dashboard_client.html"
}

func (v View) String() string {
	if v == AdminView {
		return "admin"
	}
	return "client"
}
