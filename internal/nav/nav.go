// Package nav builds the role-specific sidebar navigation.
package nav

import (
	"strings"

	"github.com/atlas-capital/atlas-portal/internal/identity"
)

// Item is one navigation entry.
type Item struct {
	Path  string
	Label string
	Icon  string
}

// Link is an Item annotated with whether it matches the current path.
type Link struct {
	Item
	Active bool
}

var (
	clientItems = []Item{
		{Path: "/dashboard", Label: "Dashboard", Icon: "layout-dashboard"},
		{Path: "/dashboard/invest", Label: "Investir", Icon: "trending-up"},
		{Path: "/dashboard/reports", Label: "Relatórios", Icon: "file-text"},
		{Path: "/dashboard/settings", Label: "Configurações", Icon: "settings"},
	}
	adminItems = []Item{
		{Path: "/admin", Label: "Dashboard", Icon: "layout-dashboard"},
		{Path: "/admin/users", Label: "Usuários", Icon: "users"},
		{Path: "/admin/plans", Label: "Planos", Icon: "credit-card"},
	}
)

// ForRole returns the ordered items for role. Anything but admin gets the
// client set.
func ForRole(role identity.Role) []Item {
	src := clientItems
	if role == identity.RoleAdmin {
		src = adminItems
	}
	out := make([]Item, len(src))
	copy(out, src)
	return out
}

// Build returns the items for role with the active one marked.
func Build(role identity.Role, currentPath string) []Link {
	items := ForRole(role)
	index := role.Home()
	current := clean(currentPath)
	links := make([]Link, len(items))
	for i, item := range items {
		links[i] = Link{Item: item, Active: matches(item.Path, current, item.Path == index)}
	}
	return links
}

// matches compares by exact path, or by path-segment prefix unless exact is
// required. The index item only matches exactly so it stays inactive on
// nested pages.
func matches(itemPath, current string, exact bool) bool {
	if current == itemPath {
		return true
	}
	if exact {
		return false
	}
	return strings.HasPrefix(current, itemPath+"/")
}

func clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}
