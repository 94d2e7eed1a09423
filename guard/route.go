package guard

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// ErrInvalidRoute is returned by [NewTable] for malformed route descriptors.
var ErrInvalidRoute = errors.New("invalid route")

// Route describes one navigable destination.
type Route struct {
	Name string
	// Path is a gorilla/mux path template. Ignored when CatchAll is set.
	Path string
	// CatchAll matches any path not matched by an earlier route.
	CatchAll      bool
	Title         string
	RequiresAuth  bool
	RequiresAdmin bool
	// Redirect, when set, sends every visit elsewhere. It receives whether
	// the session is authenticated and returns the target full path.
	Redirect func(authenticated bool) string
}

// Match is a resolved route plus its path parameters.
type Match struct {
	Route  Route
	Params map[string]string
}

// Table resolves paths to routes. Routes are tried in declaration order.
// A Table is immutable and safe for concurrent use.
type Table struct {
	router *mux.Router
	routes map[string]Route
	order  []string
}

// NewTable validates routes and builds a Table.
func NewTable(routes []Route) (*Table, error) {
	t := &Table{
		router: mux.NewRouter(),
		routes: make(map[string]Route, len(routes)),
		order:  make([]string, 0, len(routes)),
	}
	for _, r := range routes {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: route %q has no name", ErrInvalidRoute, r.Path)
		}
		if _, dup := t.routes[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate route name %q", ErrInvalidRoute, r.Name)
		}
		if r.RequiresAdmin && !r.RequiresAuth {
			return nil, fmt.Errorf("%w: route %q requires admin but not auth", ErrInvalidRoute, r.Name)
		}

		var mr *mux.Route
		switch {
		case r.CatchAll:
			mr = t.router.PathPrefix("/")
		case r.Path == "" || r.Path[0] != '/':
			return nil, fmt.Errorf("%w: route %q path %q must start with /", ErrInvalidRoute, r.Name, r.Path)
		default:
			mr = t.router.Path(r.Path)
		}
		mr.Name(r.Name)
		if err := mr.GetError(); err != nil {
			return nil, fmt.Errorf("%w: route %q: %v", ErrInvalidRoute, r.Name, err)
		}

		t.routes[r.Name] = r
		t.order = append(t.order, r.Name)
	}
	return t, nil
}

// Match resolves path. It reports false when no route matches.
func (t *Table) Match(path string) (Match, bool) {
	if path == "" {
		path = "/"
	}
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}
	var m mux.RouteMatch
	if !t.router.Match(req, &m) || m.Route == nil {
		return Match{}, false
	}
	r, ok := t.routes[m.Route.GetName()]
	if !ok {
		return Match{}, false
	}
	return Match{Route: r, Params: m.Vars}, true
}

// Route returns the route registered under name.
func (t *Table) Route(name string) (Route, bool) {
	r, ok := t.routes[name]
	return r, ok
}

// Routes returns every route in declaration order.
func (t *Table) Routes() []Route {
	out := make([]Route, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.routes[name])
	}
	return out
}

// Route names used by [DefaultRoutes].
const (
	RouteLogin          = "Login"
	RouteRoot           = "Root"
	RouteLedgerList     = "LedgerList"
	RouteLedgerNew      = "LedgerNew"
	RouteLedgerEdit     = "LedgerEdit"
	RouteUserManagement = "UserManagement"
	RouteAdminLogs      = "AdminLogs"
	RouteStatistics     = "Statistics"
	RouteNotPermission  = "NotPermission"
	RouteNotFound       = "NotFound"
)

// DefaultRoutes returns the ledger application's route table. loginPath and
// homePath are the targets of the root redirect.
func DefaultRoutes(loginPath, homePath string) []Route {
	return []Route{
		{Name: RouteLogin, Path: loginPath, Title: "Login"},
		{Name: RouteRoot, Path: "/", Redirect: func(authenticated bool) string {
			if authenticated {
				return homePath
			}
			return loginPath
		}},
		{Name: RouteLedgerList, Path: "/ledger/list", Title: "Ledger List", RequiresAuth: true},
		{Name: RouteLedgerNew, Path: "/ledger/new", Title: "New Ledger Entry", RequiresAuth: true},
		{Name: RouteLedgerEdit, Path: "/ledger/edit/{id}", Title: "Edit Ledger Entry", RequiresAuth: true},
		{Name: RouteUserManagement, Path: "/admin/users", Title: "User Management", RequiresAuth: true, RequiresAdmin: true},
		{Name: RouteAdminLogs, Path: "/admin/logs", Title: "System Logs", RequiresAuth: true, RequiresAdmin: true},
		{Name: RouteStatistics, Path: "/statistics", Title: "System Statistics", RequiresAuth: true},
		{Name: RouteNotPermission, Path: "/not-permission", Title: "Access Denied"},
		{Name: RouteNotFound, CatchAll: true, Title: "Page Not Found"},
	}
}
