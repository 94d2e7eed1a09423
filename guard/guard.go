package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ledgerops/ledgergate/ui"
)

// Kind is the verdict of one evaluation.
type Kind uint8

const (
	Allow Kind = iota
	RedirectToLogin
	Deny
	RedirectToHome
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case Deny:
		return "deny"
	case RedirectToHome:
		return "redirect_to_home"
	case Redirect:
		return "redirect"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Decision is the result of [Guard.Evaluate]. Target is set for every
// redirect kind and is the destination itself for Allow.
type Decision struct {
	Kind   Kind
	Target ui.Location
	Match  Match
}

// Session is the read-only view of the session the guard needs.
type Session interface {
	IsAuthenticated() bool
	IsAdmin() bool
}

// Config holds the fixed destinations and the title suffix.
type Config struct {
	AppTitle      string
	LoginPath     string
	HomePath      string
	RedirectParam string
}

// DefaultConfig returns the ledger application's guard settings.
func DefaultConfig() Config {
	return Config{
		AppTitle:      "Ledger Management System",
		LoginPath:     "/login",
		HomePath:      "/ledger/list",
		RedirectParam: "redirect",
	}
}

const (
	msgLoginRequired = "Please log in first"
	msgAdminRequired = "You do not have permission to access this page"
)

// Option customizes a Guard.
type Option func(*Guard)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithDecisionHook registers fn to observe every decision.
func WithDecisionHook(fn func(to ui.Location, d Decision)) Option {
	return func(g *Guard) {
		g.onDecision = fn
	}
}

// Guard evaluates navigation requests. Safe for concurrent use.
type Guard struct {
	cfg        Config
	table      *Table
	session    Session
	notifier   ui.Notifier
	titles     ui.TitleSetter
	logger     *slog.Logger
	onDecision func(ui.Location, Decision)
}

// New creates a Guard. notifier and titles may be nil.
func New(cfg Config, table *Table, session Session, notifier ui.Notifier, titles ui.TitleSetter, opts ...Option) (*Guard, error) {
	if table == nil {
		return nil, errors.New("guard: nil route table")
	}
	if session == nil {
		return nil, errors.New("guard: nil session")
	}
	def := DefaultConfig()
	if cfg.LoginPath == "" {
		cfg.LoginPath = def.LoginPath
	}
	if cfg.HomePath == "" {
		cfg.HomePath = def.HomePath
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = def.RedirectParam
	}
	if notifier == nil {
		notifier = ui.NopNotifier{}
	}
	if titles == nil {
		titles = ui.NopTitleSetter{}
	}
	g := &Guard{
		cfg:      cfg,
		table:    table,
		session:  session,
		notifier: notifier,
		titles:   titles,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Table returns the route table the guard evaluates against.
func (g *Guard) Table() *Table {
	return g.table
}

// Evaluate decides whether to may be shown. It sets the window title and, on
// RedirectToLogin or Deny, notifies the user. It never navigates.
func (g *Guard) Evaluate(ctx context.Context, to ui.Location) Decision {
	if to.Path == "" {
		to.Path = "/"
	}
	m, matched := g.table.Match(to.Path)
	g.titles.SetTitle(g.title(m.Route))

	d := g.decide(ctx, to, m, matched)

	g.logger.Debug("navigation decision",
		slog.String("path", to.Path),
		slog.String("route", m.Route.Name),
		slog.String("decision", d.Kind.String()),
		slog.String("target", d.Target.FullPath()))
	if g.onDecision != nil {
		g.onDecision(to, d)
	}
	return d
}

func (g *Guard) decide(ctx context.Context, to ui.Location, m Match, matched bool) Decision {
	route := m.Route
	authenticated := g.session.IsAuthenticated()

	if matched && route.Redirect != nil {
		return Decision{Kind: Redirect, Target: ui.ParseLocation(route.Redirect(authenticated)), Match: m}
	}

	// The login view is known by path, whether or not the table has a route for it.
	if to.Path == g.cfg.LoginPath && authenticated {
		return Decision{Kind: RedirectToHome, Target: ui.Location{Path: g.cfg.HomePath}, Match: m}
	}

	if !matched {
		return Decision{Kind: Allow, Target: to}
	}

	if route.RequiresAuth && !authenticated {
		g.notifier.Notify(ctx, ui.SeverityWarning, msgLoginRequired)
		return Decision{
			Kind: RedirectToLogin,
			Target: ui.Location{
				Path:  g.cfg.LoginPath,
				Query: url.Values{g.cfg.RedirectParam: {to.FullPath()}},
			},
			Match: m,
		}
	}

	if route.RequiresAdmin && !g.session.IsAdmin() {
		g.notifier.Notify(ctx, ui.SeverityError, msgAdminRequired)
		return Decision{Kind: Deny, Match: m}
	}

	return Decision{Kind: Allow, Target: to, Match: m}
}

func (g *Guard) title(r Route) string {
	switch {
	case r.Title == "":
		return g.cfg.AppTitle
	case g.cfg.AppTitle == "":
		return r.Title
	default:
		return r.Title + " - " + g.cfg.AppTitle
	}
}

// ResumeTarget returns where to go after a successful login: the redirect
// query value when it is a local path, the home view otherwise.
func (g *Guard) ResumeTarget(query url.Values) ui.Location {
	target := query.Get(g.cfg.RedirectParam)
	if !isLocalPath(target) {
		return ui.Location{Path: g.cfg.HomePath}
	}
	loc := ui.ParseLocation(target)
	if loc.Path == g.cfg.LoginPath {
		return ui.Location{Path: g.cfg.HomePath}
	}
	return loc
}

func isLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return false
	}
	return !strings.ContainsAny(p, "\\\r\n")
}
