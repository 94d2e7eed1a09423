package ledgergate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ledgerops/ledgergate/guard"
	"github.com/ledgerops/ledgergate/internal/audit"
	"github.com/ledgerops/ledgergate/pipeline"
	"github.com/ledgerops/ledgergate/session"
	"github.com/ledgerops/ledgergate/ui"
)

// Client is the gateway facade. All methods are safe for concurrent use.
type Client struct {
	config    Config
	store     *session.Store
	pipe      *pipeline.Pipeline
	guard     *guard.Guard
	navigator ui.Navigator
	logger    *slog.Logger
	metrics   *Metrics
	audit     *audit.Dispatcher
	closed    atomic.Bool
}

// Session exposes the session store for queries such as IsAdmin.
func (c *Client) Session() *session.Store {
	return c.store
}

// Guard exposes the navigation guard.
func (c *Client) Guard() *guard.Guard {
	return c.guard
}

// Navigator returns the navigator the client drives.
func (c *Client) Navigator() ui.Navigator {
	return c.navigator
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

/*
====================================
SESSION LIFECYCLE
====================================
*/

// Restore loads the persisted session. Call it once after Build.
func (c *Client) Restore(ctx context.Context) error {
	err := c.store.Restore(ctx)
	snap := c.store.Snapshot()
	if err != nil {
		c.metrics.Inc(MetricSessionRestoreFailure)
		c.emit(ctx, AuditEvent{EventType: AuditRestore, Error: err.Error()})
		return err
	}
	if snap.Authenticated() {
		c.metrics.Inc(MetricSessionRestored)
		c.emit(ctx, AuditEvent{EventType: AuditRestore, UserID: snap.Identity.ID, Username: snap.Identity.Username, Success: true})
	}
	return nil
}

// LoginResponse is the API's answer to a successful credential check.
type LoginResponse struct {
	Credential string
	Identity   session.Identity
	Message    string
}

// Login posts username and password to the login endpoint and, on success,
// installs the returned session. Failures are pipeline errors (for example
// pipeline.ErrUnauthenticated for wrong credentials) or [ErrLoginResponse].
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	if c.closed.Load() {
		return LoginResponse{}, ErrClosed
	}
	res, err := c.pipe.Execute(ctx, pipeline.Call{
		Method: http.MethodPost,
		Path:   c.config.API.LoginEndpoint,
		Body: map[string]string{
			"username": username,
			"password": password,
		},
	})
	if err != nil {
		c.metrics.Inc(MetricSessionLoginFailure)
		c.emit(ctx, AuditEvent{EventType: AuditLogin, Username: username, Error: err.Error()})
		return LoginResponse{}, err
	}

	lr, err := parseLoginResponse(res.Body)
	if err != nil {
		c.metrics.Inc(MetricSessionLoginFailure)
		c.emit(ctx, AuditEvent{EventType: AuditLogin, Username: username, Error: err.Error()})
		return LoginResponse{}, err
	}
	if lr.Identity.Username == "" {
		lr.Identity.Username = username
	}
	if err := c.AcceptLogin(ctx, lr.Credential, lr.Identity); err != nil {
		return lr, err
	}
	return lr, nil
}

// AcceptLogin installs a session obtained elsewhere. Inputs are trusted.
// A storage failure is returned but the session is active in memory.
func (c *Client) AcceptLogin(ctx context.Context, credential string, ident session.Identity) error {
	err := c.store.Login(ctx, credential, ident)
	c.metrics.Inc(MetricSessionLogin)
	if err != nil {
		c.metrics.Inc(MetricStorageFailure)
	}
	c.emit(ctx, AuditEvent{
		EventType: AuditLogin,
		UserID:    ident.ID,
		Username:  ident.Username,
		Success:   true,
		Metadata:  map[string]string{"role": string(ident.Role.Normalize())},
	})
	return err
}

// Logout ends the session. Calling it while signed out is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	ident, _ := c.store.Identity()
	ended, err := c.store.Logout(ctx)
	if err != nil {
		c.metrics.Inc(MetricStorageFailure)
	}
	if ended {
		c.metrics.Inc(MetricSessionLogout)
		c.emit(ctx, AuditEvent{EventType: AuditLogout, UserID: ident.ID, Username: ident.Username, Success: true})
	}
	return err
}

// UpdateIdentity merges patch into the identity, for example after a
// profile edit.
func (c *Client) UpdateIdentity(ctx context.Context, patch session.IdentityPatch) error {
	err := c.store.UpdateIdentity(ctx, patch)
	if err != nil {
		c.metrics.Inc(MetricStorageFailure)
	}
	ev := AuditEvent{EventType: AuditIdentityUpdate, UserID: c.store.CurrentUserID(), Success: err == nil}
	if patch.Role != nil {
		ev.Metadata = map[string]string{"role": string(*patch.Role)}
	}
	c.emit(ctx, ev)
	return err
}

/*
====================================
CALLS
====================================
*/

// Execute runs one API call through the pipeline.
func (c *Client) Execute(ctx context.Context, call pipeline.Call) (*pipeline.Result, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.pipe.Execute(ctx, call)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*pipeline.Result, error) {
	return c.Execute(ctx, pipeline.Call{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body any) (*pipeline.Result, error) {
	return c.Execute(ctx, pipeline.Call{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body any) (*pipeline.Result, error) {
	return c.Execute(ctx, pipeline.Call{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*pipeline.Result, error) {
	return c.Execute(ctx, pipeline.Call{Method: http.MethodDelete, Path: path})
}

/*
====================================
NAVIGATION
====================================
*/

// Navigate asks the guard about fullPath, follows redirects, and navigates
// to the final allowed destination. On Deny nothing is navigated and
// [ErrNavigationDenied] is returned with the decision. After Close it fails
// with [ErrClosed].
func (c *Client) Navigate(ctx context.Context, fullPath string) (guard.Decision, error) {
	if c.closed.Load() {
		return guard.Decision{}, ErrClosed
	}
	loc := ui.ParseLocation(fullPath)
	for hop := 0; hop <= c.config.Navigation.MaxRedirects; hop++ {
		d := c.guard.Evaluate(ctx, loc)
		switch d.Kind {
		case guard.Allow:
			c.navigator.NavigateTo(ctx, loc)
			return d, nil
		case guard.Deny:
			return d, fmt.Errorf("%w: %s", ErrNavigationDenied, loc.Path)
		default:
			loc = d.Target
		}
	}
	return guard.Decision{}, fmt.Errorf("%w: last target %s", ErrRedirectLoop, loc.FullPath())
}

// ResumeAfterLogin navigates to the redirect target carried in query (as
// produced by a RedirectToLogin decision), or home.
func (c *Client) ResumeAfterLogin(ctx context.Context, query url.Values) (guard.Decision, error) {
	return c.Navigate(ctx, c.guard.ResumeTarget(query).FullPath())
}

/*
====================================
METRICS, AUDIT, CLOSE
====================================
*/

// MetricsSnapshot returns a copy of all counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes the audit dispatcher. Calls after Close fail with
// [ErrClosed]. Storage opened by the caller is not closed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.audit.Close()
}

func (c *Client) observeCall(r pipeline.Report) {
	if id, ok := OutcomeMetric(r.Outcome); ok {
		c.metrics.Inc(id)
	}
	c.metrics.Observe(MetricCallLatency, r.Latency)

	if r.SessionEnded {
		c.metrics.Inc(MetricSessionExpired)
		c.emit(context.Background(), AuditEvent{
			EventType: AuditSessionExpired,
			RequestID: r.RequestID,
			Method:    r.Method,
			Path:      r.Path,
			Status:    r.Status,
		})
	}
	if r.Outcome != pipeline.Success {
		c.emit(context.Background(), AuditEvent{
			EventType: AuditCallRejected,
			UserID:    c.store.CurrentUserID(),
			RequestID: r.RequestID,
			Method:    r.Method,
			Path:      r.Path,
			Status:    r.Status,
			Outcome:   r.Outcome.String(),
			Metadata:  map[string]string{"latency_ms": strconv.FormatInt(r.Latency.Milliseconds(), 10)},
		})
	}
}

func (c *Client) observeDecision(to ui.Location, d guard.Decision) {
	if id, ok := DecisionMetric(d.Kind); ok {
		c.metrics.Inc(id)
	}
	var typ string
	switch d.Kind {
	case guard.Deny:
		typ = AuditNavigationDenied
	case guard.RedirectToLogin:
		typ = AuditLoginRequired
	default:
		return
	}
	c.emit(context.Background(), AuditEvent{
		EventType: typ,
		UserID:    c.store.CurrentUserID(),
		Method:    "NAVIGATE",
		Path:      to.Path,
		Metadata:  map[string]string{"route": d.Match.Route.Name},
	})
}

func (c *Client) emit(ctx context.Context, ev AuditEvent) {
	if c.audit == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.audit.Emit(ctx, ev)
}

// parseLoginResponse extracts the credential and identity from a login body.
// Fields may sit at the top level or under "data".
func parseLoginResponse(body []byte) (LoginResponse, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("%w: %v", ErrLoginResponse, err)
	}
	if _, ok := obj["access_token"]; !ok {
		if nested, ok := obj["data"].(map[string]any); ok {
			obj = nested
		}
	}

	var lr LoginResponse
	lr.Credential, _ = obj["access_token"].(string)
	if lr.Credential == "" {
		lr.Credential, _ = obj["token"].(string)
	}
	if lr.Credential == "" {
		return LoginResponse{}, fmt.Errorf("%w: no access_token", ErrLoginResponse)
	}
	lr.Message, _ = obj["message"].(string)

	id := scalar(obj["user_id"])
	if id == "" {
		id = scalar(obj["id"])
	}
	lr.Identity = session.Identity{
		ID:       id,
		Username: scalar(obj["username"]),
		Role:     session.Role(scalar(obj["role"])),
	}
	return lr, nil
}

func decodeObject(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("null body")
	}
	return obj, nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
