package ledgergate

import (
	"context"
	"errors"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/ledgerops/ledgergate/guard"
	"github.com/ledgerops/ledgergate/internal/fakeapi"
	"github.com/ledgerops/ledgergate/pipeline"
	"github.com/ledgerops/ledgergate/session"
	"github.com/ledgerops/ledgergate/ui"
)

type notification struct {
	severity ui.Severity
	message  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notification
}

func (r *recordingNotifier) Notify(_ context.Context, s ui.Severity, msg string) {
	r.mu.Lock()
	r.items = append(r.items, notification{s, msg})
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.items...)
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	r.items = nil
	r.mu.Unlock()
}

type titleRecorder struct {
	mu    sync.Mutex
	title string
}

func (r *titleRecorder) SetTitle(t string) {
	r.mu.Lock()
	r.title = t
	r.mu.Unlock()
}

func (r *titleRecorder) get() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title
}

type clientTest struct {
	client   *Client
	api      *fakeapi.Server
	history  *ui.History
	notifier *recordingNotifier
	titles   *titleRecorder
	sink     *ChannelSink
}

func newClientTest(t *testing.T, storage session.Storage, mutate func(*Config)) *clientTest {
	t.Helper()
	api := fakeapi.New(fakeapi.DefaultUsers())
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	cfg.Audit.BufferSize = 512
	if mutate != nil {
		mutate(&cfg)
	}

	ct := &clientTest{
		api:      api,
		history:  ui.NewHistory(ui.Location{Path: "/login"}),
		notifier: &recordingNotifier{},
		titles:   &titleRecorder{},
		sink:     NewChannelSink(512),
	}
	c, err := New().
		WithConfig(cfg).
		WithStorage(storage).
		WithHTTPClient(srv.Client()).
		WithNotifier(ct.notifier).
		WithNavigator(ct.history).
		WithTitleSetter(ct.titles).
		WithAuditSink(ct.sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(c.Close)
	ct.client = c
	return ct
}

func (ct *clientTest) login(t *testing.T, user, pass string) {
	t.Helper()
	if _, err := ct.client.Login(context.Background(), user, pass); err != nil {
		t.Fatalf("login %s: %v", user, err)
	}
}

// events closes the client so the audit buffer is flushed, then drains it.
func (ct *clientTest) events() []AuditEvent {
	ct.client.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-ct.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countEvents(evs []AuditEvent, typ string) int {
	n := 0
	for _, ev := range evs {
		if ev.EventType == typ {
			n++
		}
	}
	return n
}

func TestLoginThenLogout(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()

	lr, err := ct.client.Login(ctx, "admin", "admin123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if lr.Message != "Login successful" || lr.Credential == "" {
		t.Fatalf("unexpected login response %+v", lr)
	}
	st := ct.client.Session()
	if !st.IsAuthenticated() || !st.IsAdmin() || st.CurrentUserID() != "1" || st.CurrentUsername() != "admin" {
		t.Fatalf("unexpected session %+v", st.Snapshot())
	}

	res, err := ct.client.Get(ctx, "/me", nil)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	var me struct {
		Username string `json:"username"`
	}
	if err := res.DecodeData(&me); err != nil || me.Username != "admin" {
		t.Fatalf("decode me: %v %+v", err, me)
	}

	if err := ct.client.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := ct.client.Logout(ctx); err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if st.IsAuthenticated() || st.CurrentUsername() != session.UnknownUsername {
		t.Fatal("session survived logout")
	}

	snap := ct.client.MetricsSnapshot()
	if snap.Counters[MetricSessionLogin] != 1 || snap.Counters[MetricSessionLogout] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	evs := ct.events()
	if countEvents(evs, AuditLogin) != 1 || countEvents(evs, AuditLogout) != 1 {
		t.Fatalf("unexpected audit events %+v", evs)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ct := newClientTest(t, nil, nil)

	_, err := ct.client.Login(context.Background(), "admin", "wrong")
	if !errors.Is(err, pipeline.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if ct.client.Session().IsAuthenticated() {
		t.Fatal("failed login installed a session")
	}
	got := ct.notifier.all()
	if len(got) != 1 || got[0].message != "Invalid username or password" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	// Already on the login view.
	if len(ct.history.Visited()) != 0 {
		t.Fatalf("unexpected navigation %+v", ct.history.Visited())
	}
	if ct.client.MetricsSnapshot().Counters[MetricSessionLoginFailure] != 1 {
		t.Fatal("login failure not counted")
	}
}

func TestExpiredCredentialEndsSessionAndNavigates(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")

	if _, err := ct.client.Navigate(ctx, "/ledger/list?page=2"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	ct.notifier.reset()

	ct.api.ExpireSessions()
	_, err := ct.client.Get(ctx, "/ledger", nil)
	if !errors.Is(err, pipeline.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if ct.client.Session().IsAuthenticated() {
		t.Fatal("session survived 401")
	}
	cur := ct.history.CurrentLocation()
	if cur.Path != "/login" || cur.Query.Get("redirect") != "/ledger/list?page=2" {
		t.Fatalf("unexpected location %s", cur.FullPath())
	}
	got := ct.notifier.all()
	if len(got) != 1 || got[0].severity != ui.SeverityWarning {
		t.Fatalf("unexpected notifications %+v", got)
	}

	snap := ct.client.MetricsSnapshot()
	if snap.Counters[MetricSessionExpired] != 1 || snap.Counters[MetricCallUnauthenticated] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	if countEvents(ct.events(), AuditSessionExpired) != 1 {
		t.Fatal("expected one session expired event")
	}
}

func TestConcurrentRejectionsNavigateOnce(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")
	if _, err := ct.client.Navigate(ctx, "/ledger/list"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	visitsBefore := len(ct.history.Visited())
	ct.notifier.reset()

	const callers = 16
	ct.api.ExpireSessions()
	ct.api.HoldAuthenticated(callers)

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ct.client.Get(ctx, "/ledger", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, pipeline.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	}
	if got := len(ct.history.Visited()) - visitsBefore; got != 1 {
		t.Fatalf("expected 1 navigation, got %d", got)
	}
	if got := len(ct.notifier.all()); got != 1 {
		t.Fatalf("expected 1 notification, got %d", got)
	}
	snap := ct.client.MetricsSnapshot()
	if snap.Counters[MetricCallUnauthenticated] != callers || snap.Counters[MetricSessionExpired] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestGuardRedirectsToLoginThenResumes(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()

	d, err := ct.client.Navigate(ctx, "/ledger/edit/7")
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	// RedirectToLogin lands on the login route, which is allowed.
	if d.Kind != guard.Allow {
		t.Fatalf("expected final Allow, got %v", d.Kind)
	}
	cur := ct.history.CurrentLocation()
	if cur.Path != "/login" || cur.Query.Get("redirect") != "/ledger/edit/7" {
		t.Fatalf("unexpected location %s", cur.FullPath())
	}
	got := ct.notifier.all()
	if len(got) != 1 || got[0].message != "Please log in first" {
		t.Fatalf("unexpected notifications %+v", got)
	}

	ct.login(t, "alice", "alice123")
	if _, err := ct.client.ResumeAfterLogin(ctx, cur.Query); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := ct.history.CurrentLocation().Path; got != "/ledger/edit/7" {
		t.Fatalf("expected /ledger/edit/7, got %s", got)
	}
	if got := ct.titles.get(); got != "Edit Ledger Entry - Ledger Management System" {
		t.Fatalf("unexpected title %q", got)
	}
	if countEvents(ct.events(), AuditLoginRequired) != 1 {
		t.Fatal("expected one login required event")
	}
}

func TestResumeRejectsForeignTargets(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")

	if _, err := ct.client.ResumeAfterLogin(ctx, url.Values{"redirect": {"https://evil.test/"}}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got := ct.history.CurrentLocation().Path; got != "/ledger/list" {
		t.Fatalf("expected home, got %s", got)
	}
}

func TestNonAdminDenied(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")
	if _, err := ct.client.Navigate(ctx, "/ledger/list"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	visits := len(ct.history.Visited())

	d, err := ct.client.Navigate(ctx, "/admin/users")
	if !errors.Is(err, ErrNavigationDenied) || d.Kind != guard.Deny {
		t.Fatalf("expected denial, got %v %v", d.Kind, err)
	}
	if len(ct.history.Visited()) != visits {
		t.Fatal("denied navigation moved the view")
	}
	got := ct.notifier.all()
	if len(got) != 1 || got[0].severity != ui.SeverityError {
		t.Fatalf("unexpected notifications %+v", got)
	}

	// The API enforces the same rule.
	_, err = ct.client.Get(ctx, "/admin/users", nil)
	if !errors.Is(err, pipeline.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if !ct.client.Session().IsAuthenticated() {
		t.Fatal("403 must not end the session")
	}
	if countEvents(ct.events(), AuditNavigationDenied) != 1 {
		t.Fatal("expected one navigation denied event")
	}
}

func TestAdminAllowed(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "admin", "admin123")

	d, err := ct.client.Navigate(ctx, "/admin/logs")
	if err != nil || d.Kind != guard.Allow {
		t.Fatalf("expected allow, got %v %v", d.Kind, err)
	}
	if _, err := ct.client.Get(ctx, "/admin/users", nil); err != nil {
		t.Fatalf("admin users: %v", err)
	}
}

func TestRootAndLoginRedirects(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()

	if _, err := ct.client.Navigate(ctx, "/"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if got := ct.history.CurrentLocation().Path; got != "/login" {
		t.Fatalf("expected /login, got %s", got)
	}

	ct.login(t, "alice", "alice123")
	if _, err := ct.client.Navigate(ctx, "/login"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if got := ct.history.CurrentLocation().Path; got != "/ledger/list" {
		t.Fatalf("expected home, got %s", got)
	}
	snap := ct.client.MetricsSnapshot()
	if snap.Counters[MetricNavRedirect] != 1 || snap.Counters[MetricNavRedirectToHome] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

func TestRedirectLoop(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	routes := append(guard.DefaultRoutes("/login", "/ledger/list"),
		guard.Route{Name: "ping", Path: "/ping", Redirect: func(bool) string { return "/pong" }},
		guard.Route{Name: "pong", Path: "/pong", Redirect: func(bool) string { return "/ping" }},
	)
	c, err := New().
		WithConfig(ct.client.Config()).
		WithRoutes(routes).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := c.Navigate(context.Background(), "/ping"); !errors.Is(err, ErrRedirectLoop) {
		t.Fatalf("expected ErrRedirectLoop, got %v", err)
	}
}

func TestLogicalFailureKeepsSession(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")
	ct.api.SetQuotaExceeded(true)

	res, err := ct.client.Post(ctx, "/ledger", map[string]any{"project_name": "Bridge"})
	if !errors.Is(err, pipeline.ErrLogicalFailure) {
		t.Fatalf("expected ErrLogicalFailure, got %v", err)
	}
	if res == nil || res.Status != 200 {
		t.Fatalf("expected the 200 result, got %+v", res)
	}
	got := ct.notifier.all()
	if len(got) != 1 || got[0].message != "quota exceeded" {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if !ct.client.Session().IsAuthenticated() {
		t.Fatal("logical failure ended the session")
	}
}

func TestValidationAndNotFound(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")

	_, err := ct.client.Post(ctx, "/ledger", map[string]any{"amount": 3})
	if outcome, _ := pipeline.OutcomeOf(err); outcome != pipeline.ValidationError {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = ct.client.Delete(ctx, "/ledger/99")
	if !errors.Is(err, pipeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	msgs := ct.notifier.all()
	if len(msgs) != 2 || msgs[0].message != "project_name is required" || msgs[1].message != "Entry not found" {
		t.Fatalf("unexpected notifications %+v", msgs)
	}
}

func TestRestoreFromBadger(t *testing.T) {
	dir := t.TempDir()
	storage, closeFn, err := OpenStorage(StorageConfig{Backend: StorageBadger, BadgerPath: dir})
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	ct := newClientTest(t, storage, nil)
	ct.login(t, "admin", "admin123")
	ct.client.Close()
	if err := closeFn(); err != nil {
		t.Fatalf("close badger: %v", err)
	}

	storage, closeFn, err = OpenStorage(StorageConfig{Backend: StorageBadger, BadgerPath: dir})
	if err != nil {
		t.Fatalf("reopen badger: %v", err)
	}
	defer closeFn()
	c, err := New().WithStorage(storage).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !c.Session().IsAdmin() || c.Session().CurrentUsername() != "admin" {
		t.Fatalf("unexpected restored session %+v", c.Session().Snapshot())
	}
	if c.MetricsSnapshot().Counters[MetricSessionRestored] != 1 {
		t.Fatal("restore not counted")
	}
}

func TestRestoreFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := StorageConfig{Backend: StorageRedis, RedisAddr: mr.Addr(), RedisPrefix: "test"}

	storage, closeFn, err := OpenStorage(cfg)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer closeFn()
	ct := newClientTest(t, storage, nil)
	ct.login(t, "alice", "alice123")
	if !mr.Exists("test:token") {
		t.Fatalf("credential not stored in redis; keys %v", mr.Keys())
	}

	other, closeOther, err := OpenStorage(cfg)
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer closeOther()
	c, err := New().WithStorage(other).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if c.Session().CurrentUserID() != "2" || c.Session().IsAdmin() {
		t.Fatalf("unexpected restored session %+v", c.Session().Snapshot())
	}
}

func TestRestoreStorageFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	storage, closeFn, err := OpenStorage(StorageConfig{Backend: StorageRedis, RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	defer closeFn()
	mr.Close()

	c, err := New().WithStorage(storage).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if err := c.Restore(context.Background()); !errors.Is(err, session.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if c.MetricsSnapshot().Counters[MetricSessionRestoreFailure] != 1 {
		t.Fatal("restore failure not counted")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "not a url"
	if _, err := New().WithConfig(cfg).Build(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}

	bad := []guard.Route{{Name: "x", Path: "/x", RequiresAdmin: true}}
	_, err := New().WithRoutes(bad).Build()
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, guard.ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidConfig wrapping ErrInvalidRoute, got %v", err)
	}
}

func TestClosedClientRejectsCalls(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ct.client.Close()
	ct.client.Close()

	if _, err := ct.client.Get(context.Background(), "/me", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := ct.client.Login(context.Background(), "alice", "alice123"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := ct.client.Navigate(context.Background(), "/not-permission"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from Navigate, got %v", err)
	}
	if _, err := ct.client.ResumeAfterLogin(context.Background(), nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from ResumeAfterLogin, got %v", err)
	}
	if v := ct.history.Visited(); len(v) != 0 {
		t.Fatalf("closed client must not navigate, got %+v", v)
	}
}

func TestUpdateIdentity(t *testing.T) {
	ct := newClientTest(t, nil, nil)
	ctx := context.Background()
	ct.login(t, "alice", "alice123")

	role := session.RoleAdmin
	if err := ct.client.UpdateIdentity(ctx, session.IdentityPatch{Role: &role}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ct.client.Session().IsAdmin() || ct.client.Session().CurrentUsername() != "alice" {
		t.Fatalf("unexpected identity %+v", ct.client.Session().Snapshot())
	}
	if countEvents(ct.events(), AuditIdentityUpdate) != 1 {
		t.Fatal("expected one identity update event")
	}
}

func TestParseLoginResponseShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		id   string
	}{
		{"top level", `{"access_token":"t","user_id":3,"username":"u","role":"admin"}`, "3"},
		{"nested data", `{"success":true,"data":{"token":"t","id":"9","username":"u"}}`, "9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lr, err := parseLoginResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if lr.Credential != "t" || lr.Identity.ID != tc.id || lr.Identity.Username != "u" {
				t.Fatalf("unexpected %+v", lr)
			}
		})
	}

	for _, body := range []string{`{"success":true}`, `null`, `[]`, `nope`} {
		if _, err := parseLoginResponse([]byte(body)); !errors.Is(err, ErrLoginResponse) {
			t.Fatalf("%s: expected ErrLoginResponse, got %v", body, err)
		}
	}
}
