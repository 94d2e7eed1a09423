package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerops/ledgergate/ui"
)

// Doer dispatches one HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Session is the part of the session store the pipeline needs: read the
// credential with its generation, and end that generation on rejection.
type Session interface {
	Credential() (credential string, generation uint64)
	Invalidate(ctx context.Context, generation uint64) (bool, error)
}

// Config controls request construction and the 401 reaction.
type Config struct {
	// BaseURL is prefixed to every relative call path, e.g. "http://host/api".
	BaseURL string
	// LoginPath is the view the user is sent to when the session ends.
	LoginPath string
	// RedirectParam is the query key carrying the return target.
	RedirectParam string
	// CacheBustParam is the query key added to GET and HEAD calls.
	CacheBustParam string
	// Timeout bounds each call. Zero leaves it to the Doer.
	Timeout time.Duration
	// MaxBodyBytes caps the response body. A larger body rejects the call
	// as a NetworkError wrapping ErrBodyTooLarge.
	MaxBodyBytes int64
	// Headers are added to every request before call headers.
	Headers map[string]string
}

// DefaultConfig returns the configuration used by the ledger web frontend.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:5000/api",
		LoginPath:      "/login",
		RedirectParam:  "redirect",
		CacheBustParam: "_t",
		Timeout:        15 * time.Second,
		MaxBodyBytes:   8 << 20,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Requested-With": "XMLHttpRequest",
		},
	}
}

// Call describes one API call. Path is relative to Config.BaseURL unless it
// is an absolute URL. Body is sent as JSON unless it is []byte,
// json.RawMessage, or an io.Reader.
type Call struct {
	Method string
	Path   string
	Body   any
	Query  url.Values
	Header http.Header
}

// Report describes one finished call. It is passed to the outcome hook.
type Report struct {
	Method       string
	Path         string
	RequestID    string
	Outcome      Outcome
	Status       int
	Latency      time.Duration
	SessionEnded bool
	Navigated    bool
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithOutcomeHook registers fn to receive a [Report] after every call.
// fn runs on the caller's goroutine and must not block.
func WithOutcomeHook(fn func(Report)) Option {
	return func(p *Pipeline) {
		p.onOutcome = fn
	}
}

// WithClock overrides the time source used for cache-defeat stamps and
// latency.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// Pipeline executes calls against the remote API. Safe for concurrent use.
type Pipeline struct {
	cfg       Config
	base      *url.URL
	doer      Doer
	session   Session
	notifier  ui.Notifier
	navigator ui.Navigator
	logger    *slog.Logger
	onOutcome func(Report)
	now       func() time.Time

	lastStamp atomic.Int64
	navMu     sync.Mutex
}

// New creates a Pipeline. A nil doer uses an *http.Client; a nil notifier
// discards notifications. session and navigator are required.
func New(cfg Config, doer Doer, session Session, notifier ui.Notifier, navigator ui.Navigator, opts ...Option) (*Pipeline, error) {
	if session == nil {
		return nil, fmt.Errorf("%w: nil session", ErrConfig)
	}
	if navigator == nil {
		return nil, fmt.Errorf("%w: nil navigator", ErrConfig)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrConfig, err)
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.RedirectParam == "" {
		cfg.RedirectParam = "redirect"
	}
	if cfg.CacheBustParam == "" {
		cfg.CacheBustParam = "_t"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if doer == nil {
		doer = &http.Client{}
	}
	if notifier == nil {
		notifier = ui.NopNotifier{}
	}

	p := &Pipeline{
		cfg:       cfg,
		base:      base,
		doer:      doer,
		session:   session,
		notifier:  notifier,
		navigator: navigator,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Execute performs one call and classifies its outcome. The returned Result
// is non-nil whenever a response was received; the error is a *Error for
// every outcome other than Success.
func (p *Pipeline) Execute(ctx context.Context, call Call) (*Result, error) {
	start := p.now()
	report := Report{Method: strings.ToUpper(call.Method), Path: call.Path}
	if report.Method == "" {
		report.Method = http.MethodGet
	}

	res, err := p.execute(ctx, call, &report)

	report.Latency = p.now().Sub(start)
	if p.onOutcome != nil {
		p.onOutcome(report)
	}
	return res, err
}

func (p *Pipeline) execute(ctx context.Context, call Call, report *Report) (*Result, error) {
	if ctx == nil {
		return nil, p.reject(context.Background(), report, ConfigError, 0, "", errors.New("nil context"))
	}

	cred, generation := p.session.Credential()
	req, requestID, err := p.buildRequest(ctx, call, report.Method, cred)
	report.RequestID = requestID
	if err != nil {
		return nil, p.reject(ctx, report, ConfigError, 0, "", err)
	}

	if p.cfg.Timeout > 0 {
		reqCtx, cancel := context.WithTimeout(req.Context(), p.cfg.Timeout)
		defer cancel()
		req = req.WithContext(reqCtx)
	}

	p.logger.Debug("dispatch",
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.String("request_id", requestID),
		slog.Bool("authenticated", cred != ""))

	resp, err := p.doer.Do(req)
	if err != nil {
		return nil, p.reject(ctx, report, NetworkError, 0, "", err)
	}
	defer resp.Body.Close()

	report.Status = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, p.reject(ctx, report, NetworkError, resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > p.cfg.MaxBodyBytes {
		return nil, p.reject(ctx, report, NetworkError, resp.StatusCode, "",
			fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, p.cfg.MaxBodyBytes))
	}

	env := parseEnvelope(body)
	res := &Result{
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      body,
		RequestID: requestID,
		Message:   env.message,
		Data:      env.data,
	}

	outcome := Classify(resp.StatusCode)
	if outcome == Success {
		if env.logicalFailure() {
			return res, p.reject(ctx, report, LogicalFailure, resp.StatusCode, env.message, nil)
		}
		report.Outcome = Success
		return res, nil
	}

	if outcome == Unauthenticated {
		return res, p.unauthenticated(ctx, report, cred, generation, env.message)
	}
	return res, p.reject(ctx, report, outcome, resp.StatusCode, env.message, nil)
}

// reject notifies the user once and builds the call's error.
func (p *Pipeline) reject(ctx context.Context, report *Report, outcome Outcome, status int, serverMsg string, cause error) error {
	msg := serverMsg
	if msg == "" {
		msg = outcome.DefaultMessage(status)
	}
	report.Outcome = outcome

	attrs := []any{
		slog.String("outcome", outcome.String()),
		slog.String("method", report.Method),
		slog.String("path", report.Path),
		slog.String("request_id", report.RequestID),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("status", status))
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	p.logger.Warn("call failed", attrs...)

	p.notifier.Notify(ctx, outcome.Severity(), msg)
	return &Error{Outcome: outcome, Status: status, Message: msg, Err: cause}
}

// unauthenticated ends the session the call was sent with. Only the call that
// actually ended it (or a call that carried no credential) navigates and
// notifies, so a burst of rejections yields one transition.
//
// A 401 for a session that was already ended, by an earlier rejection or a
// newer login, is returned to the caller without any notification. The user
// has already been told once.
func (p *Pipeline) unauthenticated(ctx context.Context, report *Report, cred string, generation uint64, serverMsg string) error {
	report.Outcome = Unauthenticated
	msg := serverMsg
	if msg == "" {
		msg = Unauthenticated.DefaultMessage(report.Status)
	}
	rejection := &Error{Outcome: Unauthenticated, Status: report.Status, Message: msg}

	if cred != "" {
		ended, err := p.session.Invalidate(ctx, generation)
		if err != nil {
			p.logger.Error("invalidate session", slog.String("error", err.Error()))
		}
		if !ended {
			p.logger.Debug("session already ended",
				slog.String("request_id", report.RequestID),
				slog.Uint64("generation", generation))
			return rejection
		}
		report.SessionEnded = true
	}

	report.Navigated = p.toLogin(ctx)
	p.logger.Warn("call failed",
		slog.String("outcome", Unauthenticated.String()),
		slog.String("method", report.Method),
		slog.String("path", report.Path),
		slog.String("request_id", report.RequestID),
		slog.Int("status", report.Status),
		slog.Bool("session_ended", report.SessionEnded),
		slog.Bool("navigated", report.Navigated))
	p.notifier.Notify(ctx, Unauthenticated.Severity(), msg)
	return rejection
}

// toLogin navigates to the login view unless the user is already there.
func (p *Pipeline) toLogin(ctx context.Context) bool {
	p.navMu.Lock()
	defer p.navMu.Unlock()

	current := p.navigator.CurrentLocation()
	if current.Path == p.cfg.LoginPath {
		return false
	}
	p.navigator.NavigateTo(ctx, ui.Location{
		Path:  p.cfg.LoginPath,
		Query: url.Values{p.cfg.RedirectParam: {current.FullPath()}},
	})
	return true
}

func (p *Pipeline) buildRequest(ctx context.Context, call Call, method, cred string) (*http.Request, string, error) {
	requestID := uuid.NewString()

	target, err := p.resolve(call.Path)
	if err != nil {
		return nil, requestID, err
	}

	q := target.Query()
	for k, vs := range call.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if method == http.MethodGet || method == http.MethodHead {
		q.Set(p.cfg.CacheBustParam, strconv.FormatInt(p.nextStamp(), 10))
	}
	target.RawQuery = q.Encode()

	body, err := encodeBody(call.Body)
	if err != nil {
		return nil, requestID, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, requestID, err
	}
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, vs := range call.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("X-Request-ID", requestID)
	if cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}
	return req, requestID, nil
}

func (p *Pipeline) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("call path: %w", err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if ref.Host != "" {
		return nil, fmt.Errorf("call path %q: scheme-relative urls are not allowed", path)
	}

	out := *p.base
	switch {
	case ref.Path == "":
	case out.Path == "":
		out.Path = "/" + strings.TrimLeft(ref.Path, "/")
	default:
		out.Path = strings.TrimRight(out.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	}
	out.RawPath = ""
	out.RawQuery = ref.RawQuery
	out.Fragment = ""
	if out.Scheme == "" || out.Host == "" {
		return nil, fmt.Errorf("call path %q: base url %q is not absolute", path, p.cfg.BaseURL)
	}
	return &out, nil
}

// nextStamp returns a millisecond timestamp strictly greater than any
// previously returned one.
func (p *Pipeline) nextStamp() int64 {
	now := p.now().UnixMilli()
	for {
		last := p.lastStamp.Load()
		next := now
		if next <= last {
			next = last + 1
		}
		if p.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}

func encodeBody(body any) (io.Reader, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return bytes.NewReader(b), nil
	case json.RawMessage:
		return bytes.NewReader(b), nil
	case io.Reader:
		return b, nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		return bytes.NewReader(data), nil
	}
}
