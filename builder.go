package ledgergate

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ledgerops/ledgergate/guard"
	"github.com/ledgerops/ledgergate/internal/audit"
	"github.com/ledgerops/ledgergate/pipeline"
	"github.com/ledgerops/ledgergate/session"
	"github.com/ledgerops/ledgergate/ui"
)

// Builder assembles a [Client]. Every With method is optional; Build fills
// in in-memory defaults. A Builder can be used once.
type Builder struct {
	config Config

	storage    session.Storage
	httpClient pipeline.Doer
	notifier   ui.Notifier
	navigator  ui.Navigator
	titles     ui.TitleSetter
	routes     []guard.Route
	logger     *slog.Logger
	auditSink  AuditSink

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStorage sets the durable session storage. See [OpenStorage].
func (b *Builder) WithStorage(s session.Storage) *Builder {
	b.storage = s
	return b
}

// WithHTTPClient sets the transport. *http.Client satisfies pipeline.Doer.
func (b *Builder) WithHTTPClient(d pipeline.Doer) *Builder {
	b.httpClient = d
	return b
}

func (b *Builder) WithNotifier(n ui.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithNavigator sets the view navigator. Without one the client keeps an
// in-process [ui.History].
func (b *Builder) WithNavigator(n ui.Navigator) *Builder {
	b.navigator = n
	return b
}

func (b *Builder) WithTitleSetter(t ui.TitleSetter) *Builder {
	b.titles = t
	return b
}

// WithRoutes replaces the default ledger route table.
func (b *Builder) WithRoutes(routes []guard.Route) *Builder {
	b.routes = routes
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. It performs no
// I/O; call [Client.Restore] afterwards to load a persisted session.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	storage := b.storage
	if storage == nil {
		storage = session.NewMemoryStorage()
	}
	notifier := b.notifier
	if notifier == nil {
		notifier = ui.NopNotifier{}
	}
	navigator := b.navigator
	if navigator == nil {
		navigator = ui.NewHistory(ui.Location{Path: "/"})
	}
	routes := b.routes
	if routes == nil {
		routes = guard.DefaultRoutes(cfg.Navigation.LoginPath, cfg.Navigation.HomePath)
	}

	c := &Client{
		config:    cfg,
		logger:    logger,
		navigator: navigator,
		metrics:   NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Logger:     logger.With(slog.String("component", "audit")),
		}, b.auditSink),
	}

	// -------- SESSION STORE --------
	storeOpts := []session.Option{
		session.WithKeys(session.Keys{
			Credential: cfg.Session.CredentialKey,
			Identity:   cfg.Session.IdentityKey,
		}),
		session.WithLogger(logger.With(slog.String("component", "session"))),
	}
	if cfg.Session.DiscardExpired {
		storeOpts = append(storeOpts, session.WithDiscardExpired(cfg.Session.ExpiryLeeway))
	}
	c.store = session.NewStore(storage, storeOpts...)

	// -------- PIPELINE --------
	pipe, err := pipeline.New(pipeline.Config{
		BaseURL:        cfg.API.BaseURL,
		LoginPath:      cfg.Navigation.LoginPath,
		RedirectParam:  cfg.Navigation.RedirectParam,
		CacheBustParam: "_t",
		Timeout:        cfg.API.Timeout,
		MaxBodyBytes:   cfg.API.MaxBodyBytes,
		Headers:        cfg.API.Headers,
	}, b.httpClient, c.store, notifier, navigator,
		pipeline.WithLogger(logger.With(slog.String("component", "pipeline"))),
		pipeline.WithOutcomeHook(c.observeCall),
	)
	if err != nil {
		c.audit.Close()
		return nil, err
	}
	c.pipe = pipe

	// -------- GUARD --------
	table, err := guard.NewTable(routes)
	if err != nil {
		c.audit.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	g, err := guard.New(guard.Config{
		AppTitle:      cfg.Navigation.AppTitle,
		LoginPath:     cfg.Navigation.LoginPath,
		HomePath:      cfg.Navigation.HomePath,
		RedirectParam: cfg.Navigation.RedirectParam,
	}, table, c.store, notifier, b.titles,
		guard.WithLogger(logger.With(slog.String("component", "guard"))),
		guard.WithDecisionHook(c.observeDecision),
	)
	if err != nil {
		c.audit.Close()
		return nil, err
	}
	c.guard = g

	b.built = true
	return c, nil
}
