// Command ledgerctl is a terminal client for the ledger API. It keeps the
// session in the configured storage between invocations.
//
// Usage:
//
//	ledgerctl [-config file] [-base-url url] [-v] <command> [args]
//
// Commands:
//
//	login -u name -p password
//	logout
//	whoami
//	call [-d json] METHOD PATH
//	nav PATH
//	routes
//	config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/ledgerops/ledgergate"
	"github.com/ledgerops/ledgergate/pipeline"
	"github.com/ledgerops/ledgergate/ui"
)

type stderrNotifier struct{}

func (stderrNotifier) Notify(_ context.Context, s ui.Severity, msg string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", s, msg)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	global := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	var (
		configPath = global.String("config", "", "YAML configuration file")
		baseURL    = global.String("base-url", "", "override api.base_url")
		verbose    = global.Bool("v", false, "debug logging to stderr")
	)
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ledgerctl [flags] login|logout|whoami|call|nav|routes|config")
		return 2
	}

	cfg, err := loadConfig(*configPath, *baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "config" {
		return printConfig(cfg, out)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	storage, closeStorage, err := ledgergate.OpenStorage(cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v\n", err)
		return 1
	}
	defer closeStorage()

	history := ui.NewHistory(ui.Location{Path: "/"})
	client, err := ledgergate.New().
		WithConfig(cfg).
		WithStorage(storage).
		WithNotifier(stderrNotifier{}).
		WithNavigator(history).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "client: %v\n", err)
		return 1
	}
	defer client.Close()

	ctx := context.Background()
	if err := client.Restore(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "restore session: %v\n", err)
		return 1
	}

	switch cmd {
	case "login":
		return cmdLogin(ctx, client, rest, out)
	case "logout":
		if err := client.Logout(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "logout: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, "signed out")
		return 0
	case "whoami":
		return cmdWhoami(client, out)
	case "call":
		return cmdCall(ctx, client, rest, out)
	case "nav":
		return cmdNav(ctx, client, history, rest, out)
	case "routes":
		return cmdRoutes(client, out)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		return 2
	}
}

// loadConfig reads path if given, otherwise defaults with a badger store in
// the user config directory so the session survives between runs.
func loadConfig(path, baseURL string) (ledgergate.Config, error) {
	var (
		cfg ledgergate.Config
		err error
	)
	if path != "" {
		cfg, err = ledgergate.LoadConfigFile(path)
		if err != nil {
			return cfg, err
		}
	} else {
		cfg = ledgergate.DefaultConfig()
		if dir, dirErr := os.UserConfigDir(); dirErr == nil {
			cfg.Storage.Backend = ledgergate.StorageBadger
			cfg.Storage.BadgerPath = filepath.Join(dir, "ledgerctl", "session")
		}
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	return cfg, cfg.Validate()
}

func printConfig(cfg ledgergate.Config, out io.Writer) int {
	data, err := ledgergate.MarshalConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marshal: %v\n", err)
		return 1
	}
	_, _ = out.Write(data)
	for _, w := range cfg.Lint() {
		fmt.Fprintf(os.Stderr, "warning %s: %s\n", w.Code, w.Message)
	}
	return 0
}

func cmdLogin(ctx context.Context, client *ledgergate.Client, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *user == "" || *pass == "" {
		fmt.Fprintln(os.Stderr, "login requires -u and -p")
		return 2
	}
	lr, err := client.Login(ctx, *user, *pass)
	if err != nil {
		return failed(err)
	}
	fmt.Fprintf(out, "%s (%s as %s)\n", lr.Message, lr.Identity.Username, lr.Identity.Role.Normalize())
	return 0
}

func cmdWhoami(client *ledgergate.Client, out io.Writer) int {
	st := client.Session()
	if !st.IsAuthenticated() {
		fmt.Fprintln(out, "not signed in")
		return 1
	}
	fmt.Fprintf(out, "%s id=%s role=%s\n", st.CurrentUsername(), st.CurrentUserID(), st.CurrentRole())
	return 0
}

func cmdCall(ctx context.Context, client *ledgergate.Client, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	data := fs.String("d", "", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: ledgerctl call [-d json] METHOD PATH")
		return 2
	}
	call := pipeline.Call{Method: strings.ToUpper(fs.Arg(0)), Path: fs.Arg(1)}
	if *data != "" {
		call.Body = []byte(*data)
	}
	res, err := client.Execute(ctx, call)
	if res != nil && len(res.Body) > 0 {
		_, _ = out.Write(res.Body)
		if !strings.HasSuffix(string(res.Body), "\n") {
			fmt.Fprintln(out)
		}
	}
	if err != nil {
		return failed(err)
	}
	return 0
}

func cmdNav(ctx context.Context, client *ledgergate.Client, history *ui.History, args []string, out io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: ledgerctl nav PATH")
		return 2
	}
	d, err := client.Navigate(ctx, args[0])
	fmt.Fprintf(out, "decision=%s view=%s\n", d.Kind, history.CurrentLocation().FullPath())
	if err != nil {
		return failed(err)
	}
	return 0
}

// cmdRoutes lists the route table with the access each route needs.
// Redirect targets reflect the current session.
func cmdRoutes(client *ledgergate.Client, out io.Writer) int {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tACCESS\tTITLE")
	signedIn := client.Session().IsAuthenticated()
	for _, r := range client.Guard().Table().Routes() {
		path := r.Path
		if r.CatchAll {
			path = "*"
		}
		access := "public"
		switch {
		case r.Redirect != nil:
			access = "-> " + r.Redirect(signedIn)
		case r.RequiresAdmin:
			access = "admin"
		case r.RequiresAuth:
			access = "signed-in"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, path, access, r.Title)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "routes: %v\n", err)
		return 1
	}
	return 0
}

func failed(err error) int {
	if outcome, ok := pipeline.OutcomeOf(err); ok {
		fmt.Fprintf(os.Stderr, "%s: %v\n", outcome, err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	if errors.Is(err, pipeline.ErrUnauthenticated) {
		return 3
	}
	return 1
}
