package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/lachiem1/cashflow/internal/api"
	"github.com/lachiem1/cashflow/internal/app"
	"github.com/lachiem1/cashflow/internal/auth"
	"github.com/lachiem1/cashflow/internal/config"
	"github.com/lachiem1/cashflow/internal/currency"
	"github.com/lachiem1/cashflow/internal/importer"
	"github.com/lachiem1/cashflow/internal/logger"
	"github.com/lachiem1/cashflow/internal/sankey"
	"github.com/lachiem1/cashflow/internal/storage"
	"github.com/lachiem1/cashflow/internal/tui"
	"github.com/lachiem1/cashflow/internal/upapi"
)

const usage = `usage: cashflow <command> [flags]

commands:
  import <file>...   import MoneyMoney JSON or CSV exports
  import-up          import settled transactions from Up
  show               print the current flows
  export             write the flows in SankeyMATIC syntax
  reset              activate all categories and restore default settings
  tui                open the interactive chart
  serve              serve the chart over HTTP
  auth set           store the Up personal access token
  db-wipe            delete the local database
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "import":
		err = runImport(ctx, args)
	case "import-up":
		err = runImportUp(ctx, args)
	case "show":
		err = runShow(ctx, args)
	case "export":
		err = runExport(ctx, args)
	case "reset":
		err = runReset(ctx, args)
	case "tui":
		err = runTUI(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "auth":
		err = runAuth(args)
	case "db-wipe":
		err = runDBWipe()
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s error: %v\n", cmd, err)
		os.Exit(1)
	}
}

// env bundles what every data command needs.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	db     *sql.DB
	txs    *storage.TransactionsRepo
	states *storage.ImportStateRepo
	store  *storage.ChartSettingsStore
}

func openEnv(ctx context.Context, log zerolog.Logger) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log = log.Level(logger.ParseLevel(cfg.LogLevel))

	db, dbCfg, err := storage.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug().Str("path", dbCfg.Path).Str("mode", string(dbCfg.Mode)).Msg("database ready")

	return &env{
		cfg:    cfg,
		log:    log,
		db:     db,
		txs:    storage.NewTransactionsRepo(db),
		states: storage.NewImportStateRepo(db),
		store:  storage.NewChartSettingsStore(db),
	}, nil
}

func (e *env) Close() {
	if err := e.db.Close(); err != nil {
		e.log.Warn().Err(err).Msg("close database")
	}
}

func (e *env) newImporter(opts ...importer.Option) (*importer.Importer, error) {
	opts = append([]importer.Option{
		importer.WithWorkers(e.cfg.ImportWorkers),
		importer.WithLogger(e.log),
	}, opts...)
	return importer.New(e.txs, e.states, opts...)
}

func (e *env) newSession(ctx context.Context) (*app.Session, error) {
	txs, err := e.txs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return app.NewSession(ctx, txs, app.Options{
		Store:     e.store,
		Defaults:  e.cfg.ChartDefaults(),
		MainName:  e.cfg.MainName,
		Separator: e.cfg.PathSeparator,
		Logger:    e.log,
	})
}

// reloadOnImport rebuilds the session whenever an import lands.
func (e *env) reloadOnImport(ctx context.Context, session *app.Session) func(importer.Event) {
	return func(ev importer.Event) {
		if ev.Type != importer.EventImportOK {
			return
		}
		txs, err := e.txs.ListActive(ctx)
		if err != nil {
			e.log.Error().Err(err).Msg("reload transactions after import")
			return
		}
		if err := session.Reload(ctx, txs); err != nil {
			e.log.Error().Err(err).Msg("rebuild chart after import")
		}
	}
}

func (e *env) upSource(since time.Time) (importer.UpSource, error) {
	pat, err := auth.LoadPAT()
	if err != nil {
		return importer.UpSource{}, fmt.Errorf("load Up token (run `cashflow auth set`): %w", err)
	}
	return importer.UpSource{Client: upapi.New(pat), Since: since}, nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("usage: cashflow import <file>...")
	}

	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	sources := make([]importer.Source, 0, fs.NArg())
	for _, path := range fs.Args() {
		src, err := importer.SourceForPath(path, e.cfg.Currency)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sources = append(sources, src)
	}

	im, err := e.newImporter()
	if err != nil {
		return err
	}
	res, err := im.Run(ctx, sources)
	for _, r := range res.Sources {
		if r.Err != nil {
			continue
		}
		fmt.Printf("%s: %d transactions\n", r.Source, r.Count)
	}
	e.log.Info().
		Int("imported", res.Imported()).
		Int("failed_sources", res.Failed()).
		Msg("import finished")
	return err
}

func runImportUp(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-up", flag.ContinueOnError)
	since := fs.String("since", "", "only import transactions on or after this date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sinceAt, err := parseSince(*since)
	if err != nil {
		return err
	}

	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	src, err := e.upSource(sinceAt)
	if err != nil {
		return err
	}
	im, err := e.newImporter()
	if err != nil {
		return err
	}
	n, err := im.Import(ctx, src)
	if err != nil {
		return err
	}
	fmt.Printf("up: %d transactions\n", n)
	return nil
}

func parseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD", raw)
	}
	return t, nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.newSession(ctx)
	if err != nil {
		return err
	}
	if w := session.Warning(); w != "" {
		e.log.Warn().Msg(w)
	}
	printChart(os.Stdout, session.Chart(), session.Flows())
	return nil
}

func printChart(w io.Writer, chart app.Chart, flows []sankey.Edge) {
	names := make(map[string]string, len(chart.Nodes))
	for _, n := range chart.Nodes {
		names[n.ID] = n.Name
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#F47A60"))).
		Headers("FROM", "TO", "AMOUNT", "SHARE")
	for _, e := range flows {
		share := ""
		if e.Outgoing {
			if v, ok := sankey.Percentage(flows, e.To); ok {
				share = currency.Percent(v)
			}
		}
		t.Row(names[e.From], names[e.To], currency.Format(e.Custom.Real, chart.Currency), share)
	}

	s := chart.Summary
	if s.Count > 0 {
		fmt.Fprintf(w, "%d transactions from %s to %s\n", s.Count, s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"))
	}
	fmt.Fprintln(w, t.String())
	fmt.Fprintf(w, "balance: %s\n", currency.Format(chart.Balance, chart.Currency))
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "", "write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.newSession(ctx)
	if err != nil {
		return err
	}
	text := session.Export() + "\n"
	if *out == "" {
		_, err = io.WriteString(os.Stdout, text)
		return err
	}
	return os.WriteFile(*out, []byte(text), 0o644)
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.newSession(ctx)
	if err != nil {
		return err
	}
	// a load problem is moot once the settings are reset
	session.DismissWarning()
	if err := session.Reset(ctx); err != nil {
		return err
	}
	if warning := session.Warning(); warning != "" {
		return errors.New(warning)
	}
	fmt.Println("chart settings reset")
	return nil
}

func runTUI(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	watchUp := fs.Bool("watch-up", false, "import from Up in the background while the UI is open")
	interval := fs.Duration("interval", 15*time.Minute, "background import interval")
	exportPath := fs.String("export-path", "", "default file for :export")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, logFile, err := logger.NewFile(cfg.LogFile)
	if err != nil {
		return err
	}
	defer logFile.Close()

	e, err := openEnv(ctx, log)
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.newSession(ctx)
	if err != nil {
		return err
	}

	opts := tui.Options{Logger: e.log, ExportPath: *exportPath}
	if state, ok, err := e.states.Get(ctx, importer.UpSourceName); err == nil && ok {
		opts.LastImport = state.LastSuccess
	}

	if *watchUp {
		src, err := e.upSource(time.Time{})
		if err != nil {
			return err
		}
		events := make(chan importer.Event, 16)
		reload := e.reloadOnImport(ctx, session)
		im, err := e.newImporter(importer.WithEvents(func(ev importer.Event) {
			reload(ev)
			select {
			case events <- ev:
			default:
			}
		}))
		if err != nil {
			return err
		}
		poller, err := importer.NewPoller(importer.PollConfig{Interval: *interval}, im, src)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer poller.Stop()
		opts.Refresher = poller
		opts.ImportEvents = events
	}

	return tui.Run(ctx, session, opts)
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", "", "listen address (default from CASHFLOW_HTTP_ADDR)")
	pollUp := fs.Bool("poll-up", false, "import from Up on an interval")
	interval := fs.Duration("interval", 15*time.Minute, "Up import interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := openEnv(ctx, logger.New())
	if err != nil {
		return err
	}
	defer e.Close()

	session, err := e.newSession(ctx)
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithImportStates(e.states)}
	if *pollUp {
		src, err := e.upSource(time.Time{})
		if err != nil {
			return err
		}
		im, err := e.newImporter(importer.WithEvents(e.reloadOnImport(ctx, session)))
		if err != nil {
			return err
		}
		poller, err := importer.NewPoller(importer.PollConfig{Interval: *interval}, im, src)
		if err != nil {
			return err
		}
		if err := poller.Start(ctx); err != nil {
			return err
		}
		defer poller.Stop()
		opts = append(opts, api.WithRefresher(poller))
	}

	listen := *addr
	if listen == "" {
		listen = e.cfg.HTTPAddr
	}
	return api.NewServer(session, e.log, opts...).Serve(ctx, listen, e.cfg.ShutdownTimeout)
}

func runAuth(args []string) error {
	if len(args) != 1 || args[0] != "set" {
		return errors.New("usage: cashflow auth set")
	}

	fmt.Print("Enter Up PAT: ")
	pat, err := readSecret()
	if err != nil {
		return err
	}
	fmt.Println()

	if strings.TrimSpace(pat) == "" {
		return errors.New("empty PAT")
	}
	if err := auth.SavePAT(pat); err != nil {
		return err
	}
	fmt.Println("PAT saved to your system credential store.")
	return nil
}

func runDBWipe() error {
	cfg, err := storage.Wipe()
	if err != nil {
		return err
	}
	fmt.Printf("removed local database at %s\n", cfg.Path)
	return nil
}

func readSecret() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		value, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(value), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) && len(line) == 0 {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
