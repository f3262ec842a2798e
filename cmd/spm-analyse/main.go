// Command spm-analyse analyses SPM logs from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/config"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/pgstore"
	"github.com/jaynair0405/sub-spm/internal/report"
	"github.com/jaynair0405/sub-spm/internal/security"
	"github.com/jaynair0405/sub-spm/internal/units"
	"github.com/jaynair0405/sub-spm/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage), errors.Is(err, db.ErrUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "spm-analyse: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

type options struct {
	dataDir     string
	configPath  string
	train       string
	from        string
	to          string
	staffID     string
	notes       string
	dbPath      string
	databaseURL string
	plotPath    string
	exportPath  string
	speedUnits  string
	asJSON      bool
	debug       bool
	quiet       bool
}

func usage(w io.Writer, fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprint(w, `spm-analyse - analyse Mumbai suburban SPM speed logs

Usage:
  spm-analyse [flags] <log.csv>...
  spm-analyse migrate <up|down|status|version N|force N|help> [-db path]
  spm-analyse version

Flags:
`)
		fs.SetOutput(w)
		fs.PrintDefaults()
	}
}

// run is main without the process exit, so it can be tested.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "version":
			fmt.Fprintln(stdout, version.String("spm-analyse"))
			return nil
		case "migrate":
			return runMigrate(args[1:], stdin, stdout, stderr)
		}
	}

	var o options
	fs := flag.NewFlagSet("spm-analyse", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = usage(stderr, fs)
	fs.StringVar(&o.dataDir, "data", "reference_data", "Reference data directory (corridors, lookups, limit tables)")
	fs.StringVar(&o.configPath, "config", "", "Analysis tuning JSON (defaults built in)")
	fs.StringVar(&o.train, "train", "", "Train number")
	fs.StringVar(&o.from, "from", "", "From station code")
	fs.StringVar(&o.to, "to", "", "To station code")
	fs.StringVar(&o.staffID, "staff", "", "Staff ID stored with the run")
	fs.StringVar(&o.notes, "notes", "", "Notes stored with the run")
	fs.StringVar(&o.dbPath, "db", "", "Store results in this SQLite database")
	fs.StringVar(&o.databaseURL, "database-url", "", "Store results in this PostgreSQL database")
	fs.StringVar(&o.plotPath, "plot", "", "Write a speed/PSR PNG (single input only)")
	fs.StringVar(&o.exportPath, "export", "", "Write the analysed samples as CSV (single input only)")
	fs.StringVar(&o.speedUnits, "speed-units", "kmph", "Speed units in the summary: kmph, mps or mph")
	fs.BoolVar(&o.asJSON, "json", false, "Print the full analysis as JSON")
	fs.BoolVar(&o.debug, "debug", false, "Log matcher decisions")
	fs.BoolVar(&o.quiet, "q", false, "Silence diagnostic logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	files := fs.Args()
	if len(files) == 0 {
		fs.Usage()
		return errUsage
	}
	unit, err := units.ParseSpeedUnit(o.speedUnits)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(files) > 1 && (o.plotPath != "" || o.exportPath != "") {
		return fmt.Errorf("%w: -plot and -export take a single input file", errUsage)
	}
	for _, p := range []string{o.plotPath, o.exportPath} {
		if p == "" {
			continue
		}
		if err := security.ValidateOutputPath(p); err != nil {
			return err
		}
	}
	if o.quiet {
		monitoring.SetLogger(nil)
	}

	cfg := config.DefaultAnalysisConfig()
	if o.configPath != "" {
		if cfg, err = config.LoadAnalysisConfig(o.configPath); err != nil {
			return err
		}
	}
	m := corridor.NewManager(o.dataDir)
	if err := m.LoadAll(); err != nil {
		return fmt.Errorf("failed to load reference data: %w", err)
	}
	a := analysis.NewAnalyzer(m, cfg)

	jobs := make([]analysis.Job, len(files))
	for i, f := range files {
		jobs[i] = analysis.Job{Path: f, Request: analysis.Request{
			Filename:    filepath.Base(f),
			TrainNumber: o.train,
			From:        o.from,
			To:          o.to,
			StaffID:     o.staffID,
			Notes:       o.notes,
			Debug:       o.debug,
		}}
	}
	results, err := a.AnalyzeAll(ctx, jobs)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, o)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	failed := 0
	for _, br := range results {
		if br.Err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", br.Job.Path, br.Err)
			continue
		}
		res := br.Result
		if o.debug {
			for _, ev := range res.Trace {
				fmt.Fprintln(stderr, ev)
			}
		}
		if o.asJSON {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			printSummary(stdout, br.Job.Path, res, unit)
		}
		if store != nil {
			id, err := store.SaveRun(ctx, res)
			if err != nil {
				return fmt.Errorf("failed to store %s: %w", br.Job.Path, err)
			}
			fmt.Fprintf(stdout, "stored as run %s\n", id)
		}
		if err := writeOutputs(o, res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

// openStore returns nil when no store was requested.
func openStore(ctx context.Context, o options) (db.RunStore, error) {
	switch {
	case o.databaseURL != "":
		return pgstore.Open(ctx, o.databaseURL)
	case o.dbPath != "":
		return db.NewDB(o.dbPath)
	}
	return nil, nil
}

func writeOutputs(o options, res *analysis.Result) error {
	if o.plotPath == "" && o.exportPath == "" {
		return nil
	}
	series := report.FromResult(res)
	if o.plotPath != "" {
		if err := report.SavePNG(o.plotPath, series); err != nil {
			return err
		}
	}
	if o.exportPath != "" {
		if err := os.MkdirAll(filepath.Dir(o.exportPath), 0o755); err != nil {
			return err
		}
		f, err := os.Create(o.exportPath)
		if err != nil {
			return err
		}
		if err := report.WriteCSV(f, series); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

func printSummary(w io.Writer, path string, res *analysis.Result, unit units.SpeedUnit) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(k string, format string, v ...any) {
		fmt.Fprintf(tw, "%s\t%s\n", k, fmt.Sprintf(format, v...))
	}
	s := res.Summary
	row("file", "%s", path)
	if res.Corridor != nil {
		row("corridor", "%s (%s, %s)", res.Corridor.Corridor, res.Corridor.Direction, res.Class)
	}
	if res.From != "" || res.To != "" {
		row("journey", "%s to %s", res.From, res.To)
	}
	row("samples", "%d (%d dropped)", s.Rows, s.Dropped)
	row("distance", "%.2f km in %.0f s", s.TotalDistanceKM, s.Duration)
	sp := unit.FromKMPH
	row("speed", "max %.1f, avg %.1f, moving avg %.1f, p85 %.1f %s",
		sp(s.MaxSpeed), sp(s.AvgSpeed), sp(s.MovingAvgSpeed), sp(s.P85Speed), unit.Label())
	row("halts", "%d detected, %d matched", s.HaltCount, s.MatchedHalts)
	if len(res.Ordered) > 0 {
		row("stations", "%s", strings.Join(res.Ordered, " "))
	}
	vs := res.ViolationSummary
	row("violations", "%d (critical %d, severe %d, moderate %d, minor %d)", vs.Total, vs.Critical, vs.Severe, vs.Moderate, vs.Minor)
	row("overspeed events", "%d", len(res.Overspeed))
	for _, p := range res.PlatformEntries {
		row("platform "+p.Station, "entry %.0f, mid %.0f, one coach %.0f %s",
			sp(p.EntrySpeed), sp(p.MidPlatformSpeed), sp(p.OneCoachSpeed), unit.Label())
	}
	row("brake-feel tests", "%d", len(res.BrakeFeel))
	for _, msg := range res.Warnings {
		row("warning", "%s", msg)
	}
}

func runMigrate(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "spm.db", "SQLite database to migrate")
	// Allow the action before or after the flags.
	var action []string
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action = append(action, args[0])
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	return db.RunMigrateCommand(append(action, fs.Args()...), *dbPath, stdin, stdout)
}
