// Command vspcbal rebalances precinct assignments from CSV files or a
// synthetic county and writes the results as CSV.
//
// Exit status is 0 when the run converged, 3 when it stalled or hit the
// iteration limit (results are still written) and 1 on errors.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"vspcbal/internal/balance"
	"vspcbal/internal/config"
	"vspcbal/internal/integrations"
	"vspcbal/internal/integrations/csvfile"
	"vspcbal/internal/logger"
	"vspcbal/internal/model"
	"vspcbal/internal/store"
	"vspcbal/internal/synth"
)

const (
	exitOK         = 0
	exitError      = 1
	exitUnbalanced = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	units, centers   string
	configPath       string
	synthetic        int
	centersCount     int
	seed             int64
	outUnits         string
	outCenters       string
	storeSpec        string
	tenant, label    string
	logLevel, logFmt string
	quiet            bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("vspcbal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.units, "units", "", "unit CSV (id,weight,lat,lng[,pinned,pinned_center])")
	fs.StringVar(&o.centers, "centers", "", "center CSV (id,name,lat,lng)")
	fs.StringVar(&o.configPath, "config", "", "YAML config file; the balance section is used")
	fs.IntVar(&o.synthetic, "synthetic", 0, "generate N synthetic units instead of reading CSV")
	fs.IntVar(&o.centersCount, "centers-count", 30, "centers to generate with -synthetic")
	fs.Int64Var(&o.seed, "seed", 42, "seed for -synthetic")
	fs.StringVar(&o.outUnits, "out-units", "-", "unit result CSV, - for stdout, empty to skip")
	fs.StringVar(&o.outCenters, "out-centers", "", "center result CSV, - for stdout, empty to skip")
	fs.StringVar(&o.storeSpec, "store", "", "persist the run, e.g. sqlite:runs.db")
	fs.StringVar(&o.tenant, "tenant", "cli", "tenant id for -store")
	fs.StringVar(&o.label, "label", "", "run label for -store")
	fs.StringVar(&o.logLevel, "log-level", "", "debug|info|warn|error (default LOG_LEVEL)")
	fs.StringVar(&o.logFmt, "log-format", "", "text|json (default LOG_FORMAT)")
	fs.BoolVar(&o.quiet, "q", false, "suppress the summary")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	switch {
	case o.synthetic > 0 && (o.units != "" || o.centers != ""):
		return o, errors.New("-synthetic cannot be combined with -units/-centers")
	case o.synthetic == 0 && (o.units == "" || o.centers == ""):
		return o, errors.New("either -units and -centers or -synthetic is required")
	case o.synthetic > 0 && o.centersCount < 1:
		return o, errors.New("-centers-count must be >= 1")
	}
	if o.outUnits == "-" && o.outCenters == "-" {
		return o, errors.New("only one of -out-units and -out-centers may write to stdout")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(stderr, "vspcbal:", err)
		}
		return exitError
	}
	log := logger.Setup(logger.Options{Level: o.logLevel, Format: o.logFmt, Output: stderr})

	cfg, err := loadBalanceConfig(o.configPath)
	if err != nil {
		log.Error("config_load_failed", "err", err)
		return exitError
	}

	var src integrations.Source = csvfile.Source{UnitsPath: o.units, CentersPath: o.centers}
	if o.synthetic > 0 {
		sc := synth.DefaultConfig()
		sc.Units, sc.Centers, sc.Seed = o.synthetic, o.centersCount, o.seed
		src = synth.Source{Config: sc}
	}
	ds, err := src.Load(ctx)
	if err != nil {
		log.Error("load_failed", "source", src.Name(), "err", err)
		return exitError
	}
	log.Debug("input_loaded", "source", src.Name(), "units", len(ds.Units), "centers", len(ds.Centers))

	start := time.Now()
	res, err := balance.Run(ctx, ds.Units, ds.Centers, cfg, balance.WithLogger(log))
	elapsed := time.Since(start)
	if err != nil {
		log.Error("rebalance_failed", "err", err)
		return exitError
	}

	if err := writeOutputs(o, res, stdout); err != nil {
		log.Error("write_failed", "err", err)
		return exitError
	}
	if o.storeSpec != "" {
		id, err := persist(ctx, o, cfg, res, start, elapsed)
		if err != nil {
			log.Error("store_failed", "err", err)
			return exitError
		}
		log.Info("run_saved", "id", id, "store", o.storeSpec)
	}
	if !o.quiet {
		printSummary(stderr, src.Name(), res, elapsed)
	}
	if res.State != balance.Converged {
		return exitUnbalanced
	}
	return exitOK
}

// loadBalanceConfig reads the balance section of a config file, or returns
// the defaults (with BALANCE_* environment overrides) when path is empty.
func loadBalanceConfig(path string) (balance.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return balance.Config{}, err
	}
	return cfg.Balance, nil
}

func writeOutputs(o options, res *balance.Result, stdout io.Writer) error {
	if err := writeTo(o.outUnits, stdout, func(w io.Writer) error { return csvfile.WriteUnits(w, res.Units) }); err != nil {
		return fmt.Errorf("units output: %w", err)
	}
	if err := writeTo(o.outCenters, stdout, func(w io.Writer) error { return csvfile.WriteCenters(w, res.Centers) }); err != nil {
		return fmt.Errorf("centers output: %w", err)
	}
	return nil
}

func writeTo(path string, stdout io.Writer, write func(io.Writer) error) error {
	switch path {
	case "":
		return nil
	case "-":
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func persist(ctx context.Context, o options, cfg balance.Config, res *balance.Result, start time.Time, elapsed time.Duration) (string, error) {
	driver, path, ok := strings.Cut(o.storeSpec, ":")
	if !ok || driver != "sqlite" || path == "" {
		return "", fmt.Errorf("unsupported -store %q (want sqlite:<path>)", o.storeSpec)
	}
	st, err := store.NewSQLite(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = st.Close() }()
	run := model.NewRun(uuid.NewString(), o.tenant, o.label, cfg, res, start, elapsed)
	if err := st.SaveRun(ctx, run); err != nil {
		return "", err
	}
	return run.ID, nil
}

func printSummary(w io.Writer, source string, res *balance.Result, elapsed time.Duration) {
	reassigned := 0
	for _, u := range res.Units {
		if u.Reassigned {
			reassigned++
		}
	}
	fmt.Fprintf(w, "source:          %s\n", source)
	fmt.Fprintf(w, "state:           %s after %d iterations (%s)\n", res.State, res.Iterations, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "units:           %s (%s reassigned, %s moves)\n",
		humanize.Comma(int64(len(res.Units))), humanize.Comma(int64(reassigned)), humanize.Comma(int64(res.Moves)))
	fmt.Fprintf(w, "total weight:    %s across %d centers\n", humanize.Comma(int64(res.TotalWeight)), len(res.Centers))
	fmt.Fprintf(w, "target:          %s (band %s to %s, ceiling %s)\n",
		humanize.FormatFloat("#,###.#", res.Target), humanize.FormatFloat("#,###.#", res.Band.Low),
		humanize.FormatFloat("#,###.#", res.Band.High), humanize.FormatFloat("#,###.#", res.RelaxedCeiling))
	fmt.Fprintf(w, "load:            mean %s, std dev %s\n",
		humanize.FormatFloat("#,###.#", res.LoadMean), humanize.FormatFloat("#,###.#", res.LoadStdDev))
	if len(res.StillOverloaded) > 0 {
		fmt.Fprintf(w, "still overloaded: %s\n", strings.Join(res.StillOverloaded, ", "))
	}
	fmt.Fprintf(w, "digest:          %s\n", res.Digest)
}
