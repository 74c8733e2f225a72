// Package main provides the bpsim command, which replays a branch trace
// through a speculative gshare predictor and reports its accuracy.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/sarchlab/bpsim/bpred"
	"github.com/sarchlab/bpsim/bpred/gshare"
	"github.com/sarchlab/bpsim/trace"
)

var (
	configPath = flag.String("config", "", "Path to predictor configuration JSON file")
	scheme     = flag.String("scheme", "", "Override index scheme (gshare or global)")
	depth      = flag.Int("depth", trace.DefaultDepth, "In-flight branches per thread")
	jsonOut    = flag.Bool("json", false, "Write the report as JSON")
	dumpConfig = flag.String("dump-config", "", "Write the effective configuration to this path and exit")
	verbose    = flag.Bool("v", false, "Log every predictor event")
)

var errNoTrace = errors.New("no trace file given")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: bpsim [options] <trace>\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(flag.Args(), os.Stdout, logger); err != nil {
		if errors.Is(err, errNoTrace) {
			flag.Usage()
		}
		logger.Error("bpsim failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	_ = logger.Sync()
}

// run executes one bpsim invocation. Every failure is returned so the caller
// reports it through logger.
func run(args []string, w io.Writer, logger *zap.Logger) error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading predictor config: %w", err)
	}

	if *dumpConfig != "" {
		if err := config.SaveConfig(*dumpConfig); err != nil {
			return fmt.Errorf("writing predictor config: %w", err)
		}
		logger.Info("config written", zap.String("path", *dumpConfig))
		return nil
	}

	if len(args) < 1 {
		return errNoTrace
	}

	tracePath := args[0]
	branches, err := trace.Load(tracePath)
	if err != nil {
		return fmt.Errorf("loading trace %s: %w", tracePath, err)
	}
	logger.Info("trace loaded",
		zap.String("path", tracePath),
		zap.Int("branches", len(branches)))

	result, err := simulate(config, branches, *depth, logger)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	if !*jsonOut {
		writeReport(w, config, result)
		return nil
	}
	if err := writeJSONReport(w, config, result); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	return nil
}

func loadConfig() (*gshare.Config, error) {
	config := gshare.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = gshare.LoadConfig(*configPath)
		if err != nil {
			return nil, err
		}
	}

	if *scheme != "" {
		config.IndexScheme = gshare.IndexScheme(*scheme)
	}

	return config, config.Validate()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// simulate builds a predictor from config and replays branches through it.
// Predictor events are logged when logger has debug level enabled.
func simulate(
	config *gshare.Config,
	branches []trace.Branch,
	depth int,
	logger *zap.Logger,
) (trace.Result, error) {
	predictor, err := gshare.New(config)
	if err != nil {
		return trace.Result{}, err
	}

	if logger.Core().Enabled(zap.DebugLevel) {
		predictor.AcceptHook(bpred.NewLogHook(logger))
	}

	replayer := trace.NewReplayer(predictor, trace.ReplayConfig{Depth: depth})
	result, err := replayer.Run(branches)
	if err != nil {
		return result, err
	}

	if n := predictor.Outstanding(); n != 0 {
		return result, fmt.Errorf("%d prediction handles leaked", n)
	}

	return result, nil
}

func writeReport(w io.Writer, config *gshare.Config, result trace.Result) {
	stats := result.Predictor

	fmt.Fprintf(w, "Predictor: %s (history %d bits, %d-bit counters, %d thread(s))\n",
		config.IndexScheme, config.HistoryBits, config.CounterBits, config.NumThreads)
	fmt.Fprintf(w, "Branches:            %d (%d conditional, %d unconditional)\n",
		result.Branches, result.Conditional, result.Unconditional)
	fmt.Fprintf(w, "Fetches:             %d\n", result.Fetches)
	fmt.Fprintf(w, "Fetch redirects:     %d\n", result.Mispredictions)
	fmt.Fprintf(w, "Squashed branches:   %d\n", result.Squashed)
	fmt.Fprintf(w, "Target misses:       %d\n", result.TargetMisses)
	fmt.Fprintf(w, "Fetch accuracy:      %.2f%%\n", result.Accuracy())
	fmt.Fprintf(w, "Counter accuracy:    %.2f%% (%d/%d resolved)\n",
		stats.Accuracy(), stats.Correct, stats.Resolved)
}

type jsonReport struct {
	Config          *gshare.Config `json:"config"`
	Result          trace.Result   `json:"result"`
	FetchAccuracy   float64        `json:"fetch_accuracy_percent"`
	CounterAccuracy float64        `json:"counter_accuracy_percent"`
}

func writeJSONReport(w io.Writer, config *gshare.Config, result trace.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{
		Config:          config,
		Result:          result,
		FetchAccuracy:   result.Accuracy(),
		CounterAccuracy: result.Predictor.Accuracy(),
	})
}
