package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
)

var (
	validateInputs         []string
	validateSource         string
	validateThreshold      float64
	validateCheckAnomalies bool
	validateSkipSchema     bool
	validateWorkers        int
)

var validateCmd = &cobra.Command{
	Use:   "validate [input...]",
	Short: "Validate input files and store one report per file",
	Long: `Validate loads each input, runs the schema, business-rule, anomaly and
completeness checks for the given source type and stores the report.

Exit codes:
  0  every report passed
  1  at least one report has findings
  2  an input or rule document could not be used`,
	RunE: runValidate,
}

func init() {
	f := validateCmd.Flags()
	f.StringSliceVarP(&validateInputs, "input", "i", nil, "input file (repeatable)")
	f.StringVarP(&validateSource, "source", "s", "", "source type selecting schema and rules")
	f.Float64Var(&validateThreshold, "threshold", 0, "completeness threshold override (percent)")
	f.BoolVar(&validateCheckAnomalies, "check-anomalies", false, "run the session and spend anomaly checks")
	f.BoolVar(&validateSkipSchema, "skip-schema", false, "skip the required column check")
	f.IntVarP(&validateWorkers, "workers", "w", 4, "inputs validated concurrently")
	validateCmd.MarkFlagRequired("source")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rc, err := config.LoadRuleConfig(cfg.Quality)
	if err != nil {
		return withCode(exitPrecondition, err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eventBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	if eventBus != nil {
		defer eventBus.Close()
	}

	engine, err := rules.NewEngine()
	if err != nil {
		return withCode(exitPrecondition, fmt.Errorf("failed to initialize rule engine: %w", err))
	}

	runner := pipeline.NewRunner(engine, store, rc)
	if eventBus != nil {
		runner.WithBus(eventBus)
	}

	ov := domain.Overrides{
		CheckAnomalies: validateCheckAnomalies,
		SkipSchema:     validateSkipSchema,
	}
	if cmd.Flags().Changed("threshold") {
		threshold := validateThreshold
		ov.Threshold = &threshold
	}

	inputs := make([]pipeline.Input, 0, len(validateInputs)+len(args))
	for _, path := range append(validateInputs, args...) {
		inputs = append(inputs, pipeline.Input{
			Path:      path,
			Source:    domain.SourceType(validateSource),
			Overrides: ov,
		})
	}

	if len(inputs) == 0 {
		return withCode(exitPrecondition, errors.New("at least one input is required"))
	}

	ctx, cancel := signalContext()
	defer cancel()

	res, err := runner.ValidateBatch(ctx, inputs, validateWorkers)
	if err != nil {
		return withCode(exitPrecondition, err)
	}

	out := cmd.OutOrStdout()
	for _, r := range res.Results {
		if r.Err != nil {
			fmt.Fprintf(out, "%s: error: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(out, "%s: %s (completeness %.2f%%, %d errors)\n",
			r.Report.Filename, r.Report.Status, r.Report.Completeness, len(r.Report.Errors))
	}

	code := res.ExitCode()
	slog.Info("validation run finished", "inputs", len(inputs), "exit_code", code)
	if code != exitOK {
		return withCode(code, nil)
	}
	return nil
}
