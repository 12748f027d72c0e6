package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/mapping"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/reconciliation"
	"github.com/Ramsey-B/fern/pkg/schema"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// errExceptionsFound makes the process exit with status 2 after a report was printed
var errExceptionsFound = errors.New("reconciliation produced exceptions")

type options struct {
	verbose bool
	sheet   string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "fern",
		Short:         "Reconcile two tabular files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline progress to stderr")
	root.PersistentFlags().StringVar(&opts.sheet, "sheet", "", "excel sheet to read (default is the active sheet)")

	root.AddCommand(
		newInferCommand(opts),
		newAutoMatchCommand(opts),
		newReconcileCommand(opts),
	)
	return root
}

func newInferCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "infer <file>",
		Short: "Print the columns, column types and row count of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := schema.Infer(cmd.Context(), f, args[0], schema.Options{Sheet: opts.sheet})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), s)
		},
	}
}

func newAutoMatchCommand(opts *options) *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "automatch <file1> <file2>",
		Short: "Suggest a field mapping between two files as a run config",
		Example: `  fern automatch bank.csv ledger.xlsx
  fern automatch bank.csv ledger.csv --threshold 0.7`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file1, err := inferFile(cmd, args[0], models.SideSource1, opts)
			if err != nil {
				return err
			}
			file2, err := inferFile(cmd, args[1], models.SideSource2, opts)
			if err != nil {
				return err
			}

			cfg := mapping.DefaultConfig()
			cfg.Threshold = threshold
			fm := mapping.NewMapper(newLogger(opts), cfg).AutoMatch(ctx, file1.Columns, file2.Columns)
			mapping.ApplyColumnTypes(fm, file1, file2)

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(runConfig{Mapping: fm.Pairs}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", mapping.DefaultConfig().Threshold, "similarity a column pair must exceed")
	return cmd
}

func newReconcileCommand(opts *options) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reconcile <file1> <file2>",
		Short: "Run a reconciliation and print its report",
		Long: `Reconcile matches the rows of two files with the mapping from --config,
evaluates its rules and prints a JSON report. The exit status is 2 when the run
produced exceptions.`,
		Example: `  fern automatch bank.csv ledger.csv > run.yaml
  fern reconcile --config run.yaml bank.csv ledger.csv`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}
			cfg, err := parseRunConfig(raw)
			if err != nil {
				return err
			}

			report, err := reconcileFiles(cmd, opts, cfg, args[0], args[1])
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Status == models.RunStatusException {
				return errExceptionsFound
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "run.yaml", "yaml file with the mapping and rules")
	return cmd
}

// report is the CLI rendition of a finished run
type report struct {
	Status     models.RunStatus          `json:"status"`
	Stats      matching.Stats            `json:"stats"`
	Exceptions []models.ExceptionRecord  `json:"exceptions"`
	Failures   []models.ValidationResult `json:"validation_failures"`
}

func reconcileFiles(cmd *cobra.Command, opts *options, cfg *runConfig, path1, path2 string) (*report, error) {
	ctx := cmd.Context()
	logger := newLogger(opts)

	source1, err := openSource(path1, models.SideSource1, opts)
	if err != nil {
		return nil, err
	}
	defer source1.Close()
	source2, err := openSource(path2, models.SideSource2, opts)
	if err != nil {
		return nil, err
	}
	defer source2.Close()

	validatorConfig := validation.DefaultConfig()
	if cfg.RatioTolerance != nil {
		validatorConfig.RatioTolerance = *cfg.RatioTolerance
	}
	validator := validation.NewEngine(logger, validation.NewRegistry(expressions.NewEvaluator()), validatorConfig)
	pipeline := reconciliation.NewPipeline(logger, matching.NewEngine(logger, matching.DefaultConfig()), validator)

	fm := cfg.FieldMapping()
	rules, err := pipeline.Prepare(fm, source1.Columns(), source2.Columns(), cfg.ValidationRules())
	if err != nil {
		return nil, err
	}

	outcome, err := pipeline.Execute(ctx, fm, rules, source1, source2)
	if err != nil {
		return nil, err
	}

	status := models.RunStatusComplete
	if len(outcome.Exceptions) > 0 {
		status = models.RunStatusException
	}
	return &report{
		Status:     status,
		Stats:      outcome.Match.Stats,
		Exceptions: outcome.Exceptions,
		Failures:   outcome.Failures,
	}, nil
}

type fileSource struct {
	*schema.RowIterator
	file *os.File
}

func (s *fileSource) Close() error {
	_ = s.RowIterator.Close()
	return s.file.Close()
}

func openSource(path string, side models.Side, opts *options) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := schema.Open(f, path, schema.Options{Sheet: opts.sheet})
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSource{RowIterator: schema.NewRowIterator(reader, side), file: f}, nil
}

func inferFile(cmd *cobra.Command, path string, side models.Side, opts *options) (*models.SourceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := schema.Infer(cmd.Context(), f, path, schema.Options{Sheet: opts.sheet})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &models.SourceFile{
		Name:        path,
		Side:        side,
		Format:      s.Format,
		Columns:     s.Columns,
		ColumnTypes: s.ColumnTypes,
		RowCount:    s.RowCount,
	}, nil
}

func newLogger(opts *options) ectologger.Logger {
	if !opts.verbose {
		return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	}
	z, err := zap.NewDevelopment()
	if err != nil {
		return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	}
	return zapadapter.NewZapEctoLogger(z, nil)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
