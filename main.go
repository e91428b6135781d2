package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/batch"
	"github.com/insightdelivered/transcript-converter/internal/config"
	"github.com/insightdelivered/transcript-converter/internal/grades"
	"github.com/insightdelivered/transcript-converter/internal/logger"
	"github.com/insightdelivered/transcript-converter/internal/models"
	"github.com/insightdelivered/transcript-converter/internal/parser"
	"github.com/insightdelivered/transcript-converter/internal/store"
	"github.com/insightdelivered/transcript-converter/internal/transcript"
	"github.com/insightdelivered/transcript-converter/internal/writer"
)

const version = "1.0.0"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "transcript-converter",
		Short: "Academic transcript PDF to CSV converter and loader",
		Long: `Academic Transcript Converter

Parses university transcript PDFs into a student profile, course records
and a per-semester GPA history, writes them as CSV or XLSX, and loads them
into a SQLite warehouse.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./config.yaml or $TRANSCRIPT_CONFIG)")

	root.AddCommand(newParseCmd(), newBatchCmd(), newServeCmd(), newVersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// env is the wired application shared by the commands.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store // nil unless requested
	grades grades.Table
	parser *transcript.Parser
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
	e.logger.Sync()
}

// setup loads configuration and builds the parser. The warehouse is opened
// when withStore is set; the grade table then comes from dim_grade (seeded
// on first run) unless grades.path names a file.
func setup(ctx context.Context, withStore bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: log}

	if withStore {
		e.store, err = store.Open(ctx, cfg.Database.Path)
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	table, err := loadGrades(ctx, cfg.Grades, e.store)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.grades = table
	log.Debug("grade table loaded", zap.Strings("letters", table.Letters()))

	marker, err := regexp.Compile(cfg.Parser.UndergraduateMarker)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("invalid parser.undergraduate_marker: %w", err)
	}

	e.parser = transcript.New(table, log, transcript.WithPhaseSplit(parser.MarkerSplit(marker)))
	return e, nil
}

func loadGrades(ctx context.Context, cfg config.GradesConfig, s *store.Store) (grades.Table, error) {
	if cfg.Path != "" {
		table, err := grades.LoadFile(cfg.Path)
		if err != nil {
			return grades.Table{}, err
		}
		if s != nil {
			if _, err := s.ReplaceGrades(ctx, table); err != nil {
				return grades.Table{}, err
			}
		}
		return table, nil
	}

	if s == nil {
		return grades.Default(), nil
	}
	if _, err := s.SeedGrades(ctx, grades.Default()); err != nil {
		return grades.Table{}, err
	}
	return s.LoadGradeWeights(ctx)
}

func newParseCmd() *cobra.Command {
	var opts parseOptions

	cmd := &cobra.Command{
		Use:   "parse <transcript.pdf> [more.pdf ...]",
		Short: "Parse transcript PDFs and write CSV output",
		Example: `  # Convert one transcript
  transcript-converter parse transkrip/5025201001.pdf

  # Also write an Excel workbook and load into the warehouse
  transcript-converter parse --xlsx --store transkrip/*.pdf

  # Print the parsed transcript as JSON
  transcript-converter parse --json transkrip/5025201001.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != "" && len(args) > 1 {
				return errors.New("--output can only be used with a single input file")
			}

			e, err := setup(cmd.Context(), opts.store)
			if err != nil {
				return err
			}
			defer e.Close()

			for _, inputPath := range args {
				if err := processFile(cmd.Context(), e, inputPath, opts); err != nil {
					fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", inputPath, err)
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output CSV file path (defaults to input filename with .csv extension)")
	cmd.Flags().BoolVar(&opts.header, "header", true, "Include student metadata header rows in CSV")
	cmd.Flags().BoolVar(&opts.xlsx, "xlsx", false, "Also write an .xlsx workbook")
	cmd.Flags().BoolVar(&opts.store, "store", false, "Load the parsed transcript into the warehouse")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the parsed transcript as JSON instead of the summary")
	return cmd
}

type parseOptions struct {
	output string
	header bool
	xlsx   bool
	store  bool
	json   bool
}

func processFile(ctx context.Context, e *env, inputPath string, opts parseOptions) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	ext := strings.ToLower(filepath.Ext(inputPath))
	if ext != ".pdf" {
		return fmt.Errorf("expected .pdf file, got %q", ext)
	}

	if !opts.json {
		fmt.Printf("Processing: %s\n", inputPath)
	}

	t, err := e.parser.ParseFile(inputPath)
	if err != nil {
		return fmt.Errorf("parsing failed: %w", err)
	}

	outPath := opts.output
	if outPath == "" {
		outPath = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".csv"
	}
	historyPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + "-history.csv"

	w := &writer.CSVWriter{IncludeHeader: opts.header}
	if err := w.WriteToFile(outPath, t); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}
	if err := w.WriteHistoryToFile(historyPath, t); err != nil {
		return fmt.Errorf("CSV write failed: %w", err)
	}

	var xlsxPath string
	if opts.xlsx {
		xlsxPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".xlsx"
		if err := (&writer.XLSXWriter{}).WriteToFile(xlsxPath, t); err != nil {
			return fmt.Errorf("XLSX write failed: %w", err)
		}
	}

	var stats store.LoadStats
	if opts.store {
		stats, err = e.store.LoadTranscript(ctx, t)
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
	}

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	}

	printSummary(t)
	fmt.Printf("  Output: %s, %s\n", outPath, historyPath)
	if xlsxPath != "" {
		fmt.Printf("  Workbook: %s\n", xlsxPath)
	}
	if opts.store {
		fmt.Printf("  Stored: %d course(s), %d skipped, %d semester(s)\n", stats.Loaded, stats.Skipped, stats.Semesters)
	}
	fmt.Println("  Done.")
	return nil
}

func printSummary(t *models.Transcript) {
	p := t.Student
	fmt.Printf("  Student: %s / %s\n", p.ID, p.Name)
	if p.Status != "" {
		fmt.Printf("  Status: %s\n", p.Status)
	}
	fmt.Printf("  Credits: %d attempted, %d passed\n", p.CreditsAttempted, p.CreditsPassed)
	fmt.Printf("  Cumulative GPA: %.2f\n", p.CumulativeGPA)
	fmt.Printf("  Found %d course(s) over %d semester(s)\n", len(t.Courses), len(t.History))

	for _, h := range t.History {
		fmt.Printf("    %d %-5s  GPA %.2f  cumulative %.2f  (%d credits)\n",
			h.Year, h.Term.Label(), h.TermGPA, h.CumulativeGPA, h.TermCredits)
	}
	for _, w := range t.Warnings {
		if w.CourseCode != "" {
			fmt.Printf("  Warning: %s %s: %s\n", w.Kind, w.CourseCode, w.Detail)
		} else {
			fmt.Printf("  Warning: %s: %s\n", w.Kind, w.Detail)
		}
	}
}

func newBatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "batch [folder]",
		Short: "Parse every PDF in a folder and load the results into the warehouse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			folder := e.cfg.Batch.Folder
			if len(args) == 1 {
				folder = args[0]
			}

			fmt.Println("=== Transcript ETL ===")
			fmt.Printf("Folder: %s\n", folder)
			stats, err := e.runner().Run(cmd.Context(), folder)
			if stats != nil {
				printBatchSummary(stats)
			}
			return err
		},
	}
}

func (e *env) runner() *batch.Runner {
	return &batch.Runner{
		Parser:  e.parser,
		Store:   e.store,
		Logger:  e.logger,
		Workers: e.cfg.Batch.Workers,
		Timeout: e.cfg.Batch.DocTimeout,
	}
}

func printBatchSummary(stats *batch.Stats) {
	for _, f := range stats.Files {
		if f.Err != nil {
			fmt.Printf("  FAILED  %s: %v\n", f.File, f.Err)
			continue
		}
		fmt.Printf("  OK      %s: %s, %d course(s), %d warning(s)\n", f.File, f.StudentID, f.Courses, f.Warnings)
	}
	fmt.Println("=== Summary ===")
	fmt.Printf("Run: %s\n", stats.RunID)
	fmt.Printf("Discovered: %d\n", stats.Discovered)
	fmt.Printf("Processed:  %d\n", stats.Processed)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Warnings:   %d\n", stats.Warnings)
	fmt.Printf("Duration:   %s\n", stats.Duration.Round(time.Millisecond))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("transcript-converter v%s\n", version)
		},
	}
}
