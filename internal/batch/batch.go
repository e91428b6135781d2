package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/models"
	"github.com/insightdelivered/transcript-converter/internal/store"
)

// FileParser parses one transcript document.
type FileParser interface {
	ParseFile(path string) (*models.Transcript, error)
}

// Loader writes a parsed transcript to the warehouse.
type Loader interface {
	LoadTranscript(ctx context.Context, t *models.Transcript) (store.LoadStats, error)
}

// FileResult is the outcome for one document.
type FileResult struct {
	File      string
	StudentID string
	Courses   int
	Warnings  int
	Load      store.LoadStats
	Duration  time.Duration
	Err       error
}

// Stats summarizes a run.
type Stats struct {
	RunID      uuid.UUID
	Discovered int
	Processed  int
	Failed     int
	Warnings   int
	Duration   time.Duration
	Files      []FileResult
}

// Runner parses every PDF in a folder and loads the results.
type Runner struct {
	Parser  FileParser
	Store   Loader // nil disables loading
	Logger  *zap.Logger
	Workers int
	Timeout time.Duration // per document, zero disables
}

// ListPDFs returns the PDF files directly inside folder, sorted by name.
func ListPDFs(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read folder %q: %w", folder, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(folder, e.Name()))
	}
	return files, nil
}

// Run processes folder. Failures of individual documents are counted in the
// returned stats; an error is returned only when the folder cannot be read
// or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, folder string) (*Stats, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	stats := &Stats{RunID: uuid.New()}
	logger = logger.With(zap.String("run_id", stats.RunID.String()))

	files, err := ListPDFs(folder)
	if err != nil {
		return stats, err
	}
	stats.Discovered = len(files)
	logger.Info("batch run started", zap.String("folder", folder), zap.Int("files", len(files)))
	if len(files) == 0 {
		logger.Warn("no PDF files found", zap.String("folder", folder))
		return stats, nil
	}

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	results := make([]FileResult, len(files))
	done := make([]bool, len(files))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.processFile(ctx, logger, files[i])
				done[i] = true
			}
		}()
	}

feed:
	for i := range files {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i, res := range results {
		if !done[i] {
			continue
		}
		stats.Files = append(stats.Files, res)
		if res.Err != nil {
			stats.Failed++
			continue
		}
		stats.Processed++
		stats.Warnings += res.Warnings
	}
	stats.Duration = time.Since(start)

	logger.Info("batch run finished",
		zap.Int("discovered", stats.Discovered),
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed),
		zap.Int("warnings", stats.Warnings),
		zap.Duration("duration", stats.Duration),
	)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *Runner) processFile(ctx context.Context, logger *zap.Logger, path string) FileResult {
	start := time.Now()
	res := FileResult{File: filepath.Base(path)}
	logger = logger.With(zap.String("file", res.File))

	t, err := r.parse(ctx, path)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		logger.Error("failed to parse transcript", zap.Error(err))
		return res
	}
	res.StudentID = t.Student.ID
	res.Courses = len(t.Courses)
	res.Warnings = len(t.Warnings)

	if r.Store != nil {
		load, err := r.Store.LoadTranscript(ctx, t)
		res.Load = load
		if err != nil {
			res.Err = fmt.Errorf("failed to load transcript: %w", err)
			res.Duration = time.Since(start)
			logger.Error("failed to load transcript", zap.String("student", t.Student.ID), zap.Error(err))
			return res
		}
		logger.Info("transcript loaded",
			zap.String("student", t.Student.ID),
			zap.Int("loaded", load.Loaded),
			zap.Int("skipped", load.Skipped),
			zap.Int("semesters", load.Semesters),
		)
	}

	res.Duration = time.Since(start)
	return res
}

type parseResult struct {
	t   *models.Transcript
	err error
}

// parse runs the parser under the per-document timeout. The parser itself is
// not interruptible, so on timeout its goroutine is left to finish on its own.
func (r *Runner) parse(ctx context.Context, path string) (*models.Transcript, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	ch := make(chan parseResult, 1)
	go func() {
		t, err := r.Parser.ParseFile(path)
		ch <- parseResult{t: t, err: err}
	}()

	select {
	case res := <-ch:
		return res.t, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), ctx.Err())
	}
}
