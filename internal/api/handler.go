package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/extractor"
	"github.com/insightdelivered/transcript-converter/internal/grades"
	"github.com/insightdelivered/transcript-converter/internal/models"
	"github.com/insightdelivered/transcript-converter/internal/store"
	"github.com/insightdelivered/transcript-converter/internal/transcript"
	"github.com/insightdelivered/transcript-converter/internal/writer"
)

// PageBreak separates pages in pre-extracted text sent by the web client.
const PageBreak = "\n---PAGE_BREAK---\n"

// TranscriptParser parses transcripts from files or extracted page text.
type TranscriptParser interface {
	ParseFile(path string) (*models.Transcript, error)
	ParseText(pages []string) (*models.Transcript, error)
}

// Warehouse is the subset of the store used by the API.
type Warehouse interface {
	LoadTranscript(ctx context.Context, t *models.Transcript) (store.LoadStats, error)
	GetStudent(ctx context.Context, studentID string) (models.StudentProfile, error)
	ListCourses(ctx context.Context, studentID string) ([]models.CourseRecord, error)
	ListHistory(ctx context.Context, studentID string) ([]models.SemesterHistoryEntry, error)
}

// ParseResponse is the JSON response from the /api/parse endpoint.
type ParseResponse struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Stage      string             `json:"stage,omitempty"`
	Transcript *models.Transcript `json:"transcript,omitempty"`
	CSV        string             `json:"csv,omitempty"`
	HistoryCSV string             `json:"historyCsv,omitempty"`
	Stored     *store.LoadStats   `json:"stored,omitempty"`
	Cached     bool               `json:"cached"`
	Version    string             `json:"version,omitempty"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Parser    TranscriptParser
	Grades    grades.Table
	Store     Warehouse    // nil disables storage and the student endpoints
	Cache     *cache.Cache // nil disables result caching
	Logger    *zap.Logger
	StaticDir string
	Version   string
}

// NewApp creates a fiber app with the API routes and middleware installed.
func (h *Handler) NewApp(bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          h.handleError,
	})
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Use(recover.New())
	app.Use(h.requestLogger)
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	api := app.Group("/api")
	api.Get("/health", h.handleHealth)
	api.Get("/grades", h.handleGrades)
	api.Post("/parse", h.handleParse)
	api.Get("/students/:id", h.handleStudent)
	api.Get("/students/:id/history", h.handleHistory)
	api.Get("/students/:id/courses", h.handleCourses)

	// Serve the web client; unknown non-API paths fall back to index.html.
	if h.StaticDir != "" {
		app.Static("/", h.StaticDir)
		app.Get("/*", func(c *fiber.Ctx) error {
			if strings.HasPrefix(c.Path(), "/api/") {
				return fiber.ErrNotFound
			}
			return c.SendFile(filepath.Join(h.StaticDir, "index.html"))
		})
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) requestLogger(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)
	c.Locals("requestID", id)

	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	h.logger().Info("request",
		zap.String("request_id", id),
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(start)),
	)
	return err
}

func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return writeError(c, code, err.Error(), "")
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": h.Version,
		"engine":  "fiber",
	})
}

func (h *Handler) handleGrades(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"grades": h.Grades.Map()})
}

func (h *Handler) handleParse(c *fiber.Ctx) error {
	format := strings.ToLower(c.FormValue("format"))
	if format != "" && format != "csv" && format != "xlsx" && format != "json" {
		return writeError(c, fiber.StatusBadRequest, fmt.Sprintf("Unknown format: %q. Use json, csv or xlsx.", format), "")
	}
	includeHeader := c.FormValue("header") != "false"
	storeResult := c.FormValue("store") == "true"

	if storeResult && h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Storage is not configured.", "")
	}

	t, cached, err := h.parseRequest(c)
	if err != nil {
		var pe *transcript.ParseError
		var re *requestError
		switch {
		case errors.As(err, &re):
			return writeError(c, fiber.StatusBadRequest, re.msg, "")
		case errors.As(err, &pe):
			return writeError(c, fiber.StatusUnprocessableEntity, fmt.Sprintf("Parsing failed: %v", pe.Err), string(pe.Stage))
		default:
			h.logger().Error("parse request failed", zap.Error(err))
			return writeError(c, fiber.StatusInternalServerError, err.Error(), "")
		}
	}

	var stored *store.LoadStats
	if storeResult {
		stats, err := h.Store.LoadTranscript(c.UserContext(), t)
		if err != nil {
			h.logger().Error("failed to store transcript", zap.String("student", t.Student.ID), zap.Error(err))
			return writeError(c, fiber.StatusInternalServerError, "Failed to store transcript.", "")
		}
		stored = &stats
	}

	base := strings.TrimSuffix(t.Source, filepath.Ext(t.Source))
	if base == "" {
		base = t.Student.ID
	}

	csvWriter := &writer.CSVWriter{IncludeHeader: includeHeader}
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := csvWriter.Write(&buf, t); err != nil {
			return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err), "")
		}
		c.Attachment(base + ".csv")
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	case "xlsx":
		var buf bytes.Buffer
		if err := (&writer.XLSXWriter{}).Write(&buf, t); err != nil {
			return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("XLSX generation failed: %v", err), "")
		}
		c.Attachment(base + ".xlsx")
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		return c.Send(buf.Bytes())
	}

	var coursesBuf, historyBuf bytes.Buffer
	if err := csvWriter.Write(&coursesBuf, t); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err), "")
	}
	if err := csvWriter.WriteHistory(&historyBuf, t); err != nil {
		return writeError(c, fiber.StatusInternalServerError, fmt.Sprintf("CSV generation failed: %v", err), "")
	}

	return c.JSON(ParseResponse{
		Success:    true,
		Transcript: t,
		CSV:        coursesBuf.String(),
		HistoryCSV: historyBuf.String(),
		Stored:     stored,
		Cached:     cached,
		Version:    h.Version,
	})
}

// requestError is a client mistake reported as 400.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// parseRequest parses the uploaded PDF, or the pre-extracted page text sent
// by the web client when it is readable or no file was sent. Results are
// cached by the SHA-256 of the input.
func (h *Handler) parseRequest(c *fiber.Ctx) (*models.Transcript, bool, error) {
	fh, fileErr := c.FormFile("file")

	if text := c.FormValue("extractedText"); strings.TrimSpace(text) != "" {
		var pages []string
		for _, page := range strings.Split(text, PageBreak) {
			if page = strings.TrimSpace(page); page != "" {
				pages = append(pages, page)
			}
		}

		if fileErr != nil || extractor.IsReadableText(pages) {
			key := cacheKey("text", []byte(text))
			if t, ok := h.cached(key); ok {
				return t, true, nil
			}
			t, err := h.Parser.ParseText(pages)
			if err != nil {
				return nil, false, err
			}
			h.remember(key, t)
			return t, false, nil
		}
		h.logger().Debug("extracted text is not readable, parsing uploaded file instead")
	}

	if fileErr != nil {
		return nil, false, &requestError{msg: "No file uploaded. Use form field 'file' or 'extractedText'."}
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		return nil, false, &requestError{msg: "Only PDF files are supported."}
	}

	data, err := readUpload(fh)
	if err != nil {
		return nil, false, err
	}
	key := cacheKey("pdf", data)
	if t, ok := h.cached(key); ok {
		return withSource(t, fh.Filename), true, nil
	}

	tmpFile, err := os.CreateTemp("", "transcript-*.pdf")
	if err != nil {
		return nil, false, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return nil, false, fmt.Errorf("failed to save uploaded file: %w", err)
	}
	tmpFile.Close()

	t, err := h.Parser.ParseFile(tmpFile.Name())
	if err != nil {
		return nil, false, err
	}
	// The cache is keyed by content only, so the filename is set per request.
	h.remember(key, t)
	return withSource(t, fh.Filename), false, nil
}

func withSource(t *models.Transcript, filename string) *models.Transcript {
	out := *t
	out.Source = filepath.Base(filename)
	return &out
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func cacheKey(kind string, data []byte) string {
	sum := sha256.Sum256(data)
	return kind + ":" + hex.EncodeToString(sum[:])
}

func (h *Handler) cached(key string) (*models.Transcript, bool) {
	if h.Cache == nil {
		return nil, false
	}
	v, ok := h.Cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*models.Transcript), true
}

func (h *Handler) remember(key string, t *models.Transcript) {
	if h.Cache != nil {
		h.Cache.Set(key, t, cache.DefaultExpiration)
	}
}

func (h *Handler) handleStudent(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Storage is not configured.", "")
	}
	p, err := h.Store.GetStudent(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(p)
}

func (h *Handler) handleHistory(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Storage is not configured.", "")
	}
	id := c.Params("id")
	if _, err := h.Store.GetStudent(c.UserContext(), id); err != nil {
		return h.storeError(c, err)
	}
	entries, err := h.Store.ListHistory(c.UserContext(), id)
	if err != nil {
		return h.storeError(c, err)
	}
	if entries == nil {
		entries = []models.SemesterHistoryEntry{}
	}
	return c.JSON(fiber.Map{"studentId": id, "history": entries})
}

func (h *Handler) handleCourses(c *fiber.Ctx) error {
	if h.Store == nil {
		return writeError(c, fiber.StatusServiceUnavailable, "Storage is not configured.", "")
	}
	id := c.Params("id")
	if _, err := h.Store.GetStudent(c.UserContext(), id); err != nil {
		return h.storeError(c, err)
	}
	courses, err := h.Store.ListCourses(c.UserContext(), id)
	if err != nil {
		return h.storeError(c, err)
	}
	if courses == nil {
		courses = []models.CourseRecord{}
	}
	return c.JSON(fiber.Map{"studentId": id, "courses": courses})
}

func (h *Handler) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return writeError(c, fiber.StatusNotFound, "Student not found.", "")
	}
	h.logger().Error("store query failed", zap.Error(err))
	return writeError(c, fiber.StatusInternalServerError, "Store query failed.", "")
}

func writeError(c *fiber.Ctx, status int, msg, stage string) error {
	return c.Status(status).JSON(ParseResponse{
		Success: false,
		Error:   msg,
		Stage:   stage,
	})
}
