package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/insightdelivered/transcript-converter/internal/grades"
	"github.com/insightdelivered/transcript-converter/internal/store"
	"github.com/insightdelivered/transcript-converter/internal/transcript"
)

const pageOne = `NRP / Nama 5025201001 / Budi Santoso
SKS Tempuh / SKS Lulus 10 / 10
Status Aktif
Tahap: Persiapan
KM184101 Matematika I 3 2020/Gs/A A
SF184102 Fisika I 4 2020/Gs/A AB`

const pageTwo = `KM184201 Matematika II 3 2020/Gn/A B
IPK 3.50`

func setupTestApp(t *testing.T, withStore bool) (*fiber.App, *Handler) {
	t.Helper()

	h := &Handler{
		Parser: transcript.New(grades.Default(), zap.NewNop(),
			transcript.WithExtractor(func(string) ([]string, error) {
				return []string{pageOne, pageTwo}, nil
			}),
		),
		Grades:  grades.Default(),
		Cache:   cache.New(time.Minute, time.Minute),
		Version: "test",
	}
	if withStore {
		s, err := store.Open(context.Background(), ":memory:")
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		if _, err := s.SeedGrades(context.Background(), grades.Default()); err != nil {
			t.Fatal(err)
		}
		h.Store = s
	}
	return h.NewApp(4 << 20), h
}

func multipartRequest(t *testing.T, fields map[string]string, fileName string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/parse", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func decodeParse(t *testing.T, body []byte) ParseResponse {
	t.Helper()
	var result ParseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v\n%s", err, body)
	}
	return result
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, body := doRequest(t, app, httptest.NewRequest("GET", "/api/health", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]string
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", result["status"])
	}
	if result["engine"] != "fiber" {
		t.Errorf("expected engine=fiber, got %q", result["engine"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestGradesEndpoint(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, body := doRequest(t, app, httptest.NewRequest("GET", "/api/grades", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Grades map[string]float64 `json:"grades"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Grades) != 7 || result.Grades["BC"] != 2.5 {
		t.Errorf("grades: got %v", result.Grades)
	}
}

func TestParseEndpointPrefersReadableText(t *testing.T) {
	h := &Handler{
		Parser: transcript.New(grades.Default(), zap.NewNop(),
			transcript.WithExtractor(func(string) ([]string, error) {
				t.Error("file should not be extracted when readable text is supplied")
				return nil, nil
			}),
		),
	}
	app := h.NewApp(4 << 20)

	fields := map[string]string{"extractedText": pageOne + PageBreak + pageTwo}
	resp, body := doRequest(t, app, multipartRequest(t, fields, "budi.pdf", []byte("%PDF")))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	app, _ := setupTestApp(t, false)

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, _ := doRequest(t, app, req)
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID: got %q, want abc-123", got)
	}
}

func TestParseEndpointRequiresInput(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, body := doRequest(t, app, multipartRequest(t, nil, "", nil))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	if decodeParse(t, body).Success {
		t.Error("expected success=false")
	}
}

func TestParseEndpointRejectsNonPDF(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, _ := doRequest(t, app, multipartRequest(t, nil, "transcript.docx", []byte("x")))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestParseEndpointRejectsUnknownFormat(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, _ := doRequest(t, app, multipartRequest(t, map[string]string{"format": "pdf"}, "budi.pdf", []byte("%PDF")))
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestParseEndpointFile(t *testing.T) {
	app, _ := setupTestApp(t, false)

	resp, body := doRequest(t, app, multipartRequest(t, nil, "budi.pdf", []byte("%PDF-1.4 fake")))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	result := decodeParse(t, body)
	if !result.Success || result.Transcript == nil {
		t.Fatalf("unexpected response: %+v", result)
	}
	if result.Transcript.Source != "budi.pdf" {
		t.Errorf("source: got %q", result.Transcript.Source)
	}
	if len(result.Transcript.Courses) != 3 || len(result.Transcript.History) != 2 {
		t.Errorf("courses=%d history=%d", len(result.Transcript.Courses), len(result.Transcript.History))
	}
	if !strings.Contains(result.HistoryCSV, "2020,Genap,3.00,3.50,3") {
		t.Errorf("history CSV: %q", result.HistoryCSV)
	}
	if result.Cached {
		t.Error("first request should not be cached")
	}

	_, body = doRequest(t, app, multipartRequest(t, nil, "budi.pdf", []byte("%PDF-1.4 fake")))
	if !decodeParse(t, body).Cached {
		t.Error("second identical upload should be served from cache")
	}
}

func TestParseEndpointCachedFileKeepsRequestFilename(t *testing.T) {
	app, _ := setupTestApp(t, false)
	pdf := []byte("%PDF-1.4 same bytes")

	_, body := doRequest(t, app, multipartRequest(t, nil, "first.pdf", pdf))
	if got := decodeParse(t, body).Transcript.Source; got != "first.pdf" {
		t.Fatalf("source: got %q, want first.pdf", got)
	}

	_, body = doRequest(t, app, multipartRequest(t, nil, "second.pdf", pdf))
	result := decodeParse(t, body)
	if !result.Cached {
		t.Fatal("expected a cache hit")
	}
	if result.Transcript.Source != "second.pdf" {
		t.Errorf("source: got %q, want second.pdf", result.Transcript.Source)
	}

	req := multipartRequest(t, map[string]string{"format": "csv"}, "third.pdf", pdf)
	resp, _ := doRequest(t, app, req)
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "third.csv") {
		t.Errorf("content disposition: got %q", cd)
	}
}

func TestParseEndpointExtractedText(t *testing.T) {
	app, _ := setupTestApp(t, false)

	fields := map[string]string{"extractedText": pageOne + PageBreak + pageTwo}
	resp, body := doRequest(t, app, multipartRequest(t, fields, "", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if got := decodeParse(t, body).Transcript.Student.ID; got != "5025201001" {
		t.Errorf("student id: got %q", got)
	}
}

func TestParseEndpointFailureReportsStage(t *testing.T) {
	app, _ := setupTestApp(t, false)

	fields := map[string]string{"extractedText": pageTwo}
	resp, body := doRequest(t, app, multipartRequest(t, fields, "", nil))
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	result := decodeParse(t, body)
	if result.Stage != string(transcript.StageHeader) {
		t.Errorf("stage: got %q, want %q", result.Stage, transcript.StageHeader)
	}
}

func TestParseEndpointDownloads(t *testing.T) {
	app, _ := setupTestApp(t, false)

	tests := []struct {
		format      string
		contentType string
		disposition string
	}{
		{"csv", "text/csv", "budi.csv"},
		{"xlsx", "spreadsheetml", "budi.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			req := multipartRequest(t, map[string]string{"format": tt.format}, "budi.pdf", []byte("%PDF"))
			resp, body := doRequest(t, app, req)
			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, tt.contentType) {
				t.Errorf("content type: got %q", ct)
			}
			if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, tt.disposition) {
				t.Errorf("content disposition: got %q", cd)
			}
			if len(body) == 0 {
				t.Error("expected a body")
			}
		})
	}
}

func TestParseEndpointStoreWithoutWarehouse(t *testing.T) {
	app, _ := setupTestApp(t, false)

	req := multipartRequest(t, map[string]string{"store": "true"}, "budi.pdf", []byte("%PDF"))
	resp, _ := doRequest(t, app, req)
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestStoreAndQueryStudent(t *testing.T) {
	app, _ := setupTestApp(t, true)

	req := multipartRequest(t, map[string]string{"store": "true"}, "budi.pdf", []byte("%PDF"))
	resp, body := doRequest(t, app, req)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	stored := decodeParse(t, body).Stored
	if stored == nil || stored.Loaded != 3 || stored.Semesters != 2 {
		t.Fatalf("stored stats: got %+v", stored)
	}

	resp, body = doRequest(t, app, httptest.NewRequest("GET", "/api/students/5025201001", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("student: expected 200, got %d", resp.StatusCode)
	}
	var student map[string]any
	json.Unmarshal(body, &student)
	if student["name"] != "Budi Santoso" {
		t.Errorf("student name: got %v", student["name"])
	}

	resp, body = doRequest(t, app, httptest.NewRequest("GET", "/api/students/5025201001/history", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("history: expected 200, got %d", resp.StatusCode)
	}
	var history struct {
		History []map[string]any `json:"history"`
	}
	json.Unmarshal(body, &history)
	if len(history.History) != 2 {
		t.Errorf("history entries: got %d, want 2", len(history.History))
	}

	resp, body = doRequest(t, app, httptest.NewRequest("GET", "/api/students/5025201001/courses", nil))
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("courses: expected 200, got %d", resp.StatusCode)
	}
	var courses struct {
		Courses []map[string]any `json:"courses"`
	}
	json.Unmarshal(body, &courses)
	if len(courses.Courses) != 3 {
		t.Errorf("courses: got %d, want 3", len(courses.Courses))
	}
}

func TestStudentNotFound(t *testing.T) {
	app, _ := setupTestApp(t, true)

	for _, path := range []string{"/api/students/404", "/api/students/404/history", "/api/students/404/courses"} {
		resp, _ := doRequest(t, app, httptest.NewRequest("GET", path, nil))
		if resp.StatusCode != fiber.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}
