package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/playscore"
)

const pianoDoc = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="4.0">
  <part-list>
    <score-part id="P1"><part-name>Piano</part-name></score-part>
  </part-list>
  <part id="P1">
    <measure number="1">
      <attributes><divisions>1</divisions></attributes>
      <note><rest measure="yes"/><duration>4</duration></note>
    </measure>
  </part>
</score-partwise>
`

const violinDoc = `<?xml version="1.0" encoding="UTF-8"?>
<score-partwise version="4.0">
  <part-list>
    <score-part id="P1"><part-name>Violin</part-name></score-part>
  </part-list>
  <part id="P1">
    <measure number="1">
      <attributes><divisions>1</divisions></attributes>
      <note><rest measure="yes"/><duration>4</duration></note>
    </measure>
  </part>
</score-partwise>
`

type upload struct {
	name string
	data []byte
}

type testEnv struct {
	server  *Server
	handler http.Handler
	tempDir string
}

func quietLogger() *logger.Logger {
	return logger.New(logger.Config{Level: logger.FATAL, Output: io.Discard})
}

func setupTestServer(t *testing.T, withHistory bool) *testEnv {
	t.Helper()

	tempDir := t.TempDir()
	opts := []playscore.Option{
		playscore.WithTempDir(tempDir),
		playscore.WithLogger(quietLogger()),
	}
	if withHistory {
		opts = append(opts, playscore.WithDBPath(filepath.Join(t.TempDir(), "history.sqlite3")))
	}
	svc, err := playscore.NewService(opts...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	s := NewServer(svc, &ServerConfig{
		Port:           "0",
		TempDir:        tempDir,
		Engine:         playscore.EngineNative,
		MaxUploadBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
	})
	s.log = quietLogger()
	return &testEnv{server: s, handler: s.setupRoutes(), tempDir: tempDir}
}

func archiveBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := f.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, field string, files []upload, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(f.data); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

// waitForCleanup polls until no upload scratch directories remain.
func waitForCleanup(t *testing.T, dir string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		matches, _ := filepath.Glob(filepath.Join(dir, "playscore-upload-*"))
		if len(matches) == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("scratch directories left behind: %v", matches)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthAndRoot(t *testing.T) {
	env := setupTestServer(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health status = %d", rec.Code)
	}
	var health HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	var info ServiceInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Engine != playscore.EngineNative || info.Endpoints["convert"] == "" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestConvertSingleUpload(t *testing.T) {
	env := setupTestServer(t, false)

	req := multipartRequest(t, "/api/convert", "files", []upload{
		{"Song One.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc})},
	}, nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "Song_One.musicxml") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if rec.Body.String() != pianoDoc {
		t.Errorf("body is not the embedded MusicXML:\n%s", rec.Body.String())
	}
	waitForCleanup(t, env.tempDir)
}

func TestConvertMultipleUploadsZip(t *testing.T) {
	env := setupTestServer(t, false)

	req := multipartRequest(t, "/convert", "files", []upload{
		{"a.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc})},
		{"b.playscore", archiveBytes(t, map[string]string{"doc.xml": violinDoc})},
		{"broken.playscore", []byte("not a zip")},
	}, nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != zipContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, ZipOutputName) {
		t.Errorf("Content-Disposition = %q", cd)
	}

	body := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "a.musicxml,b.musicxml" {
		t.Errorf("zip entries = %v, want only the converted outputs", names)
	}
	waitForCleanup(t, env.tempDir)
}

func TestConvertMerge(t *testing.T) {
	env := setupTestServer(t, false)

	req := multipartRequest(t, "/api/convert", "files", []upload{
		{"a.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc})},
		{"b.playscore", archiveBytes(t, map[string]string{"doc.xml": violinDoc})},
	}, map[string]string{"merge": "on"})
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, playscore.MergedOutputName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body := rec.Body.String()
	piano := strings.Index(body, "<part-name>Piano</part-name>")
	violin := strings.Index(body, "<part-name>Violin</part-name>")
	if piano < 0 || violin < 0 || piano > violin {
		t.Errorf("merged score should list Piano then Violin:\n%s", body)
	}
	waitForCleanup(t, env.tempDir)
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name     string
		files    []upload
		fields   map[string]string
		status   int
		wantCode string
	}{
		{
			name:     "no payload",
			files:    []upload{{"empty.playscore", archiveBytes(t, map[string]string{"readme.txt": "hi"})}},
			status:   http.StatusUnprocessableEntity,
			wantCode: string(playscore.CodeNoUsablePayload),
		},
		{
			name:     "corrupt",
			files:    []upload{{"bad.playscore", []byte("garbage")}},
			status:   http.StatusUnprocessableEntity,
			wantCode: string(playscore.CodeCorruptArchive),
		},
		{
			name:     "merge nothing parsable",
			files:    []upload{{"bad.playscore", []byte("garbage")}, {"empty.playscore", archiveBytes(t, map[string]string{"a.txt": "x"})}},
			fields:   map[string]string{"merge": "true"},
			status:   http.StatusUnprocessableEntity,
			wantCode: string(playscore.CodeNoParsableScores),
		},
		{
			name:     "no files",
			status:   http.StatusBadRequest,
			wantCode: "no_files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, false)
			rec := env.do(multipartRequest(t, "/api/convert", "files", tt.files, tt.fields))

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			raw := rec.Body.String()
			if strings.Contains(raw, env.tempDir) {
				t.Errorf("error response leaks a filesystem path: %s", raw)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
			if resp.Code != tt.status || resp.Message == "" {
				t.Errorf("unexpected error body: %+v", resp)
			}
			waitForCleanup(t, env.tempDir)
		})
	}
}

func TestConvertUploadTooLarge(t *testing.T) {
	env := setupTestServer(t, false)
	env.server.config.MaxUploadBytes = 512

	req := multipartRequest(t, "/api/convert", "files", []upload{
		{"big.playscore", bytes.Repeat([]byte("x"), 4096)},
	}, nil)
	rec := env.do(req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "upload_too_large" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestInspectUpload(t *testing.T) {
	env := setupTestServer(t, false)

	req := multipartRequest(t, "/api/inspect", "file", []upload{
		{"song.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc, "thumb.png": "png"})},
	}, nil)
	rec := env.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp InspectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Kind != "musicxml" || resp.Entry != "doc.xml" || resp.File != "song.playscore" {
		t.Errorf("unexpected classification: %+v", resp)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("entries = %v", resp.Entries)
	}
	waitForCleanup(t, env.tempDir)
}

func TestConversionHistory(t *testing.T) {
	env := setupTestServer(t, true)

	env.do(multipartRequest(t, "/api/convert", "files", []upload{
		{"a.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc})},
	}, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversions?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ListConversionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	got := resp.Conversions[0]
	if got.Result != "ok" || got.Output != "a.musicxml" || len(got.Inputs) != 1 || got.Inputs[0] != "a.playscore" {
		t.Errorf("unexpected record: %+v", got)
	}

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversions?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d", rec.Code)
	}
}

func TestGetAndDeleteConversion(t *testing.T) {
	env := setupTestServer(t, true)

	env.do(multipartRequest(t, "/api/convert", "files", []upload{
		{"a.playscore", archiveBytes(t, map[string]string{"doc.xml": pianoDoc})},
	}, nil))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversions", nil))
	var list ListConversionsResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil || list.Count != 1 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	id := list.Conversions[0].ID

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/conversions/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got ConversionDTO
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != id || got.Output != "a.musicxml" {
		t.Errorf("unexpected record: %+v", got)
	}

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/conversions/"+id, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body.String())
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = env.do(httptest.NewRequest(method, "/api/conversions/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s after delete status = %d, want 404", method, rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != "not_found" {
			t.Errorf("%s after delete error = %q", method, resp.Error)
		}
	}
}

func TestGetConversionHistoryDisabled(t *testing.T) {
	env := setupTestServer(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversions/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "history_disabled" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestConversionHistoryDisabled(t *testing.T) {
	env := setupTestServer(t, false)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/conversions", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "history_disabled" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTestServer(t, false)
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/convert"},
		{http.MethodGet, "/api/inspect"},
		{http.MethodPost, "/api/conversions"},
		{http.MethodPut, "/api/conversions/abc"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		rec := env.do(httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.path, rec.Code)
			continue
		}
		if resp := decodeError(t, rec); resp.Error != "method_not_allowed" {
			t.Errorf("%s %s error = %q", tt.method, tt.path, resp.Error)
		}
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t, false)
	env.server.config.AllowedOrigins = []string{"https://scores.example"}
	handler := env.server.setupRoutes()

	req := httptest.NewRequest(http.MethodOptions, "/api/convert", nil)
	req.Header.Set("Origin", "https://scores.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://scores.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/convert", nil)
	req.Header.Set("Origin", "https://other.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin = %q", got)
	}
}

func TestRequestID(t *testing.T) {
	env := setupTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	if got := env.do(req).Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want echo", got)
	}

	if got := env.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Header().Get("X-Request-ID"); len(got) != 8 {
		t.Errorf("generated X-Request-ID = %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/convert":          "/api/convert",
		"/convert":              "/convert",
		"/api/conversions":      "/api/conversions",
		"/api/conversions/4f2a": "/api/conversions/{id}",
		"/api/conversions/a/b":  "other",
		"/api/unknown/thing":    "other",
		"/favicon.ico":          "other",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseFormBool(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "TRUE", " on "} {
		if !parseFormBool(v) {
			t.Errorf("parseFormBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "off", "false", "0", "yes"} {
		if parseFormBool(v) {
			t.Errorf("parseFormBool(%q) = true", v)
		}
	}
}

func TestUniqueName(t *testing.T) {
	used := make(map[string]bool)
	got := []string{
		uniqueName("a.playscore", used),
		uniqueName("a.playscore", used),
		uniqueName("A.zip", used),
		uniqueName("b.playscore", used),
		uniqueName("", used),
	}
	want := []string{"a.playscore", "a_2.playscore", "A_3.zip", "b.playscore", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("uniqueName #%d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWorstCode(t *testing.T) {
	results := []playscore.Result{
		{Code: playscore.CodeOK},
		{Code: playscore.CodeCorruptArchive},
		{Code: playscore.CodeNoUsablePayload},
	}
	if got := worstCode(results); got != playscore.CodeNoUsablePayload {
		t.Errorf("worstCode = %s", got)
	}
	if got := worstCode(nil); got != playscore.CodeWriteFailed {
		t.Errorf("worstCode(nil) = %s", got)
	}
}

func TestZipFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.musicxml")
	if err := os.WriteFile(a, []byte("<a/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := zipFiles([]string{a})
	if err != nil {
		t.Fatalf("zipFiles() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "a.musicxml" {
		t.Errorf("unexpected entries: %v", zr.File)
	}
}
