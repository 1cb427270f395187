package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/zip"

	"github.com/himanishpuri/playscore/pkg/logger"
	"github.com/himanishpuri/playscore/pkg/models"
	"github.com/himanishpuri/playscore/pkg/playscore"
	"github.com/himanishpuri/playscore/pkg/playscore/archive"
	"github.com/himanishpuri/playscore/pkg/utils"
)

const (
	version = "1.0.0"

	// ZipOutputName is the download name used when several scores are returned.
	ZipOutputName = "playscore_outputs.zip"

	musicXMLContentType = "application/vnd.recordare.musicxml+xml"
	zipContentType      = "application/zip"

	// multipart parts beyond this stay on disk until the form is removed
	formMemory = 32 << 20

	defaultHistoryLimit = 50
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service playscore.Service
	config  *ServerConfig
	log     *logger.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	TempDir        string
	Engine         string
	MaxUploadBytes int64
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(service playscore.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, code, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    statusCode,
	})
}

// respondCode reports a failed conversion without exposing file names
func (s *Server) respondCode(w http.ResponseWriter, code playscore.Code) {
	s.respondError(w, code.HTTPStatus(), string(code), code.Message())
}

// respondAttachment sends data as a file download
func (s *Server) respondAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log.Warnf("Failed to send %s: %v", name, err)
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, ServiceInfo{
		Service:   "playscore API",
		Version:   version,
		Engine:    s.config.Engine,
		MaxUpload: s.config.MaxUploadBytes,
		Endpoints: map[string]string{
			"health":      "GET /health",
			"metrics":     "GET /metrics",
			"convert":     "POST /api/convert",
			"inspect":     "POST /api/inspect",
			"conversions": "GET /api/conversions",
			"conversion":  "GET|DELETE /api/conversions/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().Format(time.RFC3339),
	})
}

// handleConvert handles POST /api/convert and POST /convert
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.log)

	dir, inputs, ok := s.receiveUploads(w, r, "files")
	if !ok {
		return
	}
	defer s.cleanup(log, dir)

	if parseFormBool(r.FormValue("merge")) {
		s.convertMerged(w, r, dir, inputs)
		return
	}

	batch := s.service.ConvertBatch(r.Context(), inputs, "", true)
	var outputs []string
	for _, res := range batch.Results {
		if res.OK() {
			outputs = append(outputs, res.Output)
		}
	}
	log.Infof("Converted %d of %d upload(s)", len(outputs), len(inputs))

	switch len(outputs) {
	case 0:
		s.respondCode(w, worstCode(batch.Results))
	case 1:
		data, err := os.ReadFile(outputs[0])
		if err != nil {
			log.Errorf("Failed to read output: %v", err)
			s.respondCode(w, playscore.CodeWriteFailed)
			return
		}
		s.respondAttachment(w, filepath.Base(outputs[0]), musicXMLContentType, data)
	default:
		data, err := zipFiles(outputs)
		if err != nil {
			log.Errorf("Failed to build zip: %v", err)
			s.respondCode(w, playscore.CodeWriteFailed)
			return
		}
		s.respondAttachment(w, ZipOutputName, zipContentType, data)
	}
}

func (s *Server) convertMerged(w http.ResponseWriter, r *http.Request, dir string, inputs []string) {
	log := requestLogger(r.Context(), s.log)

	out := filepath.Join(dir, playscore.MergedOutputName)
	res := s.service.MergeAll(r.Context(), inputs, out, true)
	if !res.OK() {
		s.respondCode(w, res.Code)
		return
	}
	log.Infof("Merged %d upload(s) into %d part(s)", len(inputs), res.Parts)

	data, err := os.ReadFile(out)
	if err != nil {
		log.Errorf("Failed to read merged output: %v", err)
		s.respondCode(w, playscore.CodeWriteFailed)
		return
	}
	s.respondAttachment(w, playscore.MergedOutputName, musicXMLContentType, data)
}

// handleInspect handles POST /api/inspect. The upload is inspected in
// memory and never written to the scratch directory.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r.Context(), s.log)

	headers, ok := s.parseUploads(w, r, "file")
	if !ok {
		return
	}
	defer r.MultipartForm.RemoveAll()

	fh := headers[0]
	data, err := readUpload(fh)
	if err != nil {
		log.Errorf("Failed to read upload: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to read uploaded file")
		return
	}

	c := s.service.InspectBytes(data)
	resp := InspectResponse{
		File:    utils.SecureFilename(fh.Filename),
		Kind:    c.Kind.String(),
		Rule:    c.Rule,
		Entry:   c.Entry,
		Size:    len(c.Data),
		Entries: c.Entries,
	}
	if resp.Entries == nil {
		resp.Entries = []string{}
	}
	switch c.Kind {
	case archive.KindCorrupt:
		resp.Message = playscore.CodeCorruptArchive.Message()
	case archive.KindUnrecognized:
		resp.Message = playscore.CodeNoUsablePayload.Message()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleListConversions handles GET /api/conversions
func (s *Server) handleListConversions(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.service.History(limit)
	if errors.Is(err, playscore.ErrHistoryDisabled) {
		s.respondError(w, http.StatusNotFound, "history_disabled", "conversion history is disabled")
		return
	}
	if err != nil {
		s.log.Errorf("Failed to list conversions: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to retrieve conversions")
		return
	}

	dtos := make([]ConversionDTO, len(records))
	for i, rec := range records {
		dtos[i] = toConversionDTO(rec)
	}
	s.respondJSON(w, http.StatusOK, ListConversionsResponse{
		Conversions: dtos,
		Count:       len(dtos),
	})
}

// handleGetConversion handles GET /api/conversions/{id}
func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.service.GetConversion(id)
	if err != nil {
		s.respondHistoryError(w, r, "get", err)
		return
	}
	s.respondJSON(w, http.StatusOK, toConversionDTO(*rec))
}

// handleDeleteConversion handles DELETE /api/conversions/{id}
func (s *Server) handleDeleteConversion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.service.DeleteConversion(id); err != nil {
		s.respondHistoryError(w, r, "delete", err)
		return
	}
	requestLogger(r.Context(), s.log).Infof("Deleted conversion %s", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondHistoryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, playscore.ErrHistoryDisabled):
		s.respondError(w, http.StatusNotFound, "history_disabled", "conversion history is disabled")
	case errors.Is(err, playscore.ErrConversionNotFound):
		s.respondError(w, http.StatusNotFound, "not_found", "no such conversion")
	default:
		requestLogger(r.Context(), s.log).Errorf("Failed to %s conversion: %v", op, err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to access conversion history")
	}
}

func toConversionDTO(rec models.Conversion) ConversionDTO {
	return ConversionDTO{
		ID:         rec.ID,
		Mode:       rec.Mode,
		Inputs:     rec.Inputs,
		Output:     rec.Output,
		Result:     rec.Code,
		Kind:       rec.Kind,
		Parts:      rec.Parts,
		DurationMs: rec.DurationMs,
		CreatedAt:  rec.CreatedAt,
	}
}

// receiveUploads saves the files of a multipart field into a fresh scratch
// directory. On failure the response has been written and ok is false.
func (s *Server) receiveUploads(w http.ResponseWriter, r *http.Request, field string) (dir string, paths []string, ok bool) {
	log := requestLogger(r.Context(), s.log)

	headers, ok := s.parseUploads(w, r, field)
	if !ok {
		return "", nil, false
	}
	defer r.MultipartForm.RemoveAll()

	dir, err := utils.NewScratchDir(s.config.TempDir, "playscore-upload")
	if err != nil {
		log.Errorf("Failed to create scratch directory: %v", err)
		s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to process upload")
		return "", nil, false
	}

	used := make(map[string]bool)
	for _, fh := range headers {
		name := uniqueName(utils.SecureFilename(fh.Filename), used)
		if name == "" {
			continue
		}
		path := filepath.Join(dir, name)
		if err := saveUpload(fh, path); err != nil {
			log.Errorf("Failed to save upload: %v", err)
			s.cleanup(log, dir)
			s.respondError(w, http.StatusInternalServerError, "internal_error", "failed to save uploaded file")
			return "", nil, false
		}
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		s.cleanup(log, dir)
		s.respondError(w, http.StatusBadRequest, "no_files", "no valid files uploaded")
		return "", nil, false
	}
	log.Debugf("Received %d upload(s)", len(paths))
	return dir, paths, true
}

// parseUploads applies the upload size limit and parses the multipart form,
// returning the file headers of field. On success the caller owns
// r.MultipartForm.
func (s *Server) parseUploads(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, bool) {
	log := requestLogger(r.Context(), s.log)
	limit := s.config.MaxUploadBytes

	if limit > 0 {
		if r.ContentLength > limit {
			s.respondTooLarge(w)
			return nil, false
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondTooLarge(w)
			return nil, false
		}
		log.Warnf("Failed to parse form: %v", err)
		s.respondError(w, http.StatusBadRequest, "invalid_form", "failed to parse multipart form data")
		return nil, false
	}

	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		r.MultipartForm.RemoveAll()
		s.respondError(w, http.StatusBadRequest, "no_files", fmt.Sprintf("no files uploaded in field %q", field))
		return nil, false
	}
	return headers, true
}

func (s *Server) respondTooLarge(w http.ResponseWriter) {
	s.respondError(w, http.StatusRequestEntityTooLarge, "upload_too_large",
		fmt.Sprintf("upload exceeds %d MB", s.config.MaxUploadBytes>>20))
}

// cleanup removes a request's scratch directory in the background.
func (s *Server) cleanup(log *logger.Logger, dir string) {
	utils.RemoveDirAsync(dir, func(err error) {
		log.Warnf("Failed to remove scratch directory: %v", err)
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// uniqueName keeps uploads whose names differ only in extension from
// producing the same output file.
func uniqueName(name string, used map[string]bool) string {
	if name == "" {
		return ""
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; used[strings.ToLower(strings.TrimSuffix(candidate, ext))]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	used[strings.ToLower(strings.TrimSuffix(candidate, ext))] = true
	return candidate
}

func parseFormBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1":
		return true
	default:
		return false
	}
}

// worstCode is the failure with the highest exit status.
func worstCode(results []playscore.Result) playscore.Code {
	worst := playscore.CodeOK
	for _, res := range results {
		if res.Code.ExitCode() > worst.ExitCode() {
			worst = res.Code
		}
	}
	if worst == playscore.CodeOK {
		return playscore.CodeWriteFailed
	}
	return worst
}

// zipFiles archives paths under their base names.
func zipFiles(paths []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		f, err := zw.Create(filepath.Base(p))
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
