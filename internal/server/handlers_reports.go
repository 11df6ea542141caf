package server

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

type textReportRequest struct {
	SourceType string `json:"sourceType,omitempty"`
	Text       string `json:"text"`
}

// handleReports serves POST /reports (create) and GET /reports (list).
// Creation is open to anonymous callers; listing requires a session since
// an anonymous caller has no reports of their own.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateReport(w, r)
	case http.MethodGet:
		s.handleListReports(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	ownerID := s.optionalIdentity(r)
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		s.handleImageReport(w, r, ownerID)
		return
	}

	var req textReportRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SourceType != "" && req.SourceType != "text" {
		writeError(w, http.StatusBadRequest, "sourceType must be text for JSON submissions")
		return
	}
	report, err := s.app.CreateTextReport(r.Context(), ownerID, req.Text)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleImageReport(w http.ResponseWriter, r *http.Request, ownerID string) {
	filename, data, ok := s.readUpload(w, r, "image")
	if !ok {
		return
	}
	report, err := s.app.CreateImageReport(r.Context(), ownerID, filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handlePDFReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	ownerID := s.optionalIdentity(r)
	filename, data, ok := s.readUpload(w, r, "file")
	if !ok {
		return
	}
	report, err := s.app.CreatePDFReport(r.Context(), ownerID, filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// readUpload pulls a single multipart file field, enforcing the upload
// size cap. Reports success via the bool; errors are already written.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string) (string, []byte, bool) {
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form data")
		return "", nil, false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: "+field+")")
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	ident, ok := s.authorize(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)
	result, err := s.app.ListReports(ident.ID, page, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReportByID serves GET /reports/{id} and GET /reports/{id}/asset.
func (s *Server) handleReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/reports/")
	parts := strings.SplitN(path, "/", 2)
	id := parts[0]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	ownerID := s.optionalIdentity(r)

	if len(parts) == 2 {
		if parts[1] != "asset" {
			http.NotFound(w, r)
			return
		}
		url, err := s.app.AssetURL(r.Context(), ownerID, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}

	report, err := s.app.GetReport(ownerID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSummarize serves POST /summaries/{reportId}.
func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.summarizeLimiter, "too many summarize requests") {
		s.audit(r, "summaries.create", "rate_limited")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/summaries/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	ownerID := s.optionalIdentity(r)
	report, err := s.app.Summarize(r.Context(), ownerID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// optionalIdentity resolves the caller's user ID when a valid session is
// presented and returns empty otherwise. Used on endpoints that accept
// anonymous callers.
func (s *Server) optionalIdentity(r *http.Request) string {
	tok := accessTokenFrom(r)
	if tok == "" {
		return ""
	}
	ident, err := s.app.Identify(tok)
	if err != nil {
		return ""
	}
	return ident.ID
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
