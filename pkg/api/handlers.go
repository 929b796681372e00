package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethpandaops/wptview/pkg/export"
	"github.com/ethpandaops/wptview/pkg/ingest"
	"github.com/ethpandaops/wptview/pkg/logparser"
	"github.com/ethpandaops/wptview/pkg/query"
	"github.com/ethpandaops/wptview/pkg/service"
	"github.com/ethpandaops/wptview/pkg/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps a service error to its HTTP status.
func (s *server) writeError(w http.ResponseWriter, err error) {
	var (
		taken     *ingest.RunNameTakenError
		malformed *logparser.MalformedLogError
		fetchErr  *logparser.FetchError
		readErr   *logparser.FileReadError
	)

	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrConstraintViolation),
		errors.Is(err, store.ErrRunHasResults),
		errors.As(err, &taken):
		status = http.StatusConflict
	case errors.Is(err, query.ErrInvalidFilter),
		errors.As(err, &malformed),
		errors.As(err, &readErr):
		status = http.StatusBadRequest
	case errors.As(err, &fetchErr):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.WithError(err).Error("Request failed")
	}

	writeJSON(w, status, errorResponse{err.Error()})
}

var validate = validator.New()

// decodeBody decodes a JSON request body and checks its validate tags.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}

	return nil
}

func parseIDParam(r *http.Request) (uint, error) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		return 0, fmt.Errorf("id parameter is required")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id: %w", err)
	}

	return uint(id), nil
}

// handleHealth returns server health with table counts.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.model.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]string{"status": "unavailable", "error": err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": stats})
}

func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.model.GetRuns(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	if runs == nil {
		runs = []store.TestRun{}
	}

	writeJSON(w, http.StatusOK, runs)
}

func (s *server) handleListRunURLs(w http.ResponseWriter, r *http.Request) {
	urls, err := s.model.GetRunURLs(r.Context())
	if err != nil {
		s.writeError(w, err)

		return
	}

	if urls == nil {
		urls = []string{}
	}

	writeJSON(w, http.StatusOK, urls)
}

type importRequest struct {
	URLs            []string `json:"urls" validate:"required,min=1,dive,url"`
	Names           []string `json:"names,omitempty" validate:"omitempty,dive,required"`
	DisablePrevious bool     `json:"disable_previous"`
}

// handleImportRuns fetches and imports logs by URL. Local paths are not
// accepted over HTTP.
func (s *server) handleImportRuns(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if len(req.Names) > 0 && len(req.Names) != len(req.URLs) {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"names must match urls one to one"})

		return
	}

	sources := make([]service.ImportSource, 0, len(req.URLs))

	for i, u := range req.URLs {
		src := service.ImportSource{URL: u}
		if len(req.Names) > 0 {
			src.Name = req.Names[i]
		}

		sources = append(sources, src)
	}

	results, err := s.model.ImportAll(r.Context(), s.log, sources, service.ImportOptions{
		DisablePrevious: req.DisablePrevious,
		Concurrency:     s.cfg.Import.Concurrency,
	})
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, results)
}

// handleUploadRun imports a raw log sent as the request body.
func (s *server) handleUploadRun(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{"name is required"})

		return
	}

	records, err := logparser.Crunch(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		s.writeError(w, err)

		return
	}

	report, err := s.model.ImportRecords(r.Context(), records, name, ingest.FileSource(), nil)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusCreated, report)
}

type switchRunsRequest struct {
	IDs     []uint `json:"ids" validate:"required,min=1,dive,gt=0"`
	Enabled bool   `json:"enabled"`
}

func (s *server) handleSwitchRuns(w http.ResponseWriter, r *http.Request) {
	var req switchRunsRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.model.SwitchRuns(r.Context(), req.IDs, req.Enabled); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.model.RemoveRun(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleResults(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	page, err := s.model.SelectFilteredResults(r.Context(), req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	doc, err := export.Build(r.Context(), s.model, req)
	if err != nil {
		s.writeError(w, err)

		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="wptview-export.json"`)
	writeJSON(w, http.StatusOK, doc)
}

func (s *server) handleGetComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	comment, err := s.model.SelectComment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if comment == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"comment not found"})

		return
	}

	writeJSON(w, http.StatusOK, comment)
}

type commentRequest struct {
	Text string `json:"text"`
}

// handleSaveComment creates or replaces a result's comment. Empty text
// removes it.
func (s *server) handleSaveComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	var req commentRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	existing, err := s.model.SelectComment(r.Context(), id)
	if err != nil {
		s.writeError(w, err)

		return
	}

	if existing != nil {
		err = s.model.UpdateComment(r.Context(), id, req.Text)
	} else {
		err = s.model.InsertComment(r.Context(), id, req.Text)
	}

	if err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.model.DeleteComment(r.Context(), id); err != nil {
		s.writeError(w, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}
