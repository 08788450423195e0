// Package chi is the HTTP API: search, indexing, index administration,
// health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kbforge/searchd/internal/doctype"
	repoindex "github.com/kbforge/searchd/internal/repository/index"
	healthuc "github.com/kbforge/searchd/internal/usecase/health"
	indexuc "github.com/kbforge/searchd/internal/usecase/index"
	searchuc "github.com/kbforge/searchd/internal/usecase/search"
)

// Server exposes the search and indexing services over HTTP.
type Server struct {
	search  *searchuc.Service
	indexer *indexuc.Service
	worker  *indexuc.Worker
	indexes *repoindex.Repo
	health  *healthuc.Service
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	indexer *indexuc.Service,
	worker *indexuc.Worker,
	indexes *repoindex.Repo,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:  search,
		indexer: indexer,
		worker:  worker,
		indexes: indexes,
		health:  health,
		logger:  logger,
	}
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)

		r.Route("/index/{type}", func(r chi.Router) {
			r.Post("/bulk", s.handleBulkIndex)
			r.Post("/record", s.handleIndexRecord)
			r.Post("/remove-field-value", s.handleRemoveFieldValue)
			r.Post("/{id}", s.handleIndexDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/indexes", s.handleIndexStatuses)
			r.Post("/migrate-writes/{type}", s.handleMigrateWrites)
			r.Post("/migrate-reads/{type}", s.handleMigrateReads)
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// handleSearch handles GET /api/1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := &searchuc.Request{
		Query:    q.Get("q"),
		Locale:   q.Get("locale"),
		Product:  q.Get("product"),
		Page:     intParam(q.Get("page")),
		PerPage:  intParam(q.Get("per_page")),
		Strategy: searchuc.Strategy(q.Get("strategy")),
	}
	if types := q.Get("type"); types != "" {
		req.DocTypes = strings.Split(types, ",")
	}
	if locales := q.Get("locales"); locales != "" {
		req.Locales = strings.Split(locales, ",")
	}

	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		if errors.Is(err, searchuc.ErrUnknownDocType) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		s.logger.Error("search failed", zap.String("query", req.Query), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeBackendFailure, "search backend error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// jobResponse acknowledges an async indexing submission.
type jobResponse struct {
	JobID string `json:"job_id"`
}

// handleIndexDocument handles POST /api/1/index/{type}/{id}.
func (s *Server) handleIndexDocument(w http.ResponseWriter, r *http.Request) {
	docType, ok := s.docTypeParam(w, r)
	if !ok {
		return
	}

	jobID, err := s.worker.SubmitIndex(docType, chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("index submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "could not queue job")
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

// handleDeleteDocument handles DELETE /api/1/index/{type}/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docType, ok := s.docTypeParam(w, r)
	if !ok {
		return
	}

	jobID, err := s.worker.SubmitDelete(docType, chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("delete submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "could not queue job")
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

// handleBulkIndex handles POST /api/1/index/{type}/bulk.
func (s *Server) handleBulkIndex(w http.ResponseWriter, r *http.Request) {
	docType, ok := s.docTypeParam(w, r)
	if !ok {
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(body.IDs) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "ids is required")
		return
	}

	jobID, err := s.worker.SubmitBulkIndex(docType, body.IDs)
	if err != nil {
		s.logger.Error("bulk submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, CodeInternalError, "could not queue job")
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: jobID})
}

// handleIndexRecord handles POST /api/1/index/{type}/record. The body is
// the full record; indexing runs synchronously so the caller sees failures.
func (s *Server) handleIndexRecord(w http.ResponseWriter, r *http.Request) {
	docType, ok := s.docTypeParam(w, r)
	if !ok {
		return
	}

	var record map[string]any
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(record) == 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "record is required")
		return
	}

	if err := s.indexer.IndexRecord(r.Context(), docType, record); err != nil {
		s.logger.Warn("record rejected", zap.String("doc_type", docType), zap.Error(err))
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemoveFieldValue handles POST /api/1/index/{type}/remove-field-value.
// Runs synchronously; the rewrite must finish before the caller proceeds.
func (s *Server) handleRemoveFieldValue(w http.ResponseWriter, r *http.Request) {
	docType, ok := s.docTypeParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Field == "" || body.Value == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "field and value are required")
		return
	}

	if err := s.indexer.RemoveValueFromField(r.Context(), docType, body.Field, body.Value); err != nil {
		s.logger.Error("field rewrite failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeBackendFailure, "field rewrite failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleIndexStatuses handles GET /api/1/admin/indexes.
func (s *Server) handleIndexStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.indexes.Statuses(r.Context())
	if err != nil {
		s.logger.Error("index status failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeBackendFailure, "could not read index status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"indexes": statuses})
}

// migrationResponse reports the physical index an alias now points at.
type migrationResponse struct {
	Index string `json:"index"`
}

// handleMigrateWrites handles POST /api/1/admin/migrate-writes/{type}.
func (s *Server) handleMigrateWrites(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveType(w, r)
	if !ok {
		return
	}

	index, err := s.indexes.MigrateWrites(r.Context(), t, time.Now())
	if err != nil {
		s.logger.Error("write migration failed", zap.String("doc_type", t.Name), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeBackendFailure, "write migration failed")
		return
	}
	writeJSON(w, http.StatusOK, migrationResponse{Index: index})
}

// handleMigrateReads handles POST /api/1/admin/migrate-reads/{type}.
func (s *Server) handleMigrateReads(w http.ResponseWriter, r *http.Request) {
	t, ok := s.resolveType(w, r)
	if !ok {
		return
	}

	index, err := s.indexes.MigrateReads(r.Context(), t)
	if err != nil {
		s.logger.Error("read migration failed", zap.String("doc_type", t.Name), zap.Error(err))
		writeError(w, http.StatusBadGateway, CodeBackendFailure, "read migration failed")
		return
	}
	writeJSON(w, http.StatusOK, migrationResponse{Index: index})
}

func (s *Server) docTypeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "type")
	if _, ok := doctype.ByName(name); !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown document type: "+name)
		return "", false
	}
	return name, true
}

func (s *Server) resolveType(w http.ResponseWriter, r *http.Request) (*doctype.Type, bool) {
	t, ok := doctype.ByName(chi.URLParam(r, "type"))
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "unknown document type")
		return nil, false
	}
	return t, true
}

func intParam(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}
