// Package httpapi exposes the document store over a minimal JSON HTTP
// surface. Handlers shape transport concerns only; all document semantics
// live behind the store contract.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"docucore/internal/metrics"
	"docucore/pkg/domain"
)

// Handler routes document requests to a store.
type Handler struct {
	store   domain.Store
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewHandler constructs a document HTTP handler.
func NewHandler(store domain.Store, log zerolog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{store: store, log: log, metrics: m}
}

// Routes returns the handler's mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents", h.instrument("create", h.handleCreate))
	mux.HandleFunc("GET /api/v1/documents", h.instrument("list", h.handleList))
	mux.HandleFunc("GET /api/v1/documents/{id}", h.instrument("get", h.handleGet))
	mux.HandleFunc("PATCH /api/v1/documents/{id}", h.instrument("update", h.handleUpdate))
	mux.HandleFunc("POST /api/v1/documents/{id}/versions", h.instrument("create_version", h.handleCreateVersion))
	mux.HandleFunc("GET /api/v1/documents/{id}/history", h.instrument("history", h.handleHistory))
	return mux
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft domain.DocumentDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	doc, err := h.store.Create(r.Context(), draft)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.GetLatest(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.DocumentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	doc, err := h.store.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.CreateVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	opts := domain.ListOptions{Token: r.URL.Query().Get("token")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		opts.Limit = limit
	}
	// Every remaining query parameter is an attribute equality predicate.
	for key, values := range r.URL.Query() {
		if key == "limit" || key == "token" || len(values) == 0 {
			continue
		}
		if opts.Filter == nil {
			opts.Filter = make(map[string]string)
		}
		opts.Filter[key] = values[0]
	}

	page, err := h.store.ListLatest(r.Context(), opts)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	trail, err := h.store.AuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": trail})
}

// writeStoreError maps the store error taxonomy onto HTTP statuses. Bad
// continuation tokens are the caller's mistake; everything unexpected is a
// 500 and logged.
func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("store request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		if h.metrics != nil {
			h.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code)).Inc()
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
