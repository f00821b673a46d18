package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yndnr/restorepoint-go/internal/core/domain"
	"github.com/yndnr/restorepoint-go/internal/core/service"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 16

// RestorePoints is the facade the handler serves. *service.RestorePoints
// implements it.
type RestorePoints interface {
	IsSupported() bool
	BackgroundError() error
	List(ctx context.Context) ([]domain.Record, error)
	Get(ctx context.Context, id string) (domain.Record, error)
	CreateManual(ctx context.Context, title string) (domain.Record, error)
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Autosave reports the automatic create loop. *autosave.Autosaver
// implements it.
type Autosave interface {
	State() service.State
	LastError() error
}

// Handler routes API requests.
type Handler struct {
	rp       RestorePoints
	autosave Autosave
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithAutosave adds the autosave loop to /v1/status.
func WithAutosave(a Autosave) Option {
	return func(h *Handler) { h.autosave = a }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// New creates a Handler.
func New(rp RestorePoints, opts ...Option) *Handler {
	h := &Handler{
		rp:     rp,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /v1/status", h.handleStatus)

	h.mux.HandleFunc("GET /v1/restorepoints", h.handleList)
	h.mux.HandleFunc("POST /v1/restorepoints", h.handleCreate)
	h.mux.HandleFunc("GET /v1/restorepoints/{id}", h.handleGet)
	h.mux.HandleFunc("POST /v1/restorepoints/{id}/restore", h.handleRestore)
	h.mux.HandleFunc("DELETE /v1/restorepoints/{id}", h.handleDelete)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !h.rp.IsSupported() {
		h.writeError(w, r, http.StatusServiceUnavailable, domain.ErrUnsupported.Code, domain.ErrUnsupported.Message, nil)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	s := StatusDTO{Supported: h.rp.IsSupported()}
	if err := h.rp.BackgroundError(); err != nil {
		s.BackgroundError = err.Error()
	}
	if h.autosave != nil {
		s.Autosave = h.autosave.State().String()
		if err := h.autosave.LastError(); err != nil {
			s.LastError = err.Error()
		}
	}
	h.writeJSON(w, r, http.StatusOK, s)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.rp.List(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	out := make([]RecordDTO, len(records))
	for i, rec := range records {
		out[i] = NewRecordDTO(rec)
	}
	h.writeJSON(w, r, http.StatusOK, out)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "invalid request body", err.Error())
		return
	}
	rec, err := h.rp.CreateManual(r.Context(), req.Title)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, NewRecordDTO(rec))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rp.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, NewRecordDTO(rec))
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.rp.Restore(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"id": id})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.rp.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set("X-Request-ID", getRequestID(w, r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// getRequestID returns the id the RequestID middleware put on the response,
// falling back to the client's header.
func getRequestID(w http.ResponseWriter, r *http.Request) string {
	if id := w.Header().Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}

// handleServiceError converts facade errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if code := domain.GetErrorCode(err); code != "" {
		h.writeError(w, r, errorCodeToHTTPStatus(code), code, err.Error(), nil)
		return
	}
	h.logger.Error("internal error", "path", r.URL.Path, "error", err)
	h.writeError(w, r, http.StatusInternalServerError, "RP-SYS-5000", "internal server error", nil)
}

// errorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func errorCodeToHTTPStatus(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4220"), strings.HasSuffix(code, "-4221"):
		return http.StatusUnprocessableEntity
	case strings.HasSuffix(code, "-5030"):
		return http.StatusServiceUnavailable
	case strings.HasPrefix(code, "RP-ARG-"):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
