package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-trust/internal/async"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/extract"
	"github.com/joseph-ayodele/invoice-trust/internal/strategy"
)

// HTTPConfig bounds the HTTP surface.
type HTTPConfig struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	AllowedOrigins []string
}

const (
	defaultMaxUpload      = 25 << 20
	defaultRecordsLimit   = 20
	maxRecordsLimit       = 500
	requestIDHeader       = "X-Request-Id"
	defaultRequestTimeout = 2 * time.Minute
)

// NewRouter returns the chi router serving the extraction API:
//
//	POST /v1/extract   multipart "file" field, or a raw body with ?filename=
//	GET  /v1/metrics   lifetime accuracy counters
//	GET  /v1/records   recently stored records (404 without a database)
//	POST /v1/jobs      same body as /v1/extract, processed in the background (with a job queue)
//	GET  /v1/jobs/{id} job status and, once done, its record
//	GET  /healthz
func NewRouter(svc *ExtractionService, cfg HTTPConfig) http.Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUpload
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &httpHandler{svc: svc, maxUpload: cfg.MaxUploadBytes, logger: svc.logger}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.extract)
		r.Get("/metrics", h.metrics)
		r.Get("/records", h.records)
		if svc.jobs != nil {
			r.Post("/jobs", h.submit)
			r.Get("/jobs/{id}", h.job)
		}
	})
	return r
}

type httpHandler struct {
	svc       *ExtractionService
	maxUpload int64
	logger    *slog.Logger
}

type errorBody struct {
	Error    string             `json:"error"`
	Failures []strategy.Failure `json:"failures,omitempty"`
}

// requestID echoes the chi request id, or a fresh uuid, in the response header.
func requestID(w http.ResponseWriter, r *http.Request) string {
	reqID := middleware.GetReqID(r.Context())
	if reqID == "" {
		reqID = uuid.New().String()
	}
	w.Header().Set(requestIDHeader, reqID)
	return reqID
}

// upload reads the request document, writing the error reply itself when it fails.
func (h *httpHandler) upload(w http.ResponseWriter, r *http.Request, reqID string) (extract.Document, bool) {
	doc, err := h.readDocument(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: fmt.Sprintf("document exceeds %d bytes", h.maxUpload)})
			return doc, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return doc, false
	}
	if doc.ID == "" {
		doc.ID = reqID
	}
	return doc, true
}

func (h *httpHandler) extract(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	doc, ok := h.upload(w, r, reqID)
	if !ok {
		return
	}

	res, err := h.svc.Extract(common.WithRequestID(r.Context(), reqID), doc)
	if err != nil {
		var none *strategy.NoExtractionPossibleError
		switch {
		case errors.As(err, &none):
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: none.Error(), Failures: none.Failures})
		case r.Context().Err() != nil:
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled"})
		default:
			h.logger.Error("http.extract.failed", "request_id", reqID, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// readDocument accepts a multipart upload or a raw body.
func (h *httpHandler) readDocument(w http.ResponseWriter, r *http.Request) (extract.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	q := r.URL.Query()
	doc := extract.Document{ID: q.Get("document_id")}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUpload); err != nil {
			return doc, err
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return doc, fmt.Errorf("missing file field: %w", err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return doc, err
		}
		doc.Name, doc.MIMEType, doc.Content = hdr.Filename, hdr.Header.Get("Content-Type"), data
	} else {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return doc, err
		}
		doc.Name, doc.MIMEType, doc.Content = q.Get("filename"), r.Header.Get("Content-Type"), data
	}
	if len(doc.Content) == 0 {
		return doc, errors.New("empty document")
	}
	if doc.MIMEType == "application/octet-stream" {
		doc.MIMEType = ""
	}
	if doc.ID == "" {
		doc.ID = doc.Name
	}
	return doc, nil
}

func (h *httpHandler) submit(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(w, r)
	doc, ok := h.upload(w, r, reqID)
	if !ok {
		return
	}
	id, err := h.svc.jobs.Enqueue(r.Context(), doc)
	switch {
	case errors.Is(err, async.ErrQueueClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "request cancelled"})
	default:
		w.Header().Set("Location", "/v1/jobs/"+id)
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "document_id": doc.ID})
	}
}

func (h *httpHandler) job(w http.ResponseWriter, r *http.Request) {
	st, ok := h.svc.jobs.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *httpHandler) metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *httpHandler) records(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecordsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecordsLimit)
	}
	recs, ok, err := h.svc.Recent(r.Context(), limit)
	switch {
	case !ok:
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no record store configured"})
	case err != nil:
		h.logger.Error("http.records.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"records": recs})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
