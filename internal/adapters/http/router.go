package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
	"github.com/arkeyez/arkdoc/internal/export"
	"github.com/arkeyez/arkdoc/internal/observability/metrics"
)

const serviceName = "api"

// maxUploadBytes bounds one multipart upload.
const maxUploadBytes = 64 << 20

type Options struct {
	APIToken          string
	HistoryLimit      int
	RateLimitRPS      int
	RateLimitBurst    int
	MaxConcurrent     int
	BackpressureWait  time.Duration
}

type Router struct {
	submitter ports.DocumentSubmitter
	records   ports.RecordReader
	stats     ports.StatsReader
	model     ports.ModelLifecycle
	progress  ports.ProgressSource
	exporter  *export.Service
	metrics   *metrics.HTTPServerMetrics
	opts      Options
}

func NewRouter(
	submitter ports.DocumentSubmitter,
	records ports.RecordReader,
	stats ports.StatsReader,
	model ports.ModelLifecycle,
	progress ports.ProgressSource,
	exporter *export.Service,
	m *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	return &Router{
		submitter: submitter,
		records:   records,
		stats:     stats,
		model:     model,
		progress:  progress,
		exporter:  exporter,
		metrics:   m,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentSubtree)
	mux.HandleFunc("/v1/status", rt.modelStatus)
	mux.HandleFunc("/v1/model/load", rt.modelLoad)
	mux.HandleFunc("/v1/stats", rt.statistics)
	mux.HandleFunc("/v1/history", rt.history)
	mux.HandleFunc("/v1/history/export", rt.historyExport)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = authMiddleware(handler, rt.opts.APIToken)
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload: " + err.Error()})
		return
	}

	uploadedBy := strings.TrimSpace(r.FormValue("uploaded_by"))
	if uploadedBy == "" {
		uploadedBy = "admin"
	}

	start := time.Now()
	record, created, err := rt.submitter.Submit(r.Context(), ports.SubmitRequest{
		DocumentID: strings.TrimSpace(r.FormValue("document_id")),
		Filename:   fileHeader.Filename,
		UploadedBy: uploadedBy,
		Content:    content,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		if created {
			rt.metrics.RecordDocument(serviceName, record, time.Since(start))
		} else {
			rt.metrics.RecordDedupHit(serviceName)
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{
		"record":    record,
		"duplicate": !created,
	})
}

func (rt *Router) documentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id, ok := strings.CutSuffix(rest, "/progress"); ok {
		rt.progressStream(w, r, id)
		return
	}
	rt.getDocumentByID(w, r, rest)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	record, err := rt.records.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) modelStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	snapshot := rt.model.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"model":         snapshot,
		"is_simulation": snapshot.Simulation(),
	})
}

func (rt *Router) modelLoad(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	rt.model.SubmitLoad()
	writeJSON(w, http.StatusAccepted, map[string]any{"model": rt.model.Status()})
}

func (rt *Router) statistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	stats, err := rt.stats.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := rt.opts.HistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	records, err := rt.records.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.DocumentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (rt *Router) historyExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	raw, err := rt.exporter.ExportHistoryXLSX(r.Context(), rt.opts.HistoryLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="arkdoc-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}
