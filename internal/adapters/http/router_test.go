package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
	"github.com/arkeyez/arkdoc/internal/export"
	"github.com/arkeyez/arkdoc/internal/infrastructure/progress"
	"github.com/arkeyez/arkdoc/internal/observability/metrics"
)

type submitterFake struct {
	record  *domain.DocumentRecord
	created bool
	err     error
	lastReq ports.SubmitRequest
}

func (f *submitterFake) Submit(_ context.Context, req ports.SubmitRequest) (*domain.DocumentRecord, bool, error) {
	f.lastReq = req
	return f.record, f.created, f.err
}

type readerFake struct {
	record *domain.DocumentRecord
	stats  domain.Statistics
	err    error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.DocumentRecord, error) {
	return f.record, f.err
}

func (f *readerFake) ListRecent(context.Context, int) ([]domain.DocumentRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.record == nil {
		return nil, nil
	}
	return []domain.DocumentRecord{*f.record}, nil
}

func (f *readerFake) Stats(context.Context) (domain.Statistics, error) {
	return f.stats, f.err
}

type modelFake struct {
	snapshot domain.ModelSnapshot
	loads    int
}

func (f *modelFake) SubmitLoad() { f.loads++ }

func (f *modelFake) Status() domain.ModelSnapshot { return f.snapshot }

func sampleRecord() *domain.DocumentRecord {
	return &domain.DocumentRecord{
		ID:          "rec-1",
		Filename:    "invoice.pdf",
		ContentHash: "abc",
		Result: domain.FusionResult{
			DocumentClass: domain.ClassInvoice,
			Confidence:    0.91,
		},
		PageCount:  1,
		UploadedBy: "admin",
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestRouter(submitter *submitterFake, reader *readerFake, model *modelFake, opts Options) http.Handler {
	if reader == nil {
		reader = &readerFake{}
	}
	if model == nil {
		model = &modelFake{snapshot: domain.ModelSnapshot{Phase: domain.ModelNotLoaded}}
	}
	exporter := export.NewService(reader, reader, nil)
	return NewRouter(
		submitter, reader, reader, model,
		progress.NewBroker(), exporter,
		metrics.NewHTTPServerMetrics("api"),
		opts,
	).Handler()
}

func multipartUpload(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write(content)
	_ = writer.Close()
	return body, writer.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(&submitterFake{}, nil, nil, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("healthz = %d", res.Code)
	}
}

func TestUploadDocumentCreated(t *testing.T) {
	submitter := &submitterFake{record: sampleRecord(), created: true}
	handler := newTestRouter(submitter, nil, nil, Options{})

	body, contentType := multipartUpload(t, map[string]string{"document_id": "doc-7"}, "invoice.pdf", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	if submitter.lastReq.DocumentID != "doc-7" || submitter.lastReq.Filename != "invoice.pdf" {
		t.Fatalf("unexpected submit request: %+v", submitter.lastReq)
	}

	var payload struct {
		Duplicate bool `json:"duplicate"`
		Record    struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Duplicate || payload.Record.ID != "rec-1" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestUploadDuplicateReturns200(t *testing.T) {
	handler := newTestRouter(&submitterFake{record: sampleRecord(), created: false}, nil, nil, Options{})

	body, contentType := multipartUpload(t, nil, "same.pdf", []byte("bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", res.Code)
	}

	var payload struct {
		Duplicate bool `json:"duplicate"`
	}
	_ = json.NewDecoder(res.Body).Decode(&payload)
	if !payload.Duplicate {
		t.Fatalf("expected duplicate=true")
	}
}

func TestUploadWithoutFileIs400(t *testing.T) {
	handler := newTestRouter(&submitterFake{}, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestUploadErrorMapping(t *testing.T) {
	submitter := &submitterFake{err: domain.WrapError(domain.ErrMalformedInput, "split document", errors.New("no pages"))}
	handler := newTestRouter(submitter, nil, nil, Options{})

	body, contentType := multipartUpload(t, nil, "broken.pdf", []byte("%PDF-"))
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("malformed input must map to 400, got %d", res.Code)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	reader := &readerFake{err: domain.WrapError(domain.ErrRecordNotFound, "get record", errors.New("missing"))}
	handler := newTestRouter(&submitterFake{}, reader, nil, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestModelStatusAndLoad(t *testing.T) {
	model := &modelFake{snapshot: domain.ModelSnapshot{Phase: domain.ModelFailed, Error: "weights missing"}}
	handler := newTestRouter(&submitterFake{}, nil, model, Options{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var payload struct {
		IsSimulation bool `json:"is_simulation"`
	}
	_ = json.NewDecoder(res.Body).Decode(&payload)
	if !payload.IsSimulation {
		t.Fatalf("failed model must report simulation")
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/model/load", nil))
	if res.Code != http.StatusAccepted {
		t.Fatalf("model load = %d", res.Code)
	}
	if model.loads != 1 {
		t.Fatalf("expected one load submission, got %d", model.loads)
	}
}

func TestHistoryExportIsWorkbook(t *testing.T) {
	reader := &readerFake{record: sampleRecord(), stats: domain.Statistics{
		Total:         1,
		ByClass:       map[domain.Class]int{domain.ClassInvoice: 1},
		AvgConfidence: 0.91,
	}}
	handler := newTestRouter(&submitterFake{}, reader, nil, Options{HistoryLimit: 50})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/history/export", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("export = %d: %s", res.Code, res.Body.String())
	}
	if got := res.Header().Get("Content-Disposition"); got == "" {
		t.Fatalf("expected attachment disposition")
	}
	// XLSX is a zip container.
	if body := res.Body.Bytes(); len(body) < 4 || body[0] != 'P' || body[1] != 'K' {
		t.Fatalf("response is not an XLSX payload")
	}
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	handler := newTestRouter(&submitterFake{}, nil, nil, Options{APIToken: "secret"})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer secret")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}

	// healthz stays open for probes.
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("healthz must bypass auth, got %d", res.Code)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(&submitterFake{}, nil, nil, Options{RateLimitRPS: 1, RateLimitBurst: 1})

	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int, 1)

	base := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
		done <- res.Code
	}()

	<-started

	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res2.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated backpressure gate, got %d", res2.Code)
	}

	close(release)

	select {
	case code := <-done:
		if code != http.StatusNoContent {
			t.Fatalf("held request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("held request never completed")
	}
}
