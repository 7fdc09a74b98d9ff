package ports

import (
	"context"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// SubmitRequest carries one validated upload into the core. DocumentID is
// optional; callers that subscribe to progress before submitting provide
// their own id so events can be routed to them.
type SubmitRequest struct {
	DocumentID string
	Filename   string
	UploadedBy string
	Content    []byte
}

// DocumentSubmitter is the inbound contract for document submission. A
// duplicate submission short-circuits to the cached record with
// created=false and is never reprocessed.
type DocumentSubmitter interface {
	Submit(ctx context.Context, req SubmitRequest) (record *domain.DocumentRecord, created bool, err error)
}

// RecordReader is the inbound read model for finalized records and history.
type RecordReader interface {
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.DocumentRecord, error)
}

// StatsReader exposes the running aggregate counters. A just-submitted
// document is visible after its Submit call returns, never before.
type StatsReader interface {
	Stats(ctx context.Context) (domain.Statistics, error)
}

// ModelLifecycle is the inbound contract for the vision model lifecycle.
// Status never blocks; SubmitLoad starts an asynchronous load off the
// caller's path and is a no-op while a load is already running.
type ModelLifecycle interface {
	SubmitLoad()
	Status() domain.ModelSnapshot
}

// ProgressSource lets transport adapters subscribe to a document's ordered
// progress stream before submitting it.
type ProgressSource interface {
	Subscribe(documentID string) (<-chan domain.ProgressEvent, func())
}
