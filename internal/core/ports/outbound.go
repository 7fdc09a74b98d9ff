package ports

import (
	"context"
	"io"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// Rasterizer splits a submitted document into independent page inputs.
// Unreadable or zero-page input fails with domain.ErrMalformedInput.
type Rasterizer interface {
	Split(ctx context.Context, documentID, filename string, content []byte) ([]domain.PageInput, error)
}

// TextExtractor turns a page into raw text. Failures are reported as
// domain.ErrExtractionUnavailable or domain.ErrExtraction and degrade the
// page to vision-only fusion; they never abort it.
type TextExtractor interface {
	Extract(ctx context.Context, page domain.PageInput) (string, error)
}

// VisionClassifier turns a page into a class probability vector. Callable in
// any model state; while the model is not ready it returns a deterministic
// simulated vector and simulated=true.
type VisionClassifier interface {
	Classify(ctx context.Context, page domain.PageInput) (probs domain.ClassProbabilities, simulated bool, err error)
}

// LexicalScorer turns raw page text into per-class keyword evidence plus the
// matched keywords per class ordered by score.
type LexicalScorer interface {
	Score(text string) (domain.LexicalScore, map[domain.Class][]string)
}

// ProgressSink receives ordered progress events. Publish must preserve
// emission order per document id; Close(documentID) ends that document's
// stream.
type ProgressSink interface {
	Publish(ctx context.Context, event domain.ProgressEvent)
	CloseDocument(documentID string)
}

// RecordRepository persists finalized records keyed by content hash.
// Stats performs the full aggregate rebuild used at startup; the hot path
// maintains counters incrementally.
type RecordRepository interface {
	Insert(ctx context.Context, record *domain.DocumentRecord) error
	GetByHash(ctx context.Context, contentHash string) (*domain.DocumentRecord, error)
	GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.DocumentRecord, error)
	Stats(ctx context.Context) (domain.Statistics, error)
}

// ObjectStorage keeps the raw uploaded source bytes.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// RecordQueue publishes/consumes finalized record ids for downstream storage.
type RecordQueue interface {
	PublishRecordFinalized(ctx context.Context, recordID string) error
	SubscribeRecordFinalized(ctx context.Context, handler func(context.Context, string) error) error
}

// RecordStore is the external ERP-style record store. Insertion success or
// failure is opaque to the core; the retry policy lives behind this port.
type RecordStore interface {
	CreateRecord(ctx context.Context, record *domain.DocumentRecord) (string, error)
	Ping(ctx context.Context) error
}
