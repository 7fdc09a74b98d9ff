package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
)

// Aggregator owns the dedup index and the running statistics. All writes go
// through one mutex (single-writer discipline), so concurrent submissions
// cannot lose counter updates and a duplicate racing its original commits
// exactly once.
type Aggregator struct {
	repo         ports.RecordRepository
	historyLimit int

	mu      chan struct{} // buffered(1): held across the repo round-trip, unlike sync.Mutex usable with ctx
	stats   domain.Statistics
	history []domain.DocumentRecord
}

func NewAggregator(repo ports.RecordRepository, historyLimit int) *Aggregator {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	a := &Aggregator{
		repo:         repo,
		historyLimit: historyLimit,
		mu:           make(chan struct{}, 1),
		stats:        emptyStats(),
	}
	return a
}

func emptyStats() domain.Statistics {
	byClass := make(map[domain.Class]int, len(domain.Classes()))
	for _, c := range domain.Classes() {
		byClass[c] = 0
	}
	return domain.Statistics{ByClass: byClass}
}

func (a *Aggregator) lock(ctx context.Context) error {
	select {
	case a.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Aggregator) unlock() { <-a.mu }

// Rebuild recomputes the in-memory aggregate from the durable store. Called
// once at startup; the hot path only mutates counters incrementally.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	if err := a.lock(ctx); err != nil {
		return err
	}
	defer a.unlock()

	stats, err := a.repo.Stats(ctx)
	if err != nil {
		return fmt.Errorf("rebuild statistics: %w", err)
	}
	history, err := a.repo.ListRecent(ctx, a.historyLimit)
	if err != nil {
		return fmt.Errorf("rebuild history: %w", err)
	}

	if stats.ByClass == nil {
		stats.ByClass = emptyStats().ByClass
	}
	a.stats = stats
	a.history = history
	return nil
}

// Lookup returns the cached record for a content hash, if any.
func (a *Aggregator) Lookup(ctx context.Context, contentHash string) (*domain.DocumentRecord, error) {
	record, err := a.repo.GetByHash(ctx, contentHash)
	if err != nil {
		if domain.IsKind(err, domain.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// Commit creates the record for a freshly classified document and updates
// the running statistics. If an identical document raced us in, the existing
// record is returned unchanged and statistics are not touched.
func (a *Aggregator) Commit(
	ctx context.Context,
	filename, uploadedBy, contentHash string,
	result domain.FusionResult,
	pageCount int,
) (*domain.DocumentRecord, bool, error) {
	if err := a.lock(ctx); err != nil {
		return nil, false, err
	}
	defer a.unlock()

	existing, err := a.repo.GetByHash(ctx, contentHash)
	if err == nil {
		return existing, false, nil
	}
	if !domain.IsKind(err, domain.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("dedup lookup: %w", err)
	}

	record := &domain.DocumentRecord{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentHash: contentHash,
		Result:      result,
		PageCount:   pageCount,
		UploadedBy:  uploadedBy,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.repo.Insert(ctx, record); err != nil {
		return nil, false, fmt.Errorf("insert record: %w", err)
	}

	a.applyRecord(record)
	return record, true, nil
}

// applyRecord advances the running counters with one new record. The average
// is a running weighted mean, never recomputed from history.
func (a *Aggregator) applyRecord(record *domain.DocumentRecord) {
	a.stats.Total++
	a.stats.ByClass[record.Result.DocumentClass]++
	a.stats.AvgConfidence += (record.Result.Confidence - a.stats.AvgConfidence) / float64(a.stats.Total)

	a.history = append([]domain.DocumentRecord{*record}, a.history...)
	if len(a.history) > a.historyLimit {
		a.history = a.history[:a.historyLimit]
	}
}

// Stats returns a snapshot of the running counters.
func (a *Aggregator) Stats(ctx context.Context) (domain.Statistics, error) {
	if err := a.lock(ctx); err != nil {
		return domain.Statistics{}, err
	}
	defer a.unlock()

	out := domain.Statistics{
		Total:         a.stats.Total,
		AvgConfidence: a.stats.AvgConfidence,
		ByClass:       make(map[domain.Class]int, len(a.stats.ByClass)),
	}
	for c, n := range a.stats.ByClass {
		out.ByClass[c] = n
	}
	return out, nil
}

// History returns the bounded most-recent-first record list.
func (a *Aggregator) History(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	if err := a.lock(ctx); err != nil {
		return nil, err
	}
	defer a.unlock()

	if limit <= 0 || limit > len(a.history) {
		limit = len(a.history)
	}
	out := make([]domain.DocumentRecord, limit)
	copy(out, a.history[:limit])
	return out, nil
}
