package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
)

// SubmitDocumentUseCase orchestrates one submission end to end: dedup by
// content hash, source archival, page pipeline, aggregation, and the
// downstream hand-off.
type SubmitDocumentUseCase struct {
	storage    ports.ObjectStorage
	pipeline   *PagePipeline
	aggregator *Aggregator
	queue      ports.RecordQueue
}

func NewSubmitDocumentUseCase(
	storage ports.ObjectStorage,
	pipeline *PagePipeline,
	aggregator *Aggregator,
	queue ports.RecordQueue,
) *SubmitDocumentUseCase {
	return &SubmitDocumentUseCase{
		storage:    storage,
		pipeline:   pipeline,
		aggregator: aggregator,
		queue:      queue,
	}
}

// Submit classifies one document. Resubmission of identical bytes returns
// the cached record with created=false and never reprocesses. A cancelled
// submission commits nothing.
func (uc *SubmitDocumentUseCase) Submit(ctx context.Context, req ports.SubmitRequest) (*domain.DocumentRecord, bool, error) {
	if len(req.Content) == 0 {
		return nil, false, domain.WrapError(domain.ErrMalformedInput, "submit document", errors.New("empty content"))
	}

	hash := contentHash(req.Content)
	if cached, err := uc.aggregator.Lookup(ctx, hash); err != nil {
		return nil, false, fmt.Errorf("dedup lookup: %w", err)
	} else if cached != nil {
		slog.Info("duplicate_submission_short_circuited", "content_hash", hash, "record_id", cached.ID)
		return cached, false, nil
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}

	storageKey := fmt.Sprintf("%s_%s", documentID, sanitizeFilename(req.Filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(req.Content)); err != nil {
		return nil, false, fmt.Errorf("archive source document: %w", err)
	}

	results, err := uc.pipeline.Process(ctx, documentID, req.Filename, req.Content)
	if err != nil {
		return nil, false, err
	}

	merged := MergeResults(results)
	record, created, err := uc.aggregator.Commit(ctx, req.Filename, req.UploadedBy, hash, merged, len(results))
	if err != nil {
		return nil, false, err
	}

	if created {
		// The record is durable already; the downstream connector owns the
		// retry policy, so a publish failure must not fail the submission.
		if err := uc.queue.PublishRecordFinalized(ctx, record.ID); err != nil {
			slog.Warn("record_finalized_publish_failed", "record_id", record.ID, "error", err)
		}
	}
	return record, created, nil
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}

// MergeResults folds per-page results into a single document-level decision:
// the class with the highest confidence-weighted vote wins, confidence is the
// mean over pages, keywords union in page order, and a single simulated page
// marks the whole document as simulated.
func MergeResults(results []domain.FusionResult) domain.FusionResult {
	if len(results) == 0 {
		return domain.FusionResult{}
	}
	if len(results) == 1 {
		return results[0]
	}

	votes := make(map[domain.Class]float64, len(domain.Classes()))
	merged := domain.FusionResult{}
	seen := make(map[string]struct{})
	var texts []string

	for _, r := range results {
		votes[r.DocumentClass] += r.Confidence
		merged.Confidence += r.Confidence
		merged.CNNConfidence += r.CNNConfidence
		merged.OCRBoost += r.OCRBoost
		merged.FusionApplied = merged.FusionApplied || r.FusionApplied
		merged.IsSimulation = merged.IsSimulation || r.IsSimulation
		for _, kw := range r.Keywords {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			merged.Keywords = append(merged.Keywords, kw)
		}
		if r.OCRText != "" {
			texts = append(texts, r.OCRText)
		}
	}

	n := float64(len(results))
	merged.Confidence /= n
	merged.CNNConfidence /= n
	merged.OCRBoost /= n
	merged.OCRText = strings.Join(texts, "\n\n")

	merged.DocumentClass = domain.Classes()[0]
	bestVote := votes[merged.DocumentClass]
	for _, c := range domain.Classes()[1:] {
		if votes[c] > bestVote {
			merged.DocumentClass = c
			bestVote = votes[c]
		}
	}
	merged.Summary = summarize(merged)
	return merged
}
