package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
	"github.com/arkeyez/arkdoc/internal/core/ports"
)

// PipelineConfig tunes per-document page processing.
type PipelineConfig struct {
	// PageWorkers bounds how many pages of one document run concurrently.
	PageWorkers int
	// PageOCRTimeout downgrades a slow page extraction to empty text instead
	// of blocking the pipeline.
	PageOCRTimeout time.Duration
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.PageWorkers <= 0 {
		out.PageWorkers = 4
	}
	if out.PageOCRTimeout <= 0 {
		out.PageOCRTimeout = 15 * time.Second
	}
	return out
}

// PagePipeline fans a multi-page document out over a bounded worker pool.
// Each page's text extraction and vision classification run concurrently;
// fusion runs once both complete. Results reassemble in page index order
// regardless of completion order.
type PagePipeline struct {
	rasterizer ports.Rasterizer
	extractor  ports.TextExtractor
	vision     ports.VisionClassifier
	scorer     ports.LexicalScorer
	fusion     *FusionEngine
	progress   ports.ProgressSink
	cfg        PipelineConfig
}

func NewPagePipeline(
	rasterizer ports.Rasterizer,
	extractor ports.TextExtractor,
	vision ports.VisionClassifier,
	scorer ports.LexicalScorer,
	fusion *FusionEngine,
	progress ports.ProgressSink,
	cfg PipelineConfig,
) *PagePipeline {
	return &PagePipeline{
		rasterizer: rasterizer,
		extractor:  extractor,
		vision:     vision,
		scorer:     scorer,
		fusion:     fusion,
		progress:   progress,
		cfg:        cfg.normalize(),
	}
}

// Process classifies every page of one document. A single page's extraction
// failure degrades that page to a vision-only result but never aborts its
// siblings. Cancelling ctx stops issuing new page work; in-flight pages are
// abandoned and nothing is committed.
func (p *PagePipeline) Process(ctx context.Context, documentID, filename string, content []byte) ([]domain.FusionResult, error) {
	pages, err := p.rasterizer.Split(ctx, documentID, filename, content)
	if err != nil {
		return nil, err
	}

	tracker := newProgressTracker(p.progress, documentID, len(pages))
	defer p.progress.CloseDocument(documentID)

	results := make([]domain.FusionResult, len(pages))
	sem := make(chan struct{}, p.cfg.PageWorkers)
	var wg sync.WaitGroup

	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(page domain.PageInput) {
			defer wg.Done()
			defer func() { <-sem }()
			results[page.PageIndex] = p.processPage(ctx, page, tracker)
		}(page)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	tracker.documentComplete(ctx)
	return results, nil
}

func (p *PagePipeline) processPage(ctx context.Context, page domain.PageInput, tracker *progressTracker) domain.FusionResult {
	tracker.step(ctx, domain.StepPageStarted, page.PageIndex, "")

	var (
		text      string
		probs     domain.ClassProbabilities
		simulated bool
		inner     sync.WaitGroup
	)

	inner.Add(2)
	go func() {
		defer inner.Done()
		text = p.extractPageText(ctx, page)
	}()
	go func() {
		defer inner.Done()
		probs, simulated, _ = p.vision.Classify(ctx, page)
	}()
	inner.Wait()

	tracker.step(ctx, domain.StepTextExtracted, page.PageIndex, "")
	tracker.step(ctx, domain.StepVisionClassified, page.PageIndex, "")

	lexical, keywords := p.scorer.Score(text)
	result := p.fusion.Fuse(probs, lexical, keywords, text, simulated, page.PageIndex)
	tracker.step(ctx, domain.StepFusionComplete, page.PageIndex, result.Summary)
	tracker.step(ctx, domain.StepPageComplete, page.PageIndex, "")
	return result
}

// extractPageText runs OCR with the configured timeout. Extraction failure
// is a degradation, not an error: the page proceeds with empty text.
func (p *PagePipeline) extractPageText(ctx context.Context, page domain.PageInput) string {
	extractCtx, cancel := context.WithTimeout(ctx, p.cfg.PageOCRTimeout)
	defer cancel()

	text, err := p.extractor.Extract(extractCtx, page)
	if err != nil {
		level := slog.LevelWarn
		if domain.IsKind(err, domain.ErrExtractionUnavailable) {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "page_text_extraction_degraded",
			"document_id", page.DocumentID,
			"page_index", page.PageIndex,
			"error", err,
		)
		return ""
	}
	return text
}

// progressTracker computes monotonically non-decreasing document progress
// across concurrently completing pages. Pages interleave freely; each page's
// own steps are emitted in stage order.
type progressTracker struct {
	sink       ports.ProgressSink
	documentID string

	mu         sync.Mutex
	doneSteps  int
	totalSteps int
}

const stepsPerPage = 5

func newProgressTracker(sink ports.ProgressSink, documentID string, pageCount int) *progressTracker {
	return &progressTracker{
		sink:       sink,
		documentID: documentID,
		totalSteps: pageCount*stepsPerPage + 1,
	}
}

func (t *progressTracker) step(ctx context.Context, step domain.ProgressStep, pageIndex int, message string) {
	t.mu.Lock()
	t.doneSteps++
	progress := float64(t.doneSteps) / float64(t.totalSteps)
	event := domain.ProgressEvent{
		Step:       step,
		Progress:   progress,
		DocumentID: t.documentID,
		PageIndex:  pageIndex,
		Message:    message,
	}
	// Publish under the lock so progress values leave in emission order.
	t.sink.Publish(ctx, event)
	t.mu.Unlock()
}

func (t *progressTracker) documentComplete(ctx context.Context) {
	t.mu.Lock()
	t.doneSteps = t.totalSteps
	t.sink.Publish(ctx, domain.ProgressEvent{
		Step:       domain.StepDocumentComplete,
		Progress:   1.0,
		DocumentID: t.documentID,
	})
	t.mu.Unlock()
}
