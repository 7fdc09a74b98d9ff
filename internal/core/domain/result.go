package domain

import "time"

// PageInput is one rasterized page of a submitted document. It is immutable
// once created and owned by the pipeline invocation that produced it.
type PageInput struct {
	Bytes        []byte
	PageIndex    int
	DocumentID   string
	EmbeddedText string // text captured during rasterization, if the format carries any
}

// FusionResult is the per-page classification decision. Created once by the
// fusion engine and never mutated afterwards.
type FusionResult struct {
	DocumentClass Class    `json:"document_class"`
	Confidence    float64  `json:"confidence"`
	CNNConfidence float64  `json:"cnn_confidence"`
	OCRBoost      float64  `json:"ocr_boost"`
	FusionApplied bool     `json:"fusion_applied"`
	Keywords      []string `json:"keywords"`
	Summary       string   `json:"summary"`
	OCRText       string   `json:"ocr_text,omitempty"`
	IsSimulation  bool     `json:"is_simulation"`
	PageIndex     int      `json:"page_index"`
}

// DocumentRecord is the finalized per-document result handed to storage.
// ContentHash is the dedup key: two records sharing a hash are the same
// logical document.
type DocumentRecord struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	ContentHash string       `json:"content_hash"`
	Result      FusionResult `json:"result"`
	PageCount   int          `json:"page_count"`
	UploadedBy  string       `json:"uploaded_by"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Statistics are the running per-class counters over all accepted records.
// AvgConfidence is a running weighted mean, never recomputed on the hot path.
type Statistics struct {
	Total         int           `json:"total"`
	ByClass       map[Class]int `json:"by_class"`
	AvgConfidence float64       `json:"avg_confidence"`
}
