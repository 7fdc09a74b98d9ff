package domain

// ProgressStep labels one stage of the per-page pipeline. Steps are emitted
// in the order declared below.
type ProgressStep string

const (
	StepPageStarted      ProgressStep = "page_started"
	StepTextExtracted    ProgressStep = "text_extracted"
	StepVisionClassified ProgressStep = "vision_classified"
	StepFusionComplete   ProgressStep = "fusion_complete"
	StepPageComplete     ProgressStep = "page_complete"
	StepDocumentComplete ProgressStep = "document_complete"
)

// ProgressEvent is one ephemeral progress notification. For a given
// DocumentID, Progress values are non-decreasing and steps follow the fixed
// stage order.
type ProgressEvent struct {
	Step       ProgressStep `json:"step"`
	Progress   float64      `json:"progress"`
	DocumentID string       `json:"document_id"`
	PageIndex  int          `json:"page_index"`
	Message    string       `json:"message,omitempty"`
}

// ModelPhase is the lifecycle phase of the vision model.
type ModelPhase string

const (
	ModelNotLoaded ModelPhase = "not_loaded"
	ModelLoading   ModelPhase = "loading"
	ModelReady     ModelPhase = "ready"
	ModelFailed    ModelPhase = "failed"
)

// ModelSnapshot is an atomic view of the vision model lifecycle. Progress is
// monotonically increasing within one load attempt.
type ModelSnapshot struct {
	Phase    ModelPhase `json:"phase"`
	Progress float64    `json:"progress"`
	Error    string     `json:"error,omitempty"`
}

// Simulation reports whether classification currently runs in simulation
// mode, i.e. the real model is not available.
func (s ModelSnapshot) Simulation() bool {
	return s.Phase != ModelReady
}
