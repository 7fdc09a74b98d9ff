package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// weightsFile is the on-disk model format: one linear layer over the byte
// histogram feature vector, with an explicit class order that must match the
// taxonomy exactly.
type weightsFile struct {
	Classes    []string    `json:"classes"`
	FeatureDim int         `json:"feature_dim"`
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
}

type weights struct {
	classes []domain.Class
	dim     int
	w       [][]float64
	b       []float64
}

// Model owns the vision classifier lifecycle. Status reads are lock-free;
// Classify is callable in every phase and falls back to deterministic
// simulation until a load succeeds.
type Model struct {
	path        string
	loadTimeout time.Duration

	snapshot atomic.Pointer[domain.ModelSnapshot]
	weights  atomic.Pointer[weights]

	mu      sync.Mutex
	loading bool
}

func NewModel(path string, loadTimeout time.Duration) *Model {
	m := &Model{path: path, loadTimeout: loadTimeout}
	m.setSnapshot(domain.ModelSnapshot{Phase: domain.ModelNotLoaded})
	return m
}

// Status never blocks.
func (m *Model) Status() domain.ModelSnapshot {
	return *m.snapshot.Load()
}

func (m *Model) setSnapshot(s domain.ModelSnapshot) {
	m.snapshot.Store(&s)
}

// SubmitLoad starts an asynchronous load. While a load is already in flight
// the call is a no-op; a finished load (ready or failed) may be retried.
func (m *Model) SubmitLoad() {
	m.mu.Lock()
	if m.loading {
		m.mu.Unlock()
		return
	}
	m.loading = true
	m.mu.Unlock()

	m.setSnapshot(domain.ModelSnapshot{Phase: domain.ModelLoading})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.loadTimeout)
		defer cancel()

		err := m.load(ctx)

		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()

		if err != nil {
			slog.Error("model load failed", "path", m.path, "error", err)
			m.setSnapshot(domain.ModelSnapshot{
				Phase: domain.ModelFailed,
				Error: domain.WrapError(domain.ErrModelLoad, "load model", err).Error(),
			})
			return
		}
		slog.Info("model ready", "path", m.path)
		m.setSnapshot(domain.ModelSnapshot{Phase: domain.ModelReady, Progress: 1})
	}()
}

func (m *Model) load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read weights: %w", err)
	}
	m.setSnapshot(domain.ModelSnapshot{Phase: domain.ModelLoading, Progress: 0.4})

	var file weightsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse weights: %w", err)
	}
	m.setSnapshot(domain.ModelSnapshot{Phase: domain.ModelLoading, Progress: 0.7})

	parsed, err := validateWeights(file)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.weights.Store(parsed)
	return nil
}

func validateWeights(file weightsFile) (*weights, error) {
	want := domain.Classes()
	if len(file.Classes) != len(want) {
		return nil, fmt.Errorf("weights declare %d classes, want %d", len(file.Classes), len(want))
	}
	classes := make([]domain.Class, len(file.Classes))
	for i, name := range file.Classes {
		if domain.Class(name) != want[i] {
			return nil, fmt.Errorf("class %q at index %d, want %q", name, i, want[i])
		}
		classes[i] = want[i]
	}

	if file.FeatureDim <= 0 || file.FeatureDim > 256 {
		return nil, fmt.Errorf("feature_dim %d out of range", file.FeatureDim)
	}
	if len(file.Weights) != len(classes) || len(file.Bias) != len(classes) {
		return nil, fmt.Errorf("weight rows %d / bias %d, want %d", len(file.Weights), len(file.Bias), len(classes))
	}
	for i, row := range file.Weights {
		if len(row) != file.FeatureDim {
			return nil, fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), file.FeatureDim)
		}
	}

	return &weights{classes: classes, dim: file.FeatureDim, w: file.Weights, b: file.Bias}, nil
}

// Classify scores one page. With loaded weights it runs the linear layer
// over the page's byte histogram; otherwise it returns a deterministic
// simulated vector so the pipeline keeps a stable contract.
func (m *Model) Classify(ctx context.Context, page domain.PageInput) (domain.ClassProbabilities, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if len(page.Bytes) == 0 {
		return nil, false, domain.WrapError(domain.ErrMalformedInput, "classify page", fmt.Errorf("page %d is empty", page.PageIndex))
	}

	w := m.weights.Load()
	if w == nil || m.Status().Simulation() {
		return simulate(page.Bytes), true, nil
	}

	features := byteHistogram(page.Bytes, w.dim)
	logits := make([]float64, len(w.classes))
	for i := range w.classes {
		sum := w.b[i]
		for j, f := range features {
			sum += w.w[i][j] * f
		}
		logits[i] = sum
	}

	probs := softmax(logits)
	out := make(domain.ClassProbabilities, len(w.classes))
	for i, class := range w.classes {
		out[class] = probs[i]
	}
	return out, false, nil
}

// byteHistogram folds the page's byte distribution into dim buckets and
// normalizes it to a unit-sum feature vector.
func byteHistogram(data []byte, dim int) []float64 {
	hist := make([]float64, dim)
	for _, b := range data {
		hist[int(b)%dim]++
	}
	total := float64(len(data))
	for i := range hist {
		hist[i] /= total
	}
	return hist
}

func softmax(logits []float64) []float64 {
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
