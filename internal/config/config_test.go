package config

import "testing"

func TestLoadIncludesFusionDefaults(t *testing.T) {
	t.Setenv("FUSION_MAX_OCR_BOOST", "")
	t.Setenv("FUSION_OVERRIDE_THRESHOLD", "")
	t.Setenv("FUSION_HIGH_CONFIDENCE", "")
	t.Setenv("FUSION_TIE_EPSILON", "")
	t.Setenv("FUSION_KEYWORD_TOP_N", "")

	cfg := Load()
	if cfg.MaxOCRBoost != 0.08 {
		t.Fatalf("expected default max ocr boost 0.08, got %v", cfg.MaxOCRBoost)
	}
	if cfg.OverrideThreshold != 0.30 {
		t.Fatalf("expected default override threshold 0.30, got %v", cfg.OverrideThreshold)
	}
	if cfg.HighConfidence != 0.85 {
		t.Fatalf("expected default high confidence 0.85, got %v", cfg.HighConfidence)
	}
	if cfg.KeywordTopN != 5 {
		t.Fatalf("expected default keyword top n 5, got %d", cfg.KeywordTopN)
	}
}

func TestLoadParsesFusionOverrides(t *testing.T) {
	t.Setenv("FUSION_MAX_OCR_BOOST", "0.12")
	t.Setenv("FUSION_OVERRIDE_THRESHOLD", "0.5")
	t.Setenv("FUSION_HIGH_CONFIDENCE", "0.9")
	t.Setenv("PAGE_WORKERS", "8")

	cfg := Load()
	if cfg.MaxOCRBoost != 0.12 {
		t.Fatalf("expected max ocr boost override, got %v", cfg.MaxOCRBoost)
	}
	if cfg.OverrideThreshold != 0.5 {
		t.Fatalf("expected override threshold 0.5, got %v", cfg.OverrideThreshold)
	}
	if cfg.HighConfidence != 0.9 {
		t.Fatalf("expected high confidence 0.9, got %v", cfg.HighConfidence)
	}
	if cfg.PageWorkers != 8 {
		t.Fatalf("expected page workers 8, got %d", cfg.PageWorkers)
	}
}

func TestLoadFallsBackOnUnparsableNumbers(t *testing.T) {
	t.Setenv("FUSION_MAX_OCR_BOOST", "not-a-number")
	t.Setenv("MODEL_LOAD_TIMEOUT_MS", "soon")

	cfg := Load()
	if cfg.MaxOCRBoost != 0.08 {
		t.Fatalf("expected fallback max ocr boost, got %v", cfg.MaxOCRBoost)
	}
	if cfg.ModelLoadTimeoutMS != 60000 {
		t.Fatalf("expected fallback load timeout, got %d", cfg.ModelLoadTimeoutMS)
	}
}
