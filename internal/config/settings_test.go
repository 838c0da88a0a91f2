package config

import "testing"

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("MAX_WORKERS", "")
		t.Setenv("OCR_CONFIDENCE_THRESHOLD", "")
		s := Load()
		if s.MaxWorkers != 10 {
			t.Errorf("MaxWorkers = %d, want 10", s.MaxWorkers)
		}
		if s.OCRThreshold != 0.7 {
			t.Errorf("OCRThreshold = %v, want 0.7", s.OCRThreshold)
		}
		if s.MaxFileSizeBytes() != 50<<20 {
			t.Errorf("MaxFileSizeBytes = %d", s.MaxFileSizeBytes())
		}
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("MAX_WORKERS", "3")
		t.Setenv("AI_CONCURRENCY", "0")
		t.Setenv("MOCK_AI", "true")
		t.Setenv("LLM_PROVIDER", "Gemini")
		s := Load()
		if s.MaxWorkers != 3 {
			t.Errorf("MaxWorkers = %d, want 3", s.MaxWorkers)
		}
		if s.AIConcurrency != 1 {
			t.Errorf("AIConcurrency should be clamped to 1, got %d", s.AIConcurrency)
		}
		if !s.MockAI {
			t.Error("MockAI should be true")
		}
		if s.LLMProvider != "gemini" {
			t.Errorf("LLMProvider = %q", s.LLMProvider)
		}
	})

	t.Run("garbage falls back", func(t *testing.T) {
		t.Setenv("MAX_WORKERS", "lots")
		if got := Load().MaxWorkers; got != 10 {
			t.Errorf("MaxWorkers = %d, want 10", got)
		}
	})
}
