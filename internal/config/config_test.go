package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OVERLAY_CONFIG_FILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CaptureInterval() != 3*time.Second {
		t.Errorf("interval = %v, want 3s", cfg.CaptureInterval())
	}
	if cfg.OCREngine != EngineTesseract {
		t.Errorf("engine = %q", cfg.OCREngine)
	}
	if cfg.RetainRegionOnStop {
		t.Error("retainRegionOnStop should default to false")
	}
	if cfg.SearchLimit != 3 || !cfg.FuzzyLookup {
		t.Errorf("dictionary defaults = %d/%v", cfg.SearchLimit, cfg.FuzzyLookup)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("OVERLAY_CONFIG_FILE", "")
	t.Setenv("CAPTURE_INTERVAL_MS", "500")
	t.Setenv("OCR_ENGINE", "PADDLE")
	t.Setenv("RETAIN_REGION_ON_STOP", "true")
	t.Setenv("DICTIONARY_SOURCE", "/data/jmdict.jsonl")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CaptureIntervalMs != 500 {
		t.Errorf("interval = %d", cfg.CaptureIntervalMs)
	}
	if cfg.OCREngine != EnginePaddle {
		t.Errorf("engine = %q, want lower-cased paddle", cfg.OCREngine)
	}
	if !cfg.RetainRegionOnStop {
		t.Error("retainRegionOnStop override ignored")
	}
	if cfg.DictionarySource != "/data/jmdict.jsonl" {
		t.Errorf("dictionarySource = %q", cfg.DictionarySource)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay.yaml")
	body := "captureIntervalMs: 1500\nocrEngine: paddle\nsearchLimit: 5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OVERLAY_CONFIG_FILE", path)
	t.Setenv("DICTIONARY_SEARCH_LIMIT", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.CaptureIntervalMs != 1500 {
		t.Errorf("file value ignored: %d", cfg.CaptureIntervalMs)
	}
	if cfg.OCREngine != EnginePaddle {
		t.Errorf("engine = %q", cfg.OCREngine)
	}
	if cfg.SearchLimit != 2 {
		t.Errorf("env should override file, got %d", cfg.SearchLimit)
	}
	if cfg.OCRLanguage != "jpn" {
		t.Errorf("unset keys keep defaults, got %q", cfg.OCRLanguage)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero interval", func(c *Config) { c.CaptureIntervalMs = 0 }, "CAPTURE_INTERVAL_MS"},
		{"unknown engine", func(c *Config) { c.OCREngine = "easyocr" }, "OCR_ENGINE"},
		{"paddle without url", func(c *Config) { c.OCREngine = EnginePaddle; c.PaddleURL = "" }, "PADDLE_URL"},
		{"scale too large", func(c *Config) { c.OCRScale = 8 }, "OCR_SCALE"},
		{"threshold out of range", func(c *Config) { c.BinarizeThreshold = 300 }, "OCR_BINARIZE_THRESHOLD"},
		{"no concurrency", func(c *Config) { c.EnrichConcurrency = 0 }, "ENRICH_CONCURRENCY"},
		{"bad ratio", func(c *Config) { c.DevicePixelRatio = 0 }, "DEVICE_PIXEL_RATIO"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() = %v, want error mentioning %s", err, tc.wantErr)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
