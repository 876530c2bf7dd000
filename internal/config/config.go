/**
 * Configuration for the Furigana Overlay Worker
 *
 * Values come from an optional YAML file (OVERLAY_CONFIG_FILE) and are
 * overridden by environment variables matching .env.furigana.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OCR engine identifiers
const (
	EngineTesseract = "tesseract"
	EnginePaddle    = "paddle"
)

// Config holds worker configuration
type Config struct {
	// Capture loop
	CaptureIntervalMs    int  `yaml:"captureIntervalMs"`
	CaptureTimeoutMs     int  `yaml:"captureTimeoutMs"`
	RecognitionTimeoutMs int  `yaml:"recognitionTimeoutMs"`
	RetainRegionOnStop   bool `yaml:"retainRegionOnStop"`

	// OCR configuration
	OCREngine         string  `yaml:"ocrEngine"`
	OCRLanguage       string  `yaml:"ocrLanguage"`
	TesseractPSM      int     `yaml:"tesseractPsm"`
	TessdataPrefix    string  `yaml:"tessdataPrefix"`
	PaddleURL         string  `yaml:"paddleUrl"`
	OCRScale          float64 `yaml:"ocrScale"`
	BinarizeThreshold int     `yaml:"binarizeThreshold"`
	MergeWords        bool    `yaml:"mergeWords"`

	// Dictionary configuration
	DictionarySource  string `yaml:"dictionarySource"`
	SearchLimit       int    `yaml:"searchLimit"`
	FuzzyLookup       bool   `yaml:"fuzzyLookup"`
	EnrichConcurrency int    `yaml:"enrichConcurrency"`

	// Redis: annotation publishing, lookup cache and remote commands
	RedisURL    string `yaml:"redisUrl"`
	RedisPrefix string `yaml:"redisPrefix"`

	// PostgreSQL: cycle history
	DatabaseURL string `yaml:"databaseUrl"`

	// Overlay
	DevicePixelRatio float64 `yaml:"devicePixelRatio"`
	SnapshotFont     string  `yaml:"snapshotFont"`

	LogLevel string `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CaptureIntervalMs:    3000,
		CaptureTimeoutMs:     2000,
		RecognitionTimeoutMs: 10000,
		OCREngine:            EngineTesseract,
		OCRLanguage:          "jpn",
		TesseractPSM:         6,
		PaddleURL:            "http://127.0.0.1:8866/predict/ocr_system",
		OCRScale:             2.0,
		MergeWords:           true,
		SearchLimit:          3,
		FuzzyLookup:          true,
		EnrichConcurrency:    4,
		RedisPrefix:          "furigana",
		DevicePixelRatio:     1.0,
		LogLevel:             "info",
	}
}

// LoadConfig loads configuration from the optional YAML file and environment variables
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("OVERLAY_CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.CaptureIntervalMs = getEnvAsIntOrDefault("CAPTURE_INTERVAL_MS", cfg.CaptureIntervalMs)
	cfg.CaptureTimeoutMs = getEnvAsIntOrDefault("CAPTURE_TIMEOUT_MS", cfg.CaptureTimeoutMs)
	cfg.RecognitionTimeoutMs = getEnvAsIntOrDefault("RECOGNITION_TIMEOUT_MS", cfg.RecognitionTimeoutMs)
	cfg.RetainRegionOnStop = getEnvAsBoolOrDefault("RETAIN_REGION_ON_STOP", cfg.RetainRegionOnStop)
	cfg.OCREngine = strings.ToLower(getEnvOrDefault("OCR_ENGINE", cfg.OCREngine))
	cfg.OCRLanguage = getEnvOrDefault("OCR_LANGUAGE", cfg.OCRLanguage)
	cfg.TesseractPSM = getEnvAsIntOrDefault("TESSERACT_PSM", cfg.TesseractPSM)
	cfg.TessdataPrefix = getEnvOrDefault("TESSDATA_PREFIX", cfg.TessdataPrefix)
	cfg.PaddleURL = getEnvOrDefault("PADDLE_URL", cfg.PaddleURL)
	cfg.OCRScale = getEnvAsFloatOrDefault("OCR_SCALE", cfg.OCRScale)
	cfg.BinarizeThreshold = getEnvAsIntOrDefault("OCR_BINARIZE_THRESHOLD", cfg.BinarizeThreshold)
	cfg.MergeWords = getEnvAsBoolOrDefault("OCR_MERGE_WORDS", cfg.MergeWords)
	cfg.DictionarySource = getEnvOrDefault("DICTIONARY_SOURCE", cfg.DictionarySource)
	cfg.SearchLimit = getEnvAsIntOrDefault("DICTIONARY_SEARCH_LIMIT", cfg.SearchLimit)
	cfg.FuzzyLookup = getEnvAsBoolOrDefault("DICTIONARY_FUZZY", cfg.FuzzyLookup)
	cfg.EnrichConcurrency = getEnvAsIntOrDefault("ENRICH_CONCURRENCY", cfg.EnrichConcurrency)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = getEnvOrDefault("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.DevicePixelRatio = getEnvAsFloatOrDefault("DEVICE_PIXEL_RATIO", cfg.DevicePixelRatio)
	cfg.SnapshotFont = getEnvOrDefault("SNAPSHOT_FONT", cfg.SnapshotFont)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.CaptureIntervalMs <= 0 {
		return fmt.Errorf("CAPTURE_INTERVAL_MS must be positive, got %d", c.CaptureIntervalMs)
	}

	if c.CaptureTimeoutMs <= 0 {
		return fmt.Errorf("CAPTURE_TIMEOUT_MS must be positive, got %d", c.CaptureTimeoutMs)
	}

	if c.RecognitionTimeoutMs <= 0 {
		return fmt.Errorf("RECOGNITION_TIMEOUT_MS must be positive, got %d", c.RecognitionTimeoutMs)
	}

	if c.OCREngine != EngineTesseract && c.OCREngine != EnginePaddle {
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineTesseract, EnginePaddle, c.OCREngine)
	}

	if c.OCREngine == EnginePaddle && c.PaddleURL == "" {
		return fmt.Errorf("PADDLE_URL is required for the paddle engine")
	}

	if c.OCRScale < 1.0 || c.OCRScale > 4.0 {
		return fmt.Errorf("OCR_SCALE must be between 1.0 and 4.0, got %.2f", c.OCRScale)
	}

	if c.BinarizeThreshold < 0 || c.BinarizeThreshold > 254 {
		return fmt.Errorf("OCR_BINARIZE_THRESHOLD must be between 0 and 254, got %d", c.BinarizeThreshold)
	}

	if c.SearchLimit < 1 {
		return fmt.Errorf("DICTIONARY_SEARCH_LIMIT must be at least 1, got %d", c.SearchLimit)
	}

	if c.EnrichConcurrency < 1 || c.EnrichConcurrency > 64 {
		return fmt.Errorf("ENRICH_CONCURRENCY must be between 1 and 64, got %d", c.EnrichConcurrency)
	}

	if c.DevicePixelRatio <= 0 {
		return fmt.Errorf("DEVICE_PIXEL_RATIO must be positive, got %.2f", c.DevicePixelRatio)
	}

	return nil
}

// CaptureInterval returns the periodic cadence.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalMs) * time.Millisecond
}

// CaptureTimeout bounds one capture call.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutMs) * time.Millisecond
}

// RecognitionTimeout bounds one recognition call.
func (c *Config) RecognitionTimeout() time.Duration {
	return time.Duration(c.RecognitionTimeoutMs) * time.Millisecond
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloatOrDefault gets environment variable as float64 or returns default
func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsBoolOrDefault gets environment variable as bool or returns default
func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
