/**
 * Furigana Overlay Worker - Main Entry Point
 *
 * Captures a screen region on a cadence, recognizes Japanese text and
 * publishes positioned readings and glosses to the overlay.
 *
 * Architecture:
 * - Pipeline run loop (state machine + one cycle in flight)
 * - Screen capture via kbinani/screenshot, popup areas masked out
 * - OCR: Tesseract (gosseract) or a PaddleOCR serving endpoint
 * - Enrichment: kagome morphological analysis + dictionary lookup
 * - Optional Redis: annotation pub/sub, lookup cache, asynq remote commands
 * - Optional PostgreSQL: cycle history, dictionary table
 *
 * Commands are read from stdin, see console.go.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/furigana-worker/internal/capture"
	"github.com/adverant/nexus/furigana-worker/internal/config"
	"github.com/adverant/nexus/furigana-worker/internal/enrich"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
	"github.com/adverant/nexus/furigana-worker/internal/overlay"
	"github.com/adverant/nexus/furigana-worker/internal/pipeline"
	"github.com/adverant/nexus/furigana-worker/internal/queue"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
	"github.com/adverant/nexus/furigana-worker/internal/storage"
)

const lookupCacheTTL = 24 * time.Hour

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.furigana"); err != nil {
		log.Printf("Warning: .env.furigana not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := logging.NewLogger("Main")
	sessionID := uuid.NewString()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Furigana overlay worker starting",
		"session", sessionID,
		"engine", cfg.OCREngine,
		"interval_ms", cfg.CaptureIntervalMs)

	// Overlay layer doubles as capture mask provider
	layer := overlay.NewLayer(sessionID, cfg.DevicePixelRatio)
	snap, err := overlay.NewSnapshotter(cfg.SnapshotFont, 14)
	if err != nil {
		return err
	}

	// Recognition
	engines := func(name string) (recognition.Source, error) {
		return recognition.New(name, recognition.Options{
			Language:          cfg.OCRLanguage,
			PageSegMode:       cfg.TesseractPSM,
			TessdataPrefix:    cfg.TessdataPrefix,
			PaddleURL:         cfg.PaddleURL,
			Scale:             cfg.OCRScale,
			BinarizeThreshold: cfg.BinarizeThreshold,
			MergeWords:        cfg.MergeWords,
		})
	}
	recognizer, err := engines(cfg.OCREngine)
	if err != nil {
		return err
	}

	// Enrichment
	tok, err := enrich.NewKagomeTokenizer()
	if err != nil {
		return err
	}
	dict, closeDict, err := enrich.OpenDictionary(ctx, cfg.DictionarySource, cfg.FuzzyLookup)
	if err != nil {
		return fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer closeDict()

	var observers []pipeline.Observer

	// Redis: lookup cache + annotation publisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		cacheClient := redis.NewClient(opts)
		defer cacheClient.Close()
		dict = enrich.NewCachedDictionary(dict, enrich.NewRedisStore(cacheClient), cfg.RedisPrefix, lookupCacheTTL)

		publisher, err := queue.NewAnnotationPublisher(ctx, cfg.RedisURL, cfg.RedisPrefix, sessionID)
		if err != nil {
			return err
		}
		observers = append(observers, publisher)
	}

	// PostgreSQL: cycle history
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return err
		}
		observers = append(observers, storage.NewCycleHistory(pg))
		logger.Info("Cycle history enabled")
	}

	pipe := pipeline.New(pipeline.Config{
		SessionID:          sessionID,
		Interval:           cfg.CaptureInterval(),
		CaptureTimeout:     cfg.CaptureTimeout(),
		RecognitionTimeout: cfg.RecognitionTimeout(),
		RetainRegionOnStop: cfg.RetainRegionOnStop,
		EnrichConcurrency:  cfg.EnrichConcurrency,
	}, pipeline.Dependencies{
		Capture:    capture.WithMasks(capture.NewScreenCapture(), layer),
		Recognizer: recognizer,
		Enricher:   enrich.NewEnricher(tok, dict, cfg.SearchLimit),
		Surface:    layer,
		Observers:  observers,
	})

	// Remote commands
	var commands *queue.CommandServer
	if cfg.RedisURL != "" {
		commands, err = queue.NewCommandServer(&queue.CommandServerConfig{
			RedisURL:   cfg.RedisURL,
			Controller: pipe,
		})
		if err != nil {
			return err
		}
		if err := commands.Start(); err != nil {
			return fmt.Errorf("failed to start command server: %w", err)
		}
		defer commands.Stop()
	}

	con := &console{
		ctl:     pipe,
		layer:   layer,
		snap:    snap,
		engines: engines,
		out:     os.Stdout,
	}

	logger.Info("Worker ready, waiting for commands")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := pipe.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runCtx, cancel := context.WithCancel(gctx)
		defer cancel()
		go func() {
			// quit from any source ends the console too
			select {
			case <-pipe.Done():
				cancel()
			case <-runCtx.Done():
			}
		}()
		return con.run(runCtx, os.Stdin)
	})

	err = g.Wait()
	logger.Info("Shutdown complete", "last_cycle", pipe.Current().CycleID)
	return err
}
