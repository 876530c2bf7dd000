package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/capture"
	apperrors "github.com/adverant/nexus/furigana-worker/internal/errors"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
)

// Enricher turns one recognized span into tokens
type Enricher interface {
	Enrich(ctx context.Context, span recognition.RawSpan) ([]annotation.Token, error)
}

// cycleJob is everything a cycle needs, snapshotted by the run loop when
// the cycle starts.
type cycleJob struct {
	id         uint64
	epoch      uint64
	session    string
	region     geometry.Region
	capture    capture.Source
	recognizer recognition.Source
}

type cycleResult struct {
	job    cycleJob
	set    *annotation.Set
	report CycleReport
}

// withTimeout runs fn under a deadline. fn keeps running in the background
// if it ignores ctx; its result is then dropped.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(tctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		timedOut := o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil
		return o.v, timedOut, o.err
	case <-tctx.Done():
		var zero T
		return zero, ctx.Err() == nil, tctx.Err()
	}
}

// runCycle executes capture, recognition and enrichment. It never touches
// pipeline state; the run loop decides what to do with the result.
func (p *Pipeline) runCycle(ctx context.Context, job cycleJob) cycleResult {
	startTime := time.Now()
	res := cycleResult{job: job}
	res.report = CycleReport{
		SessionID: job.session,
		CycleID:   job.id,
		Region:    job.region,
		Engine:    job.recognizer.Name(),
		StartedAt: startTime,
	}
	fail := func(err error) cycleResult {
		res.report.Outcome = OutcomeFailed
		res.report.Err = err
		res.report.Duration = time.Since(startTime)
		return res
	}

	// Step 1: Capture
	p.logger.Debug(fmt.Sprintf("[Cycle %d] Step 1: Capturing region %s", job.id, job.region))
	img, timedOut, err := withTimeout(ctx, p.cfg.CaptureTimeout, func(c context.Context) (image.Image, error) {
		return job.capture.Capture(c, job.region)
	})
	if err != nil {
		if timedOut {
			return fail(apperrors.NewStageTimeoutError(job.id, apperrors.ErrorCaptureFailed, "capture", p.cfg.CaptureTimeout, err))
		}
		return fail(apperrors.NewCaptureError(job.id, job.region.String(), err))
	}

	// Step 2: Recognition
	p.logger.Debug(fmt.Sprintf("[Cycle %d] Step 2: Recognizing with %s", job.id, job.recognizer.Name()))
	spans, timedOut, err := withTimeout(ctx, p.cfg.RecognitionTimeout, func(c context.Context) ([]recognition.RawSpan, error) {
		return job.recognizer.Recognize(c, img)
	})
	if err != nil {
		if timedOut {
			return fail(apperrors.NewStageTimeoutError(job.id, apperrors.ErrorRecognitionFailed, "recognition", p.cfg.RecognitionTimeout, err))
		}
		return fail(apperrors.NewRecognitionError(job.id, job.recognizer.Name(), err))
	}
	res.report.Spans = len(spans)

	// Step 3: Enrichment
	p.logger.Debug(fmt.Sprintf("[Cycle %d] Step 3: Enriching %d spans", job.id, len(spans)))
	perSpan, dropped := p.enrichAll(ctx, job.id, spans)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	res.report.DroppedSpans = dropped

	// Step 4: Assemble
	annotations := make([]annotation.Annotation, 0, len(spans))
	for i, tokens := range perSpan {
		for _, tok := range tokens {
			if strings.TrimSpace(tok.Surface) == "" {
				continue
			}
			annotations = append(annotations, annotation.NewAnnotation(tok, job.region, spans[i].Confidence))
		}
	}

	res.set = &annotation.Set{
		CycleID:     job.id,
		SessionID:   job.session,
		Timestamp:   time.Now(),
		Region:      job.region,
		Annotations: annotations,
	}
	res.report.Outcome = OutcomePublished
	res.report.Set = res.set
	res.report.Duration = time.Since(startTime)

	p.logger.Debug(fmt.Sprintf("[Cycle %d] Step 4: Assembled %d annotations", job.id, len(annotations)),
		"dropped_spans", dropped,
		"duration", res.report.Duration.String())
	return res
}

// enrichAll enriches spans concurrently, keeping span order. Failed spans
// yield nil and are counted as dropped.
func (p *Pipeline) enrichAll(ctx context.Context, cycleID uint64, spans []recognition.RawSpan) ([][]annotation.Token, int) {
	out := make([][]annotation.Token, len(spans))
	failed := make([]bool, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.EnrichConcurrency)
	for i := range spans {
		i := i
		g.Go(func() error {
			tokens, err := p.enricher.Enrich(gctx, spans[i])
			if err != nil {
				failed[i] = true
				if ctx.Err() == nil {
					perr := apperrors.NewEnrichmentError(cycleID, i, spans[i].Text, err)
					p.logger.Warn("Dropping span", "cycle", cycleID, "span", i, "error", perr)
				}
				return nil
			}
			out[i] = tokens
			return nil
		})
	}
	_ = g.Wait()

	dropped := 0
	for _, f := range failed {
		if f {
			dropped++
		}
	}
	return out, dropped
}
