package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	apperrors "github.com/adverant/nexus/furigana-worker/internal/errors"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// Outcome classifies a finished cycle
type Outcome string

const (
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
	OutcomeDiscarded Outcome = "discarded"
)

// CycleReport describes one finished cycle for observers
type CycleReport struct {
	SessionID    string
	CycleID      uint64
	Outcome      Outcome
	Region       geometry.Region
	Engine       string
	Set          *annotation.Set // nil unless published
	Spans        int
	DroppedSpans int
	StartedAt    time.Time
	Duration     time.Duration
	Err          error
}

// ErrorCode returns the pipeline error code of Err, if any.
func (r CycleReport) ErrorCode() string {
	return string(apperrors.CodeOf(r.Err))
}

// MeanConfidence averages annotation confidence of the published set.
func (r CycleReport) MeanConfidence() float64 {
	if r.Set.Len() == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range r.Set.Annotations {
		sum += a.Confidence
	}
	return sum / float64(len(r.Set.Annotations))
}

// Observer receives cycle reports off the run loop
type Observer interface {
	ObserveCycle(ctx context.Context, report CycleReport) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report CycleReport) error

// ObserveCycle calls f.
func (f ObserverFunc) ObserveCycle(ctx context.Context, report CycleReport) error {
	return f(ctx, report)
}

const (
	dispatchBuffer  = 32
	observerTimeout = 5 * time.Second
)

// dispatcher fans reports out to observers on its own goroutine
type dispatcher struct {
	observers []Observer
	queue     chan CycleReport
	wg        sync.WaitGroup
	once      sync.Once
	logger    *logging.Logger
}

func newDispatcher(observers []Observer) *dispatcher {
	d := &dispatcher{
		observers: observers,
		queue:     make(chan CycleReport, dispatchBuffer),
		logger:    logging.NewLogger("Observers"),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for report := range d.queue {
		for _, o := range d.observers {
			ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
			if err := o.ObserveCycle(ctx, report); err != nil {
				d.logger.Warn("Observer failed", "cycle", report.CycleID, "error", err)
			}
			cancel()
		}
	}
}

// dispatch enqueues without blocking; a full queue drops the report.
func (d *dispatcher) dispatch(report CycleReport) {
	if len(d.observers) == 0 {
		return
	}
	select {
	case d.queue <- report:
	default:
		d.logger.Warn("Observer queue full, dropping report", "cycle", report.CycleID, "outcome", report.Outcome)
	}
}

// close drains queued reports, then closes observers that are io.Closers.
func (d *dispatcher) close() {
	d.once.Do(func() {
		close(d.queue)
		d.wg.Wait()
		for _, o := range d.observers {
			if c, ok := o.(io.Closer); ok {
				if err := c.Close(); err != nil {
					d.logger.Warn("Observer close failed", "error", err)
				}
			}
		}
	})
}
