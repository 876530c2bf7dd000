/**
 * Processing Pipeline - capture loop and state machine
 *
 * One goroutine (Run) owns state, timer, region and epoch. Commands reach
 * it over a channel and are answered immediately, even while a cycle is
 * running. Each cycle runs on its own goroutine and reports back over the
 * results channel. At most one cycle is in flight at any time.
 *
 * Stop and region change bump the epoch; a result from an older epoch is
 * discarded on arrival.
 */

package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	"github.com/adverant/nexus/furigana-worker/internal/capture"
	apperrors "github.com/adverant/nexus/furigana-worker/internal/errors"
	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
	"github.com/adverant/nexus/furigana-worker/internal/recognition"
)

// ErrClosed is returned by commands sent after the run loop exited.
var ErrClosed = stderrors.New("pipeline closed")

// Surface is the overlay side of a publish
type Surface interface {
	Render(set *annotation.Set)
}

// Config holds pipeline timing and behaviour
type Config struct {
	SessionID          string
	Interval           time.Duration
	CaptureTimeout     time.Duration
	RecognitionTimeout time.Duration
	RetainRegionOnStop bool
	EnrichConcurrency  int
}

// Dependencies are the collaborating components
type Dependencies struct {
	Capture    capture.Source
	Recognizer recognition.Source
	Enricher   Enricher
	Surface    Surface
	Observers  []Observer
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdTrigger
	cmdRegion
	cmdInterval
	cmdRecognizer
	cmdQuit
)

type command struct {
	kind       commandKind
	region     geometry.Region
	interval   time.Duration
	recognizer recognition.Source
	reply      chan commandReply
}

type commandReply struct {
	accepted bool
	err      error
}

// Pipeline orchestrates capture cycles
type Pipeline struct {
	cfg      Config
	capture  capture.Source
	enricher Enricher
	surface  Surface
	slot     *annotation.Slot
	observe  *dispatcher
	logger   *logging.Logger

	commands chan command
	results  chan cycleResult
	done     chan struct{}
	started  atomic.Bool
	state    atomic.Int32

	// owned by the run loop
	recognizer recognition.Source
	region     geometry.Region
	epoch      uint64
	lastID     uint64
	inFlight   bool
	restart    bool
	cancel     context.CancelFunc
	timer      *time.Timer
	timerC     <-chan time.Time
}

// New creates a pipeline in the Idle state. Call Run to start the loop.
func New(cfg Config, deps Dependencies) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 2 * time.Second
	}
	if cfg.RecognitionTimeout <= 0 {
		cfg.RecognitionTimeout = 10 * time.Second
	}
	if cfg.EnrichConcurrency < 1 {
		cfg.EnrichConcurrency = 1
	}

	p := &Pipeline{
		cfg:        cfg,
		capture:    deps.Capture,
		recognizer: deps.Recognizer,
		enricher:   deps.Enricher,
		surface:    deps.Surface,
		slot:       annotation.NewSlot(annotation.Empty(cfg.SessionID)),
		observe:    newDispatcher(deps.Observers),
		logger:     logging.NewLogger("Pipeline").With("session", cfg.SessionID),
		commands:   make(chan command),
		results:    make(chan cycleResult, 1),
		done:       make(chan struct{}),
	}
	p.state.Store(int32(Idle))
	return p
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Current returns the current annotation set, never nil.
func (p *Pipeline) Current() *annotation.Set { return p.slot.Load() }

// Done is closed when the run loop has exited.
func (p *Pipeline) Done() <-chan struct{} { return p.done }

// Start arms the pipeline. Without a region it waits in AwaitingRegion.
func (p *Pipeline) Start() error {
	_, err := p.send(command{kind: cmdStart})
	return err
}

// Stop halts the loop. The last published set stays current and any
// in-flight result is discarded.
func (p *Pipeline) Stop() error {
	_, err := p.send(command{kind: cmdStop})
	return err
}

// ForceTrigger starts a cycle now. It reports false when the pipeline is
// not Running or a cycle is already in flight; the trigger is not queued.
func (p *Pipeline) ForceTrigger() (bool, error) {
	return p.send(command{kind: cmdTrigger})
}

// SelectRegion replaces the capture region.
func (p *Pipeline) SelectRegion(region geometry.Region) error {
	if region.IsZero() {
		return apperrors.NewInvalidRegionError(0, 0)
	}
	_, err := p.send(command{kind: cmdRegion, region: region})
	return err
}

// SetInterval changes the periodic cadence.
func (p *Pipeline) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	_, err := p.send(command{kind: cmdInterval, interval: d})
	return err
}

// SetRecognizer swaps the OCR engine. Cycles already running keep the
// engine they started with.
func (p *Pipeline) SetRecognizer(src recognition.Source) error {
	if src == nil {
		return fmt.Errorf("recognizer is required")
	}
	_, err := p.send(command{kind: cmdRecognizer, recognizer: src})
	return err
}

// Quit stops the loop, clears the overlay and flushes observers. It returns
// once the loop has exited.
func (p *Pipeline) Quit() error {
	if _, err := p.send(command{kind: cmdQuit}); err != nil {
		return err
	}
	<-p.done
	return nil
}

func (p *Pipeline) send(cmd command) (bool, error) {
	cmd.reply = make(chan commandReply, 1)
	select {
	case p.commands <- cmd:
	case <-p.done:
		return false, ErrClosed
	}
	r := <-cmd.reply
	return r.accepted, r.err
}

// Run executes the loop until ctx is cancelled or Quit is called.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer close(p.done)

	p.logger.Info("Pipeline loop started",
		"interval", p.cfg.Interval.String(),
		"engine", p.recognizer.Name())

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return ctx.Err()

		case cmd := <-p.commands:
			accepted, err := p.handle(ctx, cmd)
			cmd.reply <- commandReply{accepted: accepted, err: err}
			if cmd.kind == cmdQuit {
				return nil
			}

		case <-p.timerC:
			p.timerC = nil
			if p.State() == Running && !p.inFlight {
				p.startCycle(ctx)
			}

		case res := <-p.results:
			p.complete(ctx, res)
		}
	}
}

func (p *Pipeline) handle(ctx context.Context, cmd command) (bool, error) {
	switch cmd.kind {
	case cmdStart:
		switch p.State() {
		case Idle, Stopped:
			p.setState(AwaitingRegion)
			if !p.region.IsZero() {
				p.enterRunning(ctx)
			}
			return true, nil
		}
		return false, nil

	case cmdStop:
		switch p.State() {
		case AwaitingRegion, Running, Processing:
			p.invalidate()
			p.disarm()
			p.restart = false
			if !p.cfg.RetainRegionOnStop {
				p.region = geometry.Region{}
			}
			p.setState(Stopped)
			return true, nil
		}
		return false, nil

	case cmdTrigger:
		if p.State() != Running || p.inFlight {
			p.logger.Debug("Force trigger dropped", "state", p.State().String(), "in_flight", p.inFlight)
			return false, nil
		}
		p.startCycle(ctx)
		return true, nil

	case cmdRegion:
		p.region = cmd.region
		p.logger.Info("Region selected", "region", cmd.region.String())
		switch p.State() {
		case AwaitingRegion:
			p.enterRunning(ctx)
		case Running, Processing:
			p.invalidate()
			p.enterRunning(ctx)
		}
		return true, nil

	case cmdInterval:
		p.cfg.Interval = cmd.interval
		if p.timerC != nil {
			p.arm()
		}
		return true, nil

	case cmdRecognizer:
		p.recognizer = cmd.recognizer
		p.logger.Info("Recognition engine switched", "engine", cmd.recognizer.Name())
		if p.State() == Running && !p.inFlight {
			p.startCycle(ctx)
		}
		return true, nil

	case cmdQuit:
		p.shutdown()
		return true, nil
	}
	return false, fmt.Errorf("unknown command %d", cmd.kind)
}

// enterRunning starts a cycle for the current region. When an invalidated
// cycle is still in flight the new one starts as soon as it returns.
func (p *Pipeline) enterRunning(ctx context.Context) {
	p.disarm()
	if p.inFlight {
		p.restart = true
		p.setState(Processing)
		return
	}
	p.setState(Running)
	p.startCycle(ctx)
}

// invalidate discards whatever is in flight.
func (p *Pipeline) invalidate() {
	p.epoch++
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pipeline) startCycle(ctx context.Context) {
	p.lastID++
	job := cycleJob{
		id:         p.lastID,
		epoch:      p.epoch,
		session:    p.cfg.SessionID,
		region:     p.region,
		capture:    p.capture,
		recognizer: p.recognizer,
	}

	cctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.inFlight = true
	p.restart = false
	p.disarm()
	p.setState(Processing)

	p.logger.Debug(fmt.Sprintf("[Cycle %d] Starting cycle", job.id), "region", job.region.String())

	go func() {
		p.results <- p.runCycle(cctx, job)
	}()
}

func (p *Pipeline) complete(ctx context.Context, res cycleResult) {
	p.inFlight = false
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if res.job.epoch != p.epoch {
		p.logger.Debug(fmt.Sprintf("[Cycle %d] Discarding stale result", res.job.id))
		res.report.Outcome = OutcomeDiscarded
		res.report.Set = nil
		p.observe.dispatch(res.report)
		if p.restart && p.State() == Processing {
			p.startCycle(ctx)
		}
		return
	}

	if res.report.Err != nil {
		p.logger.Warn(fmt.Sprintf("[Cycle %d] Cycle failed, keeping previous annotations", res.job.id),
			"error_code", res.report.ErrorCode(),
			"error", res.report.Err)
	} else if p.publish(res.set) {
		p.logger.Info(fmt.Sprintf("[Cycle %d] Published annotations", res.job.id),
			"annotations", res.set.Len(),
			"dropped_spans", res.report.DroppedSpans,
			"duration", res.report.Duration.String())
	} else {
		res.report.Outcome = OutcomeDiscarded
		res.report.Set = nil
	}
	p.observe.dispatch(res.report)

	if p.State() == Processing {
		p.setState(Running)
		p.arm()
	}
}

// publish installs set if it is newer than the current one and renders it.
func (p *Pipeline) publish(set *annotation.Set) bool {
	if !p.slot.PublishIfNewer(set) {
		p.logger.Debug(fmt.Sprintf("[Cycle %d] Older than current set, not published", set.CycleID))
		return false
	}
	if p.surface != nil {
		p.surface.Render(set)
	}
	return true
}

func (p *Pipeline) arm() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.NewTimer(p.cfg.Interval)
	p.timerC = p.timer.C
}

func (p *Pipeline) disarm() {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timerC = nil
}

func (p *Pipeline) setState(s State) {
	if old := State(p.state.Swap(int32(s))); old != s {
		p.logger.Debug("State transition", "from", old.String(), "to", s.String())
	}
}

// shutdown cancels in-flight work, clears the overlay and flushes observers.
func (p *Pipeline) shutdown() {
	p.invalidate()
	p.disarm()
	p.setState(Idle)

	empty := annotation.Empty(p.cfg.SessionID)
	p.slot.Reset(empty)
	if p.surface != nil {
		p.surface.Render(empty)
	}
	p.observe.close()
	p.logger.Info("Pipeline loop stopped", "cycles", p.lastID)
}
