/**
 * Remote Commands for the Furigana Overlay Worker
 *
 * Lets other processes drive the pipeline through asynq tasks on Redis.
 * overlayctl enqueues; the worker runs a CommandServer that forwards each
 * task to the pipeline. Command tasks are never retried: a stale
 * force-trigger replayed later would be wrong.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/furigana-worker/internal/geometry"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
)

// Task types
const (
	TypeStart        = "overlay:start"
	TypeStop         = "overlay:stop"
	TypeForceTrigger = "overlay:force-trigger"
	TypeRegion       = "overlay:region"
	TypeInterval     = "overlay:interval"
)

// DefaultQueue is the asynq queue commands are sent to
const DefaultQueue = "furigana-commands"

// Controller is the pipeline surface commands act on
type Controller interface {
	Start() error
	Stop() error
	ForceTrigger() (bool, error)
	SelectRegion(region geometry.Region) error
	SetInterval(d time.Duration) error
}

// RegionPayload is the overlay:region task body
type RegionPayload struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IntervalPayload is the overlay:interval task body
type IntervalPayload struct {
	IntervalMs int `json:"intervalMs"`
}

// NewRegionTask builds an overlay:region task.
func NewRegionTask(x, y, width, height int) (*asynq.Task, error) {
	if _, err := geometry.NewRegion(x, y, width, height); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(RegionPayload{X: x, Y: y, Width: width, Height: height})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal region payload: %w", err)
	}
	return asynq.NewTask(TypeRegion, payload), nil
}

// NewIntervalTask builds an overlay:interval task.
func NewIntervalTask(d time.Duration) (*asynq.Task, error) {
	if d <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", d)
	}
	payload, err := json.Marshal(IntervalPayload{IntervalMs: int(d / time.Millisecond)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal interval payload: %w", err)
	}
	return asynq.NewTask(TypeInterval, payload), nil
}

// NewSimpleTask builds a payload-free task (start, stop, force-trigger).
func NewSimpleTask(taskType string) *asynq.Task {
	return asynq.NewTask(taskType, nil)
}

// CommandServer consumes command tasks
type CommandServer struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	controller Controller
	logger     *logging.Logger
}

// CommandServerConfig holds command server configuration
type CommandServerConfig struct {
	RedisURL   string
	QueueName  string
	Controller Controller
}

// NewCommandServer creates a command server
func NewCommandServer(cfg *CommandServerConfig) (*CommandServer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.Controller == nil {
		return nil, fmt.Errorf("Controller is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueue
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	s := &CommandServer{
		controller: cfg.Controller,
		logger:     logging.NewLogger("Commands"),
	}

	s.server = asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Commands must apply in order
			Concurrency: 1,
			Queues: map[string]int{
				cfg.QueueName: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				s.logger.Warn("Command failed", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
		},
	)

	s.mux = NewCommandMux(cfg.Controller, s.logger)
	return s, nil
}

// NewCommandMux routes command tasks to controller.
func NewCommandMux(controller Controller, logger *logging.Logger) *asynq.ServeMux {
	h := &handlers{controller: controller, logger: logger}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeStart, h.handleStart)
	mux.HandleFunc(TypeStop, h.handleStop)
	mux.HandleFunc(TypeForceTrigger, h.handleForceTrigger)
	mux.HandleFunc(TypeRegion, h.handleRegion)
	mux.HandleFunc(TypeInterval, h.handleInterval)
	return mux
}

// Start runs the server in the background
func (s *CommandServer) Start() error {
	s.logger.Info("Starting command server")
	return s.server.Start(s.mux)
}

// Stop shuts the server down gracefully
func (s *CommandServer) Stop() {
	s.logger.Info("Stopping command server")
	s.server.Shutdown()
}

type handlers struct {
	controller Controller
	logger     *logging.Logger
}

func (h *handlers) handleStart(ctx context.Context, task *asynq.Task) error {
	h.logger.Info("Remote start")
	return h.controller.Start()
}

func (h *handlers) handleStop(ctx context.Context, task *asynq.Task) error {
	h.logger.Info("Remote stop")
	return h.controller.Stop()
}

func (h *handlers) handleForceTrigger(ctx context.Context, task *asynq.Task) error {
	triggered, err := h.controller.ForceTrigger()
	if err != nil {
		return err
	}
	h.logger.Info("Remote force trigger", "triggered", triggered)
	return nil
}

func (h *handlers) handleRegion(ctx context.Context, task *asynq.Task) error {
	var p RegionPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal region payload: %v: %w", err, asynq.SkipRetry)
	}
	region, err := geometry.NewRegion(p.X, p.Y, p.Width, p.Height)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	h.logger.Info("Remote region change", "region", region.String())
	return h.controller.SelectRegion(region)
}

func (h *handlers) handleInterval(ctx context.Context, task *asynq.Task) error {
	var p IntervalPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal interval payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.IntervalMs <= 0 {
		return fmt.Errorf("interval must be positive, got %dms: %w", p.IntervalMs, asynq.SkipRetry)
	}
	h.logger.Info("Remote interval change", "interval_ms", p.IntervalMs)
	return h.controller.SetInterval(time.Duration(p.IntervalMs) * time.Millisecond)
}

// CommandClient enqueues command tasks
type CommandClient struct {
	client *asynq.Client
	queue  string
}

// NewCommandClient connects to Redis at redisURL.
func NewCommandClient(redisURL, queue string) (*CommandClient, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if queue == "" {
		queue = DefaultQueue
	}
	return &CommandClient{client: asynq.NewClient(redisOpt), queue: queue}, nil
}

// Enqueue sends task with no retries and a short deadline.
func (c *CommandClient) Enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second),
		asynq.Retention(time.Hour),
	)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return info.ID, nil
}

// Close releases the Redis connection.
func (c *CommandClient) Close() error {
	return c.client.Close()
}
