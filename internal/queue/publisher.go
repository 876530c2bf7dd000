/**
 * Redis Annotation Publisher
 *
 * Publishes every finished cycle to Redis pub/sub and keeps the current
 * annotation set under a key so late subscribers can read it.
 *
 * Channels and keys (prefix defaults to "furigana"):
 *   <prefix>:annotations   published sets
 *   <prefix>:events        cycle failures and session lifecycle
 *   <prefix>:current       JSON of the current set
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/furigana-worker/internal/annotation"
	apperrors "github.com/adverant/nexus/furigana-worker/internal/errors"
	"github.com/adverant/nexus/furigana-worker/internal/logging"
	"github.com/adverant/nexus/furigana-worker/internal/pipeline"
)

// redisWriter is the slice of the Redis client the publisher needs
type redisWriter interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// AnnotationEvent is the pub/sub message body
type AnnotationEvent struct {
	Event     string                 `json:"event"`
	SessionID string                 `json:"sessionId"`
	CycleID   uint64                 `json:"cycleId,omitempty"`
	Engine    string                 `json:"engine,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Set       *annotation.Set        `json:"set,omitempty"`
	Error     map[string]interface{} `json:"error,omitempty"`
	Dropped   int                    `json:"droppedSpans,omitempty"`
}

// AnnotationPublisher is a pipeline observer backed by Redis
type AnnotationPublisher struct {
	client    redisWriter
	closer    func() error
	prefix    string
	sessionID string
	logger    *logging.Logger
}

// NewAnnotationPublisher connects to Redis at redisURL.
func NewAnnotationPublisher(ctx context.Context, redisURL, prefix, sessionID string) (*AnnotationPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	p := newPublisher(client, prefix, sessionID)
	p.closer = client.Close
	p.logger.Info("Connected to Redis", "prefix", p.prefix)
	return p, nil
}

func newPublisher(client redisWriter, prefix, sessionID string) *AnnotationPublisher {
	if prefix == "" {
		prefix = "furigana"
	}
	return &AnnotationPublisher{
		client:    client,
		prefix:    prefix,
		sessionID: sessionID,
		logger:    logging.NewLogger("Publisher"),
	}
}

func (p *AnnotationPublisher) channel(name string) string {
	return fmt.Sprintf("%s:%s", p.prefix, name)
}

// ObserveCycle publishes the report. Discarded cycles are not published.
func (p *AnnotationPublisher) ObserveCycle(ctx context.Context, report pipeline.CycleReport) error {
	event := AnnotationEvent{
		SessionID: report.SessionID,
		CycleID:   report.CycleID,
		Engine:    report.Engine,
		Timestamp: time.Now().UnixMilli(),
		Dropped:   report.DroppedSpans,
	}

	switch report.Outcome {
	case pipeline.OutcomePublished:
		event.Event = "annotations:published"
		event.Set = report.Set

		current, err := json.Marshal(report.Set)
		if err != nil {
			return fmt.Errorf("failed to marshal annotation set: %w", err)
		}
		if err := p.client.Set(ctx, p.channel("current"), current, 0).Err(); err != nil {
			return fmt.Errorf("failed to store current set: %w", err)
		}
		return p.publish(ctx, p.channel("annotations"), event)

	case pipeline.OutcomeFailed:
		event.Event = "cycle:failed"
		event.Error = errorFields(report.Err)
		return p.publish(ctx, p.channel("events"), event)

	default:
		p.logger.Debug("Skipping discarded cycle", "cycle", report.CycleID)
		return nil
	}
}

func (p *AnnotationPublisher) publish(ctx context.Context, channel string, event AnnotationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Close announces the end of the session, clears the current set and
// releases the connection.
func (p *AnnotationPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event := AnnotationEvent{
		Event:     "session:ended",
		SessionID: p.sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := p.publish(ctx, p.channel("events"), event); err != nil {
		p.logger.Warn("Failed to publish session end", "error", err)
	}
	if err := p.client.Del(ctx, p.channel("current")).Err(); err != nil {
		p.logger.Warn("Failed to clear current set", "error", err)
	}

	if p.closer != nil {
		return p.closer()
	}
	return nil
}

func errorFields(err error) map[string]interface{} {
	if err == nil {
		return nil
	}
	var perr *apperrors.PipelineError
	if stderrors.As(err, &perr) {
		return perr.ToMap()
	}
	return map[string]interface{}{"message": err.Error()}
}
