package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/furigana-worker/internal/logging"
	"github.com/adverant/nexus/furigana-worker/internal/pipeline"
)

// CycleRecord is one row of furigana.capture_cycles
type CycleRecord struct {
	SessionID       string
	CycleID         uint64
	Outcome         string
	Engine          string
	RegionX         int
	RegionY         int
	RegionWidth     int
	RegionHeight    int
	AnnotationCount int
	SpanCount       int
	DroppedSpans    int
	MeanConfidence  float64
	DurationMs      int64
	ErrorCode       string
	ErrorMessage    string
	Annotations     []byte // JSON of the published set, nil otherwise
	StartedAt       time.Time
}

// NewCycleRecord flattens a report into a row.
func NewCycleRecord(report pipeline.CycleReport) (*CycleRecord, error) {
	rect := report.Region.Rect()
	rec := &CycleRecord{
		SessionID:       report.SessionID,
		CycleID:         report.CycleID,
		Outcome:         string(report.Outcome),
		Engine:          report.Engine,
		RegionX:         rect.X,
		RegionY:         rect.Y,
		RegionWidth:     rect.Width,
		RegionHeight:    rect.Height,
		AnnotationCount: report.Set.Len(),
		SpanCount:       report.Spans,
		DroppedSpans:    report.DroppedSpans,
		MeanConfidence:  sanitizeConfidence(report.MeanConfidence()),
		DurationMs:      report.Duration.Milliseconds(),
		ErrorCode:       report.ErrorCode(),
		StartedAt:       report.StartedAt,
	}
	if report.Err != nil {
		rec.ErrorMessage = report.Err.Error()
	}
	if report.Set != nil {
		data, err := json.Marshal(report.Set.Annotations)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal annotations: %w", err)
		}
		rec.Annotations = data
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	return rec, nil
}

// CycleHistory records every finished cycle. It is a pipeline observer.
type CycleHistory struct {
	client *PostgresClient
	logger *logging.Logger
}

// NewCycleHistory wraps client.
func NewCycleHistory(client *PostgresClient) *CycleHistory {
	return &CycleHistory{client: client, logger: logging.NewLogger("History")}
}

// ObserveCycle stores the report.
func (h *CycleHistory) ObserveCycle(ctx context.Context, report pipeline.CycleReport) error {
	rec, err := NewCycleRecord(report)
	if err != nil {
		return err
	}
	return h.RecordCycle(ctx, rec)
}

// RecordCycle upserts rec. A retried write for the same cycle replaces the row.
func (h *CycleHistory) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	query := `
		INSERT INTO furigana.capture_cycles (
			session_id, cycle_id, outcome, engine,
			region_x, region_y, region_width, region_height,
			annotation_count, span_count, dropped_spans, mean_confidence,
			duration_ms, error_code, error_message, annotations, started_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''),
			$5, $6, $7, $8,
			$9, $10, $11, $12::NUMERIC(5,4),
			$13, NULLIF($14, ''), NULLIF($15, ''), $16::jsonb, $17
		)
		ON CONFLICT (session_id, cycle_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			annotation_count = EXCLUDED.annotation_count,
			dropped_spans = EXCLUDED.dropped_spans,
			mean_confidence = EXCLUDED.mean_confidence,
			duration_ms = EXCLUDED.duration_ms,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			annotations = COALESCE(EXCLUDED.annotations, furigana.capture_cycles.annotations),
			recorded_at = NOW()
		RETURNING cycle_id
	`

	var annotations interface{}
	if rec.Annotations != nil {
		annotations = string(rec.Annotations)
	}

	var returned int64
	err := h.client.db.QueryRowContext(
		ctx,
		query,
		rec.SessionID,
		int64(rec.CycleID),
		rec.Outcome,
		rec.Engine,
		rec.RegionX,
		rec.RegionY,
		rec.RegionWidth,
		rec.RegionHeight,
		rec.AnnotationCount,
		rec.SpanCount,
		rec.DroppedSpans,
		rec.MeanConfidence,
		rec.DurationMs,
		rec.ErrorCode,
		rec.ErrorMessage,
		annotations,
		rec.StartedAt,
	).Scan(&returned)
	if err != nil {
		return fmt.Errorf("failed to record cycle (session=%s, cycle=%d, outcome=%s): %w",
			rec.SessionID, rec.CycleID, rec.Outcome, err)
	}

	h.logger.Debug("Cycle recorded", "cycle", returned, "outcome", rec.Outcome)
	return nil
}

// RecentCycles returns the latest cycles of a session, newest first.
func (h *CycleHistory) RecentCycles(ctx context.Context, sessionID string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			session_id, cycle_id, outcome, engine,
			region_x, region_y, region_width, region_height,
			annotation_count, span_count, dropped_spans, mean_confidence,
			duration_ms, error_code, error_message, started_at
		FROM furigana.capture_cycles
		WHERE session_id = $1
		ORDER BY cycle_id DESC
		LIMIT $2
	`

	rows, err := h.client.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var (
			rec                         CycleRecord
			cycleID                     int64
			engine, errCode, errMessage sql.NullString
			confidence                  sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.SessionID, &cycleID, &rec.Outcome, &engine,
			&rec.RegionX, &rec.RegionY, &rec.RegionWidth, &rec.RegionHeight,
			&rec.AnnotationCount, &rec.SpanCount, &rec.DroppedSpans, &confidence,
			&rec.DurationMs, &errCode, &errMessage, &rec.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		rec.CycleID = uint64(cycleID)
		rec.Engine = engine.String
		rec.ErrorCode = errCode.String
		rec.ErrorMessage = errMessage.String
		rec.MeanConfidence = confidence.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (h *CycleHistory) Close() error {
	return h.client.Close()
}
