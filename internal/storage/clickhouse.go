package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseWriter writes compliance events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted by a
// background goroutine.
type ClickHouseWriter struct {
	conn    driver.Conn
	buffer  chan *ComplianceEvent
	done    chan struct{}
	flushed chan struct{} // closed by flushLoop when it returns
	logger  *zap.Logger
}

// createTable is the compliance_events DDL. The writer applies it on start
// so a fresh ClickHouse database needs no manual migration.
const createTable = `
CREATE TABLE IF NOT EXISTS compliance_events (
	request_id           String,
	channel_id           LowCardinality(String),
	output_type          LowCardinality(String),
	timestamp            DateTime64(3, 'UTC'),
	text_hash            FixedString(64),
	text_size            UInt32,
	outcome              LowCardinality(String),
	risk_level           LowCardinality(String),
	modified             UInt8,
	disclaimer_injected  UInt8,
	gated                UInt8,
	minimize_allowed     UInt8,
	violation_ids        Array(String),
	violation_severities Array(LowCardinality(String)),
	ruleset_version      LowCardinality(String),
	client_trace_id      String,
	metadata             Map(String, String),
	latency_ms           Float32
)
ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (channel_id, timestamp)
TTL toDateTime(timestamp) + INTERVAL 400 DAY`

// Open parses dsn, connects and pings. TLS is enabled even when the DSN does
// not ask for it, since ParseDSN only sets it for ?secure=true.
func Open(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("Open: %w", err)
	}
	return conn, nil
}

// NewClickHouseWriter connects, ensures the events table exists and starts
// the background flush loop.
func NewClickHouseWriter(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, createTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: create table: %w", err)
	}

	w := &ClickHouseWriter{
		conn:    conn,
		buffer:  make(chan *ComplianceEvent, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}

	go w.flushLoop()
	return w, nil
}

// Write queues a compliance event for async insertion.
// Non-blocking: drops the event if the buffer is full.
func (w *ClickHouseWriter) Write(event *ComplianceEvent) {
	select {
	case w.buffer <- event:
	default:
		w.logger.Warn("clickhouse buffer full, dropping event",
			zap.String("request_id", event.RequestID),
		)
	}
}

// Close signals the flush loop to drain remaining events, waits for it to
// finish (up to drainTimeout), and then returns. Safe to call once.
func (w *ClickHouseWriter) Close() {
	close(w.done)
	<-w.flushed
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flushLoop() {
	defer close(w.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*ComplianceEvent, 0, flushBatch)
	for {
		select {
		case event := <-w.buffer:
			if batch = append(batch, event); len(batch) >= flushBatch {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			w.flush(batch)
			batch = batch[:0]
		case <-w.done:
			w.flush(w.drain(batch))
			return
		}
	}
}

// drain moves whatever is still buffered into batch, giving up after
// drainTimeout.
func (w *ClickHouseWriter) drain(batch []*ComplianceEvent) []*ComplianceEvent {
	deadline := time.After(drainTimeout)
	for {
		select {
		case event := <-w.buffer:
			batch = append(batch, event)
		case <-deadline:
			return batch
		default:
			return batch
		}
	}
}

func (w *ClickHouseWriter) flush(events []*ComplianceEvent) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO compliance_events (
			request_id, channel_id, output_type, timestamp,
			text_hash, text_size,
			outcome, risk_level, modified, disclaimer_injected, gated, minimize_allowed,
			violation_ids, violation_severities,
			ruleset_version, client_trace_id, metadata, latency_ms
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		if err := batch.Append(
			e.RequestID,
			e.ChannelID,
			e.OutputType,
			e.Timestamp,
			e.TextHash,
			e.TextSize,
			e.Outcome,
			e.RiskLevel,
			boolToUint8(e.Modified),
			boolToUint8(e.DisclaimerInjected),
			boolToUint8(e.Gated),
			boolToUint8(e.MinimizeAllowed),
			e.ViolationIDs,
			e.ViolationSeverities,
			e.RulesetVersion,
			e.ClientTraceID,
			e.Metadata,
			e.LatencyMs,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// boolToUint8 maps a bool onto ClickHouse's UInt8 flag columns.
func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *ComplianceEvent) {
	w.logger.Info("compliance_event",
		zap.String("request_id", event.RequestID),
		zap.String("channel_id", event.ChannelID),
		zap.String("output_type", event.OutputType),
		zap.String("outcome", event.Outcome),
		zap.String("risk_level", event.RiskLevel),
		zap.Bool("modified", event.Modified),
		zap.Bool("disclaimer_injected", event.DisclaimerInjected),
		zap.Strings("violation_ids", event.ViolationIDs),
		zap.String("ruleset_version", event.RulesetVersion),
		zap.String("text_hash", event.TextHash),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
