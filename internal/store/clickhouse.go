// Package store persists fit results and trace summaries to ClickHouse.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tracespectra/internal/config"
)

const createTablesStatement = `
CREATE TABLE IF NOT EXISTS fit_results (
    RunID     String,
    SrcSigma  Float64,
    DstSigma  Float64,
    AlphaOn   Float64,
    AlphaOff  Float64,
    FittedAt  DateTime
) ENGINE = MergeTree() ORDER BY (RunID, FittedAt);
`

const createSummariesStatement = `
CREATE TABLE IF NOT EXISTS trace_summaries (
    RunID       String,
    Flows       UInt64,
    Packets     UInt64,
    Bytes       UInt64,
    GeneratedAt DateTime
) ENGINE = MergeTree() ORDER BY (RunID, GeneratedAt);
`

// FitRecord is a persisted cascade/burst fit for one run.
type FitRecord struct {
	RunID    string
	SrcSigma float64
	DstSigma float64
	AlphaOn  float64
	AlphaOff float64
	FittedAt time.Time
}

// TraceSummary is a persisted record of one generation run's output size.
type TraceSummary struct {
	RunID       string
	Flows       uint64
	Packets     uint64
	Bytes       uint64
	GeneratedAt time.Time
}

// Store reads and writes fit_results and trace_summaries.
type Store struct {
	conn driver.Conn
}

// New connects to ClickHouse and ensures both tables exist.
func New(cfg config.ClickHouseConfig) (*Store, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	ctx := context.Background()
	if err := conn.Exec(ctx, createTablesStatement); err != nil {
		return nil, fmt.Errorf("failed to create fit_results table: %w", err)
	}
	if err := conn.Exec(ctx, createSummariesStatement); err != nil {
		return nil, fmt.Errorf("failed to create trace_summaries table: %w", err)
	}

	return &Store{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// WriteFit inserts a fit result.
func (s *Store) WriteFit(ctx context.Context, rec FitRecord) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO fit_results")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(rec.RunID, rec.SrcSigma, rec.DstSigma, rec.AlphaOn, rec.AlphaOff, rec.FittedAt); err != nil {
		return fmt.Errorf("failed to append fit record to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// WriteTraceSummary inserts a trace generation summary.
func (s *Store) WriteTraceSummary(ctx context.Context, sum TraceSummary) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO trace_summaries")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := batch.Append(sum.RunID, sum.Flows, sum.Packets, sum.Bytes, sum.GeneratedAt); err != nil {
		return fmt.Errorf("failed to append trace summary to batch: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// LatestFit returns the most recently fitted record for runID.
func (s *Store) LatestFit(ctx context.Context, runID string) (*FitRecord, error) {
	query := `
		SELECT RunID, SrcSigma, DstSigma, AlphaOn, AlphaOff, FittedAt
		FROM fit_results
		WHERE RunID = ?
		ORDER BY FittedAt DESC
		LIMIT 1
	`
	row := s.conn.QueryRow(ctx, query, runID)

	var rec FitRecord
	if err := row.Scan(&rec.RunID, &rec.SrcSigma, &rec.DstSigma, &rec.AlphaOn, &rec.AlphaOff, &rec.FittedAt); err != nil {
		return nil, fmt.Errorf("failed to scan fit record for run %q: %w", runID, err)
	}
	return &rec, nil
}
