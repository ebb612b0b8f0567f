package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"crypto-decision-engine/internal/autonomy"
	"crypto-decision-engine/internal/decision"
	"crypto-decision-engine/internal/risk"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_records (
	decision_id TEXT PRIMARY KEY,
	symbol      TEXT NOT NULL,
	timeframe   TEXT NOT NULL,
	category    TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	decision    JSONB NOT NULL,
	verdict     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decision_records_symbol_time
	ON decision_records (symbol, created_at DESC);
`

// PostgresRecorder persists decision records in Postgres. Inserts are
// idempotent by decision id, so a delivery retry never duplicates.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewPostgresRecorder(ctx context.Context, databaseURL string, logger zerolog.Logger) (*PostgresRecorder, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	return &PostgresRecorder{
		pool:   pool,
		logger: logger.With().Str("component", "audit").Logger(),
	}, nil
}

func (p *PostgresRecorder) Close() { p.pool.Close() }

func (p *PostgresRecorder) Record(ctx context.Context, rec Record) error {
	decJSON, err := json.Marshal(rec.Decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	verJSON, err := json.Marshal(rec.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO decision_records
			(decision_id, symbol, timeframe, category, outcome, decision, verdict, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (decision_id) DO NOTHING`,
		rec.Decision.ID, rec.Decision.Symbol, rec.Decision.Timeframe,
		string(rec.Decision.Category), string(rec.Outcome),
		decJSON, verJSON, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert decision record: %w", err)
	}
	return nil
}

func (p *PostgresRecorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT decision, verdict, outcome, created_at
		FROM decision_records
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decision records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var decJSON, verJSON []byte
		var outcome string
		var createdAt time.Time
		if err := rows.Scan(&decJSON, &verJSON, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		var d decision.Decision
		var v risk.Verdict
		if err := json.Unmarshal(decJSON, &d); err != nil {
			p.logger.Warn().Err(err).Msg("skipping corrupt decision record")
			continue
		}
		if err := json.Unmarshal(verJSON, &v); err != nil {
			p.logger.Warn().Err(err).Msg("skipping corrupt verdict record")
			continue
		}
		out = append(out, Record{
			Decision:  &d,
			Verdict:   v,
			Outcome:   autonomy.Status(outcome),
			CreatedAt: createdAt,
		})
	}
	return out, rows.Err()
}
