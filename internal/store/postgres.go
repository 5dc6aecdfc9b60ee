package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/db"
	"github.com/painel-gv/indicadores/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS indicators (
	municipality_code TEXT    NOT NULL,
	indicator_key     TEXT    NOT NULL,
	source            TEXT    NOT NULL,
	year              INTEGER NOT NULL,
	month             INTEGER NOT NULL DEFAULT 0,
	value             DOUBLE PRECISION,
	unit              TEXT    NOT NULL DEFAULT '',
	priority_rank     INTEGER NOT NULL,
	inserted_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (municipality_code, indicator_key, source, year, month)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	report      JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_indicators_key ON indicators(indicator_key, year, month);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// Upsert applies the same rank-protection rules as the SQLite store, inside
// one transaction. A per-indicator advisory lock serializes concurrent syncs
// touching the same series.
func (s *PostgresStore) Upsert(ctx context.Context, records []model.Record) (model.UpsertResult, error) {
	var result model.UpsertResult
	if len(records) == 0 {
		return result, nil
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`,
			records[0].MunicipalityCode+"/"+records[0].IndicatorKey,
		); err != nil {
			return eris.Wrap(err, "postgres: advisory lock")
		}

		now := time.Now().UTC()
		for _, rec := range records {
			var bestRank, ownRow *int64
			err := tx.QueryRow(ctx,
				`SELECT MIN(priority_rank),
					MAX(CASE WHEN source = $1 THEN 1 ELSE 0 END)
				 FROM indicators
				 WHERE municipality_code = $2 AND indicator_key = $3 AND year = $4 AND month = $5`,
				rec.Source,
				rec.MunicipalityCode, rec.IndicatorKey, rec.Period.Year, rec.Period.Month,
			).Scan(&bestRank, &ownRow)
			if err != nil {
				return eris.Wrapf(err, "postgres: best rank for %s", rec.Key())
			}

			if bestRank != nil && rec.PriorityRank > int(*bestRank) {
				result.Rejected++
				zap.L().Debug("store: record rejected, better-priority data present",
					zap.String("key", rec.Key()),
					zap.Int("incoming_rank", rec.PriorityRank),
					zap.Int64("best_rank", *bestRank),
				)
				continue
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO indicators
					(municipality_code, indicator_key, source, year, month, value, unit, priority_rank, inserted_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				 ON CONFLICT (municipality_code, indicator_key, source, year, month) DO UPDATE SET
					value = EXCLUDED.value,
					unit = EXCLUDED.unit,
					priority_rank = EXCLUDED.priority_rank,
					updated_at = EXCLUDED.updated_at`,
				rec.MunicipalityCode, rec.IndicatorKey, rec.Source,
				rec.Period.Year, rec.Period.Month,
				rec.Value, rec.Unit, rec.PriorityRank, now, now,
			)
			if err != nil {
				return eris.Wrapf(err, "postgres: upsert %s", rec.Key())
			}
			if ownRow != nil && *ownRow == 1 {
				result.Updated++
			} else {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return model.UpsertResult{}, err
	}
	return result, nil
}

func (s *PostgresStore) GetSeries(ctx context.Context, indicatorKey, source string) ([]model.Record, error) {
	query := `SELECT municipality_code, indicator_key, source, year, month, value, unit, priority_rank
		FROM indicators WHERE indicator_key = $1`
	args := []any{indicatorKey}

	if source != "" {
		query += ` AND source = $2`
		args = append(args, source)
	}
	query += ` ORDER BY year, month, priority_rank, source`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: series %s", indicatorKey)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecordPgx(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: series iterate")
	}

	if source == "" {
		records = reconcileSeries(records)
	}
	return records, nil
}

func (s *PostgresStore) LastObservations(ctx context.Context) ([]model.LastObservation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT indicator_key, source, priority_rank, year, month
		 FROM indicators ORDER BY indicator_key, source, year, month`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last observations")
	}
	defer rows.Close()

	var obs []model.LastObservation
	for rows.Next() {
		var o model.LastObservation
		if err := rows.Scan(&o.IndicatorKey, &o.Source, &o.PriorityRank, &o.LastPeriod.Year, &o.LastPeriod.Month); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: last observations iterate")
	}
	return foldLastObservations(obs), nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, finished_at = $3 WHERE id = $4`,
		string(status), reportJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, report, started_at, finished_at FROM runs
		 ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var reportJSON []byte
		var finishedAt *time.Time

		if err := rows.Scan(&r.ID, &r.Status, &reportJSON, &r.StartedAt, &finishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if len(reportJSON) > 0 {
			r.Report = &model.RunReport{}
			if err := json.Unmarshal(reportJSON, r.Report); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal report")
			}
		}
		r.FinishedAt = finishedAt
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanRecordPgx(rows pgx.Rows) (model.Record, error) {
	var rec model.Record
	err := rows.Scan(&rec.MunicipalityCode, &rec.IndicatorKey, &rec.Source,
		&rec.Period.Year, &rec.Period.Month, &rec.Value, &rec.Unit, &rec.PriorityRank)
	if err != nil {
		return model.Record{}, eris.Wrap(err, "store: scan record")
	}
	return rec, nil
}
