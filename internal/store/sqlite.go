package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/painel-gv/indicadores/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS indicators (
	municipality_code TEXT    NOT NULL,
	indicator_key     TEXT    NOT NULL,
	source            TEXT    NOT NULL,
	year              INTEGER NOT NULL,
	month             INTEGER NOT NULL DEFAULT 0,
	value             REAL,
	unit              TEXT    NOT NULL DEFAULT '',
	priority_rank     INTEGER NOT NULL,
	inserted_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (municipality_code, indicator_key, source, year, month)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	report      TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_indicators_key ON indicators(indicator_key, year, month);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert writes the batch in one transaction. Per record, the incoming
// priority rank is compared against the best rank already stored for the same
// period across all sources; a worse rank is rejected so a fallback source can
// never displace data the primary already served. A source always replaces its
// own earlier row, which makes repeated syncs idempotent.
func (s *SQLiteStore) Upsert(ctx context.Context, records []model.Record) (model.UpsertResult, error) {
	var result model.UpsertResult
	if len(records) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, rec := range records {
		var bestRank, ownRow sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MIN(priority_rank),
				MAX(CASE WHEN source = ? THEN 1 ELSE 0 END)
			 FROM indicators
			 WHERE municipality_code = ? AND indicator_key = ? AND year = ? AND month = ?`,
			rec.Source,
			rec.MunicipalityCode, rec.IndicatorKey, rec.Period.Year, rec.Period.Month,
		).Scan(&bestRank, &ownRow)
		if err != nil && err != sql.ErrNoRows {
			return model.UpsertResult{}, eris.Wrapf(err, "sqlite: best rank for %s", rec.Key())
		}

		if bestRank.Valid && rec.PriorityRank > int(bestRank.Int64) {
			result.Rejected++
			zap.L().Debug("store: record rejected, better-priority data present",
				zap.String("key", rec.Key()),
				zap.Int("incoming_rank", rec.PriorityRank),
				zap.Int64("best_rank", bestRank.Int64),
			)
			continue
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO indicators
				(municipality_code, indicator_key, source, year, month, value, unit, priority_rank, inserted_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (municipality_code, indicator_key, source, year, month) DO UPDATE SET
				value = excluded.value,
				unit = excluded.unit,
				priority_rank = excluded.priority_rank,
				updated_at = excluded.updated_at`,
			rec.MunicipalityCode, rec.IndicatorKey, rec.Source,
			rec.Period.Year, rec.Period.Month,
			nullFloat(rec.Value), rec.Unit, rec.PriorityRank, now, now,
		)
		if err != nil {
			return model.UpsertResult{}, eris.Wrapf(err, "sqlite: upsert %s", rec.Key())
		}
		if ownRow.Valid && ownRow.Int64 == 1 {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return model.UpsertResult{}, eris.Wrap(err, "sqlite: commit upsert")
	}
	return result, nil
}

func (s *SQLiteStore) GetSeries(ctx context.Context, indicatorKey, source string) ([]model.Record, error) {
	query := `SELECT municipality_code, indicator_key, source, year, month, value, unit, priority_rank
		FROM indicators WHERE indicator_key = ?`
	args := []any{indicatorKey}

	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	query += ` ORDER BY year, month, priority_rank, source`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: series %s", indicatorKey)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: series iterate")
	}

	if source == "" {
		records = reconcileSeries(records)
	}
	return records, nil
}

func (s *SQLiteStore) LastObservations(ctx context.Context) ([]model.LastObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indicator_key, source, priority_rank, year, month
		 FROM indicators ORDER BY indicator_key, source, year, month`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last observations")
	}
	defer rows.Close()

	var obs []model.LastObservation
	for rows.Next() {
		var o model.LastObservation
		if err := rows.Scan(&o.IndicatorKey, &o.Source, &o.PriorityRank, &o.LastPeriod.Year, &o.LastPeriod.Month); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		obs = append(obs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: last observations iterate")
	}
	return foldLastObservations(obs), nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{ID: id, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, finished_at = ? WHERE id = ?`,
		string(status), string(reportJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, report, started_at, finished_at FROM runs
		 ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.Record, error) {
	var rec model.Record
	var value sql.NullFloat64

	err := row.Scan(&rec.MunicipalityCode, &rec.IndicatorKey, &rec.Source,
		&rec.Period.Year, &rec.Period.Month, &value, &rec.Unit, &rec.PriorityRank)
	if err != nil {
		return model.Record{}, eris.Wrap(err, "store: scan record")
	}
	if value.Valid {
		rec.Value = model.Float(value.Float64)
	}
	return rec, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var reportJSON sql.NullString
	var finishedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &reportJSON, &r.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	if reportJSON.Valid {
		r.Report = &model.RunReport{}
		if err := json.Unmarshal([]byte(reportJSON.String), r.Report); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal report")
		}
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
