package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/healthmap/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for the PostGIS boundary source
// and the TIGER reverse geocoder.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	series_key  TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	description TEXT NOT NULL DEFAULT '',
	lat         DOUBLE PRECISION NOT NULL,
	lng         DOUBLE PRECISION NOT NULL,
	region      TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	reported_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_region ON reports(region);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_reported_at ON reports(reported_at DESC);
CREATE INDEX IF NOT EXISTS idx_reports_lat_lng ON reports(lat, lng);

CREATE TABLE IF NOT EXISTS daily_counts (
	series_key TEXT NOT NULL,
	day        DATE NOT NULL,
	count      INTEGER NOT NULL CHECK (count >= 0),
	PRIMARY KEY (series_key, day)
);

CREATE TABLE IF NOT EXISTS regions (
	name       TEXT PRIMARY KEY,
	load_order INTEGER NOT NULL DEFAULT 0,
	geom       geometry(MultiPolygon, 4326) NOT NULL
);
`

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool if the store opened it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// InsertReport implements Store.
func (s *PostgresStore) InsertReport(ctx context.Context, r *Report) error {
	if err := prepareReport(r, uuid.NewString); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, series_key, category, status, description, lat, lng, region, address, reported_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.SeriesKey, r.Category, r.Status, r.Description, r.Point.Lat, r.Point.Lng, r.Region, r.Address, r.ReportedAt, r.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert report %s", r.ID)
}

// Reports implements Store. Results are newest first.
func (s *PostgresStore) Reports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if b := filter.Bounds; b != nil {
		add("lat >= $%d", b.MinLat)
		add("lat <= $%d", b.MaxLat)
		add("lng >= $%d", b.MinLng)
		add("lng <= $%d", b.MaxLng)
	}
	if filter.Region != "" {
		add("region = $%d", filter.Region)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if !filter.Since.IsZero() {
		add("reported_at >= $%d", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		add("reported_at < $%d", filter.Until.UTC())
	}

	query := `SELECT id, series_key, category, status, description, lat, lng, region, address, reported_at, created_at FROM reports`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.limit())
	query += fmt.Sprintf(" ORDER BY reported_at DESC, id LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.SeriesKey, &r.Category, &r.Status, &r.Description,
			&r.Point.Lat, &r.Point.Lng, &r.Region, &r.Address, &r.ReportedAt, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

// UpsertDailyCounts implements Store, replacing existing days.
func (s *PostgresStore) UpsertDailyCounts(ctx context.Context, seriesKey string, counts map[time.Time]int) error {
	return s.UpsertSeries(ctx, map[string]map[time.Time]int{seriesKey: counts})
}

// UpsertSeries implements Store. Counts for every series are staged with
// COPY into a temporary table and merged in one transaction, replacing
// existing days.
func (s *PostgresStore) UpsertSeries(ctx context.Context, series map[string]map[time.Time]int) error {
	if err := validateSeries(series); err != nil {
		return err
	}

	var rows [][]any
	for _, key := range sortedKeys(series) {
		byDay := make(map[time.Time]int, len(series[key]))
		for d, n := range series[key] {
			byDay[day(d)] += n
		}
		days := make([]time.Time, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		for _, d := range days {
			rows = append(rows, []any{key, d, byDay[d]})
		}
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert counts")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`CREATE TEMP TABLE daily_counts_stage (LIKE daily_counts INCLUDING DEFAULTS) ON COMMIT DROP`); err != nil {
		return eris.Wrap(err, "postgres: create count stage")
	}
	if _, err := db.CopyFrom(ctx, tx, "daily_counts_stage", []string{"series_key", "day", "count"}, rows); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO daily_counts (series_key, day, count)
		SELECT series_key, day, count FROM daily_counts_stage
		ON CONFLICT (series_key, day) DO UPDATE SET count = EXCLUDED.count`); err != nil {
		return eris.Wrap(err, "postgres: merge counts")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit counts")
}

// DailyCounts implements Store for the inclusive date range [from, to].
func (s *PostgresStore) DailyCounts(ctx context.Context, seriesKey string, from, to time.Time) (map[time.Time]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT day, count FROM daily_counts WHERE series_key = $1 AND day BETWEEN $2 AND $3 ORDER BY day`,
		seriesKey, day(from), day(to),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: daily counts %s", seriesKey)
	}
	defer rows.Close()

	out := make(map[time.Time]int)
	for rows.Next() {
		var d time.Time
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan daily count")
		}
		out[day(d)] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: daily counts iterate")
}

// SeriesSpan implements Store. ok is false when the series has no rows.
func (s *PostgresStore) SeriesSpan(ctx context.Context, seriesKey string) (time.Time, time.Time, bool, error) {
	var first, last time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MIN(day), MAX(day) FROM daily_counts WHERE series_key = $1 HAVING COUNT(*) > 0`,
		seriesKey,
	).Scan(&first, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, time.Time{}, false, eris.Wrapf(err, "postgres: series span %s", seriesKey)
	}
	return day(first), day(last), true, nil
}
