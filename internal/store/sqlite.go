package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so stored timestamps sort lexically.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteDayLayout = "2006-01-02"

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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id          TEXT PRIMARY KEY,
	series_key  TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	description TEXT NOT NULL DEFAULT '',
	lat         REAL NOT NULL,
	lng         REAL NOT NULL,
	region      TEXT NOT NULL DEFAULT '',
	address     TEXT NOT NULL DEFAULT '',
	reported_at TEXT NOT NULL,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_region ON reports(region);
CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
CREATE INDEX IF NOT EXISTS idx_reports_reported_at ON reports(reported_at);
CREATE INDEX IF NOT EXISTS idx_reports_lat_lng ON reports(lat, lng);

CREATE TABLE IF NOT EXISTS daily_counts (
	series_key TEXT NOT NULL,
	day        TEXT NOT NULL,
	count      INTEGER NOT NULL CHECK (count >= 0),
	PRIMARY KEY (series_key, day)
);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertReport implements Store.
func (s *SQLiteStore) InsertReport(ctx context.Context, r *Report) error {
	if err := prepareReport(r, uuid.NewString); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, series_key, category, status, description, lat, lng, region, address, reported_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SeriesKey, r.Category, r.Status, r.Description, r.Point.Lat, r.Point.Lng, r.Region, r.Address,
		r.ReportedAt.Format(sqliteTimeLayout), r.CreatedAt.Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert report %s", r.ID)
}

// Reports implements Store. Results are newest first.
func (s *SQLiteStore) Reports(ctx context.Context, filter ReportFilter) ([]Report, error) {
	query := `SELECT id, series_key, category, status, description, lat, lng, region, address, reported_at, created_at FROM reports WHERE 1=1`
	var args []any

	if b := filter.Bounds; b != nil {
		query += ` AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?`
		args = append(args, b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}
	if filter.Region != "" {
		query += ` AND region = ?`
		args = append(args, filter.Region)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, filter.Category)
	}
	if !filter.Since.IsZero() {
		query += ` AND reported_at >= ?`
		args = append(args, filter.Since.UTC().Format(sqliteTimeLayout))
	}
	if !filter.Until.IsZero() {
		query += ` AND reported_at < ?`
		args = append(args, filter.Until.UTC().Format(sqliteTimeLayout))
	}
	query += ` ORDER BY reported_at DESC, id LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close() //nolint:errcheck

	var out []Report
	for rows.Next() {
		var r Report
		var reportedAt, createdAt string
		if err := rows.Scan(&r.ID, &r.SeriesKey, &r.Category, &r.Status, &r.Description,
			&r.Point.Lat, &r.Point.Lng, &r.Region, &r.Address, &reportedAt, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		if r.ReportedAt, err = time.Parse(sqliteTimeLayout, reportedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse reported_at")
		}
		if r.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse created_at")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

// UpsertDailyCounts implements Store, replacing existing days.
func (s *SQLiteStore) UpsertDailyCounts(ctx context.Context, seriesKey string, counts map[time.Time]int) error {
	return s.UpsertSeries(ctx, map[string]map[time.Time]int{seriesKey: counts})
}

// UpsertSeries implements Store. All series are written in one transaction.
func (s *SQLiteStore) UpsertSeries(ctx context.Context, series map[string]map[time.Time]int) error {
	if err := validateSeries(series); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert counts")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO daily_counts (series_key, day, count) VALUES (?, ?, ?)
		ON CONFLICT (series_key, day) DO UPDATE SET count = excluded.count`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert counts")
	}
	defer stmt.Close() //nolint:errcheck

	for _, key := range sortedKeys(series) {
		byDay := make(map[string]int, len(series[key]))
		for d, n := range series[key] {
			byDay[day(d).Format(sqliteDayLayout)] += n
		}
		for d, n := range byDay {
			if _, err := stmt.ExecContext(ctx, key, d, n); err != nil {
				return eris.Wrapf(err, "sqlite: upsert count %s %s", key, d)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit counts")
}

// DailyCounts implements Store for the inclusive date range [from, to].
func (s *SQLiteStore) DailyCounts(ctx context.Context, seriesKey string, from, to time.Time) (map[time.Time]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, count FROM daily_counts WHERE series_key = ? AND day >= ? AND day <= ? ORDER BY day`,
		seriesKey, day(from).Format(sqliteDayLayout), day(to).Format(sqliteDayLayout),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: daily counts %s", seriesKey)
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[time.Time]int)
	for rows.Next() {
		var ds string
		var n int
		if err := rows.Scan(&ds, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan daily count")
		}
		d, err := time.Parse(sqliteDayLayout, strings.TrimSpace(ds))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse day %q", ds)
		}
		out[d] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: daily counts iterate")
}

// SeriesSpan implements Store. ok is false when the series has no rows.
func (s *SQLiteStore) SeriesSpan(ctx context.Context, seriesKey string) (time.Time, time.Time, bool, error) {
	var lo, hi sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MIN(day), MAX(day) FROM daily_counts WHERE series_key = ?`,
		seriesKey,
	).Scan(&lo, &hi)
	if err != nil {
		return time.Time{}, time.Time{}, false, eris.Wrapf(err, "sqlite: series span %s", seriesKey)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	first, err := time.Parse(sqliteDayLayout, strings.TrimSpace(lo.String))
	if err != nil {
		return time.Time{}, time.Time{}, false, eris.Wrapf(err, "sqlite: parse day %q", lo.String)
	}
	last, err := time.Parse(sqliteDayLayout, strings.TrimSpace(hi.String))
	if err != nil {
		return time.Time{}, time.Time{}, false, eris.Wrapf(err, "sqlite: parse day %q", hi.String)
	}
	return first, last, true, nil
}
