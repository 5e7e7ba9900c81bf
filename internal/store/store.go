// Package store persists TP357 readings to SQLite and CSV.
//
// History readings go to one table per query mode and are appended
// incrementally per address: only readings newer than the newest stored
// one are written. Advertisement readings go to the adv table as they arrive.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/tp357"
)

// AdvertisementTable holds advertisement readings.
const AdvertisementTable = tp357.AdvertisementSource

// TimeLayout is how timestamps are written to the time column.
const TimeLayout = "2006-01-02 15:04:05"

//go:embed sql/create-history.sql
var createHistorySQL string

//go:embed sql/newest-history.sql
var newestHistorySQL string

//go:embed sql/insert-history.sql
var insertHistorySQL string

//go:embed sql/count.sql
var countSQL string

//go:embed sql/create-adv.sql
var createAdvSQL string

//go:embed sql/insert-adv.sql
var insertAdvSQL string

// Store is a SQLite database of readings.
type Store struct {
	db     *sql.DB
	path   string
	logger *logrus.Logger
}

// Open opens or creates the database at path.
func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	logger.WithField("path", path).Debug("Opened sqlite database")
	return &Store{db: db, path: path, logger: logger}, nil
}

func buildDSN(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite path is empty")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000", path), nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendResult describes one incremental append.
type AppendResult struct {
	Table    string
	Address  string
	Appended int
	// Previous is the newest timestamp stored for Address before the
	// append; zero if the address had no rows.
	Previous time.Time
	// Since is the lower bound of the appended data.
	Since time.Time
}

// Message renders the result the way the command-line tool reports it.
func (r AppendResult) Message(path string) string {
	switch {
	case r.Appended == 0:
		return fmt.Sprintf("Nothing additional to append to table '%s' on sqlite DB '%s' for address '%s'.", r.Table, path, r.Address)
	case r.Previous.IsZero():
		return fmt.Sprintf("Saved to table '%s' on sqlite DB '%s' for address '%s'.", r.Table, path, r.Address)
	default:
		return fmt.Sprintf("Data with time > %s appended to table '%s' on sqlite DB '%s' for address '%s'.",
			r.Since.Format(TimeLayout), r.Table, path, r.Address)
	}
}

// tableName validates table against the known mode tables. Table names
// are interpolated into SQL, so nothing else is accepted.
func tableName(table string) (string, error) {
	mode, err := tp357.ParseMode(table)
	if err != nil {
		return "", fmt.Errorf("unknown table %q: %w", table, err)
	}
	return string(mode), nil
}

// Newest returns the newest timestamp stored for address in table.
func (s *Store) Newest(ctx context.Context, table, address string) (time.Time, bool, error) {
	name, err := tableName(table)
	if err != nil {
		return time.Time{}, false, err
	}
	if err := s.ensureHistory(ctx, name); err != nil {
		return time.Time{}, false, err
	}
	return newest(ctx, s.db, name, address)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newest(ctx context.Context, q queryer, table, address string) (time.Time, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, fmt.Sprintf(newestHistorySQL, table), address).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("newest %s row for %s: %w", table, address, err)
	}

	ts, err := time.ParseInLocation(TimeLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed time %q in table %s: %w", raw, table, err)
	}
	return ts, true, nil
}

// Count returns the number of rows stored for address in table.
func (s *Store) Count(ctx context.Context, table, address string) (int, error) {
	name := table
	if table == AdvertisementTable {
		if _, err := s.db.ExecContext(ctx, createAdvSQL); err != nil {
			return 0, fmt.Errorf("create table %s: %w", AdvertisementTable, err)
		}
	} else {
		var err error
		if name, err = tableName(table); err != nil {
			return 0, err
		}
		if err := s.ensureHistory(ctx, name); err != nil {
			return 0, err
		}
	}

	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(countSQL, name), address).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s rows for %s: %w", name, address, err)
	}
	return n, nil
}

func (s *Store) ensureHistory(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(createHistorySQL, table)); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// Append writes the readings of address that are strictly newer than the
// newest one already stored for it. Times are compared and stored at the
// sample resolution of the table's mode. The table is created on demand.
func (s *Store) Append(ctx context.Context, table, address string, readings []tp357.Reading) (AppendResult, error) {
	name, err := tableName(table)
	if err != nil {
		return AppendResult{}, err
	}
	if err := s.ensureHistory(ctx, name); err != nil {
		return AppendResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res := AppendResult{Table: name, Address: address}
	prev, ok, err := newest(ctx, tx, name, address)
	if err != nil {
		return AppendResult{}, err
	}
	if ok {
		res.Previous = prev
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(insertHistorySQL, name))
	if err != nil {
		return AppendResult{}, fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer func() { _ = stmt.Close() }()

	mode := tp357.Mode(name)
	cursor, seen := prev, ok
	var oldest time.Time
	for _, r := range readings {
		ts := mode.Truncate(r.Timestamp.Local())
		if seen && !ts.After(cursor) {
			continue
		}
		cursor, seen = ts, true
		if _, err := stmt.ExecContext(ctx, ts.Local().Format(TimeLayout), r.HumidityPercent, r.TemperatureCelsius, address); err != nil {
			return AppendResult{}, fmt.Errorf("insert into %s: %w", name, err)
		}
		if oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
		res.Appended++
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, fmt.Errorf("commit: %w", err)
	}

	res.Since = oldest
	if ok && prev.After(oldest) {
		res.Since = prev
	}

	s.logger.WithFields(logrus.Fields{
		"table":    name,
		"address":  address,
		"appended": res.Appended,
		"skipped":  len(readings) - res.Appended,
	}).Debug("Appended readings")
	return res, nil
}

// AppendAdvertisement writes one advertisement reading to the adv table.
func (s *Store) AppendAdvertisement(ctx context.Context, r tp357.Reading) error {
	if _, err := s.db.ExecContext(ctx, createAdvSQL); err != nil {
		return fmt.Errorf("create table %s: %w", AdvertisementTable, err)
	}

	_, err := s.db.ExecContext(ctx, insertAdvSQL,
		r.Timestamp.Local().Format(TimeLayout),
		r.Address,
		nullableInt(r.RSSI),
		r.HumidityPercent,
		r.TemperatureCelsius,
		nullableInt(r.BatteryPercent),
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", AdvertisementTable, err)
	}
	return nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
