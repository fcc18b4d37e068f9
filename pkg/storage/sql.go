package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Dialect selects the SQL flavour of the history table
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DriverName returns the database/sql driver registered for the dialect
func (d Dialect) DriverName() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (d Dialect) placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// DateTimeLayout is the textual timestamp layout of the history table
const DateTimeLayout = "2006-01-02 15:04:05"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLHistoryStore reads and appends flood history in a SQL table with at
// least an ip and a timestamp column. Timestamps are wall-clock values in
// the configured location.
type SQLHistoryStore struct {
	db       *sql.DB
	dialect  Dialect
	table    string
	location *time.Location

	lastActionQuery string
	insertQuery     string
}

// NewSQLHistoryStore creates a store over table. location defaults to UTC.
func NewSQLHistoryStore(db *sql.DB, dialect Dialect, table string, location *time.Location) (*SQLHistoryStore, error) {
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid history table name %q", table)
	}
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if location == nil {
		location = time.UTC
	}

	return &SQLHistoryStore{
		db:       db,
		dialect:  dialect,
		table:    table,
		location: location,
		lastActionQuery: fmt.Sprintf(
			"SELECT timestamp FROM %s WHERE ip = %s ORDER BY timestamp DESC LIMIT 1",
			table, dialect.placeholder(1)),
		insertQuery: fmt.Sprintf(
			"INSERT INTO %s (ip, timestamp) VALUES (%s, %s)",
			table, dialect.placeholder(1), dialect.placeholder(2)),
	}, nil
}

// EnsureSchema creates the history table and its lookup index if missing
func (s *SQLHistoryStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (ip VARCHAR(64) NOT NULL, timestamp TIMESTAMP NOT NULL)", s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_ip_timestamp_idx ON %s (ip, timestamp)", s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare history table: %w", err)
		}
	}
	return nil
}

// LastAction implements HistoryStore
func (s *SQLHistoryStore) LastAction(ctx context.Context, addr string) (time.Time, bool, error) {
	var raw interface{}
	err := s.db.QueryRowContext(ctx, s.lastActionQuery, addr).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last action: %w", err)
	}

	ts, err := s.parseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// Record implements HistoryStore
func (s *SQLHistoryStore) Record(ctx context.Context, rec FloodRecord) error {
	if rec.SourceAddress == "" {
		return ErrInvalidRecord
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	value := ts.In(s.location).Format(DateTimeLayout)
	if _, err := s.db.ExecContext(ctx, s.insertQuery, rec.SourceAddress, value); err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// parseTimestamp turns whatever the driver returned into an instant
func (s *SQLHistoryStore) parseTimestamp(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		// zone-less column: drivers report the wall clock at offset zero,
		// lib/pq as an unnamed fixed zone and go-sqlite3 as time.UTC
		if _, offset := v.Zone(); offset == 0 && s.location != time.UTC {
			return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), s.location), nil
		}
		return v, nil
	case []byte:
		return s.parseText(string(v))
	case string:
		return s.parseText(v)
	case int64:
		return time.Unix(v, 0), nil
	case nil:
		return time.Time{}, fmt.Errorf("history timestamp is NULL")
	default:
		return time.Time{}, fmt.Errorf("unsupported history timestamp type %T", raw)
	}
}

func (s *SQLHistoryStore) parseText(value string) (time.Time, error) {
	if ts, err := time.ParseInLocation(DateTimeLayout, value, s.location); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unparseable history timestamp %q", value)
}
