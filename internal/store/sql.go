package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // driver: sqlite

	"adminkit/internal/schema"
)

// Driver names accepted by OpenSQL.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQL keeps records in one table with a JSON payload column.
type SQL struct {
	db      *sql.DB
	driver  string
	mu      sync.Mutex
	entropy io.Reader
}

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS records (
		screen     TEXT    NOT NULL,
		id         TEXT    NOT NULL,
		version    BIGINT  NOT NULL,
		created_at TEXT    NOT NULL,
		updated_at TEXT    NOT NULL,
		deleted    INTEGER NOT NULL DEFAULT 0,
		data       TEXT    NOT NULL,
		PRIMARY KEY (screen, id)
	)`,
	`CREATE INDEX IF NOT EXISTS records_screen_live ON records (screen, deleted)`,
}

// OpenSQL connects to Postgres (driver "postgres", pgx) or SQLite (driver
// "sqlite", a file path or ":memory:") and creates the records table.
func OpenSQL(driver, url string) (*SQL, error) {
	var name string
	switch driver {
	case DriverPostgres, "pgx":
		driver, name = DriverPostgres, "pgx"
	case DriverSQLite:
		name = "sqlite"
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
	db, err := sql.Open(name, url)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &SQL{
		db:      db,
		driver:  driver,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	if err := s.applyDDL(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQL) applyDDL(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			// concurrent servers may race on CREATE ... IF NOT EXISTS
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.Code == "42P07" || pgErr.Code == "42710" || pgErr.Code == "23505") {
				log.Printf("DDL skipped (already exists): %s", strings.TrimSpace(pgErr.Message))
				continue
			}
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec              Record
		created, updated string
		deleted          int
		data             string
	)
	if err := row.Scan(&rec.ID, &rec.Version, &created, &updated, &deleted, &data); err != nil {
		return nil, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	rec.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, nil
}

const recordColumns = `id, version, created_at, updated_at, deleted, data`

// List loads the live rows of the screen and filters them in process so that
// both drivers share one filter language.
func (s *SQL) List(ctx context.Context, screen string, fields schema.Schema, p ListParams) ([]*Record, int, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT `+recordColumns+` FROM records WHERE screen = ? AND deleted = 0`), screen)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var all []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	page, total := Apply(all, fields, p)
	return page, total, nil
}

func (s *SQL) Get(ctx context.Context, screen, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+recordColumns+` FROM records WHERE screen = ? AND id = ? AND deleted = 0`), screen, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *SQL) Create(ctx context.Context, screen string, data map[string]any) (*Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rec := &Record{ID: s.newID(), Version: 1, CreatedAt: now, UpdatedAt: now, Data: cloneData(data)}
	ts := now.Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		s.rebind(`INSERT INTO records (screen, `+recordColumns+`) VALUES (?, ?, ?, ?, ?, 0, ?)`),
		screen, rec.ID, rec.Version, ts, ts, string(payload))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQL) Update(ctx context.Context, screen, id string, data map[string]any, expectedVersion int64) (*Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cur, err := scanRecord(tx.QueryRowContext(ctx,
		s.rebind(`SELECT `+recordColumns+` FROM records WHERE screen = ? AND id = ? AND deleted = 0`), screen, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if expectedVersion != 0 && expectedVersion != cur.Version {
		return nil, ErrVersionConflict
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		s.rebind(`UPDATE records SET data = ?, version = version + 1, updated_at = ? WHERE screen = ? AND id = ? AND version = ?`),
		string(payload), now.Format(time.RFC3339Nano), screen, id, cur.Version)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrVersionConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	cur.Data = cloneData(data)
	cur.Version++
	cur.UpdatedAt = now
	return cur, nil
}

func (s *SQL) Delete(ctx context.Context, screen, id string) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE records SET deleted = 1, version = version + 1, updated_at = ? WHERE screen = ? AND id = ? AND deleted = 0`),
		time.Now().UTC().Format(time.RFC3339Nano), screen, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) BatchDelete(ctx context.Context, screen string, ids []string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	stmt := s.rebind(`UPDATE records SET deleted = 1, version = version + 1, updated_at = ? WHERE screen = ? AND id = ? AND deleted = 0`)
	var deleted []string
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, stmt, ts, screen, id)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			deleted = append(deleted, id)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

func (s *SQL) Close() error { return s.db.Close() }
