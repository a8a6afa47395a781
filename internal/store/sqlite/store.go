package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"snowtrack/internal/core"
	ierr "snowtrack/internal/errors"
	"snowtrack/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Store)(nil)

var zeroMonth = core.Month{}.String()

const recordColumns = "id, customer, month, consumption, project_status, region, notes, created_at"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Store keeps one session's records in a private in-memory SQLite database.
// The database lives as long as the store's connection pool stays open.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DSN returns the shared-cache in-memory database name for a session.
func DSN(name string) string {
	return fmt.Sprintf("file:snowtrack_%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(name, "_"))
}

// New opens the in-memory database called name and applies the schema.
func New(name string) (*Store, error) {
	dsn := DSN(name)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes access and keeps the shared cache alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, r core.Record) (core.Record, error) {
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	r = r.WithIdentity(s.now())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Customer, r.Month.String(), r.Consumption.String(),
		string(r.ProjectStatus), string(r.Region), r.Notes,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return core.Record{}, systemError(err, "insert record")
	}
	return r, nil
}

// Delete removes every active record whose display identifier is listed.
func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE (customer || ' - ' || month) IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, systemError(err, "delete records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, systemError(err, "count deleted records")
	}
	return int(n), nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return systemError(err, "delete record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return systemError(err, "count deleted records")
	}
	if n == 0 {
		return ierr.NewErrorf("record %s not found", id).
			WithHint("Record not found").
			Mark(ierr.ErrNotFound)
	}
	return nil
}

func (s *Store) Records(ctx context.Context) ([]core.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM records ORDER BY seq`)
}

// Filter pushes the criteria down to SQL; empty criteria select everything.
func (s *Store) Filter(ctx context.Context, f core.Filter) ([]core.Record, error) {
	var (
		where []string
		args  []any
	)
	if f.Customer != "" {
		where = append(where, "customer = ?")
		args = append(args, f.Customer)
	}
	if f.Region != "" {
		where = append(where, "region = ?")
		args = append(args, string(f.Region))
	}
	if f.Status != "" {
		where = append(where, "project_status = ?")
		args = append(args, string(f.Status))
	}

	q := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY seq`
	return s.query(ctx, q, args...)
}

// Customers lists distinct customers in the order they were first inserted.
func (s *Store) Customers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT customer FROM records GROUP BY customer ORDER BY MIN(seq)`)
	if err != nil {
		return nil, systemError(err, "list customers")
	}
	defer rows.Close()

	customers := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, systemError(err, "scan customer")
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, systemError(err, "iterate customers")
	}
	return customers, nil
}

// Archive moves the customer's records, in order, behind the existing archive.
func (s *Store) Archive(ctx context.Context, customer string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, systemError(err, "begin archive")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_records (`+recordColumns+`, archived_at)
		 SELECT `+recordColumns+`, ? FROM records WHERE customer = ? ORDER BY seq`,
		s.now().UTC().Format(time.RFC3339Nano), customer)
	if err != nil {
		return 0, systemError(err, "copy records to archive")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE customer = ?`, customer)
	if err != nil {
		return 0, systemError(err, "remove archived records")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, systemError(err, "count archived records")
	}

	if err := tx.Commit(); err != nil {
		return 0, systemError(err, "commit archive")
	}
	return int(n), nil
}

func (s *Store) Archived(ctx context.Context) ([]core.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM archived_records ORDER BY seq`)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]core.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, systemError(err, "query records")
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, systemError(err, "iterate records")
	}
	return records, nil
}

func scanRecord(rows *sql.Rows) (core.Record, error) {
	var (
		r                                  core.Record
		month, consumption, status, region string
		createdAt                          string
	)
	if err := rows.Scan(&r.ID, &r.Customer, &month, &consumption, &status, &region, &r.Notes, &createdAt); err != nil {
		return core.Record{}, systemError(err, "scan record")
	}

	var err error
	if r.Month, err = decodeMonth(month); err != nil {
		return core.Record{}, systemError(err, "decode month")
	}
	if r.Consumption, err = decimal.NewFromString(consumption); err != nil {
		return core.Record{}, systemError(err, "decode consumption")
	}
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Record{}, systemError(err, "decode created_at")
	}
	r.ProjectStatus = core.ProjectStatus(status)
	r.Region = core.Region(region)
	return r, nil
}

// decodeMonth reverses Month.String, including the zero month "0000-00".
func decodeMonth(s string) (core.Month, error) {
	if s == zeroMonth {
		return core.Month{}, nil
	}
	return core.ParseMonth(s)
}

func systemError(err error, op string) error {
	return ierr.WithError(err).
		WithHintf("Storage error: %s", op).
		Mark(ierr.ErrSystem)
}
