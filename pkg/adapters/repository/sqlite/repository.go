package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	"github.com/wadjakorntonsri/go-phone-tags/pkg/core/domain"
	"github.com/wadjakorntonsri/go-phone-tags/pkg/ports"
	_ "modernc.org/sqlite" // Local SQLite driver
)

//go:embed schema.sql
var schemaSQL string

// tagColumns must match the scan order in scanTag.
const tagColumns = `id, phone, tag, created_at, report_count`

// Local connections wait on locks instead of failing with SQLITE_BUSY, and
// start write transactions immediately so concurrent writers queue up.
var localPragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_txlock=immediate",
}

type SQLiteRepository struct {
	db *sql.DB

	// afterConflict runs inside Insert's transaction after a DO NOTHING insert. Tests only.
	afterConflict func(ctx context.Context, q queryer) error
}

// NewSQLiteRepository opens the database at dbURL and creates the schema.
// libsql:// and wss:// URLs go to Turso; anything else is a local SQLite file or memory DSN.
func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	dsn := dbURL
	if IsRemote(dbURL) {
		driverName = "libsql"
	} else {
		dsn = localDSN(dbURL)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}

	if !IsRemote(dbURL) {
		if isMemory(dbURL) {
			// Shared-cache memory databases report table locks instead of waiting on them.
			db.SetMaxOpenConns(1)
		} else {
			db.SetMaxOpenConns(4)
			db.SetMaxIdleConns(2)
			db.SetConnMaxLifetime(time.Hour)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// IsRemote reports whether dbURL points at a libSQL/Turso server.
func IsRemote(dbURL string) bool {
	return strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://")
}

func isMemory(dbURL string) bool {
	return strings.Contains(dbURL, ":memory:") || strings.Contains(dbURL, "mode=memory")
}

func localDSN(dbURL string) string {
	pragmas := localPragmas
	if isMemory(dbURL) {
		pragmas = []string{"_pragma=busy_timeout(5000)"}
	}
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	return dbURL + sep + strings.Join(pragmas, "&")
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schemaSQL)
	return err
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ping verifies the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func scanTag(scanner interface{ Scan(dest ...any) error }) (*domain.TagAssociation, error) {
	var (
		a         domain.TagAssociation
		createdAt string
	)
	if err := scanner.Scan(&a.ID, &a.Phone, &a.Tag, &createdAt, &a.ReportCount); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	a.CreatedAt = t
	return &a, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) ListByPhone(ctx context.Context, phone string) ([]domain.TagAssociation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE phone = ? ORDER BY tag ASC`, phone)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.TagAssociation{}
	for rows.Next() {
		a, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*domain.TagAssociation, error) {
	return getByID(ctx, r.db, id)
}

func getByID(ctx context.Context, q queryer, id string) (*domain.TagAssociation, error) {
	a, err := scanTag(q.QueryRowContext(ctx,
		`SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundf("tag %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return a, nil
}

// Insert stores a, or loads the existing (phone, tag) row into a. Remote libSQL
// transactions are not IMMEDIATE, so a delete can land between the conflicting
// insert and the read-back; the insert is then retried once.
func (r *SQLiteRepository) Insert(ctx context.Context, a *domain.TagAssociation) (bool, error) {
	created, err := r.insertOnce(ctx, a)
	if errors.Is(err, sql.ErrNoRows) {
		created, err = r.insertOnce(ctx, a)
	}
	return created, err
}

func (r *SQLiteRepository) insertOnce(ctx context.Context, a *domain.TagAssociation) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created, err := insertTag(ctx, tx, a)
	if err != nil {
		return false, err
	}

	if !created {
		if r.afterConflict != nil {
			if err := r.afterConflict(ctx, tx); err != nil {
				return false, err
			}
		}
		existing, err := scanTag(tx.QueryRowContext(ctx,
			`SELECT `+tagColumns+` FROM tags WHERE phone = ? AND tag = ?`, a.Phone, a.Tag))
		if err != nil {
			return false, fmt.Errorf("read existing tag: %w", err)
		}
		*a = *existing
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func insertTag(ctx context.Context, q queryer, a *domain.TagAssociation) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO tags (id, phone, tag, created_at, report_count)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(phone, tag) DO NOTHING`,
		a.ID, a.Phone, a.Tag, formatTime(a.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert tag: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) InsertBatch(ctx context.Context, as []domain.TagAssociation) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for i := range as {
		ok, err := insertTag(ctx, tx, &as[i])
		if err != nil {
			return 0, err
		}
		if ok {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, key domain.TagKey) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM tags WHERE phone = ? AND tag = ?`, key.Phone, key.Tag)
	if err != nil {
		return false, fmt.Errorf("delete tag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tag: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) IncrementReport(ctx context.Context, id string) (*domain.TagAssociation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE tags SET report_count = report_count + 1 WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("increment report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("increment report: %w", err)
	}
	if n == 0 {
		return nil, domain.NotFoundf("tag %s not found", id)
	}

	a, err := getByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// WalkGroups must not be re-entered from fn: rows stay open while fn runs.
func (r *SQLiteRepository) WalkGroups(ctx context.Context, fn func(domain.PhoneGroup) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT phone, tag FROM tags ORDER BY phone ASC, tag ASC`)
	if err != nil {
		return fmt.Errorf("scan tags: %w", err)
	}
	defer rows.Close()

	var current *domain.PhoneGroup
	for rows.Next() {
		var phone, tag string
		if err := rows.Scan(&phone, &tag); err != nil {
			return err
		}
		if current != nil && current.Phone != phone {
			if err := fn(*current); err != nil {
				return err
			}
			current = nil
		}
		if current == nil {
			current = &domain.PhoneGroup{Phone: phone}
		}
		current.Tags = append(current.Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if current != nil {
		return fn(*current)
	}
	return nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	var s domain.RegistryStats
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT phone) FROM tags`).Scan(&s.Associations, &s.Phones)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &s, nil
}

// Ensure interface compliance
var _ ports.TagRepository = (*SQLiteRepository)(nil)
