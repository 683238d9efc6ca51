package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS farmers (
	id              TEXT PRIMARY KEY,
	first_name      TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	first_name_norm TEXT NOT NULL,
	last_name_norm  TEXT NOT NULL,
	phone_number    TEXT NOT NULL UNIQUE,
	password_hash   TEXT NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_farmers_last_name_norm ON farmers(last_name_norm);
CREATE INDEX IF NOT EXISTS idx_farmers_first_name_norm ON farmers(first_name_norm);
`

// FarmerStore implements port.AccountRepository on an embedded SQLite file.
// Trigram similarity is computed in Go over a prefix-filtered candidate set.
type FarmerStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string, busyTimeout time.Duration) (*FarmerStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &FarmerStore{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate applies the schema; it is idempotent.
func (s *FarmerStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *FarmerStore) Close() error {
	return s.db.Close()
}

// Ping verifies database connectivity.
func (s *FarmerStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

func (s *FarmerStore) FindByPhone(ctx context.Context, phone string) (*domain.FarmerAccount, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, phone_number, password_hash, created_at
		FROM farmers WHERE phone_number = ?`, phone)

	account, err := scanFarmer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select farmer by phone: %w", err)
	}
	return account, nil
}

func (s *FarmerStore) FindFuzzy(ctx context.Context, firstName, lastName string, limit int) ([]domain.FarmerCandidate, error) {
	if limit <= 0 {
		limit = 5
	}
	first := normalize(firstName)
	last := normalize(lastName)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, phone_number, password_hash, created_at
		FROM farmers
		WHERE last_name_norm LIKE ? OR first_name_norm LIKE ?`,
		initialPattern(last), initialPattern(first))
	if err != nil {
		return nil, fmt.Errorf("query fuzzy farmers: %w", err)
	}
	defer rows.Close()

	var candidates []domain.FarmerCandidate
	for rows.Next() {
		account, err := scanFarmer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fuzzy farmer: %w", err)
		}
		score := (similarity(first, account.FirstName) + similarity(last, account.LastName)) / 2
		if score <= 0 {
			continue
		}
		candidates = append(candidates, domain.FarmerCandidate{Account: *account, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fuzzy farmers: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *FarmerStore) Create(ctx context.Context, account domain.FarmerAccount) (*domain.FarmerAccount, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farmers (id, first_name, last_name, first_name_norm, last_name_norm, phone_number, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.FirstName,
		account.LastName,
		normalize(account.FirstName),
		normalize(account.LastName),
		account.PhoneNumber,
		account.PasswordHash,
		account.CreatedAt.UnixMilli(),
	)
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert farmer: %w", err)
	}

	created := account
	created.CreatedAt = time.UnixMilli(account.CreatedAt.UnixMilli()).UTC()
	return &created, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFarmer(row scanner) (*domain.FarmerAccount, error) {
	var (
		account   domain.FarmerAccount
		createdAt int64
	)
	if err := row.Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.PhoneNumber,
		&account.PasswordHash,
		&createdAt,
	); err != nil {
		return nil, err
	}
	account.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &account, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// initialPattern matches names sharing the first letter; an empty name matches nothing.
func initialPattern(norm string) string {
	r, size := utf8.DecodeRuneInString(norm)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return escapeLike(string(r)) + "%"
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

var _ port.AccountRepository = (*FarmerStore)(nil)
