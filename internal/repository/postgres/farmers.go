package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/port"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

const (
	farmersTable        = "onboarding.farmers"
	uniqueViolationCode = "23505"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgPool interface {
	pgExecutor
	Ping(ctx context.Context) error
}

var farmerColumns = []string{"id", "first_name", "last_name", "phone_number", "password_hash", "created_at"}

// FarmerRepository implements port.AccountRepository on PostgreSQL with pg_trgm fuzzy search.
type FarmerRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
}

// NewFarmerRepository constructs a repository backed by a pgx pool (or a compatible mock).
func NewFarmerRepository(pool pgPool) *FarmerRepository {
	return &FarmerRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// FindByPhone returns the account owning phone or repository.ErrNotFound.
func (r *FarmerRepository) FindByPhone(ctx context.Context, phone string) (*domain.FarmerAccount, error) {
	stmt, args, err := r.builder.
		Select(farmerColumns...).
		From(farmersTable).
		Where(squirrel.Eq{"phone_number": phone}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select farmer sql: %w", err)
	}

	var account domain.FarmerAccount
	if err := r.pool.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.FirstName,
		&account.LastName,
		&account.PhoneNumber,
		&account.PasswordHash,
		&account.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select farmer by phone: %w", err)
	}

	return &account, nil
}

// FindFuzzy ranks accounts by the mean trigram similarity of both names.
func (r *FarmerRepository) FindFuzzy(ctx context.Context, firstName, lastName string, limit int) ([]domain.FarmerCandidate, error) {
	if limit <= 0 {
		limit = 5
	}

	stmt, args, err := r.builder.
		Select(farmerColumns...).
		Column(squirrel.Expr(
			"(similarity(lower(first_name), lower(?)) + similarity(lower(last_name), lower(?))) / 2 AS score",
			firstName, lastName,
		)).
		From(farmersTable).
		Where(squirrel.Expr("(lower(last_name) % lower(?) OR lower(first_name) % lower(?))", lastName, firstName)).
		OrderBy("score DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fuzzy farmer sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query fuzzy farmers: %w", err)
	}
	defer rows.Close()

	var candidates []domain.FarmerCandidate
	for rows.Next() {
		var (
			c     domain.FarmerCandidate
			score float64
		)
		if err := rows.Scan(
			&c.Account.ID,
			&c.Account.FirstName,
			&c.Account.LastName,
			&c.Account.PhoneNumber,
			&c.Account.PasswordHash,
			&c.Account.CreatedAt,
			&score,
		); err != nil {
			return nil, fmt.Errorf("scan fuzzy farmer: %w", err)
		}
		c.Score = score
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fuzzy farmers: %w", err)
	}

	return candidates, nil
}

// Create inserts the account. The unique phone constraint maps to repository.ErrDuplicate.
func (r *FarmerRepository) Create(ctx context.Context, account domain.FarmerAccount) (*domain.FarmerAccount, error) {
	stmt, args, err := r.builder.
		Insert(farmersTable).
		Columns(farmerColumns...).
		Values(
			account.ID,
			account.FirstName,
			account.LastName,
			account.PhoneNumber,
			account.PasswordHash,
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert farmer sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, repository.ErrDuplicate
		}
		return nil, fmt.Errorf("insert farmer: %w", err)
	}

	created := account
	return &created, nil
}

// Ping checks database connectivity.
func (r *FarmerRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	return nil
}

var _ port.AccountRepository = (*FarmerRepository)(nil)
