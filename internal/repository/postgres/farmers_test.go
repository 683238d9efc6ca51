package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/core/domain"
	"github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/repository"
)

func newMockRepo(t *testing.T) (*FarmerRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewFarmerRepository(mock), mock
}

func TestFarmerRepository_FindByPhone(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "first_name", "last_name", "phone_number", "password_hash", "created_at"}).
		AddRow("acc-1", "Peter", "Horvat", "+38641348050", "argon2id$hash", createdAt)
	mock.ExpectQuery(`SELECT id, first_name, last_name, phone_number, password_hash, created_at FROM onboarding\.farmers WHERE phone_number = \$1`).
		WithArgs("+38641348050").
		WillReturnRows(rows)

	account, err := repo.FindByPhone(context.Background(), "+38641348050")
	if err != nil {
		t.Fatalf("FindByPhone returned error: %v", err)
	}
	if account.ID != "acc-1" || account.LastName != "Horvat" {
		t.Fatalf("unexpected account: %+v", account)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFarmerRepository_FindByPhoneNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`FROM onboarding\.farmers WHERE phone_number`).
		WithArgs("+38640000000").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByPhone(context.Background(), "+38640000000")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFarmerRepository_FindFuzzy(t *testing.T) {
	repo, mock := newMockRepo(t)
	createdAt := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "first_name", "last_name", "phone_number", "password_hash", "created_at", "score"}).
		AddRow("acc-1", "Petr", "Horvat", "+38641000001", "h", createdAt, 0.82).
		AddRow("acc-2", "Peter", "Horvath", "+38641000002", "h", createdAt, 0.64)
	mock.ExpectQuery(`similarity\(lower\(first_name\), lower\(\$1\)\).+FROM onboarding\.farmers WHERE \(lower\(last_name\) % lower\(\$3\) OR lower\(first_name\) % lower\(\$4\)\) ORDER BY score DESC LIMIT 3`).
		WithArgs("Peter", "Horvat", "Horvat", "Peter").
		WillReturnRows(rows)

	candidates, err := repo.FindFuzzy(context.Background(), "Peter", "Horvat", 3)
	if err != nil {
		t.Fatalf("FindFuzzy returned error: %v", err)
	}
	if len(candidates) != 2 || candidates[0].Account.ID != "acc-1" || candidates[0].Score != 0.82 {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFarmerRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)
	account := domain.FarmerAccount{
		ID:           "acc-1",
		FirstName:    "Peter",
		LastName:     "Horvat",
		PhoneNumber:  "+38641348050",
		PasswordHash: "argon2id$hash",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO onboarding\.farmers`).
		WithArgs(account.ID, account.FirstName, account.LastName, account.PhoneNumber, account.PasswordHash, account.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	created, err := repo.Create(context.Background(), account)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID != account.ID {
		t.Fatalf("unexpected created account: %+v", created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFarmerRepository_CreateDuplicatePhone(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO onboarding\.farmers`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "farmers_phone_number_key"})

	_, err := repo.Create(context.Background(), domain.FarmerAccount{ID: "acc-2", PhoneNumber: "+38641348050"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestFarmerRepository_Ping(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	if err := repo.Ping(context.Background()); !errors.Is(err, repository.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS onboarding\.farmers`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	applied, err := Migrate(context.Background(), mock)
	if err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	if len(applied) != 1 || applied[0] != "migrations/0001_farmers.sql" {
		t.Fatalf("unexpected applied migrations: %v", applied)
	}
}
