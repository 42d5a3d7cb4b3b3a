package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/passlink/passlink/internal/common"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestGetOrCreate_FoldsEmailAndUpserts(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "created_at", "locked_until"}).
		AddRow("user-1", "alice@example.com", now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (email) DO UPDATE")).
		WithArgs(sqlmock.AnyArg(), "alice@example.com").
		WillReturnRows(rows)

	user, err := repo.GetOrCreate(context.Background(), "  Alice@Example.COM ")
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", user.Email)
	}
	if user.LockedUntil != nil {
		t.Fatalf("fresh user should not be locked")
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1")).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected common.ErrorNotFound, got %v", err)
	}
}

func TestLockUntil_SetAndClear(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	until := time.Now().Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET locked_until = $2")).
		WithArgs("alice@example.com", until).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET locked_until = $2")).
		WithArgs("alice@example.com", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.LockUntil(context.Background(), "alice@example.com", &until); err != nil {
		t.Fatalf("LockUntil error: %v", err)
	}
	if err := repo.LockUntil(context.Background(), "alice@example.com", nil); err != nil {
		t.Fatalf("LockUntil clear error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
