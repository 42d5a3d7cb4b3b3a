package sessions

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/passlink/passlink/internal/server/models"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestCreate_InsertsAllColumns(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	session := &models.Session{
		ID:                "sess-1",
		UserID:            "user-1",
		CreatedAt:         now,
		LastSeenAt:        now,
		AbsoluteExpiresAt: now.Add(12 * time.Hour),
		DeviceSnapshot:    `{"user_agent":"ua"}`,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sessions")).
		WithArgs(session.ID, session.UserID, session.CreatedAt, session.LastSeenAt,
			session.AbsoluteExpiresAt, session.DeviceSnapshot).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTouch_GuardedUpdate(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	slide := 30 * time.Minute

	// the guard re-checks revocation and both deadlines inside the update
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET last_seen_at = $2")).
		WithArgs("sess-1", now, slide.Seconds()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Touch(context.Background(), "sess-1", now, slide)
	if err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if !ok {
		t.Fatalf("expected the touch to land")
	}
}

func TestTouch_GuardRejects(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET last_seen_at = $2")).
		WithArgs("sess-1", now, float64(1800)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Touch(context.Background(), "sess-1", now, 30*time.Minute)
	if err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if ok {
		t.Fatalf("expected the touch to be rejected")
	}
}

func TestRevoke_OnlyOnce(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at = $2")).
		WithArgs("sess-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET revoked_at = $2")).
		WithArgs("sess-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Revoke(context.Background(), "sess-1", now)
	if err != nil || !ok {
		t.Fatalf("first Revoke: ok=%v err=%v", ok, err)
	}
	ok, err = repo.Revoke(context.Background(), "sess-1", now)
	if err != nil || ok {
		t.Fatalf("second Revoke: ok=%v err=%v", ok, err)
	}
}

func TestListByUser_ScansRows(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "created_at", "last_seen_at",
		"absolute_expires_at", "device_snapshot", "revoked_at",
	}).
		AddRow("sess-2", "user-1", now, now, now.Add(time.Hour), "{}", nil).
		AddRow("sess-1", "user-1", now.Add(-time.Hour), now, now.Add(time.Hour), "{}", now)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC")).
		WithArgs("user-1").
		WillReturnRows(rows)

	list, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].RevokedAt != nil {
		t.Fatalf("first session should be live")
	}
	if list[1].RevokedAt == nil {
		t.Fatalf("second session should be revoked")
	}
}

func TestDeleteExpired_ReportsCount(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()
	repo := NewPostgresRepository(db)

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions")).
		WithArgs(now, float64(1800)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.DeleteExpired(context.Background(), now, 30*time.Minute)
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 deleted rows, got %d", n)
	}
}
