package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t testing.TB) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewFromDB(conn, "sqlmock"), mock
}

func TestSessionCommitsOnSuccess(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE galleries SET dead").
		WithArgs(true, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := db.Session(context.Background(), true, func(s *Session) error {
		return s.MarkDead([]int64{1, 2}, true)
	})
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSessionRollsBackFailedWrite(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE metadata SET json").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err := db.Session(context.Background(), false, func(s *Session) error {
		return s.UpdateFacet(7, `{}`)
	})
	if err == nil || !strings.Contains(err.Error(), "disk I/O error") {
		t.Fatalf("Expected write error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestSessionReportsRollbackFailure(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	errWrite := errors.New("write failed")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	err := db.Session(context.Background(), false, func(*Session) error {
		return errWrite
	})
	if !errors.Is(err, errWrite) {
		t.Errorf("Expected original error to be preserved, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "rollback also failed") {
		t.Errorf("Expected rollback failure to be reported, got %v", err)
	}
}

func TestSessionBeginFailure(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	called := false
	err := db.Session(context.Background(), true, func(*Session) error {
		called = true
		return nil
	})
	if err == nil {
		t.Error("Expected begin error")
	}
	if called {
		t.Error("Expected fn not to run when begin fails")
	}
}

func TestUpdateGalleryBuildsSetClause(t *testing.T) {
	t.Parallel()
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE galleries SET uuid = \?, mtime_hash = \?, dead = \? WHERE id = \?`).
		WithArgs("new", "m2", false, int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.Session(context.Background(), true, func(s *Session) error {
		return s.UpdateGallery(9, GalleryUpdate{UUID: Ptr("new"), MtimeHash: Ptr("m2"), Dead: Ptr(false)})
	})
	if err != nil {
		t.Fatalf("UpdateGallery failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
