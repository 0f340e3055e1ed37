package taskmanager

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestMemoryStoreSaveLoadList(t *testing.T) {
	s := NewMemoryStore()
	rec := Record{ID: "t1", Kind: KindShell, Command: "echo hi", Status: StatusCompleted, StartedAt: time.Now()}
	if err := s.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := s.Load(context.Background(), "t1")
	if err != nil || !ok {
		t.Fatalf("Load: got=%+v ok=%v err=%v", got, ok, err)
	}
	if got.Command != "echo hi" {
		t.Fatalf("unexpected record: %+v", got)
	}

	all, err := s.List(context.Background())
	if err != nil || len(all) != 1 {
		t.Fatalf("List: %+v err=%v", all, err)
	}
}

func TestCockroachStoreSaveIssuesUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS wave_tasks")).WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewCockroachStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewCockroachStore: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("UPSERT INTO wave_tasks")).
		WithArgs("t1", KindShell, "echo hi", StatusCompleted, "out", "", nil, "", sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := Record{ID: "t1", Kind: KindShell, Command: "echo hi", Status: StatusCompleted, Stdout: "out", StartedAt: time.Now()}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCockroachStoreLoadNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS wave_tasks")).WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := NewCockroachStore(context.Background(), db)
	if err != nil {
		t.Fatalf("NewCockroachStore: %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, command, status, stdout, stderr, exit_code, sub_agent_id, started_at, ended_at")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "command", "status", "stdout", "stderr", "exit_code", "sub_agent_id", "started_at", "ended_at"}))

	_, ok, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok {
		t.Fatal("expected not found")
	}
}
