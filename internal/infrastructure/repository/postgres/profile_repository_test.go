package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dialogiq/context-engine/internal/core/domain"
)

func newProfileRepoWithMock(t *testing.T) (*ProfileRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewProfileRepository(db), mock, func() { _ = db.Close() }
}

func profileRow(id string) *sqlmock.Rows {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "bot_id", "email", "phone", "facts", "session_summaries",
		"total_sessions", "total_messages", "avg_sentiment", "engagement_level",
		"created_at", "updated_at",
	}).AddRow(
		id, "t-1", "b-1", "ann@example.com", "",
		`{"plan":{"value":"premium","updated_at":"2026-05-01T12:00:00Z"}}`,
		`[{"session_id":"s-1","summary":"Reached stage pricing over 4 messages.","created_at":"2026-05-01T12:00:00Z"}]`,
		3, 18, 0.4, "active", now, now,
	)
}

func TestProfileGetByIDScansAggregates(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, tenant_id, bot_id, email, phone, facts").
		WithArgs("p-1").
		WillReturnRows(profileRow("p-1"))

	profile, err := repo.GetByID(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if profile.Email != "ann@example.com" || profile.Facts["plan"].Value != "premium" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if len(profile.SessionSummaries) != 1 || profile.SessionSummaries[0].SessionID != "s-1" {
		t.Fatalf("unexpected summaries: %+v", profile.SessionSummaries)
	}
	if profile.Behavior.TotalMessages != 18 || profile.Behavior.EngagementLevel != domain.EngagementActive {
		t.Fatalf("unexpected behavior: %+v", profile.Behavior)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, tenant_id, bot_id, email, phone, facts").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileFindByEmailScopesToTenantAndBot(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectQuery("WHERE tenant_id = \\$1 AND bot_id = \\$2 AND email = \\$3").
		WithArgs("t-1", "b-1", "ann@example.com").
		WillReturnRows(profileRow("p-1"))

	profile, err := repo.FindByEmail(context.Background(), "t-1", "b-1", "ann@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if profile.ID != "p-1" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileCreateWrapsStoreFailure(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO profiles").
		WillReturnError(errors.New("connection refused"))

	now := time.Now().UTC()
	err := repo.Create(context.Background(), &domain.UserProfile{
		ID: "p-1", TenantID: "t-1", BotID: "b-1", Email: "ann@example.com",
		Behavior:  domain.BehaviorStats{EngagementLevel: domain.EngagementNew},
		CreatedAt: now, UpdatedAt: now,
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProfileStoreUnavailable) {
		t.Fatalf("expected ErrProfileStoreUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileUpdateReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE profiles").
		WillReturnResult(sqlmock.NewResult(0, 0))

	now := time.Now().UTC()
	err := repo.Update(context.Background(), &domain.UserProfile{ID: "missing", UpdatedAt: now})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileDeleteReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM profiles").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestProfileSearchMatchesEmailPhoneAndFacts(t *testing.T) {
	repo, mock, done := newProfileRepoWithMock(t)
	defer done()

	mock.ExpectQuery("email ILIKE \\$3 OR phone LIKE \\$3 OR facts::text ILIKE \\$3").
		WithArgs("t-1", "b-1", "%ann%", 20).
		WillReturnRows(profileRow("p-1"))

	profiles, err := repo.Search(context.Background(), "t-1", "b-1", "ann", 20)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(profiles) != 1 || profiles[0].ID != "p-1" {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
