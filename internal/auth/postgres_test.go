package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPGStore(db), mock
}

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "display_name", "password_hash", "oauth_id", "totp_secret",
		"two_factor_enabled", "is_online", "created_at", "updated_at",
	})
}

func TestPGUserCreateMapsDuplicates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "a@x.com", "alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_email_key"})

	err := store.Users(context.Background()).Create(context.Background(), &User{
		Email: "A@x.com", DisplayName: "alice", PasswordHash: "hash",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	mock.ExpectExec("insert into users").
		WithArgs(sqlmock.AnyArg(), "b@x.com", "alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "users_display_name_norm_key"})

	err = store.Users(context.Background()).Create(context.Background(), &User{
		Email: "b@x.com", DisplayName: "alice", PasswordHash: "hash",
	})
	if !errors.Is(err, ErrDuplicateDisplayName) {
		t.Fatalf("expected ErrDuplicateDisplayName, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGFindByIdentifier(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("select .* from users where email=\\$1 or lower\\(display_name\\)=\\$2").
		WithArgs("alice", "alice").
		WillReturnRows(userRows().AddRow(
			"u1", "a@x.com", "alice", "hash", nil, nil, false, false, now, now,
		))

	user, err := store.Users(context.Background()).FindByIdentifier(context.Background(), "Alice ")
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if user.ID != "u1" || user.OAuthID != "" || user.TOTPSecret != "" {
		t.Fatalf("unexpected user: %+v", user)
	}

	mock.ExpectQuery("select .* from users").
		WithArgs("nobody@x.com", "nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Users(context.Background()).FindByIdentifier(context.Background(), "nobody@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGSetOnlineUnknownUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update users set is_online").
		WithArgs("missing", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Users(context.Background()).SetOnline(context.Background(), "missing", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGRefreshTokenLifecycle(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	expires := now.Add(14 * 24 * time.Hour)

	mock.ExpectExec("insert into refresh_tokens").
		WithArgs(sqlmock.AnyArg(), "u1", "digest", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))

	tokens := store.RefreshTokens(context.Background())
	rec := &RefreshToken{UserID: "u1", TokenHash: "digest", ExpiresAt: expires}
	if err := tokens.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Create should assign an id")
	}

	mock.ExpectQuery("select id, user_id, token_hash, expires_at, created_at, revoked from refresh_tokens").
		WithArgs("digest").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked"}).
			AddRow(rec.ID, "u1", "digest", expires, now, false))

	found, err := tokens.FindByHash(context.Background(), "digest")
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if found.UserID != "u1" || found.Revoked {
		t.Fatalf("unexpected record: %+v", found)
	}

	mock.ExpectExec("update refresh_tokens set revoked=true where id").
		WithArgs(rec.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := tokens.MarkRevoked(context.Background(), rec.ID); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}

	mock.ExpectQuery("select id, user_id, token_hash").
		WithArgs("unknown").
		WillReturnError(sql.ErrNoRows)
	if _, err := tokens.FindByHash(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("select count\\(\\*\\) from refresh_tokens").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	count, err := tokens.CountActiveByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CountActiveByUser: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
