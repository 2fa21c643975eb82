package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"pongarena.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore                 { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore { return &tokenStore{db: s.db} }

const pgUniqueViolation = "23505"

// mapUniqueViolation translates constraint collisions into the registration
// error taxonomy.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return ErrDuplicateEmail
	case strings.Contains(pgErr.ConstraintName, "display_name"):
		return ErrDuplicateDisplayName
	default:
		return err
	}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, email, display_name, password_hash, oauth_id, totp_secret, two_factor_enabled, is_online, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var (
		u          User
		oauthID    sql.NullString
		totpSecret sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &oauthID, &totpSecret,
		&u.TwoFactorEnabled, &u.IsOnline, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.OAuthID = oauthID.String
	u.TOTPSecret = totpSecret.String
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, display_name, password_hash, oauth_id)
		 values($1,$2,$3,$4, nullif($5,''))`,
		u.ID, NormalizeEmail(u.Email), u.DisplayName, u.PasswordHash, u.OAuthID,
	)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id))
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, NormalizeEmail(email)))
}

func (s *userStore) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	// One lookup for both entry identifiers; emails are stored normalized,
	// display names match case-insensitively.
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1 or lower(display_name)=$2`,
		NormalizeEmail(identifier), NormalizeDisplayName(identifier)))
}

func (s *userStore) FindByOAuthID(ctx context.Context, oauthID string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where oauth_id=$1`, oauthID))
}

func (s *userStore) SetTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set totp_secret=nullif($2,''), two_factor_enabled=$3, updated_at=now() where id=$1`,
		userID, secret, enabled)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) SetOnline(ctx context.Context, userID string, online bool) error {
	res, err := s.db.ExecContext(ctx,
		`update users set is_online=$2, updated_at=now() where id=$1`, userID, online)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token store ------------------------------------------------------
type tokenStore struct{ db *sql.DB }

func (s *tokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(id, user_id, token_hash, expires_at) values($1,$2,$3,$4)`,
		tok.ID, tok.UserID, tok.TokenHash, tok.ExpiresAt,
	)
	return err
}

func (s *tokenStore) FindByHash(ctx context.Context, hash string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, user_id, token_hash, expires_at, created_at, revoked from refresh_tokens where token_hash=$1`,
		hash)
	var tok RefreshToken
	if err := row.Scan(&tok.ID, &tok.UserID, &tok.TokenHash, &tok.ExpiresAt, &tok.CreatedAt, &tok.Revoked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *tokenStore) MarkRevoked(ctx context.Context, id string) error {
	// Revocation is append-only: a record is never un-revoked, so repeating
	// the update is harmless.
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where id=$1`, id)
	return err
}

func (s *tokenStore) MarkRevokedByUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where user_id=$1`, userID)
	return err
}

func (s *tokenStore) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from refresh_tokens where user_id=$1 and not revoked and expires_at > now()`,
		userID).Scan(&count)
	return count, err
}
