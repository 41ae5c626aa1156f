package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
	"github.com/lib/pq"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var confirmedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, email_confirmed_at, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &confirmedAt, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	user.EmailConfirmedAt = nullTimePtr(confirmedAt)
	return user, nil
}

// FindCredentialByEmail はメールアドレスで認証情報を取得する。
// メールアドレスは大文字小文字を区別しない。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	cred := &model.Credential{}
	var confirmedAt sql.NullTime
	var token sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, email_confirmed_at, created_at, password_hash, confirmation_token
		 FROM users WHERE email = $1`,
		normalizeEmail(email),
	).Scan(&cred.User.ID, &cred.User.Email, &confirmedAt, &cred.User.CreatedAt, &cred.PasswordHash, &token)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential by email: %w", err)
	}

	cred.User.EmailConfirmedAt = nullTimePtr(confirmedAt)
	cred.ConfirmationToken = token.String
	return cred, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, cred *model.Credential) error {
	var token sql.NullString
	if cred.ConfirmationToken != "" {
		token = sql.NullString{String: cred.ConfirmationToken, Valid: true}
	}
	var confirmedAt sql.NullTime
	if cred.User.EmailConfirmedAt != nil {
		confirmedAt = sql.NullTime{Time: *cred.User.EmailConfirmedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, email_confirmed_at, confirmation_token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		cred.User.ID, normalizeEmail(cred.User.Email), cred.PasswordHash, confirmedAt, token, cred.User.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation && pqErr.Constraint == "users_email_key" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// ConfirmByToken は確認トークンに一致するユーザーのメール確認を完了する。
// トークンは一度きりで、確認後はNULLに戻す。
func (r *PostgresUserRepo) ConfirmByToken(ctx context.Context, token string, confirmedAt time.Time) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	user := &model.User{}
	var ts sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET email_confirmed_at = $2, confirmation_token = NULL, updated_at = $2
		 WHERE confirmation_token = $1
		 RETURNING id, email, email_confirmed_at, created_at`,
		token, confirmedAt,
	).Scan(&user.ID, &user.Email, &ts, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm user: %w", err)
	}

	user.EmailConfirmedAt = nullTimePtr(ts)
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
