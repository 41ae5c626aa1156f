package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Create はリフレッシュトークンを保存する。
func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID, token.UserID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// FindByHash はトークンハッシュで検索する。見つからない場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	token := &model.RefreshToken{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked_at, rotated, created_at
		 FROM refresh_tokens WHERE token_hash = $1`,
		tokenHash,
	).Scan(&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &revokedAt, &token.Rotated, &token.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	token.RevokedAt = nullTimePtr(revokedAt)
	return token, nil
}

// Revoke はトークンを失効させる。
func (r *PostgresRefreshTokenRepo) Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error) {
	return r.markRevoked(ctx, id, revokedAt, false)
}

// Rotate はローテーションのためにトークンを失効させる。
func (r *PostgresRefreshTokenRepo) Rotate(ctx context.Context, id string, rotatedAt time.Time) (bool, error) {
	return r.markRevoked(ctx, id, rotatedAt, true)
}

// markRevoked はrevoked_at IS NULLを条件にすることで、同時ローテーションのうち1つだけを成功させる。
func (r *PostgresRefreshTokenRepo) markRevoked(ctx context.Context, id string, at time.Time, rotated bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, rotated = $3 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, rotated,
	)
	if err != nil {
		return false, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
