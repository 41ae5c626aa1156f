// Package cleanup は認証データの定期削除ジョブを提供する。
// 期限切れ・失効済みのリフレッシュトークンと、保持期間（デフォルト7日）を
// 過ぎても確認されなかったユーザーを日次バッチで削除する。
// 未確認ユーザーのリフレッシュトークンはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteTokensQuery = `DELETE FROM refresh_tokens
WHERE expires_at < now() OR (revoked_at IS NOT NULL AND revoked_at < now() - $1::interval)`

	deleteUnconfirmedQuery = `DELETE FROM users
WHERE email_confirmed_at IS NULL AND created_at < now() - $1::interval`
)

// CleanupJob は不要になった認証データの削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db                Executor
	logger            *slog.Logger
	RetentionDays     int           // 未確認ユーザーの保持日数（デフォルト: 7）
	RevokedTokenGrace time.Duration // 失効済みトークンを残す期間（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                db,
		logger:            logger,
		RetentionDays:     7,
		RevokedTokenGrace: 24 * time.Hour,
	}
}

// Run はリフレッシュトークン、未確認ユーザーの順に削除する。
// トークンの削除に失敗した場合はユーザーの削除を行わない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	grace := fmt.Sprintf("%d seconds", int64(j.RevokedTokenGrace.Seconds()))
	tokens, err := j.exec(ctx, deleteTokensQuery, grace)
	if err != nil {
		j.logger.Error("リフレッシュトークンの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("リフレッシュトークンの削除に失敗: %w", err)
	}

	retention := fmt.Sprintf("%d days", j.RetentionDays)
	users, err := j.exec(ctx, deleteUnconfirmedQuery, retention)
	if err != nil {
		j.logger.Error("未確認ユーザーの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("未確認ユーザーの削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_tokens", tokens),
		slog.Int64("deleted_users", users),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, query, interval string) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// Schedule は起動直後に1回実行し、以降はintervalごとに実行する。
// ctxがキャンセルされるまでブロックする。失敗はログに記録して次回に持ち越す。
func (j *CleanupJob) Schedule(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
