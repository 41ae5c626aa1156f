package auth

import (
	"context"
	"log/slog"
)

// LogMailer は確認リンクを構造化ログに出力するMailer。
// SMTPを持たない環境で、管理者がログから確認リンクを取り出す運用を想定する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendConfirmation は確認リンクをログに記録する。
func (m *LogMailer) SendConfirmation(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "確認メールを送信しました",
		slog.String("email", email),
		slog.String("confirm_link", link),
	)
	return nil
}

var _ Mailer = (*LogMailer)(nil)
