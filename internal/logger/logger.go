// Package logger はサーバーとCLIで共通の構造化ロガーを構成する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format はログの出力形式。
type Format string

const (
	// FormatJSON はサーバー向けの1行1JSON形式。
	FormatJSON Format = "json"
	// FormatText は端末向けのkey=value形式。
	FormatText Format = "text"
)

// Options はNewの設定。
type Options struct {
	Level   slog.Level
	Format  Format // 空の場合はFormatJSON
	Service string // 空でなければ全レコードにservice属性を付与する
}

// New はOptionsに従ってslog.Loggerを生成する。
func New(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	l := slog.New(handler)
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	return l
}

// SetupDefault はサーバー用のJSONロガーをグローバルロガーとして設定する。
// 出力レベルは環境変数LOG_LEVELで変更できる（デフォルトはinfo）。
func SetupDefault(w io.Writer) {
	slog.SetDefault(New(w, Options{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "srikandi",
	}))
}

// ParseLevel はログレベル文字列をslog.Levelに変換する。
// 不明な値の場合はInfoを返す。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
