package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	bytes      int
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerが元のResponseWriterに到達できるようにする。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// requestInfo は内側のミドルウェアがログ用に書き戻す値を保持する。
type requestInfo struct {
	userID string
}

var requestInfoKey = contextKey("request_info")

// recordUserID はログ出力用に認証済みユーザーIDを記録する。
// ロギングミドルウェアの外側では何もしない。
func recordUserID(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestInfoKey).(*requestInfo); ok {
		info.userID = userID
	}
}

// LoggingOption はロギングミドルウェアのオプション。
type LoggingOption func(*loggingOptions)

type loggingOptions struct {
	observeStatus func(code int)
	quietPaths    []string
}

// WithQuietPaths は指定したパスへの成功レスポンスをDebugレベルで記録する。
// ヘルスチェックやメトリクス収集のように定期的に呼ばれるパスに使う。
func WithQuietPaths(paths ...string) LoggingOption {
	return func(o *loggingOptions) {
		o.quietPaths = append(o.quietPaths, paths...)
	}
}

func (o *loggingOptions) quiet(path string) bool {
	return slices.Contains(o.quietPaths, path)
}

// WithStatusObserver はレスポンスのステータスコードを受け取る関数を登録する。メトリクス記録に使う。
func WithStatusObserver(fn func(code int)) LoggingOption {
	return func(o *loggingOptions) {
		o.observeStatus = fn
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、bytes、duration_msを含み、
// request_id（chiのRequestIDの内側の場合）とuser_id（認証済みの場合）は値がある場合のみ含む。
func NewLoggingMiddleware(logger *slog.Logger, opts ...LoggingOption) func(next http.Handler) http.Handler {
	var o loggingOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			info := &requestInfo{}
			ctx := context.WithValue(r.Context(), requestInfoKey, info)

			next.ServeHTTP(rec, r.WithContext(ctx))

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if info.userID != "" {
				args = append(args, slog.String("user_id", info.userID))
			}

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			case o.quiet(r.URL.Path):
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "http_request", args...)

			if o.observeStatus != nil {
				o.observeStatus(rec.statusCode)
			}
		})
	}
}
