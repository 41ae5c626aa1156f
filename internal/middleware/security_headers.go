package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// contentSecurityPolicy はサーバー描画ページ用のCSP。
// 外部スクリプトは読み込まず、添付PDFは別オリジンのストレージへリンクする。
const contentSecurityPolicy = "default-src 'self'; img-src 'self' data:; style-src 'self'; script-src 'self'; frame-ancestors 'none'; form-action 'self'"

// SecurityHeadersOption はNewSecurityHeadersMiddlewareの設定を変更する。
type SecurityHeadersOption func(*securityHeaders)

type securityHeaders struct {
	hstsMaxAge time.Duration
}

// WithHSTS はStrict-Transport-Securityヘッダーを付与する。
// HTTPSで配信する場合のみ指定する。
func WithHSTS(maxAge time.Duration) SecurityHeadersOption {
	return func(h *securityHeaders) {
		h.hstsMaxAge = maxAge
	}
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// 認証情報を含む画面・APIのレスポンスはキャッシュさせない。
func NewSecurityHeadersMiddleware(opts ...SecurityHeadersOption) func(next http.Handler) http.Handler {
	var cfg securityHeaders
	for _, opt := range opts {
		opt(&cfg)
	}
	hsts := ""
	if cfg.hstsMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", int(cfg.hstsMaxAge.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "same-origin")
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			if hsts != "" {
				h.Set("Strict-Transport-Security", hsts)
			}
			if !strings.HasPrefix(r.URL.Path, "/static/") && h.Get("Cache-Control") == "" {
				h.Set("Cache-Control", "no-store")
			}
			next.ServeHTTP(w, r)
		})
	}
}

