package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/hitoshi/srikandi/internal/model"
)

// RouteDecision はルートガードの判定結果。
type RouteDecision int

const (
	// Allow はリクエストをそのまま通す。
	Allow RouteDecision = iota
	// RedirectToLogin はログイン画面へリダイレクトする。
	RedirectToLogin
	// RedirectToRoot はトップページへリダイレクトする。
	RedirectToRoot
)

// String はログ出力用の表現を返す。
func (d RouteDecision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToRoot:
		return "redirect_to_root"
	default:
		return "unknown"
	}
}

// Decide はパスの種別とセッションの有無だけから判定する。
//
//	ログイン画面  セッション  判定
//	no            no          RedirectToLogin
//	no            yes         Allow
//	yes           no          Allow
//	yes           yes         RedirectToRoot
func Decide(isLoginSurface, hasSession bool) RouteDecision {
	switch {
	case !isLoginSurface && !hasSession:
		return RedirectToLogin
	case isLoginSurface && hasSession:
		return RedirectToRoot
	default:
		return Allow
	}
}

// SessionResolver はリクエストのCookieからセッションを復元する。
// セッションが無い場合はnilを返す。返されたCookieは判定結果にかかわらずレスポンスに書き込む。
type SessionResolver interface {
	ResolveSession(ctx context.Context, r *http.Request) (*model.Session, []*http.Cookie, error)
}

// RouteGuardConfig はルートガードの設定。
type RouteGuardConfig struct {
	LoginPath          string
	RootPath           string
	ExcludedPrefixes   []string // 判定対象外のパス。"/"で終わるものは接頭辞、それ以外はパスとその配下に一致する
	ExcludedExtensions []string // 判定対象外の拡張子（静的ファイル）
	OnRedirect         func(target string)
}

// DefaultRouteGuardConfig はデフォルトのルートガード設定を返す。
func DefaultRouteGuardConfig() RouteGuardConfig {
	return RouteGuardConfig{
		LoginPath: "/login",
		RootPath:  "/",
		ExcludedPrefixes: []string{
			"/static/",
			"/health",
			"/metrics",
			"/api/",
			"/auth/v1/",
			"/auth/confirm",
			"/favicon.ico",
		},
		ExcludedExtensions: []string{".svg", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".css", ".js"},
	}
}

// Excluded はパスが判定対象外かどうかを返す。
func (c RouteGuardConfig) Excluded(p string) bool {
	for _, prefix := range c.ExcludedPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(p, prefix) {
				return true
			}
			continue
		}
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range c.ExcludedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// IsLoginSurface はパスがログイン画面かどうかを返す。
func (c RouteGuardConfig) IsLoginSurface(p string) bool {
	return p == c.LoginPath || strings.HasPrefix(p, c.LoginPath+"/")
}

// NewRouteGuardMiddleware はページ描画前にセッションの有無で遷移を制御するミドルウェアを返す。
// セッションはCookieのみから復元し、復元できたセッションはコンテキストに注入する。
// 復元に失敗した場合はセッション無しとして扱う。
func NewRouteGuardMiddleware(resolver SessionResolver, cfg RouteGuardConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Excluded(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			session, cookies, err := resolver.ResolveSession(r.Context(), r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				session = nil
			}
			for _, c := range cookies {
				http.SetCookie(w, c)
			}

			switch Decide(cfg.IsLoginSurface(r.URL.Path), session != nil) {
			case RedirectToLogin:
				redirect(w, r, cfg, cfg.LoginPath)
				return
			case RedirectToRoot:
				redirect(w, r, cfg, cfg.RootPath)
				return
			}

			ctx := r.Context()
			if session != nil {
				ctx = ContextWithSession(ctx, session)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func redirect(w http.ResponseWriter, r *http.Request, cfg RouteGuardConfig, target string) {
	if cfg.OnRedirect != nil {
		cfg.OnRedirect(target)
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}
