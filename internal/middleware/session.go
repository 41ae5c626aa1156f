// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// AccessTokenVerifier はアクセストークンのローカル検証に必要なインターフェース。
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*model.User, time.Time, error)
}

// NewSessionMiddleware はJSON API向けの認証ミドルウェアを返す。
// Authorization: Bearerヘッダーを優先し、無い場合はセッションCookieから復元する。
// 認証済みセッションをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(verifier AccessTokenVerifier, resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Bearerトークン
			if token, ok := bearerToken(r); ok {
				user, expiresAt, err := verifier.VerifyAccessToken(token)
				if err != nil {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				session := &model.Session{AccessToken: token, ExpiresAt: expiresAt, User: *user}
				next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
				return
			}

			// 2. Cookie
			session, cookies, err := resolver.ResolveSession(r.Context(), r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
			}
			for _, c := range cookies {
				http.SetCookie(w, c)
			}
			if session == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 3. 認証済みセッションをコンテキストに注入
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアまたはルートガードを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.User.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.User.ID, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// ロギングミドルウェアの内側ではアクセスログにもユーザーIDが記録される。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	if session != nil {
		recordUserID(ctx, session.User.ID)
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// ContextWithUserID はユーザーIDのみを持つセッションをコンテキストに注入する。
// テストで使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, &model.Session{User: model.User{ID: userID}})
}
