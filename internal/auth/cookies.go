package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// セッションCookie名。
const (
	AccessTokenCookie  = "srikandi-access-token"
	RefreshTokenCookie = "srikandi-refresh-token"
)

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Secure     bool
	Domain     string
	RefreshTTL time.Duration
}

// SessionRefresher はCookieからセッションを復元するために必要な操作。
type SessionRefresher interface {
	VerifyAccessToken(token string) (*model.User, time.Time, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
}

// CookieSessionResolver はリクエストのCookieからセッションを復元する。
// アクセストークンが有効であればストアへ問い合わせない。
type CookieSessionResolver struct {
	sessions SessionRefresher
	cookies  CookieConfig
	now      func() time.Time
}

// NewCookieSessionResolver はCookieSessionResolverを生成する。
func NewCookieSessionResolver(sessions SessionRefresher, cookies CookieConfig) *CookieSessionResolver {
	return &CookieSessionResolver{
		sessions: sessions,
		cookies:  cookies,
		now:      time.Now,
	}
}

// ResolveSession はCookieからセッションを復元する。
//
// アクセストークンが期限切れ（または欠落）でリフレッシュトークンがある場合はローテーションし、
// 新しいCookieを返す。呼び出し側は返されたCookieをすべてレスポンスに書き込むこと。
// セッションが無い場合はnilを返し、不正なCookieが残っていれば削除用のCookieを返す。
func (c *CookieSessionResolver) ResolveSession(ctx context.Context, r *http.Request) (*model.Session, []*http.Cookie, error) {
	access := cookieValue(r, AccessTokenCookie)
	refresh := cookieValue(r, RefreshTokenCookie)

	if access == "" && refresh == "" {
		return nil, nil, nil
	}

	if access != "" {
		user, expiresAt, err := c.sessions.VerifyAccessToken(access)
		if err == nil {
			return &model.Session{
				AccessToken:  access,
				RefreshToken: refresh,
				ExpiresAt:    expiresAt,
				User:         *user,
			}, nil, nil
		}
		if !errors.Is(err, ErrTokenExpired) && refresh == "" {
			return nil, c.ClearCookies(), nil
		}
	}

	if refresh == "" {
		return nil, c.ClearCookies(), nil
	}

	session, err := c.sessions.Refresh(ctx, refresh)
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			return nil, c.ClearCookies(), nil
		}
		return nil, nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	slog.Debug("session refreshed from cookie", slog.String("user_id", session.User.ID))
	return session, c.SessionCookies(session), nil
}

// SessionCookies はセッションを保持するCookieを生成する。
func (c *CookieSessionResolver) SessionCookies(session *model.Session) []*http.Cookie {
	accessMaxAge := int(session.ExpiresAt.Sub(c.now()).Seconds())
	if accessMaxAge < 1 {
		accessMaxAge = 1
	}

	return []*http.Cookie{
		c.newCookie(AccessTokenCookie, session.AccessToken, accessMaxAge),
		c.newCookie(RefreshTokenCookie, session.RefreshToken, int(c.cookies.RefreshTTL.Seconds())),
	}
}

// ClearCookies はセッションCookieを削除するCookieを生成する。
func (c *CookieSessionResolver) ClearCookies() []*http.Cookie {
	return []*http.Cookie{
		c.newCookie(AccessTokenCookie, "", -1),
		c.newCookie(RefreshTokenCookie, "", -1),
	}
}

func (c *CookieSessionResolver) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

var _ SessionRefresher = (*Service)(nil)
