// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/auth"
	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/middleware"
	"github.com/hitoshi/srikandi/internal/model"
)

// AuthServiceInterface はハンドラーが必要とする認証サービスのインターフェース。
type AuthServiceInterface interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*auth.SignUpResult, error)
	ConfirmEmail(ctx context.Context, token string) (*model.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

// SessionCookieWriter はセッションCookieの発行と削除を行う。
type SessionCookieWriter interface {
	SessionCookies(session *model.Session) []*http.Cookie
	ClearCookies() []*http.Cookie
}

// ArchiveServiceInterface はハンドラーが必要とする文書サービスのインターフェース。
type ArchiveServiceInterface interface {
	List(ctx context.Context, params archive.ListParams) (*model.ArchivePage, error)
	Create(ctx context.Context, input archive.CreateInput, upload *model.Upload) (*model.Archive, error)
	Summary(ctx context.Context) (*model.ArchiveSummary, error)
}

var (
	_ AuthServiceInterface    = (*auth.Service)(nil)
	_ SessionCookieWriter     = (*auth.CookieSessionResolver)(nil)
	_ ArchiveServiceInterface = (*archive.Service)(nil)
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを統一フォーマットのレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// authError は認証サービスのエラーを利用者向けのAPIErrorに変換する。
// ストア障害など利用者に原因の無いエラーはnilを返す（呼び出し側で内部エラーとして扱う）。
func authError(err error) *model.APIError {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if !auth.IsClientError(err) {
		return nil
	}
	return model.NewAuthError(err)
}

// signInOutcome はサインイン結果をメトリクスのラベルに変換する。
func signInOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.SignInSuccess
	case errors.Is(err, auth.ErrInvalidCredentials):
		return metrics.SignInInvalid
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		return metrics.SignInNotConfirmed
	default:
		return metrics.SignInError
	}
}

func setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}
