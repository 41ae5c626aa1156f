package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/middleware"
	"github.com/hitoshi/srikandi/internal/model"
)

// AuthAPIHandler はCLIクライアント向けの認証JSON APIハンドラー。
// トークンはレスポンスボディで返し、Cookieは使用しない。
type AuthAPIHandler struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
}

// NewAuthAPIHandler はAuthAPIHandlerを生成する。
func NewAuthAPIHandler(service AuthServiceInterface, collector metrics.MetricsCollector) *AuthAPIHandler {
	return &AuthAPIHandler{service: service, metrics: collector}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// userResponse はユーザー情報のレスポンス。
type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// sessionResponse はセッション発行時のレスポンス。
type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

// signUpResponse は登録時のレスポンス。確認メール送信時はSessionがnull。
type signUpResponse struct {
	User    userResponse     `json:"user"`
	Session *sessionResponse `json:"session"`
}

// Token はアクセストークンを発行する。
// POST /auth/v1/token?grant_type=password
// POST /auth/v1/token?grant_type=refresh_token
func (h *AuthAPIHandler) Token(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		h.passwordGrant(w, r)
	case "refresh_token":
		h.refreshGrant(w, r)
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("grant_type"))
	}
}

func (h *AuthAPIHandler) passwordGrant(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("body"))
		return
	}

	session, err := h.service.SignInWithPassword(r.Context(), req.Email, req.Password)
	h.metrics.RecordSignIn(signInOutcome(err))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *AuthAPIHandler) refreshGrant(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("body"))
		return
	}

	session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// SignUp は新規ユーザーを登録する。
// POST /auth/v1/signup
func (h *AuthAPIHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("body"))
		return
	}

	result, err := h.service.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.metrics.RecordSignUp()

	resp := signUpResponse{User: toUserResponse(&result.User)}
	if result.Session != nil {
		s := toSessionResponse(result.Session)
		resp.Session = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout はリフレッシュトークンを失効させる。失効に失敗しても204を返す。
// POST /auth/v1/logout
func (h *AuthAPIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("body"))
		return
	}

	if err := h.service.SignOut(r.Context(), req.RefreshToken); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
	}
	h.metrics.RecordSignOut()

	w.WriteHeader(http.StatusNoContent)
}

// User は認証済みユーザーの情報を返す。
// GET /auth/v1/user
func (h *AuthAPIHandler) User(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		slog.Error("failed to get user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthAPIHandler) writeAuthError(w http.ResponseWriter, err error) {
	apiErr := authError(err)
	if apiErr == nil {
		slog.Error("auth request failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:               user.ID,
		Email:            user.Email,
		EmailConfirmedAt: user.EmailConfirmedAt,
		CreatedAt:        user.CreatedAt,
	}
}

func toSessionResponse(session *model.Session) sessionResponse {
	expiresIn := int64(time.Until(session.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return sessionResponse{
		AccessToken:  session.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		ExpiresAt:    session.ExpiresAt.Unix(),
		RefreshToken: session.RefreshToken,
		User:         toUserResponse(&session.User),
	}
}
