// Package auth はメール・パスワード認証とセッション（アクセストークン・リフレッシュトークン）管理を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/srikandi/internal/model"
	"github.com/hitoshi/srikandi/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// 認証プロバイダーとして返すエラー。メッセージは利用者向け変換（model.NewAuthError）の入力になる。
var (
	ErrInvalidCredentials       = errors.New(model.ProviderMsgInvalidCredentials)
	ErrEmailNotConfirmed        = errors.New(model.ProviderMsgEmailNotConfirmed)
	ErrUserAlreadyRegistered    = errors.New("User already registered")
	ErrWeakPassword             = errors.New("Password should be at least 6 characters")
	ErrInvalidEmail             = errors.New("Unable to validate email address: invalid format")
	ErrInvalidRefreshToken      = errors.New("Invalid Refresh Token")
	ErrInvalidConfirmationToken = errors.New("Email link is invalid or has expired")
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// ConfirmPath はメール確認リンクのパス。
const ConfirmPath = "/auth/confirm"

// clientErrors は利用者の入力や状態に起因するエラー。利用者向けメッセージとしてそのまま返してよい。
var clientErrors = []error{
	ErrInvalidCredentials,
	ErrEmailNotConfirmed,
	ErrUserAlreadyRegistered,
	ErrWeakPassword,
	ErrInvalidEmail,
	ErrInvalidRefreshToken,
	ErrInvalidConfirmationToken,
}

// IsClientError はエラーが利用者側の原因によるものかを返す。
// falseの場合はストア障害などの内部エラーとして扱う。
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Mailer は確認メールの送信インターフェース。
type Mailer interface {
	SendConfirmation(ctx context.Context, email, link string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	RefreshTokenTTL time.Duration
	ReuseInterval   time.Duration // 0以下の場合はDefaultReuseIntervalを使用する
	AutoConfirm     bool   // trueの場合、登録直後に確認済みとしてセッションを発行する
	BaseURL         string // 確認リンクの組み立てに使用する
}

// DefaultReuseInterval はローテーション済みリフレッシュトークンを受け付ける既定の猶予。
// 同じCookieを持つ並行リクエスト（複数タブ、フォーム送信と画面遷移の競合）がサインアウトされないようにする。
const DefaultReuseInterval = 10 * time.Second

// SignUpResult はユーザー登録の結果。
// 確認メール送信が必要な場合Sessionはnilになる。
type SignUpResult struct {
	User    model.User
	Session *model.Session
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	issuer *TokenIssuer
	mailer Mailer
	config ServiceConfig
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	issuer *TokenIssuer,
	mailer Mailer,
	config ServiceConfig,
) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		issuer: issuer,
		mailer: mailer,
		config: config,
		now:    time.Now,
	}
}

// SignInWithPassword はメールアドレスとパスワードで認証し、セッションを発行する。
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	cred, err := s.users.FindCredentialByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if cred == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !cred.User.Confirmed() {
		return nil, ErrEmailNotConfirmed
	}

	session, err := s.issueSession(ctx, cred.User)
	if err != nil {
		return nil, err
	}

	slog.Info("user signed in", slog.String("user_id", cred.User.ID))
	return session, nil
}

// SignUp は未確認ユーザーを作成し、確認リンクを送信する。
// AutoConfirmが有効な場合は確認済みとして作成し、セッションを返す。
func (s *Service) SignUp(ctx context.Context, email, password string) (*SignUpResult, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	cred := &model.Credential{
		User: model.User{
			ID:        uuid.New().String(),
			Email:     strings.ToLower(addr.Address),
			CreatedAt: now,
		},
		PasswordHash: string(hash),
	}
	if s.config.AutoConfirm {
		cred.User.EmailConfirmedAt = &now
	} else {
		token, err := generateOpaqueToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate confirmation token: %w", err)
		}
		cred.ConfirmationToken = token
	}

	if err := s.users.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", cred.User.ID),
		slog.Bool("auto_confirm", s.config.AutoConfirm),
	)

	result := &SignUpResult{User: cred.User}
	if s.config.AutoConfirm {
		session, err := s.issueSession(ctx, cred.User)
		if err != nil {
			return nil, err
		}
		result.Session = session
		return result, nil
	}

	if err := s.mailer.SendConfirmation(ctx, cred.User.Email, s.confirmationLink(cred.ConfirmationToken)); err != nil {
		return nil, fmt.Errorf("failed to send confirmation: %w", err)
	}
	return result, nil
}

// ConfirmEmail は確認トークンでメールアドレスを確認済みにし、セッションを発行する。
func (s *Service) ConfirmEmail(ctx context.Context, token string) (*model.Session, error) {
	user, err := s.users.ConfirmByToken(ctx, token, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to confirm email: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidConfirmationToken
	}

	slog.Info("email confirmed", slog.String("user_id", user.ID))
	return s.issueSession(ctx, *user)
}

// Refresh はリフレッシュトークンをローテーションし、新しいセッションを発行する。
// 使用済みのトークンは失効させる。ローテーションで失効したトークンは猶予期間内に限り
// 再利用を受け付け、それ以外の再利用にはErrInvalidRefreshTokenを返す。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	stored, err := s.tokens.FindByHash(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}
	now := s.now()
	if stored == nil || !now.Before(stored.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}
	if stored.RevokedAt != nil {
		if !s.reusable(stored, now) {
			return nil, ErrInvalidRefreshToken
		}
		return s.sessionFor(ctx, stored.UserID)
	}

	rotated, err := s.tokens.Rotate(ctx, stored.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	if !rotated {
		// 同じトークンによる並行ローテーションで先を越された
		stored, err = s.tokens.FindByHash(ctx, stored.TokenHash)
		if err != nil {
			return nil, fmt.Errorf("failed to find refresh token: %w", err)
		}
		if stored == nil || !s.reusable(stored, now) {
			return nil, ErrInvalidRefreshToken
		}
	}

	return s.sessionFor(ctx, stored.UserID)
}

// reusable はローテーション直後で猶予期間内のトークンかどうかを返す。
// サインアウトで失効したトークンは対象外。
func (s *Service) reusable(t *model.RefreshToken, now time.Time) bool {
	if t.RevokedAt == nil || !t.Rotated {
		return false
	}
	interval := s.config.ReuseInterval
	if interval <= 0 {
		interval = DefaultReuseInterval
	}
	return now.Sub(*t.RevokedAt) < interval
}

func (s *Service) sessionFor(ctx context.Context, userID string) (*model.Session, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidRefreshToken
	}
	return s.issueSession(ctx, *user)
}

// SignOut はリフレッシュトークンを失効させる。
// 未知・失効済みのトークンでもエラーにしない。
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	stored, err := s.tokens.FindByHash(ctx, hashToken(refreshToken))
	if err != nil {
		return fmt.Errorf("failed to find refresh token: %w", err)
	}
	if stored == nil || stored.RevokedAt != nil {
		return nil
	}

	if _, err := s.tokens.Revoke(ctx, stored.ID, s.now()); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	slog.Info("user signed out", slog.String("user_id", stored.UserID))
	return nil
}

// VerifyAccessToken はアクセストークンをローカルで検証する。ストアへの問い合わせは行わない。
func (s *Service) VerifyAccessToken(token string) (*model.User, time.Time, error) {
	return s.issuer.Parse(token)
}

// GetUser はユーザー情報をストアから取得する。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}
	return user, nil
}

// issueSession はアクセストークンとリフレッシュトークンを発行する。
func (s *Service) issueSession(ctx context.Context, user model.User) (*model.Session, error) {
	accessToken, expiresAt, err := s.issuer.Issue(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := generateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := s.now()
	if err := s.tokens.Create(ctx, &model.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hashToken(refreshToken),
		ExpiresAt: now.Add(s.config.RefreshTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return &model.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

func (s *Service) confirmationLink(token string) string {
	return strings.TrimRight(s.config.BaseURL, "/") + ConfirmPath + "?token=" + url.QueryEscape(token)
}
