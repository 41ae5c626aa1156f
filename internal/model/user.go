// Package model はドメインモデルを定義する。
package model

import "time"

// User は職員アカウントを表す。
type User struct {
	ID               string
	Email            string
	EmailConfirmedAt *time.Time // メール確認前はnil
	CreatedAt        time.Time
}

// Confirmed はメールアドレスの確認が済んでいるかを返す。
func (u *User) Confirmed() bool {
	return u.EmailConfirmedAt != nil
}

// Credential はパスワード照合に必要なユーザー情報を表す。
// パスワードハッシュはUserに含めず、認証処理の内部でのみ扱う。
type Credential struct {
	User              User
	PasswordHash      string
	ConfirmationToken string
}

// RefreshToken はサーバー側で保持するリフレッシュトークンを表す。
// トークン本体は保存せず、SHA-256ハッシュのみを保存する。
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	Rotated   bool // ローテーションによる失効（サインアウトによる失効はfalse）
	CreatedAt time.Time
}

// Session は認証済みセッションを表す。
// アクセストークン（署名付きJWT）とリフレッシュトークンの組で構成される。
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // アクセストークンの有効期限
	User         User
}

// Expired はアクセストークンが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthEvent はセッション変更通知の種別を表す。
type AuthEvent string

const (
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthSnapshot はプロセス内にキャッシュされた認証状態。
// IsLoadingがfalseになった後は、CurrentUserの有無で認証状態が確定する。
type AuthSnapshot struct {
	CurrentUser *User
	IsLoading   bool
}

// SignedIn はログイン済みであることが確定しているかを返す。
// 読み込み中は未ログインとも判定しない。
func (s AuthSnapshot) SignedIn() bool {
	return !s.IsLoading && s.CurrentUser != nil
}
