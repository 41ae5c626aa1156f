// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// ErrDuplicateEmail は登録済みのメールアドレスでユーザーを作成しようとした場合に返る。
var ErrDuplicateEmail = errors.New("email already registered")

// ArchiveRepository は文書レコードの永続化インターフェース。
// 更新・削除の操作は提供しない。
type ArchiveRepository interface {
	// List は条件に一致する文書を返す。
	// SortByが空の場合はcreated_at降順で返す。
	List(ctx context.Context, filter model.ArchiveFilter) ([]*model.Archive, error)

	// Count は条件に一致する文書の件数を返す。Limit/Offset/SortByは無視する。
	Count(ctx context.Context, filter model.ArchiveFilter) (int, error)

	// Insert は文書を登録し、生成されたIDと登録日時を含むレコードを返す。
	// letter_numberの重複は検査しない。
	Insert(ctx context.Context, input *model.ArchiveInput) (*model.Archive, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindCredentialByEmail はメールアドレスで認証情報を取得する。見つからない場合はnilを返す。
	FindCredentialByEmail(ctx context.Context, email string) (*model.Credential, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, cred *model.Credential) error

	// ConfirmByToken は確認トークンに一致するユーザーのメール確認を完了する。
	// 一致するユーザーがいない場合はnilを返す。
	ConfirmByToken(ctx context.Context, token string, confirmedAt time.Time) (*model.User, error)
}

// RefreshTokenRepository はリフレッシュトークンの永続化インターフェース。
type RefreshTokenRepository interface {
	// Create はリフレッシュトークンを保存する。
	Create(ctx context.Context, token *model.RefreshToken) error

	// FindByHash はトークンハッシュで検索する。見つからない場合はnilを返す。
	// 失効済み・期限切れのトークンも返すため、呼び出し側で検証すること。
	FindByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)

	// Revoke はトークンを失効させる。
	// 既に失効済みの場合はfalseを返す（ローテーション時の再利用検出に使用する）。
	Revoke(ctx context.Context, id string, revokedAt time.Time) (bool, error)

	// Rotate はローテーションのためにトークンを失効させる。
	// Revokeと同じく既に失効済みの場合はfalseを返す。
	Rotate(ctx context.Context, id string, rotatedAt time.Time) (bool, error)
}
