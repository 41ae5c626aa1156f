// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailNotConfirmed  = "EMAIL_NOT_CONFIRMED"
	ErrCodeAuthFailed         = "AUTH_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeStoreFailed        = "STORE_FAILED"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeInvalidCategory    = "INVALID_CATEGORY"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeInvalidFileType    = "INVALID_FILE_TYPE"
	ErrCodeFileTooLarge       = "FILE_TOO_LARGE"
	ErrCodeInvalidDate        = "INVALID_DATE"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
)

// 認証プロバイダーが返す代表的なメッセージ。
// 利用者向けメッセージへの変換はこの文字列の部分一致で行う。
const (
	ProviderMsgInvalidCredentials = "Invalid login credentials"
	ProviderMsgEmailNotConfirmed  = "Email not confirmed"
)

// StoreOp はArchive Storeに対する操作の種類。
type StoreOp string

const (
	StoreOpQuery  StoreOp = "query"
	StoreOpInsert StoreOp = "insert"
	StoreOpCount  StoreOp = "count"
	StoreOpUpload StoreOp = "upload"
)

// NewAuthError は認証プロバイダーのエラーを利用者向けのAuthErrorに変換する。
// 既にAPIErrorの場合はそのまま返す。
func NewAuthError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	switch {
	case strings.Contains(msg, ProviderMsgInvalidCredentials):
		return &APIError{
			Code:     ErrCodeInvalidCredentials,
			Message:  "Email atau password salah. Silakan coba lagi.",
			Category: "auth",
			Action:   "Periksa kembali email dan password Anda.",
		}
	case strings.Contains(msg, ProviderMsgEmailNotConfirmed):
		return &APIError{
			Code:     ErrCodeEmailNotConfirmed,
			Message:  "Email belum diverifikasi. Silakan cek inbox email Anda.",
			Category: "auth",
			Action:   "Buka tautan verifikasi yang dikirim ke email Anda.",
		}
	case msg == "":
		return &APIError{
			Code:     ErrCodeAuthFailed,
			Message:  "Terjadi kesalahan. Silakan coba lagi.",
			Category: "auth",
			Action:   "Silakan coba lagi beberapa saat lagi.",
		}
	default:
		return &APIError{
			Code:     ErrCodeAuthFailed,
			Message:  msg,
			Category: "auth",
			Action:   "Silakan coba lagi beberapa saat lagi.",
		}
	}
}

// NewUnauthorizedError は未認証アクセスのエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Sesi tidak ditemukan atau sudah berakhir.",
		Category: "auth",
		Action:   "Silakan masuk kembali.",
	}
}

// NewStoreError はArchive Storeの操作失敗を利用者向けの汎用エラーに変換する。
// 詳細はログのみに記録し、利用者には再送信を促すメッセージを返す。
func NewStoreError(op StoreOp) *APIError {
	switch op {
	case StoreOpUpload:
		return &APIError{
			Code:     ErrCodeUploadFailed,
			Message:  "Gagal mengupload file. Silakan coba lagi.",
			Category: "store",
			Action:   "Kirim ulang formulir.",
		}
	case StoreOpInsert:
		return &APIError{
			Code:     ErrCodeStoreFailed,
			Message:  "Gagal menyimpan data arsip. Silakan coba lagi.",
			Category: "store",
			Action:   "Kirim ulang formulir.",
		}
	default:
		return &APIError{
			Code:     ErrCodeStoreFailed,
			Message:  "Gagal memuat data arsip.",
			Category: "store",
			Action:   "Muat ulang halaman.",
		}
	}
}

// NewInvalidCategoryError は区分が定義外の場合のエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("Kategori tidak valid: %s", category),
		Category: "validation",
		Action:   "Pilih Surat Masuk atau Surat Keluar.",
	}
}

// NewMissingFieldError は必須項目が未入力の場合のエラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("Kolom %s wajib diisi.", field),
		Category: "validation",
		Action:   "Lengkapi formulir lalu kirim ulang.",
	}
}

// NewInvalidDateError は日付の形式が不正な場合のエラーを生成する。
func NewInvalidDateError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("Format tanggal tidak valid: %s", value),
		Category: "validation",
		Action:   "Gunakan format YYYY-MM-DD.",
	}
}

// NewInvalidFileTypeError はPDF以外のファイルが添付された場合のエラーを生成する。
func NewInvalidFileTypeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFileType,
		Message:  "Hanya file PDF yang diperbolehkan!",
		Category: "validation",
		Action:   "Pilih file dengan format PDF.",
	}
}

// NewFileTooLargeError は添付ファイルが上限サイズを超えた場合のエラーを生成する。
func NewFileTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  "Ukuran file maksimal 10MB!",
		Category: "validation",
		Action:   "Kompres file atau pilih file lain.",
	}
}

// NewInvalidRequestError はリクエスト形式が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Permintaan tidak valid: %s", reason),
		Category: "validation",
		Action:   "Periksa kembali data yang dikirim.",
	}
}
