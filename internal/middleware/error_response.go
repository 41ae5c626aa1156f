package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/srikandi/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// internalError は原因を利用者に見せない内部エラー。
var internalError = model.APIError{
	Code:     "INTERNAL_ERROR",
	Message:  "Terjadi kesalahan internal.",
	Category: "system",
	Action:   "Silakan coba lagi beberapa saat lagi.",
}

// statusByCode はカテゴリより優先するエラーコード別のステータス。
var statusByCode = map[string]int{
	model.ErrCodeUnauthorized: http.StatusUnauthorized,
	model.ErrCodeFileTooLarge: http.StatusRequestEntityTooLarge,
	model.ErrCodeUploadFailed: http.StatusBadGateway,
}

// statusByCategory はエラーカテゴリ別のステータス。
var statusByCategory = map[string]int{
	"validation": http.StatusBadRequest,
	"auth":       http.StatusBadRequest,
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// apiErrがnilの場合は内部エラーとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if apiErr == nil {
		apiErr = &internalError
		statusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Warn("failed to write error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、利用者には一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &internalError)
}

// StatusForError はAPIErrorのコードとカテゴリからHTTPステータスコードを決める。
// どちらにも該当しない場合（storeなど）は500。
func StatusForError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	if status, ok := statusByCategory[apiErr.Category]; ok {
		return status
	}
	return http.StatusInternalServerError
}
