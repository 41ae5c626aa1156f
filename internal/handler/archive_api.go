package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/model"
)

// ArchiveAPIHandler は文書のJSON APIハンドラー。
type ArchiveAPIHandler struct {
	service       ArchiveServiceInterface
	maxUploadSize int64
}

// NewArchiveAPIHandler はArchiveAPIHandlerを生成する。
func NewArchiveAPIHandler(service ArchiveServiceInterface, maxUploadSize int64) *ArchiveAPIHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = archive.DefaultMaxUploadSize
	}
	return &ArchiveAPIHandler{service: service, maxUploadSize: maxUploadSize}
}

// archiveResponse は文書1件のレスポンス。
type archiveResponse struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LetterNumber string    `json:"letter_number"`
	Title        string    `json:"title"`
	Category     string    `json:"category"`
	LetterDate   string    `json:"letter_date"`
	Sender       string    `json:"sender"`
	FileURL      *string   `json:"file_url"`
	Status       string    `json:"status"`
}

type archiveListResponse struct {
	Archives  []archiveResponse `json:"archives"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
	PageCount int               `json:"page_count"`
}

type summaryResponse struct {
	Incoming  int `json:"incoming"`
	Outgoing  int `json:"outgoing"`
	ThisMonth int `json:"this_month"`
	Month     int `json:"month"`
}

// List は文書一覧を返す。
// GET /api/archives?search=&sort=&order=asc|desc&page=
func (h *ArchiveAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	result, err := h.service.List(r.Context(), archive.ListParams{
		Search:   q.Get("search"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("order") == "desc",
		Page:     page,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := archiveListResponse{
		Archives:  make([]archiveResponse, len(result.Archives)),
		Total:     result.Total,
		Page:      result.Page,
		PageSize:  result.PageSize,
		PageCount: result.PageCount(),
	}
	for i, a := range result.Archives {
		resp.Archives[i] = toArchiveResponse(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はmultipartフォームから文書を登録する。
// POST /api/archives
func (h *ArchiveAPIHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, upload, err := readArchiveForm(w, r, h.maxUploadSize)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), input, upload)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toArchiveResponse(created))
}

// Summary はダッシュボードの集計値を返す。
// GET /api/archives/summary
func (h *ArchiveAPIHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Incoming:  summary.Incoming,
		Outgoing:  summary.Outgoing,
		ThisMonth: summary.ThisMonth,
		Month:     int(summary.Month),
	})
}

func toArchiveResponse(a *model.Archive) archiveResponse {
	return archiveResponse{
		ID:           a.ID,
		CreatedAt:    a.CreatedAt,
		LetterNumber: a.LetterNumber,
		Title:        a.Title,
		Category:     string(a.Category),
		LetterDate:   a.LetterDate.Format("2006-01-02"),
		Sender:       a.Sender,
		FileURL:      a.FileURL,
		Status:       a.Status,
	}
}
