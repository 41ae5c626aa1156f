// Package archive は文書（アーカイブ）の一覧・登録・集計のビジネスロジックを提供する。
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"
	"unicode"

	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/model"
	"github.com/hitoshi/srikandi/internal/repository"
	"github.com/hitoshi/srikandi/internal/security"
)

// PageSize は一覧1ページあたりの件数。
const PageSize = 10

// DefaultMaxUploadSize は添付ファイルの上限サイズ（10MB）。
const DefaultMaxUploadSize int64 = 10 * 1024 * 1024

// dateLayout は文書日付の入力形式。
const dateLayout = "2006-01-02"

const pdfContentType = "application/pdf"

// FileStore は添付ファイルの保存先インターフェース。
type FileStore interface {
	// Upload はファイルを保存し、公開URLを返す。
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ListParams は一覧取得のパラメータ。
type ListParams struct {
	Search   string
	SortBy   string
	SortDesc bool
	Page     int // 1始まり。1未満は1として扱う
}

// CreateInput は登録フォームの入力値。
type CreateInput struct {
	LetterNumber string
	Title        string
	Category     string
	LetterDate   string // YYYY-MM-DD
	Sender       string
	Status       string // 空の場合はDiterima
}

// Service は文書に関するビジネスロジックを提供する。
type Service struct {
	repo          repository.ArchiveRepository
	files         FileStore
	sanitizer     security.TextSanitizer
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	maxUploadSize int64
	now           func() time.Time
}

// NewService はServiceを生成する。maxUploadSizeが0以下の場合は10MBを使用する。
func NewService(
	repo repository.ArchiveRepository,
	files FileStore,
	sanitizer security.TextSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	maxUploadSize int64,
) *Service {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Service{
		repo:          repo,
		files:         files,
		sanitizer:     sanitizer,
		metrics:       collector,
		logger:        logger,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
	}
}

// List は検索・並べ替え・ページ指定に従って文書一覧を返す。
// 並べ替え指定が無効な場合は登録日時の降順になる。
func (s *Service) List(ctx context.Context, params ListParams) (*model.ArchivePage, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}

	filter := model.ArchiveFilter{
		Search: strings.TrimSpace(params.Search),
	}
	if model.IsSortableColumn(params.SortBy) {
		filter.SortBy = params.SortBy
		filter.SortDesc = params.SortDesc
	}

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.logger.Error("文書件数の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewStoreError(model.StoreOpCount)
	}

	filter.Limit = PageSize
	filter.Offset = (page - 1) * PageSize
	archives, err := s.repo.List(ctx, filter)
	if err != nil {
		s.logger.Error("文書一覧の取得に失敗しました", slog.String("error", err.Error()))
		return nil, model.NewStoreError(model.StoreOpQuery)
	}
	if archives == nil {
		archives = []*model.Archive{}
	}

	return &model.ArchivePage{
		Archives: archives,
		Total:    total,
		Page:     page,
		PageSize: PageSize,
	}, nil
}

// Create は入力を検証し、添付ファイルをアップロードしてから文書を登録する。
// アップロードに失敗した場合は登録を行わない。
// 返すエラーは常に*model.APIError。
func (s *Service) Create(ctx context.Context, input CreateInput, upload *model.Upload) (*model.Archive, error) {
	archiveInput, err := s.validate(input)
	if err != nil {
		return nil, err
	}
	if upload != nil && len(upload.Data) > 0 {
		if err := s.validateUpload(upload); err != nil {
			return nil, err
		}

		name := ObjectName(s.now(), archiveInput.LetterNumber)
		start := time.Now()
		url, err := s.files.Upload(ctx, name, pdfContentType, upload.Data)
		s.metrics.RecordUploadLatency(time.Since(start))
		if err != nil {
			s.metrics.RecordUploadFailure()
			s.logger.Error("添付ファイルのアップロードに失敗しました",
				slog.String("object", name),
				slog.String("error", err.Error()),
			)
			return nil, model.NewStoreError(model.StoreOpUpload)
		}
		archiveInput.FileURL = &url
	}

	archive, err := s.repo.Insert(ctx, archiveInput)
	if err != nil {
		s.logger.Error("文書の登録に失敗しました",
			slog.String("letter_number", archiveInput.LetterNumber),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStoreError(model.StoreOpInsert)
	}

	s.metrics.RecordArchiveCreated(string(archive.Category))
	s.logger.Info("文書を登録しました",
		slog.String("archive_id", archive.ID),
		slog.String("category", string(archive.Category)),
		slog.Bool("has_file", archive.FileURL != nil),
	)
	return archive, nil
}

// Summary はダッシュボードの集計値を返す。
// 今月分はサーバーのローカル時刻で月初0時以降に登録された件数。
func (s *Service) Summary(ctx context.Context) (*model.ArchiveSummary, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	incoming, err := s.repo.Count(ctx, model.ArchiveFilter{Category: model.CategoryIncoming})
	if err != nil {
		return nil, s.countFailed(err)
	}
	outgoing, err := s.repo.Count(ctx, model.ArchiveFilter{Category: model.CategoryOutgoing})
	if err != nil {
		return nil, s.countFailed(err)
	}
	thisMonth, err := s.repo.Count(ctx, model.ArchiveFilter{CreatedFrom: monthStart})
	if err != nil {
		return nil, s.countFailed(err)
	}

	return &model.ArchiveSummary{
		Incoming:  incoming,
		Outgoing:  outgoing,
		ThisMonth: thisMonth,
		Month:     now.Month(),
	}, nil
}

func (s *Service) countFailed(err error) error {
	s.logger.Error("文書の集計に失敗しました", slog.String("error", err.Error()))
	return model.NewStoreError(model.StoreOpCount)
}

// validate は必須項目・区分・日付を検証し、サニタイズ済みの登録値を返す。
func (s *Service) validate(input CreateInput) (*model.ArchiveInput, error) {
	fields := []struct {
		label string
		value string
	}{
		{"Nomor Surat", s.sanitizer.Sanitize(input.LetterNumber)},
		{"Perihal", s.sanitizer.Sanitize(input.Title)},
		{"Tanggal Surat", strings.TrimSpace(input.LetterDate)},
		{"Pengirim/Tujuan", s.sanitizer.Sanitize(input.Sender)},
	}
	for _, f := range fields {
		if f.value == "" {
			return nil, model.NewMissingFieldError(f.label)
		}
	}

	category := model.Category(strings.TrimSpace(input.Category))
	if !category.Valid() {
		return nil, model.NewInvalidCategoryError(input.Category)
	}

	letterDate, err := time.Parse(dateLayout, fields[2].value)
	if err != nil {
		return nil, model.NewInvalidDateError(fields[2].value)
	}

	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = model.DefaultArchiveStatus
	}
	if !model.ValidArchiveStatus(status) {
		return nil, model.NewInvalidRequestError("status " + status)
	}

	return &model.ArchiveInput{
		LetterNumber: fields[0].value,
		Title:        fields[1].value,
		Category:     category,
		LetterDate:   letterDate,
		Sender:       fields[3].value,
		Status:       status,
	}, nil
}

// validateUpload は添付ファイルがPDFかつ上限サイズ以下であることを検証する。
func (s *Service) validateUpload(upload *model.Upload) error {
	mediaType, _, err := mime.ParseMediaType(upload.ContentType)
	if err != nil || mediaType != pdfContentType {
		return model.NewInvalidFileTypeError()
	}
	if int64(len(upload.Data)) > s.maxUploadSize {
		return model.NewFileTooLargeError()
	}
	return nil
}

// ObjectName は添付ファイルの保存名を生成する。
// 形式は「<UNIXミリ秒>-<英数字以外を'-'に置換した文書番号>.pdf」。
func ObjectName(at time.Time, letterNumber string) string {
	safe := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '-'
	}, letterNumber)
	return fmt.Sprintf("%d-%s.pdf", at.UnixMilli(), safe)
}
