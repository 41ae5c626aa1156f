package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/model"
)

// フォームのフィールド名。登録画面とJSON APIで共通。
const (
	fieldLetterNumber = "letter_number"
	fieldTitle        = "title"
	fieldCategory     = "category"
	fieldLetterDate   = "letter_date"
	fieldSender       = "sender"
	fieldStatus       = "status"
	fieldFile         = "file"
)

// formOverhead は添付ファイル以外のフォーム項目に許容するサイズ。
const formOverhead int64 = 1 << 20

const multipartMemory int64 = 32 << 20

// readArchiveForm はmultipartフォームから登録値と添付ファイルを読み取る。
// ファイルが選択されていない場合はnilのUploadを返す。
// 添付ファイルは上限+1バイトまで読み込み、サイズ判定はサービス層に任せる。
func readArchiveForm(w http.ResponseWriter, r *http.Request, maxUploadSize int64) (archive.CreateInput, *model.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return archive.CreateInput{}, nil, model.NewFileTooLargeError()
		}
		return archive.CreateInput{}, nil, model.NewInvalidRequestError("form")
	}

	input := archive.CreateInput{
		LetterNumber: r.FormValue(fieldLetterNumber),
		Title:        r.FormValue(fieldTitle),
		Category:     r.FormValue(fieldCategory),
		LetterDate:   r.FormValue(fieldLetterDate),
		Sender:       r.FormValue(fieldSender),
		Status:       r.FormValue(fieldStatus),
	}

	file, header, err := r.FormFile(fieldFile)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return input, nil, nil
		}
		return input, nil, model.NewInvalidRequestError("file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return input, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return input, nil, nil
	}

	return input, &model.Upload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
