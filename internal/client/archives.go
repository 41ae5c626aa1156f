package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// ListQuery は文書一覧の取得条件。
type ListQuery struct {
	Search string
	Sort   string
	Desc   bool
	Page   int
}

func (q ListQuery) values() url.Values {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
		if q.Desc {
			v.Set("order", "desc")
		} else {
			v.Set("order", "asc")
		}
	}
	if q.Page > 1 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	return v
}

// NewArchive は登録する文書の入力値。
type NewArchive struct {
	LetterNumber string
	Title        string
	Category     model.Category
	LetterDate   string // YYYY-MM-DD
	Sender       string
	Status       string

	// File が空でなければPDFとして添付する
	FileName string
	File     []byte
}

// ListArchives は文書一覧を取得する。
func (c *Client) ListArchives(ctx context.Context, query ListQuery) (*model.ArchivePage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/archives", query.values()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp archiveListResponse
	if err := c.do(req, token, &resp); err != nil {
		return nil, err
	}

	page := &model.ArchivePage{
		Archives: make([]*model.Archive, len(resp.Archives)),
		Total:    resp.Total,
		Page:     resp.Page,
		PageSize: resp.PageSize,
	}
	for i, a := range resp.Archives {
		page.Archives[i] = a.toModel()
	}
	return page, nil
}

// CreateArchive は文書を登録する。
func (c *Client) CreateArchive(ctx context.Context, input NewArchive) (*model.Archive, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeArchiveForm(input)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/archives", nil), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	var resp archiveResponse
	if err := c.do(req, token, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// Summary はダッシュボードの集計値を取得する。
func (c *Client) Summary(ctx context.Context) (*model.ArchiveSummary, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/archives/summary", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var resp summaryResponse
	if err := c.do(req, token, &resp); err != nil {
		return nil, err
	}
	return &model.ArchiveSummary{
		Incoming:  resp.Incoming,
		Outgoing:  resp.Outgoing,
		ThisMonth: resp.ThisMonth,
		Month:     time.Month(resp.Month),
	}, nil
}

func encodeArchiveForm(input NewArchive) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"letter_number", input.LetterNumber},
		{"title", input.Title},
		{"category", string(input.Category)},
		{"letter_date", input.LetterDate},
		{"sender", input.Sender},
		{"status", input.Status},
	}
	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field: %w", err)
		}
	}

	if len(input.File) > 0 {
		name := input.FileName
		if name == "" {
			name = "lampiran.pdf"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
		header.Set("Content-Type", "application/pdf")
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(input.File); err != nil {
			return nil, "", fmt.Errorf("failed to write file part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
