package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// --format json の出力形式。サーバーのJSON APIと同じフィールド名を使う。

type userJSON struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
}

type archiveJSON struct {
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

type archivePageJSON struct {
	Archives  []archiveJSON `json:"archives"`
	Total     int           `json:"total"`
	Page      int           `json:"page"`
	PageCount int           `json:"page_count"`
}

type summaryJSON struct {
	Incoming  int `json:"incoming"`
	Outgoing  int `json:"outgoing"`
	ThisMonth int `json:"this_month"`
	Month     int `json:"month"`
}

func toUserJSON(u *model.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, EmailConfirmedAt: u.EmailConfirmedAt}
}

func toArchiveJSON(a *model.Archive) archiveJSON {
	return archiveJSON{
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

func toArchivePageJSON(p *model.ArchivePage) archivePageJSON {
	out := archivePageJSON{
		Archives:  make([]archiveJSON, len(p.Archives)),
		Total:     p.Total,
		Page:      p.Page,
		PageCount: p.PageCount(),
	}
	for i, a := range p.Archives {
		out.Archives[i] = toArchiveJSON(a)
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
