// Package model はドメインモデルを定義する。
package model

import "time"

// Category は文書の区分を表す。値は「Surat Masuk」「Surat Keluar」の2つのみ。
type Category string

const (
	// CategoryIncoming は受信文書（Surat Masuk）を表す。
	CategoryIncoming Category = "Surat Masuk"
	// CategoryOutgoing は発信文書（Surat Keluar）を表す。
	CategoryOutgoing Category = "Surat Keluar"
)

// DefaultArchiveStatus は登録時のデフォルトステータス。
const DefaultArchiveStatus = "Diterima"

// ArchiveStatuses は登録フォームで選択できるステータス。
var ArchiveStatuses = []string{"Diterima", "Diproses", "Selesai", "Dikirim"}

// ValidArchiveStatus はステータスが選択肢のいずれかであるかを判定する。
func ValidArchiveStatus(status string) bool {
	for _, s := range ArchiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Valid はカテゴリが定義済みの2値のいずれかであるかを判定する。
func (c Category) Valid() bool {
	return c == CategoryIncoming || c == CategoryOutgoing
}

// Archive は登録済みの文書レコードを表す。
// 作成後に更新・削除されることはない。
type Archive struct {
	ID           string
	CreatedAt    time.Time
	LetterNumber string
	Title        string
	Category     Category
	LetterDate   time.Time
	Sender       string
	FileURL      *string // 登録時にファイルが添付された場合のみ設定される
	Status       string
}

// ArchiveInput は文書登録時の入力値。IDとCreatedAtはストア側で生成する。
type ArchiveInput struct {
	LetterNumber string
	Title        string
	Category     Category
	LetterDate   time.Time
	Sender       string
	FileURL      *string
	Status       string
}

// 一覧で並べ替え可能な列。
const (
	SortByCreatedAt    = "created_at"
	SortByLetterNumber = "letter_number"
	SortByLetterDate   = "letter_date"
	SortBySender       = "sender"
)

// IsSortableColumn は並べ替え指定が許可された列かどうかを判定する。
func IsSortableColumn(column string) bool {
	switch column {
	case SortByCreatedAt, SortByLetterNumber, SortByLetterDate, SortBySender:
		return true
	default:
		return false
	}
}

// ArchiveFilter は一覧取得・件数取得の条件。
// ゼロ値のフィールドは条件として使用しない。
type ArchiveFilter struct {
	Search      string    // 文書番号・件名・差出人・区分・ステータスの部分一致
	Category    Category  // 区分での絞り込み
	CreatedFrom time.Time // 登録日時の下限（この時刻を含む）
	SortBy      string    // 空の場合はcreated_at
	SortDesc    bool
	Limit       int // 0の場合は無制限
	Offset      int
}

// ArchivePage は一覧画面1ページ分の結果。
type ArchivePage struct {
	Archives []*Archive
	Total    int
	Page     int // 1始まり
	PageSize int
}

// PageCount は総ページ数を返す。0件の場合も1ページとして扱う。
func (p *ArchivePage) PageCount() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// From は表示中の先頭レコードの通し番号（1始まり）を返す。
func (p *ArchivePage) From() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Page-1)*p.PageSize + 1
}

// To は表示中の末尾レコードの通し番号を返す。
func (p *ArchivePage) To() int {
	to := p.Page * p.PageSize
	if to > p.Total {
		return p.Total
	}
	return to
}

// HasPrev は前のページが存在するかを返す。
func (p *ArchivePage) HasPrev() bool {
	return p.Page > 1
}

// HasNext は次のページが存在するかを返す。
func (p *ArchivePage) HasNext() bool {
	return p.Page < p.PageCount()
}

// ArchiveSummary はダッシュボードの集計値。
type ArchiveSummary struct {
	Incoming  int
	Outgoing  int
	ThisMonth int
	Month     time.Month
}

// Upload はアップロードされた添付ファイル。
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}
