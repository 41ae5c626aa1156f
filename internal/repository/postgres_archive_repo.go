package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/srikandi/internal/model"
)

// archiveColumns はSELECT対象の列。scanArchiveの順序と一致させること。
const archiveColumns = `id, created_at, letter_number, title, category, letter_date, sender, file_url, status`

// archiveSortColumns は並べ替え指定とSQL列名の対応表。
// ユーザー入力をSQLに埋め込まないよう、この表にある列のみ許可する。
var archiveSortColumns = map[string]string{
	model.SortByCreatedAt:    "created_at",
	model.SortByLetterNumber: "letter_number",
	model.SortByLetterDate:   "letter_date",
	model.SortBySender:       "sender",
}

// PostgresArchiveRepo はPostgreSQLを使用した文書リポジトリ。
type PostgresArchiveRepo struct {
	db *sql.DB
}

// NewPostgresArchiveRepo はPostgresArchiveRepoを生成する。
func NewPostgresArchiveRepo(db *sql.DB) *PostgresArchiveRepo {
	return &PostgresArchiveRepo{db: db}
}

// List は条件に一致する文書を返す。
func (r *PostgresArchiveRepo) List(ctx context.Context, filter model.ArchiveFilter) ([]*model.Archive, error) {
	where, args := buildArchiveWhere(filter)

	query := `SELECT ` + archiveColumns + ` FROM archives` + where + buildArchiveOrder(filter)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer rows.Close()

	var archives []*model.Archive
	for rows.Next() {
		a, err := scanArchive(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate archives: %w", err)
	}

	return archives, nil
}

// Count は条件に一致する文書の件数を返す。
func (r *PostgresArchiveRepo) Count(ctx context.Context, filter model.ArchiveFilter) (int, error) {
	where, args := buildArchiveWhere(filter)

	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM archives`+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count archives: %w", err)
	}
	return count, nil
}

// Insert は文書を登録する。IDはアプリケーション側で、created_atはDB側で生成する。
func (r *PostgresArchiveRepo) Insert(ctx context.Context, input *model.ArchiveInput) (*model.Archive, error) {
	var fileURL sql.NullString
	if input.FileURL != nil {
		fileURL = sql.NullString{String: *input.FileURL, Valid: true}
	}

	row := r.db.QueryRowContext(ctx,
		`INSERT INTO archives (id, letter_number, title, category, letter_date, sender, file_url, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+archiveColumns,
		uuid.New().String(),
		input.LetterNumber,
		input.Title,
		string(input.Category),
		input.LetterDate,
		input.Sender,
		fileURL,
		input.Status,
	)

	archive, err := scanArchive(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert archive: %w", err)
	}
	return archive, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanArchive(s rowScanner) (*model.Archive, error) {
	a := &model.Archive{}
	var category string
	var fileURL sql.NullString

	if err := s.Scan(
		&a.ID, &a.CreatedAt, &a.LetterNumber, &a.Title, &category,
		&a.LetterDate, &a.Sender, &fileURL, &a.Status,
	); err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}

	a.Category = model.Category(category)
	if fileURL.Valid {
		a.FileURL = &fileURL.String
	}
	return a, nil
}

// buildArchiveWhere はフィルタからWHERE句とバインド引数を構築する。
// 条件がない場合は空文字列を返す。
func buildArchiveWhere(filter model.ArchiveFilter) (string, []any) {
	var conds []string
	var args []any

	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(letter_number ILIKE $%[1]d OR title ILIKE $%[1]d OR sender ILIKE $%[1]d OR category ILIKE $%[1]d OR status ILIKE $%[1]d)",
			n,
		))
	}
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if !filter.CreatedFrom.IsZero() {
		args = append(args, filter.CreatedFrom)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// buildArchiveOrder はORDER BY句を構築する。
// 同値の行はcreated_at降順・id順で安定させる。
func buildArchiveOrder(filter model.ArchiveFilter) string {
	col, ok := archiveSortColumns[filter.SortBy]
	if !ok || col == "created_at" {
		if ok && !filter.SortDesc {
			return " ORDER BY created_at ASC, id"
		}
		return " ORDER BY created_at DESC, id"
	}

	dir := "ASC"
	if filter.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, created_at DESC, id", col, dir)
}

// escapeLike はLIKEパターンの特殊文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// compile-time interface check
var _ ArchiveRepository = (*PostgresArchiveRepo)(nil)
