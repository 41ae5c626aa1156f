package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/auth"
	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/middleware"
	"github.com/hitoshi/srikandi/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// 画面に表示する固定メッセージ。
const (
	msgSignUpSuccess  = "Registrasi berhasil! Silakan cek email Anda untuk verifikasi."
	msgArchiveCreated = "Arsip berhasil disimpan!"
)

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

var templateFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string { return t.Format("02/01/2006") },
	"monthName": func(m time.Month) string {
		if m < time.January || m > time.December {
			return ""
		}
		return monthNames[m-1]
	},
	"displayName": func(u *model.User) string {
		if u == nil {
			return "User"
		}
		if name, _, ok := strings.Cut(u.Email, "@"); ok && name != "" {
			return name
		}
		return "User"
	},
	"isIncoming": func(c model.Category) bool { return c == model.CategoryIncoming },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

var pageTemplates = map[string]*template.Template{
	"dashboard": parsePage("dashboard"),
	"login":     parsePage("login"),
	"upload":    parsePage("upload"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.New("layout.html").Funcs(templateFuncs).
		ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html"))
}

// layoutData は全画面共通の表示データ。
type layoutData struct {
	Title     string
	User      *model.User
	CSRFToken string
}

type columnView struct {
	Label   string
	SortURL string // 空の場合は並べ替え不可
	Sorted  bool
	Desc    bool
}

type dashboardView struct {
	layoutData
	Summary *model.ArchiveSummary
	Page    *model.ArchivePage
	Search  string
	Columns []columnView
	PrevURL string
	NextURL string
	Notice  string
	Error   string
}

type loginView struct {
	layoutData
	Email   string
	SignUp  bool
	Error   string
	Success string
}

type uploadView struct {
	layoutData
	Form       archive.CreateInput
	Categories []model.Category
	Statuses   []string
	Error      string
}

// PageHandler はサーバー描画ページのハンドラー。
// 認証状態の判定はルートガードが行い、ハンドラーはコンテキストのセッションを表示に使う。
type PageHandler struct {
	auth          AuthServiceInterface
	cookies       SessionCookieWriter
	archives      ArchiveServiceInterface
	metrics       metrics.MetricsCollector
	maxUploadSize int64
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(
	authService AuthServiceInterface,
	cookies SessionCookieWriter,
	archives ArchiveServiceInterface,
	collector metrics.MetricsCollector,
	maxUploadSize int64,
) *PageHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = archive.DefaultMaxUploadSize
	}
	return &PageHandler{
		auth:          authService,
		cookies:       cookies,
		archives:      archives,
		metrics:       collector,
		maxUploadSize: maxUploadSize,
	}
}

// Dashboard は集計カードと文書一覧を表示する。
// GET /?q=&sort=&dir=asc|desc&page=
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.TrimSpace(q.Get("q"))
	sortBy := q.Get("sort")
	if !model.IsSortableColumn(sortBy) {
		sortBy = ""
	}
	desc := sortBy != "" && q.Get("dir") == "desc"
	page, _ := strconv.Atoi(q.Get("page"))

	view := dashboardView{
		layoutData: h.layout(r, "Dashboard"),
		Search:     search,
		Columns:    dashboardColumns(search, sortBy, desc),
	}
	if q.Get("created") == "1" {
		view.Notice = msgArchiveCreated
	}

	status := http.StatusOK
	summary, err := h.archives.Summary(r.Context())
	if err != nil {
		view.Error, status = pageError(err)
	}
	view.Summary = summary

	list, err := h.archives.List(r.Context(), archive.ListParams{
		Search:   search,
		SortBy:   sortBy,
		SortDesc: desc,
		Page:     page,
	})
	if err != nil {
		view.Error, status = pageError(err)
	} else {
		view.Page = list
		if list.HasPrev() {
			view.PrevURL = dashboardURL(search, sortBy, desc, list.Page-1)
		}
		if list.HasNext() {
			view.NextURL = dashboardURL(search, sortBy, desc, list.Page+1)
		}
	}

	render(w, status, "dashboard", view)
}

// LoginPage はサインイン・登録フォームを表示する。
// GET /login?mode=signup
func (h *PageHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, "login", loginView{
		layoutData: h.layout(r, "Masuk"),
		SignUp:     r.URL.Query().Get("mode") == "signup",
	})
}

// LoginSubmit はサインインまたは登録を処理する。
// 成功時はセッションCookieを設定してトップページへ遷移する。
// POST /login
func (h *PageHandler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.LoginPage(w, r)
		return
	}
	// 未認証の保護ページからリダイレクトされたPOSTはフォームを表示するだけ
	if _, ok := r.PostForm["email"]; !ok {
		h.LoginPage(w, r)
		return
	}

	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")
	view := loginView{
		layoutData: h.layout(r, "Masuk"),
		Email:      email,
		SignUp:     r.PostFormValue("mode") == "signup",
	}

	if view.SignUp {
		result, err := h.auth.SignUp(r.Context(), email, password)
		if err != nil {
			var status int
			view.Error, status = authPageError(err)
			render(w, status, "login", view)
			return
		}
		h.metrics.RecordSignUp()
		if result.Session != nil {
			h.startSession(w, r, result.Session)
			return
		}
		view.SignUp = false
		view.Success = msgSignUpSuccess
		render(w, http.StatusOK, "login", view)
		return
	}

	session, err := h.auth.SignInWithPassword(r.Context(), email, password)
	h.metrics.RecordSignIn(signInOutcome(err))
	if err != nil {
		var status int
		view.Error, status = authPageError(err)
		render(w, status, "login", view)
		return
	}
	h.startSession(w, r, session)
}

// Logout はセッションを破棄してログイン画面へ遷移する。
// 失効処理に失敗しても必ずCookieを削除してログイン画面へ送る。
// POST /logout
func (h *PageHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := ""
	if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil {
		refreshToken = c.Value
	}

	if err := h.auth.SignOut(r.Context(), refreshToken); err != nil {
		slog.Error("failed to sign out", slog.String("error", err.Error()))
	}
	h.metrics.RecordSignOut()

	setCookies(w, h.cookies.ClearCookies())
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Confirm は確認メールのリンクを処理する。
// GET /auth/confirm?token=
func (h *PageHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	session, err := h.auth.ConfirmEmail(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		view := loginView{layoutData: h.layout(r, "Masuk")}
		var status int
		view.Error, status = authPageError(err)
		render(w, status, "login", view)
		return
	}
	h.startSession(w, r, session)
}

// UploadPage は文書登録フォームを表示する。
// GET /upload
func (h *PageHandler) UploadPage(w http.ResponseWriter, r *http.Request) {
	render(w, http.StatusOK, "upload", h.uploadView(r, archive.CreateInput{
		Category: string(model.CategoryIncoming),
		Status:   model.DefaultArchiveStatus,
	}))
}

// UploadSubmit は文書を登録する。添付ファイルのアップロードに失敗した場合は登録しない。
// POST /upload
func (h *PageHandler) UploadSubmit(w http.ResponseWriter, r *http.Request) {
	input, upload, err := readArchiveForm(w, r, h.maxUploadSize)
	if err == nil {
		_, err = h.archives.Create(r.Context(), input, upload)
	}
	if err != nil {
		view := h.uploadView(r, input)
		var status int
		view.Error, status = pageError(err)
		render(w, status, "upload", view)
		return
	}

	http.Redirect(w, r, "/?created=1", http.StatusSeeOther)
}

func (h *PageHandler) startSession(w http.ResponseWriter, r *http.Request, session *model.Session) {
	setCookies(w, h.cookies.SessionCookies(session))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *PageHandler) layout(r *http.Request, title string) layoutData {
	data := layoutData{
		Title:     title,
		CSRFToken: middleware.CSRFToken(r.Context()),
	}
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		user := session.User
		data.User = &user
	}
	return data
}

func (h *PageHandler) uploadView(r *http.Request, form archive.CreateInput) uploadView {
	return uploadView{
		layoutData: h.layout(r, "Tambah Arsip"),
		Form:       form,
		Categories: []model.Category{model.CategoryIncoming, model.CategoryOutgoing},
		Statuses:   model.ArchiveStatuses,
	}
}

// dashboardColumns は一覧の列見出しを返す。
// 昇順で並んでいる列をクリックすると降順、それ以外は昇順になる。
func dashboardColumns(search, sortBy string, desc bool) []columnView {
	sortable := func(label, column string) columnView {
		sorted := sortBy == column
		nextDesc := sorted && !desc
		return columnView{
			Label:   label,
			SortURL: dashboardURL(search, column, nextDesc, 1),
			Sorted:  sorted,
			Desc:    sorted && desc,
		}
	}
	return []columnView{
		sortable("No. Surat", model.SortByLetterNumber),
		sortable("Tanggal", model.SortByLetterDate),
		sortable("Pengirim", model.SortBySender),
		{Label: "Judul"},
		{Label: "Kategori"},
		{Label: "Status"},
		{Label: "Aksi"},
	}
}

// dashboardURL は一覧の検索・並べ替え・ページ指定を保持したURLを返す。
func dashboardURL(search, sortBy string, desc bool, page int) string {
	v := url.Values{}
	if search != "" {
		v.Set("q", search)
	}
	if sortBy != "" {
		v.Set("sort", sortBy)
		if desc {
			v.Set("dir", "desc")
		} else {
			v.Set("dir", "asc")
		}
	}
	if page > 1 {
		v.Set("page", strconv.Itoa(page))
	}
	if len(v) == 0 {
		return "/"
	}
	return "/?" + v.Encode()
}

// pageError はエラーを画面表示用のメッセージとステータスコードに変換する。
func pageError(err error) (string, int) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, middleware.StatusForError(apiErr)
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	return model.NewAuthError(nil).Message, http.StatusInternalServerError
}

// authPageError は認証エラーを画面表示用のメッセージとステータスコードに変換する。
func authPageError(err error) (string, int) {
	if apiErr := authError(err); apiErr != nil {
		return apiErr.Message, http.StatusBadRequest
	}
	slog.Error("auth request failed", slog.String("error", err.Error()))
	return model.NewAuthError(nil).Message, http.StatusInternalServerError
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合は途中までのHTMLを返さない。
func render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := pageTemplates[page].ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
