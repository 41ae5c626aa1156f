package handler

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/auth"
	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/model"
	"golang.org/x/net/html"
)

func newTestPageHandler(authSvc *mockAuthService, archives *mockArchiveService, m *recordingMetrics) *PageHandler {
	if authSvc == nil {
		authSvc = &mockAuthService{}
	}
	if archives == nil {
		archives = &mockArchiveService{}
	}
	if m == nil {
		m = &recordingMetrics{}
	}
	return NewPageHandler(authSvc, stubCookies{}, archives, m, 0)
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func sampleArchives(n int) []*model.Archive {
	archives := make([]*model.Archive, n)
	for i := range archives {
		archives[i] = &model.Archive{
			ID:           "a",
			LetterNumber: "001/DPRD/2026",
			Title:        "Undangan Rapat",
			Category:     model.CategoryIncoming,
			LetterDate:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
			Sender:       "Dinas Pendidikan",
			Status:       "Diterima",
		}
	}
	return archives
}

// --- Dashboard ---

func TestDashboard_RendersSummaryAndTable(t *testing.T) {
	fileURL := "https://files.example.com/doc.pdf"
	archives := &mockArchiveService{
		summaryFn: func(context.Context) (*model.ArchiveSummary, error) {
			return &model.ArchiveSummary{Incoming: 7, Outgoing: 3, ThisMonth: 2, Month: time.March}, nil
		},
		listFn: func(_ context.Context, params archive.ListParams) (*model.ArchivePage, error) {
			items := sampleArchives(2)
			items[1].Category = model.CategoryOutgoing
			items[1].FileURL = &fileURL
			return &model.ArchivePage{Archives: items, Total: 2, Page: 1, PageSize: archive.PageSize}, nil
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	h.Dashboard(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "sekretariat@dprd.go.id"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	doc := parseHTML(t, rec.Body.String())

	if got := textOf(findOne(t, doc, byID("summary-incoming"))); !strings.Contains(got, "7") {
		t.Errorf("incoming card = %q", got)
	}
	if got := textOf(findOne(t, doc, byID("summary-outgoing"))); !strings.Contains(got, "3") {
		t.Errorf("outgoing card = %q", got)
	}
	if got := textOf(findOne(t, doc, byID("summary-month"))); !strings.Contains(got, "Bulan Maret") {
		t.Errorf("month card = %q", got)
	}

	table := findOne(t, doc, byID("archive-table"))
	rows := findAll(findOne(t, table, byTag("tbody")), byTag("tr"))
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	first := textOf(rows[0])
	for _, want := range []string{"001/DPRD/2026", "05/01/2026", "Dinas Pendidikan", "Surat Masuk", "Tidak ada file"} {
		if !strings.Contains(first, want) {
			t.Errorf("first row %q missing %q", first, want)
		}
	}
	links := findAll(rows[1], byTag("a"))
	if len(links) != 1 || attr(links[0], "href") != fileURL {
		t.Errorf("download link = %v", links)
	}

	// ヘッダーにユーザー名とログアウトボタンを表示する
	if got := textOf(findOne(t, doc, byClass("user-name"))); got != "sekretariat" {
		t.Errorf("display name = %q", got)
	}
	findOne(t, doc, byID("logout"))

	if got := textOf(findOne(t, doc, byClass("range"))); got != "Menampilkan 1 - 2 dari 2 arsip" {
		t.Errorf("range = %q", got)
	}
}

func TestDashboard_EmptyState(t *testing.T) {
	h := newTestPageHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Dashboard(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "a@b.c"))

	doc := parseHTML(t, rec.Body.String())
	if len(findAll(doc, byID("archive-table"))) != 0 {
		t.Error("table should not be rendered for empty list")
	}
	if got := textOf(findOne(t, doc, byClass("empty-state"))); !strings.Contains(got, "Belum ada arsip") {
		t.Errorf("empty state = %q", got)
	}
}

func TestDashboard_PassesQueryToService(t *testing.T) {
	var got archive.ListParams
	archives := &mockArchiveService{
		listFn: func(_ context.Context, params archive.ListParams) (*model.ArchivePage, error) {
			got = params
			return &model.ArchivePage{Archives: sampleArchives(10), Total: 25, Page: 2, PageSize: archive.PageSize}, nil
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?q=+rapat+&sort=sender&dir=desc&page=2", nil)
	h.Dashboard(rec, withSession(req, "a@b.c"))

	want := archive.ListParams{Search: "rapat", SortBy: model.SortBySender, SortDesc: true, Page: 2}
	if got != want {
		t.Errorf("params = %+v, want %+v", got, want)
	}

	doc := parseHTML(t, rec.Body.String())
	prev := findOne(t, doc, func(n *html.Node) bool { return attr(n, "rel") == "prev" })
	if href := attr(prev, "href"); href != "/?dir=desc&q=rapat&sort=sender" {
		t.Errorf("prev = %q", href)
	}
	next := findOne(t, doc, func(n *html.Node) bool { return attr(n, "rel") == "next" })
	if href := attr(next, "href"); href != "/?dir=desc&page=3&q=rapat&sort=sender" {
		t.Errorf("next = %q", href)
	}
	if got := textOf(findOne(t, doc, byClass("range"))); got != "Menampilkan 11 - 20 dari 25 arsip" {
		t.Errorf("range = %q", got)
	}
}

func TestDashboard_InvalidSortIgnored(t *testing.T) {
	var got archive.ListParams
	archives := &mockArchiveService{
		listFn: func(_ context.Context, params archive.ListParams) (*model.ArchivePage, error) {
			got = params
			return &model.ArchivePage{Page: 1, PageSize: archive.PageSize}, nil
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	h.Dashboard(httptest.NewRecorder(), withSession(httptest.NewRequest(http.MethodGet, "/?sort=password&dir=desc", nil), "a@b.c"))

	if got.SortBy != "" || got.SortDesc {
		t.Errorf("params = %+v, invalid sort should fall back to default", got)
	}
}

func TestDashboard_CreatedNotice(t *testing.T) {
	h := newTestPageHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Dashboard(rec, withSession(httptest.NewRequest(http.MethodGet, "/?created=1", nil), "a@b.c"))

	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byClass("success"))); got != msgArchiveCreated {
		t.Errorf("notice = %q", got)
	}
}

func TestDashboard_StoreErrorShowsMessage(t *testing.T) {
	archives := &mockArchiveService{
		listFn: func(context.Context, archive.ListParams) (*model.ArchivePage, error) {
			return nil, model.NewStoreError(model.StoreOpQuery)
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	h.Dashboard(rec, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "a@b.c"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byClass("error"))); got != "Gagal memuat data arsip." {
		t.Errorf("error = %q", got)
	}
}

func TestDashboardColumns_ToggleDirection(t *testing.T) {
	cols := dashboardColumns("", model.SortByLetterNumber, false)
	if !cols[0].Sorted || cols[0].Desc {
		t.Errorf("letter number column = %+v", cols[0])
	}
	if cols[0].SortURL != "/?dir=desc&sort=letter_number" {
		t.Errorf("ascending column should link to desc, got %q", cols[0].SortURL)
	}
	if cols[1].SortURL != "/?dir=asc&sort=letter_date" {
		t.Errorf("other column should link to asc, got %q", cols[1].SortURL)
	}

	cols = dashboardColumns("x", model.SortByLetterNumber, true)
	if cols[0].SortURL != "/?dir=asc&q=x&sort=letter_number" {
		t.Errorf("descending column should link to asc, got %q", cols[0].SortURL)
	}
	for _, c := range cols[3:] {
		if c.SortURL != "" {
			t.Errorf("column %s must not be sortable", c.Label)
		}
	}
}

func TestDashboardURL(t *testing.T) {
	tests := []struct {
		search string
		sortBy string
		desc   bool
		page   int
		want   string
	}{
		{"", "", false, 1, "/"},
		{"", "", false, 3, "/?page=3"},
		{"surat masuk", "", false, 1, "/?q=surat+masuk"},
		{"", "sender", false, 1, "/?dir=asc&sort=sender"},
	}
	for _, tt := range tests {
		if got := dashboardURL(tt.search, tt.sortBy, tt.desc, tt.page); got != tt.want {
			t.Errorf("dashboardURL(%q, %q, %v, %d) = %q, want %q", tt.search, tt.sortBy, tt.desc, tt.page, got, tt.want)
		}
	}
}

// --- Login ---

func TestLoginPage_SignInAndSignUpModes(t *testing.T) {
	h := newTestPageHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.LoginPage(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byTag("h2"))); got != "Masuk ke Akun Anda" {
		t.Errorf("heading = %q", got)
	}
	if len(findAll(doc, byID("logout"))) != 0 {
		t.Error("header must not be rendered without a user")
	}

	rec = httptest.NewRecorder()
	h.LoginPage(rec, httptest.NewRequest(http.MethodGet, "/login?mode=signup", nil))
	doc = parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byTag("h2"))); got != "Buat Akun Baru" {
		t.Errorf("heading = %q", got)
	}
}

func TestLoginSubmit_SignInSuccess_SetsCookiesAndRedirects(t *testing.T) {
	m := &recordingMetrics{}
	authSvc := &mockAuthService{
		signInFn: func(_ context.Context, email, password string) (*model.Session, error) {
			if email != "staf@dprd.go.id" || password != "rahasia" {
				t.Errorf("credentials = %q, %q", email, password)
			}
			return &model.Session{AccessToken: "at", RefreshToken: "rt"}, nil
		},
	}
	h := newTestPageHandler(authSvc, nil, m)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"email": {" staf@dprd.go.id "}, "password": {"rahasia"}, "mode": {"signin"}}))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	cookies := rec.Result().Cookies()
	if c := findCookie(cookies, auth.AccessTokenCookie); c == nil || c.Value != "at" {
		t.Errorf("access cookie = %+v", c)
	}
	if len(m.signIns) != 1 || m.signIns[0] != metrics.SignInSuccess {
		t.Errorf("sign-in metrics = %v", m.signIns)
	}
}

func TestLoginSubmit_InvalidCredentials_ShowsMessage(t *testing.T) {
	m := &recordingMetrics{}
	h := newTestPageHandler(&mockAuthService{}, nil, m)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"email": {"staf@dprd.go.id"}, "password": {"salah"}}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byClass("error"))); got != "Email atau password salah. Silakan coba lagi." {
		t.Errorf("error = %q", got)
	}
	if got := attr(findOne(t, doc, byID("email")), "value"); got != "staf@dprd.go.id" {
		t.Errorf("email should be kept, got %q", got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookies should be set on failure")
	}
	if len(m.signIns) != 1 || m.signIns[0] != metrics.SignInInvalid {
		t.Errorf("sign-in metrics = %v", m.signIns)
	}
}

func TestLoginSubmit_StoreFailure_GenericMessage(t *testing.T) {
	authSvc := &mockAuthService{
		signInFn: func(context.Context, string, string) (*model.Session, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := newTestPageHandler(authSvc, nil, nil)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"email": {"a@b.c"}, "password": {"xxxxxx"}}))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("internal error must not be exposed")
	}
	if !strings.Contains(rec.Body.String(), "Terjadi kesalahan. Silakan coba lagi.") {
		t.Error("generic message should be shown")
	}
}

func TestLoginSubmit_SignUpWithoutSession_ShowsConfirmationMessage(t *testing.T) {
	m := &recordingMetrics{}
	h := newTestPageHandler(&mockAuthService{}, nil, m)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"email": {"baru@dprd.go.id"}, "password": {"rahasia"}, "mode": {"signup"}}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byClass("success"))); got != msgSignUpSuccess {
		t.Errorf("success = %q", got)
	}
	// 登録後はサインインフォームに戻る
	if got := textOf(findOne(t, doc, byTag("h2"))); got != "Masuk ke Akun Anda" {
		t.Errorf("heading = %q", got)
	}
	if m.signUps != 1 {
		t.Errorf("signUps = %d", m.signUps)
	}
}

func TestLoginSubmit_SignUpWithSession_Redirects(t *testing.T) {
	authSvc := &mockAuthService{
		signUpFn: func(_ context.Context, email, _ string) (*auth.SignUpResult, error) {
			return &auth.SignUpResult{
				User:    model.User{ID: "u", Email: email},
				Session: &model.Session{AccessToken: "at", RefreshToken: "rt"},
			}, nil
		},
	}
	h := newTestPageHandler(authSvc, nil, nil)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"email": {"a@b.c"}, "password": {"rahasia"}, "mode": {"signup"}}))

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if findCookie(rec.Result().Cookies(), auth.RefreshTokenCookie) == nil {
		t.Error("refresh cookie should be set")
	}
}

func TestLoginSubmit_RedirectedPostWithoutEmail_RendersForm(t *testing.T) {
	authSvc := &mockAuthService{
		signInFn: func(context.Context, string, string) (*model.Session, error) {
			t.Error("sign in must not be called")
			return nil, nil
		},
	}
	h := newTestPageHandler(authSvc, nil, nil)

	rec := httptest.NewRecorder()
	h.LoginSubmit(rec, postForm("/login", url.Values{"letter_number": {"001"}}))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// --- Logout / Confirm ---

func TestLogout_ClearsCookiesEvenWhenSignOutFails(t *testing.T) {
	m := &recordingMetrics{}
	authSvc := &mockAuthService{
		signOutFn: func(context.Context, string) error { return errors.New("db down") },
	}
	h := newTestPageHandler(authSvc, nil, m)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshTokenCookie, Value: "rt"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if len(authSvc.signedOut) != 1 || authSvc.signedOut[0] != "rt" {
		t.Errorf("signed out = %v", authSvc.signedOut)
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge >= 0 {
			t.Errorf("cookie %s should be deleted", c.Name)
		}
	}
	if m.signOuts != 1 {
		t.Errorf("signOuts = %d", m.signOuts)
	}
}

func TestConfirm(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		authSvc := &mockAuthService{
			confirmFn: func(_ context.Context, token string) (*model.Session, error) {
				if token != "tok" {
					t.Errorf("token = %q", token)
				}
				return &model.Session{AccessToken: "at", RefreshToken: "rt"}, nil
			},
		}
		h := newTestPageHandler(authSvc, nil, nil)

		rec := httptest.NewRecorder()
		h.Confirm(rec, httptest.NewRequest(http.MethodGet, "/auth/confirm?token=tok", nil))
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/" {
			t.Errorf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		h := newTestPageHandler(nil, nil, nil)

		rec := httptest.NewRecorder()
		h.Confirm(rec, httptest.NewRequest(http.MethodGet, "/auth/confirm?token=bad", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Email link is invalid or has expired") {
			t.Error("error message should be shown")
		}
	})
}

// --- Upload ---

func TestUploadPage_Defaults(t *testing.T) {
	h := newTestPageHandler(nil, nil, nil)

	rec := httptest.NewRecorder()
	h.UploadPage(rec, withSession(httptest.NewRequest(http.MethodGet, "/upload", nil), "a@b.c"))

	doc := parseHTML(t, rec.Body.String())
	selected := findAll(doc, func(n *html.Node) bool {
		return n.Data == "option" && hasAttr(n, "selected")
	})
	if len(selected) != 2 {
		t.Fatalf("selected options = %d, want 2", len(selected))
	}
	if got := attr(selected[0], "value"); got != string(model.CategoryIncoming) {
		t.Errorf("default category = %q", got)
	}
	if got := attr(selected[1], "value"); got != model.DefaultArchiveStatus {
		t.Errorf("default status = %q", got)
	}
	if got := attr(findOne(t, doc, byID("upload-form")), "enctype"); got != "multipart/form-data" {
		t.Errorf("enctype = %q", got)
	}
}

func multipartRequest(t *testing.T, target string, fields map[string]string, file []byte, contentType string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if file != nil {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{`form-data; name="file"; filename="surat.pdf"`}
		h["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validArchiveFields() map[string]string {
	return map[string]string{
		"letter_number": "001/DPRD/2026",
		"title":         "Undangan Rapat",
		"category":      "Surat Masuk",
		"letter_date":   "2026-01-05",
		"sender":        "Dinas Pendidikan",
		"status":        "Diterima",
	}
}

func TestUploadSubmit_Success_RedirectsWithNotice(t *testing.T) {
	var gotInput archive.CreateInput
	var gotUpload *model.Upload
	archives := &mockArchiveService{
		createFn: func(_ context.Context, input archive.CreateInput, upload *model.Upload) (*model.Archive, error) {
			gotInput, gotUpload = input, upload
			return &model.Archive{ID: "x"}, nil
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/upload", validArchiveFields(), []byte("%PDF-1.4"), "application/pdf")
	h.UploadSubmit(rec, withSession(req, "a@b.c"))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/?created=1" {
		t.Fatalf("status = %d, location = %q", rec.Code, rec.Header().Get("Location"))
	}
	if gotInput.LetterNumber != "001/DPRD/2026" || gotInput.Category != "Surat Masuk" {
		t.Errorf("input = %+v", gotInput)
	}
	if gotUpload == nil || gotUpload.ContentType != "application/pdf" || string(gotUpload.Data) != "%PDF-1.4" {
		t.Errorf("upload = %+v", gotUpload)
	}
}

func TestUploadSubmit_WithoutFile_PassesNilUpload(t *testing.T) {
	called := false
	archives := &mockArchiveService{
		createFn: func(_ context.Context, _ archive.CreateInput, upload *model.Upload) (*model.Archive, error) {
			called = true
			if upload != nil {
				t.Errorf("upload = %+v, want nil", upload)
			}
			return &model.Archive{}, nil
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	h.UploadSubmit(rec, withSession(multipartRequest(t, "/upload", validArchiveFields(), nil, ""), "a@b.c"))

	if !called || rec.Code != http.StatusSeeOther {
		t.Errorf("called = %v, status = %d", called, rec.Code)
	}
}

func TestUploadSubmit_ValidationError_RerendersFormWithValues(t *testing.T) {
	archives := &mockArchiveService{
		createFn: func(context.Context, archive.CreateInput, *model.Upload) (*model.Archive, error) {
			return nil, model.NewInvalidFileTypeError()
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/upload", validArchiveFields(), []byte("PK"), "application/zip")
	h.UploadSubmit(rec, withSession(req, "a@b.c"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	doc := parseHTML(t, rec.Body.String())
	if got := textOf(findOne(t, doc, byClass("error"))); got != "Hanya file PDF yang diperbolehkan!" {
		t.Errorf("error = %q", got)
	}
	if got := attr(findOne(t, doc, byID("letter_number")), "value"); got != "001/DPRD/2026" {
		t.Errorf("letter number should be kept, got %q", got)
	}
}

func TestUploadSubmit_UploadFailure_Returns502(t *testing.T) {
	archives := &mockArchiveService{
		createFn: func(context.Context, archive.CreateInput, *model.Upload) (*model.Archive, error) {
			return nil, model.NewStoreError(model.StoreOpUpload)
		},
	}
	h := newTestPageHandler(nil, archives, nil)

	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/upload", validArchiveFields(), []byte("%PDF"), "application/pdf")
	h.UploadSubmit(rec, withSession(req, "a@b.c"))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Gagal mengupload file. Silakan coba lagi.") {
		t.Error("upload failure message should be shown")
	}
}

func TestUploadSubmit_BodyTooLarge(t *testing.T) {
	archives := &mockArchiveService{
		createFn: func(context.Context, archive.CreateInput, *model.Upload) (*model.Archive, error) {
			t.Error("create must not be called")
			return nil, nil
		},
	}
	h := NewPageHandler(&mockAuthService{}, stubCookies{}, archives, &recordingMetrics{}, 10)

	big := bytes.Repeat([]byte("x"), int(formOverhead)+1024)
	rec := httptest.NewRecorder()
	req := multipartRequest(t, "/upload", validArchiveFields(), big, "application/pdf")
	h.UploadSubmit(rec, withSession(req, "a@b.c"))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
