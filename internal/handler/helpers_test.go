package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/auth"
	"github.com/hitoshi/srikandi/internal/middleware"
	"github.com/hitoshi/srikandi/internal/model"
	"golang.org/x/net/html"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	signInFn  func(ctx context.Context, email, password string) (*model.Session, error)
	signUpFn  func(ctx context.Context, email, password string) (*auth.SignUpResult, error)
	confirmFn func(ctx context.Context, token string) (*model.Session, error)
	refreshFn func(ctx context.Context, refreshToken string) (*model.Session, error)
	signOutFn func(ctx context.Context, refreshToken string) error
	getUserFn func(ctx context.Context, userID string) (*model.User, error)

	signedOut []string
}

func (m *mockAuthService) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return nil, auth.ErrInvalidCredentials
}

func (m *mockAuthService) SignUp(ctx context.Context, email, password string) (*auth.SignUpResult, error) {
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password)
	}
	return &auth.SignUpResult{User: model.User{ID: "new-user", Email: email}}, nil
}

func (m *mockAuthService) ConfirmEmail(ctx context.Context, token string) (*model.Session, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, token)
	}
	return nil, auth.ErrInvalidConfirmationToken
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, auth.ErrInvalidRefreshToken
}

func (m *mockAuthService) SignOut(ctx context.Context, refreshToken string) error {
	m.signedOut = append(m.signedOut, refreshToken)
	if m.signOutFn != nil {
		return m.signOutFn(ctx, refreshToken)
	}
	return nil
}

func (m *mockAuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, userID)
	}
	return &model.User{ID: userID, Email: "staf@dprd.go.id"}, nil
}

// mockArchiveService はArchiveServiceInterfaceのモック実装。
type mockArchiveService struct {
	listFn    func(ctx context.Context, params archive.ListParams) (*model.ArchivePage, error)
	createFn  func(ctx context.Context, input archive.CreateInput, upload *model.Upload) (*model.Archive, error)
	summaryFn func(ctx context.Context) (*model.ArchiveSummary, error)
}

func (m *mockArchiveService) List(ctx context.Context, params archive.ListParams) (*model.ArchivePage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, params)
	}
	page := params.Page
	if page < 1 {
		page = 1
	}
	return &model.ArchivePage{Archives: []*model.Archive{}, Page: page, PageSize: archive.PageSize}, nil
}

func (m *mockArchiveService) Create(ctx context.Context, input archive.CreateInput, upload *model.Upload) (*model.Archive, error) {
	if m.createFn != nil {
		return m.createFn(ctx, input, upload)
	}
	return &model.Archive{ID: "archive-1", LetterNumber: input.LetterNumber, Category: model.Category(input.Category)}, nil
}

func (m *mockArchiveService) Summary(ctx context.Context) (*model.ArchiveSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx)
	}
	return &model.ArchiveSummary{Month: time.October}, nil
}

// stubCookies はSessionCookieWriterのスタブ実装。
type stubCookies struct{}

func (stubCookies) SessionCookies(session *model.Session) []*http.Cookie {
	return []*http.Cookie{
		{Name: auth.AccessTokenCookie, Value: session.AccessToken, Path: "/"},
		{Name: auth.RefreshTokenCookie, Value: session.RefreshToken, Path: "/"},
	}
}

func (stubCookies) ClearCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: auth.AccessTokenCookie, Path: "/", MaxAge: -1},
		{Name: auth.RefreshTokenCookie, Path: "/", MaxAge: -1},
	}
}

// recordingMetrics はMetricsCollectorの記録用実装。
type recordingMetrics struct {
	mu        sync.Mutex
	signIns   []string
	signUps   int
	signOuts  int
	redirects []string
	statuses  []int
}

func (m *recordingMetrics) RecordSignIn(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signIns = append(m.signIns, outcome)
}
func (m *recordingMetrics) RecordSignUp()                    { m.mu.Lock(); m.signUps++; m.mu.Unlock() }
func (m *recordingMetrics) RecordSignOut()                   { m.mu.Lock(); m.signOuts++; m.mu.Unlock() }
func (m *recordingMetrics) RecordArchiveCreated(string)      {}
func (m *recordingMetrics) RecordUploadFailure()             {}
func (m *recordingMetrics) RecordUploadLatency(time.Duration) {}
func (m *recordingMetrics) RecordGuardRedirect(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects = append(m.redirects, target)
}
func (m *recordingMetrics) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

// --- テストヘルパー ---

// withSession はテスト用にリクエストコンテキストにセッションを注入する。
func withSession(r *http.Request, email string) *http.Request {
	session := &model.Session{User: model.User{ID: "user-1", Email: email}}
	return r.WithContext(middleware.ContextWithSession(r.Context(), session))
}

// parseHTML はレスポンスボディをHTMLとして解析する。
func parseHTML(t *testing.T, body string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to parse HTML: %v", err)
	}
	return doc
}

// findAll は条件に一致する要素をすべて返す。
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byID(id string) func(*html.Node) bool {
	return func(n *html.Node) bool { return attr(n, "id") == id }
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		for _, c := range strings.Fields(attr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	}
}

func findOne(t *testing.T, doc *html.Node, match func(*html.Node) bool) *html.Node {
	t.Helper()
	nodes := findAll(doc, match)
	if len(nodes) == 0 {
		t.Fatal("element not found")
	}
	return nodes[0]
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf は要素配下のテキストを空白を詰めて連結する。
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
