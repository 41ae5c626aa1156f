// Package client はsrikandiサーバーのJSON APIクライアントを提供する。
//
// Client は authstate.SessionStore を実装し、セッションを TokenStore に保存する。
// セッションの変更はリスナーへ発生順に同期的に通知する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/srikandi/internal/authstate"
	"github.com/hitoshi/srikandi/internal/model"
)

// expiryMargin はアクセストークンの期限切れとみなす前倒し時間。
const expiryMargin = 10 * time.Second

const defaultTimeout = 30 * time.Second

// ErrNotSignedIn はセッションが必要な操作をサインイン前に呼んだ場合に返る。
var ErrNotSignedIn = errors.New("not signed in")

// ResponseError はサーバーがエラーレスポンスを返したことを表す。
// 統一エラーフォーマットのボディはAPIとして取り出せる。
type ResponseError struct {
	StatusCode int
	API        *model.APIError
}

func (e *ResponseError) Error() string {
	if e.API != nil {
		return fmt.Sprintf("status %d: %s", e.StatusCode, e.API.Error())
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// Unwrap はerrors.Asで*model.APIErrorを取り出せるようにする。
func (e *ResponseError) Unwrap() error {
	if e.API == nil {
		return nil
	}
	return e.API
}

// Option はClientの設定。
type Option func(*Client)

// WithHTTPClient は使用するhttp.Clientを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type listener struct {
	id int
	fn authstate.ChangeFunc
}

// Client はsrikandiサーバーのJSON APIクライアント。
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenStore
	logger  *slog.Logger
	now     func() time.Time

	// sessionMu はトークンの読み書きと通知を直列化する
	sessionMu sync.Mutex

	mu        sync.Mutex
	listeners []listener
	nextID    int
}

// New はClientを生成する。baseURLはサーバーのオリジン（例: http://localhost:8080）。
func New(baseURL string, tokens TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ authstate.SessionStore = (*Client)(nil)

// OnAuthStateChange はセッション変更通知のリスナーを登録する。
func (c *Client) OnAuthStateChange(fn authstate.ChangeFunc) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, l := range c.listeners {
				if l.id == id {
					c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// emit はsessionMuを保持したまま呼ぶ。
func (c *Client) emit(event model.AuthEvent, session *model.Session) {
	c.mu.Lock()
	listeners := append([]listener(nil), c.listeners...)
	c.mu.Unlock()

	for _, l := range listeners {
		var copied *model.Session
		if session != nil {
			s := *session
			copied = &s
		}
		l.fn(event, copied)
	}
}

// GetSession は保存済みのセッションを返す。
// アクセストークンが期限切れの場合はリフレッシュトークンで更新する。
// リフレッシュトークンが拒否された場合はローカルのセッションを破棄してnilを返す。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.currentSession(ctx)
}

func (c *Client) currentSession(ctx context.Context) (*model.Session, error) {
	session, err := c.tokens.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, nil
	}
	if !session.Expired(c.now().Add(expiryMargin)) {
		return session, nil
	}
	if session.RefreshToken == "" {
		c.discardSession()
		return nil, nil
	}

	refreshed, err := c.requestSession(ctx, "/auth/v1/token?grant_type=refresh_token", refreshRequest{RefreshToken: session.RefreshToken})
	if err != nil {
		var respErr *ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode < http.StatusInternalServerError {
			c.logger.Info("リフレッシュトークンが無効なためセッションを破棄しました",
				slog.Int("status", respErr.StatusCode),
			)
			c.discardSession()
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}

	if err := c.tokens.Save(refreshed); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	c.emit(model.AuthEventTokenRefreshed, refreshed)
	return refreshed, nil
}

func (c *Client) discardSession() {
	if err := c.tokens.Clear(); err != nil {
		c.logger.Error("ローカルセッションの削除に失敗しました", slog.String("error", err.Error()))
	}
	c.emit(model.AuthEventSignedOut, nil)
}

// SignInWithPassword はメールアドレスとパスワードでサインインし、セッションを保存する。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.requestSession(ctx, "/auth/v1/token?grant_type=password", credentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	c.emit(model.AuthEventSignedIn, session)
	return session, nil
}

// SignUp はユーザーを登録する。メール確認が必要な場合はnilのセッションを返す。
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	var resp signUpResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/signup", "", credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.Session == nil {
		return nil, nil
	}

	session := resp.Session.toModel()
	if err := c.tokens.Save(session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	c.emit(model.AuthEventSignedIn, session)
	return session, nil
}

// SignOut はサーバー側のリフレッシュトークンを失効させ、ローカルのセッションを破棄する。
// サーバーへの要求が失敗してもローカルのセッションは破棄し、SIGNED_OUTを通知する。
func (c *Client) SignOut(ctx context.Context) error {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.tokens.Load()
	if err != nil {
		c.logger.Warn("ローカルセッションの読み込みに失敗しました", slog.String("error", err.Error()))
	}

	var serverErr error
	if session != nil && session.RefreshToken != "" {
		serverErr = c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", "", refreshRequest{RefreshToken: session.RefreshToken}, nil)
		if serverErr != nil {
			serverErr = fmt.Errorf("failed to revoke session: %w", serverErr)
		}
	}

	var clearErr error
	if err := c.tokens.Clear(); err != nil {
		clearErr = fmt.Errorf("failed to clear session: %w", err)
	}
	c.emit(model.AuthEventSignedOut, nil)
	return errors.Join(serverErr, clearErr)
}

// GetUser はサーバーから最新のユーザー情報を取得する。
func (c *Client) GetUser(ctx context.Context) (*model.User, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp userResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", token, nil, &resp); err != nil {
		return nil, err
	}
	user := resp.toModel()
	return &user, nil
}

// accessToken は有効なアクセストークンを返す。必要に応じて更新する。
func (c *Client) accessToken(ctx context.Context) (string, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", ErrNotSignedIn
	}
	return session.AccessToken, nil
}

func (c *Client) requestSession(ctx context.Context, path string, body any) (*model.Session, error) {
	var resp sessionResponse
	if err := c.doJSON(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return nil, err
	}
	return resp.toModel(), nil
}

// doJSON はJSONボディのリクエストを送り、2xxの場合はレスポンスをoutにデコードする。
func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	respErr := &ResponseError{StatusCode: resp.StatusCode}
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil && body.Code != "" {
		respErr.API = &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		}
	}
	return respErr
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}
