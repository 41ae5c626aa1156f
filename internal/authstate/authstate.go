// Package authstate はプロセス内で共有する認証状態（スナップショット）を管理する。
//
// Synchronizer はセッションストアの変更通知を購読し、現在のユーザーを
// キャッシュする。スナップショットを書き換えるのはSynchronizer自身の
// コールバックのみで、利用側は Snapshot / Subscribe で読み取る。
package authstate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/srikandi/internal/model"
)

// DefaultLoginPath はサインアウト後の遷移先。
const DefaultLoginPath = "/login"

var (
	// ErrAlreadyStarted はStartが2回以上呼ばれた場合に返る。
	ErrAlreadyStarted = errors.New("authstate: already started")
	// ErrClosed は状態が確定する前にCloseされた場合にWaitが返す。
	ErrClosed = errors.New("authstate: closed")
)

// ChangeFunc はセッション変更通知のコールバック。sessionはサインアウト時などにnilになる。
type ChangeFunc func(event model.AuthEvent, session *model.Session)

// SessionStore は認証状態の取得元。
type SessionStore interface {
	// GetSession は現在のセッションを返す。セッションが無い場合はnilを返す。
	GetSession(ctx context.Context) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignUp はユーザーを登録する。メール確認待ちの場合はnilのセッションを返す。
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange は変更通知を購読する。通知は発生順に配信されること。
	OnAuthStateChange(fn ChangeFunc) (unsubscribe func())
}

// Navigator は認証状態の遷移に伴う画面操作。
type Navigator interface {
	// Refresh は認証状態に依存するサーバー側のデータを再取得させる。
	Refresh()
	// Push は指定パスへ遷移する。
	Push(path string)
}

// Option はSynchronizerの設定。
type Option func(*Synchronizer)

// WithLoginPath はサインアウト後の遷移先を変更する。
func WithLoginPath(path string) Option {
	return func(s *Synchronizer) { s.loginPath = path }
}

type observer struct {
	id int
	fn func(model.AuthSnapshot)
}

// Synchronizer はセッションストアと同期した認証スナップショットを保持する。
// プロセスごとに1つ生成し、参照で受け渡す。
//
// 変更通知は配信順に適用され、各通知はそれ以前の状態を上書きする（後勝ち）。
// 購読者のコールバックは通知の適用と同じ順序で同期的に呼ばれるため、
// コールバックの中から SignIn / SignUp / SignOut を呼んではならない。
type Synchronizer struct {
	store     SessionStore
	nav       Navigator
	logger    *slog.Logger
	loginPath string

	// applyMu は通知の適用と購読者への配信を直列化する
	applyMu sync.Mutex

	mu          sync.Mutex
	snapshot    model.AuthSnapshot
	notified    bool // 変更通知を1件以上適用済み
	started     bool
	closed      bool
	observers   []observer
	nextID      int
	unsubscribe func()
	ready       chan struct{} // 読み込み完了でclose
	done        chan struct{} // Closeでclose
	closeOnce   sync.Once
}

// New はSynchronizerを生成する。Startを呼ぶまでスナップショットは読み込み中のまま。
func New(store SessionStore, nav Navigator, logger *slog.Logger, opts ...Option) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{
		store:     store,
		nav:       nav,
		logger:    logger,
		loginPath: DefaultLoginPath,
		snapshot:  model.AuthSnapshot{IsLoading: true},
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start は変更通知を購読してから、初回のセッション取得を非同期に開始する。
// 購読は1つだけ登録し、Closeで解除する。
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	unsubscribe := s.store.OnAuthStateChange(s.handleChange)

	s.mu.Lock()
	if s.closed {
		// Startの途中でCloseされた
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	go s.fetchInitial(ctx)
	return nil
}

func (s *Synchronizer) fetchInitial(ctx context.Context) {
	session, err := s.store.GetSession(ctx)
	if err != nil {
		s.logger.Warn("初回のセッション取得に失敗しました。未ログインとして扱います",
			slog.String("error", err.Error()),
		)
		session = nil
	}
	if !s.apply(session, false, false) {
		s.logger.Debug("discarded initial session result")
	}
}

func (s *Synchronizer) handleChange(event model.AuthEvent, session *model.Session) {
	refresh := event == model.AuthEventSignedIn || event == model.AuthEventSignedOut
	if s.apply(session, true, refresh) {
		s.logger.Debug("auth state changed",
			slog.String("event", string(event)),
			slog.Bool("signed_in", session != nil),
		)
	}
}

// apply はスナップショットを上書きし、購読者へ配信する。
// Close後の結果と、変更通知より後に届いた初回取得の結果は破棄してfalseを返す。
func (s *Synchronizer) apply(session *model.Session, fromNotification, refresh bool) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || (!fromNotification && s.notified) {
		s.mu.Unlock()
		return false
	}
	if fromNotification {
		s.notified = true
	}
	wasLoading := s.snapshot.IsLoading
	s.snapshot = model.AuthSnapshot{CurrentUser: userOf(session), IsLoading: false}
	snapshot := s.snapshot
	observers := append([]observer(nil), s.observers...)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(snapshot)
	}
	if refresh {
		s.nav.Refresh()
	}
	// Waitは最初の配信が終わってから戻る
	if wasLoading {
		close(s.ready)
	}
	return true
}

func userOf(session *model.Session) *model.User {
	if session == nil {
		return nil
	}
	user := session.User
	return &user
}

// Snapshot は現在のスナップショットのコピーを返す。
func (s *Synchronizer) Snapshot() model.AuthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshot
	if snapshot.CurrentUser != nil {
		user := *snapshot.CurrentUser
		snapshot.CurrentUser = &user
	}
	return snapshot
}

// Wait は読み込みが完了するまで待ち、確定したスナップショットを返す。
func (s *Synchronizer) Wait(ctx context.Context) (model.AuthSnapshot, error) {
	select {
	case <-s.ready:
		return s.Snapshot(), nil
	default:
	}

	select {
	case <-s.ready:
		return s.Snapshot(), nil
	case <-s.done:
		return s.Snapshot(), ErrClosed
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Subscribe はスナップショットの変更時に呼ばれるコールバックを登録する。
// 返された関数で登録を解除する。解除は何度呼んでもよい。
func (s *Synchronizer) Subscribe(fn func(model.AuthSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close はストアの購読を解除する。以降に届いた結果はすべて破棄する。
// 何度呼んでも購読の解除は1回だけ行う。
func (s *Synchronizer) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.observers = nil
		close(s.done)
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

// SignIn はメールアドレスとパスワードでサインインする。
// スナップショットは更新しない（ストアの変更通知で更新される）。
// 失敗時は*model.APIErrorを返す。
func (s *Synchronizer) SignIn(ctx context.Context, email, password string) error {
	if _, err := s.store.SignInWithPassword(ctx, email, password); err != nil {
		return model.NewAuthError(err)
	}
	return nil
}

// SignUp はユーザーを登録する。スナップショットは更新しない。
// メール確認待ちでセッションが発行されなかった場合はpendingがtrueになる。
// 失敗時は*model.APIErrorを返す。
func (s *Synchronizer) SignUp(ctx context.Context, email, password string) (pending bool, err error) {
	session, err := s.store.SignUp(ctx, email, password)
	if err != nil {
		return false, model.NewAuthError(err)
	}
	return session == nil, nil
}

// SignOut はセッションを破棄し、結果にかかわらずログイン画面へ遷移する。
func (s *Synchronizer) SignOut(ctx context.Context) {
	if err := s.store.SignOut(ctx); err != nil {
		s.logger.Error("サインアウトに失敗しました", slog.String("error", err.Error()))
	}
	s.nav.Push(s.loginPath)
}
