package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitoshi/srikandi/internal/model"
)

// TokenStore はローカルに保存するセッションの永続化先。
type TokenStore interface {
	// Load は保存済みのセッションを返す。保存されていない場合はnilを返す。
	Load() (*model.Session, error)
	Save(session *model.Session) error
	Clear() error
}

// storedSession はトークンファイルの形式。
type storedSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         storedUser `json:"user"`
}

type storedUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// FileTokenStore はセッションをJSONファイルに保存する。
// ファイルは所有者のみ読み書きできる権限で作成する。
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore は指定パスに保存するFileTokenStoreを生成する。
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path は保存先のパスを返す。
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load はトークンファイルを読み込む。ファイルが無い場合はnilを返す。
func (s *FileTokenStore) Load() (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	if stored.AccessToken == "" && stored.RefreshToken == "" {
		return nil, nil
	}

	return &model.Session{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		ExpiresAt:    stored.ExpiresAt,
		User: model.User{
			ID:               stored.User.ID,
			Email:            stored.User.Email,
			EmailConfirmedAt: stored.User.EmailConfirmedAt,
			CreatedAt:        stored.User.CreatedAt,
		},
	}, nil
}

// Save はセッションを一時ファイルに書き込んでから置き換える。
func (s *FileTokenStore) Save(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(storedSession{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		ExpiresAt:    session.ExpiresAt,
		User: storedUser{
			ID:               session.User.ID,
			Email:            session.User.Email,
			EmailConfirmedAt: session.User.EmailConfirmedAt,
			CreatedAt:        session.User.CreatedAt,
		},
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// Clear はトークンファイルを削除する。ファイルが無い場合は何もしない。
func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// MemoryTokenStore はセッションをメモリ上にのみ保持する。
type MemoryTokenStore struct {
	mu      sync.Mutex
	session *model.Session
}

func (s *MemoryTokenStore) Load() (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

func (s *MemoryTokenStore) Save(session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.session = &copied
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

var (
	_ TokenStore = (*FileTokenStore)(nil)
	_ TokenStore = (*MemoryTokenStore)(nil)
)
