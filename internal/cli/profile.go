package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultServer は設定ファイルが無い場合の接続先。
const DefaultServer = "http://localhost:8080"

// Profile はCLIの設定ファイル（YAML）の内容。
type Profile struct {
	Server    string `yaml:"server,omitempty"`
	TokenFile string `yaml:"token_file,omitempty"`
	// Email は前回ログインしたメールアドレス。入力の既定値として使う。
	Email string `yaml:"email,omitempty"`
}

// DefaultConfigPath は設定ファイルの既定パス（~/.config/srikandi/config.yaml）を返す。
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".srikandi", "config.yaml")
	}
	return filepath.Join(dir, "srikandi", "config.yaml")
}

// LoadProfile は設定ファイルを読み込む。ファイルが無い場合は空のProfileを返す。
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Profile{}, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &p, nil
}

// Save は設定ファイルを書き込む。
func (p *Profile) Save(path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// tokenFile はセッションの保存先を返す。未設定の場合は設定ファイルと同じディレクトリ。
func (p *Profile) tokenFile(configPath string) string {
	if p.TokenFile != "" {
		return p.TokenFile
	}
	return filepath.Join(filepath.Dir(configPath), "session.json")
}
