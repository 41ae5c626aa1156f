package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	RefreshReuse    time.Duration // ローテーション直後の旧リフレッシュトークンを受け付ける猶予
	AuthAutoConfirm bool

	// Storage
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string

	// Upload
	UploadMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Cleanup
	UnconfirmedRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（カンマ区切りで複数のOriginを許可する）
	CORSAllowedOrigin string
}

// minSessionSecretLen はアクセストークン署名鍵の最小長（HS256の鍵長）。
const minSessionSecretLen = 32

// Load は環境変数からConfigを読み込み、検証する。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
// 任意項目の値が解釈できない場合はデフォルト値を使用する。
func Load() (*Config, error) {
	var missing []string
	required := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		DatabaseURL:   required("DATABASE_URL"),
		SessionSecret: required("SESSION_SECRET"),
		BaseURL:       strings.TrimRight(required("BASE_URL"), "/"),
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}

	cfg.AccessTokenTTL = getEnv("ACCESS_TOKEN_TTL", time.Hour, time.ParseDuration)
	cfg.RefreshTokenTTL = getEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour, time.ParseDuration)
	cfg.RefreshReuse = getEnv("REFRESH_TOKEN_REUSE_INTERVAL", 10*time.Second, time.ParseDuration)
	cfg.AuthAutoConfirm = getEnv("AUTH_AUTO_CONFIRM", false, strconv.ParseBool)
	cfg.S3Bucket = getEnv("S3_BUCKET", "srikandi-files", parseString)
	cfg.S3Region = getEnv("S3_REGION", "us-east-1", parseString)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "", parseString)
	cfg.S3AccessKey = getEnv("S3_ACCESS_KEY", "", parseString)
	cfg.S3SecretKey = getEnv("S3_SECRET_KEY", "", parseString)
	cfg.S3PublicURL = getEnv("S3_PUBLIC_URL", "", parseString)
	cfg.UploadMaxSize = getEnv("UPLOAD_MAX_SIZE", int64(10*1024*1024), parseInt64)
	cfg.RateLimitGeneral = getEnv("RATE_LIMIT_GENERAL", 120, strconv.Atoi)
	cfg.RateLimitLogin = getEnv("RATE_LIMIT_LOGIN", 10, strconv.Atoi)
	cfg.UnconfirmedRetentionDays = getEnv("UNCONFIRMED_RETENTION_DAYS", 7, strconv.Atoi)
	cfg.ServerPort = getEnv("SERVER_PORT", "8080", parseString)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnv("COOKIE_DOMAIN", "", parseString)
	cfg.CORSAllowedOrigin = getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000", parseString)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は値同士の整合性を検証する。
func (c *Config) validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute http(s) URL: %q", c.BaseURL)
	}
	if len(c.SessionSecret) < minSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLen)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must be longer than ACCESS_TOKEN_TTL (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	if c.UploadMaxSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_SIZE must be positive: %d", c.UploadMaxSize)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitLogin <= 0 {
		return fmt.Errorf("rate limits must be positive: general=%d login=%d", c.RateLimitGeneral, c.RateLimitLogin)
	}
	return nil
}

// getEnv は環境変数をparseで解釈する。未設定または解釈できない場合はdefaultValを返す。
func getEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	parsed, err := parse(v)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func parseString(s string) (string, error) { return s, nil }

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
