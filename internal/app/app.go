package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/srikandi/internal/archive"
	"github.com/hitoshi/srikandi/internal/auth"
	"github.com/hitoshi/srikandi/internal/blob"
	"github.com/hitoshi/srikandi/internal/config"
	"github.com/hitoshi/srikandi/internal/database"
	"github.com/hitoshi/srikandi/internal/handler"
	"github.com/hitoshi/srikandi/internal/logger"
	"github.com/hitoshi/srikandi/internal/metrics"
	"github.com/hitoshi/srikandi/internal/middleware"
	"github.com/hitoshi/srikandi/internal/repository"
	"github.com/hitoshi/srikandi/internal/security"
	"github.com/hitoshi/srikandi/internal/worker/cleanup"
)

// cleanupInterval はクリーンアップジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	return database.Connect(context.Background(), databaseURL)
}

// server はrunServeで組み立てるHTTPサーバーと後始末の対象。
type server struct {
	http        *http.Server
	rateLimiter *middleware.RateLimiter
}

// buildServer は全依存関係をワイヤリングしてHTTPサーバーを構築する。
func buildServer(ctx context.Context, cfg *config.Config, db *sql.DB) (*server, error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresRefreshTokenRepo(db)
	archiveRepo := repository.NewPostgresArchiveRepo(db)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 認証サービスの初期化
	issuer := auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenTTL)
	authService := auth.NewService(userRepo, tokenRepo, issuer, auth.NewLogMailer(slog.Default()), auth.ServiceConfig{
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		ReuseInterval:   cfg.RefreshReuse,
		AutoConfirm:     cfg.AuthAutoConfirm,
		BaseURL:         cfg.BaseURL,
	})
	resolver := auth.NewCookieSessionResolver(authService, auth.CookieConfig{
		Secure:     cfg.CookieSecure,
		Domain:     cfg.CookieDomain,
		RefreshTTL: cfg.RefreshTokenTTL,
	})

	// 4. 文書サービスの初期化
	store, err := blob.NewS3Store(ctx, blob.Config{
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	archiveService := archive.NewService(
		archiveRepo, store, security.NewTextSanitizer(),
		collector, slog.Default(), cfg.UploadMaxSize,
	)

	// 5. ルーターの構築
	// configのRateLimitGeneral/RateLimitLoginはreq/min単位
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin))

	router := handler.NewRouter(&handler.RouterDeps{
		SessionResolver: resolver,
		TokenVerifier:   authService,
		RateLimiter:     rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,

		AuthService: authService,
		Cookies:     resolver,

		ArchiveService: archiveService,
		MaxUploadSize:  cfg.UploadMaxSize,

		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		Logger:         slog.Default(),
	})

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := buildServer(context.Background(), cfg, db)
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", srv.http.Addr))
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、クリーンアップジョブを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	cleanupJob.RetentionDays = cfg.UnconfirmedRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// ブロッキング。シグナル受信でctxがキャンセルされると戻る
	cleanupJob.Schedule(ctx, cleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runCleanup はクリーンアップを1回実行して終了する。
func runCleanup(cfg *config.Config) error {
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := cleanup.NewCleanupJob(db, slog.Default())
	job.RetentionDays = cfg.UnconfirmedRetentionDays
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if !result.Applied() {
		slog.Info("database schema is up to date", slog.Uint64("version", uint64(result.To)))
		return nil
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("from", uint64(result.From)),
		slog.Uint64("to", uint64(result.To)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
