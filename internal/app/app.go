package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/unlinked/internal/auth"
	"github.com/hitoshi/unlinked/internal/config"
	"github.com/hitoshi/unlinked/internal/database"
	"github.com/hitoshi/unlinked/internal/handler"
	"github.com/hitoshi/unlinked/internal/logger"
	"github.com/hitoshi/unlinked/internal/metrics"
	"github.com/hitoshi/unlinked/internal/notify"
	"github.com/hitoshi/unlinked/internal/oauth"
	"github.com/hitoshi/unlinked/internal/repository"
	"github.com/hitoshi/unlinked/internal/security"
	"github.com/hitoshi/unlinked/internal/session"
	"github.com/hitoshi/unlinked/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, cfg.LogLevel)

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
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はプール設定を適用してDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.OpenWithPool(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openRedis はRedisクライアントを生成し、疎通を確認する。
func openRedis(ctx context.Context, cfg *config.Config) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// sessionBackend はSESSION_STOREに応じたセッションストアとハンドシェイク台帳。
type sessionBackend struct {
	store  session.Store
	ledger oauth.Ledger
	close  func() error
}

// newSessionBackend はSESSION_STOREに応じてセッションストアを構築する。
// postgresの場合、ハンドシェイク台帳はプロセス内メモリに保持する。
func newSessionBackend(ctx context.Context, cfg *config.Config, db *sql.DB) (*sessionBackend, error) {
	if cfg.SessionStore != "redis" {
		return &sessionBackend{
			store:  repository.NewPostgresSessionRepo(db),
			ledger: repository.NewMemoryHandshakeLedger(),
			close:  func() error { return nil },
		}, nil
	}

	client, err := openRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
	return &sessionBackend{
		store:  repository.NewRedisSessionRepo(client),
		ledger: repository.NewRedisHandshakeLedger(client),
		close:  client.Close,
	}, nil
}

// newSessionConfig は設定からセッションマネージャーの設定を構築する。
func newSessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		TTL:         cfg.SessionTTL,
		MaxLifetime: cfg.SessionMaxLifetime,
		Cookie: session.CookieConfig{
			Name:       cfg.SessionCookieName,
			Domain:     cfg.CookieDomain,
			Secure:     cfg.SessionCookieSecure(),
			SameSite:   cfg.SessionSameSite(),
			Persistent: cfg.SessionCookieExpires,
		},
	}
}

// newGuardConfig は設定からハンドシェイクガードの設定を構築する。
// コールバックはプロバイダーからのクロスサイト遷移で届くため、本番ではSameSite=Noneとする。
// 開発環境ではSecureを付与できないためLaxとする。
func newGuardConfig(cfg *config.Config) oauth.GuardConfig {
	sameSite := http.SameSiteLaxMode
	if cfg.CookieSecure() {
		sameSite = http.SameSiteNoneMode
	}
	return oauth.GuardConfig{
		Secret:   []byte(cfg.SessionSecret),
		TTL:      cfg.OAuthHandshakeTTL,
		Secure:   cfg.CookieSecure(),
		SameSite: sameSite,
	}
}

// newProviders はクライアントIDが設定されたプロバイダーのみを生成する。
func newProviders(cfg *config.Config, httpClient *http.Client, recorder metrics.Recorder) []oauth.Provider {
	opts := []oauth.Option{
		oauth.WithHTTPClient(httpClient),
		oauth.WithTimeout(cfg.OAuthHTTPTimeout),
		oauth.WithRecorder(recorder),
	}

	var providers []oauth.Provider
	if cfg.GoogleClientID != "" {
		providers = append(providers, oauth.NewGoogle(oauth.Credentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.OAuthCallbackURL(oauth.ProviderGoogle),
		}, opts...))
	}
	if cfg.LinkedInClientID != "" {
		providers = append(providers, oauth.NewLinkedIn(oauth.Credentials{
			ClientID:     cfg.LinkedInClientID,
			ClientSecret: cfg.LinkedInClientSecret,
			RedirectURL:  cfg.OAuthCallbackURL(oauth.ProviderLinkedIn),
		}, opts...))
	}
	return providers
}

// newMailer はSMTPが設定されていればSMTPMailerを、なければ送信しないMailerを返す。
func newMailer(cfg *config.Config) notify.Mailer {
	if !cfg.MailEnabled() {
		slog.Info("SMTP is not configured; welcome emails are disabled")
		return notify.Discard{}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		FromAddress: cfg.MailFromAddress,
		FromName:    cfg.MailFromName,
	})
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(promRegistry)

	// 3. リポジトリとセッションストアの初期化
	accountRepo := repository.NewPostgresAccountRepo(db)
	identityRepo := repository.NewPostgresLinkedIdentityRepo(db)

	backend, err := newSessionBackend(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer backend.close()

	sessions := session.NewManager(backend.store, newSessionConfig(cfg), recorder)
	guard := oauth.NewGuard(newGuardConfig(cfg), backend.ledger)

	// 4. 認証サービスの初期化
	hasher, err := auth.NewBcryptHasher(cfg.PasswordHashCost)
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}
	validator, err := auth.NewInputValidator()
	if err != nil {
		return fmt.Errorf("failed to create input validator: %w", err)
	}

	providers := newProviders(cfg, security.NewProviderClient(cfg.OAuthHTTPTimeout), recorder)
	providerRegistry := oauth.NewRegistry(providers...)
	slog.Info("oauth providers configured", slog.Any("providers", providerRegistry.Names()))

	// 5. ウェルカムメール送信
	dispatcher := notify.NewDispatcher(newMailer(cfg), notify.DispatcherConfig{
		RatePerMinute: cfg.MailRatePerMinute,
		ClientURL:     cfg.ClientURL,
	}, recorder)
	dispatcher.Start(ctx)

	authService := auth.NewService(auth.Dependencies{
		Accounts:   accountRepo,
		Identities: identityRepo,
		Sessions:   sessions,
		Hasher:     hasher,
		Validator:  validator,
		Providers:  providerRegistry,
		Handshakes: guard,
		Notifier:   dispatcher,
		Metrics:    recorder,
	})

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            recorder,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HSTS:               cfg.IsProduction(),

		AuthService: authService,
		AuthConfig:  handler.AuthHandlerConfig{ClientURL: cfg.ClientURL},
		Sessions:    sessions,
		Accounts:    accountRepo,
		Handshakes:  guard,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(promRegistry),
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		cancel()
		dispatcher.Wait()
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 未送信のメールはログに記録して破棄する
	cancel()
	dispatcher.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.SessionStore == "redis" {
		slog.Info("session store is redis; expired sessions are evicted by TTL, worker has nothing to do")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	job := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// ctxがキャンセルされるまでブロックする
	job.Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	before, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("current schema version",
		slog.Uint64("schema_version", uint64(before.Version)),
		slog.Bool("dirty", before.Dirty),
	)

	v, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(v.Version)),
		slog.Uint64("previous_version", uint64(before.Version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
