package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"docshare/backend/internal/config"
	authdomain "docshare/backend/internal/domain/auth"
	"docshare/backend/internal/domain/notification"
	tokendomain "docshare/backend/internal/domain/token"
	"docshare/backend/internal/httpserver"
	"docshare/backend/internal/infrastructure/cache"
	"docshare/backend/internal/infrastructure/google"
	"docshare/backend/internal/infrastructure/memory"
	"docshare/backend/internal/infrastructure/notify"
	"docshare/backend/internal/infrastructure/password"
	"docshare/backend/internal/infrastructure/postgres"
	"docshare/backend/internal/infrastructure/token"
	"docshare/backend/internal/logging"
	"docshare/backend/internal/metrics"
	authusecase "docshare/backend/internal/usecase/auth"
	userusecase "docshare/backend/internal/usecase/user"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type storage struct {
	users  authdomain.UserRepository
	tokens tokendomain.Repository
	tx     authdomain.Transactor
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	rootCtx := context.Background()
	m := metrics.New()

	store, err := openStorage(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	client, closeCache, err := openCache(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	googleVerifier, err := newGoogleVerifier(rootCtx, cfg, logger)
	if err != nil {
		return err
	}

	authService := authusecase.NewService(authusecase.Dependencies{
		Users:    store.users,
		Tokens:   store.tokens,
		Tx:       store.tx,
		Codec:    token.NewManager(cfg.JWTSecret, cfg.JWTIssuer),
		Hasher:   password.NewHasher(cfg.BcryptCost),
		Cache:    cache.NewRedis(client, cfg.CachePrefix),
		Notifier: newNotifier(cfg, logger),
		Google:   googleVerifier,
		Logger:   logger.Named("auth"),
		Metrics:  m,
	}, authusecase.Options{
		AccessTTL:         cfg.AccessTokenTTL,
		ChallengeTTL:      cfg.TwoFactorTokenTTL,
		CodeTTL:           cfg.TwoFactorCodeTTL,
		SingleUseTTL:      cfg.SingleUseTokenTTL,
		ResendMax:         cfg.TwoFactorResendMax,
		ResendWindow:      cfg.TwoFactorResendWindow,
		ResendCooldown:    cfg.TwoFactorResendCooldown,
		MaxVerifyAttempts: cfg.TwoFactorMaxAttempts,
		AppDomain:         cfg.AppDomain,
	})
	userService := userusecase.NewService(store.users)

	server := httpserver.NewServer(cfg, authService, userService, m, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	shutdownCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-shutdownCtx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("graceful shutdown completed")
	return nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.StorageDriver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &storage{users: store.Users(), tokens: store.Tokens(), tx: store, close: func() {}}, nil
	}

	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("run database migrations: %w", err)
		}
	}
	return &storage{users: db.Users(), tokens: db.Tokens(), tx: db, close: db.Close}, nil
}

func openCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (*redis.Client, func(), error) {
	if cfg.RedisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		logger.Warn("REDIS_URL not set, using embedded redis", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

func newNotifier(cfg config.Config, logger *zap.Logger) notification.Sender {
	if cfg.ResendAPIKey == "" {
		// Local setups have no mailbox, so codes and links go to the debug log.
		reveal := cfg.StorageDriver == config.DriverMemory
		logger.Warn("RESEND_API_KEY not set, notifications are logged only", zap.Bool("reveal_at_debug", reveal))
		return notify.NewLogSender(logger.Named("notify"), reveal)
	}
	return notify.NewResend(notify.ResendConfig{
		BaseURL: cfg.ResendBaseURL,
		APIKey:  cfg.ResendAPIKey,
		From:    cfg.ResendFrom,
		AppName: cfg.AppName,
		Templates: map[notification.Kind]string{
			notification.KindTwoFactorCode:     cfg.ResendTemplate2FA,
			notification.KindEmailVerification: cfg.ResendTemplateVerify,
			notification.KindPasswordReset:     cfg.ResendTemplateReset,
		},
		RetryMax: cfg.ResendRetryMax,
		Timeout:  cfg.ResendTimeout,
	}, logger.Named("notify"))
}

// newGoogleVerifier returns nil, disabling Google sign-in, when no client id
// is configured.
func newGoogleVerifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (authusecase.IdentityVerifier, error) {
	if cfg.GoogleClientID == "" {
		logger.Info("GOOGLE_CLIENT_ID not set, google sign-in disabled")
		return nil, nil
	}
	v, err := google.NewVerifier(ctx, cfg.GoogleClientID)
	if err != nil {
		return nil, fmt.Errorf("google verifier: %w", err)
	}
	return v, nil
}
