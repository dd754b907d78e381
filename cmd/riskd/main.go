package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/sellerrisk/internal/flagcache"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/healthapi"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/notify"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/paypal"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/reconcile"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/topup"
	"github.com/MarkoPoloResearchLab/sellerrisk/internal/worker"
	"github.com/MarkoPoloResearchLab/sellerrisk/pkg/risk"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagRedisAddr        = "redis-addr"
	flagChatWebhookURL   = "chat-webhook-url"
	flagProcessorBaseURL = "processor-base-url"
	flagProcessorAPIKey  = "processor-api-key"
	flagTokenSigningKey  = "token-signing-key"
	flagTokenIssuer      = "token-issuer"
	flagAllowedOrigins   = "allowed-origins"
	flagTopupInterval    = "topup-interval"

	configKeyDatabaseURL      = "database_url"
	configKeyListenAddr       = "listen_addr"
	configKeyRedisAddr        = "redis_addr"
	configKeyChatWebhookURL   = "chat_webhook_url"
	configKeyProcessorBaseURL = "processor_base_url"
	configKeyProcessorAPIKey  = "processor_api_key"
	configKeyTokenSigningKey  = "token_signing_key"
	configKeyTokenIssuer      = "token_issuer"
	configKeyAllowedOrigins   = "allowed_origins"
	configKeyTopupInterval    = "topup_interval"

	defaultDatabaseURL   = "sqlite:///tmp/sellerrisk.db"
	defaultListenAddr    = ":9090"
	defaultTopupInterval = 8 * time.Hour

	jobKeyTopupNotification = "topup:notification"

	jobMaxAttempts = 3
	jobBackoff     = 2 * time.Second
)

type runtimeConfig struct {
	DatabaseURL      string
	ListenAddr       string
	RedisAddr        string
	ChatWebhookURL   string
	ProcessorBaseURL string
	ProcessorAPIKey  string
	TokenSigningKey  string
	TokenIssuer      string
	AllowedOrigins   string
	TopupInterval    time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "riskd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "riskd",
		Short:         "Seller risk-state and payout-funding daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagRedisAddr, "", "redis address for the shared flag cache (empty uses in-process memory)")
	cmd.Flags().String(flagChatWebhookURL, "", "chat-ops webhook URL (empty disables chat posts)")
	cmd.Flags().String(flagProcessorBaseURL, "", "payment-processor API base URL (empty disables the top-up job)")
	cmd.Flags().String(flagProcessorAPIKey, "", "payment-processor API key")
	cmd.Flags().String(flagTokenSigningKey, "", "HS256 signing key for admin tokens")
	cmd.Flags().String(flagTokenIssuer, "", "expected issuer on admin tokens")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().Duration(flagTopupInterval, defaultTopupInterval, "interval between top-up checks")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:      "DATABASE_URL",
		configKeyListenAddr:       "HTTP_LISTEN_ADDR",
		configKeyRedisAddr:        "REDIS_ADDR",
		configKeyChatWebhookURL:   "CHAT_WEBHOOK_URL",
		configKeyProcessorBaseURL: "PROCESSOR_BASE_URL",
		configKeyProcessorAPIKey:  "PROCESSOR_API_KEY",
		configKeyTokenSigningKey:  "TOKEN_SIGNING_KEY",
		configKeyTokenIssuer:      "TOKEN_ISSUER",
		configKeyAllowedOrigins:   "ALLOWED_ORIGINS",
		configKeyTopupInterval:    "TOPUP_INTERVAL",
	}
	for configKey, envName := range bindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}
	flagNames := map[string]string{
		configKeyDatabaseURL:      flagDatabaseURL,
		configKeyListenAddr:       flagListenAddr,
		configKeyRedisAddr:        flagRedisAddr,
		configKeyChatWebhookURL:   flagChatWebhookURL,
		configKeyProcessorBaseURL: flagProcessorBaseURL,
		configKeyProcessorAPIKey:  flagProcessorAPIKey,
		configKeyTokenSigningKey:  flagTokenSigningKey,
		configKeyTokenIssuer:      flagTokenIssuer,
		configKeyAllowedOrigins:   flagAllowedOrigins,
		configKeyTopupInterval:    flagTopupInterval,
	}
	for configKey, flagName := range flagNames {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	cfg.RedisAddr = viper.GetString(configKeyRedisAddr)
	cfg.ChatWebhookURL = viper.GetString(configKeyChatWebhookURL)
	cfg.ProcessorBaseURL = viper.GetString(configKeyProcessorBaseURL)
	cfg.ProcessorAPIKey = viper.GetString(configKeyProcessorAPIKey)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.TopupInterval = viper.GetDuration(configKeyTopupInterval)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.TopupInterval <= 0 {
		cfg.TopupInterval = defaultTopupInterval
	}
	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

func runDaemon(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	store := gormstore.New(gormDB)
	if err := prepareSchema(store, driver); err != nil {
		return err
	}

	cache, closeCache := buildFlagCache(cfg.RedisAddr)
	defer closeCache()

	var poster notify.ChatPoster = noopChatPoster{}
	if cfg.ChatWebhookURL != "" {
		poster = notify.NewWebhookChatPoster(cfg.ChatWebhookURL, nil)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	engine, err := risk.NewService(store, clock,
		risk.WithOperationLogger(zapOperationLogger{logger: logger}),
		risk.WithAdminNotifier(notify.NewAdminNotifier(poster, logger)),
		risk.WithAnomalyReporter(notify.NewZapAnomalyReporter(logger)),
	)
	if err != nil {
		return fmt.Errorf("risk service init: %w", err)
	}

	reconcileJob, err := reconcile.NewJob(engine, logger)
	if err != nil {
		return fmt.Errorf("reconcile job init: %w", err)
	}

	runner, err := worker.NewRunner(jobMaxAttempts, jobBackoff, func(ctx context.Context, key string, jobErr error) {
		logger.Error("job dead-lettered", zap.String("key", key), zap.Error(jobErr))
	}, logger)
	if err != nil {
		return fmt.Errorf("job runner init: %w", err)
	}

	if cfg.ProcessorBaseURL != "" {
		processor := paypal.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey, nil)
		topupJob, err := topup.NewNotificationJob(store, processor, cache, poster, time.Now, logger)
		if err != nil {
			return fmt.Errorf("top-up job init: %w", err)
		}
		go runner.Every(ctx, jobKeyTopupNotification, cfg.TopupInterval, func(jobCtx context.Context) error {
			return topupJob.Perform(jobCtx, false)
		})
	} else {
		logger.Info("top-up job disabled, no processor base URL configured")
	}

	apiConfig := healthapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  healthapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}
	return healthapi.Run(ctx, apiConfig, healthapi.Dependencies{
		Engine:     engine,
		Reconciler: reconcileJob,
		FlagCache:  cache,
		Logger:     logger,
	})
}

// zapOperationLogger adapts the domain operation callbacks onto zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter zapOperationLogger) LogOperation(ctx context.Context, entry risk.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
		zap.Int64("balance_cents", entry.BalanceCents),
		zap.Bool("refunds_disabled", entry.RefundsDisabled),
	}
	if entry.State != "" {
		fields = append(fields, zap.String("state", entry.State.String()))
	}
	if entry.TriggeringEventID != "" {
		fields = append(fields, zap.String("triggering_event_id", entry.TriggeringEventID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Error("risk operation failed", fields...)
		return
	}
	adapter.logger.Info("risk operation", fields...)
}

type noopChatPoster struct{}

func (noopChatPoster) PostMessage(ctx context.Context, message notify.ChatMessage) error {
	return nil
}

func buildFlagCache(redisAddr string) (flagcache.FlagCache, func()) {
	if redisAddr == "" {
		return flagcache.NewMemoryCache(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return flagcache.NewRedisCache(client), func() { _ = client.Close() }
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "sellerrisk.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema auto-migrates for sqlite; postgres deployments run managed
// migrations.
func prepareSchema(store *gormstore.Store, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
