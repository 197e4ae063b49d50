package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/uplguard/internal/api"
	"github.com/triage-ai/uplguard/internal/channel"
	"github.com/triage-ai/uplguard/internal/chread"
	"github.com/triage-ai/uplguard/internal/engine"
	"github.com/triage-ai/uplguard/internal/ruleset"
	"github.com/triage-ai/uplguard/internal/storage"
	"github.com/triage-ai/uplguard/internal/store"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logger := mustBuildLogger(envOrDefault("COMPLIANCE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	httpPort := envOrDefault("COMPLIANCE_HTTP_PORT", "8080")
	rulesetPath := os.Getenv("COMPLIANCE_RULESET_PATH")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	cacheTTL := envOrDefaultInt("COMPLIANCE_CHANNEL_CACHE_TTL_S", 30)

	// Rule table: a table that fails to load, compile or self-check never
	// serves traffic.
	tbl, err := engine.LoadTable(rulesetPath)
	if err != nil {
		logger.Fatal("failed to load rule table",
			zap.String("path", rulesetPath),
			zap.Error(err),
		)
	}
	registry := ruleset.NewRegistry(tbl)

	logger.Info("starting compliance server",
		zap.String("http_port", httpPort),
		zap.String("ruleset_version", tbl.Version),
		zap.String("ruleset_digest", tbl.Digest),
		zap.Int("rules", len(tbl.Rules)),
		zap.Int("violation_patterns", len(tbl.Violations)),
	)

	pipeline := engine.NewPipeline(registry, logger)

	ctx := context.Background()

	// Storage: ClickHouse or LogWriter fallback, counted in-process either way
	var sink storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(ctx, clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			sink = storage.NewLogWriter(logger)
		} else {
			sink = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		sink = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	tally := storage.NewTally(sink)
	defer tally.Close()

	deps := &api.Dependencies{
		Registry:    registry,
		Pipeline:    pipeline,
		Writer:      tally,
		Tally:       tally,
		RulesetPath: rulesetPath,
		Logger:      logger,
	}

	// Postgres pool (optional: channel policy overrides)
	resolverCfg := channel.Config{
		CacheTTL: time.Duration(cacheTTL) * time.Second,
		Logger:   logger,
	}
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore := store.NewStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare channel_policies", zap.Error(err))
		}
		deps.Store = pgStore
		resolverCfg.Store = pgStore
		logger.Info("postgres connected")
	} else {
		logger.Info("no POSTGRES_DSN set, channel policies come from the rule table only")
	}
	deps.Channels = channel.NewResolver(resolverCfg)

	// ClickHouse reader (for the analytics endpoint)
	if clickhouseDSN != "" {
		chReader, err := chread.NewReader(ctx, clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			deps.Reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// Block until shutdown; SIGHUP reloads the rule table in place.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			// ReloadRuleset logs both outcomes.
			_, _ = deps.ReloadRuleset()
			continue
		}
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		break
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("compliance server stopped")
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
