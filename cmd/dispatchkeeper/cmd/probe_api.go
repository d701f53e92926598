package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/core/cache"
	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/core/metrics"
	"github.com/solatis/dispatchkeeper/internal/core/probe"
	"github.com/solatis/dispatchkeeper/internal/core/server"
)

const Version = "0.1.0"

var probeAPICmd = &cobra.Command{
	Use:   "probe-api",
	Short: "Start gRPC match-debug probe service",
	Args:  cobra.NoArgs,
	RunE:  runProbeAPI,
}

func init() {
	rootCmd.AddCommand(probeAPICmd)
	probeAPICmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	probeAPICmd.Flags().Int("port", 50061, "gRPC server port")
}

func runProbeAPI(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.ProbeAPI.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.ProbeAPI.Port, _ = cmd.Flags().GetInt("port")
	}

	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	env, err := openStore(publisher, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := checkMigrated(ctx, env); err != nil {
		return err
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set DK_HMAC_SECRET environment variable)")
	}
	authenticator := auth.NewAuthenticator(secrets, env.queries)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics, registry, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	var probeCache cache.Cache
	if cfg.Cache.Enabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("probe cache unavailable, continuing without it",
				zap.String("redis_addr", cfg.Cache.RedisAddr), zap.Error(err))
		} else {
			probeCache = cache.NewRedisCache(client, cfg.Cache.TTL)
		}
	}

	service, err := probe.NewService(env.store, &cfg.ProbeAPI, probeCache, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(&cfg.ProbeAPI, service, authenticator, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting probe API",
		zap.String("version", Version),
		zap.String("address", cfg.ProbeAPI.Addr()),
		zap.Bool("events", cfg.Events.Enabled()),
		zap.Bool("cache", probeCache != nil),
	)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		return grpcServer.Shutdown(context.Background())
	}
}

func checkMigrated(ctx context.Context, env *storeEnv) error {
	pending, err := db.Pending(ctx, env.database)
	if err != nil {
		return fmt.Errorf("failed to check migrations: %w", err)
	}
	if len(pending) > 0 {
		return fmt.Errorf("pending migrations %s - run 'dispatchkeeper migrate' first", strings.Join(pending, ", "))
	}
	return nil
}
