// Command server starts the Evercam camera streaming API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/buurz-forks/evercam-server/internal/api"
	"github.com/buurz-forks/evercam-server/internal/directory"
	"github.com/buurz-forks/evercam-server/internal/observability/logging"
	"github.com/buurz-forks/evercam-server/internal/observability/metrics"
	"github.com/buurz-forks/evercam-server/internal/server"
	"github.com/buurz-forks/evercam-server/internal/storage"
	"github.com/buurz-forks/evercam-server/internal/stream"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	dataPath := flag.String("data", "", "path to JSON datastore")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	cacheDriver := flag.String("cache-driver", "", "directory cache driver (memory or redis)")
	cacheTTL := flag.Duration("cache-ttl", 0, "directory cache entry lifetime (0 keeps entries until invalidated)")
	redisAddr := flag.String("cache-redis-addr", "", "Redis address for the directory cache")
	redisUsername := flag.String("cache-redis-username", "", "Redis username for the directory cache")
	redisPassword := flag.String("cache-redis-password", "", "Redis password for the directory cache")
	redisDB := flag.Int("cache-redis-db", 0, "Redis database number for the directory cache")
	redisPrefix := flag.String("cache-redis-prefix", "", "key prefix for directory cache entries")
	redisTimeout := flag.Duration("cache-redis-timeout", 0, "timeout for Redis operations")
	artifactRoot := flag.String("artifact-root", "", "directory the transcoder writes playlists and segments into")
	ffmpegPath := flag.String("ffmpeg-path", "", "path to the ffmpeg binary")
	rtmpBase := flag.String("rtmp-base", "", "RTMP push base transcoders publish to (e.g. rtmp://127.0.0.1:1935/live)")
	hlsBase := flag.String("hls-base", "", "public HLS base for playback URLs (e.g. https://media.example.com/hls)")
	rtmpPlayBase := flag.String("rtmp-play-base", "", "public RTMP base for playback URLs")
	pollAttempts := flag.Int("poll-attempts", 0, "playlist readiness poll attempts")
	pollInterval := flag.Duration("poll-interval", 0, "delay between playlist readiness polls")
	sweepInterval := flag.Duration("sweep-interval", 0, "interval between stale-artifact sweeps (0 disables sweeping)")
	artifactMaxAge := flag.Duration("artifact-max-age", 0, "age after which an untouched artifact directory is removed")
	reapInterval := flag.Duration("reap-interval", 0, "interval between idle-transcoder reaps (0 disables reaping)")
	streamMaxIdle := flag.Duration("stream-max-idle", 0, "viewer inactivity after which a transcoder is killed")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("EVERCAM_LOG_LEVEL"), "info"),
		Format: firstNonEmpty(*logFormat, os.Getenv("EVERCAM_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("EVERCAM_ADDR"), ":8080")
	artifactDir := firstNonEmpty(*artifactRoot, os.Getenv("EVERCAM_ARTIFACT_ROOT"), "data/hls")

	dsn := strings.TrimSpace(firstNonEmpty(*postgresDSN, os.Getenv("EVERCAM_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
	driver := strings.ToLower(firstNonEmpty(*storageDriver, os.Getenv("EVERCAM_STORAGE_DRIVER")))
	if driver == "" {
		if dsn != "" {
			driver = "postgres"
		} else {
			driver = "json"
		}
	}

	ctx := context.Background()
	var store storage.Repository
	var err error
	switch driver {
	case "json":
		path := firstNonEmpty(*dataPath, os.Getenv("EVERCAM_DATA"), "data/store.json")
		store, err = storage.NewStorage(path)
	case "postgres":
		if dsn == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		var pgOptions []storage.Option
		if n := resolveInt(*postgresMaxConns, "EVERCAM_POSTGRES_MAX_CONNS"); n > 0 {
			pgOptions = append(pgOptions, storage.WithMaxConnections(int32(n)))
		}
		if n := resolveInt(*postgresMinConns, "EVERCAM_POSTGRES_MIN_CONNS"); n > 0 {
			pgOptions = append(pgOptions, storage.WithMinConnections(int32(n)))
		}
		if d := resolveDuration(*postgresMaxConnLifetime, "EVERCAM_POSTGRES_MAX_CONN_LIFETIME", 0); d > 0 {
			pgOptions = append(pgOptions, storage.WithMaxConnLifetime(d))
		}
		if d := resolveDuration(*postgresMaxConnIdle, "EVERCAM_POSTGRES_MAX_CONN_IDLE", 0); d > 0 {
			pgOptions = append(pgOptions, storage.WithMaxConnIdleTime(d))
		}
		if d := resolveDuration(*postgresHealthInterval, "EVERCAM_POSTGRES_HEALTH_INTERVAL", 0); d > 0 {
			pgOptions = append(pgOptions, storage.WithHealthCheckInterval(d))
		}
		if d := resolveDuration(*postgresAcquireTimeout, "EVERCAM_POSTGRES_ACQUIRE_TIMEOUT", 0); d > 0 {
			pgOptions = append(pgOptions, storage.WithAcquireTimeout(d))
		}
		if name := firstNonEmpty(*postgresAppName, os.Getenv("EVERCAM_POSTGRES_APP_NAME")); name != "" {
			pgOptions = append(pgOptions, storage.WithApplicationName(name))
		}
		store, err = storage.NewPostgresRepository(ctx, dsn, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	var cache directory.Cache
	var cacheCloser func() error
	entryTTL := resolveDuration(*cacheTTL, "EVERCAM_CACHE_TTL", 0)
	switch strings.ToLower(firstNonEmpty(*cacheDriver, os.Getenv("EVERCAM_CACHE_DRIVER"), "memory")) {
	case "memory":
		cache = directory.NewMemoryCache(entryTTL)
	case "redis":
		redisCache, err := directory.NewRedisCache(ctx, directory.RedisCacheConfig{
			Addr:         firstNonEmpty(*redisAddr, os.Getenv("EVERCAM_CACHE_REDIS_ADDR")),
			Username:     firstNonEmpty(*redisUsername, os.Getenv("EVERCAM_CACHE_REDIS_USERNAME")),
			Password:     firstNonEmpty(*redisPassword, os.Getenv("EVERCAM_CACHE_REDIS_PASSWORD")),
			DB:           resolveInt(*redisDB, "EVERCAM_CACHE_REDIS_DB"),
			KeyPrefix:    firstNonEmpty(*redisPrefix, os.Getenv("EVERCAM_CACHE_REDIS_PREFIX")),
			TTL:          entryTTL,
			DialTimeout:  resolveDuration(*redisTimeout, "EVERCAM_CACHE_REDIS_TIMEOUT", 2*time.Second),
			ReadTimeout:  resolveDuration(*redisTimeout, "EVERCAM_CACHE_REDIS_TIMEOUT", 2*time.Second),
			WriteTimeout: resolveDuration(*redisTimeout, "EVERCAM_CACHE_REDIS_TIMEOUT", 2*time.Second),
		})
		if err != nil {
			logger.Error("failed to connect directory cache", "error", err)
			os.Exit(1)
		}
		cache = redisCache
		cacheCloser = redisCache.Close
	default:
		logger.Error("unsupported cache driver", "driver", *cacheDriver)
		os.Exit(1)
	}

	dir := directory.New(store, cache, logging.WithComponent(logger, "directory"))

	registry := stream.NewRegistry(stream.RegistryConfig{
		FFmpegPath: firstNonEmpty(*ffmpegPath, os.Getenv("EVERCAM_FFMPEG_PATH")),
		RTMPBase:   firstNonEmpty(*rtmpBase, os.Getenv("EVERCAM_RTMP_BASE"), "rtmp://127.0.0.1:1935/live"),
		Logger:     logging.WithComponent(logger, "transcoder"),
	})
	poller := stream.NewPoller(stream.PollerConfig{
		ArtifactRoot: artifactDir,
		MaxAttempts:  uint(resolveInt(*pollAttempts, "EVERCAM_POLL_ATTEMPTS")),
		Interval:     resolveDuration(*pollInterval, "EVERCAM_POLL_INTERVAL", 0),
	})
	activity := stream.NewActivityLog()
	bridge := stream.NewBridge(stream.BridgeConfig{
		Directory: dir,
		Registry:  registry,
		Poller:    poller,
		Activity:  activity,
		Logger:    logging.WithComponent(logger, "bridge"),
		Metrics:   recorder,
	})

	endpoints := stream.Endpoints{
		HLSBase:  firstNonEmpty(*hlsBase, os.Getenv("EVERCAM_HLS_BASE"), "/hls"),
		RTMPBase: firstNonEmpty(*rtmpPlayBase, os.Getenv("EVERCAM_RTMP_PLAY_BASE")),
	}
	handler := api.NewHandler(store, dir, bridge, endpoints, logging.WithComponent(logger, "api"))

	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("EVERCAM_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("EVERCAM_TLS_KEY")),
		},
		ArtifactRoot: artifactDir,
		Activity:     activity,
		Logger:       logger,
		Metrics:      recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	var stopWorkers []func()
	if interval := resolveDuration(*sweepInterval, "EVERCAM_SWEEP_INTERVAL", 0); interval > 0 {
		sweeper := stream.NewSweeper(stream.SweeperConfig{
			ArtifactRoot: artifactDir,
			MaxAge:       resolveDuration(*artifactMaxAge, "EVERCAM_ARTIFACT_MAX_AGE", 0),
			Logger:       logging.WithComponent(logger, "sweeper"),
		})
		stopWorkers = append(stopWorkers, startMaintenanceWorker(ctx, logger, "artifact-sweep", sweeper.Sweep, interval))
	}
	if interval := resolveDuration(*reapInterval, "EVERCAM_REAP_INTERVAL", 0); interval > 0 {
		reaper := stream.NewReaper(stream.ReaperConfig{
			Activity: activity,
			Registry: registry,
			MaxIdle:  resolveDuration(*streamMaxIdle, "EVERCAM_STREAM_MAX_IDLE", 0),
			Logger:   logging.WithComponent(logger, "reaper"),
		})
		stopWorkers = append(stopWorkers, startMaintenanceWorker(ctx, logger, "idle-reap", reaper.Reap, interval))
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Evercam API listening", "addr", listenAddr, "storage", driver)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errs:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, stop := range stopWorkers {
		stop()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
	if cacheCloser != nil {
		if err := cacheCloser(); err != nil {
			logger.Warn("failed to close directory cache", "error", err)
		}
	}

	logger.Info("server stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if value, err := strconv.Atoi(env); err == nil && value > 0 {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := strings.TrimSpace(os.Getenv(envKey)); env != "" {
		if value, err := time.ParseDuration(env); err == nil && value > 0 {
			return value
		}
	}
	return fallback
}
