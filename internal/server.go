package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/healthtracker/internal/activity"
	"github.com/2beens/healthtracker/internal/assistant"
	"github.com/2beens/healthtracker/internal/auth"
	"github.com/2beens/healthtracker/internal/avatar"
	"github.com/2beens/healthtracker/internal/config"
	"github.com/2beens/healthtracker/internal/db"
	"github.com/2beens/healthtracker/internal/kvstore"
	"github.com/2beens/healthtracker/internal/middleware"
	"github.com/2beens/healthtracker/internal/misc"
	"github.com/2beens/healthtracker/internal/session"
	"github.com/2beens/healthtracker/internal/telemetry/metrics"
	"github.com/2beens/healthtracker/internal/telemetry/tracing"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
)

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	// store is the backend shared by all profiles, each profile sees a scoped view of it
	store kvstore.Store

	tokenIssuer   *auth.TokenIssuer
	registry      *session.Registry
	avatarStorage avatar.Storage

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	TokenSecret             string
	RedisPassword           string
	PostgresUser            string
	PostgresPassword        string
	S3AccessKey             string
	S3SecretKey             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	cfg := params.Config

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "healthtracker")
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       cfg,
		versionInfo:  params.VersionInfo,
		otelShutdown: otelShutdown,
	}

	if cfg.RedisHost != "" {
		s.redisClient = newRedisClient(ctx, cfg, params.RedisPassword, params.HoneycombTracingEnabled)
	}

	var extraCollectors []prometheus.Collector
	if cfg.StoreBackend == config.StoreBackendPostgres {
		dbParams := db.NewDBPoolParams{
			DBHost:         cfg.PostgresHost,
			DBPort:         cfg.PostgresPort,
			DBName:         cfg.PostgresDBName,
			DBUser:         params.PostgresUser,
			DBPassword:     params.PostgresPassword,
			TracingEnabled: params.HoneycombTracingEnabled,
		}
		if err := db.RunMigrations(ctx, dbParams); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}

		s.dbPool, err = db.NewDBPool(ctx, dbParams)
		if err != nil {
			return nil, fmt.Errorf("new db pool: %w", err)
		}
		if err := s.dbPool.Ping(ctx); err != nil {
			log.Warnf("failed to ping db: %s", err)
		}

		extraCollectors = append(extraCollectors, pgxpoolprometheus.NewCollector(
			s.dbPool,
			map[string]string{"db_name": cfg.PostgresDBName},
		))
	}

	s.promRegistry = metrics.SetupPrometheus(extraCollectors...)
	s.metricsManager = metrics.NewManager("healthtracker", "main", s.promRegistry)
	s.metricsManager.GaugeLifeSignal.Set(0)

	s.store, err = s.newStore()
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	hasher, err := session.NewHasher(cfg.CredentialScheme, cfg.PasswordHashCost)
	if err != nil {
		return nil, fmt.Errorf("new credential hasher: %w", err)
	}
	s.registry = session.NewRegistry(s.store, hasher, time.Duration(cfg.ProfileIdleTTLHours)*time.Hour)
	go s.cleanIdleProfiles(ctx, time.Duration(cfg.ProfileCleanIntervalMin)*time.Minute)

	s.tokenIssuer, err = auth.NewTokenIssuer(
		params.TokenSecret,
		time.Duration(cfg.ProfileTokenTTLHours)*time.Hour,
	)
	if err != nil {
		return nil, fmt.Errorf("new token issuer: %w", err)
	}

	s.avatarStorage, err = s.newAvatarStorage(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("new avatar storage: %w", err)
	}

	return s, nil
}

func newRedisClient(ctx context.Context, cfg *config.Config, password string, tracingEnabled bool) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password: password,
		DB:       0, // use default DB
	})
	if tracingEnabled {
		rdb.AddHook(redisotel.NewTracingHook())
	}

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	return rdb
}

func (s *Server) newStore() (kvstore.Store, error) {
	var store kvstore.Store
	switch s.config.StoreBackend {
	case config.StoreBackendMemory:
		log.Warnln("using in-memory store, accounts are lost on restart")
		store = kvstore.NewMemory()
	case config.StoreBackendBolt:
		bolt, err := kvstore.OpenBolt(s.config.BoltPath)
		if err != nil {
			return nil, err
		}
		store = bolt
	case config.StoreBackendRedis:
		if s.redisClient == nil {
			return nil, errors.New("redis store backend without redis client")
		}
		store = kvstore.NewRedis(s.redisClient)
	case config.StoreBackendPostgres:
		if s.dbPool == nil {
			return nil, errors.New("postgres store backend without db pool")
		}
		store = kvstore.NewPostgres(s.dbPool)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", s.config.StoreBackend)
	}

	log.Debugf("using [%s] store backend", s.config.StoreBackend)
	if s.config.StoreCacheMB > 0 {
		log.Debugf("store cache enabled: %d MB", s.config.StoreCacheMB)
		store = kvstore.NewCached(store, s.config.StoreCacheMB)
	}
	return store, nil
}

func (s *Server) newAvatarStorage(ctx context.Context, params NewServerParams) (avatar.Storage, error) {
	switch s.config.AvatarBackend {
	case config.AvatarBackendDisk:
		return avatar.NewDiskStorage(s.config.AvatarDiskPath, s.config.AvatarPublicBaseURL)
	case config.AvatarBackendS3:
		return avatar.NewS3Storage(ctx, avatar.S3Params{
			Region:        s.config.S3Region,
			BaseEndpoint:  s.config.S3BaseEndpoint,
			Bucket:        s.config.S3Bucket,
			AccessKey:     params.S3AccessKey,
			SecretKey:     params.S3SecretKey,
			PublicBaseURL: s.config.AvatarPublicBaseURL,
			HTTPClient: &http.Client{
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		})
	}
	log.Debugln("avatar uploads disabled")
	return nil, nil
}

func (s *Server) cleanIdleProfiles(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.registry.ScanAndClean()
			s.metricsManager.GaugeActiveProfiles.Set(float64(s.registry.Len()))
		}
	}
}

func (s *Server) routerSetup() *mux.Router {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	loginRateLimit := middleware.NoRateLimit()
	newProfileRateLimit := middleware.NoRateLimit()
	if s.config.RateLimitingEnabled && s.redisClient != nil {
		reqRateLimiter := redis_rate.NewLimiter(s.redisClient)
		// rate limit the credential endpoints to slow down guessing
		loginRateLimit = middleware.RateLimit(reqRateLimiter, s.metricsManager, "login", s.config.LoginRateLimitPerMin)
		newProfileRateLimit = middleware.RateLimit(reqRateLimiter, s.metricsManager, "new-profile", s.config.LoginRateLimitPerMin)
	}
	sessionGate := middleware.RequireSession(s.registry)

	miscHandler := misc.NewHandler(s.versionInfo, s.tokenIssuer, s.metricsManager)
	miscHandler.SetupRoutes(r, newProfileRateLimit)

	sessionHandler := session.NewHandler(s.registry, s.metricsManager)
	sessionHandler.SetupRoutes(r, loginRateLimit, sessionGate)

	if s.avatarStorage != nil {
		avatarHandler := avatar.NewHandler(s.avatarStorage, s.config.AvatarMaxSizeKB*1024)
		avatarHandler.SetupRoutes(r)
	}

	activityHandler := activity.NewHandler(activity.NewService(), s.registry)
	activityHandler.SetupRoutes(r, sessionGate)

	assistantHandler := assistant.NewHandler()
	assistantHandler.SetupRoutes(r, sessionGate)

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "OPTIONS").Name("unknown")

	authMiddleware := middleware.NewAuthMiddlewareHandler(auth.NewTokenChecker(s.tokenIssuer))

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest())
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.CorsAllowedOrigins))
	r.Use(authMiddleware.AuthCheck())
	r.Use(middleware.DrainAndCloseRequest())

	return r
}

func (s *Server) Serve(host string, port int) {
	router := s.routerSetup()

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.HandlerFor(
		s.promRegistry,
		promhttp.HandlerOpts{},
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:    metricsAddr,
		Handler: metricsRouter,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	// stop taking requests first, the stores are still needed by in-flight ones
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if err := s.closeStores(); err != nil {
		log.Errorf("failed to close stores: %s", err)
	}

	s.otelShutdown()
	log.Trace("otel shut down ...")

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}
}

func (s *Server) closeStores() error {
	var err error
	if s.store != nil {
		err = multierr.Append(err, s.store.Close())
	}

	if s.redisClient != nil {
		err = multierr.Append(err, s.redisClient.Close())
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	return err
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
