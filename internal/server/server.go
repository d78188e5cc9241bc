package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	publisher events.Publisher
}

// Option overrides a dependency NewServer would otherwise build from config.
type Option func(*Server)

// WithRedis uses client instead of dialing cfg.Redis.
func WithRedis(client *redis.Client) Option {
	return func(s *Server) { s.redis = client }
}

// WithPublisher uses p instead of dialing cfg.AMQP.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// NewServer wires repositories, services and handlers onto one router.
// Redis, the AMQP broker and the identity provider are optional: without them
// the server runs with no cache or rate limit, drops order events and
// disables /auth/login.
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger, db database.Service, opts ...Option) (*Server, error) {
	s := &Server{config: cfg, logger: logger, db: db}
	for _, opt := range opts {
		opt(s)
	}

	if s.redis == nil && cfg.Redis.Enabled {
		s.redis = connectRedis(ctx, cfg.Redis, logger)
	}

	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
		if cfg.AMQP.URL != "" {
			publisher, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
			if err != nil {
				s.closeClients()
				return nil, err
			}
			s.publisher = publisher
		} else {
			logger.Warn("AMQP_URL not set, order events will not be published")
		}
	}

	tm := repository.NewTxManager(db.DB())
	authCfg := service.AuthConfig{
		JWTSecret:  cfg.JWT.Secret,
		AccessTTL:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshTTL: time.Duration(cfg.JWT.RefreshExpiry) * time.Hour,
	}
	var authService service.AuthService
	if cfg.OIDC.Issuer != "" {
		oauthCfg, verifier, err := service.NewOIDCClient(ctx, cfg.OIDC)
		if err != nil {
			s.closeClients()
			return nil, err
		}
		authService = service.NewAuthService(tm, oauthCfg, verifier, authCfg, logger)
	} else {
		logger.Warn("OIDC_ISSUER not set, login is disabled")
		authService = service.NewAuthService(tm, nil, nil, authCfg, logger)
	}

	var categoryCache cache.CategoryCache = cache.NopCategoryCache{}
	if s.redis != nil {
		ttl := time.Duration(cfg.Cache.CategoryTTLSeconds) * time.Second
		categoryCache = cache.NewRedisCategoryCache(s.redis, ttl, logger)
	}

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack(requestTimeout)...)
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, cfg.IsDevelopment()))

	router.Get("/health", s.health)

	authMiddleware := custommiddleware.AuthMiddleware(authService, logger)
	limiter := func(next http.Handler) http.Handler { return next }
	if s.redis != nil {
		limiter = custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			KeyPrefix:         "ratelimit",
		}, logger)
	}
	// Anonymous requests count against their IP; once the token is parsed
	// the same limiter charges the user's own bucket as well.
	protected := func(next http.Handler) http.Handler {
		return authMiddleware(limiter(next))
	}

	router.Group(func(r chi.Router) {
		r.Use(limiter)
		transport.NewAuthHandler(authService, !cfg.IsDevelopment(), logger).RegisterRoutes(r)
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(limiter)
		transport.NewUserHandler(service.NewUserService(tm), logger).RegisterRoutes(r, protected)
		transport.NewAddressHandler(service.NewAddressService(tm), logger).RegisterRoutes(r, protected)
		transport.NewProductHandler(service.NewProductService(tm), logger).RegisterRoutes(r, protected)
		transport.NewCategoryHandler(service.NewCategoryService(tm, categoryCache), logger).RegisterRoutes(r, protected)
		transport.NewCartHandler(service.NewCartService(tm), logger).RegisterRoutes(r, protected)
		transport.NewOrderHandler(service.NewOrderService(tm, s.publisher, logger), logger).RegisterRoutes(r, protected)
	})

	s.Server = &http.Server{
		Addr:         net.JoinHostPort("", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// connectRedis returns nil when Redis does not answer, so the server starts
// without cache and rate limiting instead of failing.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, running without cache and rate limiting",
			zap.Error(err),
			zap.String("addr", fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)),
		)
		_ = client.Close()
		return nil
	}
	return client
}

type healthResponse struct {
	Status   string            `json:"status"`
	Database map[string]string `json:"database"`
	Redis    string            `json:"redis"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: s.db.Health(r.Context()), Redis: "disabled"}
	code := http.StatusOK
	if resp.Database["status"] != "up" {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if s.redis != nil {
		resp.Redis = "up"
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			resp.Redis = "down"
		}
	}
	custommiddleware.RespondWithJSON(w, code, resp)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	s.closeClients()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}

// closeClients releases the broker and Redis connections. The database is
// owned by the caller until Close.
func (s *Server) closeClients() {
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
}
