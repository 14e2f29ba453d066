package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"marketplace/internal/config"
	custommiddleware "marketplace/internal/middleware"
	"marketplace/internal/notification"
	"marketplace/internal/queue"
	"marketplace/internal/repository"
	"marketplace/internal/search"
	"marketplace/internal/service"
	"marketplace/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	queue  *queue.Queue
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env == "development"))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	router.Use(custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 300,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit",
	}, logger))

	// Health check endpoint
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	dataRequestRepo := repository.NewDataRequestRepository(db)
	failedJobRepo := repository.NewFailedJobRepository(db)

	// Background infrastructure
	jobQueue := queue.New(queue.Options{
		Workers:    cfg.Queue.Workers,
		BufferSize: cfg.Queue.BufferSize,
		MaxRetries: cfg.Queue.MaxRetries,
	}, failedJobRepo, logger)

	var indexer search.Indexer = search.NoopIndexer{}
	if cfg.Search.Enabled {
		indexer = search.NewMeiliIndexer(cfg.Search)
	}

	notifier := notification.New(cfg.SMTP, logger)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT.Secret)
	categoryService := service.NewCategoryService(categoryRepo)
	productService := service.NewProductService(productRepo, categoryRepo, indexer, jobQueue, logger)
	cartService := service.NewCartService(cartRepo, productRepo, couponRepo)
	orderService := service.NewOrderService(db, orderRepo, productRepo, userRepo, cfg.Checkout, jobQueue, logger)
	couponService := service.NewCouponService(couponRepo)
	gdprService := service.NewGDPRService(dataRequestRepo, userRepo, orderRepo, refreshTokenRepo,
		afero.NewOsFs(), cfg.GDPR, jobQueue, logger)

	registerJobHandlers(jobQueue, gdprService, productService, dataRequestRepo, notifier, logger)
	jobQueue.Start(context.Background())

	if indexer.Enabled() {
		if err := indexer.Configure(context.Background()); err != nil {
			logger.Warn("Failed to configure search index", zap.Error(err))
		}
	}

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	categoryHandler := transport.NewCategoryHandler(categoryService, logger)
	productHandler := transport.NewProductHandler(productService, logger)
	cartHandler := transport.NewCartHandler(cartService, logger)
	orderHandler := transport.NewOrderHandler(orderService, logger)
	couponHandler := transport.NewCouponHandler(couponService, logger)
	gdprHandler := transport.NewGDPRHandler(gdprService, logger)
	webhookHandler := transport.NewWebhookHandler(orderService, logger)

	// Create auth middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	categoryHandler.RegisterRoutes(router, authMiddleware)
	productHandler.RegisterRoutes(router, authMiddleware)
	cartHandler.RegisterRoutes(router, authMiddleware)
	orderHandler.RegisterRoutes(router, authMiddleware)
	couponHandler.RegisterRoutes(router, authMiddleware)
	gdprHandler.RegisterRoutes(router, authMiddleware)
	webhookHandler.RegisterRoutes(router)

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
		queue:  jobQueue,
	}

	return server
}

// registerJobHandlers binds the background job types to their handlers.
// A data request that fails terminally is marked rejected before the
// job is dead-lettered, so the user is never left with a request stuck
// in processing.
func registerJobHandlers(
	q *queue.Queue,
	gdprService service.GDPRService,
	productService service.ProductService,
	dataRequestRepo repository.DataRequestRepository,
	notifier notification.Notifier,
	logger *zap.Logger,
) {
	q.RegisterWithFailure(queue.TypeGDPRProcess,
		func(ctx context.Context, payload json.RawMessage) error {
			var p queue.GDPRProcessPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return fmt.Errorf("%w: %v", queue.ErrNonRetryable, err)
			}
			return gdprService.Process(ctx, p.RequestID)
		},
		func(ctx context.Context, payload json.RawMessage, cause error) {
			var p queue.GDPRProcessPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return
			}
			if err := dataRequestRepo.MarkRejected(ctx, p.RequestID,
				fmt.Sprintf("processing failed: %v", cause)); err != nil {
				logger.Error("Failed to mark data request rejected",
					zap.String("request_id", p.RequestID.String()), zap.Error(err))
			}
		})

	q.Register(queue.TypeNotification, func(ctx context.Context, payload json.RawMessage) error {
		var p queue.NotificationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrNonRetryable, err)
		}
		return notifier.Send(ctx, notification.Notification{
			Channel:   p.Channel,
			Recipient: p.Recipient,
			Subject:   p.Subject,
			Body:      p.Body,
			Metadata:  p.Metadata,
		})
	})

	q.Register(queue.TypeSearchSync, func(ctx context.Context, payload json.RawMessage) error {
		var p queue.SearchSyncPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("%w: %v", queue.ErrNonRetryable, err)
		}
		return productService.SyncProduct(ctx, p.ProductID, p.Delete)
	})
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Drain background jobs before the database goes away
	if s.queue != nil {
		s.queue.Stop()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
