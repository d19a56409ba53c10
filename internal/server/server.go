package server

import (
	"context"
	"log/slog"

	"backend-lacakair/internal/auth"
	"backend-lacakair/internal/config"
	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/ingest"
	"backend-lacakair/internal/mapview"
	"backend-lacakair/internal/metrics"
	"backend-lacakair/internal/post"
	"backend-lacakair/internal/shared/logging"
	"backend-lacakair/internal/storage"
	"backend-lacakair/internal/stream"
	"backend-lacakair/internal/throttle"
	"backend-lacakair/internal/upload"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// bodyLimit leaves room for full-resolution camera photos.
const bodyLimit = 32 << 20

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Markers *mapview.Service
	Log     *slog.Logger

	posts    *post.Service
	objects  *storage.Service
	pipeline *ingest.Pipeline
	limiter  *throttle.Limiter
	registry *prometheus.Registry
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client, log *slog.Logger) (*Server, error) {
	log = logging.OrDefault(log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.NewObserver("lacakair", registry)
	if err != nil {
		return nil, err
	}

	uploader, err := upload.NewFromConfig(cfg, log)
	if err != nil {
		return nil, err
	}
	normalizer := imaging.NewNormalizer(cfg.ImageMaxDimension, cfg.ImageQuality, log,
		imaging.WithMaxPixels(cfg.ImageMaxPixels))
	pipeline := ingest.New(normalizer, uploader, cfg.UploadWorkers,
		ingest.WithObserver(observer), ingest.WithLogger(log))

	hub := stream.NewHub(redisClient, log)
	posts := post.NewService(db)
	markers, err := mapview.NewService(posts, cfg.ClusterTolerance, cfg.MarkerCacheSize,
		mapview.WithBroadcaster(hub), mapview.WithObserver(observer), mapview.WithLogger(log))
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   hub,
		Markers:  markers,
		Log:      log,
		posts:    posts,
		objects:  storage.NewService(db),
		pipeline: pipeline,
		limiter:  throttle.New(cfg.PostRatePerMinute, cfg.PostRateBurst),
		registry: registry,
	}

	registerRoutes(s)
	return s, nil
}

// PrimeMarkers publishes the current marker layer so the first stream
// subscribers get a snapshot without waiting for a change.
func (s *Server) PrimeMarkers(ctx context.Context) {
	s.Markers.PostsChanged(ctx)
}

func (s *Server) Close() error {
	return s.Stream.Close()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	post.RegisterRoutes(s.App.Group("/posts"), s.posts, s.pipeline, s.Markers, jwtMiddleware, s.limiter.Middleware())
	mapview.RegisterRoutes(s.App.Group("/map"), s.Markers)
	storage.RegisterRoutes(s.App.Group("/storage"), s.objects, s.pipeline, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
