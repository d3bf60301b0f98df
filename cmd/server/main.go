package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Drivers
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	// Instrumentation
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Interne
	"github.com/jupiterclapton/maillage/config"
	"github.com/jupiterclapton/maillage/internal/adapters/primary/events"
	"github.com/jupiterclapton/maillage/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/maillage/internal/core/services"
)

func main() {
	// 1. Config & Logger
	cfg := config.Load()
	initLogger(cfg)
	slog.Info("🚀 Starting Maillage (feed & suggestions)", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Télémétrie (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Redis (cache de feed)
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		panic(err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Unable to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Redis")
	feedCache := repository.NewRedisFeedCache(rdb)

	// 4. Infrastructure: Neo4j (graphe social)
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		slog.Error("Unable to create Neo4j driver", "error", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		slog.Error("Unable to connect to Neo4j", "error", err)
		os.Exit(1)
	}
	graphRepo := repository.NewNeo4jGraphRepo(driver)
	if err := graphRepo.EnsureSchema(ctx); err != nil {
		slog.Error("Unable to ensure Neo4j schema", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Neo4j")

	// 5. Infrastructure: Postgres (contenus + profils)
	pgCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Invalid Postgres DSN", "error", err)
		os.Exit(1)
	}
	pgCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		slog.Error("Unable to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		slog.Error("Unable to connect to Postgres", "error", err)
		os.Exit(1)
	}
	slog.Info("✅ Connected to Postgres")
	contentRepo := repository.NewPostgresContentRepo(pool)
	profileRepo := repository.NewPostgresProfileRepo(pool)

	// 6. Infrastructure: NATS (events d'invalidation)
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		slog.Error("Unable to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	slog.Info("✅ Connected to NATS")

	// 7. Initialisation du Core
	clock := services.SystemClock{}
	feedService := services.NewFeedService(contentRepo, graphRepo, profileRepo, feedCache, clock, cfg.FeedTTLs)
	suggestionService := services.NewSuggestionService(graphRepo, profileRepo, clock)

	// 8. Adapters NATS (Driving) : events d'invalidation + request-reply
	handler := events.NewEventHandler(feedService)
	queries := events.NewQueryHandler(feedService, suggestionService)
	subscriptions := map[string]nats.MsgHandler{
		"post.created":        handler.HandlePostCreated,
		"friend.accepted":     handler.HandleFriendAccepted,
		"follow.created":      handler.HandleFollowCreated,
		"feed.request":        queries.HandleFeedRequest,
		"suggestions.request": queries.HandleSuggestionsRequest,
	}
	for subject, msgHandler := range subscriptions {
		if _, err := nc.Subscribe(subject, msgHandler); err != nil {
			slog.Error("Failed to subscribe to NATS", "subject", subject, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("👂 Listening on NATS", "subjects", len(subscriptions))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down...")
	slog.Info("👋 Server exited")
}

// --- Helpers ---

func initLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if cfg.Env == "local" {
		opts.Level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String("maillage"),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
