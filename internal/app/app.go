package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"marketlens/backend/features/chat"
	"marketlens/backend/features/insights"
	"marketlens/backend/features/job"
	"marketlens/backend/features/product"
	"marketlens/backend/features/refresh"
	"marketlens/backend/features/resource"
	"marketlens/backend/features/scrapejob"
	"marketlens/backend/features/stats"
	"marketlens/backend/features/webhook"
	"marketlens/backend/internal/adapter/gemini"
	"marketlens/backend/internal/adapter/redislock"
	"marketlens/backend/internal/adapter/reranker"
	"marketlens/backend/internal/adapter/scraper"
	ragchat "marketlens/backend/internal/chat"
	"marketlens/backend/internal/config"
	"marketlens/backend/internal/indexing"
	"marketlens/backend/internal/middleware"
	"marketlens/backend/internal/retrieval"
	"marketlens/backend/internal/review"
	"marketlens/backend/internal/settings"
	"marketlens/backend/internal/vector"
	"marketlens/backend/internal/worker"
)

// VectorStore is everything the app needs from the vector database.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	InsertChunks(ctx context.Context, chunks []vector.Chunk) error
	DeleteScope(ctx context.Context, scope vector.Scope) error
	Search(ctx context.Context, vec []float32, limit int, productIDs []string) ([]retrieval.SearchResult, error)
	CountChunks(ctx context.Context) (int, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// LLM is the chat model shared by the chat engine and insights.
type LLM interface {
	ragchat.LLM
	insights.JSONGenerator
}

// Options overrides the external model adapters. Zero values use Gemini.
type Options struct {
	Embedder indexing.Embedder
	LLM      LLM
	Redis    *redis.Client
}

type App struct {
	Handler          http.Handler
	ResourceService  *resource.Service
	ResourceConsumer *worker.ResourceConsumer
	RefreshService   *refresh.Service
	Scheduler        *refresh.Scheduler
	WebhookService   *webhook.Service

	port      int
	products  *product.PostgresRepo
	reviews   *review.PostgresRepo
	normalize *review.Normalizer
	indexer   *indexing.ReviewsIndexer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts ...*Options,
) (*App, error) {
	o := &Options{}
	if len(opts) > 0 && opts[0] != nil {
		o = opts[0]
	}

	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	if seeded, err := settingsService.SeedGeminiKey(context.Background(), cfg.GeminiAPIKey); err != nil {
		logger.Warn("failed to seed gemini api key", "error", err)
	} else if seeded {
		logger.Info("seeded gemini api key from environment")
	}
	settingsHandler := settings.NewHandler(settingsService)

	// Adapters: Dynamic
	var embedder indexing.Embedder = gemini.NewEmbedder(settingsService, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
	if o.Embedder != nil {
		embedder = o.Embedder
	}
	var llm LLM = gemini.NewChatModel(settingsService, cfg.GeminiAPIKey, cfg.GeminiChatModel)
	if o.LLM != nil {
		llm = o.LLM
	}
	rerankerClient := reranker.NewDynamicClient(settingsService, cfg.RerankAPIKey)
	scraperClient := scraper.NewClient(cfg.ScraperBaseURL, cfg.ScraperAPIToken, cfg.WebhookPublicURL)

	// Domain stores
	productRepo := product.NewPostgresRepo(db)
	reviewRepo := review.NewPostgresRepo(db)
	normalizer := review.NewNormalizer()

	scrapeJobService := scrapejob.NewService(scrapejob.NewPostgresRepo(db))
	scrapeJobHandler := scrapejob.NewHandler(scrapeJobService)

	// Indexing
	writer := indexing.NewWriter(embedder, vecStore, productRepo, cfg.IndexingConcurrency)
	reviewsIndexer := indexing.NewReviewsIndexer(writer)
	resourceIndexer := indexing.NewResourceIndexer(writer)

	// Feature: Dead letters
	jobService := job.NewService(job.NewPostgresRepo(db), taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Resources
	resourceService := resource.NewService(resource.NewPostgresRepo(db), taskPub, resourceIndexer, productRepo)
	resourceHandler := resource.NewHandler(resourceService)
	resourceConsumer := worker.NewResourceConsumer(resourceService, jobService)

	// Feature: Retrieval & Chat
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(embedder, vecStore, rerankerClient, settingsService, queryLogger)
	engine := ragchat.NewEngine(llm, retrievalService, cfg.ChatTopK)
	chatHandler := chat.NewHandler(chat.NewService(engine, chat.NewPostgresRepo(db), productRepo))

	// Feature: Webhook
	var locker webhook.RunLocker
	if o.Redis != nil {
		locker = redislock.New(o.Redis, "marketlens:run:", redislock.DefaultTTL)
	}
	webhookService := webhook.NewService(scrapeJobService, scraperClient, normalizer, reviewRepo, reviewsIndexer, productRepo, locker)
	webhookHandler := webhook.NewHandler(webhookService, cfg.WebhookSecret)

	// Feature: Refresh
	maxAge := time.Duration(cfg.ReviewStalenessDays) * 24 * time.Hour
	actors := scraper.Actors{
		review.SourceAmazon:     cfg.ScraperAmazonActor,
		review.SourceTrustpilot: cfg.ScraperTrustpilotActor,
	}
	refreshService := refresh.NewService(productRepo, scrapeJobService, scraperClient, actors, cfg.ScraperMaxReviews, maxAge)
	refreshHandler := refresh.NewHandler(refreshService)
	scheduler := refresh.NewScheduler(cfg.RefreshCron, productRepo, refreshService, maxAge)

	// Feature: Insights
	insightsHandler := insights.NewHandler(insights.NewService(productRepo, reviewRepo, retrievalService, llm))

	// Feature: Stats
	statsHandler := stats.NewHandler(scrapeJobService, jobService, vecStore)

	// Routes
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, middleware.CorrelationID(middleware.CORS(h)))
	}

	route("POST /webhooks/scraper", webhookHandler.Handle)
	route("POST /products/{id}/reviews/refresh", refreshHandler.Refresh)
	route("GET /products/{id}/insights", insightsHandler.Get)
	route("GET /scrape-jobs/latest", scrapeJobHandler.Latest)

	route("POST /chat", chatHandler.Chat)
	route("GET /chat/sessions/{id}/messages", chatHandler.Messages)

	route("POST /resources", resourceHandler.Create)
	route("POST /resources/upload", resourceHandler.Upload)
	route("GET /resources", resourceHandler.List)
	route("GET /resources/{id}", resourceHandler.Get)
	route("DELETE /resources/{id}", resourceHandler.Delete)

	route("GET /settings", settingsHandler.GetSettings)
	route("PUT /settings", settingsHandler.UpdateSettings)

	route("GET /jobs/failed", jobHandler.List)
	route("POST /jobs/{id}/retry", jobHandler.Retry)
	route("DELETE /jobs/{id}", jobHandler.Discard)

	route("GET /stats", statsHandler.GetStats)

	// Preflight for every route; CORS answers it before the no-op runs.
	route("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:          mux,
		ResourceService:  resourceService,
		ResourceConsumer: resourceConsumer,
		RefreshService:   refreshService,
		Scheduler:        scheduler,
		WebhookService:   webhookService,
		port:             cfg.ServerPort,
		products:         productRepo,
		reviews:          reviewRepo,
		normalize:        normalizer,
		indexer:          reviewsIndexer,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Reindex rebuilds the vector index of productID from the stored reviews,
// re-normalizing each row first. No scraping happens.
func (a *App) Reindex(ctx context.Context, productID string) (indexing.Result, error) {
	p, err := a.products.Get(ctx, productID)
	if err != nil {
		return indexing.Result{}, err
	}

	items, err := a.reviews.ListByProduct(ctx, productID)
	if err != nil {
		return indexing.Result{}, fmt.Errorf("list reviews: %w", err)
	}

	bySource := make(map[string][]review.RawItem)
	var order []string
	for _, it := range items {
		if _, ok := bySource[it.ProductSource]; !ok {
			order = append(order, it.ProductSource)
		}
		bySource[it.ProductSource] = append(bySource[it.ProductSource], it.Item)
	}

	var reviews []review.Review
	for _, ps := range order {
		reviews = append(reviews, a.normalize.Normalize(ctx, bySource[ps], productID, ps)...)
	}

	slog.InfoContext(ctx, "reindexing product", "product_id", productID, "reviews", len(reviews))
	return a.indexer.IndexProductReviews(ctx, reviews, p.Name, nil), nil
}
