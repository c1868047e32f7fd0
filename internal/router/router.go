package router

import (
	_ "embed"
	"net/http"
	"time"

	"sostrack/internal/config"
	"sostrack/internal/handler"
	"sostrack/internal/infra"
	"sostrack/internal/middleware"
	"sostrack/internal/repository"
	"sostrack/internal/service"
	"sostrack/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

//go:embed openapi.json
var openAPIDoc []byte

// Services is the domain layer shared by the HTTP routes and the background
// goroutines started in main.
type Services struct {
	Ledger     *service.Ledger
	Categories service.CategoryService
	Products   service.ProductService
	Batches    service.BatchService
	Imports    service.ImportService
}

// NewServices wires the services over store. Low-stock alerts go through
// dispatcher, which may be backed by a nil Redis client.
func NewServices(cfg *config.Config, store repository.Store, dispatcher *worker.Dispatcher) *Services {
	ledger := service.NewLedger(store, dispatcher)
	categories := service.NewCategoryService(store)
	return &Services{
		Ledger:     ledger,
		Categories: categories,
		Products:   service.NewProductService(store, categories, ledger),
		Batches:    service.NewBatchService(store, ledger, cfg.Retention()),
		Imports:    service.NewImportService(store, ledger),
	}
}

// New returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Store ← Postgres/Mongo/memory (+ Redis)
func New(cfg *config.Config, svcs *Services, store repository.Store, rdb *redis.Client, mailCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.ErrorHandler())
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimiter(cfg.RateLimit, time.Minute))
	}

	categoriesH := handler.NewCategoriesHandler(svcs.Categories)
	productsH := handler.NewProductsHandler(svcs.Products)
	batchesH := handler.NewBatchesHandler(svcs.Batches)
	importsH := handler.NewImportsHandler(svcs.Imports, cfg.CSVMaxBytes)

	r.GET("/health", handler.Health(store, rdb, mailCB))

	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret))
	{
		cats := v1.Group("/categories")
		{
			cats.GET("", categoriesH.List)
			cats.POST("", categoriesH.Create)
			cats.POST("/:id/containers", categoriesH.AddContainer)
		}

		prods := v1.Group("/products")
		{
			prods.GET("", productsH.List)
			prods.POST("", productsH.Create)
			prods.GET("/:id", productsH.Get)
			prods.PUT("/:id/inventory", productsH.UpdateInventory)
			prods.DELETE("/:id", productsH.Delete)
			prods.GET("/:id/history", productsH.History)
		}

		batches := v1.Group("/batches")
		{
			batches.GET("", batchesH.List)
			batches.POST("", batchesH.StartRun)
			batches.POST("/delete", batchesH.BulkDelete)
			batches.POST("/sweep", batchesH.Sweep)
			batches.POST("/:id/begin", batchesH.Begin)
			batches.POST("/:id/package", batchesH.MarkPackaged)
			batches.POST("/:id/finalize", batchesH.Finalize)
		}

		imports := v1.Group("/imports")
		{
			imports.POST("/parse", importsH.Parse)
			imports.POST("/preview", importsH.Preview)
			imports.POST("/commit", importsH.Commit)
		}

		v1.GET("/csv-files/:id", importsH.GetFile)
		v1.PUT("/csv-files/:id", importsH.ReplaceFile)
	}

	// API document and Swagger UI, outside production only
	if cfg.Env != "production" {
		r.GET("/openapi.json", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", openAPIDoc)
		})
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi.json")))
	}

	return r
}
