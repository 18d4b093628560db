package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/agrindo/pks_backend/config"
	"bitbucket.org/agrindo/pks_backend/middlewares"
	"bitbucket.org/agrindo/pks_backend/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := c.ClientIP()

	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func getRedisClient(redisAddress string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func registerRoutes(r *gin.Engine) {
	r.POST("/auth/register", registerHandler())
	r.POST("/auth/login", loginHandler())

	api := r.Group("/api/v1", middlewares.RequireAuth())

	api.POST("/users", createUserHandler())
	api.GET("/users/:id", getById(func(c *gin.Context, id int) (*models.User, error) {
		return models.GetUser(c.Request.Context(), id)
	}))

	api.POST("/material-categories", createJSON(func(c *gin.Context, input *models.NewMaterialCategory) (*models.MaterialCategory, error) {
		return models.CreateMaterialCategory(c.Request.Context(), input)
	}))
	api.PUT("/material-categories/:id", updateJSON(func(c *gin.Context, id int, input *models.NewMaterialCategory) (*models.MaterialCategory, error) {
		return models.UpdateMaterialCategory(c.Request.Context(), id, input)
	}))
	api.DELETE("/material-categories/:id", deleteById(func(c *gin.Context, id int) (*models.MaterialCategory, error) {
		return models.DeleteMaterialCategory(c.Request.Context(), id)
	}))
	api.GET("/material-categories", func(c *gin.Context) {
		results, err := models.ListMaterialCategory(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/units", createJSON(func(c *gin.Context, input *models.NewUnitOfMeasure) (*models.UnitOfMeasure, error) {
		return models.CreateUnitOfMeasure(c.Request.Context(), input)
	}))
	api.DELETE("/units/:id", deleteById(func(c *gin.Context, id int) (*models.UnitOfMeasure, error) {
		return models.DeleteUnitOfMeasure(c.Request.Context(), id)
	}))
	api.GET("/units", func(c *gin.Context) {
		results, err := models.ListUnitOfMeasure(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/materials", createJSON(func(c *gin.Context, input *models.NewMaterial) (*models.Material, error) {
		return models.CreateMaterial(c.Request.Context(), input)
	}))
	api.PUT("/materials/:id", updateJSON(func(c *gin.Context, id int, input *models.NewMaterial) (*models.Material, error) {
		return models.UpdateMaterial(c.Request.Context(), id, input)
	}))
	api.DELETE("/materials/:id", deleteById(func(c *gin.Context, id int) (*models.Material, error) {
		return models.DeleteMaterial(c.Request.Context(), id)
	}))
	api.GET("/materials/:id", getById(func(c *gin.Context, id int) (*models.Material, error) {
		return models.GetMaterial(c.Request.Context(), id)
	}))
	api.GET("/materials", func(c *gin.Context) {
		results, err := models.ListMaterial(c.Request.Context(), stringQuery(c, "name"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/suppliers", createJSON(func(c *gin.Context, input *models.NewSupplier) (*models.Supplier, error) {
		return models.CreateSupplier(c.Request.Context(), input)
	}))
	api.PUT("/suppliers/:id", updateJSON(func(c *gin.Context, id int, input *models.NewSupplier) (*models.Supplier, error) {
		return models.UpdateSupplier(c.Request.Context(), id, input)
	}))
	api.DELETE("/suppliers/:id", deleteById(func(c *gin.Context, id int) (*models.Supplier, error) {
		return models.DeleteSupplier(c.Request.Context(), id)
	}))
	api.GET("/suppliers/:id", getById(func(c *gin.Context, id int) (*models.Supplier, error) {
		return models.GetSupplier(c.Request.Context(), id)
	}))
	api.GET("/suppliers", func(c *gin.Context) {
		results, err := models.ListSupplier(c.Request.Context(), stringQuery(c, "name"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/buyers", createJSON(func(c *gin.Context, input *models.NewBuyer) (*models.Buyer, error) {
		return models.CreateBuyer(c.Request.Context(), input)
	}))
	api.PUT("/buyers/:id", updateJSON(func(c *gin.Context, id int, input *models.NewBuyer) (*models.Buyer, error) {
		return models.UpdateBuyer(c.Request.Context(), id, input)
	}))
	api.DELETE("/buyers/:id", deleteById(func(c *gin.Context, id int) (*models.Buyer, error) {
		return models.DeleteBuyer(c.Request.Context(), id)
	}))
	api.GET("/buyers", func(c *gin.Context) {
		results, err := models.ListBuyer(c.Request.Context(), stringQuery(c, "name"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/tangki", createJSON(func(c *gin.Context, input *models.NewTangki) (*models.Tangki, error) {
		return models.CreateTangki(c.Request.Context(), input)
	}))
	api.PUT("/tangki/:id", updateJSON(func(c *gin.Context, id int, input *models.NewTangki) (*models.Tangki, error) {
		return models.UpdateTangki(c.Request.Context(), id, input)
	}))
	api.DELETE("/tangki/:id", deleteById(func(c *gin.Context, id int) (*models.Tangki, error) {
		return models.DeleteTangki(c.Request.Context(), id)
	}))
	api.GET("/tangki/:id", getById(func(c *gin.Context, id int) (*models.Tangki, error) {
		return models.GetTangki(c.Request.Context(), id)
	}))
	api.GET("/tangki", func(c *gin.Context) {
		results, err := models.ListTangki(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/stock/movements", recordStockMovementHandler())
	api.GET("/stock/movements", listStockMovementHandler())
	api.GET("/stock/balances", listStockBalanceHandler())
	api.GET("/stock/balances/:id", getStockBalanceHandler())
	api.GET("/stock/summary", getStockSummaryHandler())

	api.POST("/tangki-transactions", recordTangkiTransactionHandler())
	api.GET("/tangki-transactions", listTangkiTransactionHandler())
	api.POST("/tangki-transfers", transferTangkiStockHandler())
	api.GET("/tangki-summary", getTangkiStockSummaryHandler())

	api.POST("/purchase-requests", createJSON(func(c *gin.Context, input *models.NewPurchaseRequest) (*models.PurchaseRequest, error) {
		return models.CreatePurchaseRequest(c.Request.Context(), input)
	}))
	api.PUT("/purchase-requests/:id/status", updateStatusPurchaseRequestHandler())
	api.GET("/purchase-requests/:id", getById(func(c *gin.Context, id int) (*models.PurchaseRequest, error) {
		return models.GetPurchaseRequest(c.Request.Context(), id)
	}))
	api.GET("/purchase-requests", func(c *gin.Context) {
		var status *models.PurchaseRequestStatus
		if v := c.Query("status"); v != "" {
			s := models.PurchaseRequestStatus(v)
			status = &s
		}
		results, err := models.ListPurchaseRequest(c.Request.Context(), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/purchase-orders", createJSON(func(c *gin.Context, input *models.NewPurchaseOrder) (*models.PurchaseOrder, error) {
		return models.CreatePurchaseOrder(c.Request.Context(), input)
	}))
	api.PUT("/purchase-orders/:id/status", updateStatusPurchaseOrderHandler())
	api.GET("/purchase-orders/:id", getById(func(c *gin.Context, id int) (*models.PurchaseOrder, error) {
		return models.GetPurchaseOrder(c.Request.Context(), id)
	}))
	api.GET("/purchase-orders", func(c *gin.Context) {
		var status *models.PurchaseOrderStatus
		if v := c.Query("status"); v != "" {
			s := models.PurchaseOrderStatus(v)
			status = &s
		}
		results, err := models.ListPurchaseOrder(c.Request.Context(), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/goods-receipts", createJSON(func(c *gin.Context, input *models.NewGoodsReceipt) (*models.GoodsReceipt, error) {
		receipt, err := models.CreateGoodsReceiptFromPurchaseOrder(c.Request.Context(), input)
		if err == nil {
			invalidateStockSummaryCache(c)
		}
		return receipt, err
	}))
	api.GET("/goods-receipts/:id", getById(func(c *gin.Context, id int) (*models.GoodsReceipt, error) {
		return models.GetGoodsReceipt(c.Request.Context(), id)
	}))
	api.GET("/goods-receipts", func(c *gin.Context) {
		results, err := models.ListGoodsReceipt(c.Request.Context(), intQuery(c, "purchase_order_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/store-requests", createJSON(func(c *gin.Context, input *models.NewStoreRequest) (*models.StoreRequest, error) {
		return models.CreateStoreRequest(c.Request.Context(), input)
	}))
	api.PUT("/store-requests/:id/status", updateStatusStoreRequestHandler())
	api.GET("/store-requests/:id", getById(func(c *gin.Context, id int) (*models.StoreRequest, error) {
		return models.GetStoreRequest(c.Request.Context(), id)
	}))
	api.GET("/store-requests", func(c *gin.Context) {
		var status *models.StoreRequestStatus
		if v := c.Query("status"); v != "" {
			s := models.StoreRequestStatus(v)
			status = &s
		}
		results, err := models.ListStoreRequest(c.Request.Context(), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.POST("/goods-issues", createJSON(func(c *gin.Context, input *models.NewGoodsIssue) (*models.GoodsIssue, error) {
		issue, err := models.CreateGoodsIssueFromStoreRequest(c.Request.Context(), input)
		if err == nil {
			invalidateStockSummaryCache(c)
		}
		return issue, err
	}))
	api.GET("/goods-issues/:id", getById(func(c *gin.Context, id int) (*models.GoodsIssue, error) {
		return models.GetGoodsIssue(c.Request.Context(), id)
	}))
	api.GET("/goods-issues", func(c *gin.Context) {
		results, err := models.ListGoodsIssue(c.Request.Context(), intQuery(c, "store_request_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	})

	api.GET("/reports/stock-summary", stockSummaryReportHandler())
	api.GET("/reports/tangki-stock", tangkiStockReportHandler())

	// Ops tooling (admin triggered): detect ledger/snapshot drift.
	api.POST("/internal/ops/reconcile", middlewares.RequireAdmin(), runConsistencyChecksHandler())
	api.GET("/internal/ops/reconciliation-reports", middlewares.RequireAdmin(), listReconciliationReportsHandler())
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so the platform considers the instance
	// healthy. Until the DB is ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production requires an explicit allowlist via CORS_ALLOWED_ORIGINS.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "X-Correlation-Id")
	corsConfig.AddExposeHeaders("Content-Length", "X-Correlation-Id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	// Optional rate limiting.
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	registerRoutes(r)
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can run DDL that blocks tables. Allow disabling migrations
	// on startup and running them as a separate job instead.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
