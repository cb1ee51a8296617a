package main

import (
	"context"
	"log"
	"time"

	"github.com/LovationAdmin/advisor-api/config"
	"github.com/LovationAdmin/advisor-api/handlers"
	"github.com/LovationAdmin/advisor-api/middleware"
	"github.com/LovationAdmin/advisor-api/routes"
	"github.com/LovationAdmin/advisor-api/services"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration:", err)
	}

	db, err := config.InitDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	demoStore := services.NewDemoFinanceStore()

	var (
		liveStore     services.FinanceStore
		cache         services.SummaryCache
		counters      services.CounterStore
		waitlistStore services.WaitlistStore
		conversations services.ConversationLog
	)

	if db != nil {
		defer db.Close()
		log.Println("✅ Database connected successfully")

		if err := config.RunMigrations(db); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}

		liveStore = services.NewPostgresFinanceStore(db)
		cache = services.NewPostgresSummaryCache(db)
		counters = services.NewPostgresCounterStore(db)
		waitlistStore = services.NewPostgresWaitlistStore(db)
		conversations = services.NewPostgresConversationLog(db)
	} else {
		log.Println("⚠️  DATABASE_URL not set - running with demo profiles and in-memory stores only")

		cache = services.NewMemorySummaryCache()
		counters = services.NewMemoryCounterStore()
		waitlistStore = services.NewMemoryWaitlistStore()
	}

	go scheduleCacheCleaning(cache)

	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	middleware.StartCounterCleanup(counters, stopCleanup)

	wsHandler := handlers.NewWSHandler(cfg.JWTSecret)
	stores := services.StoreSelector{Demo: demoStore, Live: liveStore}

	if cfg.LLM.APIKey == "" {
		log.Println("⚠️  ANTHROPIC_API_KEY not set - chat and summaries will fail")
	}
	advisor := &services.AdvisorService{
		Assembler: services.NewContextAssembler(stores),
		Stores:    stores,
		LLM: services.NewLLMGateway(services.LLMConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}),
		Effects:       services.NewEffectApplier(cfg.DownPaymentAllocation, cache, wsHandler),
		Cache:         cache,
		Conversations: conversations,
		CacheTTL:      cfg.SummaryCacheTTL,
	}
	log.Printf("🏠 Down payment target mix: %s", cfg.DownPaymentAllocation)

	waitlist := services.NewWaitlistService(
		waitlistStore,
		counters,
		services.NewTurnstileVerifier(cfg.Turnstile.SecretKey, cfg.Turnstile.VerifyURL, cfg.IsProduction()),
	)
	if mailer := services.NewEmailService(cfg.Email.ResendAPIKey, cfg.Email.FromEmail, cfg.FrontendURL); mailer.Configured() {
		waitlist.Mailer = mailer
	} else {
		log.Println("⚠️  RESEND_API_KEY not set, waitlist confirmation emails disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	allowedOrigins := []string{cfg.FrontendURL}
	log.Printf("🌍 CORS: Allowing origins:")
	for _, origin := range allowedOrigins {
		log.Printf("   - %s", origin)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "apikey", "x-client-info"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		log.Printf("📨 %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
		c.Next()
		log.Printf("✅ %s %s - %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	router.Use(middleware.RateLimiter(counters, cfg.GlobalRateLimit, time.Minute))

	functions := router.Group("/functions/v1")
	{
		routes.SetupAdvisorRoutes(functions, handlers.NewAdvisorHandler(advisor, demoStore), cfg.JWTSecret)
		routes.SetupWaitlistRoutes(functions, handlers.NewWaitlistHandler(waitlist))
		if conversations != nil {
			routes.SetupConversationRoutes(functions, handlers.NewConversationHandler(conversations), cfg.JWTSecret)
		}
	}
	routes.SetupWSRoutes(router, wsHandler, cfg.JWTSecret)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "healthy",
			"version":  version,
			"database": db != nil,
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	utils.LogStartup("advisor-api", version, cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func scheduleCacheCleaning(cache services.SummaryCache) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	cleanExpiredCache(cache)
	for range ticker.C {
		cleanExpiredCache(cache)
	}
}

func cleanExpiredCache(cache services.SummaryCache) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := cache.CleanExpired(ctx)
	if err != nil {
		log.Printf("❌ Cache cleanup failed: %v", err)
		return
	}
	if rows > 0 {
		log.Printf("🧹 Cleaned %d expired cache entries", rows)
	}
}
