package main

import (
	"fmt"
	"net/http"
	"os"

	"finbook/internal/config"
	"finbook/internal/database"
	"finbook/internal/handlers"
	"finbook/internal/logger"
	"finbook/internal/middleware"
	"finbook/internal/oracle"
	"finbook/internal/services"
	"finbook/internal/validator"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "finbook/internal/docs" // Import swagger docs
)

// @title           Finbook API
// @version         1.0
// @description     Finbook is a personal finance backend: bank accounts, ledgers, statement imports with assisted categorization, and shared expense settlement.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	auditService := services.NewAuditService(db)
	bankAccountService := services.NewBankAccountService(db)
	ledgerService := services.NewLedgerService(db)
	postingService := services.NewPostingService(db)
	mappingService := services.NewMappingService(db)
	splitService := services.NewSplitService(db)

	var generator oracle.Generator
	if g := oracle.NewGeminiGenerator(appConfig.GeminiAPIKey, appConfig.GeminiModel); g != nil {
		generator = g
	} else {
		log.Warn("GEMINI_API_KEY not set; statement categorization and document extraction are disabled")
	}
	oracleAdapter := oracle.NewAdapter(generator, appConfig.OracleTimeout)

	importService := services.NewImportService(db, postingService, ledgerService, mappingService, bankAccountService, oracleAdapter)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, db)
	bankAccountHandler := handlers.NewBankAccountHandler(bankAccountService, auditService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	transactionHandler := handlers.NewTransactionHandler(postingService, mappingService, auditService)
	importHandler := handlers.NewImportHandler(importService, auditService)
	splitHandler := handlers.NewSplitHandler(splitService, auditService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Bank account routes
	bankAccounts := protected.Group("/bank-accounts")
	bankAccounts.POST("", bankAccountHandler.CreateBankAccount)
	bankAccounts.GET("", bankAccountHandler.GetUserBankAccounts)
	bankAccounts.GET("/:id", bankAccountHandler.GetBankAccountByID)
	bankAccounts.PUT("/:id", bankAccountHandler.UpdateBankAccount)

	// Ledger routes
	ledgers := protected.Group("/ledgers")
	ledgers.POST("", ledgerHandler.CreateLedger)
	ledgers.GET("", ledgerHandler.GetUserLedgers)
	ledgers.GET("/:id", ledgerHandler.GetLedgerByID)
	ledgers.PUT("/:id", ledgerHandler.UpdateLedger)

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/summary", transactionHandler.GetSummary)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.POST("/:id/confirm", transactionHandler.ConfirmTransaction)
	transactions.POST("/:id/recategorize", transactionHandler.RecategorizeTransaction)

	// Learned categorization mappings
	protected.GET("/mappings", transactionHandler.ListMappings)

	// Statement import routes
	imports := protected.Group("/imports")
	imports.POST("", importHandler.StartImport)
	imports.POST("/upload", importHandler.UploadStatement)
	imports.GET("/:reference", importHandler.GetBatch)
	imports.POST("/:reference/bank", importHandler.ConfirmBank)
	imports.POST("/:reference/confirm", importHandler.ConfirmNext)
	imports.POST("/:reference/skip", importHandler.SkipItem)
	imports.POST("/:reference/back", importHandler.BackItem)
	imports.POST("/:reference/save-all", importHandler.SaveAllRemaining)
	imports.POST("/:reference/cancel", importHandler.CancelBatch)

	// Shared transaction routes
	splits := protected.Group("/splits")
	splits.POST("", splitHandler.ProposeSplit)
	splits.GET("/created", splitHandler.ListCreatedSplits)
	splits.GET("/received", splitHandler.ListReceivedSplits)
	splits.POST("/:id/respond", splitHandler.RespondToSplit)

	log.Infof("Starting Finbook backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
