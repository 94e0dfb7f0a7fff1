package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"finbook/internal/handlers"
	"finbook/internal/logger"
	"finbook/internal/middleware"
	"finbook/internal/models"
	"finbook/internal/oracle"
	"finbook/internal/services"
	"finbook/internal/validator"
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.BankAccount{},
		&models.Ledger{},
		&models.Transaction{},
		&models.SharedTransaction{},
		&models.TransactionMapping{},
		&models.ImportBatch{},
		&models.ImportItem{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite. The categorization oracle is unconfigured, so import suggestions
// come from the mapping cache, the fuzzy matcher, or the uncategorized
// fallback.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	return setupAppWithGenerator(t, nil)
}

// setupAppWithGenerator is setupApp with a caller-supplied oracle generator.
func setupAppWithGenerator(t *testing.T, gen oracle.Generator) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)

	// Services
	userService := services.NewUserService(db)
	auditService := services.NewAuditService(db)
	bankAccountService := services.NewBankAccountService(db)
	ledgerService := services.NewLedgerService(db)
	postingService := services.NewPostingService(db)
	mappingService := services.NewMappingService(db)
	splitService := services.NewSplitService(db)
	oracleAdapter := oracle.NewAdapter(gen, time.Second)
	importService := services.NewImportService(db, postingService, ledgerService, mappingService, bankAccountService, oracleAdapter)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, db)
	bankAccountHandler := handlers.NewBankAccountHandler(bankAccountService, auditService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	transactionHandler := handlers.NewTransactionHandler(postingService, mappingService, auditService)
	importHandler := handlers.NewImportHandler(importService, auditService)
	splitHandler := handlers.NewSplitHandler(splitService, auditService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	bankAccounts := protected.Group("/bank-accounts")
	bankAccounts.POST("", bankAccountHandler.CreateBankAccount)
	bankAccounts.GET("", bankAccountHandler.GetUserBankAccounts)
	bankAccounts.GET("/:id", bankAccountHandler.GetBankAccountByID)
	bankAccounts.PUT("/:id", bankAccountHandler.UpdateBankAccount)

	ledgers := protected.Group("/ledgers")
	ledgers.POST("", ledgerHandler.CreateLedger)
	ledgers.GET("", ledgerHandler.GetUserLedgers)
	ledgers.GET("/:id", ledgerHandler.GetLedgerByID)
	ledgers.PUT("/:id", ledgerHandler.UpdateLedger)

	transactions := protected.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/summary", transactionHandler.GetSummary)
	transactions.GET("/:id", transactionHandler.GetTransactionByID)
	transactions.POST("/:id/confirm", transactionHandler.ConfirmTransaction)
	transactions.POST("/:id/recategorize", transactionHandler.RecategorizeTransaction)

	protected.GET("/mappings", transactionHandler.ListMappings)

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

	splits := protected.Group("/splits")
	splits.POST("", splitHandler.ProposeSplit)
	splits.GET("/created", splitHandler.ListCreatedSplits)
	splits.GET("/received", splitHandler.ListReceivedSplits)
	splits.POST("/:id/respond", splitHandler.RespondToSplit)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// registerUser registers a new user and returns the access token, refresh token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken string, userID float64) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(float64)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// createBankAccount creates a bank account and returns its ID.
func (app *testApp) createBankAccount(t *testing.T, token, name, number string, openingBalance int64) float64 {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"account_number":%q,"type":"savings","opening_balance":%d}`, name, number, openingBalance)
	rec := app.request("POST", "/api/v1/bank-accounts", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bank account failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(float64)
}

// createLedger creates a ledger and returns its ID.
func (app *testApp) createLedger(t *testing.T, token, name, ledgerType string) float64 {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"type":%q}`, name, ledgerType)
	rec := app.request("POST", "/api/v1/ledgers", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ledger failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["id"].(float64)
}
