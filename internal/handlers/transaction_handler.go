package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/pagination"
	"finbook/internal/services"
)

// TransactionHandler handles manual transaction entry, listing, and
// recategorization.
type TransactionHandler struct {
	postingService services.PostingServicer
	mappingService services.MappingServicer
	auditService   services.AuditServicer
}

// NewTransactionHandler creates a new TransactionHandler.
func NewTransactionHandler(postingService services.PostingServicer, mappingService services.MappingServicer, auditService services.AuditServicer) *TransactionHandler {
	return &TransactionHandler{
		postingService: postingService,
		mappingService: mappingService,
		auditService:   auditService,
	}
}

// CreateTransactionRequest represents a manual or cash entry.
type CreateTransactionRequest struct {
	Date          string `json:"date" binding:"required"`
	Direction     string `json:"direction" binding:"required,direction"`
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	Particulars   string `json:"particulars" binding:"required,max=255"`
	Narration     string `json:"narration" binding:"omitempty,max=500"`
	BankAccountID *uint  `json:"bank_account_id"`
	LedgerID      *uint  `json:"ledger_id"`
	// Draft entries are created unconfirmed and apply no balance change
	// until confirmed.
	Draft bool `json:"draft"`
}

// RecategorizeRequest moves a transaction to another ledger.
type RecategorizeRequest struct {
	LedgerID uint `json:"ledger_id" binding:"required"`
}

// ListTransactionsQuery holds the filter and pagination query parameters.
type ListTransactionsQuery struct {
	pagination.PageRequest
	BankAccountID *uint   `form:"bank_account_id"`
	LedgerID      *uint   `form:"ledger_id"`
	Direction     *string `form:"direction" binding:"omitempty,direction"`
	DateFrom      string  `form:"date_from"`
	DateTo        string  `form:"date_to"`
	Confirmed     *bool   `form:"confirmed"`
}

// CreateTransaction records a transaction
// @Summary     Create a transaction
// @Description Posts a manual or cash transaction. Confirmed entries apply
// @Description their balance delta atomically; drafts apply nothing until
// @Description confirmed.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateTransactionRequest true "Transaction data"
// @Success     201 {object} models.Transaction
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Bank account or ledger not found"
// @Router      /transactions [post]
func (h *TransactionHandler) CreateTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	source := models.SourceManual
	if req.BankAccountID == nil {
		source = models.SourceCash
	}

	in := services.PostInput{
		Date:          req.Date,
		Direction:     models.TransactionDirection(req.Direction),
		Amount:        req.Amount,
		Particulars:   req.Particulars,
		Narration:     req.Narration,
		BankAccountID: req.BankAccountID,
		LedgerID:      req.LedgerID,
		Source:        source,
	}

	var tx *models.Transaction
	if req.Draft {
		tx, err = h.postingService.CreateDraft(userID, in)
	} else {
		tx, err = h.postingService.Post(userID, in)
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	if tx.Confirmed && tx.LedgerID != nil {
		if err := h.mappingService.Upsert(userID, tx.Particulars, *tx.LedgerID, tx.Narration, 1.0); err != nil {
			respondWithError(c, err)
			return
		}
	}

	h.auditService.Log(userID, "create", "transaction", tx.ID, c.ClientIP(), map[string]any{"amount": tx.Amount, "direction": tx.Direction})
	c.JSON(http.StatusCreated, tx)
}

// ConfirmTransaction confirms a draft
// @Summary     Confirm a draft transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     409 {object} ErrorResponse "Already confirmed"
// @Router      /transactions/{id}/confirm [post]
func (h *TransactionHandler) ConfirmTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.postingService.Confirm(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "confirm", "transaction", tx.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, tx)
}

// RecategorizeTransaction moves a transaction to another ledger
// @Summary     Recategorize a transaction
// @Description Repoints the transaction at a different ledger. For confirmed
// @Description transactions the balance delta moves between ledgers in the
// @Description same operation.
// @Tags        transactions
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Transaction ID"
// @Param       request body RecategorizeRequest true "Target ledger"
// @Success     200 {object} models.Transaction
// @Failure     404 {object} ErrorResponse "Transaction or ledger not found"
// @Router      /transactions/{id}/recategorize [post]
func (h *TransactionHandler) RecategorizeTransaction(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RecategorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	tx, err := h.postingService.Recategorize(userID, transactionID, req.LedgerID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	// The corrected choice becomes the learned mapping for this
	// particulars text.
	if err := h.mappingService.Upsert(userID, tx.Particulars, req.LedgerID, tx.Narration, 1.0); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "recategorize", "transaction", tx.ID, c.ClientIP(), map[string]any{"ledger_id": req.LedgerID})
	c.JSON(http.StatusOK, tx)
}

// GetTransactionByID returns one transaction
// @Summary     Get a transaction
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Transaction ID"
// @Success     200 {object} models.Transaction
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /transactions/{id} [get]
func (h *TransactionHandler) GetTransactionByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	transactionID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.postingService.GetTransactionByID(userID, transactionID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListTransactions lists transactions with filters
// @Summary     List transactions
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Param       bank_account_id query int false "Filter by bank account"
// @Param       ledger_id query int false "Filter by ledger"
// @Param       direction query string false "Filter by direction" Enums(DEBIT, CREDIT)
// @Param       date_from query string false "Inclusive start date (YYYY-MM-DD)"
// @Param       date_to query string false "Inclusive end date (YYYY-MM-DD)"
// @Param       confirmed query bool false "Filter by confirmation state"
// @Success     200 {object} pagination.PageResponse[models.Transaction]
// @Router      /transactions [get]
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var query ListTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	query.Defaults()

	filter := services.TransactionFilter{
		BankAccountID: query.BankAccountID,
		LedgerID:      query.LedgerID,
		DateFrom:      query.DateFrom,
		DateTo:        query.DateTo,
		Confirmed:     query.Confirmed,
	}
	if query.Direction != nil {
		d := models.TransactionDirection(*query.Direction)
		filter.Direction = &d
	}

	page, err := h.postingService.ListTransactions(userID, filter, query.PageRequest)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetSummary aggregates confirmed transactions
// @Summary     Summarize transactions
// @Description Totals confirmed transactions per ledger over an optional date
// @Description range. Income ledgers contribute positive totals, expense
// @Description ledgers negative.
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Param       date_from query string false "Inclusive start date (YYYY-MM-DD)"
// @Param       date_to query string false "Inclusive end date (YYYY-MM-DD)"
// @Success     200 {object} services.Summary
// @Router      /transactions/summary [get]
func (h *TransactionHandler) GetSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.postingService.Summarize(userID, c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListMappings lists learned categorization mappings
// @Summary     List learned mappings
// @Tags        transactions
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} models.TransactionMapping
// @Router      /mappings [get]
func (h *TransactionHandler) ListMappings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	mappings, err := h.mappingService.ListByUser(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mappings": mappings})
}
