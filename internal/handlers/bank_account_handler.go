package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/services"
)

// BankAccountHandler handles bank account requests.
type BankAccountHandler struct {
	accountService services.BankAccountServicer
	auditService   services.AuditServicer
}

// NewBankAccountHandler creates a new BankAccountHandler.
func NewBankAccountHandler(accountService services.BankAccountServicer, auditService services.AuditServicer) *BankAccountHandler {
	return &BankAccountHandler{accountService: accountService, auditService: auditService}
}

// CreateBankAccountRequest represents the account creation payload.
type CreateBankAccountRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	AccountNumber  string `json:"account_number" binding:"required,max=32"`
	Type           string `json:"type" binding:"required,bank_account_type"`
	OpeningBalance int64  `json:"opening_balance"`
}

// UpdateBankAccountRequest represents the account update payload.
type UpdateBankAccountRequest struct {
	Name     *string `json:"name" binding:"omitempty,max=100"`
	Type     *string `json:"type" binding:"omitempty,bank_account_type"`
	IsActive *bool   `json:"is_active"`
}

// BankAccountResponse is the display shape of a bank account. The account
// number is always masked.
type BankAccountResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	AccountNumber  string `json:"account_number"`
	Type           string `json:"type"`
	OpeningBalance int64  `json:"opening_balance"`
	CurrentBalance int64  `json:"current_balance"`
	IsActive       bool   `json:"is_active"`
}

func toBankAccountResponse(a *models.BankAccount) BankAccountResponse {
	return BankAccountResponse{
		ID:             a.ID,
		Name:           a.Name,
		AccountNumber:  a.MaskedAccountNumber(),
		Type:           string(a.Type),
		OpeningBalance: a.OpeningBalance,
		CurrentBalance: a.CurrentBalance,
		IsActive:       a.IsActive,
	}
}

// CreateBankAccount creates a bank account
// @Summary     Create a bank account
// @Tags        bank-accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateBankAccountRequest true "Bank account data"
// @Success     201 {object} BankAccountResponse
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Duplicate account number"
// @Router      /bank-accounts [post]
func (h *BankAccountHandler) CreateBankAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	account, err := h.accountService.CreateBankAccount(userID, req.Name, req.AccountNumber, models.BankAccountType(req.Type), req.OpeningBalance)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "create", "bank_account", account.ID, c.ClientIP(), map[string]any{"name": account.Name})
	c.JSON(http.StatusCreated, toBankAccountResponse(account))
}

// GetUserBankAccounts lists the user's bank accounts
// @Summary     List bank accounts
// @Tags        bank-accounts
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} BankAccountResponse
// @Router      /bank-accounts [get]
func (h *BankAccountHandler) GetUserBankAccounts(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accounts, err := h.accountService.GetUserBankAccounts(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	out := make([]BankAccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, toBankAccountResponse(&accounts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"bank_accounts": out})
}

// GetBankAccountByID returns one bank account
// @Summary     Get a bank account
// @Tags        bank-accounts
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Bank account ID"
// @Success     200 {object} BankAccountResponse
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /bank-accounts/{id} [get]
func (h *BankAccountHandler) GetBankAccountByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	account, err := h.accountService.GetBankAccountByID(userID, accountID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBankAccountResponse(account))
}

// UpdateBankAccount updates a bank account
// @Summary     Update a bank account
// @Tags        bank-accounts
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Bank account ID"
// @Param       request body UpdateBankAccountRequest true "Fields to update"
// @Success     200 {object} BankAccountResponse
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /bank-accounts/{id} [put]
func (h *BankAccountHandler) UpdateBankAccount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateBankAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var accountType *models.BankAccountType
	if req.Type != nil {
		t := models.BankAccountType(*req.Type)
		accountType = &t
	}

	account, err := h.accountService.UpdateBankAccount(userID, accountID, req.Name, accountType, req.IsActive)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "update", "bank_account", account.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, toBankAccountResponse(account))
}
