package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/services"
)

// LedgerHandler handles ledger category requests.
type LedgerHandler struct {
	ledgerService services.LedgerServicer
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerService services.LedgerServicer) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

// CreateLedgerRequest represents the ledger creation payload.
type CreateLedgerRequest struct {
	Name string `json:"name" binding:"required,max=100"`
	Type string `json:"type" binding:"required,ledger_type"`
}

// UpdateLedgerRequest represents the ledger rename payload. The type of a
// ledger is fixed at creation.
type UpdateLedgerRequest struct {
	Name *string `json:"name" binding:"omitempty,max=100"`
}

// CreateLedger creates a ledger
// @Summary     Create a ledger
// @Description Creates a named category for transactions. Names are unique
// @Description per user, case-insensitively.
// @Tags        ledgers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateLedgerRequest true "Ledger data"
// @Success     201 {object} models.Ledger
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     409 {object} ErrorResponse "Duplicate ledger name"
// @Router      /ledgers [post]
func (h *LedgerHandler) CreateLedger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ledger, err := h.ledgerService.CreateLedger(userID, req.Name, models.LedgerType(req.Type))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ledger)
}

// GetUserLedgers lists the user's ledgers
// @Summary     List ledgers
// @Tags        ledgers
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array} models.Ledger
// @Router      /ledgers [get]
func (h *LedgerHandler) GetUserLedgers(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgers, err := h.ledgerService.GetUserLedgers(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ledgers": ledgers})
}

// GetLedgerByID returns one ledger
// @Summary     Get a ledger
// @Tags        ledgers
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Ledger ID"
// @Success     200 {object} models.Ledger
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /ledgers/{id} [get]
func (h *LedgerHandler) GetLedgerByID(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledger, err := h.ledgerService.GetLedgerByID(userID, ledgerID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// UpdateLedger renames a ledger
// @Summary     Rename a ledger
// @Tags        ledgers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Ledger ID"
// @Param       request body UpdateLedgerRequest true "Fields to update"
// @Success     200 {object} models.Ledger
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     409 {object} ErrorResponse "Duplicate ledger name"
// @Router      /ledgers/{id} [put]
func (h *LedgerHandler) UpdateLedger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	ledger, err := h.ledgerService.UpdateLedger(userID, ledgerID, req.Name)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}
