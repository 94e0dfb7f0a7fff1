package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbook/internal/errors"
	"finbook/internal/pagination"
	"finbook/internal/services"
)

// SplitHandler handles shared transaction proposals and responses.
type SplitHandler struct {
	splitService services.SplitServicer
	auditService services.AuditServicer
}

// NewSplitHandler creates a new SplitHandler.
func NewSplitHandler(splitService services.SplitServicer, auditService services.AuditServicer) *SplitHandler {
	return &SplitHandler{splitService: splitService, auditService: auditService}
}

// SplitEntry is one counterparty's portion of a proposed split. Either an
// absolute amount or a percentage of the transaction total.
type SplitEntry struct {
	SharedWithUserID uint    `json:"shared_with_user_id" binding:"required"`
	Amount           int64   `json:"amount" binding:"omitempty,gt=0"`
	Percentage       float64 `json:"percentage" binding:"omitempty,gt=0,lte=100"`
}

// ProposeSplitRequest represents a split proposal.
type ProposeSplitRequest struct {
	TransactionID uint         `json:"transaction_id" binding:"required"`
	Splits        []SplitEntry `json:"splits" binding:"required,min=1,dive"`
	AffectsBank   bool         `json:"affects_bank"`
	Notes         string       `json:"notes" binding:"omitempty,max=500"`
}

// RespondSplitRequest accepts or rejects a share.
type RespondSplitRequest struct {
	Response string `json:"response" binding:"required,share_response"`
}

// ProposeSplit proposes splitting a transaction
// @Summary     Propose a split
// @Description Creates one pending share per counterparty. The sum of all
// @Description non-rejected shares of a transaction may never exceed the
// @Description transaction amount.
// @Tags        splits
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body ProposeSplitRequest true "Split proposal"
// @Success     201 {object} map[string]any
// @Failure     400 {object} ErrorResponse "Invalid input or split exceeds amount"
// @Failure     404 {object} ErrorResponse "Transaction or user not found"
// @Router      /splits [post]
func (h *SplitHandler) ProposeSplit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ProposeSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	splits := make([]services.SplitInput, 0, len(req.Splits))
	for _, sp := range req.Splits {
		splits = append(splits, services.SplitInput{
			SharedWithUserID: sp.SharedWithUserID,
			Amount:           sp.Amount,
			Percentage:       sp.Percentage,
		})
	}

	shares, err := h.splitService.Propose(userID, req.TransactionID, splits, req.AffectsBank, req.Notes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "propose_split", "transaction", req.TransactionID, c.ClientIP(), map[string]any{"shares": len(shares)})
	c.JSON(http.StatusCreated, gin.H{"shares": shares})
}

// RespondToSplit answers a share proposal
// @Summary     Respond to a share
// @Description Accepts or rejects a pending share. Only the designated
// @Description recipient may respond, and a share can be answered exactly
// @Description once.
// @Tags        splits
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Shared transaction ID"
// @Param       request body RespondSplitRequest true "accept or reject"
// @Success     200 {object} models.SharedTransaction
// @Failure     403 {object} ErrorResponse "Not the recipient"
// @Failure     404 {object} ErrorResponse "Share not found"
// @Failure     409 {object} ErrorResponse "Share already resolved"
// @Router      /splits/{id}/respond [post]
func (h *SplitHandler) RespondToSplit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}
	shareID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RespondSplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	share, err := h.splitService.Respond(userID, shareID, req.Response == "accept")
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "respond_split", "shared_transaction", share.ID, c.ClientIP(), map[string]any{"status": share.Status})
	c.JSON(http.StatusOK, share)
}

// ListCreatedSplits lists shares the user proposed
// @Summary     List proposed shares
// @Tags        splits
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.SharedTransaction]
// @Router      /splits/created [get]
func (h *SplitHandler) ListCreatedSplits(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.splitService.ListCreated(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListReceivedSplits lists shares proposed to the user
// @Summary     List received shares
// @Description Pending shares sort first so the inbox surfaces what needs a
// @Description response.
// @Tags        splits
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Success     200 {object} pagination.PageResponse[models.SharedTransaction]
// @Router      /splits/received [get]
func (h *SplitHandler) ListReceivedSplits(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.splitService.ListReceived(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
