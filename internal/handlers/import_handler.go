package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/services"
)

// maxStatementSize caps uploaded statement documents at 10 MiB.
const maxStatementSize = 10 << 20

// ImportHandler drives the statement review flow over HTTP. Every mutation
// addresses the batch by its opaque reference; the cursor lives server-side.
type ImportHandler struct {
	importService services.ImportServicer
	auditService  services.AuditServicer
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(importService services.ImportServicer, auditService services.AuditServicer) *ImportHandler {
	return &ImportHandler{importService: importService, auditService: auditService}
}

// StartImportRequest begins a batch from text or tabular statement data.
// Exactly one of text and rows must be provided, selected by kind.
type StartImportRequest struct {
	Kind string     `json:"kind" binding:"required,statement_kind"`
	Text string     `json:"text"`
	Rows [][]string `json:"rows"`
}

// ConfirmBankRequest binds a batch to one of the user's bank accounts.
// A zero or omitted account accepts the detected pre-selection when one
// exists, otherwise the batch proceeds as a cash import. create_account
// takes precedence and makes a fresh account to bind to.
type ConfirmBankRequest struct {
	BankAccountID uint               `json:"bank_account_id"`
	CreateAccount *NewAccountRequest `json:"create_account" binding:"omitempty"`
}

// NewAccountRequest asks for a bank account to be created as part of a
// bank confirmation.
type NewAccountRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	AccountNumber  string `json:"account_number" binding:"required,min=4,max=30"`
	Type           string `json:"type" binding:"required,bank_account_type"`
	OpeningBalance int64  `json:"opening_balance"`
}

// NewLedgerRequest asks for a ledger to be created as part of a confirm.
type NewLedgerRequest struct {
	Name string `json:"name" binding:"required,max=100"`
	Type string `json:"type" binding:"required,ledger_type"`
}

// ConfirmItemRequest carries optional edits applied to the current item
// before it is posted. create_ledger takes precedence over ledger_id.
type ConfirmItemRequest struct {
	LedgerID     *uint             `json:"ledger_id"`
	Narration    *string           `json:"narration" binding:"omitempty,max=500"`
	Date         *string           `json:"date"`
	Amount       *int64            `json:"amount" binding:"omitempty,gt=0"`
	Direction    *string           `json:"direction" binding:"omitempty,direction"`
	CreateLedger *NewLedgerRequest `json:"create_ledger"`
}

// StartImport begins a review batch from text or rows
// @Summary     Start a statement import
// @Description Extracts transactions from free-form text or tabular rows and
// @Description opens a review batch awaiting bank confirmation. If nothing
// @Description can be extracted no batch is created.
// @Tags        imports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body StartImportRequest true "Statement data"
// @Success     201 {object} models.ImportBatch
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     422 {object} ErrorResponse "Nothing extracted"
// @Router      /imports [post]
func (h *ImportHandler) StartImport(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var batch *models.ImportBatch
	switch req.Kind {
	case "text":
		if req.Text == "" {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "text is required for kind=text"))
			return
		}
		batch, err = h.importService.StartText(c.Request.Context(), userID, req.Text)
	case "tabular":
		if len(req.Rows) == 0 {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "rows are required for kind=tabular"))
			return
		}
		batch, err = h.importService.StartTabular(c.Request.Context(), userID, req.Rows)
	default:
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "kind=pdf uploads go through /imports/upload"))
		return
	}
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "start_import", "import_batch", batch.ID, c.ClientIP(), map[string]any{"kind": req.Kind, "items": batch.ItemCount})
	c.JSON(http.StatusCreated, batch)
}

// UploadStatement begins a review batch from an uploaded document
// @Summary     Upload a statement document
// @Description Sends the document through the extraction oracle and opens a
// @Description review batch awaiting bank confirmation.
// @Tags        imports
// @Accept      multipart/form-data
// @Produce     json
// @Security    BearerAuth
// @Param       file formData file true "Statement document (PDF)"
// @Success     201 {object} models.ImportBatch
// @Failure     400 {object} ErrorResponse "Invalid upload"
// @Failure     422 {object} ErrorResponse "Nothing extracted"
// @Failure     502 {object} ErrorResponse "Oracle unavailable or malformed response"
// @Failure     503 {object} ErrorResponse "Oracle not configured"
// @Router      /imports/upload [post]
func (h *ImportHandler) UploadStatement(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "a file upload is required"))
		return
	}
	if fileHeader.Size > maxStatementSize {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "file exceeds the 10 MiB limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxStatementSize))
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrInternalServer, err))
		return
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	batch, err := h.importService.StartDocument(c.Request.Context(), userID, mimeType, data)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "start_import", "import_batch", batch.ID, c.ClientIP(), map[string]any{"kind": "pdf", "items": batch.ItemCount})
	c.JSON(http.StatusCreated, batch)
}

// GetBatch returns a batch with its items
// @Summary     Get an import batch
// @Tags        imports
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Router      /imports/{reference} [get]
func (h *ImportHandler) GetBatch(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	batch, err := h.importService.GetBatch(userID, c.Param("reference"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// ConfirmBank binds a batch to a bank account and starts review
// @Summary     Confirm the target bank account
// @Description Moves the batch from bank confirmation into review. Every item
// @Description receives a categorization suggestion before the batch is
// @Description returned. Omitting the bank account accepts the detected
// @Description pre-selection if one exists, otherwise the import proceeds
// @Description as a cash import with no bank balance effects.
// @Tags        imports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Param       request body ConfirmBankRequest false "Bank account"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch or bank account not found"
// @Failure     409 {object} ErrorResponse "Batch not awaiting bank confirmation"
// @Router      /imports/{reference}/bank [post]
func (h *ImportHandler) ConfirmBank(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ConfirmBankRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	var create *services.NewBankAccount
	if req.CreateAccount != nil {
		create = &services.NewBankAccount{
			Name:           req.CreateAccount.Name,
			AccountNumber:  req.CreateAccount.AccountNumber,
			Type:           models.BankAccountType(req.CreateAccount.Type),
			OpeningBalance: req.CreateAccount.OpeningBalance,
		}
	}

	batch, err := h.importService.ConfirmBank(c.Request.Context(), userID, c.Param("reference"), req.BankAccountID, create)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "confirm_bank", "import_batch", batch.ID, c.ClientIP(), map[string]any{"bank_account_id": req.BankAccountID})
	c.JSON(http.StatusOK, batch)
}

// ConfirmNext posts the item at the cursor and advances
// @Summary     Confirm the current item
// @Description Applies any edits to the item at the cursor, posts it, and
// @Description advances. Posting the last item completes the batch.
// @Tags        imports
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Param       request body ConfirmItemRequest false "Optional edits"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Failure     409 {object} ErrorResponse "Batch not in review or item already posted"
// @Router      /imports/{reference}/confirm [post]
func (h *ImportHandler) ConfirmNext(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var edit *services.ItemEdit
	if c.Request.ContentLength > 0 {
		var req ConfirmItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
		edit = &services.ItemEdit{
			LedgerID:  req.LedgerID,
			Narration: req.Narration,
			Date:      req.Date,
			Amount:    req.Amount,
		}
		if req.Direction != nil {
			d := models.TransactionDirection(*req.Direction)
			edit.Direction = &d
		}
		if req.CreateLedger != nil {
			edit.CreateLedger = &services.NewLedger{
				Name: req.CreateLedger.Name,
				Type: models.LedgerType(req.CreateLedger.Type),
			}
		}
	}

	batch, err := h.importService.ConfirmNext(userID, c.Param("reference"), edit)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// SkipItem advances past the current item without posting
// @Summary     Skip the current item
// @Tags        imports
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Failure     409 {object} ErrorResponse "Batch not in review"
// @Router      /imports/{reference}/skip [post]
func (h *ImportHandler) SkipItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	batch, err := h.importService.Skip(userID, c.Param("reference"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// BackItem moves the cursor to the previous item
// @Summary     Step back to the previous item
// @Description Moves the cursor back one position. A previously skipped item
// @Description becomes pending again; posted items stay posted.
// @Tags        imports
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Failure     409 {object} ErrorResponse "Batch not in review"
// @Router      /imports/{reference}/back [post]
func (h *ImportHandler) BackItem(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	batch, err := h.importService.Back(userID, c.Param("reference"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// SaveAllRemaining posts every pending item from the cursor onward
// @Summary     Save all remaining items
// @Description Posts pending items in order with their current suggestions.
// @Description On failure the cursor stops at the failing item and the
// @Description result reports its index; earlier posts are kept.
// @Tags        imports
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Success     200 {object} services.SaveAllResult
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Failure     409 {object} ErrorResponse "Batch not in review"
// @Router      /imports/{reference}/save-all [post]
func (h *ImportHandler) SaveAllRemaining(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	result, err := h.importService.SaveAllRemaining(userID, c.Param("reference"))
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}
	if err != nil {
		// Partial success: some items posted before one failed. The
		// caller resumes review at the failing item.
		var appErr *apperrors.AppError
		status := http.StatusConflict
		code := apperrors.ErrInternalServer.Code
		message := err.Error()
		if errors.As(err, &appErr) {
			status = appErr.StatusCode
			code = appErr.Code
			message = appErr.Message
		}
		c.JSON(status, gin.H{
			"error":  gin.H{"code": code, "message": message},
			"result": result,
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelBatch discards all not-yet-posted items
// @Summary     Cancel a batch
// @Description Discards pending and skipped items and closes the batch.
// @Description Items already posted stay posted.
// @Tags        imports
// @Produce     json
// @Security    BearerAuth
// @Param       reference path string true "Batch reference"
// @Success     200 {object} models.ImportBatch
// @Failure     404 {object} ErrorResponse "Batch not found"
// @Failure     409 {object} ErrorResponse "Batch already finished"
// @Router      /imports/{reference}/cancel [post]
func (h *ImportHandler) CancelBatch(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	batch, err := h.importService.Cancel(userID, c.Param("reference"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "cancel_import", "import_batch", batch.ID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, batch)
}
