// Package errors provides custom error types for the Finbook API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
	ErrAccountLocked      = &AppError{Code: "ACCOUNT_LOCKED", Message: "Account is temporarily locked", StatusCode: http.StatusLocked}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInvalidState   = &AppError{Code: "INVALID_STATE", Message: "Operation not valid in the current state", StatusCode: http.StatusConflict}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Bank account errors.
var (
	ErrBankAccountNotFound  = &AppError{Code: "BANK_ACCOUNT_NOT_FOUND", Message: "Bank account not found", StatusCode: http.StatusNotFound}
	ErrDuplicateBankAccount = &AppError{Code: "DUPLICATE_BANK_ACCOUNT", Message: "A bank account with this account number already exists", StatusCode: http.StatusConflict}
)

// Ledger errors.
var (
	ErrLedgerNotFound  = &AppError{Code: "LEDGER_NOT_FOUND", Message: "Ledger not found", StatusCode: http.StatusNotFound}
	ErrDuplicateLedger = &AppError{Code: "DUPLICATE_LEDGER", Message: "A ledger with this name already exists", StatusCode: http.StatusConflict}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
	ErrInvalidDirection    = &AppError{Code: "INVALID_DIRECTION", Message: "Direction must be DEBIT or CREDIT", StatusCode: http.StatusBadRequest}
	ErrAlreadyPosted       = &AppError{Code: "INVALID_STATE", Message: "Transaction has already been posted", StatusCode: http.StatusConflict}
	ErrDuplicateImportKey  = &AppError{Code: "DUPLICATE_IMPORT_KEY", Message: "This statement item has already been posted", StatusCode: http.StatusConflict}
)

// Oracle errors. All three are recoverable: callers fall back to an
// uncategorized suggestion with zero confidence rather than blocking an
// import.
var (
	ErrOracleNotConfigured = &AppError{Code: "ORACLE_NOT_CONFIGURED", Message: "Categorization service API key is not configured", StatusCode: http.StatusServiceUnavailable}
	ErrOracleUnavailable   = &AppError{Code: "ORACLE_UNAVAILABLE", Message: "Categorization service is unavailable", StatusCode: http.StatusBadGateway}
	ErrOracleMalformed     = &AppError{Code: "ORACLE_MALFORMED_RESPONSE", Message: "Categorization service returned an unreadable response", StatusCode: http.StatusBadGateway}
)

// Shared transaction errors.
var (
	ErrShareNotFound        = &AppError{Code: "SHARE_NOT_FOUND", Message: "Shared transaction not found", StatusCode: http.StatusNotFound}
	ErrSplitExceedsAmount   = &AppError{Code: "SPLIT_EXCEEDS_AMOUNT", Message: "Total split amount cannot exceed the transaction amount", StatusCode: http.StatusBadRequest}
	ErrShareAlreadyResolved = &AppError{Code: "INVALID_STATE", Message: "This share has already been responded to", StatusCode: http.StatusConflict}
	ErrNotShareRecipient    = &AppError{Code: "FORBIDDEN", Message: "Only the recipient may respond to this share", StatusCode: http.StatusForbidden}
)

// Import batch errors.
var (
	ErrBatchNotFound    = &AppError{Code: "IMPORT_BATCH_NOT_FOUND", Message: "Import batch not found", StatusCode: http.StatusNotFound}
	ErrBatchWrongState  = &AppError{Code: "INVALID_STATE", Message: "Import batch is not in the required state", StatusCode: http.StatusConflict}
	ErrNothingExtracted = &AppError{Code: "NOTHING_EXTRACTED", Message: "No transactions could be extracted from the statement", StatusCode: http.StatusUnprocessableEntity}
)
