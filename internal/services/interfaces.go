// Package services contains the business logic layer. Each service is
// exposed as an interface so handlers and tests can substitute
// implementations.
package services

import (
	"context"

	"finbook/internal/models"
	"finbook/internal/oracle"
	"finbook/internal/pagination"
)

// UserServicer handles user registration and credential checks.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id uint) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
}

// BankAccountServicer manages tracked bank accounts and their running
// balances.
type BankAccountServicer interface {
	CreateBankAccount(userID uint, name, accountNumber string, accountType models.BankAccountType, openingBalance int64) (*models.BankAccount, error)
	GetUserBankAccounts(userID uint) ([]models.BankAccount, error)
	GetBankAccountByID(userID, accountID uint) (*models.BankAccount, error)
	UpdateBankAccount(userID, accountID uint, name *string, accountType *models.BankAccountType, isActive *bool) (*models.BankAccount, error)
	// MatchDetectedAccount resolves a statement's detected bank identity
	// against the user's accounts: account number equality, or
	// case-insensitive name containment combined with a last-4-digit match.
	MatchDetectedAccount(userID uint, detectedName, detectedNumber string) (*models.BankAccount, error)
}

// LedgerServicer manages ledger categories. Ledger creation is the single
// explicit capability for bringing new categories into existence; nothing
// else in the system creates ledgers implicitly.
type LedgerServicer interface {
	CreateLedger(userID uint, name string, ledgerType models.LedgerType) (*models.Ledger, error)
	GetUserLedgers(userID uint) ([]models.Ledger, error)
	GetLedgerByID(userID, ledgerID uint) (*models.Ledger, error)
	UpdateLedger(userID, ledgerID uint, name *string) (*models.Ledger, error)
	// EnsureUncategorized returns the user's fallback ledger, creating it
	// on first use.
	EnsureUncategorized(userID uint) (*models.Ledger, error)
}

// PostInput is a finalized transaction ready for atomic posting.
type PostInput struct {
	Date            string
	Direction       models.TransactionDirection
	Amount          int64
	Particulars     string
	Narration       string
	BankAccountID   *uint
	LedgerID        *uint
	BalanceAfter    *int64
	ReferenceNumber string
	Source          models.TransactionSource
	ImportKey       *string
}

// TransactionFilter narrows transaction listings.
type TransactionFilter struct {
	BankAccountID *uint
	LedgerID      *uint
	Direction     *models.TransactionDirection
	DateFrom      string
	DateTo        string
	Confirmed     *bool
}

// LedgerSummary is one ledger's contribution to a financial summary.
type LedgerSummary struct {
	LedgerID   uint              `json:"ledger_id"`
	LedgerName string            `json:"ledger_name"`
	LedgerType models.LedgerType `json:"ledger_type"`
	Total      int64             `json:"total"`
}

// Summary aggregates confirmed transactions over a period.
type Summary struct {
	TotalIncome  int64           `json:"total_income"`
	TotalExpense int64           `json:"total_expense"`
	Net          int64           `json:"net"`
	ByLedger     []LedgerSummary `json:"by_ledger"`
}

// PostingServicer creates transactions and keeps running balances exact.
// Post and Confirm are the only two places balance deltas are applied.
type PostingServicer interface {
	// Post atomically inserts a confirmed transaction and applies its
	// signed delta to whichever of bank account and ledger are present.
	Post(userID uint, in PostInput) (*models.Transaction, error)
	// CreateDraft inserts an unconfirmed transaction with no balance
	// effect.
	CreateDraft(userID uint, in PostInput) (*models.Transaction, error)
	// Confirm promotes a draft, applying balance deltas atomically.
	Confirm(userID, transactionID uint) (*models.Transaction, error)
	// Recategorize moves a transaction to another ledger. For confirmed
	// transactions the delta is moved between ledgers atomically.
	Recategorize(userID, transactionID, newLedgerID uint) (*models.Transaction, error)
	GetTransactionByID(userID, transactionID uint) (*models.Transaction, error)
	ListTransactions(userID uint, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error)
	// RecentParticulars returns up to limit confirmed categorized
	// transactions, newest first, for the fuzzy matcher.
	RecentParticulars(userID uint, limit int) ([]models.Transaction, error)
	Summarize(userID uint, dateFrom, dateTo string) (*Summary, error)
}

// MappingServicer maintains the learned exact-string categorization cache.
type MappingServicer interface {
	// Upsert records a resolved categorization keyed by (user, exact
	// particulars), bumping usage on conflict.
	Upsert(userID uint, particulars string, ledgerID uint, narration string, confidence float64) error
	// Lookup returns the mapping for the exact particulars string, or nil.
	Lookup(userID uint, particulars string) (*models.TransactionMapping, error)
	// TopHints returns the most-used mappings for oracle prompt hints.
	TopHints(userID uint, limit int) ([]oracle.MappingHint, error)
	ListByUser(userID uint) ([]models.TransactionMapping, error)
}

// SplitInput is one counterparty's share of a proposed split.
type SplitInput struct {
	SharedWithUserID uint
	Amount           int64
	Percentage       float64
}

// SplitServicer proposes and settles shared transactions.
type SplitServicer interface {
	Propose(userID, transactionID uint, splits []SplitInput, affectsBank bool, notes string) ([]models.SharedTransaction, error)
	// Respond transitions a pending share to confirmed or rejected. Only
	// the designated recipient may respond, and only once.
	Respond(userID, sharedTransactionID uint, accept bool) (*models.SharedTransaction, error)
	ListCreated(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SharedTransaction], error)
	// ListReceived sorts pending shares first so the inbox surfaces what
	// still needs a response.
	ListReceived(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SharedTransaction], error)
}

// NewBankAccount describes an account the user asked to create while
// confirming a batch's bank binding.
type NewBankAccount struct {
	Name           string
	AccountNumber  string
	Type           models.BankAccountType
	OpeningBalance int64
}

// NewLedger describes a ledger the user asked to create during review.
type NewLedger struct {
	Name string
	Type models.LedgerType
}

// ItemEdit carries review-time edits applied to an import item before it
// is posted. CreateLedger takes precedence over LedgerID when both are set.
type ItemEdit struct {
	LedgerID     *uint
	Narration    *string
	Date         *string
	Amount       *int64
	Direction    *models.TransactionDirection
	CreateLedger *NewLedger
}

// SaveAllResult reports the outcome of a bulk commit.
type SaveAllResult struct {
	Posted      int  `json:"posted"`
	FailedIndex *int `json:"failed_index,omitempty"`
}

// ImportServicer drives the statement review state machine:
// Upload -> BankConfirm -> Review(cursor) -> Done.
type ImportServicer interface {
	// StartText begins a batch from free-form statement text.
	StartText(ctx context.Context, userID uint, text string) (*models.ImportBatch, error)
	// StartTabular begins a batch from spreadsheet rows.
	StartTabular(ctx context.Context, userID uint, rows [][]string) (*models.ImportBatch, error)
	// StartDocument begins a batch from an uploaded document (PDF),
	// extracted through the oracle.
	StartDocument(ctx context.Context, userID uint, mimeType string, data []byte) (*models.ImportBatch, error)
	GetBatch(userID uint, reference string) (*models.ImportBatch, error)
	// ConfirmBank binds the batch to a bank account and moves it to
	// review, computing a categorization suggestion for every item. A
	// non-nil create makes a fresh account and binds to it. A zero
	// bankAccountID accepts the detected pre-selection if present,
	// otherwise the batch proceeds as a cash import.
	ConfirmBank(ctx context.Context, userID uint, reference string, bankAccountID uint, create *NewBankAccount) (*models.ImportBatch, error)
	// ConfirmNext posts the item at the cursor (with optional edits) and
	// advances. Reaching the end completes the batch.
	ConfirmNext(userID uint, reference string, edit *ItemEdit) (*models.ImportBatch, error)
	// Skip advances the cursor without posting.
	Skip(userID uint, reference string) (*models.ImportBatch, error)
	// Back moves the cursor to the previous item without posting.
	Back(userID uint, reference string) (*models.ImportBatch, error)
	// SaveAllRemaining posts every pending item from the cursor onward in
	// order, halting at the first failure.
	SaveAllRemaining(userID uint, reference string) (*SaveAllResult, error)
	// Cancel discards all not-yet-posted items. Posted items stay posted.
	Cancel(userID uint, reference string) (*models.ImportBatch, error)
}

// AuditServicer records sensitive operations.
type AuditServicer interface {
	Log(userID uint, action, resourceType string, resourceID uint, ipAddress string, changes map[string]any)
}
