package models

import "time"

// TransactionDirection is the direction of money movement.
type TransactionDirection string

const (
	DirectionDebit  TransactionDirection = "DEBIT"
	DirectionCredit TransactionDirection = "CREDIT"
)

// TransactionSource records which entry path created a transaction.
type TransactionSource string

const (
	SourceManual    TransactionSource = "manual"
	SourcePDFUpload TransactionSource = "pdf_upload"
	SourceCash      TransactionSource = "cash"
	SourceUpload    TransactionSource = "upload"
)

// Transaction represents a financial transaction. Amount is always positive,
// in minor currency units; Direction carries the sign. BankAccountID is nil
// for cash transactions; LedgerID is nil until the transaction has been
// categorized.
//
// Unconfirmed transactions are provisional: balances are only adjusted when
// a transaction is written with Confirmed=true through the posting service.
type Transaction struct {
	Base
	UserID          uint                 `gorm:"not null;index" json:"user_id"`
	BankAccountID   *uint                `gorm:"index" json:"bank_account_id,omitempty"`
	LedgerID        *uint                `gorm:"index" json:"ledger_id,omitempty"`
	Date            time.Time            `gorm:"not null" json:"date"`
	Direction       TransactionDirection `gorm:"not null" json:"direction"`
	Amount          int64                `gorm:"type:bigint;not null" json:"amount"`
	Particulars     string               `gorm:"not null" json:"particulars"`
	Narration       string               `json:"narration"`
	BalanceAfter    *int64               `json:"balance_after,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`
	Confirmed       bool                 `gorm:"not null;default:false" json:"confirmed"`
	Source          TransactionSource    `gorm:"not null;default:'manual'" json:"source"`

	// ImportKey is an idempotency key set by the import orchestrator
	// (batch reference + item position) so a batch item can never post twice.
	ImportKey *string `gorm:"uniqueIndex" json:"-"`

	BankAccount *BankAccount `gorm:"foreignKey:BankAccountID" json:"bank_account,omitempty"`
	Ledger      *Ledger      `gorm:"foreignKey:LedgerID" json:"ledger,omitempty"`
}

// SignedAmount returns the amount with its direction applied: positive for
// CREDIT, negative for DEBIT.
func (t *Transaction) SignedAmount() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}
