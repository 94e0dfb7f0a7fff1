package models

// LedgerType represents the type of ledger account
type LedgerType string

const (
	LedgerTypeIncome    LedgerType = "income"
	LedgerTypeExpense   LedgerType = "expense"
	LedgerTypeAsset     LedgerType = "asset"
	LedgerTypeLiability LedgerType = "liability"
)

// UncategorizedLedgerName is the fallback ledger used when no category can
// be suggested for a transaction.
const UncategorizedLedgerName = "Uncategorized"

// Ledger is a named category (income/expense/asset/liability) with a running
// balance, analogous to a chart-of-accounts line. CurrentBalance follows the
// same increment-only invariant as BankAccount.CurrentBalance.
type Ledger struct {
	Base
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	Name           string     `gorm:"not null" json:"name"`
	Type           LedgerType `gorm:"not null" json:"type"`
	CurrentBalance int64      `gorm:"not null;default:0" json:"current_balance"`

	Transactions []Transaction `gorm:"foreignKey:LedgerID" json:"transactions,omitempty"`
}
