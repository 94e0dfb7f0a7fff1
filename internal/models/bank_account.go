package models

// BankAccountType represents the type of bank account
type BankAccountType string

const (
	BankAccountTypeSavings    BankAccountType = "savings"
	BankAccountTypeCurrent    BankAccountType = "current"
	BankAccountTypeCreditCard BankAccountType = "credit_card"
)

// BankAccount represents a tracked external bank account with its own
// running balance, separate from ledger categories. Balances are stored in
// minor currency units (paise).
//
// CurrentBalance is derived but stored: it always equals OpeningBalance plus
// the signed sum of all confirmed transactions referencing this account. It
// is only ever adjusted by atomic increments at posting time, never
// recomputed from scratch.
type BankAccount struct {
	Base
	UserID         uint            `gorm:"not null;index" json:"user_id"`
	Name           string          `gorm:"not null" json:"name"`
	AccountNumber  string          `gorm:"not null" json:"-"`
	Type           BankAccountType `gorm:"not null;default:'savings'" json:"type"`
	OpeningBalance int64           `gorm:"not null;default:0" json:"opening_balance"`
	CurrentBalance int64           `gorm:"not null;default:0" json:"current_balance"`
	IsActive       bool            `gorm:"default:true" json:"is_active"`

	Transactions []Transaction `gorm:"foreignKey:BankAccountID" json:"transactions,omitempty"`
}

// MaskedAccountNumber returns the account number with all but the last four
// digits hidden, for display.
func (a *BankAccount) MaskedAccountNumber() string {
	n := a.AccountNumber
	if len(n) <= 4 {
		return n
	}
	masked := make([]byte, len(n)-4)
	for i := range masked {
		masked[i] = 'X'
	}
	return string(masked) + n[len(n)-4:]
}

// LastFour returns the last four digits of the account number.
func (a *BankAccount) LastFour() string {
	if len(a.AccountNumber) <= 4 {
		return a.AccountNumber
	}
	return a.AccountNumber[len(a.AccountNumber)-4:]
}
