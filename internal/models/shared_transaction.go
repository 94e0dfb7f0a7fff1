package models

import "time"

// SharedTransactionStatus is the settlement state of a proposed split.
type SharedTransactionStatus string

const (
	ShareStatusPending   SharedTransactionStatus = "pending"
	ShareStatusConfirmed SharedTransactionStatus = "confirmed"
	ShareStatusRejected  SharedTransactionStatus = "rejected"
)

// SharedTransaction is a proposed split of one transaction's cost or credit
// with another user, requiring their explicit acknowledgement. The sum of
// SplitAmount across all shares of a transaction never exceeds the
// transaction's amount. Settlement is an acknowledgement trail only; it does
// not post any ledger entry for either party.
type SharedTransaction struct {
	Base
	TransactionID    uint                    `gorm:"not null;index" json:"transaction_id"`
	CreatedByUserID  uint                    `gorm:"not null;index" json:"created_by_user_id"`
	SharedWithUserID uint                    `gorm:"not null;index" json:"shared_with_user_id"`
	SplitAmount      int64                   `gorm:"not null" json:"split_amount"`
	SplitPercentage  float64                 `json:"split_percentage"`
	AffectsBank      bool                    `gorm:"default:false" json:"affects_bank"`
	Notes            string                  `json:"notes,omitempty"`
	Status           SharedTransactionStatus `gorm:"not null;default:'pending'" json:"status"`
	ConfirmedAt      *time.Time              `json:"confirmed_at,omitempty"`

	Transaction Transaction `gorm:"foreignKey:TransactionID" json:"transaction,omitempty"`
}
