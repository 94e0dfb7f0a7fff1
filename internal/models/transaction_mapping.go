package models

import "time"

// TransactionMapping is the learned exact-string categorization cache: one
// row per (user, particulars pattern), upserted after every resolved oracle
// suggestion and consulted before any oracle call. Distinct from and
// complementary to the fuzzy similarity matcher.
type TransactionMapping struct {
	Base
	UserID             uint      `gorm:"not null;uniqueIndex:idx_user_particulars" json:"user_id"`
	ParticularsPattern string    `gorm:"not null;uniqueIndex:idx_user_particulars" json:"particulars_pattern"`
	LedgerID           uint      `gorm:"not null" json:"ledger_id"`
	NarrationTemplate  string    `json:"narration_template"`
	ConfidenceScore    float64   `json:"confidence_score"`
	UsageCount         int       `gorm:"not null;default:1" json:"usage_count"`
	LastUsedAt         time.Time `json:"last_used_at"`

	Ledger Ledger `gorm:"foreignKey:LedgerID" json:"ledger,omitempty"`
}
