package models

// ImportBatchStatus is the review state machine position of a batch.
type ImportBatchStatus string

const (
	// BatchStatusBankConfirm is the state of a freshly extracted batch:
	// upload and extraction succeeded, the target bank account is not yet
	// confirmed. Failed extractions never create a batch at all.
	BatchStatusBankConfirm ImportBatchStatus = "bank_confirm"
	BatchStatusReview      ImportBatchStatus = "review"
	BatchStatusDone        ImportBatchStatus = "done"
	BatchStatusCancelled   ImportBatchStatus = "cancelled"
)

// ImportItemStatus is the per-item outcome within a batch.
type ImportItemStatus string

const (
	ItemStatusPending   ImportItemStatus = "pending"
	ItemStatusPosted    ImportItemStatus = "posted"
	ItemStatusSkipped   ImportItemStatus = "skipped"
	ItemStatusDiscarded ImportItemStatus = "discarded"
)

// ImportBatch is the durable state of one statement review session:
// Upload -> BankConfirm -> Review(cursor) -> Done. The cursor gates all
// mutations so items are committed strictly in sequence.
type ImportBatch struct {
	Base
	UserID                uint              `gorm:"not null;index" json:"user_id"`
	Reference             string            `gorm:"uniqueIndex;size:36" json:"reference"`
	Status                ImportBatchStatus `gorm:"not null;default:'bank_confirm'" json:"status"`
	Source                TransactionSource `gorm:"not null" json:"source"`
	BankAccountID         *uint             `json:"bank_account_id,omitempty"`
	DetectedBankName      string            `json:"detected_bank_name,omitempty"`
	DetectedAccountNumber string            `json:"detected_account_number,omitempty"`
	Cursor                int               `gorm:"not null;default:0" json:"cursor"`
	ItemCount             int               `gorm:"not null;default:0" json:"item_count"`

	Items []ImportItem `gorm:"foreignKey:BatchID" json:"items,omitempty"`
}

// ImportItem is one extracted transaction awaiting review. Suggestion fields
// hold the current categorization proposal (from the mapping cache, the
// fuzzy matcher, or the oracle) and may be edited before posting.
type ImportItem struct {
	Base
	BatchID  uint             `gorm:"not null;index" json:"batch_id"`
	Position int              `gorm:"not null" json:"position"`
	Status   ImportItemStatus `gorm:"not null;default:'pending'" json:"status"`

	Date            string               `gorm:"not null" json:"date"`
	Direction       TransactionDirection `gorm:"not null" json:"direction"`
	Amount          int64                `gorm:"not null" json:"amount"`
	Particulars     string               `gorm:"not null" json:"particulars"`
	BalanceAfter    *int64               `json:"balance_after,omitempty"`
	ReferenceNumber string               `json:"reference_number,omitempty"`

	SuggestedLedgerID   *uint   `json:"suggested_ledger_id,omitempty"`
	SuggestedLedgerName string  `json:"suggested_ledger_name,omitempty"`
	SuggestedNarration  string  `json:"suggested_narration,omitempty"`
	Confidence          float64 `json:"confidence"`
	AutoMatched         bool    `gorm:"default:false" json:"auto_matched"`

	TransactionID *uint `json:"transaction_id,omitempty"`
}
