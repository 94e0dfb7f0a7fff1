package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/pagination"
)

// postingService creates transactions and maintains running balances.
//
// Balance discipline: a balance only ever changes by an atomic in-database
// increment, executed in the same transaction as the row insert or update
// it belongs to. Balances are never read, modified, and written back, so
// concurrent posts from two sessions cannot lose updates.
type postingService struct {
	db *gorm.DB
}

// NewPostingService creates a new PostingServicer.
func NewPostingService(db *gorm.DB) PostingServicer {
	return &postingService{db: db}
}

const dateLayout = "2006-01-02"

func (s *postingService) validate(userID uint, in *PostInput) (*time.Time, error) {
	if in.Direction != models.DirectionDebit && in.Direction != models.DirectionCredit {
		return nil, apperrors.ErrInvalidDirection
	}
	if in.Amount <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be positive")
	}
	if in.Particulars == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "particulars are required")
	}
	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "date must be YYYY-MM-DD")
	}

	if in.BankAccountID != nil {
		var count int64
		s.db.Model(&models.BankAccount{}).
			Where("id = ? AND user_id = ?", *in.BankAccountID, userID).
			Count(&count)
		if count == 0 {
			return nil, apperrors.ErrBankAccountNotFound
		}
	}
	if in.LedgerID != nil {
		var count int64
		s.db.Model(&models.Ledger{}).
			Where("id = ? AND user_id = ?", *in.LedgerID, userID).
			Count(&count)
		if count == 0 {
			return nil, apperrors.ErrLedgerNotFound
		}
	}

	return &date, nil
}

func (s *postingService) build(userID uint, in PostInput, date time.Time, confirmed bool) *models.Transaction {
	source := in.Source
	if source == "" {
		source = models.SourceManual
	}
	return &models.Transaction{
		UserID:          userID,
		BankAccountID:   in.BankAccountID,
		LedgerID:        in.LedgerID,
		Date:            date,
		Direction:       in.Direction,
		Amount:          in.Amount,
		Particulars:     in.Particulars,
		Narration:       in.Narration,
		BalanceAfter:    in.BalanceAfter,
		ReferenceNumber: in.ReferenceNumber,
		Confirmed:       confirmed,
		Source:          source,
		ImportKey:       in.ImportKey,
	}
}

// Post atomically inserts a confirmed transaction and applies its signed
// delta to whichever of bank account and ledger are present. The insert and
// the increments either all succeed or none are observable.
func (s *postingService) Post(userID uint, in PostInput) (*models.Transaction, error) {
	date, err := s.validate(userID, &in)
	if err != nil {
		return nil, err
	}

	if in.ImportKey != nil {
		var count int64
		s.db.Model(&models.Transaction{}).Where("import_key = ?", *in.ImportKey).Count(&count)
		if count > 0 {
			return nil, apperrors.ErrDuplicateImportKey
		}
	}

	tx := s.build(userID, in, *date, true)

	err = s.db.Transaction(func(dbTx *gorm.DB) error {
		if err := dbTx.Create(tx).Error; err != nil {
			return err
		}
		return applyDelta(dbTx, tx, tx.SignedAmount())
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return tx, nil
}

// CreateDraft inserts an unconfirmed transaction. Drafts never move
// balances; Confirm promotes them.
func (s *postingService) CreateDraft(userID uint, in PostInput) (*models.Transaction, error) {
	date, err := s.validate(userID, &in)
	if err != nil {
		return nil, err
	}

	tx := s.build(userID, in, *date, false)
	if err := s.db.Create(tx).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return tx, nil
}

// Confirm promotes a draft to confirmed and applies its balance deltas in
// one database transaction.
func (s *postingService) Confirm(userID, transactionID uint) (*models.Transaction, error) {
	tx, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Confirmed {
		return nil, apperrors.ErrAlreadyPosted
	}

	err = s.db.Transaction(func(dbTx *gorm.DB) error {
		// Guard against a concurrent confirm of the same draft: only one
		// update can flip confirmed from false to true.
		res := dbTx.Model(&models.Transaction{}).
			Where("id = ? AND confirmed = ?", tx.ID, false).
			Update("confirmed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrAlreadyPosted
		}
		return applyDelta(dbTx, tx, tx.SignedAmount())
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	tx.Confirmed = true
	return tx, nil
}

// Recategorize assigns a transaction to a different ledger. For a confirmed
// transaction the signed delta is removed from the old ledger and applied
// to the new one in the same database transaction, so ledger balances stay
// exact across the move.
func (s *postingService) Recategorize(userID, transactionID, newLedgerID uint) (*models.Transaction, error) {
	tx, err := s.GetTransactionByID(userID, transactionID)
	if err != nil {
		return nil, err
	}

	var ledger models.Ledger
	if err := s.db.Where("id = ? AND user_id = ?", newLedgerID, userID).First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrLedgerNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if tx.LedgerID != nil && *tx.LedgerID == newLedgerID {
		return tx, nil
	}

	err = s.db.Transaction(func(dbTx *gorm.DB) error {
		if tx.Confirmed {
			if tx.LedgerID != nil {
				if err := incrementLedger(dbTx, *tx.LedgerID, -tx.SignedAmount()); err != nil {
					return err
				}
			}
			if err := incrementLedger(dbTx, newLedgerID, tx.SignedAmount()); err != nil {
				return err
			}
		}
		return dbTx.Model(&models.Transaction{}).
			Where("id = ?", tx.ID).
			Update("ledger_id", newLedgerID).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	tx.LedgerID = &newLedgerID
	tx.Ledger = &ledger
	return tx, nil
}

// GetTransactionByID retrieves a transaction owned by the user.
func (s *postingService) GetTransactionByID(userID, transactionID uint) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.Preload("Ledger").Preload("BankAccount").
		Where("id = ? AND user_id = ?", transactionID, userID).
		First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &tx, nil
}

// ListTransactions returns a filtered, paginated transaction listing,
// newest first.
func (s *postingService) ListTransactions(userID uint, filter TransactionFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Transaction], error) {
	page.Defaults()

	q := s.db.Model(&models.Transaction{}).Where("user_id = ?", userID)
	if filter.BankAccountID != nil {
		q = q.Where("bank_account_id = ?", *filter.BankAccountID)
	}
	if filter.LedgerID != nil {
		q = q.Where("ledger_id = ?", *filter.LedgerID)
	}
	if filter.Direction != nil {
		q = q.Where("direction = ?", *filter.Direction)
	}
	if filter.Confirmed != nil {
		q = q.Where("confirmed = ?", *filter.Confirmed)
	}
	if filter.DateFrom != "" {
		if from, err := time.Parse(dateLayout, filter.DateFrom); err == nil {
			q = q.Where("date >= ?", from)
		}
	}
	if filter.DateTo != "" {
		if to, err := time.Parse(dateLayout, filter.DateTo); err == nil {
			q = q.Where("date <= ?", to)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var txs []models.Transaction
	if err := q.Preload("Ledger").Preload("BankAccount").
		Order("date DESC, id DESC").
		Scopes(pagination.Paginate(page)).
		Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(txs, page.Page, page.PageSize, total)
	return &resp, nil
}

// RecentParticulars returns up to limit confirmed, categorized transactions
// newest first, for the fuzzy matcher's candidate window.
func (s *postingService) RecentParticulars(userID uint, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txs []models.Transaction
	if err := s.db.Where("user_id = ? AND confirmed = ? AND ledger_id IS NOT NULL", userID, true).
		Order("date DESC, id DESC").
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return txs, nil
}

// Summarize aggregates confirmed transactions over an optional date range.
func (s *postingService) Summarize(userID uint, dateFrom, dateTo string) (*Summary, error) {
	q := s.db.Model(&models.Transaction{}).
		Joins("JOIN ledgers ON ledgers.id = transactions.ledger_id").
		Where("transactions.user_id = ? AND transactions.confirmed = ?", userID, true)
	if dateFrom != "" {
		if from, err := time.Parse(dateLayout, dateFrom); err == nil {
			q = q.Where("transactions.date >= ?", from)
		}
	}
	if dateTo != "" {
		if to, err := time.Parse(dateLayout, dateTo); err == nil {
			q = q.Where("transactions.date <= ?", to)
		}
	}

	type row struct {
		LedgerID   uint
		LedgerName string
		LedgerType models.LedgerType
		Total      int64
	}
	var rows []row
	err := q.Select(
		"ledgers.id AS ledger_id, ledgers.name AS ledger_name, ledgers.type AS ledger_type, " +
			"SUM(CASE WHEN transactions.direction = 'CREDIT' THEN transactions.amount ELSE -transactions.amount END) AS total").
		Group("ledgers.id, ledgers.name, ledgers.type").
		Order("ledgers.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summary := &Summary{ByLedger: make([]LedgerSummary, 0, len(rows))}
	for _, r := range rows {
		summary.ByLedger = append(summary.ByLedger, LedgerSummary{
			LedgerID:   r.LedgerID,
			LedgerName: r.LedgerName,
			LedgerType: r.LedgerType,
			Total:      r.Total,
		})
		switch r.LedgerType {
		case models.LedgerTypeIncome:
			summary.TotalIncome += r.Total
		case models.LedgerTypeExpense:
			// Expense totals are negative sums of debits; report magnitude.
			summary.TotalExpense += -r.Total
		}
	}
	summary.Net = summary.TotalIncome - summary.TotalExpense

	return summary, nil
}

// applyDelta applies a signed delta to the transaction's bank account and
// ledger balances, whichever are present.
func applyDelta(dbTx *gorm.DB, tx *models.Transaction, delta int64) error {
	if tx.BankAccountID != nil {
		if err := incrementBankAccount(dbTx, *tx.BankAccountID, delta); err != nil {
			return err
		}
	}
	if tx.LedgerID != nil {
		if err := incrementLedger(dbTx, *tx.LedgerID, delta); err != nil {
			return err
		}
	}
	return nil
}

// incrementBankAccount applies an atomic server-side balance increment.
func incrementBankAccount(dbTx *gorm.DB, accountID uint, delta int64) error {
	return dbTx.Model(&models.BankAccount{}).
		Where("id = ?", accountID).
		Update("current_balance", gorm.Expr("current_balance + ?", delta)).Error
}

// incrementLedger applies an atomic server-side balance increment.
func incrementLedger(dbTx *gorm.DB, ledgerID uint, delta int64) error {
	return dbTx.Model(&models.Ledger{}).
		Where("id = ?", ledgerID).
		Update("current_balance", gorm.Expr("current_balance + ?", delta)).Error
}
