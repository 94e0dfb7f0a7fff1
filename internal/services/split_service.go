package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/pagination"
)

// splitService proposes and settles shared transactions. Settlement is an
// acknowledgement trail: confirming a share records who owes what but posts
// no balance change for either party.
type splitService struct {
	db *gorm.DB
}

// NewSplitService creates a new SplitServicer.
func NewSplitService(db *gorm.DB) SplitServicer {
	return &splitService{db: db}
}

// Propose creates one pending share per counterparty. The sum of split
// amounts across all shares of the transaction, existing and proposed,
// must not exceed the transaction's amount.
func (s *splitService) Propose(userID, transactionID uint, splits []SplitInput, affectsBank bool, notes string) ([]models.SharedTransaction, error) {
	if len(splits) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "at least one split is required")
	}

	var tx models.Transaction
	if err := s.db.Where("id = ? AND user_id = ?", transactionID, userID).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var proposed int64
	for i := range splits {
		sp := &splits[i]
		if sp.SharedWithUserID == 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "shared_with_user_id is required")
		}
		if sp.SharedWithUserID == userID {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "cannot share a transaction with yourself")
		}
		// Amounts and percentages are interchangeable; whichever is
		// given, the other is derived against the transaction total.
		if sp.Amount == 0 && sp.Percentage > 0 {
			sp.Amount = int64(float64(tx.Amount) * sp.Percentage / 100.0)
		}
		if sp.Amount <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "split amount must be positive")
		}
		if sp.Percentage == 0 && tx.Amount > 0 {
			sp.Percentage = float64(sp.Amount) / float64(tx.Amount) * 100.0
		}

		var count int64
		s.db.Model(&models.User{}).Where("id = ? AND is_active = ?", sp.SharedWithUserID, true).Count(&count)
		if count == 0 {
			return nil, apperrors.ErrUserNotFound
		}

		proposed += sp.Amount
	}

	var existing int64
	s.db.Model(&models.SharedTransaction{}).
		Where("transaction_id = ? AND status <> ?", transactionID, models.ShareStatusRejected).
		Select("COALESCE(SUM(split_amount), 0)").
		Scan(&existing)

	if existing+proposed > tx.Amount {
		return nil, apperrors.ErrSplitExceedsAmount
	}

	shares := make([]models.SharedTransaction, 0, len(splits))
	err := s.db.Transaction(func(dbTx *gorm.DB) error {
		for _, sp := range splits {
			share := models.SharedTransaction{
				TransactionID:    transactionID,
				CreatedByUserID:  userID,
				SharedWithUserID: sp.SharedWithUserID,
				SplitAmount:      sp.Amount,
				SplitPercentage:  sp.Percentage,
				AffectsBank:      affectsBank,
				Notes:            notes,
				Status:           models.ShareStatusPending,
			}
			if err := dbTx.Create(&share).Error; err != nil {
				return err
			}
			shares = append(shares, share)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return shares, nil
}

// Respond transitions a pending share to confirmed or rejected. Only the
// designated recipient may respond, and only from pending; shares never
// auto-expire and can be answered at any time.
func (s *splitService) Respond(userID, sharedTransactionID uint, accept bool) (*models.SharedTransaction, error) {
	var share models.SharedTransaction
	if err := s.db.First(&share, sharedTransactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrShareNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if share.SharedWithUserID != userID {
		return nil, apperrors.ErrNotShareRecipient
	}
	if share.Status != models.ShareStatusPending {
		return nil, apperrors.ErrShareAlreadyResolved
	}

	status := models.ShareStatusRejected
	if accept {
		status = models.ShareStatusConfirmed
	}
	now := time.Now()

	// Conditional update so two racing responses cannot both win.
	res := s.db.Model(&models.SharedTransaction{}).
		Where("id = ? AND status = ?", share.ID, models.ShareStatusPending).
		Updates(map[string]any{"status": status, "confirmed_at": now})
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrShareAlreadyResolved
	}

	share.Status = status
	share.ConfirmedAt = &now
	return &share, nil
}

// ListCreated returns shares the user proposed, newest first.
func (s *splitService) ListCreated(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SharedTransaction], error) {
	page.Defaults()

	query := s.db.Model(&models.SharedTransaction{}).Where("created_by_user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var shares []models.SharedTransaction
	err := query.Preload("Transaction").
		Order("created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&shares).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(shares, page.Page, page.PageSize, total)
	return &resp, nil
}

// ListReceived returns shares proposed to the user, pending first.
func (s *splitService) ListReceived(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SharedTransaction], error) {
	page.Defaults()

	query := s.db.Model(&models.SharedTransaction{}).Where("shared_with_user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var shares []models.SharedTransaction
	err := query.Preload("Transaction").
		Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END, created_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&shares).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(shares, page.Page, page.PageSize, total)
	return &resp, nil
}
