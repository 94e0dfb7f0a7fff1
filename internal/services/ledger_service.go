package services

import (
	"errors"

	"gorm.io/gorm"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
)

// ledgerService handles ledger category business logic.
type ledgerService struct {
	db *gorm.DB
}

// NewLedgerService creates a new LedgerServicer.
func NewLedgerService(db *gorm.DB) LedgerServicer {
	return &ledgerService{db: db}
}

// CreateLedger creates a ledger category. Names are unique per user,
// case-insensitively.
func (s *ledgerService) CreateLedger(userID uint, name string, ledgerType models.LedgerType) (*models.Ledger, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "ledger name is required")
	}

	var count int64
	s.db.Model(&models.Ledger{}).
		Where("user_id = ? AND LOWER(name) = LOWER(?)", userID, name).
		Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateLedger
	}

	ledger := &models.Ledger{
		UserID: userID,
		Name:   name,
		Type:   ledgerType,
	}
	if err := s.db.Create(ledger).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return ledger, nil
}

// GetUserLedgers returns all ledgers for a user.
func (s *ledgerService) GetUserLedgers(userID uint) ([]models.Ledger, error) {
	var ledgers []models.Ledger
	if err := s.db.Where("user_id = ?", userID).Order("name ASC").Find(&ledgers).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return ledgers, nil
}

// GetLedgerByID returns a ledger owned by the user.
func (s *ledgerService) GetLedgerByID(userID, ledgerID uint) (*models.Ledger, error) {
	var ledger models.Ledger
	if err := s.db.Where("id = ? AND user_id = ?", ledgerID, userID).First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrLedgerNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &ledger, nil
}

// UpdateLedger renames a ledger. Type and balance are immutable.
func (s *ledgerService) UpdateLedger(userID, ledgerID uint, name *string) (*models.Ledger, error) {
	ledger, err := s.GetLedgerByID(userID, ledgerID)
	if err != nil {
		return nil, err
	}

	if name == nil || *name == "" || *name == ledger.Name {
		return ledger, nil
	}

	var count int64
	s.db.Model(&models.Ledger{}).
		Where("user_id = ? AND LOWER(name) = LOWER(?) AND id <> ?", userID, *name, ledgerID).
		Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateLedger
	}

	if err := s.db.Model(ledger).Update("name", *name).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return ledger, nil
}

// EnsureUncategorized returns the user's fallback ledger, creating it on
// first use. This is the only implicit ledger creation in the system.
func (s *ledgerService) EnsureUncategorized(userID uint) (*models.Ledger, error) {
	var ledger models.Ledger
	err := s.db.Where("user_id = ? AND name = ?", userID, models.UncategorizedLedgerName).First(&ledger).Error
	if err == nil {
		return &ledger, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	ledger = models.Ledger{
		UserID: userID,
		Name:   models.UncategorizedLedgerName,
		Type:   models.LedgerTypeExpense,
	}
	if err := s.db.Create(&ledger).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &ledger, nil
}
