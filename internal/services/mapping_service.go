package services

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/oracle"
)

// mappingService maintains the learned exact-string categorization cache.
// This cache is consulted before the fuzzy matcher and the oracle; its key
// is the exact particulars text, complementary to the fuzzy scan.
type mappingService struct {
	db *gorm.DB
}

// NewMappingService creates a new MappingServicer.
func NewMappingService(db *gorm.DB) MappingServicer {
	return &mappingService{db: db}
}

// Upsert records a resolved categorization keyed by (user, exact
// particulars). On conflict the mapping is repointed at the new ledger and
// its usage count is bumped.
func (s *mappingService) Upsert(userID uint, particulars string, ledgerID uint, narration string, confidence float64) error {
	if particulars == "" {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "particulars are required")
	}

	mapping := &models.TransactionMapping{
		UserID:             userID,
		ParticularsPattern: particulars,
		LedgerID:           ledgerID,
		NarrationTemplate:  narration,
		ConfidenceScore:    confidence,
		UsageCount:         1,
		LastUsedAt:         time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "particulars_pattern"}},
		DoUpdates: clause.Assignments(map[string]any{
			"ledger_id":          ledgerID,
			"narration_template": narration,
			"confidence_score":   confidence,
			"usage_count":        gorm.Expr("transaction_mappings.usage_count + 1"),
			"last_used_at":       time.Now(),
		}),
	}).Create(mapping).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// Lookup returns the mapping for the exact particulars string, or nil when
// none is learned yet.
func (s *mappingService) Lookup(userID uint, particulars string) (*models.TransactionMapping, error) {
	var mapping models.TransactionMapping
	err := s.db.Preload("Ledger").
		Where("user_id = ? AND particulars_pattern = ?", userID, particulars).
		First(&mapping).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &mapping, nil
}

// TopHints returns the most-used mappings formatted for oracle prompts.
func (s *mappingService) TopHints(userID uint, limit int) ([]oracle.MappingHint, error) {
	if limit <= 0 {
		limit = oracle.MaxMappingHints
	}

	var mappings []models.TransactionMapping
	err := s.db.Preload("Ledger").
		Where("user_id = ?", userID).
		Order("usage_count DESC, last_used_at DESC").
		Limit(limit).
		Find(&mappings).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	hints := make([]oracle.MappingHint, 0, len(mappings))
	for _, m := range mappings {
		hints = append(hints, oracle.MappingHint{
			Particulars: m.ParticularsPattern,
			LedgerName:  m.Ledger.Name,
		})
	}
	return hints, nil
}

// ListByUser returns all learned mappings, most used first.
func (s *mappingService) ListByUser(userID uint) ([]models.TransactionMapping, error) {
	var mappings []models.TransactionMapping
	err := s.db.Preload("Ledger").
		Where("user_id = ?", userID).
		Order("usage_count DESC, last_used_at DESC").
		Find(&mappings).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return mappings, nil
}
