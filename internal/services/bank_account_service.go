package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
)

// bankAccountService handles bank account business logic.
type bankAccountService struct {
	db *gorm.DB
}

// NewBankAccountService creates a new BankAccountServicer.
func NewBankAccountService(db *gorm.DB) BankAccountServicer {
	return &bankAccountService{db: db}
}

// CreateBankAccount creates a bank account. CurrentBalance starts equal to
// OpeningBalance and only ever moves via posting increments.
func (s *bankAccountService) CreateBankAccount(userID uint, name, accountNumber string, accountType models.BankAccountType, openingBalance int64) (*models.BankAccount, error) {
	if name == "" || accountNumber == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "name and account number are required")
	}

	var count int64
	s.db.Model(&models.BankAccount{}).
		Where("user_id = ? AND account_number = ?", userID, accountNumber).
		Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateBankAccount
	}

	account := &models.BankAccount{
		UserID:         userID,
		Name:           name,
		AccountNumber:  accountNumber,
		Type:           accountType,
		OpeningBalance: openingBalance,
		CurrentBalance: openingBalance,
		IsActive:       true,
	}
	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return account, nil
}

// GetUserBankAccounts returns all active accounts for a user.
func (s *bankAccountService) GetUserBankAccounts(userID uint) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	if err := s.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return accounts, nil
}

// GetBankAccountByID returns an account owned by the user.
func (s *bankAccountService) GetBankAccountByID(userID, accountID uint) (*models.BankAccount, error) {
	var account models.BankAccount
	if err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBankAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// UpdateBankAccount updates mutable fields. Balances are not updatable here.
func (s *bankAccountService) UpdateBankAccount(userID, accountID uint, name *string, accountType *models.BankAccountType, isActive *bool) (*models.BankAccount, error) {
	account, err := s.GetBankAccountByID(userID, accountID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name != nil && *name != "" {
		updates["name"] = *name
	}
	if accountType != nil {
		updates["type"] = *accountType
	}
	if isActive != nil {
		updates["is_active"] = *isActive
	}
	if len(updates) == 0 {
		return account, nil
	}

	if err := s.db.Model(account).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return account, nil
}

// MatchDetectedAccount resolves a statement's detected identity against the
// user's accounts. An account number match wins outright; otherwise the
// detected name must contain (or be contained by) the account name
// case-insensitively and the last four digits must agree.
func (s *bankAccountService) MatchDetectedAccount(userID uint, detectedName, detectedNumber string) (*models.BankAccount, error) {
	accounts, err := s.GetUserBankAccounts(userID)
	if err != nil {
		return nil, err
	}

	detectedNumber = normalizeAccountNumber(detectedNumber)
	nameLower := strings.ToLower(strings.TrimSpace(detectedName))

	for i := range accounts {
		if detectedNumber != "" && normalizeAccountNumber(accounts[i].AccountNumber) == detectedNumber {
			return &accounts[i], nil
		}
	}

	if nameLower == "" || len(detectedNumber) < 4 {
		return nil, nil
	}
	tail := detectedNumber[len(detectedNumber)-4:]

	for i := range accounts {
		accName := strings.ToLower(accounts[i].Name)
		nameHit := strings.Contains(nameLower, accName) || strings.Contains(accName, nameLower)
		if nameHit && accounts[i].LastFour() == tail {
			return &accounts[i], nil
		}
	}

	return nil, nil
}

// normalizeAccountNumber strips spaces and mask characters so masked
// statement numbers like "XXXX XXXX 1234" still compare on real digits.
func normalizeAccountNumber(n string) string {
	var b strings.Builder
	for _, r := range n {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
