package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"finbook/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestBankAccount creates a savings account with zero balance.
func CreateTestBankAccount(t *testing.T, db *gorm.DB, userID uint) *models.BankAccount {
	t.Helper()
	return CreateTestBankAccountWithBalance(t, db, userID, 0)
}

// CreateTestBankAccountWithBalance creates a savings account with the given
// opening balance (in paise).
func CreateTestBankAccountWithBalance(t *testing.T, db *gorm.DB, userID uint, balance int64) *models.BankAccount {
	t.Helper()

	n := nextID()
	account := &models.BankAccount{
		UserID:         userID,
		Name:           fmt.Sprintf("Test Bank %d", n),
		AccountNumber:  fmt.Sprintf("5010012345%04d", n),
		Type:           models.BankAccountTypeSavings,
		OpeningBalance: balance,
		CurrentBalance: balance,
		IsActive:       true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test bank account: %v", err)
	}
	return account
}

// CreateTestLedger creates a ledger of the given type.
func CreateTestLedger(t *testing.T, db *gorm.DB, userID uint, ledgerType models.LedgerType) *models.Ledger {
	t.Helper()
	return CreateTestLedgerWithName(t, db, userID, fmt.Sprintf("Test Ledger %d", nextID()), ledgerType)
}

// CreateTestLedgerWithName creates a ledger with the given name and type.
func CreateTestLedgerWithName(t *testing.T, db *gorm.DB, userID uint, name string, ledgerType models.LedgerType) *models.Ledger {
	t.Helper()

	ledger := &models.Ledger{
		UserID: userID,
		Name:   name,
		Type:   ledgerType,
	}
	if err := db.Create(ledger).Error; err != nil {
		t.Fatalf("failed to create test ledger: %v", err)
	}
	return ledger
}

// CreateTestTransaction creates a confirmed transaction with the given
// direction and amount (in paise), categorized under the given ledger.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID uint, ledgerID uint, direction models.TransactionDirection, amount int64, particulars string) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:      userID,
		LedgerID:    &ledgerID,
		Date:        time.Now().Truncate(24 * time.Hour),
		Direction:   direction,
		Amount:      amount,
		Particulars: particulars,
		Confirmed:   true,
		Source:      models.SourceManual,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestMapping creates a learned categorization mapping.
func CreateTestMapping(t *testing.T, db *gorm.DB, userID uint, particulars string, ledgerID uint) *models.TransactionMapping {
	t.Helper()

	mapping := &models.TransactionMapping{
		UserID:             userID,
		ParticularsPattern: particulars,
		LedgerID:           ledgerID,
		ConfidenceScore:    0.9,
		UsageCount:         1,
		LastUsedAt:         time.Now(),
	}
	if err := db.Create(mapping).Error; err != nil {
		t.Fatalf("failed to create test mapping: %v", err)
	}
	return mapping
}
