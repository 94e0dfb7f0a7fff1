package services

import (
	"testing"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/testutil"
)

func TestCreateBankAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewBankAccountService(db)
	user := testutil.CreateTestUser(t, db)

	account, err := svc.CreateBankAccount(user.ID, "HDFC Salary", "50100123456789", models.BankAccountTypeSavings, 150000)
	testutil.AssertNoError(t, err)

	if account.CurrentBalance != 150000 {
		t.Errorf("current balance should start at the opening balance, got %d", account.CurrentBalance)
	}
	if !account.IsActive {
		t.Error("new accounts should be active")
	}

	_, err = svc.CreateBankAccount(user.ID, "Duplicate", "50100123456789", models.BankAccountTypeSavings, 0)
	testutil.AssertAppError(t, err, apperrors.ErrDuplicateBankAccount.Code)
}

func TestGetBankAccountByID_OwnershipScoped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewBankAccountService(db)
	owner := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, owner.ID)

	_, err := svc.GetBankAccountByID(owner.ID, account.ID)
	testutil.AssertNoError(t, err)

	_, err = svc.GetBankAccountByID(other.ID, account.ID)
	testutil.AssertAppError(t, err, apperrors.ErrBankAccountNotFound.Code)
}

func TestMatchDetectedAccount_NumberWins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewBankAccountService(db)
	user := testutil.CreateTestUser(t, db)

	account, err := svc.CreateBankAccount(user.ID, "HDFC Salary", "50100123456789", models.BankAccountTypeSavings, 0)
	testutil.AssertNoError(t, err)

	// Statements often present the number with spaces or masking.
	got, err := svc.MatchDetectedAccount(user.ID, "Some Other Bank", "5010 0123 4567 89")
	testutil.AssertNoError(t, err)
	if got == nil || got.ID != account.ID {
		t.Fatal("expected the number match to win regardless of name")
	}
}

func TestMatchDetectedAccount_NameAndLastFour(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewBankAccountService(db)
	user := testutil.CreateTestUser(t, db)

	account, err := svc.CreateBankAccount(user.ID, "HDFC", "50100123456789", models.BankAccountTypeSavings, 0)
	testutil.AssertNoError(t, err)

	got, err := svc.MatchDetectedAccount(user.ID, "HDFC Bank Ltd", "XXXX XXXX 6789")
	testutil.AssertNoError(t, err)
	if got == nil || got.ID != account.ID {
		t.Fatal("expected name containment plus last-4 to match")
	}

	// Right name, wrong tail.
	got, err = svc.MatchDetectedAccount(user.ID, "HDFC Bank Ltd", "XXXX XXXX 0000")
	testutil.AssertNoError(t, err)
	if got != nil {
		t.Error("mismatched last-4 must not match on name alone")
	}
}

func TestMatchDetectedAccount_NoMatchIsNotAnError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewBankAccountService(db)
	user := testutil.CreateTestUser(t, db)
	testutil.CreateTestBankAccount(t, db, user.ID)

	got, err := svc.MatchDetectedAccount(user.ID, "Unknown Bank", "9999")
	testutil.AssertNoError(t, err)
	if got != nil {
		t.Errorf("expected no match, got account %d", got.ID)
	}
}
