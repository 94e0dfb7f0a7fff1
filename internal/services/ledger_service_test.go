package services

import (
	"testing"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/testutil"
)

func TestCreateLedger_CaseInsensitiveUniqueness(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewLedgerService(db)
	user := testutil.CreateTestUser(t, db)

	_, err := svc.CreateLedger(user.ID, "Groceries", models.LedgerTypeExpense)
	testutil.AssertNoError(t, err)

	_, err = svc.CreateLedger(user.ID, "GROCERIES", models.LedgerTypeExpense)
	testutil.AssertAppError(t, err, apperrors.ErrDuplicateLedger.Code)

	// Another user can reuse the name.
	other := testutil.CreateTestUser(t, db)
	_, err = svc.CreateLedger(other.ID, "Groceries", models.LedgerTypeExpense)
	testutil.AssertNoError(t, err)
}

func TestUpdateLedger_RenameOnly(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewLedgerService(db)
	user := testutil.CreateTestUser(t, db)

	ledger, err := svc.CreateLedger(user.ID, "Food", models.LedgerTypeExpense)
	testutil.AssertNoError(t, err)
	_, err = svc.CreateLedger(user.ID, "Travel", models.LedgerTypeExpense)
	testutil.AssertNoError(t, err)

	name := "Dining"
	updated, err := svc.UpdateLedger(user.ID, ledger.ID, &name)
	testutil.AssertNoError(t, err)
	if updated.Name != "Dining" {
		t.Errorf("expected rename to Dining, got %s", updated.Name)
	}

	clash := "travel"
	_, err = svc.UpdateLedger(user.ID, ledger.ID, &clash)
	testutil.AssertAppError(t, err, apperrors.ErrDuplicateLedger.Code)
}

func TestEnsureUncategorized(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewLedgerService(db)
	user := testutil.CreateTestUser(t, db)

	first, err := svc.EnsureUncategorized(user.ID)
	testutil.AssertNoError(t, err)
	if first.Name != models.UncategorizedLedgerName {
		t.Errorf("unexpected name %s", first.Name)
	}
	if first.Type != models.LedgerTypeExpense {
		t.Errorf("fallback ledger should be an expense ledger, got %s", first.Type)
	}

	second, err := svc.EnsureUncategorized(user.ID)
	testutil.AssertNoError(t, err)
	if second.ID != first.ID {
		t.Error("EnsureUncategorized must be idempotent")
	}

	var count int64
	db.Model(&models.Ledger{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 ledger, got %d", count)
	}
}
