package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	apperrors "finbook/internal/errors"
	"finbook/internal/models"
	"finbook/internal/oracle"
	"finbook/internal/testutil"

	"gorm.io/gorm"
)

// stubGenerator feeds canned oracle responses to the import flow.
type stubGenerator struct {
	responses []string
	err       error
	calls     int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, file *oracle.FilePart) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", fmt.Errorf("stub exhausted")
	}
	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}
	return resp, nil
}

func newImportHarness(t *testing.T, db *gorm.DB, gen oracle.Generator) ImportServicer {
	t.Helper()
	posting := NewPostingService(db)
	ledgers := NewLedgerService(db)
	mappings := NewMappingService(db)
	var adapter *oracle.Adapter
	if gen != nil {
		adapter = oracle.NewAdapter(gen, time.Second)
	} else {
		adapter = oracle.NewAdapter(nil, time.Second)
	}
	return NewImportService(db, posting, ledgers, mappings, NewBankAccountService(db), adapter)
}

const statementText = `2024-03-01 SWIGGY ORDER 500.00
2024-03-02 SALARY CREDIT Rs. 50,000.00 CR
2024-03-03 UBER TRIP 250.00`

func startTextBatch(t *testing.T, svc ImportServicer, userID uint) *models.ImportBatch {
	t.Helper()
	batch, err := svc.StartText(context.Background(), userID, statementText)
	testutil.AssertNoError(t, err)
	return batch
}

func TestStartText_CreatesBatchAwaitingBankConfirm(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)

	batch := startTextBatch(t, svc, user.ID)

	if batch.Status != models.BatchStatusBankConfirm {
		t.Errorf("expected bank_confirm, got %s", batch.Status)
	}
	if batch.ItemCount != 3 {
		t.Fatalf("expected 3 items, got %d", batch.ItemCount)
	}
	if batch.Reference == "" {
		t.Error("batch reference not set")
	}
	for i, item := range batch.Items {
		if item.Position != i {
			t.Errorf("item %d has position %d", i, item.Position)
		}
		if item.Status != models.ItemStatusPending {
			t.Errorf("item %d not pending: %s", i, item.Status)
		}
	}
}

func TestStartText_NothingExtractedCreatesNoBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)

	_, err := svc.StartText(context.Background(), user.ID, "no transactions in this text")
	testutil.AssertAppError(t, err, apperrors.ErrNothingExtracted.Code)

	var count int64
	db.Model(&models.ImportBatch{}).Count(&count)
	if count != 0 {
		t.Errorf("failed extraction must not leave a batch, found %d", count)
	}
}

func TestConfirmBank_RequiresBankConfirmState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)

	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	// The batch is now in review; confirming the bank again is invalid.
	_, err = svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertAppError(t, err, apperrors.ErrBatchWrongState.Code)
}

func TestConfirmBank_SuggestionCascade(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	gen := &stubGenerator{responses: []string{
		"```json\n{\"ledger_name\": \"Transport\", \"narration\": \"cab ride\", \"confidence\": 0.8}\n```",
	}}
	svc := newImportHarness(t, db, gen)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	food := testutil.CreateTestLedgerWithName(t, db, user.ID, "Food", models.LedgerTypeExpense)
	salary := testutil.CreateTestLedgerWithName(t, db, user.ID, "Salary", models.LedgerTypeIncome)
	testutil.CreateTestLedgerWithName(t, db, user.ID, "Transport", models.LedgerTypeExpense)

	// Tier 1 for the first item: exact mapping cache.
	testutil.CreateTestMapping(t, db, user.ID, "SWIGGY ORDER", food.ID)
	// Tier 2 for the second item: near-identical confirmed history.
	testutil.CreateTestTransaction(t, db, user.ID, salary.ID, models.DirectionCredit, 5000000, "SALARY CREDIT FEB")

	batch := startTextBatch(t, svc, user.ID)
	batch, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	if batch.Status != models.BatchStatusReview {
		t.Fatalf("expected review, got %s", batch.Status)
	}

	first := batch.Items[0]
	if first.SuggestedLedgerID == nil || *first.SuggestedLedgerID != food.ID {
		t.Error("exact mapping cache should have categorized the first item")
	}
	if !first.AutoMatched {
		t.Error("cache hits are auto matches")
	}

	second := batch.Items[1]
	if second.SuggestedLedgerID == nil || *second.SuggestedLedgerID != salary.ID {
		t.Error("fuzzy history should have categorized the second item")
	}
	if second.Confidence != 0.95 {
		t.Errorf("fuzzy matches carry 0.95 confidence, got %f", second.Confidence)
	}

	third := batch.Items[2]
	if third.SuggestedLedgerName != "Transport" {
		t.Errorf("oracle should have categorized the third item, got %q", third.SuggestedLedgerName)
	}
	if third.SuggestedLedgerID == nil {
		t.Error("oracle name should have resolved to a ledger ID")
	}
	if third.AutoMatched {
		t.Error("oracle suggestions are not auto matches")
	}
	if gen.calls != 1 {
		t.Errorf("expected exactly 1 oracle call, got %d", gen.calls)
	}
}

func TestConfirmBank_OracleDownFallsBackUncategorized(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// No API key configured: every oracle request fails fast.
	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	batch, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	for i, item := range batch.Items {
		if item.SuggestedLedgerID != nil {
			t.Errorf("item %d should have no ledger suggestion", i)
		}
		if item.SuggestedLedgerName != models.UncategorizedLedgerName {
			t.Errorf("item %d should fall back to %s, got %q", i, models.UncategorizedLedgerName, item.SuggestedLedgerName)
		}
		if item.Confidence != 0 {
			t.Errorf("item %d fallback should carry zero confidence", i)
		}
	}
}

func TestFallbackPostDoesNotStickInCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccountWithBalance(t, db, user.ID, 10000000)

	// First import with the oracle down: everything posts uncategorized.
	svc := newImportHarness(t, db, nil)
	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)
	_, err = svc.SaveAllRemaining(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)

	var cached int64
	db.Model(&models.TransactionMapping{}).Where("user_id = ?", user.ID).Count(&cached)
	if cached != 0 {
		t.Fatalf("the uncategorized fallback must not be learned, found %d mappings", cached)
	}

	// Once the oracle recovers, the same particulars reach it again
	// instead of replaying the fallback from cache or history.
	transport := testutil.CreateTestLedgerWithName(t, db, user.ID, "Transport", models.LedgerTypeExpense)
	gen := &stubGenerator{responses: []string{
		"```json\n{\"ledger_name\": \"Transport\", \"narration\": \"\", \"confidence\": 0.8}\n```",
	}}
	recovered := newImportHarness(t, db, gen)
	batch2 := startTextBatch(t, recovered, user.ID)
	batch2, err = recovered.ConfirmBank(context.Background(), user.ID, batch2.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	if gen.calls == 0 {
		t.Fatal("the oracle was never consulted after recovering")
	}
	first := batch2.Items[0]
	if first.SuggestedLedgerID == nil || *first.SuggestedLedgerID != transport.ID {
		t.Errorf("expected the Transport suggestion, got %q", first.SuggestedLedgerName)
	}
}

func TestConfirmBank_CashImport(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccountWithBalance(t, db, user.ID, 100000)

	batch := startTextBatch(t, svc, user.ID)

	// Confirming with no account leaves the batch bankless.
	batch, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, 0, nil)
	testutil.AssertNoError(t, err)
	if batch.Status != models.BatchStatusReview {
		t.Fatalf("expected review, got %s", batch.Status)
	}
	if batch.BankAccountID != nil {
		t.Fatal("cash imports must not bind a bank account")
	}

	// Posting items touches ledgers only; the bank balance never moves.
	_, err = svc.SaveAllRemaining(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)

	var fresh models.BankAccount
	db.First(&fresh, account.ID)
	if fresh.CurrentBalance != 100000 {
		t.Errorf("bank balance must be untouched, got %d", fresh.CurrentBalance)
	}

	var tx models.Transaction
	db.Where("user_id = ?", user.ID).First(&tx)
	if tx.BankAccountID != nil {
		t.Error("cash-import transactions must carry no bank account")
	}
}

func TestConfirmBank_CreatesAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)

	batch := startTextBatch(t, svc, user.ID)

	batch, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, 0, &NewBankAccount{
		Name:           "HDFC Savings",
		AccountNumber:  "50100987654321",
		Type:           models.BankAccountTypeSavings,
		OpeningBalance: 100000,
	})
	testutil.AssertNoError(t, err)
	if batch.Status != models.BatchStatusReview {
		t.Fatalf("expected review, got %s", batch.Status)
	}
	if batch.BankAccountID == nil {
		t.Fatal("expected the batch bound to the new account")
	}

	var acc models.BankAccount
	testutil.AssertNoError(t, db.First(&acc, *batch.BankAccountID).Error)
	if acc.Name != "HDFC Savings" || acc.UserID != user.ID {
		t.Errorf("unexpected account %q for user %d", acc.Name, acc.UserID)
	}
	if acc.CurrentBalance != 100000 {
		t.Errorf("expected the opening balance carried over, got %d", acc.CurrentBalance)
	}
}

func TestStartDocument_PreselectsDetectedAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	extraction := fmt.Sprintf("```json\n{\"bank_name\":\"HDFC\",\"account_number\":%q,\"transactions\":[{\"date\":\"2024-03-01\",\"particulars\":\"SWIGGY ORDER\",\"amount\":500.0,\"direction\":\"DEBIT\"}]}\n```", account.AccountNumber)
	gen := &stubGenerator{responses: []string{extraction}}
	svc := newImportHarness(t, db, gen)

	batch, err := svc.StartDocument(context.Background(), user.ID, "application/pdf", []byte("%PDF-1.4"))
	testutil.AssertNoError(t, err)

	if batch.Status != models.BatchStatusBankConfirm {
		t.Fatalf("expected bank_confirm, got %s", batch.Status)
	}
	if batch.DetectedAccountNumber != account.AccountNumber {
		t.Errorf("detected number not recorded, got %q", batch.DetectedAccountNumber)
	}
	if batch.BankAccountID == nil || *batch.BankAccountID != account.ID {
		t.Fatal("expected the detected identity to pre-select the account")
	}

	// Confirming with zero accepts the pre-selection.
	batch, err = svc.ConfirmBank(context.Background(), user.ID, batch.Reference, 0, nil)
	testutil.AssertNoError(t, err)
	if batch.BankAccountID == nil || *batch.BankAccountID != account.ID {
		t.Error("zero-account confirm must keep the pre-selected account")
	}
}

func TestStartDocument_DroppedRowKeepsDetailAligned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)

	// The first extracted row has an impossible date and is dropped; the
	// surviving rows must keep their own balances and references.
	extraction := "```json\n{\"transactions\":[" +
		"{\"date\":\"2024-13-01\",\"particulars\":\"GHOST ROW\",\"amount\":10.0,\"direction\":\"DEBIT\",\"balance_after\":111.0,\"reference_number\":\"REF-GHOST\"}," +
		"{\"date\":\"2024-03-02\",\"particulars\":\"GROCERY STORE\",\"amount\":20.0,\"direction\":\"DEBIT\",\"balance_after\":222.0,\"reference_number\":\"REF-GROCERY\"}," +
		"{\"date\":\"2024-03-03\",\"particulars\":\"SALARY\",\"amount\":30.0,\"direction\":\"CREDIT\",\"balance_after\":333.0,\"reference_number\":\"REF-SALARY\"}" +
		"]}\n```"
	gen := &stubGenerator{responses: []string{extraction}}
	svc := newImportHarness(t, db, gen)

	batch, err := svc.StartDocument(context.Background(), user.ID, "application/pdf", []byte("%PDF-1.4"))
	testutil.AssertNoError(t, err)

	if batch.ItemCount != 2 {
		t.Fatalf("expected 2 surviving items, got %d", batch.ItemCount)
	}

	first := batch.Items[0]
	if first.Particulars != "GROCERY STORE" || first.ReferenceNumber != "REF-GROCERY" {
		t.Errorf("item 0 detail misaligned: %q carries reference %q", first.Particulars, first.ReferenceNumber)
	}
	if first.BalanceAfter == nil || *first.BalanceAfter != 22200 {
		t.Errorf("item 0 balance_after = %v, want 22200", first.BalanceAfter)
	}

	second := batch.Items[1]
	if second.Particulars != "SALARY" || second.ReferenceNumber != "REF-SALARY" {
		t.Errorf("item 1 detail misaligned: %q carries reference %q", second.Particulars, second.ReferenceNumber)
	}
	if second.BalanceAfter == nil || *second.BalanceAfter != 33300 {
		t.Errorf("item 1 balance_after = %v, want 33300", second.BalanceAfter)
	}
}

func TestConfirmNext_PostsAndAdvances(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccountWithBalance(t, db, user.ID, 10000000)
	food := testutil.CreateTestLedgerWithName(t, db, user.ID, "Food", models.LedgerTypeExpense)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	batch, err = svc.ConfirmNext(user.ID, batch.Reference, &ItemEdit{LedgerID: &food.ID})
	testutil.AssertNoError(t, err)
	if batch.Cursor != 1 {
		t.Errorf("expected cursor 1, got %d", batch.Cursor)
	}

	item := batch.Items[0]
	if item.Status != models.ItemStatusPosted {
		t.Fatalf("expected posted, got %s", item.Status)
	}
	if item.TransactionID == nil {
		t.Fatal("posted item should link its transaction")
	}

	var tx models.Transaction
	testutil.AssertNoError(t, db.First(&tx, *item.TransactionID).Error)
	if !tx.Confirmed {
		t.Error("imported transaction should be confirmed")
	}
	if tx.ImportKey == nil || *tx.ImportKey != fmt.Sprintf("%s:0", batch.Reference) {
		t.Error("import key not derived from batch reference and position")
	}

	// The 500.00 credit landed on the bank balance.
	var gotAccount models.BankAccount
	testutil.AssertNoError(t, db.First(&gotAccount, account.ID).Error)
	if gotAccount.CurrentBalance != 10000000+50000 {
		t.Errorf("expected balance %d, got %d", 10000000+50000, gotAccount.CurrentBalance)
	}

	// The confirmed choice is learned.
	var mapping models.TransactionMapping
	testutil.AssertNoError(t, db.Where("user_id = ? AND particulars_pattern = ?", user.ID, "SWIGGY ORDER").First(&mapping).Error)
	if mapping.LedgerID != food.ID {
		t.Errorf("mapping should record the confirmed ledger, got %d", mapping.LedgerID)
	}
}

func TestConfirmNext_CreateLedgerEdit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	batch, err = svc.ConfirmNext(user.ID, batch.Reference, &ItemEdit{
		CreateLedger: &NewLedger{Name: "Takeout", Type: models.LedgerTypeExpense},
	})
	testutil.AssertNoError(t, err)

	var ledger models.Ledger
	testutil.AssertNoError(t, db.Where("user_id = ? AND name = ?", user.ID, "Takeout").First(&ledger).Error)

	item := batch.Items[0]
	if item.SuggestedLedgerID == nil || *item.SuggestedLedgerID != ledger.ID {
		t.Error("item should have posted under the newly created ledger")
	}
}

func TestSkipAndBack(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	batch, err = svc.Skip(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Cursor != 1 {
		t.Errorf("expected cursor 1 after skip, got %d", batch.Cursor)
	}
	if batch.Items[0].Status != models.ItemStatusSkipped {
		t.Errorf("expected skipped, got %s", batch.Items[0].Status)
	}

	batch, err = svc.Back(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Cursor != 0 {
		t.Errorf("expected cursor 0 after back, got %d", batch.Cursor)
	}
	// Revisiting a skipped item makes it reviewable again.
	if batch.Items[0].Status != models.ItemStatusPending {
		t.Errorf("expected pending after back, got %s", batch.Items[0].Status)
	}

	// Back at position zero stays put.
	batch, err = svc.Back(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Cursor != 0 {
		t.Errorf("back at zero moved the cursor to %d", batch.Cursor)
	}
}

func TestReviewCompletion(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	for i := 0; i < batch.ItemCount; i++ {
		batch, err = svc.ConfirmNext(user.ID, batch.Reference, nil)
		testutil.AssertNoError(t, err)
	}

	if batch.Status != models.BatchStatusDone {
		t.Errorf("expected done after the last item, got %s", batch.Status)
	}

	// A finished batch accepts no further review actions.
	_, err = svc.ConfirmNext(user.ID, batch.Reference, nil)
	testutil.AssertAppError(t, err, apperrors.ErrBatchWrongState.Code)
}

func TestSaveAllRemaining(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	// Review the first item by hand, bulk-commit the rest.
	_, err = svc.ConfirmNext(user.ID, batch.Reference, nil)
	testutil.AssertNoError(t, err)

	result, err := svc.SaveAllRemaining(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if result.Posted != 2 {
		t.Errorf("expected 2 bulk posts, got %d", result.Posted)
	}
	if result.FailedIndex != nil {
		t.Errorf("unexpected failure at %d", *result.FailedIndex)
	}

	batch, err = svc.GetBatch(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Status != models.BatchStatusDone {
		t.Errorf("expected done, got %s", batch.Status)
	}
}

func TestSaveAllRemaining_SkippedItemsStaySkipped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	_, err = svc.Skip(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)

	// Bulk save operates from the cursor but must not resurrect the
	// skipped first item.
	_, err = svc.Back(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	_, err = svc.Skip(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)

	result, err := svc.SaveAllRemaining(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if result.Posted != 2 {
		t.Errorf("expected 2 posts with one skipped, got %d", result.Posted)
	}

	batch, err = svc.GetBatch(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Items[0].Status != models.ItemStatusSkipped {
		t.Errorf("skipped item was committed: %s", batch.Items[0].Status)
	}
}

func TestSaveAllRemaining_HaltsAtFirstFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccount(t, db, user.ID)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	// Sabotage the second item so its post is rejected.
	testutil.AssertNoError(t, db.Model(&models.ImportItem{}).
		Where("batch_id = ? AND position = ?", batch.ID, 1).
		Update("amount", -1).Error)

	result, err := svc.SaveAllRemaining(user.ID, batch.Reference)
	if err == nil {
		t.Fatal("expected the bulk save to halt with an error")
	}
	if result == nil {
		t.Fatal("halted save must still report progress")
	}
	if result.Posted != 1 {
		t.Errorf("expected 1 post before the halt, got %d", result.Posted)
	}
	if result.FailedIndex == nil || *result.FailedIndex != 1 {
		t.Fatalf("expected failure at index 1, got %v", result.FailedIndex)
	}

	// The batch parks in review at the failing item; the first post stays.
	batch, err = svc.GetBatch(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Status != models.BatchStatusReview {
		t.Errorf("expected review, got %s", batch.Status)
	}
	if batch.Cursor != 1 {
		t.Errorf("expected cursor parked at 1, got %d", batch.Cursor)
	}
	if batch.Items[0].Status != models.ItemStatusPosted {
		t.Errorf("post before the halt was lost: %s", batch.Items[0].Status)
	}
	if batch.Items[2].Status != models.ItemStatusPending {
		t.Errorf("item after the halt should stay pending: %s", batch.Items[2].Status)
	}
}

func TestCancel(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestBankAccountWithBalance(t, db, user.ID, 10000000)

	batch := startTextBatch(t, svc, user.ID)
	_, err := svc.ConfirmBank(context.Background(), user.ID, batch.Reference, account.ID, nil)
	testutil.AssertNoError(t, err)

	_, err = svc.ConfirmNext(user.ID, batch.Reference, nil)
	testutil.AssertNoError(t, err)

	batch, err = svc.Cancel(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Status != models.BatchStatusCancelled {
		t.Fatalf("expected cancelled, got %s", batch.Status)
	}

	batch, err = svc.GetBatch(user.ID, batch.Reference)
	testutil.AssertNoError(t, err)
	if batch.Items[0].Status != models.ItemStatusPosted {
		t.Error("cancel must not roll back posted items")
	}
	for _, item := range batch.Items[1:] {
		if item.Status != models.ItemStatusDiscarded {
			t.Errorf("expected discarded, got %s", item.Status)
		}
	}

	// The posted item's balance effect survives the cancel.
	var gotAccount models.BankAccount
	testutil.AssertNoError(t, db.First(&gotAccount, account.ID).Error)
	if gotAccount.CurrentBalance == 10000000 {
		t.Error("posted item's balance delta should remain applied")
	}

	// Cancelling twice is invalid.
	_, err = svc.Cancel(user.ID, batch.Reference)
	testutil.AssertAppError(t, err, apperrors.ErrBatchWrongState.Code)
}

func TestGetBatch_ScopedToOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := newImportHarness(t, db, nil)
	owner := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)

	batch := startTextBatch(t, svc, owner.ID)

	_, err := svc.GetBatch(other.ID, batch.Reference)
	testutil.AssertAppError(t, err, apperrors.ErrBatchNotFound.Code)
}
