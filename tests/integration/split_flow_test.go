package integration

import (
	"fmt"
	"net/http"
	"testing"
)

// setupSplitUsers registers a proposer with a posted dinner expense and a
// second user to share it with. Returns both tokens, the recipient's user ID,
// and the transaction ID.
func setupSplitUsers(t *testing.T, app *testApp) (tokenA, tokenB string, userB, txID float64) {
	t.Helper()
	tokenA, _, _ = app.registerUser(t, "proposer@test.com", "password123")
	tokenB, _, userB = app.registerUser(t, "friend@test.com", "password123")

	ledgerID := app.createLedger(t, tokenA, "Dining", "expense")
	rec := app.request("POST", "/api/v1/transactions",
		fmt.Sprintf(`{"date":"2026-08-10","direction":"DEBIT","amount":90000,"particulars":"DINNER AT TRATTORIA","ledger_id":%.0f}`, ledgerID), tokenA)
	if rec.Code != http.StatusCreated {
		t.Fatalf("dinner transaction failed: %d %s", rec.Code, rec.Body.String())
	}
	txID = parseJSON(t, rec)["id"].(float64)
	return tokenA, tokenB, userB, txID
}

func TestSplitFlow_ProposeAndAccept(t *testing.T) {
	app := setupApp(t)
	tokenA, tokenB, userB, txID := setupSplitUsers(t, app)

	// Step 1: Propose a 50% split of the 900.00 dinner
	rec := app.request("POST", "/api/v1/splits",
		fmt.Sprintf(`{"transaction_id":%.0f,"splits":[{"shared_with_user_id":%.0f,"percentage":50}],"notes":"your half"}`, txID, userB), tokenA)
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose failed: %d %s", rec.Code, rec.Body.String())
	}
	shares := parseJSON(t, rec)["shares"].([]interface{})
	if len(shares) != 1 {
		t.Fatalf("expected 1 share, got %d", len(shares))
	}
	share := shares[0].(map[string]interface{})
	shareID := share["id"].(float64)
	if share["split_amount"].(float64) != 45000 {
		t.Errorf("expected the percentage to resolve to 45000, got %v", share["split_amount"])
	}
	if share["status"] != "pending" {
		t.Errorf("expected pending, got %v", share["status"])
	}

	// Step 2: The recipient sees it in their inbox
	rec = app.request("GET", "/api/v1/splits/received", "", tokenB)
	if rec.Code != http.StatusOK {
		t.Fatalf("list received failed: %d %s", rec.Code, rec.Body.String())
	}
	inbox := parseJSON(t, rec)
	if inbox["total_items"].(float64) != 1 {
		t.Fatalf("expected 1 received share, got %v", inbox["total_items"])
	}

	// Step 3: Only the recipient may respond
	rec = app.request("POST", fmt.Sprintf("/api/v1/splits/%.0f/respond", shareID),
		`{"response":"accept"}`, tokenA)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for the proposer, got %d", rec.Code)
	}

	rec = app.request("POST", fmt.Sprintf("/api/v1/splits/%.0f/respond", shareID),
		`{"response":"accept"}`, tokenB)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept failed: %d %s", rec.Code, rec.Body.String())
	}
	resolved := parseJSON(t, rec)
	if resolved["status"] != "confirmed" {
		t.Errorf("expected confirmed, got %v", resolved["status"])
	}
	if resolved["confirmed_at"] == nil {
		t.Error("expected a confirmation timestamp")
	}

	// Step 4: Settlement is an acknowledgement only; it may not respond twice
	rec = app.request("POST", fmt.Sprintf("/api/v1/splits/%.0f/respond", shareID),
		`{"response":"reject"}`, tokenB)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on a second response, got %d", rec.Code)
	}

	// Step 5: The proposer sees the resolved share
	rec = app.request("GET", "/api/v1/splits/created", "", tokenA)
	if rec.Code != http.StatusOK {
		t.Fatalf("list created failed: %d %s", rec.Code, rec.Body.String())
	}
	created := parseJSON(t, rec)["data"].([]interface{})
	if created[0].(map[string]interface{})["status"] != "confirmed" {
		t.Error("the proposer's view should show confirmed")
	}
}

func TestSplitFlow_AcceptanceMovesNoBalances(t *testing.T) {
	app := setupApp(t)
	tokenA, tokenB, userB, _ := setupSplitUsers(t, app)

	accountID := app.createBankAccount(t, tokenA, "Checking", "11112222333344", 200000)
	rec := app.request("POST", "/api/v1/transactions",
		fmt.Sprintf(`{"date":"2026-08-11","direction":"DEBIT","amount":60000,"particulars":"GROCERIES SHARED","bank_account_id":%.0f}`, accountID), tokenA)
	if rec.Code != http.StatusCreated {
		t.Fatalf("transaction failed: %d %s", rec.Code, rec.Body.String())
	}
	txID := parseJSON(t, rec)["id"].(float64)

	rec = app.request("POST", "/api/v1/splits",
		fmt.Sprintf(`{"transaction_id":%.0f,"splits":[{"shared_with_user_id":%.0f,"amount":30000}],"affects_bank":true}`, txID, userB), tokenA)
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose failed: %d %s", rec.Code, rec.Body.String())
	}
	shareID := parseJSON(t, rec)["shares"].([]interface{})[0].(map[string]interface{})["id"].(float64)

	rec = app.request("POST", fmt.Sprintf("/api/v1/splits/%.0f/respond", shareID),
		`{"response":"accept"}`, tokenB)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept failed: %d %s", rec.Code, rec.Body.String())
	}

	// The debit itself moved the balance; the acceptance must not.
	rec = app.request("GET", fmt.Sprintf("/api/v1/bank-accounts/%.0f", accountID), "", tokenA)
	if parseJSON(t, rec)["current_balance"].(float64) != 140000 {
		t.Errorf("acceptance must not touch balances, got %v", parseJSON(t, rec)["current_balance"])
	}
}

func TestSplitFlow_SumCannotExceedAmount(t *testing.T) {
	app := setupApp(t)
	tokenA, _, userB, txID := setupSplitUsers(t, app)

	// 600.00 + 300.01 against a 900.00 dinner.
	rec := app.request("POST", "/api/v1/splits",
		fmt.Sprintf(`{"transaction_id":%.0f,"splits":[{"shared_with_user_id":%.0f,"amount":60000},{"shared_with_user_id":%.0f,"amount":30001}]}`, txID, userB, userB), tokenA)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	errObj := parseJSON(t, rec)["error"].(map[string]interface{})
	if errObj["code"] != "SPLIT_EXCEEDS_AMOUNT" {
		t.Errorf("expected SPLIT_EXCEEDS_AMOUNT, got %v", errObj["code"])
	}

	// The exact total is fine.
	rec = app.request("POST", "/api/v1/splits",
		fmt.Sprintf(`{"transaction_id":%.0f,"splits":[{"shared_with_user_id":%.0f,"amount":90000}]}`, txID, userB), tokenA)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 for an exact split, got %d: %s", rec.Code, rec.Body.String())
	}
}
