package oracle

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finbook/internal/models"
)

// buildSuggestPrompt embeds the transaction text, the user's ledger
// taxonomy, and up to MaxMappingHints learned mappings.
func buildSuggestPrompt(particulars string, amount int64, direction models.TransactionDirection, ledgers []LedgerInfo, hints []MappingHint) string {
	var b strings.Builder

	b.WriteString("You are a personal finance categorization assistant for Indian bank transactions.\n\n")
	b.WriteString("Categorize this transaction:\n")
	fmt.Fprintf(&b, "- Particulars: %s\n", particulars)
	fmt.Fprintf(&b, "- Amount: %s\n", decimal.New(amount, -2).StringFixed(2))
	fmt.Fprintf(&b, "- Direction: %s\n\n", direction)

	if len(ledgers) > 0 {
		b.WriteString("Choose the ledger_name from these existing ledgers when one fits:\n")
		for _, l := range ledgers {
			fmt.Fprintf(&b, "- %s (%s)\n", l.Name, l.Type)
		}
		b.WriteString("Only propose a new ledger name when none of the above fits.\n\n")
	} else {
		b.WriteString("The user has no ledgers yet; propose a sensible ledger name.\n\n")
	}

	if len(hints) > 0 {
		if len(hints) > MaxMappingHints {
			hints = hints[:MaxMappingHints]
		}
		b.WriteString("The user previously categorized similar transactions like this:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %q -> %s\n", h.Particulars, h.LedgerName)
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with STRICT JSON only, no code fences, no extra text:\n")
	b.WriteString(`{"ledger_name": string, "narration": string, "confidence": number between 0 and 1}`)
	b.WriteString("\n")
	b.WriteString("narration is a short, human-readable description of the transaction.\n")

	return b.String()
}

// buildExtractPrompt instructs the model to read an attached statement
// document and return every transaction plus the detected account identity.
func buildExtractPrompt(ledgers []LedgerInfo) string {
	var b strings.Builder

	b.WriteString("You are a bank statement parser.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Parse ALL transactions in the attached bank statement.\n")
	b.WriteString("- Detect the bank name and account number if shown.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n")
	b.WriteString("Output shape:\n")
	b.WriteString("{\n")
	b.WriteString("  \"bank_name\": string or \"\",\n")
	b.WriteString("  \"account_number\": string or \"\",\n")
	b.WriteString("  \"transactions\": [\n")
	b.WriteString("    {\n")
	b.WriteString("      \"date\": string, ISO format \"YYYY-MM-DD\",\n")
	b.WriteString("      \"particulars\": string,\n")
	b.WriteString("      \"amount\": number, always positive,\n")
	b.WriteString("      \"direction\": \"DEBIT\" or \"CREDIT\",\n")
	b.WriteString("      \"balance_after\": number or null,\n")
	b.WriteString("      \"reference_number\": string or \"\"\n")
	b.WriteString("    }\n")
	b.WriteString("  ]\n")
	b.WriteString("}\n\n")

	if len(ledgers) > 0 {
		b.WriteString("For context, the user tracks these ledgers:\n")
		for _, l := range ledgers {
			fmt.Fprintf(&b, "- %s (%s)\n", l.Name, l.Type)
		}
		b.WriteString("\n")
	}

	b.WriteString("Rules:\n")
	b.WriteString("- If the statement has separate withdrawal/deposit columns, set direction accordingly.\n")
	b.WriteString("- If the running balance is missing, set \"balance_after\" to null.\n")
	b.WriteString("- Preserve the statement's own transaction order.\n")
	b.WriteString("Return ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")

	return b.String()
}
