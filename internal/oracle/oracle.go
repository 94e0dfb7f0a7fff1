// Package oracle wraps the external LLM categorization service. The model
// is treated as a fallible black box: prompt text (plus optional inline file
// bytes) in, raw text out. All failures map to typed application errors so
// callers can downgrade to an uncategorized suggestion instead of blocking.
package oracle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	apperrors "finbook/internal/errors"
	"finbook/internal/logger"
	"finbook/internal/models"
)

// FilePart is an inline file attached to a generation request.
type FilePart struct {
	MIMEType string
	Data     []byte
}

// Generator is the single operation consumed from the model provider.
// The concrete implementation is the Gemini client; tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string, file *FilePart) (string, error)
}

// LedgerInfo is the slice of ledger state the oracle is allowed to see.
type LedgerInfo struct {
	ID   uint
	Name string
	Type models.LedgerType
}

// MappingHint is one learned particulars-to-ledger association embedded in
// the prompt to bias suggestions toward the user's own history.
type MappingHint struct {
	Particulars string
	LedgerName  string
}

// MaxMappingHints caps how many historical mappings are embedded per prompt.
const MaxMappingHints = 10

// Suggestion is a successful categorization proposal. LedgerID is non-nil
// only when LedgerName resolved case-insensitively against a known ledger;
// the adapter never creates ledgers on its own authority.
type Suggestion struct {
	LedgerID   *uint   `json:"ledger_id,omitempty"`
	LedgerName string  `json:"ledger_name"`
	Narration  string  `json:"narration"`
	Confidence float64 `json:"confidence"`
}

// ExtractedTransaction is one statement line extracted by the model from an
// uploaded document.
type ExtractedTransaction struct {
	Date            string   `json:"date"`
	Particulars     string   `json:"particulars"`
	Amount          float64  `json:"amount"`
	Direction       string   `json:"direction"`
	BalanceAfter    *float64 `json:"balance_after"`
	ReferenceNumber string   `json:"reference_number"`
}

// StatementExtraction is the full result of a document extraction: the
// transactions plus whatever account identity the model could detect.
type StatementExtraction struct {
	BankName      string                 `json:"bank_name"`
	AccountNumber string                 `json:"account_number"`
	Transactions  []ExtractedTransaction `json:"transactions"`
}

// Adapter validates requests, invokes the generator with a bounded timeout
// and a single retry, and repairs/parses the model's response.
type Adapter struct {
	gen     Generator
	timeout time.Duration
}

// NewAdapter creates an oracle adapter. A nil generator means the service
// is not configured; every call fails fast with ORACLE_NOT_CONFIGURED
// without attempting a network call.
func NewAdapter(gen Generator, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Adapter{gen: gen, timeout: timeout}
}

// Suggest asks the model to categorize one transaction against the user's
// known ledgers and learned mapping hints.
func (a *Adapter) Suggest(ctx context.Context, particulars string, amount int64, direction models.TransactionDirection, ledgers []LedgerInfo, hints []MappingHint) (*Suggestion, error) {
	if a.gen == nil {
		return nil, apperrors.ErrOracleNotConfigured
	}

	prompt := buildSuggestPrompt(particulars, amount, direction, ledgers, hints)

	raw, err := a.generate(ctx, prompt, nil)
	if err != nil {
		return nil, err
	}

	var s Suggestion
	if err := json.Unmarshal([]byte(CleanModelJSON(raw)), &s); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrOracleMalformed, err)
	}
	if s.LedgerName == "" {
		return nil, apperrors.WithMessage(apperrors.ErrOracleMalformed, "response missing ledger_name")
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		s.Confidence = 0
	}

	resolveLedger(&s, ledgers)
	return &s, nil
}

// ExtractStatement asks the model to read an uploaded statement document
// and return its transactions plus the detected account identity.
func (a *Adapter) ExtractStatement(ctx context.Context, file FilePart, ledgers []LedgerInfo) (*StatementExtraction, error) {
	if a.gen == nil {
		return nil, apperrors.ErrOracleNotConfigured
	}

	prompt := buildExtractPrompt(ledgers)

	raw, err := a.generate(ctx, prompt, &file)
	if err != nil {
		return nil, err
	}

	var ex StatementExtraction
	if err := json.Unmarshal([]byte(CleanModelJSON(raw)), &ex); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrOracleMalformed, err)
	}

	// Drop rows the model produced without the required fields rather than
	// failing the whole extraction.
	valid := ex.Transactions[:0]
	for _, tx := range ex.Transactions {
		if tx.Date == "" || tx.Amount <= 0 {
			continue
		}
		d := strings.ToUpper(tx.Direction)
		if d != string(models.DirectionDebit) && d != string(models.DirectionCredit) {
			continue
		}
		tx.Direction = d
		if tx.Particulars == "" {
			tx.Particulars = "Transaction"
		}
		valid = append(valid, tx)
	}
	ex.Transactions = valid

	return &ex, nil
}

// generate runs one model call with a bounded timeout, retrying once on
// transient failure before reporting the service unavailable.
func (a *Adapter) generate(ctx context.Context, prompt string, file *FilePart) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		raw, err := a.gen.Generate(callCtx, prompt, file)
		cancel()

		if err == nil {
			if strings.TrimSpace(raw) == "" {
				return "", apperrors.WithMessage(apperrors.ErrOracleMalformed, "empty response from model")
			}
			return raw, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			// Caller cancelled; do not retry a dead request.
			break
		}
		logger.Get().Warnw("oracle call failed", "attempt", attempt+1, "error", err)
	}
	return "", apperrors.Wrap(apperrors.ErrOracleUnavailable, lastErr)
}

// resolveLedger matches the suggested ledger name against known ledgers
// case-insensitively and fills LedgerID on an exact match.
func resolveLedger(s *Suggestion, ledgers []LedgerInfo) {
	for _, l := range ledgers {
		if strings.EqualFold(l.Name, s.LedgerName) {
			id := l.ID
			s.LedgerID = &id
			s.LedgerName = l.Name
			return
		}
	}
}

// CleanModelJSON strips Markdown code-fence markup the model sometimes
// wraps around its output despite instructions.
func CleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
