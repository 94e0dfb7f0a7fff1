package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "finbook/internal/errors"
	"finbook/internal/logger"
	"finbook/internal/match"
	"finbook/internal/models"
	"finbook/internal/oracle"
	"finbook/internal/statement"
	"finbook/internal/uuid"
)

// importService drives the statement review state machine. All batch
// mutations are gated by the cursor: items commit strictly in sequence, one
// atomic post per item, never a transaction spanning the whole batch.
type importService struct {
	db       *gorm.DB
	posting  PostingServicer
	ledgers  LedgerServicer
	mappings MappingServicer
	accounts BankAccountServicer
	oracle   *oracle.Adapter
}

// NewImportService creates a new ImportServicer.
func NewImportService(db *gorm.DB, posting PostingServicer, ledgers LedgerServicer, mappings MappingServicer, accounts BankAccountServicer, oracleAdapter *oracle.Adapter) ImportServicer {
	return &importService{
		db:       db,
		posting:  posting,
		ledgers:  ledgers,
		mappings: mappings,
		accounts: accounts,
		oracle:   oracleAdapter,
	}
}

// StartText begins a batch from free-form statement text.
func (s *importService) StartText(ctx context.Context, userID uint, text string) (*models.ImportBatch, error) {
	raw := statement.ParseText(text)
	return s.createBatch(userID, models.SourceUpload, raw, "", "")
}

// StartTabular begins a batch from spreadsheet rows.
func (s *importService) StartTabular(ctx context.Context, userID uint, rows [][]string) (*models.ImportBatch, error) {
	raw := statement.ParseTabular(rows)
	return s.createBatch(userID, models.SourceUpload, raw, "", "")
}

// StartDocument begins a batch from an uploaded document, extracted through
// the oracle. Extraction failure surfaces the oracle error and creates
// nothing.
func (s *importService) StartDocument(ctx context.Context, userID uint, mimeType string, data []byte) (*models.ImportBatch, error) {
	if len(data) == 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "file is empty")
	}

	ledgerInfos, err := s.ledgerInfos(userID)
	if err != nil {
		return nil, err
	}

	ex, err := s.oracle.ExtractStatement(ctx, oracle.FilePart{MIMEType: mimeType, Data: data}, ledgerInfos)
	if err != nil {
		return nil, err
	}

	// Rows with unusable dates are dropped here, so kept stays aligned
	// with raw (and with the batch items created from it) row for row.
	raw := make([]statement.RawTransaction, 0, len(ex.Transactions))
	kept := make([]oracle.ExtractedTransaction, 0, len(ex.Transactions))
	for _, tx := range ex.Transactions {
		date, ok := statement.NormalizeDate(tx.Date)
		if !ok {
			continue
		}
		raw = append(raw, statement.RawTransaction{
			Date:        date,
			Particulars: tx.Particulars,
			Amount:      decimal.NewFromFloat(tx.Amount),
			Direction:   models.TransactionDirection(tx.Direction),
		})
		kept = append(kept, tx)
	}

	batch, err := s.createBatch(userID, models.SourcePDFUpload, raw, ex.BankName, ex.AccountNumber)
	if err != nil {
		return nil, err
	}

	// Pre-select the bank account when the detected identity resolves to
	// one of the user's accounts. The reviewer still confirms it.
	if ex.BankName != "" || ex.AccountNumber != "" {
		if acc, matchErr := s.accounts.MatchDetectedAccount(userID, ex.BankName, ex.AccountNumber); matchErr == nil && acc != nil {
			if err := s.db.Model(batch).Update("bank_account_id", acc.ID).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			batch.BankAccountID = &acc.ID
		}
	}

	// Carry optional per-row detail the plain parser has no source for.
	for i, tx := range kept {
		if i >= len(batch.Items) {
			break
		}
		item := &batch.Items[i]
		changed := false
		if tx.BalanceAfter != nil {
			ba := toMinorUnits(decimal.NewFromFloat(*tx.BalanceAfter))
			item.BalanceAfter = &ba
			changed = true
		}
		if tx.ReferenceNumber != "" {
			item.ReferenceNumber = tx.ReferenceNumber
			changed = true
		}
		if changed {
			if err := s.db.Model(item).Updates(map[string]any{
				"balance_after":    item.BalanceAfter,
				"reference_number": item.ReferenceNumber,
			}).Error; err != nil {
				return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
	}

	return batch, nil
}

// createBatch persists the extracted items as a new batch awaiting bank
// confirmation. Zero extracted transactions means the upload never
// transitions: no batch is created.
func (s *importService) createBatch(userID uint, source models.TransactionSource, raw []statement.RawTransaction, bankName, accountNumber string) (*models.ImportBatch, error) {
	if len(raw) == 0 {
		return nil, apperrors.ErrNothingExtracted
	}

	batch := &models.ImportBatch{
		UserID:                userID,
		Reference:             uuid.New(),
		Status:                models.BatchStatusBankConfirm,
		Source:                source,
		DetectedBankName:      bankName,
		DetectedAccountNumber: accountNumber,
		ItemCount:             len(raw),
	}

	err := s.db.Transaction(func(dbTx *gorm.DB) error {
		if err := dbTx.Create(batch).Error; err != nil {
			return err
		}
		for i, tx := range raw {
			item := models.ImportItem{
				BatchID:     batch.ID,
				Position:    i,
				Status:      models.ItemStatusPending,
				Date:        tx.Date,
				Direction:   tx.Direction,
				Amount:      toMinorUnits(tx.Amount),
				Particulars: tx.Particulars,
			}
			if err := dbTx.Create(&item).Error; err != nil {
				return err
			}
			batch.Items = append(batch.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return batch, nil
}

// GetBatch returns a batch with its items in position order.
func (s *importService) GetBatch(userID uint, reference string) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := s.db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("reference = ? AND user_id = ?", reference, userID).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrBatchNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &batch, nil
}

// ConfirmBank binds the batch to a bank account and moves it to review.
// A non-nil create makes the account on the spot and binds to it. A zero
// bankAccountID accepts the detected pre-selection when one exists,
// otherwise the batch becomes a cash import with no bank balance effects.
// Every pending item receives a categorization suggestion through the
// cascade: exact mapping cache, then fuzzy history match, then the oracle,
// then the uncategorized fallback.
func (s *importService) ConfirmBank(ctx context.Context, userID uint, reference string, bankAccountID uint, create *NewBankAccount) (*models.ImportBatch, error) {
	batch, err := s.GetBatch(userID, reference)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusBankConfirm {
		return nil, apperrors.ErrBatchWrongState
	}

	target := bankAccountID
	if create != nil {
		acc, err := s.accounts.CreateBankAccount(userID, create.Name, create.AccountNumber, create.Type, create.OpeningBalance)
		if err != nil {
			return nil, err
		}
		target = acc.ID
	}
	if target == 0 && batch.BankAccountID != nil {
		target = *batch.BankAccountID
	}

	if target != 0 {
		var count int64
		s.db.Model(&models.BankAccount{}).Where("id = ? AND user_id = ?", target, userID).Count(&count)
		if count == 0 {
			return nil, apperrors.ErrBankAccountNotFound
		}
	}

	if err := s.suggestAll(ctx, userID, batch); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status": models.BatchStatusReview,
		"cursor": 0,
	}
	if target != 0 {
		updates["bank_account_id"] = target
		batch.BankAccountID = &target
	}
	if err := s.db.Model(batch).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	batch.Status = models.BatchStatusReview
	batch.Cursor = 0
	return batch, nil
}

// suggestAll fills suggestion fields on every pending item. Oracle failures
// downgrade that item to the uncategorized fallback instead of aborting the
// batch; cancellation aborts.
func (s *importService) suggestAll(ctx context.Context, userID uint, batch *models.ImportBatch) error {
	recent, err := s.posting.RecentParticulars(userID, match.HistoryLimit)
	if err != nil {
		return err
	}

	ledgerInfos, err := s.ledgerInfos(userID)
	if err != nil {
		return err
	}

	// Transactions parked under the uncategorized fallback are not a
	// categorization signal and must not outrank the oracle.
	candidates := make([]match.Candidate, 0, len(recent))
	for _, tx := range recent {
		if ledgerNameByID(ledgerInfos, *tx.LedgerID) == models.UncategorizedLedgerName {
			continue
		}
		candidates = append(candidates, match.Candidate{
			Particulars: tx.Particulars,
			LedgerID:    *tx.LedgerID,
			Narration:   tx.Narration,
		})
	}
	hints, err := s.mappings.TopHints(userID, oracle.MaxMappingHints)
	if err != nil {
		return err
	}

	oracleDown := false

	for i := range batch.Items {
		item := &batch.Items[i]
		if item.Status != models.ItemStatusPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		// Tier 1: exact-string cache.
		mapping, err := s.mappings.Lookup(userID, item.Particulars)
		if err != nil {
			return err
		}
		if mapping != nil {
			id := mapping.LedgerID
			item.SuggestedLedgerID = &id
			item.SuggestedLedgerName = mapping.Ledger.Name
			item.SuggestedNarration = mapping.NarrationTemplate
			item.Confidence = mapping.ConfidenceScore
			item.AutoMatched = true
			if err := s.saveSuggestion(item); err != nil {
				return err
			}
			continue
		}

		// Tier 2: fuzzy scan of recent history.
		if hit := match.BestMatch(item.Particulars, candidates); hit != nil {
			id := hit.Candidate.LedgerID
			item.SuggestedLedgerID = &id
			item.SuggestedLedgerName = ledgerNameByID(ledgerInfos, id)
			item.SuggestedNarration = hit.Candidate.Narration
			item.Confidence = 0.95
			item.AutoMatched = true
			if err := s.saveSuggestion(item); err != nil {
				return err
			}
			continue
		}

		// Tier 3: the oracle. Once it reports itself down, stop asking.
		if !oracleDown {
			suggestion, err := s.oracle.Suggest(ctx, item.Particulars, item.Amount, item.Direction, ledgerInfos, hints)
			if err == nil {
				item.SuggestedLedgerID = suggestion.LedgerID
				item.SuggestedLedgerName = suggestion.LedgerName
				item.SuggestedNarration = suggestion.Narration
				item.Confidence = suggestion.Confidence
				item.AutoMatched = false
				if err := s.saveSuggestion(item); err != nil {
					return err
				}
				continue
			}
			if ctx.Err() != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, ctx.Err())
			}
			logger.Get().Warnw("oracle suggestion failed, falling back to uncategorized",
				"batch", batch.Reference, "position", item.Position, "error", err)
			oracleDown = true
		}

		// Fallback: uncategorized, zero confidence.
		item.SuggestedLedgerID = nil
		item.SuggestedLedgerName = models.UncategorizedLedgerName
		item.SuggestedNarration = ""
		item.Confidence = 0
		item.AutoMatched = false
		if err := s.saveSuggestion(item); err != nil {
			return err
		}
	}

	return nil
}

func (s *importService) saveSuggestion(item *models.ImportItem) error {
	err := s.db.Model(item).Updates(map[string]any{
		"suggested_ledger_id":   item.SuggestedLedgerID,
		"suggested_ledger_name": item.SuggestedLedgerName,
		"suggested_narration":   item.SuggestedNarration,
		"confidence":            item.Confidence,
		"auto_matched":          item.AutoMatched,
	}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// ConfirmNext posts the item at the cursor and advances. Review edits are
// applied before posting; the posted categorization is recorded in the
// mapping cache.
func (s *importService) ConfirmNext(userID uint, reference string, edit *ItemEdit) (*models.ImportBatch, error) {
	batch, err := s.reviewBatch(userID, reference)
	if err != nil {
		return nil, err
	}

	item := &batch.Items[batch.Cursor]
	if item.Status == models.ItemStatusPosted {
		return nil, apperrors.ErrAlreadyPosted
	}

	if err := s.applyEdit(userID, item, edit); err != nil {
		return nil, err
	}

	if err := s.postItem(userID, batch, item); err != nil {
		return nil, err
	}

	return s.advance(batch)
}

// Skip advances the cursor without posting. The current item is marked
// skipped so a later Save All does not silently commit it.
func (s *importService) Skip(userID uint, reference string) (*models.ImportBatch, error) {
	batch, err := s.reviewBatch(userID, reference)
	if err != nil {
		return nil, err
	}

	item := &batch.Items[batch.Cursor]
	if item.Status == models.ItemStatusPending {
		if err := s.db.Model(item).Update("status", models.ItemStatusSkipped).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		item.Status = models.ItemStatusSkipped
	}

	return s.advance(batch)
}

// Back moves the cursor to the previous item without posting. At position
// zero it is a no-op.
func (s *importService) Back(userID uint, reference string) (*models.ImportBatch, error) {
	batch, err := s.reviewBatch(userID, reference)
	if err != nil {
		return nil, err
	}

	if batch.Cursor == 0 {
		return batch, nil
	}

	newCursor := batch.Cursor - 1
	if err := s.db.Model(batch).Update("cursor", newCursor).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	batch.Cursor = newCursor

	// A skipped item revisited via Back becomes reviewable again.
	item := &batch.Items[newCursor]
	if item.Status == models.ItemStatusSkipped {
		if err := s.db.Model(item).Update("status", models.ItemStatusPending).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		item.Status = models.ItemStatusPending
	}

	return batch, nil
}

// SaveAllRemaining posts every pending item from the cursor onward, in
// order. The first posting failure halts the batch at that index; earlier
// posts stay committed, later items stay pending.
func (s *importService) SaveAllRemaining(userID uint, reference string) (*SaveAllResult, error) {
	batch, err := s.reviewBatch(userID, reference)
	if err != nil {
		return nil, err
	}

	result := &SaveAllResult{}

	for pos := batch.Cursor; pos < batch.ItemCount; pos++ {
		item := &batch.Items[pos]
		if item.Status != models.ItemStatusPending {
			continue
		}

		if err := s.postItem(userID, batch, item); err != nil {
			failed := pos
			result.FailedIndex = &failed
			if dbErr := s.db.Model(batch).Update("cursor", pos).Error; dbErr != nil {
				logger.Get().Errorw("failed to persist cursor after halt", "batch", reference, "error", dbErr)
			}
			return result, err
		}
		result.Posted++
	}

	if err := s.db.Model(batch).Updates(map[string]any{
		"cursor": batch.ItemCount,
		"status": models.BatchStatusDone,
	}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return result, nil
}

// Cancel discards all not-yet-posted items. Already-posted items are not
// rolled back; each post was its own atomic unit.
func (s *importService) Cancel(userID uint, reference string) (*models.ImportBatch, error) {
	batch, err := s.GetBatch(userID, reference)
	if err != nil {
		return nil, err
	}
	if batch.Status == models.BatchStatusDone || batch.Status == models.BatchStatusCancelled {
		return nil, apperrors.ErrBatchWrongState
	}

	err = s.db.Transaction(func(dbTx *gorm.DB) error {
		if err := dbTx.Model(&models.ImportItem{}).
			Where("batch_id = ? AND status IN ?", batch.ID, []models.ImportItemStatus{models.ItemStatusPending, models.ItemStatusSkipped}).
			Update("status", models.ItemStatusDiscarded).Error; err != nil {
			return err
		}
		return dbTx.Model(batch).Update("status", models.BatchStatusCancelled).Error
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	batch.Status = models.BatchStatusCancelled
	return batch, nil
}

// reviewBatch loads a batch and checks it is mid-review with the cursor on
// a real item.
func (s *importService) reviewBatch(userID uint, reference string) (*models.ImportBatch, error) {
	batch, err := s.GetBatch(userID, reference)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusReview {
		return nil, apperrors.ErrBatchWrongState
	}
	if batch.Cursor < 0 || batch.Cursor >= len(batch.Items) {
		return nil, apperrors.ErrBatchWrongState
	}
	return batch, nil
}

// applyEdit folds review-time edits into the item. Ledger creation is the
// explicit path for bringing a proposed category into existence.
func (s *importService) applyEdit(userID uint, item *models.ImportItem, edit *ItemEdit) error {
	if edit == nil {
		return nil
	}

	if edit.CreateLedger != nil {
		ledger, err := s.ledgers.CreateLedger(userID, edit.CreateLedger.Name, edit.CreateLedger.Type)
		if err != nil {
			return err
		}
		item.SuggestedLedgerID = &ledger.ID
		item.SuggestedLedgerName = ledger.Name
	} else if edit.LedgerID != nil {
		ledger, err := s.ledgers.GetLedgerByID(userID, *edit.LedgerID)
		if err != nil {
			return err
		}
		item.SuggestedLedgerID = &ledger.ID
		item.SuggestedLedgerName = ledger.Name
	}

	if edit.Narration != nil {
		item.SuggestedNarration = *edit.Narration
	}
	if edit.Date != nil {
		date, ok := statement.NormalizeDate(*edit.Date)
		if !ok {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "date must be a valid calendar date")
		}
		item.Date = date
	}
	if edit.Amount != nil {
		if *edit.Amount <= 0 {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be positive")
		}
		item.Amount = *edit.Amount
	}
	if edit.Direction != nil {
		if *edit.Direction != models.DirectionDebit && *edit.Direction != models.DirectionCredit {
			return apperrors.ErrInvalidDirection
		}
		item.Direction = *edit.Direction
	}

	return nil
}

// postItem posts one item through the posting service and records the
// outcome on the item and in the mapping cache.
func (s *importService) postItem(userID uint, batch *models.ImportBatch, item *models.ImportItem) error {
	ledgerID := item.SuggestedLedgerID
	fallback := ledgerID == nil
	if fallback {
		ledger, err := s.ledgers.EnsureUncategorized(userID)
		if err != nil {
			return err
		}
		ledgerID = &ledger.ID
		item.SuggestedLedgerID = ledgerID
		item.SuggestedLedgerName = ledger.Name
	}

	importKey := fmt.Sprintf("%s:%d", batch.Reference, item.Position)

	tx, err := s.posting.Post(userID, PostInput{
		Date:            item.Date,
		Direction:       item.Direction,
		Amount:          item.Amount,
		Particulars:     item.Particulars,
		Narration:       item.SuggestedNarration,
		BankAccountID:   batch.BankAccountID,
		LedgerID:        ledgerID,
		BalanceAfter:    item.BalanceAfter,
		ReferenceNumber: item.ReferenceNumber,
		Source:          batch.Source,
		ImportKey:       &importKey,
	})
	if err != nil {
		return err
	}

	// The uncategorized fallback is a placeholder, not a categorization;
	// learning it would pin these particulars to the fallback on every
	// later import and starve the suggestion cascade.
	if !fallback {
		if err := s.mappings.Upsert(userID, item.Particulars, *ledgerID, item.SuggestedNarration, item.Confidence); err != nil {
			// The post already committed; a cache failure is not worth
			// surfacing to the reviewer.
			logger.Get().Warnw("mapping upsert failed after post", "batch", batch.Reference, "position", item.Position, "error", err)
		}
	}

	updates := map[string]any{
		"status":                models.ItemStatusPosted,
		"transaction_id":        tx.ID,
		"suggested_ledger_id":   item.SuggestedLedgerID,
		"suggested_ledger_name": item.SuggestedLedgerName,
		"suggested_narration":   item.SuggestedNarration,
		"date":                  item.Date,
		"amount":                item.Amount,
		"direction":             item.Direction,
	}
	if err := s.db.Model(item).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	item.Status = models.ItemStatusPosted
	item.TransactionID = &tx.ID

	return nil
}

// advance moves the cursor forward one item, completing the batch when it
// reaches the end.
func (s *importService) advance(batch *models.ImportBatch) (*models.ImportBatch, error) {
	newCursor := batch.Cursor + 1
	updates := map[string]any{"cursor": newCursor}
	if newCursor >= batch.ItemCount {
		updates["status"] = models.BatchStatusDone
	}
	if err := s.db.Model(batch).Updates(updates).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	batch.Cursor = newCursor
	if newCursor >= batch.ItemCount {
		batch.Status = models.BatchStatusDone
	}
	return batch, nil
}

func (s *importService) ledgerInfos(userID uint) ([]oracle.LedgerInfo, error) {
	ledgers, err := s.ledgers.GetUserLedgers(userID)
	if err != nil {
		return nil, err
	}
	infos := make([]oracle.LedgerInfo, 0, len(ledgers))
	for _, l := range ledgers {
		infos = append(infos, oracle.LedgerInfo{ID: l.ID, Name: l.Name, Type: l.Type})
	}
	return infos, nil
}

func ledgerNameByID(infos []oracle.LedgerInfo, id uint) string {
	for _, l := range infos {
		if l.ID == id {
			return l.Name
		}
	}
	return ""
}

// toMinorUnits converts a decimal currency amount to integer minor units,
// rounding half away from zero.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
