// Package store provides the in-memory persistence layer for statements and
// their transactions.
//
// The store keeps the original file bytes alongside each parsed statement so
// a reparse never needs the upload again, and maintains a file-hash index
// that makes duplicate uploads idempotent. All mutation methods take the
// write lock for their whole critical section, so the duplicate check and
// the insert are one atomic step even under concurrent uploads.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Store is a thread-safe in-memory statement and transaction repository
type Store struct {
	mu sync.RWMutex

	statements   map[string]*models.Statement
	byFileHash   map[string]string
	rawFiles     map[string][]byte
	transactions map[string]*models.Transaction
	byStatement  map[string][]string

	logger logger.Logger
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		statements:   make(map[string]*models.Statement),
		byFileHash:   make(map[string]string),
		rawFiles:     make(map[string][]byte),
		transactions: make(map[string]*models.Transaction),
		byStatement:  make(map[string][]string),
		logger:       logger.WithComponent("store"),
	}
}

// FindStatementByHash returns the statement previously ingested from a file
// with the given content hash, if any. Callers use this as a cheap fast-path
// check; InsertStatement re-checks under the write lock regardless.
func (s *Store) FindStatementByHash(fileHash string) (*models.Statement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFileHash[fileHash]
	if !ok {
		return nil, false
	}
	return copyStatement(s.statements[id]), true
}

// InsertStatement atomically stores a parsed statement, its transactions and
// the original file bytes.
//
// The file hash is re-checked under the write lock: when another upload of
// the same file won the race, the existing statement is returned with
// created=false and nothing is written.
func (s *Store) InsertStatement(statement *models.Statement, raw []byte, transactions []*models.Transaction) (*models.Statement, bool, error) {
	stored := copyStatement(statement)
	if stored.StatementID == "" {
		stored.StatementID = uuid.NewString()
	}
	if err := stored.Validate(); err != nil {
		return nil, false, errors.StorageError(errors.CodeUnexpectedError, stored.StatementID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byFileHash[stored.FileHash]; ok {
		return copyStatement(s.statements[existingID]), false, nil
	}

	now := time.Now().UTC()
	stored.ImportedAt = now

	// Validate everything before touching the maps so a bad row cannot
	// leave a half-written statement behind
	storedTxns := make([]*models.Transaction, 0, len(transactions))
	for _, txn := range transactions {
		storedTxn := copyTransaction(txn)
		if storedTxn.ID == "" {
			storedTxn.ID = uuid.NewString()
		}
		storedTxn.StatementID = stored.StatementID
		storedTxn.CreatedAt = now
		storedTxn.UpdatedAt = now

		if err := storedTxn.Validate(); err != nil {
			return nil, false, errors.StorageError(errors.CodeUnexpectedError, storedTxn.ID, err)
		}
		storedTxns = append(storedTxns, storedTxn)
	}

	ids := make([]string, 0, len(storedTxns))
	for _, storedTxn := range storedTxns {
		s.transactions[storedTxn.ID] = storedTxn
		ids = append(ids, storedTxn.ID)
	}

	s.statements[stored.StatementID] = stored
	s.byFileHash[stored.FileHash] = stored.StatementID
	s.byStatement[stored.StatementID] = ids

	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)
	s.rawFiles[stored.StatementID] = rawCopy

	s.logger.WithFields(logger.Fields{
		"statement_id": stored.StatementID,
		"file_name":    stored.FileName,
		"transactions": len(ids),
	}).Info("Stored statement")

	return copyStatement(stored), true, nil
}

// GetStatement returns one statement by id
func (s *Store) GetStatement(id string) (*models.Statement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statement, ok := s.statements[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}
	return copyStatement(statement), nil
}

// ListStatements returns all statements, newest first
func (s *Store) ListStatements() []*models.Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statements := make([]*models.Statement, 0, len(s.statements))
	for _, statement := range s.statements {
		statements = append(statements, copyStatement(statement))
	}
	sort.Slice(statements, func(i, j int) bool {
		if !statements[i].ImportedAt.Equal(statements[j].ImportedAt) {
			return statements[i].ImportedAt.After(statements[j].ImportedAt)
		}
		return statements[i].StatementID < statements[j].StatementID
	})
	return statements
}

// GetRawFile returns the original uploaded bytes for a statement
func (s *Store) GetRawFile(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.rawFiles[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}
	rawCopy := make([]byte, len(raw))
	copy(rawCopy, raw)
	return rawCopy, nil
}

// SetIncludeInMetrics toggles a statement's participation in metrics
func (s *Store) SetIncludeInMetrics(id string, include bool) (*models.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statement, ok := s.statements[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}
	statement.IncludeInMetrics = include
	return copyStatement(statement), nil
}

// ReplaceStatementTransactions swaps a statement's transactions for a freshly
// parsed set, used by reparse. Manual overrides survive the swap when the old
// and new row share an external transaction id.
func (s *Store) ReplaceStatementTransactions(id string, statement *models.Statement, transactions []*models.Transaction) (*models.Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.statements[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}

	overridesByExternalID := make(map[string]*models.Transaction)
	for _, txnID := range s.byStatement[id] {
		old := s.transactions[txnID]
		if old.ExternalID != "" && hasOverrides(old) {
			overridesByExternalID[old.ExternalID] = old
		}
		delete(s.transactions, txnID)
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(transactions))
	for _, txn := range transactions {
		storedTxn := copyTransaction(txn)
		storedTxn.ID = uuid.NewString()
		storedTxn.StatementID = id
		storedTxn.CreatedAt = now
		storedTxn.UpdatedAt = now

		if old, ok := overridesByExternalID[storedTxn.ExternalID]; ok {
			storedTxn.CategoryOverride = old.CategoryOverride
			storedTxn.AmountOverride = old.AmountOverride
			storedTxn.SignOverride = old.SignOverride
			storedTxn.OverrideReason = old.OverrideReason
		}

		s.transactions[storedTxn.ID] = storedTxn
		ids = append(ids, storedTxn.ID)
	}
	s.byStatement[id] = ids

	existing.Pages = statement.Pages
	existing.AccountBlocks = statement.AccountBlocks
	existing.ParseStatus = statement.ParseStatus
	existing.ParseErrors = statement.ParseErrors

	s.logger.WithFields(logger.Fields{
		"statement_id":        id,
		"transactions":        len(ids),
		"overrides_preserved": len(overridesByExternalID),
	}).Info("Replaced statement transactions")

	return copyStatement(existing), nil
}

// TransactionFilter narrows ListTransactions results. Zero values mean no
// restriction on that axis.
type TransactionFilter struct {
	StatementID string
	Month       string
	Currency    string
	Category    *models.Category
	NeedsReview *bool

	Limit  int
	Offset int
}

// ListTransactions returns the matching transactions in (date, id) order,
// plus the total match count before pagination.
func (s *Store) ListTransactions(filter TransactionFilter) ([]*models.Transaction, int, error) {
	if filter.Month != "" {
		if _, err := models.ParseMonth(filter.Month); err != nil {
			return nil, 0, errors.FieldError(errors.CodeInvalidDate, filter.Month, err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Transaction
	for _, txn := range s.transactions {
		if filter.StatementID != "" && txn.StatementID != filter.StatementID {
			continue
		}
		if filter.Month != "" && models.MonthKey(txn.TxnDateUTC) != filter.Month {
			continue
		}
		if filter.Currency != "" && txn.AccountCurrency != filter.Currency {
			continue
		}
		if filter.Category != nil && txn.EffectiveCategory(true) != *filter.Category {
			continue
		}
		if filter.NeedsReview != nil && txn.NeedsReview != *filter.NeedsReview {
			continue
		}
		matched = append(matched, txn)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].TxnDateUTC.Equal(matched[j].TxnDateUTC) {
			return matched[i].TxnDateUTC.Before(matched[j].TxnDateUTC)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= total {
			return nil, total, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	result := make([]*models.Transaction, 0, len(matched))
	for _, txn := range matched {
		result = append(result, copyTransaction(txn))
	}
	return result, total, nil
}

// GetTransaction returns one transaction by id
func (s *Store) GetTransaction(id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}
	return copyTransaction(txn), nil
}

// MetricsTransactions returns the transactions of every statement flagged
// for inclusion in metrics
func (s *Store) MetricsTransactions() []*models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Transaction
	for id, statement := range s.statements {
		if !statement.IncludeInMetrics {
			continue
		}
		for _, txnID := range s.byStatement[id] {
			result = append(result, copyTransaction(s.transactions[txnID]))
		}
	}
	return result
}

// OverridePatch is a partial update of a transaction's override layer.
// A nil pointer leaves the field untouched; the Clear flags reset a field to
// its parsed value. Last writer wins on concurrent patches.
type OverridePatch struct {
	Category      *models.Category
	ClearCategory bool

	Amount      *decimal.Decimal
	ClearAmount bool

	FlipSign  *bool
	ClearSign bool

	Reason      *string
	NeedsReview *bool
}

// UpdateTransactionOverride applies an override patch to one transaction
func (s *Store) UpdateTransactionOverride(id string, patch OverridePatch) (*models.Transaction, error) {
	if patch.Category != nil && !patch.Category.IsValid() {
		return nil, errors.FieldError(errors.CodeFieldAmbiguity, string(*patch.Category), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, errors.StorageError(errors.CodeNotFound, id, nil)
	}

	switch {
	case patch.ClearCategory:
		txn.CategoryOverride = nil
	case patch.Category != nil:
		txn.CategoryOverride = patch.Category
	}

	switch {
	case patch.ClearAmount:
		txn.AmountOverride = nil
	case patch.Amount != nil:
		txn.AmountOverride = patch.Amount
	}

	switch {
	case patch.ClearSign:
		txn.SignOverride = nil
	case patch.FlipSign != nil:
		txn.SignOverride = patch.FlipSign
	}

	if patch.Reason != nil {
		txn.OverrideReason = *patch.Reason
	}
	if patch.NeedsReview != nil {
		txn.NeedsReview = *patch.NeedsReview
	}

	txn.UpdatedAt = time.Now().UTC()
	return copyTransaction(txn), nil
}

// StatementCount returns the number of stored statements
func (s *Store) StatementCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statements)
}

func hasOverrides(txn *models.Transaction) bool {
	return txn.CategoryOverride != nil || txn.AmountOverride != nil || txn.SignOverride != nil
}

// copyStatement returns a shallow copy with its own slices
func copyStatement(statement *models.Statement) *models.Statement {
	if statement == nil {
		return nil
	}
	copied := *statement
	copied.AccountBlocks = append([]models.AccountBlock(nil), statement.AccountBlocks...)
	copied.ParseErrors = append([]string(nil), statement.ParseErrors...)
	return &copied
}

// copyTransaction returns a value copy. Pointer fields reference immutable
// values and are safe to share.
func copyTransaction(txn *models.Transaction) *models.Transaction {
	if txn == nil {
		return nil
	}
	copied := *txn
	return &copied
}
