// Package service orchestrates the ingestion pipeline: text extraction,
// parsing, categorization and storage. It owns the idempotency and
// atomicity semantics of uploads; the HTTP layer and the CLI are thin
// callers of this package.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"financial-statements-service/internal/categorizer"
	"financial-statements-service/internal/extractor"
	"financial-statements-service/internal/metrics"
	"financial-statements-service/internal/models"
	"financial-statements-service/internal/parser"
	"financial-statements-service/internal/store"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Service runs the statement ingestion pipeline
type Service struct {
	parser     *parser.Parser
	engine     *categorizer.Engine
	store      *store.Store
	calculator *metrics.Calculator
	logger     logger.Logger
}

// NewService wires the pipeline components together
func NewService(p *parser.Parser, engine *categorizer.Engine, st *store.Store) *Service {
	return &Service{
		parser:     p,
		engine:     engine,
		store:      st,
		calculator: metrics.NewCalculator(),
		logger:     logger.WithComponent("service"),
	}
}

// Store exposes the underlying repository to read-side callers
func (s *Service) Store() *store.Store {
	return s.store
}

// Engine exposes the categorization engine, used for rule hot-reload
func (s *Service) Engine() *categorizer.Engine {
	return s.engine
}

// IngestResult reports the outcome of one upload
type IngestResult struct {
	Statement        *models.Statement     `json:"statement"`
	Created          bool                  `json:"created"`
	TransactionCount int                   `json:"transaction_count"`
	Warnings         []string              `json:"warnings,omitempty"`
	Transactions     []*models.Transaction `json:"-"`
}

// Ingest runs the full pipeline over an uploaded file.
//
// Re-uploading a byte-identical file is idempotent: the existing statement
// is returned with Created=false and no new records are written. A document
// in which no account block can be located fails the upload; lesser problems
// downgrade the statement to partial status and are reported as warnings.
func (s *Service) Ingest(ctx context.Context, fileName string, data []byte) (*IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError("ingest", err)
	}

	fileHash := hashBytes(data)

	if existing, ok := s.store.FindStatementByHash(fileHash); ok {
		s.logger.WithFields(logger.Fields{
			"file_name":    fileName,
			"statement_id": existing.StatementID,
		}).Info("Duplicate upload, returning existing statement")
		return &IngestResult{Statement: existing, Created: false}, nil
	}

	statement, transactions, err := s.runPipeline(fileName, data)
	if err != nil {
		return nil, err
	}
	statement.FileHash = fileHash
	statement.IncludeInMetrics = true

	stored, created, err := s.store.InsertStatement(statement, data, transactions)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{
		Statement:        stored,
		Created:          created,
		TransactionCount: len(transactions),
		Warnings:         statement.ParseErrors,
		Transactions:     transactions,
	}

	s.logger.WithFields(logger.Fields{
		"file_name":    fileName,
		"statement_id": stored.StatementID,
		"transactions": len(transactions),
		"status":       stored.ParseStatus,
		"created":      created,
	}).Info("Ingested statement")

	return result, nil
}

// Reparse reruns the pipeline over a stored statement's original bytes,
// keeping its identity and swapping its transactions. Manual overrides
// survive when rows carry external transaction ids.
func (s *Service) Reparse(ctx context.Context, statementID string) (*models.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.InternalError("reparse", err)
	}

	existing, err := s.store.GetStatement(statementID)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.GetRawFile(statementID)
	if err != nil {
		return nil, err
	}

	statement, transactions, err := s.runPipeline(existing.FileName, raw)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ReplaceStatementTransactions(statementID, statement, transactions)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"statement_id": statementID,
		"transactions": len(transactions),
		"status":       updated.ParseStatus,
	}).Info("Reparsed statement")

	return updated, nil
}

// runPipeline extracts, parses and categorizes one document
func (s *Service) runPipeline(fileName string, data []byte) (*models.Statement, []*models.Transaction, error) {
	ext := extractor.ForFileName(fileName)
	pages, err := ext.ExtractPages(data)
	if err != nil {
		return nil, nil, err
	}

	parsed, err := s.parser.Parse(pages)
	if err != nil {
		return nil, nil, err
	}

	for _, txn := range parsed.Transactions {
		verdict := s.engine.Categorize(txn)
		txn.Category = verdict.Category
		txn.Confidence = verdict.Confidence
		txn.CategoryReason = verdict.Reason
		txn.IsInternalTransfer = verdict.IsInternalTransfer
		// Field-level review flags survive a confident categorization
		txn.NeedsReview = txn.NeedsReview || verdict.NeedsReview
	}

	statement := &models.Statement{
		FileName:      fileName,
		Pages:         parsed.Pages,
		AccountBlocks: parsed.AccountBlocks,
		ParseStatus:   parsed.Status,
		ParseErrors:   parsed.Warnings.Messages(),
	}

	return statement, parsed.Transactions, nil
}

// MonthlyMetrics aggregates the metrics-eligible transactions per month and
// currency
func (s *Service) MonthlyMetrics(params metrics.Params) ([]*metrics.MonthlyMetrics, error) {
	return s.calculator.Monthly(s.store.MetricsTransactions(), params)
}

// SummaryMetrics aggregates the metrics-eligible transactions per currency
// across the requested range
func (s *Service) SummaryMetrics(params metrics.Params) ([]*metrics.Summary, error) {
	return s.calculator.Summarize(s.store.MetricsTransactions(), params)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
