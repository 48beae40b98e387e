// Package parser turns the extracted text of a statement document into
// structured transaction records.
//
// The pipeline runs in three stages over a normalized line stream:
//
//   - the block locator splits the document into currency-scoped account
//     blocks (account name + Currency line pairs, with IBAN and statement
//     period recovered per block)
//   - the segmenter walks each block's transaction-table region as a line
//     state machine, cutting one chunk per transaction at date-anchored
//     boundaries
//   - the field extractor recovers date, type code, description, external
//     ids, counterpart accounts and monetary amounts from each chunk
//
// Failure semantics: a document with no account blocks fails outright;
// missing block sub-elements downgrade the result to partial status with
// itemized warnings; row-level ambiguity only flags the affected transaction
// for review and never aborts the statement.
package parser

import (
	"strings"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Parser parses extracted statement text into account blocks and transactions
type Parser struct {
	config *Config
	logger logger.Logger
}

// NewParser creates a Parser with the given configuration
func NewParser(config *Config) (*Parser, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", err)
	}

	return &Parser{
		config: config,
		logger: logger.WithComponent("parser"),
	}, nil
}

// DateLayout returns the configured transaction date layout
func (p *Parser) DateLayout() string {
	return p.config.DateLayout
}

// Result holds everything recovered from one statement document
type Result struct {
	Pages         int
	AccountBlocks []models.AccountBlock
	Transactions  []*models.Transaction
	Warnings      *errors.Warnings
	Status        models.ParseStatus
}

// Parse runs the full text pipeline over ordered page texts.
//
// It returns a MalformedDocument error when no account blocks are found;
// every other problem is recorded in the result's warnings instead.
func (p *Parser) Parse(pages []string) (*Result, error) {
	lines := normalizeLines(pages)
	warnings := &errors.Warnings{}

	blocks := p.locateBlocks(lines, warnings)
	if len(blocks) == 0 {
		return nil, errors.DocumentError(errors.CodeMalformedDocument, "", nil)
	}

	result := &Result{
		Pages:         len(pages),
		AccountBlocks: blocks,
		Warnings:      warnings,
	}

	for i := range blocks {
		block := &blocks[i]
		span := lines[block.StartLine:block.EndLine]

		segmented := segmentTransactions(span)
		if segmented.HeaderFound && len(segmented.Chunks) == 0 {
			warnings.Add(errors.ExtractionError(errors.CodeEmptySection, block.AccountName, block.Currency))
		}

		for _, chunk := range segmented.Chunks {
			txn, err := p.extractFields(chunk, block, warnings)
			if err != nil {
				// Row-level failure: record and move on
				if statementErr, ok := errors.AsStatementError(err); ok {
					warnings.Add(statementErr)
				} else {
					warnings.Add(errors.FieldError(errors.CodeFieldAmbiguity, chunk.Lines[0], err))
				}
				continue
			}
			result.Transactions = append(result.Transactions, txn)
		}

		p.logger.WithFields(logger.Fields{
			"account":  block.AccountName,
			"currency": block.Currency,
			"chunks":   len(segmented.Chunks),
		}).Debug("Parsed account block")
	}

	result.Status = models.ParseStatusSuccess
	if warnings.HasCategory(errors.CategoryExtraction) {
		result.Status = models.ParseStatusPartial
	}

	p.logger.WithFields(logger.Fields{
		"pages":        result.Pages,
		"blocks":       len(result.AccountBlocks),
		"transactions": len(result.Transactions),
		"warnings":     len(warnings.Items),
		"status":       result.Status,
	}).Info("Parsed statement document")

	return result, nil
}

// normalizeLines flattens page texts into a single line stream with
// whitespace collapsed, empty lines dropped, and page boundaries preserved
// as markers
func normalizeLines(pages []string) []string {
	var lines []string

	for i, page := range pages {
		if i > 0 {
			lines = append(lines, pageBreak)
		}
		for _, raw := range strings.Split(page, "\n") {
			line := models.CollapseWhitespace(raw)
			if line == "" {
				continue
			}
			lines = append(lines, line)
		}
	}

	return lines
}
