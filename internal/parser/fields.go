package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
)

// symbolCurrencies maps currency symbol prefixes to their 3-letter codes
var symbolCurrencies = map[string]string{
	"£": "GBP",
	"€": "EUR",
	"$": "USD",
}

// amountToken is one monetary token found in a chunk, with its explicit
// currency marker when one was present in the text
type amountToken struct {
	Value    decimal.Decimal
	Currency string
}

// extractFields parses one chunk into a transaction record. The enclosing
// block supplies account identity and currency; categorization happens later.
//
// Row-level problems never fail the chunk: an unrecoverable amount leaves the
// transaction neutral and flagged for review, and a currency marker that
// disagrees with the block currency is recorded as a warning while the block
// currency wins.
func (p *Parser) extractFields(chunk *Chunk, block *models.AccountBlock, warnings *errors.Warnings) (*models.Transaction, error) {
	firstLine := chunk.Lines[0]
	text := chunk.Text()

	txnDate, err := p.parseChunkDate(firstLine)
	if err != nil {
		return nil, errors.FieldError(errors.CodeInvalidDate, firstLine, err)
	}

	txn := &models.Transaction{
		AccountName:     block.AccountName,
		AccountCurrency: block.Currency,
		AccountIBAN:     block.IBAN,
		PeriodStart:     block.PeriodStart,
		PeriodEnd:       block.PeriodEnd,
		TxnDateUTC:      txnDate,
	}

	tokens := strings.Fields(firstLine)
	if len(tokens) > 3 && typeCodePattern.MatchString(tokens[3]) {
		txn.TxnTypeCode = tokens[3]
	}

	if match := idPattern.FindStringSubmatch(text); match != nil {
		txn.ExternalID = match[1]
	}
	if match := toAccountPattern.FindStringSubmatch(text); match != nil {
		txn.ToAccount = match[1]
	}
	if match := fromAccountPattern.FindStringSubmatch(text); match != nil {
		txn.FromAccount = match[1]
	}

	if match := transferCurrencyPattern.FindStringSubmatch(text); match != nil {
		txn.TransferFromCurrency = match[1]
		txn.TransferToCurrency = match[2]
	}
	if match := fxRatePattern.FindStringSubmatch(text); match != nil {
		if rate, rateErr := models.ParseAmount(match[3]); rateErr == nil && !rate.IsZero() {
			txn.FXRateApplied = &rate
		}
	}

	txn.DescriptionRaw = cleanDescription(text)

	p.assignAmounts(txn, text, warnings)

	return txn, nil
}

// parseChunkDate parses the transaction date from the first three tokens of
// the boundary line
func (p *Parser) parseChunkDate(firstLine string) (time.Time, error) {
	tokens := strings.Fields(firstLine)
	if len(tokens) < 3 {
		return time.Time{}, fmt.Errorf("boundary line has fewer than three tokens")
	}
	return time.Parse(p.DateLayout(), strings.Join(tokens[:3], " "))
}

// cleanDescription strips structured lines from the chunk text and collapses
// whitespace
func cleanDescription(text string) string {
	text = fxRateLinePattern.ReplaceAllString(text, "")
	text = idPattern.ReplaceAllString(text, "")
	text = toAccountPattern.ReplaceAllString(text, "")
	text = fromAccountPattern.ReplaceAllString(text, "")
	return models.CollapseWhitespace(text)
}

// scanAmounts finds every monetary token in the chunk, in reading order
func scanAmounts(text string) []amountToken {
	var found []amountToken

	for _, match := range amountPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[match[4]:match[5]]
		value, err := models.ParseAmount(raw)
		if err != nil {
			continue
		}

		currency := ""
		if match[2] >= 0 {
			currency = symbolCurrencies[text[match[2]:match[3]]]
		}
		if currency == "" {
			if trail := trailingCurrencyPattern.FindStringSubmatch(text[match[1]:]); trail != nil {
				currency = trail[1]
			}
		}

		found = append(found, amountToken{Value: value, Currency: currency})
	}

	return found
}

// assignAmounts applies the amount policy to the chunk:
//
//   - the last amount found is the running balance (only when at least two
//     amounts are present; a single amount is the movement itself)
//   - among the remaining amounts the first in reading order is the primary
//     movement, assigned to money out or money in by the inferred direction
//   - no parseable amount leaves the row neutral and flagged for review
//
// FX rate lines are excluded from the scan: the rate is not a movement and
// must never be mistaken for the balance.
func (p *Parser) assignAmounts(txn *models.Transaction, text string, warnings *errors.Warnings) {
	amounts := scanAmounts(fxRateLinePattern.ReplaceAllString(text, ""))

	if len(amounts) == 0 {
		txn.Direction = models.DirectionNeutral
		txn.Amount = decimal.Zero
		txn.SignedAmount = decimal.Zero
		txn.NeedsReview = true
		warnings.Add(errors.FieldError(errors.CodeFieldAmbiguity,
			fmt.Sprintf("no amount found for transaction on %s", txn.TxnDateUTC.Format("2006-01-02")), nil))
		return
	}

	primary := amounts[0]
	if len(amounts) >= 2 {
		balance := amounts[len(amounts)-1].Value
		txn.Balance = &balance
	}

	inflow := p.inferInflow(txn, text)
	if inflow {
		txn.MoneyIn = &primary.Value
		txn.Direction = models.DirectionInflow
		txn.Amount = primary.Value
		txn.SignedAmount = primary.Value
	} else {
		txn.MoneyOut = &primary.Value
		txn.Direction = models.DirectionOutflow
		txn.Amount = primary.Value
		txn.SignedAmount = primary.Value.Neg()
	}

	if primary.Currency != "" && primary.Currency != txn.AccountCurrency {
		txn.NeedsReview = true
		warnings.Add(errors.FieldError(errors.CodeCurrencyMismatch,
			fmt.Sprintf("amount marked %s inside %s block on %s",
				primary.Currency, txn.AccountCurrency, txn.TxnDateUTC.Format("2006-01-02")), nil))
	}
}

// inferInflow decides the money-out/money-in column for the primary amount.
// Exchange type codes are authoritative; otherwise inflow keywords in the
// chunk text decide, defaulting to outflow.
func (p *Parser) inferInflow(txn *models.Transaction, text string) bool {
	switch txn.TxnTypeCode {
	case "EXI":
		return true
	case "EXO":
		return false
	}

	normalized := models.NormalizeText(text)
	for _, keyword := range inflowKeywords {
		if strings.Contains(normalized, keyword) {
			return true
		}
	}
	return false
}
