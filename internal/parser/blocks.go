package parser

import (
	"strings"
	"time"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
)

// locateBlocks splits the normalized document lines into ordered account
// blocks. A block starts at an account name line that is followed, within the
// configured lookahead, by a Currency line; its span continues until the next
// block start or end of document.
//
// IBAN and statement period are recovered from the first matching lines
// scoped to the block. A block missing its period or IBAN is kept and the gap
// recorded as an extraction warning.
func (p *Parser) locateBlocks(lines []string, warnings *errors.Warnings) []models.AccountBlock {
	type blockStart struct {
		nameLine     int
		currencyLine int
		name         string
		currency     string
	}

	var starts []blockStart

	for i := 0; i < len(lines); i++ {
		nameMatch := accountNamePattern.FindStringSubmatch(lines[i])
		if nameMatch == nil {
			continue
		}

		limit := i + p.config.CurrencyLookaheadLines
		if limit >= len(lines) {
			limit = len(lines) - 1
		}

		for j := i + 1; j <= limit; j++ {
			currencyMatch := currencyPattern.FindStringSubmatch(lines[j])
			if currencyMatch == nil {
				continue
			}
			starts = append(starts, blockStart{
				nameLine:     i,
				currencyLine: j,
				name:         strings.TrimSpace(nameMatch[1]),
				currency:     currencyMatch[1],
			})
			i = j
			break
		}
	}

	blocks := make([]models.AccountBlock, 0, len(starts))

	for idx, start := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1].nameLine
		}

		block := models.AccountBlock{
			AccountName: start.name,
			Currency:    start.currency,
			StartLine:   start.nameLine,
			EndLine:     end,
		}

		p.fillBlockDetails(&block, lines[start.currencyLine+1:end])

		if !block.HasPeriod() {
			warnings.Add(errors.ExtractionError(errors.CodeMissingPeriod, block.AccountName, block.Currency))
		}
		if block.IBAN == "" {
			warnings.Add(errors.ExtractionError(errors.CodeMissingIBAN, block.AccountName, block.Currency))
		}

		blocks = append(blocks, block)
	}

	return blocks
}

// fillBlockDetails recovers the IBAN and statement period from a block's span
func (p *Parser) fillBlockDetails(block *models.AccountBlock, span []string) {
	for _, line := range span {
		if block.IBAN == "" {
			if match := ibanPattern.FindStringSubmatch(line); match != nil {
				block.IBAN = strings.ReplaceAll(strings.TrimSpace(match[1]), " ", "")
			}
		}

		if !block.HasPeriod() {
			if match := periodPattern.FindStringSubmatch(line); match != nil {
				start, startErr := p.parsePeriodDate(match[1])
				end, endErr := p.parsePeriodDate(match[2])
				if startErr == nil && endErr == nil {
					block.PeriodStart = &start
					block.PeriodEnd = &end
				}
			}
		}

		if block.IBAN != "" && block.HasPeriod() {
			return
		}
	}
}

// parsePeriodDate tries the configured period date layouts in order
func (p *Parser) parsePeriodDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	var lastErr error
	for _, layout := range p.config.PeriodDateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
