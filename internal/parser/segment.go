package parser

import "strings"

// Chunk is the raw multi-line text spanning one transaction before field
// extraction.
type Chunk struct {
	Lines []string
}

// Text returns the chunk's lines joined with newlines
func (c *Chunk) Text() string {
	return strings.Join(c.Lines, "\n")
}

// segmentState is the state of the line machine walking a block's span
type segmentState int

const (
	// seeking the transaction-table header line
	stateSeekHeader segmentState = iota
	// below the header, before the first transaction boundary
	stateInTable
	// accumulating lines into the current transaction chunk
	stateInChunk
	// past the table region
	stateDone
)

// segmentResult carries the segmentation outcome for one account block
type segmentResult struct {
	Chunks      []*Chunk
	HeaderFound bool
}

// segmentTransactions splits an account block's span into one chunk per
// transaction.
//
// The machine only operates below the table header line and above the next
// section boundary. A new transaction starts at any line beginning with a
// "<day> <Mon> <year>" date; all following lines up to the next boundary (or
// region end) belong to the same chunk. Page-break markers are continuations,
// never boundaries. A region with a header but no chunks is legal (an account
// may have no transactions in period) and reported to the caller.
func segmentTransactions(span []string) segmentResult {
	state := stateSeekHeader
	result := segmentResult{}

	var current *Chunk
	flush := func() {
		if current != nil {
			result.Chunks = append(result.Chunks, current)
			current = nil
		}
	}

	for _, line := range span {
		if line == pageBreak {
			continue
		}

		switch state {
		case stateSeekHeader:
			if tableHeaderPattern.MatchString(line) {
				result.HeaderFound = true
				state = stateInTable
			}

		case stateInTable, stateInChunk:
			if isSectionEnd(line) {
				flush()
				state = stateDone
				continue
			}

			if dateLinePattern.MatchString(line) {
				flush()
				current = &Chunk{Lines: []string{line}}
				state = stateInChunk
				continue
			}

			// Continuation lines (wrapped description, ID:, To/From
			// account:) only belong to a chunk once one is open; stray
			// lines above the first boundary are not transactions
			if state == stateInChunk {
				current.Lines = append(current.Lines, line)
			}

		case stateDone:
		}
	}

	flush()
	return result
}

func isSectionEnd(line string) bool {
	for _, prefix := range sectionEndPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
