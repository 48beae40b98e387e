// Package extractor produces ordered per-page plain text from uploaded
// statement documents.
//
// The PDF path reads the embedded text layer with the ledongthuc/pdf library,
// preferring row-based extraction (best layout preservation) and falling back
// to plain-text extraction when rows come back empty. Image-only scans carry
// no text layer and are rejected rather than silently misparsed.
//
// A plain-text extractor handles pre-extracted documents (and test fixtures),
// treating form feeds as page boundaries.
package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// Extractor produces ordered per-page text for a document
type Extractor interface {
	ExtractPages(data []byte) ([]string, error)
}

// PDFExtractor reads the text layer of PDF statement documents
type PDFExtractor struct {
	logger logger.Logger
}

// NewPDFExtractor creates a PDF text extractor
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{
		logger: logger.WithComponent("pdf_extractor"),
	}
}

// ExtractPages returns the text of each page in document order
func (e *PDFExtractor) ExtractPages(data []byte) (pages []string, err error) {
	// The pdf library panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = errors.DocumentError(errors.CodeUnreadableText, "",
				fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.DocumentError(errors.CodeUnreadableText, "", err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.DocumentError(errors.CodeUnreadableText, "",
			fmt.Errorf("document has no pages"))
	}

	pages = e.extractByRow(reader, numPages)
	if totalTextLen(pages) == 0 {
		e.logger.Debug("Row extraction produced no text, falling back to plain text")
		pages = e.extractPlainText(reader, numPages)
	}

	if totalTextLen(pages) == 0 {
		return nil, errors.DocumentError(errors.CodeUnreadableText, "",
			fmt.Errorf("no text layer found in %d pages", numPages))
	}

	e.logger.WithFields(logger.Fields{
		"pages": numPages,
		"chars": totalTextLen(pages),
	}).Debug("Extracted document text")

	return pages, nil
}

// extractByRow reconstructs each page line by line from positioned text rows
func (e *PDFExtractor) extractByRow(reader *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			e.logger.WithError(err).WithField("page", i).Debug("Row extraction failed for page")
			pages = append(pages, "")
			continue
		}

		var lines []string
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}

	return pages
}

// extractPlainText uses per-page plain-text extraction with the page fonts
func (e *PDFExtractor) extractPlainText(reader *pdf.Reader, numPages int) []string {
	pages := make([]string, 0, numPages)

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return pages
}

// PlainTextExtractor treats the input as already-extracted statement text.
// Form feeds separate pages; input without form feeds is a single page.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a plain-text extractor
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// ExtractPages splits the text on form-feed page markers
func (e *PlainTextExtractor) ExtractPages(data []byte) ([]string, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, errors.DocumentError(errors.CodeUnreadableText, "",
			fmt.Errorf("document is empty"))
	}

	pages := strings.Split(text, "\f")
	for i, page := range pages {
		pages[i] = strings.TrimSpace(page)
	}
	return pages, nil
}

// ForFileName picks an extractor based on the uploaded file name. PDF gets
// the text-layer extractor; everything else is treated as plain text.
func ForFileName(name string) Extractor {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return NewPDFExtractor()
	}
	return NewPlainTextExtractor()
}

func totalTextLen(pages []string) int {
	n := 0
	for _, page := range pages {
		n += len(strings.TrimSpace(page))
	}
	return n
}
