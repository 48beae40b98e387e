package extractor

import (
	"testing"
)

func TestPlainTextExtractorPages(t *testing.T) {
	e := NewPlainTextExtractor()

	pages, err := e.ExtractPages([]byte("page one\nline two\fpage two\n"))
	if err != nil {
		t.Fatalf("ExtractPages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2", len(pages))
	}
	if pages[0] != "page one\nline two" {
		t.Errorf("pages[0] = %q", pages[0])
	}
}

func TestPlainTextExtractorSinglePage(t *testing.T) {
	e := NewPlainTextExtractor()

	pages, err := e.ExtractPages([]byte("no form feeds here\n"))
	if err != nil {
		t.Fatalf("ExtractPages() error = %v", err)
	}
	if len(pages) != 1 {
		t.Errorf("len(pages) = %d, want 1", len(pages))
	}
}

func TestPDFExtractorRejectsGarbage(t *testing.T) {
	e := NewPDFExtractor()

	if _, err := e.ExtractPages([]byte("definitely not a pdf")); err == nil {
		t.Fatal("ExtractPages() should fail for non-PDF bytes")
	}
}

func TestForFileName(t *testing.T) {
	tests := []struct {
		fileName string
		wantPDF  bool
	}{
		{"statement.pdf", true},
		{"statement.PDF", true},
		{"statement.txt", false},
		{"statement", false},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			e := ForFileName(tt.fileName)
			_, isPDF := e.(*PDFExtractor)
			if isPDF != tt.wantPDF {
				t.Errorf("ForFileName(%q) PDF = %v, want %v", tt.fileName, isPDF, tt.wantPDF)
			}
		})
	}
}
