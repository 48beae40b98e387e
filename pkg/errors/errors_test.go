package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestStatementErrorMessage(t *testing.T) {
	err := DocumentError(CodeMalformedDocument, "statement.pdf", nil)

	if err.Category != CategoryDocument {
		t.Errorf("Category = %s, want %s", err.Category, CategoryDocument)
	}
	if err.Code != CodeMalformedDocument {
		t.Errorf("Code = %s, want %s", err.Code, CodeMalformedDocument)
	}
	if err.Suggestion == "" {
		t.Error("document errors should carry a suggestion")
	}
	if !strings.Contains(err.Error(), "statement.pdf") {
		t.Errorf("Error() = %q should mention the file", err.Error())
	}
	if !strings.Contains(err.Error(), "suggestion:") {
		t.Errorf("Error() = %q should include the suggestion", err.Error())
	}
}

func TestDocumentErrorWithoutFileName(t *testing.T) {
	err := DocumentError(CodeMalformedDocument, "", nil)

	if strings.HasSuffix(err.Message, " ") {
		t.Errorf("Message = %q should not trail off where the file name would go", err.Message)
	}
	if _, ok := err.Context["file_name"]; ok {
		t.Error("an empty file name should not be recorded in the error context")
	}
}

func TestStatementErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying problem")
	err := InternalError("parse", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestAsStatementError(t *testing.T) {
	statementErr := StorageError(CodeNotFound, "stmt-1", nil)
	wrapped := fmt.Errorf("handler: %w", statementErr)

	got, ok := AsStatementError(wrapped)
	if !ok {
		t.Fatal("AsStatementError should unwrap through fmt wrapping")
	}
	if got.Code != CodeNotFound {
		t.Errorf("Code = %s, want %s", got.Code, CodeNotFound)
	}

	if _, ok := AsStatementError(fmt.Errorf("plain")); ok {
		t.Error("plain errors are not statement errors")
	}
}

func TestIsCode(t *testing.T) {
	err := StorageError(CodeNotFound, "stmt-1", nil)

	if !IsCode(err, CodeNotFound) {
		t.Error("IsCode should match the error's code")
	}
	if IsCode(err, CodeDuplicateUpload) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(nil, CodeNotFound) {
		t.Error("IsCode(nil) should be false")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  *StatementError
		want int
	}{
		{"document", DocumentError(CodeMalformedDocument, "f", nil), 2},
		{"extraction", ExtractionError(CodeMissingPeriod, "Main", "RON"), 2},
		{"field", FieldError(CodeInvalidDate, "bad", nil), 3},
		{"configuration", ConfigurationError(CodeInvalidRules, "rules.yaml", nil), 4},
		{"storage", StorageError(CodeNotFound, "id", nil), 5},
		{"internal", InternalError("op", nil), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.GetExitCode(); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	warnings := &Warnings{}

	if warnings.HasCategory(CategoryExtraction) {
		t.Error("empty warnings should have no categories")
	}

	warnings.Add(ExtractionError(CodeMissingIBAN, "Main", "RON"))
	warnings.Add(FieldError(CodeFieldAmbiguity, "row 3", nil))

	if !warnings.HasCategory(CategoryExtraction) {
		t.Error("HasCategory(extraction) = false, want true")
	}
	if warnings.HasCategory(CategoryStorage) {
		t.Error("HasCategory(storage) = true, want false")
	}
	if len(warnings.Messages()) != 2 {
		t.Errorf("Messages() = %d entries, want 2", len(warnings.Messages()))
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := DocumentError(CodeUnreadableText, "f", nil)
	if WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x") != original {
		t.Error("an existing statement error should pass through unchanged")
	}

	wrapped := WrapIfNeeded(fmt.Errorf("plain"), CategoryInternal, CodeUnexpectedError, "wrapped")
	if wrapped.Category != CategoryInternal {
		t.Errorf("Category = %s, want %s", wrapped.Category, CategoryInternal)
	}
}
