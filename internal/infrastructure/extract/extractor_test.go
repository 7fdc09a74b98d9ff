package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

type runnerFake struct {
	stdout []byte
	err    error

	name string
	args []string
}

func (f *runnerFake) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args
	return f.stdout, nil, f.err
}

func TestExtractPrefersEmbeddedText(t *testing.T) {
	e := NewExtractorWithRunner(&runnerFake{err: errors.New("must not run")}, "definitely-not-installed", "eng", t.TempDir())

	text, err := e.Extract(context.Background(), domain.PageInput{
		Bytes:        []byte{1, 2, 3},
		EmbeddedText: "  Invoice   No. 42  \n\n  Total: 10.00 ",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "Invoice No. 42\nTotal: 10.00" {
		t.Fatalf("unexpected normalized text: %q", text)
	}
}

func TestExtractRunsOCRForScannedPages(t *testing.T) {
	runner := &runnerFake{stdout: []byte("RECEIPT\n\n  cash   total 5.00\n")}
	e := NewExtractorWithRunner(runner, "sh", "eng", t.TempDir())

	text, err := e.Extract(context.Background(), domain.PageInput{Bytes: []byte("scan"), DocumentID: "doc-1"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if text != "RECEIPT\ncash total 5.00" {
		t.Fatalf("unexpected OCR text: %q", text)
	}
	if runner.name != "sh" {
		t.Fatalf("expected configured binary, ran %q", runner.name)
	}
	if len(runner.args) != 4 || runner.args[1] != "stdout" || runner.args[3] != "eng" {
		t.Fatalf("unexpected OCR args: %v", runner.args)
	}
}

func TestExtractMissingBinaryIsUnavailable(t *testing.T) {
	e := NewExtractorWithRunner(&runnerFake{}, "definitely-not-installed", "eng", t.TempDir())

	_, err := e.Extract(context.Background(), domain.PageInput{Bytes: []byte("scan")})
	if !domain.IsKind(err, domain.ErrExtractionUnavailable) {
		t.Fatalf("expected extraction unavailable, got %v", err)
	}
}

func TestExtractOCRFailureIsExtractionError(t *testing.T) {
	e := NewExtractorWithRunner(&runnerFake{err: errors.New("exit status 1")}, "sh", "eng", t.TempDir())

	_, err := e.Extract(context.Background(), domain.PageInput{Bytes: []byte("scan")})
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("expected extraction error, got %v", err)
	}
}
