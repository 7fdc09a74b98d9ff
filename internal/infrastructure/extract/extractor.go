package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

// Extractor turns a page into raw text. Pages that already carry an embedded
// text layer skip OCR entirely; scanned pages go through the tesseract
// binary. All failures are reported as extraction errors and leave the page
// on the vision-only path; they never abort it.
type Extractor struct {
	runner  Runner
	binary  string
	lang    string
	workDir string
}

func NewExtractor(binary, lang, workDir string) *Extractor {
	return &Extractor{
		runner:  execRunner{},
		binary:  binary,
		lang:    lang,
		workDir: workDir,
	}
}

// NewExtractorWithRunner is the test seam for stubbing the OCR command.
func NewExtractorWithRunner(runner Runner, binary, lang, workDir string) *Extractor {
	return &Extractor{runner: runner, binary: binary, lang: lang, workDir: workDir}
}

func (e *Extractor) Extract(ctx context.Context, page domain.PageInput) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if text := strings.TrimSpace(page.EmbeddedText); text != "" {
		return normalize(text), nil
	}

	if _, err := exec.LookPath(e.binary); err != nil {
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "extract page",
			fmt.Errorf("%s not installed: %w", e.binary, err))
	}

	path, cleanup, err := e.spoolPage(page)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract page", err)
	}
	defer cleanup()

	out, _, err := e.runner.Run(ctx, e.binary, path, "stdout", "-l", e.lang)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract page",
			fmt.Errorf("page %d of %s: %w", page.PageIndex, page.DocumentID, err))
	}

	return normalize(string(out)), nil
}

// spoolPage writes the page bytes to a scratch file for the OCR binary,
// which only reads from disk.
func (e *Extractor) spoolPage(page domain.PageInput) (string, func(), error) {
	dir := e.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, fmt.Sprintf("page-%s-%d-*", page.DocumentID, page.PageIndex))
	if err != nil {
		return "", nil, fmt.Errorf("spool page: %w", err)
	}
	if _, err := f.Write(page.Bytes); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("spool page: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, fmt.Errorf("spool page: %w", err)
	}

	name := f.Name()
	return name, func() { _ = os.Remove(filepath.Clean(name)) }, nil
}

// normalize collapses OCR line noise into single-spaced lines.
func normalize(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
