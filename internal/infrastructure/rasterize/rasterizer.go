package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

// Rasterizer splits an upload into page inputs. PDFs become one input per
// page, carrying the decoded content stream bytes and any embedded text
// layer; every other format is treated as a single-page scan.
type Rasterizer struct{}

func New() *Rasterizer {
	return &Rasterizer{}
}

func (r *Rasterizer) Split(ctx context.Context, documentID, filename string, content []byte) ([]domain.PageInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedInput, "split document", fmt.Errorf("%s: empty upload", filename))
	}

	if bytes.HasPrefix(content, pdfMagic) {
		return r.splitPDF(documentID, filename, content)
	}

	return []domain.PageInput{{
		Bytes:      content,
		PageIndex:  0,
		DocumentID: documentID,
	}}, nil
}

func (r *Rasterizer) splitPDF(documentID, filename string, content []byte) (pages []domain.PageInput, err error) {
	// The pdf package panics on some malformed cross-reference tables
	// instead of returning an error.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = domain.WrapError(domain.ErrMalformedInput, "split document", fmt.Errorf("%s: %v", filename, rec))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedInput, "split document", fmt.Errorf("%s: %w", filename, err))
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, domain.WrapError(domain.ErrMalformedInput, "split document", fmt.Errorf("%s: no pages", filename))
	}

	pages = make([]domain.PageInput, 0, total)
	for num := 1; num <= total; num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			return nil, domain.WrapError(domain.ErrMalformedInput, "split document", fmt.Errorf("%s: page %d unreadable", filename, num))
		}

		pageBytes := pageContent(page, content)

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A broken text layer is not fatal; the page degrades to
			// OCR downstream.
			slog.Debug("embedded text unavailable", "document_id", documentID, "page", num, "error", err)
			text = ""
		}

		pages = append(pages, domain.PageInput{
			Bytes:        pageBytes,
			PageIndex:    num - 1,
			DocumentID:   documentID,
			EmbeddedText: strings.TrimSpace(text),
		})
	}
	return pages, nil
}

// pageContent collects the page's decoded content streams so each page gets
// distinct bytes. Pages with no recoverable stream fall back to the whole
// document.
func pageContent(page pdf.Page, whole []byte) []byte {
	contents := page.V.Key("Contents")

	var buf bytes.Buffer
	switch contents.Kind() {
	case pdf.Stream:
		_, _ = io.Copy(&buf, contents.Reader())
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			if part := contents.Index(i); part.Kind() == pdf.Stream {
				_, _ = io.Copy(&buf, part.Reader())
			}
		}
	}

	if buf.Len() == 0 {
		return whole
	}
	return buf.Bytes()
}
