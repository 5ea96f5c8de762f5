// Package extract produces page-numbered plain text from PDF files.
package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/beyondchats/studydesk/internal/model"
)

const (
	// MaxPages caps how many pages are read from a document.
	MaxPages = 30
	// MaxChars caps the accumulated text length. Extraction stops once the
	// running text exceeds it, so the page that crosses the cap is kept.
	// Documents longer than the cap are only partially visible downstream.
	MaxChars = 80000
)

// ExtractionError reports a source that could not be parsed as a PDF.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// pageSource abstracts an opened document so the paging and budget logic can
// be exercised without PDF fixtures.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error)
}

type pdfSource struct {
	r *pdf.Reader
}

func (s pdfSource) NumPage() int { return s.r.NumPage() }

func (s pdfSource) PageText(n int) (string, error) {
	p := s.r.Page(n)
	if p.V.IsNull() {
		return "", nil
	}
	runs := p.Content().Text
	parts := make([]string, 0, len(runs))
	for _, t := range runs {
		parts = append(parts, t.S)
	}
	return strings.Join(parts, " "), nil
}

// Document opens the PDF at path and extracts its text, page by page.
func Document(path string) (*model.ExtractedDocument, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	defer f.Close()

	doc, err := collect(pdfSource{r: r})
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: err}
	}
	return doc, nil
}

func collect(src pageSource) (*model.ExtractedDocument, error) {
	maxPages := src.NumPage()
	if maxPages > MaxPages {
		maxPages = MaxPages
	}

	var doc model.ExtractedDocument
	var full strings.Builder
	for n := 1; n <= maxPages; n++ {
		text, err := src.PageText(n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		full.WriteString(fmt.Sprintf("\n\n[Page %d]\n%s", n, text))
		doc.Pages = append(doc.Pages, model.PageText{PageNumber: n, Text: text})
		if full.Len() > MaxChars {
			break
		}
	}
	doc.FullText = full.String()
	return &doc, nil
}
