package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/Gandorini/S-T-Station/pkg/logger"
)

// TextExtractor pulls whatever text an upload carries. Failures degrade to
// an empty string so the caller's verdict falls through to "no signal".
type TextExtractor interface {
	ExtractText(ctx context.Context, path string, kind FileKind) string
}

// OCRExtractor reads PDF text layers in-process and OCRs images with tesseract.
type OCRExtractor struct {
	runner    Runner
	tesseract string
	language  string
}

// NewOCRExtractor creates a text extractor that shells out through runner.
func NewOCRExtractor(runner Runner, tesseract, language string) *OCRExtractor {
	if tesseract == "" {
		tesseract = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &OCRExtractor{runner: runner, tesseract: tesseract, language: language}
}

func (e *OCRExtractor) ExtractText(ctx context.Context, path string, kind FileKind) string {
	switch kind {
	case KindPDF:
		return pdfText(ctx, path)
	case KindImage:
		return e.imageText(ctx, path)
	default:
		return ""
	}
}

func (e *OCRExtractor) imageText(ctx context.Context, path string) string {
	// tesseract <img> stdout -l <lang>
	out, _, err := e.runner.Run(ctx, e.tesseract, path, "stdout", "-l", e.language)
	if err != nil {
		logger.Warn(ctx, "image ocr failed", "path", path, "error", err)
		return ""
	}
	return string(out)
}

// pdfText joins the text of every readable page. The pdf package panics on
// some corrupt xref tables and page trees as well as on content streams, so
// whatever was collected before a panic is returned.
func pdfText(ctx context.Context, path string) (text string) {
	var b strings.Builder
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn(ctx, "pdf unreadable", "path", path, "panic", fmt.Sprint(rec))
			text = b.String()
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		logger.Warn(ctx, "pdf open failed", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		txt, err := pageText(r, i)
		if err != nil {
			logger.Debug(ctx, "pdf page skipped", "path", path, "page", i, "error", err)
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(txt)
	}
	return b.String()
}

// pageText isolates one page so a malformed content stream, which makes
// the pdf package panic, only costs that page.
func pageText(r *pdf.Reader, i int) (txt string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			txt, err = "", fmt.Errorf("page %d: %v", i, rec)
		}
	}()
	p := r.Page(i)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
