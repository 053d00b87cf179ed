package validation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
)

// ErrNoPageImage means a PDF could not be rendered to an image.
var ErrNoPageImage = errors.New("no page image produced")

// Rasterizer renders the first page of a PDF with pdftoppm.
type Rasterizer struct {
	runner   Runner
	pdftoppm string
	dpi      int
}

// NewRasterizer creates a rasterizer. dpi <= 0 uses 150.
func NewRasterizer(runner Runner, pdftoppm string, dpi int) *Rasterizer {
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	return &Rasterizer{runner: runner, pdftoppm: pdftoppm, dpi: dpi}
}

// FirstPage writes the first page of pdfPath as a PNG into outDir and returns its path.
func (r *Rasterizer) FirstPage(ctx context.Context, pdfPath, outDir string) (string, error) {
	prefix := filepath.Join(outDir, "page")
	// pdftoppm -f 1 -l 1 -png -r <dpi> <in.pdf> <dir/page>
	_, errb, err := r.runner.Run(ctx, r.pdftoppm, "-f", "1", "-l", "1", "-png", "-r", strconv.Itoa(r.dpi), pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("%w: %v: %s", ErrNoPageImage, err, truncate(string(errb), 512))
	}

	// The page suffix is zero-padded to the document's page count width.
	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return "", ErrNoPageImage
	}
	sort.Strings(matches)
	return matches[0], nil
}
