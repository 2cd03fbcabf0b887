// Package render rasterizes PDF pages to images for OCR. Rendering goes
// through the poppler pdftoppm binary, the same engine the rest of the
// toolchain assumes, invoked per page range so peak memory stays bounded.
package render

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// Renderer rasterizes a page range of a PDF at a given DPI.
// Implementations must return pages in ascending page-number order.
type Renderer interface {
	Render(ctx context.Context, pdfPath string, dpi, firstPage, lastPage int) ([]image.Image, error)
}

// CheckBinary reports whether a binary is available on PATH.
func CheckBinary(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// EnsureBinaries returns the names of any missing binaries.
func EnsureBinaries(names ...string) []string {
	var missing []string
	for _, name := range names {
		if !CheckBinary(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// PopplerRenderer shells out to pdftoppm.
type PopplerRenderer struct {
	logger logger.Logger
}

func NewPopplerRenderer(log logger.Logger) *PopplerRenderer {
	return &PopplerRenderer{logger: log}
}

// Render rasterizes pages [firstPage, lastPage] (1-based, inclusive) at dpi.
// lastPage <= 0 means "to the end of the document".
func (r *PopplerRenderer) Render(ctx context.Context, pdfPath string, dpi, firstPage, lastPage int) ([]image.Image, error) {
	tmpDir, err := os.MkdirTemp("", "pdfrender-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-png", "-r", fmt.Sprint(dpi), "-f", fmt.Sprint(firstPage)}
	if lastPage > 0 {
		args = append(args, "-l", fmt.Sprint(lastPage))
	}
	args = append(args, pdfPath, prefix)

	cmd := exec.CommandContext(ctx, "pdftoppm", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rendered pages: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".png") {
			names = append(names, entry.Name())
		}
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(names)

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := imaging.Open(filepath.Join(tmpDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to decode rendered page %s: %w", name, err)
		}
		images = append(images, img)
	}

	r.logger.Debug("rendered pages",
		logger.String("pdf", filepath.Base(pdfPath)),
		logger.Int("dpi", dpi),
		logger.Int("count", len(images)),
	)
	return images, nil
}
