// Package pdfx reads embedded text and metadata from PDF files without
// rasterization. OCR never happens here; pages whose native text is too
// short are handed to the OCR engine by the orchestrator.
package pdfx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// Validation failures surfaced to the orchestrator.
var (
	ErrNotFound    = errors.New("pdf not found")
	ErrNotFile     = errors.New("pdf path is not a file")
	ErrNotPDF      = errors.New("input file must be a pdf")
	ErrNotReadable = errors.New("pdf is not readable")
)

// PageText is one page of native text.
type PageText struct {
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
	CharCount  int    `json:"charCount"`
}

// Dimensions is a page's media box size in points.
type Dimensions struct {
	Width  float64
	Height float64
}

// Reader extracts embedded text from PDFs.
type Reader struct {
	logger     logger.Logger
	maxWorkers int
}

func NewReader(log logger.Logger) *Reader {
	return &Reader{
		logger:     log,
		maxWorkers: 4,
	}
}

// ValidatePath checks that path names a readable .pdf file.
func ValidatePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFile, abs)
	}
	if strings.ToLower(filepath.Ext(abs)) != ".pdf" {
		return "", fmt.Errorf("%w: %s", ErrNotPDF, abs)
	}
	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotReadable, abs)
	}
	f.Close()
	return abs, nil
}

// PageCount returns the number of pages without extracting any text.
func (r *Reader) PageCount(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// ExtractNativeText pulls embedded text for every page in parallel.
// Pages are returned in ascending page-number order.
func (r *Reader) ExtractNativeText(ctx context.Context, path string) (string, []PageText, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	numPages := reader.NumPage()
	pages := make([]PageText, numPages)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, r.maxWorkers)

	for i := 1; i <= numPages; i++ {
		pageNum := i
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return ctx.Err()
			}

			page := reader.Page(pageNum)
			if page.V.IsNull() {
				mu.Lock()
				pages[pageNum-1] = PageText{PageNumber: pageNum}
				mu.Unlock()
				return nil
			}

			text, err := page.GetPlainText(nil)
			if err != nil {
				// A single unreadable page is not fatal; it simply has no
				// native text and will be routed to OCR.
				r.logger.Warn("native text extraction failed for page",
					logger.Int("page", pageNum),
					logger.Error(err),
				)
				text = ""
			}

			mu.Lock()
			pages[pageNum-1] = PageText{
				PageNumber: pageNum,
				Text:       text,
				CharCount:  len(strings.TrimSpace(text)),
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })

	var parts []string
	for _, p := range pages {
		if trimmed := strings.TrimSpace(p.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n"), pages, nil
}

// PageDimensions returns the media box size of every page in points.
func (r *Reader) PageDimensions(path string) (map[int]Dimensions, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	dims := make(map[int]Dimensions, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		box := page.V.Key("MediaBox")
		if box.IsNull() || box.Len() < 4 {
			continue
		}
		dims[i] = Dimensions{
			Width:  box.Index(2).Float64() - box.Index(0).Float64(),
			Height: box.Index(3).Float64() - box.Index(1).Float64(),
		}
	}
	return dims, nil
}
