// Package pdfops wraps the PDF operations the parse stage needs: counting
// pages, extracting single-page documents, and rendering pages to images
// for the recognizer.
package pdfops

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"strconv"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Ops performs PDF operations on files. The zero value is usable;
// RenderQuality defaults to 85 when unset.
type Ops struct {
	RenderQuality int
}

// relaxedConfig tolerates the structural quirks common in scanned
// textbooks.
func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the PDF at path.
func (o Ops) PageCount(path string) (int, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("count pages in %s: %w", filepath.Base(path), err)
	}
	if count == 0 {
		return 0, fmt.Errorf("%s has no pages", filepath.Base(path))
	}
	return count, nil
}

// ExtractPage writes page pageIndex (zero-based) of src as a standalone
// one-page PDF under destDir and returns its path.
func (o Ops) ExtractPage(src string, pageIndex int, destDir string) (string, error) {
	out := filepath.Join(destDir, fmt.Sprintf("%s_page_%d.pdf",
		stem(src), pageIndex))

	pages := []string{strconv.Itoa(pageIndex + 1)}
	if err := api.TrimFile(src, out, pages, relaxedConfig()); err != nil {
		return "", fmt.Errorf("extract page %d from %s: %w", pageIndex, filepath.Base(src), err)
	}
	return out, nil
}

// Optimize rewrites src to dst with redundant objects removed. Smaller
// page files keep render memory down on large scans.
func (o Ops) Optimize(src, dst string) error {
	if err := api.OptimizeFile(src, dst, relaxedConfig()); err != nil {
		return fmt.Errorf("optimize %s: %w", filepath.Base(src), err)
	}
	return nil
}

// RenderPage rasterizes page pageIndex of the PDF at path to a JPEG image.
func (o Ops) RenderPage(path string, pageIndex int) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for rendering: %w", filepath.Base(path), err)
	}
	defer doc.Close()

	img, err := doc.Image(pageIndex)
	if err != nil {
		return nil, fmt.Errorf("render page %d of %s: %w", pageIndex, filepath.Base(path), err)
	}

	quality := o.RenderQuality
	if quality == 0 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode page %d image: %w", pageIndex, err)
	}
	return buf.Bytes(), nil
}

func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" {
		base = "doc"
	}
	return base
}
