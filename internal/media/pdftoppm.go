package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/MimeLyc/slidesage/pkg/log"
)

type pdftoppm struct {
	cmd string
}

// NewPdftoppm renders pages with poppler's pdftoppm
func NewPdftoppm() pdftoppm {
	return pdftoppm{cmd: "pdftoppm"}
}

// Rasterize renders each page of pdfPath to PNG, ordered by page number
func (p pdftoppm) Rasterize(ctx context.Context, pdfPath string, dpi int) ([]Image, error) {
	if dpi <= 0 {
		dpi = SlideDPI
	}
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, fmt.Errorf("pdf not readable: %w", err)
	}

	cmdPath, err := exec.LookPath(p.cmd)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "slidesage-raster-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	prefix := filepath.Join(workDir, "page")
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdPath, p.rasterArgs(pdfPath, prefix, dpi)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		log.Error("Failed to run pdftoppm on %s: %v: %s", pdfPath, err, strings.TrimSpace(stderr.String()))
		return nil, fmt.Errorf("pdftoppm failed: %w", err)
	}

	return collectPages(workDir)
}

func (pdftoppm) rasterArgs(pdfPath, prefix string, dpi int) []string {
	return []string{
		"-png",
		"-r", strconv.Itoa(dpi),
		pdfPath,
		prefix,
	}
}

// collectPages reads page-N.png files; N may be zero padded
func collectPages(dir string) ([]Image, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(matches))
	for _, path := range matches {
		num := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), "page-"), ".png")
		page, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		images = append(images, Image{Page: page, Data: data})
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	sort.Slice(images, func(i, j int) bool { return images[i].Page < images[j].Page })
	return images, nil
}
