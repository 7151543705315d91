package media

import "context"

const (
	// SlideDPI renders slides for per-slide analysis and redesign
	SlideDPI = 150
	// OverviewDPI renders the whole deck for the global context request
	OverviewDPI = 75
)

// Image is one rendered PDF page as PNG bytes.
// Page is 1-based.
type Image struct {
	Page int
	Data []byte
}

// Rasterizer renders every page of a PDF at the given resolution
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, dpi int) ([]Image, error)
}

func NewRasterizer() Rasterizer {
	return NewPdftoppm()
}
