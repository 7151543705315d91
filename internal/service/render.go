package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/media"
)

// renderCache shares rasterized pages between phases and languages of a run
type renderCache struct {
	rasterizer media.Rasterizer
	group      singleflight.Group

	mu    sync.Mutex
	pages map[string][]media.Image
}

func newRenderCache(r media.Rasterizer) *renderCache {
	return &renderCache{rasterizer: r, pages: make(map[string][]media.Image)}
}

func (c *renderCache) render(ctx context.Context, pdfPath string, dpi int) ([]media.Image, error) {
	key := fmt.Sprintf("%s|%d", pdfPath, dpi)
	if info, err := os.Stat(pdfPath); err == nil {
		key = fmt.Sprintf("%s|%d|%d", key, info.Size(), info.ModTime().UnixNano())
	}

	c.mu.Lock()
	pages, ok := c.pages[key]
	c.mu.Unlock()
	if ok {
		return pages, nil
	}

	ret, err, _ := c.group.Do(key, func() (any, error) {
		pages, err := c.rasterizer.Rasterize(ctx, pdfPath, dpi)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.pages[key] = pages
		c.mu.Unlock()
		return pages, nil
	})
	if err != nil {
		return nil, err
	}
	return ret.([]media.Image), nil
}

// forget drops every rendering of pdfPath
func (c *renderCache) forget(pdfPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.pages {
		if strings.HasPrefix(key, pdfPath+"|") {
			delete(c.pages, key)
		}
	}
}

func slideImages(pages []media.Image) []llm.File {
	ret := make([]llm.File, 0, len(pages))
	for _, p := range pages {
		ret = append(ret, llm.NewImage(fmt.Sprintf("slide_%d.png", p.Page), "image/png", p.Data))
	}
	return ret
}
