package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/agent/agenttest"
	"github.com/MimeLyc/slidesage/internal/deck"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/media"
	"github.com/MimeLyc/slidesage/internal/progress"
)

// fakeRasterizer renders one deterministic page per slide
type fakeRasterizer struct {
	pages int
	err   error
	calls atomic.Int32
}

func (r *fakeRasterizer) Rasterize(_ context.Context, _ string, dpi int) ([]media.Image, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	ret := make([]media.Image, 0, r.pages)
	for i := 1; i <= r.pages; i++ {
		ret = append(ret, media.Image{Page: i, Data: []byte(fmt.Sprintf("page-%d@%d", i, dpi))})
	}
	return ret, nil
}

// cancellingGenerator cancels the run on the n-th request of one role
type cancellingGenerator struct {
	*agenttest.Generator
	role   string
	n      int32
	cancel context.CancelFunc
	seen   atomic.Int32
}

func (g *cancellingGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if req.Role == g.role && g.seen.Add(1) == g.n {
		g.cancel()
		return nil, context.Canceled
	}
	return g.Generator.Generate(ctx, req)
}

type fixture struct {
	dir    string
	p      Presentation
	gen    *agenttest.Generator
	raster *fakeRasterizer
}

func newFixture(t *testing.T, slideNotes ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, "deck.json")
	pdf := filepath.Join(dir, "deck.pdf")

	f := &fixture{
		dir:    dir,
		p:      NewPresentation(manifest, pdf, ""),
		gen:    agenttest.New(),
		raster: &fakeRasterizer{pages: len(slideNotes)},
	}
	f.writeDeck(t, slideNotes...)
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0o644))
	return f
}

func (f *fixture) writeDeck(t *testing.T, slideNotes ...string) {
	t.Helper()
	d := deck.Deck{Title: "Quarterly review"}
	for i, n := range slideNotes {
		d.Slides = append(d.Slides, deck.Slide{Index: i + 1, Notes: n})
	}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.p.ManifestPath, data, 0o644))
}

func (f *fixture) agents(models agent.Models, gen agent.Generator) *agent.Agents {
	if models.Default == "" {
		models.Default = "m"
	}
	if gen == nil {
		gen = f.gen
	}
	return agent.New(gen, models, agent.WithRetryPolicy(agenttest.NoWait()))
}

// orchestrator builds a fresh orchestrator, as a new process would
func (f *fixture) orchestrator(opts ...Option) *Orchestrator {
	opts = append([]Option{WithRasterizer(f.raster)}, opts...)
	return NewOrchestrator(f.agents(agent.Models{}, nil), opts...)
}

func (f *fixture) ledger(t *testing.T, lang string) *progress.Ledger {
	t.Helper()
	l, err := progress.Load(progress.Path(f.dir, "deck", lang), false)
	require.NoError(t, err)
	return l
}

func (f *fixture) ledgerBytes(t *testing.T, lang string) []byte {
	t.Helper()
	data, err := os.ReadFile(progress.Path(f.dir, "deck", lang))
	require.NoError(t, err)
	return data
}

func (f *fixture) readOutput(t *testing.T, path string) *deck.Deck {
	t.Helper()
	d, err := deck.NewReader(path).Read()
	require.NoError(t, err)
	return d
}

func emptyNotes(n int) []string {
	return make([]string, n)
}
