package visual

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/agent/agenttest"
	"github.com/MimeLyc/slidesage/internal/llm"
)

func newAgents(gen *agenttest.Generator, models agent.Models) *agent.Agents {
	return agent.New(gen, models, agent.WithRetryPolicy(agenttest.NoWait()), agent.WithVisualStyle("Flat pastel"))
}

func slides(n int) []Slide {
	ret := make([]Slide, 0, n)
	for i := 1; i <= n; i++ {
		ret = append(ret, Slide{
			Index: i,
			Image: llm.NewImage(ArtifactName(i), "image/png", []byte{byte(i)}),
			Notes: "notes",
		})
	}
	return ret
}

func TestPipeline_GeneratesWithPreviousReference(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	dir := filepath.Join(t.TempDir(), "deck_en_visuals")
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m"}))

	results, err := p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: dir, Slides: slides(2)})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		assert.Equal(t, BranchGenerated, res.Branch)
		data, err := os.ReadFile(res.Path)
		require.NoError(t, err)
		assert.Equal(t, agenttest.PNG, data)
	}

	reqs := gen.Requests("designer")
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[0].Images, 1)
	assert.Len(t, reqs[1].Images, 2)
	assert.Contains(t, reqs[1].Prompt, "style reference")
	assert.Contains(t, reqs[1].Prompt, "Flat pastel")
}

func TestPipeline_SkipsExistingUnlessRetryMode(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ArtifactName(1)), []byte("existing"), 0o644))

	gen := agenttest.New()
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m"}))

	results, err := p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: dir, Slides: slides(2)})
	require.NoError(t, err)
	assert.Equal(t, BranchSkipped, results[0].Branch)
	assert.Equal(t, BranchGenerated, results[1].Branch)

	reqs := gen.Requests("designer")
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Images, 2)
	assert.Equal(t, []byte("existing"), reqs[0].Images[1].Content)

	gen.Reset()
	results, err = p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: dir, Slides: slides(2), RetryMode: true})
	require.NoError(t, err)
	assert.Equal(t, BranchGenerated, results[0].Branch)
	assert.Equal(t, 2, gen.Calls("designer"))
}

func TestPipeline_TranslatesBaselineVisual(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	baseDir := filepath.Join(tmp, "deck_en_visuals")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, ArtifactName(1)), []byte("baseline"), 0o644))

	gen := agenttest.New()
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m"}))

	results, err := p.Run(context.Background(), Request{
		Language:    "fr",
		Baseline:    "en",
		Dir:         filepath.Join(tmp, "deck_fr_visuals"),
		BaselineDir: baseDir,
		Slides:      slides(2),
	})
	require.NoError(t, err)
	assert.Equal(t, BranchTranslated, results[0].Branch)
	assert.Equal(t, BranchGenerated, results[1].Branch)

	assert.Equal(t, 1, gen.Calls("image_translator"))
	reqs := gen.Requests("designer")
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Prompt, "Titre: Résultats trimestriels")
	assert.Equal(t, []byte("baseline"), reqs[0].Images[0].Content)
}

func TestPipeline_TranslationFailureFallsThroughToGenerate(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	baseDir := filepath.Join(tmp, "base")
	require.NoError(t, os.MkdirAll(baseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, ArtifactName(1)), []byte("baseline"), 0o644))

	gen := agenttest.New().Default("image_translator", agenttest.Reply{Err: agenttest.ErrTransient})
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m"}))

	results, err := p.Run(context.Background(), Request{
		Language:    "fr",
		Baseline:    "en",
		Dir:         filepath.Join(tmp, "fr"),
		BaselineDir: baseDir,
		Slides:      slides(1),
	})
	require.NoError(t, err)
	assert.Equal(t, BranchGenerated, results[0].Branch)
	assert.Equal(t, 3, gen.Calls("image_translator"))
	assert.Equal(t, []byte{1}, gen.Requests("designer")[0].Images[0].Content)
}

func TestPipeline_FallbackDesigner(t *testing.T) {
	t.Parallel()

	gen := agenttest.New().Default("designer", agenttest.Reply{Err: agenttest.ErrTransient})
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m", FallbackDesigner: "backup"}))

	results, err := p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: t.TempDir(), Slides: slides(1)})
	require.NoError(t, err)
	assert.Equal(t, BranchFallback, results[0].Branch)
	assert.True(t, results[0].Present())
	assert.Equal(t, 3, gen.Calls("designer"))
	require.Equal(t, 1, gen.Calls("fallback_designer"))
	assert.Equal(t, "backup", gen.Requests("fallback_designer")[0].Model)
}

func TestPipeline_BothDesignersFailingMarksAbsent(t *testing.T) {
	t.Parallel()

	gen := agenttest.New().On("designer",
		agenttest.Reply{Err: agenttest.ErrTransient},
		agenttest.Reply{Err: agenttest.ErrTransient},
		agenttest.Reply{Err: agenttest.ErrTransient},
	)
	dir := t.TempDir()
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m"}))

	results, err := p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: dir, Slides: slides(2)})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, BranchAbsent, results[0].Branch)
	assert.False(t, results[0].Present())
	assert.ErrorIs(t, results[0].Err, agent.ErrNoFallbackModel)
	assert.NoFileExists(t, filepath.Join(dir, ArtifactName(1)))

	assert.Equal(t, BranchGenerated, results[1].Branch)
	assert.Len(t, gen.Requests("designer")[3].Images, 1)
}

func TestPipeline_ForcedFallback(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	p := NewPipeline(newAgents(gen, agent.Models{Default: "m", FallbackDesigner: "backup"}), WithForcedFallback(true))

	results, err := p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: t.TempDir(), Slides: slides(1)})
	require.NoError(t, err)
	assert.Equal(t, BranchFallback, results[0].Branch)
	assert.Equal(t, 0, gen.Calls("designer"))

	gen = agenttest.New()
	p = NewPipeline(newAgents(gen, agent.Models{Default: "m"}), WithForcedFallback(true))
	results, err = p.Run(context.Background(), Request{Language: "en", Baseline: "en", Dir: t.TempDir(), Slides: slides(1)})
	require.NoError(t, err)
	assert.Equal(t, BranchGenerated, results[0].Branch)
}

func TestPipeline_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := agenttest.New()
	results, err := NewPipeline(newAgents(gen, agent.Models{Default: "m"})).
		Run(ctx, Request{Language: "en", Baseline: "en", Dir: t.TempDir(), Slides: slides(2)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Equal(t, 0, gen.Total())
}
