package notes

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/agent/agenttest"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/progress"
)

func newContextCache(gen *agenttest.Generator) *ContextCache {
	return NewContextCache(agent.New(gen, agent.Models{Default: "m"}, agent.WithRetryPolicy(agenttest.NoWait())))
}

func deckImages() []llm.File {
	return []llm.File{
		llm.NewImage("1.png", "", []byte("one")),
		llm.NewImage("2.png", "", []byte("two")),
	}
}

var longContext = strings.Repeat("Narrative arc and vocabulary. ", 4)

func TestContextCache_GeneratesOnceForBaseline(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	cache := newContextCache(gen)
	images := deckImages()
	req := ContextRequest{
		Presentation:    "deck",
		Language:        "en",
		Baseline:        "en",
		DeckFingerprint: DeckFingerprint(images),
		Images:          images,
		Ledger:          progress.New(false),
	}

	first, err := cache.Get(context.Background(), req)
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.Calls("overviewer"))
	assert.Len(t, gen.Requests("overviewer")[0].Images, 2)
}

func TestContextCache_UsesLedgerValue(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	images := deckImages()
	fp := DeckFingerprint(images)
	ledger := progress.New(false)
	ledger.SetGlobalContext(progress.GlobalContext{Text: longContext, Fingerprint: fp})

	got, err := newContextCache(gen).Get(context.Background(), ContextRequest{
		Presentation: "deck", Language: "en", Baseline: "en", DeckFingerprint: fp, Images: images, Ledger: ledger,
	})
	require.NoError(t, err)
	assert.Equal(t, longContext, got)
	assert.Equal(t, 0, gen.Total())
}

func TestContextCache_StaleOrShortLedgerValueIsIgnored(t *testing.T) {
	t.Parallel()

	images := deckImages()
	fp := DeckFingerprint(images)

	tests := []struct {
		name string
		gc   progress.GlobalContext
	}{
		{name: "other deck", gc: progress.GlobalContext{Text: longContext, Fingerprint: "0000000000000000"}},
		{name: "too short", gc: progress.GlobalContext{Text: "short", Fingerprint: fp}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := agenttest.New()
			ledger := progress.New(false)
			ledger.SetGlobalContext(tt.gc)

			_, err := newContextCache(gen).Get(context.Background(), ContextRequest{
				Presentation: "deck", Language: "en", Baseline: "en", DeckFingerprint: fp, Images: images, Ledger: ledger,
			})
			require.NoError(t, err)
			assert.Equal(t, 1, gen.Calls("overviewer"))
		})
	}
}

func TestContextCache_TranslatesBaselineContext(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	images := deckImages()
	fp := DeckFingerprint(images)
	baseline := progress.New(false)
	baseline.SetGlobalContext(progress.GlobalContext{Text: longContext, Fingerprint: fp})

	got, err := newContextCache(gen).Get(context.Background(), ContextRequest{
		Presentation: "deck", Language: "fr", Baseline: "en", DeckFingerprint: fp, Images: images,
		Ledger: progress.New(false), BaselineLedger: baseline,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, 1, gen.Calls("translator"))
	assert.Equal(t, 0, gen.Calls("overviewer"))
}

func TestContextCache_TranslationFailureGeneratesFresh(t *testing.T) {
	t.Parallel()

	gen := agenttest.New().Default("translator", agenttest.Reply{Err: agenttest.ErrTransient})
	images := deckImages()
	fp := DeckFingerprint(images)
	baseline := progress.New(false)
	baseline.SetGlobalContext(progress.GlobalContext{Text: longContext, Fingerprint: fp})

	_, err := newContextCache(gen).Get(context.Background(), ContextRequest{
		Presentation: "deck", Language: "fr", Baseline: "en", DeckFingerprint: fp, Images: images,
		Ledger: progress.New(false), BaselineLedger: baseline,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Calls("overviewer"))
	assert.Contains(t, gen.Requests("overviewer")[0].Prompt, "French")
}

func TestContextCache_NoBaselineGeneratesInTargetLanguage(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	images := deckImages()

	_, err := newContextCache(gen).Get(context.Background(), ContextRequest{
		Presentation: "deck", Language: "ja", Baseline: "en", DeckFingerprint: DeckFingerprint(images), Images: images,
		Ledger: progress.New(false),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, gen.Calls("translator"))
	assert.Contains(t, gen.Requests("overviewer")[0].Prompt, "Japanese")
}

func TestContextCache_ConcurrentCallersShareResult(t *testing.T) {
	t.Parallel()

	gen := agenttest.New()
	cache := newContextCache(gen)
	images := deckImages()
	req := ContextRequest{
		Presentation: "deck", Language: "en", Baseline: "en", DeckFingerprint: DeckFingerprint(images), Images: images,
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Get(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.LessOrEqual(t, gen.Calls("overviewer"), 8)
	assert.GreaterOrEqual(t, gen.Calls("overviewer"), 1)
}

func TestContextCache_FailureReturnsError(t *testing.T) {
	t.Parallel()

	gen := agenttest.New().Default("overviewer", agenttest.Reply{Err: agenttest.ErrTransient})
	images := deckImages()

	_, err := newContextCache(gen).Get(context.Background(), ContextRequest{
		Presentation: "deck", Language: "en", Baseline: "en", DeckFingerprint: DeckFingerprint(images), Images: images,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, agenttest.ErrTransient)
}

func TestDeckFingerprint(t *testing.T) {
	t.Parallel()

	a := DeckFingerprint(deckImages())
	assert.Len(t, a, 16)
	assert.Equal(t, a, DeckFingerprint(deckImages()))
	assert.NotEqual(t, a, DeckFingerprint(deckImages()[:1]))
}
