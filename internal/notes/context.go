package notes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/slidesage/internal/agent"
	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/internal/progress"
	"github.com/MimeLyc/slidesage/pkg/log"
)

// MinContextLength is the shortest cached context considered usable
const MinContextLength = 50

// ContextAgents are the roles the context cache calls
type ContextAgents interface {
	Overview(ctx context.Context, req agent.OverviewRequest) (string, error)
	Translate(ctx context.Context, req agent.TranslateRequest) (string, error)
}

// ContextRequest identifies the global context of one deck in one language.
//
// Ledger is the ledger of Language; BaselineLedger is read for translation only.
type ContextRequest struct {
	Presentation    string
	Language        string
	Baseline        string
	DeckFingerprint string
	Images          []llm.File
	Ledger          *progress.Ledger
	BaselineLedger  *progress.Ledger
}

// ContextCache returns one global context per deck and language.
// Concurrent requests for the same context share one generation.
type ContextCache struct {
	agents ContextAgents
	group  singleflight.Group

	mu   sync.RWMutex
	memo map[string]string
}

func NewContextCache(agents ContextAgents) *ContextCache {
	return &ContextCache{
		agents: agents,
		memo:   make(map[string]string),
	}
}

// Get returns the cached context, or translates the baseline context, or generates it from the slide images.
// The caller stores the returned value in the ledger.
func (c *ContextCache) Get(ctx context.Context, req ContextRequest) (string, error) {
	if cached, ok := c.cached(req.Presentation, req.Language, req.DeckFingerprint, req.Ledger); ok {
		return cached, nil
	}

	key := memoKey(req.Presentation, req.Language, req.DeckFingerprint)
	ret, err, shared := c.group.Do(key, func() (any, error) {
		text, err := c.build(ctx, req)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.memo[key] = text
		c.mu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		log.Debug("Global context for %s [%s] shared with a concurrent caller", req.Presentation, req.Language)
	}
	return ret.(string), nil
}

func (c *ContextCache) build(ctx context.Context, req ContextRequest) (string, error) {
	if req.Language != req.Baseline {
		if source, ok := c.cached(req.Presentation, req.Baseline, req.DeckFingerprint, req.BaselineLedger); ok {
			log.Info("Translating global context from %s to %s", req.Baseline, req.Language)
			text, err := c.agents.Translate(ctx, agent.TranslateRequest{
				Text:           source,
				SourceLanguage: req.Baseline,
				TargetLanguage: req.Language,
			})
			if err == nil {
				return text, nil
			}
			log.Warn("Global context translation to %s failed, generating from slides: %v", req.Language, err)
		}
	}

	if len(req.Images) == 0 {
		return "", fmt.Errorf("no slide images to build a global context from")
	}
	log.Info("Generating global context for %s [%s] from %d slides", req.Presentation, req.Language, len(req.Images))
	text, err := c.agents.Overview(ctx, agent.OverviewRequest{Images: req.Images, Language: req.Language})
	if err != nil {
		return "", fmt.Errorf("global context generation failed: %w", err)
	}
	return text, nil
}

// cached looks in memory first, then in the ledger
func (c *ContextCache) cached(presentation, language, fingerprint string, ledger *progress.Ledger) (string, bool) {
	c.mu.RLock()
	text, ok := c.memo[memoKey(presentation, language, fingerprint)]
	c.mu.RUnlock()
	if ok && usableContext(text) {
		return text, true
	}

	if ledger == nil {
		return "", false
	}
	gc, ok := ledger.GlobalContext()
	if !ok || gc.Fingerprint != fingerprint || !usableContext(gc.Text) {
		return "", false
	}
	return gc.Text, true
}

func usableContext(text string) bool {
	return len(strings.TrimSpace(text)) >= MinContextLength
}

func memoKey(presentation, language, fingerprint string) string {
	return presentation + "|" + language + "|" + fingerprint
}

// DeckFingerprint identifies a deck by the bytes of its rendered slides
func DeckFingerprint(images []llm.File) string {
	h := sha256.New()
	for _, img := range images {
		h.Write(img.Content)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
