// Package agenttest provides a scripted Generator for tests.
package agenttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MimeLyc/slidesage/internal/llm"
	"github.com/MimeLyc/slidesage/pkg/retry"
)

// PNG is the payload returned for image requests without a scripted reply
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// ErrTransient is a convenience transient failure
var ErrTransient = errors.New("transient failure")

// Reply is one scripted response
type Reply struct {
	Text  string
	Media []byte
	Err   error
}

// Generator returns queued replies per role, then the role default.
// Safe for concurrent use.
type Generator struct {
	mu       sync.Mutex
	queued   map[string][]Reply
	defaults map[string]Reply
	requests []llm.Request
}

func New() *Generator {
	return &Generator{
		queued: make(map[string][]Reply),
		defaults: map[string]Reply{
			"auditor":           {Text: `{"status": "USELESS", "reason": "empty"}`},
			"analyst":           {Text: "TOPIC: test\nDETAILS: numbers\nVISUALS: Text only\nINTENT: inform"},
			"writer":            {Text: "Here is what this slide shows about our quarterly results."},
			"overviewer":        {Text: "The deck walks from the problem to the proposed solution, with a confident and friendly persona."},
			"translator":        {Text: "Voici la traduction des notes pour cette diapositive, avec tous les détails importants."},
			"image_translator":  {Text: "Titre: Résultats trimestriels"},
			"designer":          {Media: PNG},
			"fallback_designer": {Media: PNG},
			"video":             {Text: "Slow dolly shot across a glowing chart."},
		},
	}
}

// On queues replies for a role, consumed in order
func (g *Generator) On(role string, replies ...Reply) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued[role] = append(g.queued[role], replies...)
	return g
}

// Default replaces the reply used once a role's queue is empty
func (g *Generator) Default(role string, reply Reply) *Generator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.defaults[role] = reply
	return g
}

func (g *Generator) Generate(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	reply, ok := g.defaults[req.Role]
	if q := g.queued[req.Role]; len(q) > 0 {
		reply, ok = q[0], true
		g.queued[req.Role] = q[1:]
	}
	g.mu.Unlock()

	if !ok {
		return nil, retry.Permanent(errors.New("no reply scripted for role " + req.Role))
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	ret := &llm.Result{Text: reply.Text, Model: req.Model}
	if req.Output == llm.OutputImage {
		ret.Media = reply.Media
		ret.MediaType = "image/png"
	}
	return ret, nil
}

// Calls counts requests made by a role
func (g *Generator) Calls(role string) int {
	return len(g.Requests(role))
}

// Total counts every request
func (g *Generator) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// Requests returns the requests made by a role, in order
func (g *Generator) Requests(role string) []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ret []llm.Request
	for _, req := range g.requests {
		if req.Role == role {
			ret = append(ret, req)
		}
	}
	return ret
}

// Reset forgets recorded requests, keeping scripted replies
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = nil
}

// NoWait is the default retry policy without delays
func NoWait() retry.Policy {
	p := retry.DefaultPolicy()
	p.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return p
}
