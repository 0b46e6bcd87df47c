// Package llmprovider defines the black-box LLM boundary stages may use.
// Content/reasoning semantics are explicitly out of scope per spec.md §1 —
// this package only fixes the call shape and ships a deterministic
// fallback so the pipeline never blocks on LLM availability.
package llmprovider

import (
	"context"
	"fmt"
	"strings"
)

// Request is a single-shot generation request. It deliberately mirrors
// tarsy's agent.GenerateInput shape (session/messages/config) without the
// streaming-chunk machinery tarsy needs for its gRPC transport — stages
// here only need one synchronous answer per call.
type Request struct {
	SessionID string
	Prompt    string
	Context   map[string]any
}

// Response is a provider's answer to a Request.
type Response struct {
	Text       string
	Confidence float64
	Provider   string
}

// Provider is the interface stages call through. Generate must not block
// indefinitely — callers are expected to bound it with ctx.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// FallbackProvider is a deterministic, dependency-free stand-in used when
// no real LLM backend is configured (spec.md open question #3: stage 1
// degrades to a rule-based analyzer rather than blocking startup on LLM
// availability). It never errors.
type FallbackProvider struct{}

// NewFallback returns a FallbackProvider.
func NewFallback() *FallbackProvider { return &FallbackProvider{} }

func (FallbackProvider) Name() string { return "fallback" }

func (FallbackProvider) Generate(_ context.Context, req Request) (Response, error) {
	words := strings.Fields(req.Prompt)
	confidence := 0.6
	if len(words) > 6 {
		confidence = 0.75
	}
	return Response{
		Text:       fmt.Sprintf("acknowledged: %s", req.Prompt),
		Confidence: confidence,
		Provider:   "fallback",
	}, nil
}
