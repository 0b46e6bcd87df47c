// Package plugin implements the Knowledge Algorithm (KA) registry: a
// hot-reloadable, name-addressed dispatch table for the pluggable
// reasoning units each stage invokes, plus the static stage-to-KA
// priority/fan-out mapping.
package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Result is the uniform output shape every KA runner must return,
// regardless of what it does internally.
type Result struct {
	Output     any     `json:"output"`
	Confidence float64 `json:"confidence"`
	Entropy    float64 `json:"entropy"`
	Trace      any     `json:"trace"`
}

// crashedResult is the canned failure response returned when a KA's
// runner panics (a missing KA gets notFoundResult instead) — callers
// always get a well-formed Result, never an error, so stage execution can
// proceed uninterrupted.
func crashedResult(name string, cause any) Result {
	return Result{
		Output:     nil,
		Confidence: 0,
		Entropy:    1,
		Trace:      fmt.Sprintf("%s crashed: %v", name, cause),
	}
}

func notFoundResult(name string) Result {
	return Result{
		Output:     nil,
		Confidence: 0,
		Entropy:    1,
		Trace:      fmt.Sprintf("KA %q not found or invalid", name),
	}
}

// Runner is a registered knowledge algorithm. sliceInput is the KA's
// input slice; context carries the broader session/stage context.
type Runner func(sliceInput map[string]any, context map[string]any) Result

// Meta describes a registered KA for discovery endpoints.
type Meta struct {
	Name        string `yaml:"name" toml:"name" json:"name"`
	Description string `yaml:"description" toml:"description" json:"description"`
	Version     string `yaml:"version" toml:"version" json:"version"`
	Author      string `yaml:"author" toml:"author" json:"author"`
}

type registration struct {
	meta   Meta
	runner Runner
}

// Registry discovers, hot-reloads and safely dispatches named KAs.
// Loading replaces the whole table atomically under lock, mirroring
// the reload-then-swap semantics of a manifest-driven plugin loader;
// Call never lets a panicking or missing runner escape to the caller.
type Registry struct {
	mu   sync.RWMutex
	algo map[string]registration
	log  *slog.Logger
}

// NewRegistry returns an empty registry. Call Load or Register to
// populate it before dispatching.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		algo: make(map[string]registration),
		log:  log,
	}
}

// Register adds or replaces a single KA. Used both by manifest loading
// and by tests/builtins that register Go-native runners directly.
func (r *Registry) Register(meta Meta, runner Runner) error {
	if meta.Name == "" {
		return fmt.Errorf("plugin: registration requires a non-empty name")
	}
	if runner == nil {
		return fmt.Errorf("plugin: registration of %q requires a non-nil runner", meta.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.algo[meta.Name] = registration{meta: meta, runner: runner}
	return nil
}

// ReplaceAll atomically swaps the entire table, used by manifest reload
// so in-flight Call() invocations never see a half-populated registry.
func (r *Registry) ReplaceAll(entries map[string]Meta, runners map[string]Runner) {
	next := make(map[string]registration, len(entries))
	for name, meta := range entries {
		runner, ok := runners[name]
		if !ok {
			continue
		}
		next[name] = registration{meta: meta, runner: runner}
	}
	r.mu.Lock()
	r.algo = next
	r.mu.Unlock()
	r.log.Info("plugin registry reloaded", "count", len(next))
}

// Names lists all registered KA names, sorted for stable output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.algo))
	for name := range r.algo {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetMeta returns metadata for name, or the zero Meta if unregistered.
func (r *Registry) GetMeta(name string) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.algo[name]
	return reg.meta, ok
}

// Call runs the named KA against sliceInput/context. It never panics or
// returns an error: a missing KA or a runner panic both degrade to a
// canned failure Result so stage execution can proceed and the caller
// can branch on Confidence/Entropy alone.
func (r *Registry) Call(name string, sliceInput, context map[string]any) (result Result) {
	r.mu.RLock()
	reg, ok := r.algo[name]
	r.mu.RUnlock()

	if !ok || reg.runner == nil {
		r.log.Warn("plugin call: not found", "ka", name)
		return notFoundResult(name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("plugin call: panic recovered", "ka", name, "panic", rec)
			result = crashedResult(name, rec)
		}
	}()

	result = reg.runner(sliceInput, context)
	if result.Trace == nil {
		result.Trace = ""
	}
	return result
}
