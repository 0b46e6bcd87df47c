package plugin

import "fmt"

// Builtins returns the Go-native runners manifests can reference by name
// via their "builtin" field. These stand in for the reference KAs the
// original plugin directory shipped (sample_ka, query_analyzer_ka, ...):
// simple, deterministic, rule-based implementations that exercise the
// registry/dispatch machinery without depending on an LLM.
func Builtins() map[string]Runner {
	return map[string]Runner{
		"echo":          echoKA,
		"query_analyze": queryAnalyzeKA,
		"gatekeeper":    gatekeeperKA,
	}
}

func echoKA(sliceInput, _ map[string]any) Result {
	query, _ := sliceInput["query"].(string)
	return Result{
		Output:     map[string]any{"echo": query},
		Confidence: 0.75,
		Entropy:    0.05,
		Trace:      "echo KA reflected the input slice unchanged",
	}
}

func queryAnalyzeKA(sliceInput, _ map[string]any) Result {
	query, _ := sliceInput["query"].(string)
	wordCount := 0
	inWord := false
	for _, r := range query {
		isSpace := r == ' ' || r == '\t' || r == '\n'
		if !isSpace && !inWord {
			wordCount++
		}
		inWord = !isSpace
	}
	confidence := 0.6
	if wordCount > 3 {
		confidence = 0.85
	}
	return Result{
		Output:     map[string]any{"word_count": wordCount},
		Confidence: confidence,
		Entropy:    0.1,
		Trace:      fmt.Sprintf("analyzed query of %d word(s)", wordCount),
	}
}

// gatekeeperKA models a minimal safety-gate KA: it never raises
// confidence above 0.9, forcing the compliance layer rather than a
// single KA to be the source of a stage's final green light.
func gatekeeperKA(sliceInput, context map[string]any) Result {
	stage, _ := context["stage"].(int)
	return Result{
		Output:     map[string]any{"gate": "checked", "stage": stage},
		Confidence: 0.9,
		Entropy:    0.15,
		Trace:      "gatekeeper KA performed a baseline safety pass",
	}
}
