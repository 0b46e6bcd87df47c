package plugin

import "sort"

// StageMapping is the static table of which KAs a stage may invoke, their
// relative priority (higher runs first) and the default per-KA timeout,
// carried over from the original layer-to-KA mapping so the pluggable
// pieces of each stage have a concrete home even though stage content
// itself is domain-agnostic.
var StageMapping = map[int][]string{
	1:  {"query_analyzer_ka", "sample_ka"},
	2:  {"memory_retrieval_ka", "context_builder_ka", "sample_ka"},
	3:  {"advanced_reasoning_ka", "agent_coordinator_ka", "research_ka", "sample_ka"},
	4:  {"pov_triangulation_ka", "scenario_simulation_ka", "stakeholder_analysis_ka", "advanced_reasoning_ka"},
	5:  {"gatekeeper_ka", "consensus_builder_ka", "conflict_resolution_ka", "escalation_manager_ka"},
	6:  {"neural_simulation_ka", "pattern_recognition_ka", "emergent_behavior_ka"},
	7:  {"recursive_reasoning_ka", "meta_cognitive_ka", "abstraction_engine_ka"},
	8:  {"quantum_superposition_ka", "parallel_universe_ka", "temporal_analysis_ka", "dimensional_bridge_ka"},
	9:  {"reality_synthesis_ka", "consciousness_model_ka", "identity_fusion_ka", "existential_validator_ka"},
	10: {"containment_protocol_ka", "emergence_detector_ka", "safety_override_ka", "termination_sequence_ka"},
}

// KAPriority ranks KAs within a stage; higher runs first when a stage
// fans out to more than one KA and must pick which result to prefer.
var KAPriority = map[string]int{
	"query_analyzer_ka":        10,
	"sample_ka":                1,
	"memory_retrieval_ka":      10,
	"context_builder_ka":       8,
	"advanced_reasoning_ka":    15,
	"agent_coordinator_ka":     12,
	"research_ka":              10,
	"pov_triangulation_ka":     12,
	"scenario_simulation_ka":   10,
	"stakeholder_analysis_ka":  8,
	"gatekeeper_ka":            20,
	"consensus_builder_ka":     15,
	"conflict_resolution_ka":   12,
	"escalation_manager_ka":    10,
	"neural_simulation_ka":     15,
	"pattern_recognition_ka":   12,
	"emergent_behavior_ka":     10,
	"recursive_reasoning_ka":   15,
	"meta_cognitive_ka":        12,
	"abstraction_engine_ka":    10,
	"quantum_superposition_ka": 15,
	"parallel_universe_ka":     12,
	"temporal_analysis_ka":     10,
	"dimensional_bridge_ka":    8,
	"reality_synthesis_ka":     20,
	"consciousness_model_ka":   15,
	"identity_fusion_ka":       12,
	"existential_validator_ka": 10,
	"containment_protocol_ka":  25,
	"emergence_detector_ka":    20,
	"safety_override_ka":       22,
	"termination_sequence_ka":  18,
}

// KAsForStage returns the KAs registered for stage, highest priority
// first. limit <= 0 means "no limit" (fan-out to every mapped KA).
func KAsForStage(stage, limit int) []string {
	names := append([]string{}, StageMapping[stage]...)
	sort.SliceStable(names, func(i, j int) bool {
		return KAPriority[names[i]] > KAPriority[names[j]]
	})
	if limit > 0 && limit < len(names) {
		names = names[:limit]
	}
	return names
}
