package stage

import (
	"fmt"
	"time"

	"github.com/codeready-toolchain/reasonctl/pkg/coordinate"
	"github.com/codeready-toolchain/reasonctl/pkg/plugin"
)

// stageCoordinate builds the coordinate a stage writes its output under:
// one pillar per stage number, sectored by session so concurrent sessions
// never collide, timestamped so repeated runs within a session still
// version forward rather than colliding on identical coordinates.
func stageCoordinate(stageNumber int, sessionID, persona string) coordinate.Coordinate {
	return coordinate.Coordinate{
		Pillar:   fmt.Sprintf("PL%d", stageNumber),
		Sector:   sessionID,
		Node:     "stage-output",
		Location: persona,
		Temporal: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func stringOf(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func personaOf(state map[string]any) string {
	return stringOf(state, "persona")
}

func sessionIDOf(state map[string]any) string {
	return stringOf(state, "session_id")
}

// bestKAResult fans a stage's mapped KAs out in priority order and returns
// the first result with nonzero confidence, per the "priority order: try
// highest priority first, accept first success" policy in spec.md §4.2.
// If every mapped KA fails (or none are mapped/registered), it returns the
// last attempted result — or a zero Result if there was none — so a stage
// always has something to fall back to.
func bestKAResult(ka *plugin.Registry, stageNumber int, sliceInput, ctx map[string]any) plugin.Result {
	if ka == nil {
		return plugin.Result{}
	}
	names := plugin.KAsForStage(stageNumber, 0)
	var last plugin.Result
	for _, name := range names {
		last = ka.Call(name, sliceInput, ctx)
		if last.Confidence > 0 {
			return last
		}
	}
	return last
}
