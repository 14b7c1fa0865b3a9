// Package configx resolves a base EngineConfig against a small number of
// override layers, generalizing the teacher's configx layered-precedence
// model (global -> environment -> domain -> site -> ephemeral) to detector
// overrides instead of per-domain crawl rules.
package configx

// Layer precedence, lowest to highest priority.
const (
	LayerGlobal = iota
	LayerEnvironment
	LayerDetector
	LayerSource
	LayerEphemeral
)

var layerNames = map[int]string{
	LayerGlobal:      "global",
	LayerEnvironment: "environment",
	LayerDetector:    "detector",
	LayerSource:      "source",
	LayerEphemeral:   "ephemeral",
}

// LayerName returns the human-readable name for a layer constant.
func LayerName(layer int) string {
	if name, ok := layerNames[layer]; ok {
		return name
	}
	return "unknown"
}

// PrecedenceOrder returns layers in merge order, lowest to highest priority.
func PrecedenceOrder() []int {
	return []int{LayerGlobal, LayerEnvironment, LayerDetector, LayerSource, LayerEphemeral}
}
