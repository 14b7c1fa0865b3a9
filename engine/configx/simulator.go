package configx

// SimulationImpact summarizes the blast radius of moving from one spec to
// a candidate, so Applier can reject surprisingly large rollouts unless
// the caller forces them through.
type SimulationImpact struct {
	SourceOverridesChanged int
	Acceptable             bool
}

// maxAcceptableSourceOverrideDelta bounds how many source overrides a
// single non-forced apply may touch, the same way the teacher's simulator
// caps business-rule deltas per apply.
const maxAcceptableSourceOverrideDelta = 20

// Simulator estimates the impact of applying a candidate spec over a base
// spec before it is committed.
type Simulator struct{}

// NewSimulator builds a Simulator. Stateless.
func NewSimulator() *Simulator { return &Simulator{} }

// Simulate compares candidate against base and reports how many source
// overrides changed (added, removed, or modified).
func (s *Simulator) Simulate(base, candidate *ConfigSpec) *SimulationImpact {
	changed := countChangedOverrides(base, candidate)
	return &SimulationImpact{
		SourceOverridesChanged: changed,
		Acceptable:             changed <= maxAcceptableSourceOverrideDelta,
	}
}

func countChangedOverrides(base, candidate *ConfigSpec) int {
	baseOverrides := map[string]SourceOverride{}
	if base != nil && base.Sources != nil {
		for id, ov := range base.Sources.Overrides {
			if ov != nil {
				baseOverrides[id] = *ov
			}
		}
	}
	candOverrides := map[string]SourceOverride{}
	if candidate != nil && candidate.Sources != nil {
		for id, ov := range candidate.Sources.Overrides {
			if ov != nil {
				candOverrides[id] = *ov
			}
		}
	}

	changed := 0
	for id, cov := range candOverrides {
		bov, existed := baseOverrides[id]
		if !existed || !sourceOverrideEqual(bov, cov) {
			changed++
		}
	}
	for id := range baseOverrides {
		if _, stillPresent := candOverrides[id]; !stillPresent {
			changed++
		}
	}
	return changed
}

func sourceOverrideEqual(a, b SourceOverride) bool {
	if a.Sensitivity != b.Sensitivity || a.Threshold != b.Threshold || a.Disabled != b.Disabled {
		return false
	}
	if len(a.Tags) != len(b.Tags) {
		return false
	}
	for i := range a.Tags {
		if a.Tags[i] != b.Tags[i] {
			return false
		}
	}
	return true
}
