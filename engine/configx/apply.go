package configx

import "fmt"

// Applier commits candidate ConfigSpecs to a VersionedStore, gating each
// commit behind a simulated-impact check unless the caller forces it
// through.
type Applier struct {
	store     *VersionedStore
	simulator *Simulator
}

// NewApplier builds an Applier over store, using sim to estimate impact
// before each non-forced commit.
func NewApplier(store *VersionedStore, sim *Simulator) *Applier {
	return &Applier{store: store, simulator: sim}
}

// Apply simulates candidate against base and, if acceptable (or forced),
// commits it as a new version. DryRun simulates without committing.
func (a *Applier) Apply(base, candidate *ConfigSpec, opts ApplyOptions) (ApplyResult, error) {
	impact := a.simulator.Simulate(base, candidate)
	if !impact.Acceptable && !opts.Force {
		return ApplyResult{}, fmt.Errorf("configx: candidate changes %d source overrides, exceeds acceptable delta", impact.SourceOverridesChanged)
	}
	if opts.DryRun {
		return ApplyResult{Version: 0, SimImpact: impact}, nil
	}

	var parent int64
	if head, ok := a.store.Head(); ok {
		parent = head.Version
	}
	committed := a.store.commit(candidate, opts.Actor, parent)
	return ApplyResult{Version: committed.Version, SimImpact: impact}, nil
}

// Rollback commits the spec from an earlier version as a brand-new
// version (never rewrites history), returning the new version number.
func (a *Applier) Rollback(toVersion int64, actor string) (ApplyResult, error) {
	target, ok := a.store.Get(toVersion)
	if !ok {
		return ApplyResult{}, fmt.Errorf("configx: no such version %d", toVersion)
	}
	head, _ := a.store.Head()
	committed := a.store.commit(target.Spec, actor, head.Version)
	return ApplyResult{Version: committed.Version}, nil
}
