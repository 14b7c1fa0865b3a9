package configx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDryRunDoesNotCommit(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	candidate := &ConfigSpec{Global: &GlobalSection{MaxConcurrency: 5}}

	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester", DryRun: true})
	require.NoError(t, err)
	require.Equal(t, int64(0), res.Version)

	_, ok := store.Head()
	require.False(t, ok, "store must remain empty after a dry run")
}

func TestApplyCommitsNewVersion(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	candidate := &ConfigSpec{Global: &GlobalSection{MaxConcurrency: 5}}

	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester"})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Version)
	require.True(t, res.SimImpact.Acceptable)
}

func TestApplyRejectsLargeOverrideDeltaUnlessForced(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	overrides := map[string]*SourceOverride{}
	for i := 0; i < 25; i++ {
		overrides[fmt.Sprintf("svc-%d", i)] = &SourceOverride{Threshold: 1}
	}
	candidate := &ConfigSpec{Sources: &SourcesSection{Overrides: overrides}}

	_, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester"})
	require.Error(t, err)

	res, err := applier.Apply(nil, candidate, ApplyOptions{Actor: "tester", Force: true})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Version)
}

func TestRollbackCommitsNewVersionFromOldSpec(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	first := &ConfigSpec{Global: &GlobalSection{MaxConcurrency: 1}}
	second := &ConfigSpec{Global: &GlobalSection{MaxConcurrency: 2}}

	_, err := applier.Apply(nil, first, ApplyOptions{Actor: "a"})
	require.NoError(t, err)
	_, err = applier.Apply(first, second, ApplyOptions{Actor: "b"})
	require.NoError(t, err)

	res, err := applier.Rollback(1, "rollback-actor")
	require.NoError(t, err)
	require.Equal(t, int64(3), res.Version)

	head, ok := store.Head()
	require.True(t, ok)
	require.Equal(t, 1, head.Spec.Global.MaxConcurrency)
}

func TestRollbackUnknownVersionErrors(t *testing.T) {
	store := NewVersionedStore()
	applier := NewApplier(store, NewSimulator())
	_, err := applier.Rollback(42, "tester")
	require.Error(t, err)
}
