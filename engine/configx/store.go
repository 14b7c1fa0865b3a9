package configx

import (
	"sync"
	"time"
)

// VersionedStore keeps an append-only history of committed ConfigSpec
// versions, so a bad rollout can be rolled back to any prior version.
type VersionedStore struct {
	mu       sync.Mutex
	versions []VersionedConfig
}

// NewVersionedStore builds an empty store.
func NewVersionedStore() *VersionedStore {
	return &VersionedStore{}
}

// Head returns the most recently committed version, if any.
func (s *VersionedStore) Head() (VersionedConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions) == 0 {
		return VersionedConfig{}, false
	}
	return s.versions[len(s.versions)-1], true
}

// Get returns the version with the given number, if committed.
func (s *VersionedStore) Get(version int64) (VersionedConfig, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.Version == version {
			return v, true
		}
	}
	return VersionedConfig{}, false
}

// commit appends a new version and returns it. Not exported: only Applier
// calls this, so every commit goes through simulation first.
func (s *VersionedStore) commit(spec *ConfigSpec, actor string, parent int64) VersionedConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := VersionedConfig{
		Version:   int64(len(s.versions)) + 1,
		Spec:      spec,
		Actor:     actor,
		Parent:    parent,
		AppliedAt: time.Now(),
	}
	s.versions = append(s.versions, v)
	return v
}
