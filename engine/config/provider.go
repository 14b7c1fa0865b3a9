package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Provider is the external configuration collaborator boundary (spec §1b):
// something that can load the current EngineConfig and stream subsequent
// changes. The engine never reads files or environment variables directly.
type Provider interface {
	Load() (EngineConfig, error)
	Watch(ctx context.Context) (<-chan EngineConfig, error)
}

// FileProvider loads EngineConfig from a YAML file and, when Watch is
// called, pushes a fresh load on every fsnotify write event for that file.
// Grounded on the teacher's root-level config watch (fsnotify-driven
// reload of its own pipeline config).
type FileProvider struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// NewFileProvider builds a FileProvider reading from path. The file is not
// read until Load or Watch is called.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Load reads and parses the YAML config file, filling recognized-key
// defaults for anything the file omits.
func (p *FileProvider) Load() (EngineConfig, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return EngineConfig{}, fmt.Errorf("config: read %s: %w", p.path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parse %s: %w", p.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return cfg, nil
}

// Watch starts an fsnotify watch on the config file's directory (files are
// frequently replaced atomically by editors/deploy tooling, which fsnotify
// sees as a rename+create rather than a write to the same inode) and emits
// a freshly loaded EngineConfig on every write/create touching the file.
// Invalid reloads are dropped rather than sent, so a bad edit never
// replaces a working configuration; the caller keeps running the last good
// config until the file becomes valid again.
func (p *FileProvider) Watch(ctx context.Context) (<-chan EngineConfig, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	dir := dirOf(p.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	out := make(chan EngineConfig, 1)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if baseOf(ev.Name) != baseOf(p.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := p.Load()
				if err != nil {
					continue
				}
				select {
				case out <- cfg:
				case <-ctx.Done():
					return
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func dirOf(path string) string {
	i := lastSlash(path)
	if i < 0 {
		return "."
	}
	return path[:i]
}

func baseOf(path string) string {
	i := lastSlash(path)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}
