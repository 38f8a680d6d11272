// Package registry persists the set of configured repositories: their
// local paths, tracked branches, active branch, and last-synced commits
// (spec §3's Repository entry, §5's "repository registry is mutable and
// guarded by a single writer-priority lock" resource).
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/sagittacore/sagitta/internal/errors"
)

// Dependency is one entry in a repository's dependency list (spec §3).
type Dependency struct {
	RepositoryName string `yaml:"repository_name"`
	TargetRef      string `yaml:"target_ref,omitempty"`
	Purpose        string `yaml:"purpose,omitempty"`
}

// Entry is a single configured repository (spec §3's "Repository entry").
type Entry struct {
	Name               string            `yaml:"name"`
	URL                string            `yaml:"url,omitempty"`
	LocalPath          string            `yaml:"local_path"`
	DefaultBranch      string            `yaml:"default_branch"`
	TrackedBranches    []string          `yaml:"tracked_branches"`
	ActiveBranch       string            `yaml:"active_branch"`
	LastSyncedCommits  map[string]string `yaml:"last_synced_commits"`
	IndexedLanguages   []string          `yaml:"indexed_languages,omitempty"`
	SSHKeyPath         string            `yaml:"ssh_key_path,omitempty"`
	SSHKeyPassphrase   string            `yaml:"ssh_key_passphrase,omitempty"`
	AddedAsLocalPath   bool              `yaml:"added_as_local_path"`
	TargetRef          string            `yaml:"target_ref,omitempty"`
	Dependencies       []Dependency      `yaml:"dependencies,omitempty"`
}

// document is the on-disk shape of repositories.yaml.
type document struct {
	Repositories []*Entry `yaml:"repositories"`
}

// Registry is the in-memory, disk-backed store of repository entries. All
// mutating operations take the writer-priority lock and persist to disk
// under an exclusive file lock before returning, so concurrent processes
// never race on repositories.yaml.
type Registry struct {
	path    string
	fileMu  *flock.Flock
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Load reads path (creating an empty registry if it does not yet exist).
func Load(path string) (*Registry, error) {
	r := &Registry{
		path:    path,
		fileMu:  flock.New(path + ".lock"),
		entries: make(map[string]*Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, errors.IOError(fmt.Sprintf("read registry %q", path), err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("parse registry %q", path), err)
	}
	for _, e := range doc.Repositories {
		r.entries[e.Name] = e
	}
	return r, nil
}

func (r *Registry) save() error {
	if err := r.fileMu.Lock(); err != nil {
		return errors.IOError("acquire registry lock", err)
	}
	defer r.fileMu.Unlock()

	doc := document{}
	for _, e := range r.entries {
		doc.Repositories = append(doc.Repositories, e)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.ConfigError("marshal registry", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return errors.IOError("create registry directory", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return errors.IOError(fmt.Sprintf("write registry %q", r.path), err)
	}
	return nil
}

// Add registers a new repository entry. It fails if an entry with the same
// name already exists.
func (r *Registry) Add(e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Name]; exists {
		return errors.ValidationError(fmt.Sprintf("repository %q already exists", e.Name), nil)
	}
	if e.LastSyncedCommits == nil {
		e.LastSyncedCommits = make(map[string]string)
	}
	if e.ActiveBranch == "" {
		e.ActiveBranch = e.DefaultBranch
	}
	r.entries[e.Name] = e
	return r.save()
}

// Remove deletes a repository entry. The caller is responsible for
// deleting its collections (spec §3's "destroyed by 'remove', which also
// deletes all its collections").
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; !exists {
		return errors.ValidationError(fmt.Sprintf("repository %q not found", name), nil)
	}
	delete(r.entries, name)
	return r.save()
}

// Get returns a copy of the named entry.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// List returns every configured repository, sorted by name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		cp := *e
		out = append(out, &cp)
	}
	sortEntriesByName(out)
	return out
}

func sortEntriesByName(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].Name > entries[j].Name; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

// SetActiveBranch updates the active branch for a repository, adding it to
// TrackedBranches if not already present.
func (r *Registry) SetActiveBranch(name, branch string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return errors.ValidationError(fmt.Sprintf("repository %q not found", name), nil)
	}
	e.ActiveBranch = branch
	if !containsStr(e.TrackedBranches, branch) {
		e.TrackedBranches = append(e.TrackedBranches, branch)
	}
	return r.save()
}

// SetLastSyncedCommit records the commit a branch was last synced at.
func (r *Registry) SetLastSyncedCommit(name, branch, commit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return errors.ValidationError(fmt.Sprintf("repository %q not found", name), nil)
	}
	if e.LastSyncedCommits == nil {
		e.LastSyncedCommits = make(map[string]string)
	}
	e.LastSyncedCommits[branch] = commit
	return r.save()
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
