// Package tools implements the bounded set of agent tool handlers spec §6
// names (semantic_search, file/shell operations, repository management).
// Each handler satisfies orchestrator.Handler so the orchestrator can
// dispatch a plan's tools without knowing their individual shapes.
package tools

import (
	"github.com/sagittacore/sagitta/internal/collection"
	"github.com/sagittacore/sagitta/internal/gitrepo"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/queryengine"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/reposcan"
	"github.com/sagittacore/sagitta/internal/syncengine"
)

// Deps bundles the collaborators tool handlers dispatch into. A nil field
// is fine as long as no registered handler that needs it is ever invoked.
type Deps struct {
	Registry   *registry.Registry
	Sync       *syncengine.Engine
	Query      *queryengine.Engine
	Collection *collection.Manager
	RepoMap    *reposcan.Scanner
	// CurrentRepoPath is the process-wide fallback working directory for
	// shell_execute, mirroring SAGITTA_CURRENT_REPO_PATH (spec §6).
	CurrentRepoPath string
}

// Handlers returns every tool name mapped to its dispatcher, ready to hand
// to orchestrator.NewExecutor.
func Handlers(d *Deps) map[string]orchestrator.Handler {
	return map[string]orchestrator.Handler{
		"ping":                      Ping,
		"repository_add":            d.RepositoryAdd,
		"repository_list":           d.RepositoryList,
		"repository_remove":         d.RepositoryRemove,
		"repository_sync":           d.RepositorySync,
		"repository_switch_branch":  d.RepositorySwitchBranch,
		"repository_view_file":      d.RepositoryViewFile,
		"repository_map":            d.RepositoryMap,
		"semantic_search":           d.SemanticSearch,
		"read_file":                 ReadFile,
		"write_file":                WriteFile,
		"edit_file":                 EditFile,
		"multi_edit_file":           MultiEditFile,
		"create_directory":          CreateDirectory,
		"shell_execute":             d.ShellExecute,
	}
}

// gitAuthFromEntry builds a gitrepo.Auth from a registry entry's stored
// SSH credentials.
func gitAuthFromEntry(e *registry.Entry) gitrepo.Auth {
	return gitrepo.Auth{SSHKeyPath: e.SSHKeyPath, SSHKeyPassphrase: e.SSHKeyPassphrase}
}

// stringParam reads a required string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// optionalString reads an optional string parameter, defaulting to "".
func optionalString(params map[string]any, key string) string {
	s, _ := stringParam(params, key)
	return s
}

// optionalBool reads an optional bool parameter, defaulting to false.
func optionalBool(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// optionalInt reads an optional numeric parameter (JSON numbers decode as
// float64), defaulting to def.
func optionalInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
