package tools

import (
	"context"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/gitrepo"
	"github.com/sagittacore/sagitta/internal/mcp"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/reposcan"
)

// RepositoryAdd clones (or adopts a local path for) a repository and
// registers it. A target_ref of "HEAD" (or an unset one) resolves to the
// repository's concrete default branch; default_branch is never stored as
// the literal "HEAD" (spec §3, §6's repository_add, §8 boundary behaviour).
func (d *Deps) RepositoryAdd(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	name, ok := stringParam(req.Params, "name")
	if !ok || name == "" {
		return nil, errors.ToolError("repository_add requires a non-empty \"name\"", nil)
	}
	url := optionalString(req.Params, "url")
	localPath := optionalString(req.Params, "local_path")
	if localPath == "" {
		localPath = name
	}
	auth := gitrepo.Auth{
		SSHKeyPath:       optionalString(req.Params, "ssh_key_path"),
		SSHKeyPassphrase: optionalString(req.Params, "ssh_key_passphrase"),
	}

	repo, err := gitrepo.Clone(url, localPath, auth)
	if err != nil {
		return nil, errors.ToolError("clone repository "+name, err)
	}

	branch, err := repo.DefaultBranch()
	if err != nil {
		return nil, errors.ToolError("resolve default branch for "+name, err)
	}

	targetRef := optionalString(req.Params, "target_ref")
	if targetRef != "" && targetRef != "HEAD" {
		if err := repo.Checkout(targetRef); err != nil {
			return nil, errors.ToolError("checkout "+targetRef, err)
		}
		branch = targetRef
	}

	entry := &registry.Entry{
		Name:             name,
		URL:              url,
		LocalPath:        repo.Path(),
		DefaultBranch:    branch,
		TrackedBranches:  []string{branch},
		ActiveBranch:     branch,
		SSHKeyPath:       auth.SSHKeyPath,
		SSHKeyPassphrase: auth.SSHKeyPassphrase,
		AddedAsLocalPath: url == "",
		TargetRef:        targetRef,
	}
	if err := d.Registry.Add(entry); err != nil {
		return nil, err
	}

	return map[string]any{"repository_name": name, "default_branch": branch}, nil
}

// RepositoryList returns every configured repository (spec §6's
// repository_list).
func (d *Deps) RepositoryList(_ context.Context, _ orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	entries := d.Registry.List()
	repos := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		repos = append(repos, map[string]any{
			"name":           e.Name,
			"url":            e.URL,
			"local_path":     e.LocalPath,
			"default_branch": e.DefaultBranch,
			"active_branch":  e.ActiveBranch,
		})
	}
	return map[string]any{"repositories": repos}, nil
}

// RepositoryRemove deregisters a repository. Deleting its collections is
// the caller's responsibility (spec §3, §6's repository_remove).
func (d *Deps) RepositoryRemove(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	name, ok := stringParam(req.Params, "name")
	if !ok || name == "" {
		return nil, errors.ToolError("repository_remove requires a non-empty \"name\"", nil)
	}
	if err := d.Registry.Remove(name); err != nil {
		return nil, err
	}
	return map[string]any{"removed": true}, nil
}

// RepositorySync brings a repository's branch collection up to date (spec
// §4.4, §6's repository_sync).
func (d *Deps) RepositorySync(ctx context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	name, ok := stringParam(req.Params, "name")
	if !ok || name == "" {
		return nil, errors.ToolError("repository_sync requires a non-empty \"name\"", nil)
	}
	branch := optionalString(req.Params, "branch_name")
	force := optionalBool(req.Params, "force")

	result, err := d.Sync.Sync(ctx, name, branch, force)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success":       true,
		"files_indexed": result.FilesIndexed,
		"files_deleted": result.FilesDeleted,
		"files_skipped": result.FilesSkipped,
		"message":       result.Message,
	}, nil
}

// RepositorySwitchBranch changes a repository's active branch (spec §6's
// repository_switch_branch).
func (d *Deps) RepositorySwitchBranch(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	name, ok := stringParam(req.Params, "name")
	if !ok || name == "" {
		return nil, errors.ToolError("repository_switch_branch requires a non-empty \"name\"", nil)
	}
	branch, ok := stringParam(req.Params, "branch_name")
	if !ok || branch == "" {
		return nil, errors.ToolError("repository_switch_branch requires a non-empty \"branch_name\"", nil)
	}

	entry, ok := d.Registry.Get(name)
	if !ok {
		return nil, errors.ValidationError("repository "+name+" not found", nil)
	}

	repo, err := gitrepo.Open(entry.LocalPath)
	if err != nil {
		return nil, errors.ToolError("open repository "+name, err)
	}
	if err := repo.Checkout(branch); err != nil {
		return nil, errors.ToolError("checkout "+branch, err)
	}
	if err := d.Registry.SetActiveBranch(name, branch); err != nil {
		return nil, err
	}

	return map[string]any{"active_branch": branch}, nil
}

// RepositoryViewFile reads a file from a registered repository's working
// tree, optionally windowed by start_line/end_line (spec §6's
// repository_view_file).
func (d *Deps) RepositoryViewFile(_ context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	repoName, ok := stringParam(req.Params, "repository_name")
	if !ok || repoName == "" {
		return nil, errors.ToolError("repository_view_file requires a non-empty \"repository_name\"", nil)
	}
	relPath, ok := stringParam(req.Params, "file_path")
	if !ok || relPath == "" {
		return nil, errors.ToolError("repository_view_file requires a non-empty \"file_path\"", nil)
	}

	entry, ok := d.Registry.Get(repoName)
	if !ok {
		return nil, errors.ValidationError("repository "+repoName+" not found", nil)
	}

	content, err := readLines(joinRepoPath(entry.LocalPath, relPath), req.Params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content, "mime_type": mcp.MimeTypeForPath(relPath)}, nil
}

// RepositoryMap renders a structural map of a registered repository's
// working tree (spec §6's repository_map).
func (d *Deps) RepositoryMap(ctx context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	repoName, ok := stringParam(req.Params, "repository_name")
	if !ok || repoName == "" {
		return nil, errors.ToolError("repository_map requires a non-empty \"repository_name\"", nil)
	}

	entry, ok := d.Registry.Get(repoName)
	if !ok {
		return nil, errors.ValidationError("repository "+repoName+" not found", nil)
	}

	opts := reposcan.Options{
		Verbosity:     reposcan.Verbosity(optionalInt(req.Params, "verbosity", int(reposcan.VerbosityNormal))),
		FileExtension: optionalString(req.Params, "file_extension"),
	}
	if paths, ok := req.Params["paths"].([]any); ok {
		for _, p := range paths {
			if s, ok := p.(string); ok {
				opts.Paths = append(opts.Paths, s)
			}
		}
	}

	result, err := d.RepoMap.Map(ctx, entry.LocalPath, opts)
	if err != nil {
		return nil, errors.ToolError("map repository "+repoName, err)
	}

	project := mcp.NewProjectDetector(entry.LocalPath, nil).Detect()

	return map[string]any{
		"map_content":  result.MapContent,
		"project_name": project.Name,
		"project_type": project.Type,
		"summary": map[string]any{
			"files_scanned":  result.Summary.FilesScanned,
			"elements_found": result.Summary.ElementsFound,
			"file_types":     result.Summary.FileTypes,
			"element_types":  result.Summary.ElementTypes,
		},
	}, nil
}

func joinRepoPath(repoPath, relPath string) string {
	if relPath == "" {
		return repoPath
	}
	return repoPath + "/" + relPath
}
