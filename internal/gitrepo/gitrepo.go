// Package gitrepo wraps go-git/go-git/v5 behind the narrow surface the sync
// engine needs: clone/fetch/checkout, commit diffing, and full-tree file
// enumeration. Git itself is an out-of-scope external collaborator (spec
// §1); this package is the boundary.
package gitrepo

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/sagittacore/sagitta/internal/errors"
)

// Auth carries optional SSH credentials, mirroring the donor's
// ssh_key_path/ssh_key_passphrase repository-entry fields (spec §3).
type Auth struct {
	SSHKeyPath       string
	SSHKeyPassphrase string
}

func (a Auth) method(url string) (transport.AuthMethod, error) {
	if a.SSHKeyPath == "" {
		return nil, nil
	}
	if !strings.HasPrefix(url, "git@") && !strings.HasPrefix(url, "ssh://") {
		return nil, nil
	}
	auth, err := ssh.NewPublicKeysFromFile("git", a.SSHKeyPath, a.SSHKeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("load ssh key %q: %w", a.SSHKeyPath, err)
	}
	return auth, nil
}

// Repo wraps a single on-disk Git working tree.
type Repo struct {
	path string
	repo *git.Repository
}

// Clone clones url into localPath. If url is empty, localPath is expected
// to already contain a working tree and is opened in place (the
// "added_as_local_path" case from spec §3).
func Clone(url, localPath string, auth Auth) (*Repo, error) {
	if url == "" {
		return Open(localPath)
	}

	authMethod, err := auth.method(url)
	if err != nil {
		return nil, errors.GitOperationFailed("resolve auth", err)
	}

	r, err := git.PlainClone(localPath, false, &git.CloneOptions{
		URL:  url,
		Auth: authMethod,
	})
	if err != nil {
		return nil, errors.GitOperationFailed(fmt.Sprintf("clone %q", url), err)
	}
	return &Repo{path: localPath, repo: r}, nil
}

// Open opens an existing working tree without cloning.
func Open(localPath string) (*Repo, error) {
	r, err := git.PlainOpen(localPath)
	if err != nil {
		return nil, errors.GitOperationFailed(fmt.Sprintf("open %q", localPath), err)
	}
	return &Repo{path: localPath, repo: r}, nil
}

// Path returns the working tree's local filesystem path.
func (r *Repo) Path() string { return r.path }

// DefaultBranch resolves the repository's current branch, following HEAD
// when it is a symbolic reference. If the working tree is in detached-HEAD
// state, it falls back to the remote's configured default branch and, as a
// last resort, the commit hash of HEAD — it MUST NOT return the literal
// "HEAD" (spec §3, §8 boundary behaviours).
func (r *Repo) DefaultBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.GitOperationFailed("resolve HEAD", err)
	}

	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}

	// Detached HEAD: prefer the remote's symbolic default branch, then
	// fall back to the commit hash so the caller always gets a
	// non-empty, non-"HEAD" value.
	if remoteDefault, err := r.remoteDefaultBranch(); err == nil && remoteDefault != "" {
		return remoteDefault, nil
	}
	return head.Hash().String(), nil
}

func (r *Repo) remoteDefaultBranch() (string, error) {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return "", err
	}
	refs, err := remote.List(&git.ListOptions{})
	if err != nil {
		return "", err
	}
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference {
			return ref.Target().Short(), nil
		}
	}
	return "", nil
}

// Fetch fetches all refs from origin. go-git's "already up to date"
// sentinel error is treated as success, and a repository without an
// origin remote returns nil without fetching.
func (r *Repo) Fetch(auth Auth) error {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		if err == git.ErrRemoteNotFound {
			return nil
		}
		return errors.GitOperationFailed("resolve remote", err)
	}
	remoteCfg, _ := r.repo.Config()
	var url string
	if remoteCfg != nil {
		if rc, ok := remoteCfg.Remotes["origin"]; ok && len(rc.URLs) > 0 {
			url = rc.URLs[0]
		}
	}
	authMethod, err := auth.method(url)
	if err != nil {
		return errors.GitOperationFailed("resolve auth", err)
	}

	err = remote.Fetch(&git.FetchOptions{Auth: authMethod})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return errors.GitOperationFailed("fetch", err)
	}
	return nil
}

// Checkout switches the working tree to branch, creating a local tracking
// branch from origin/<branch> if it does not exist locally yet.
func (r *Repo) Checkout(branch string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return errors.GitOperationFailed("get worktree", err)
	}

	localRef := plumbing.NewBranchReferenceName(branch)
	err = wt.Checkout(&git.CheckoutOptions{Branch: localRef})
	if err == nil {
		return nil
	}

	// Local branch doesn't exist yet: create it tracking origin/<branch>.
	remoteRef, resolveErr := r.repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if resolveErr != nil {
		return errors.GitOperationFailed(fmt.Sprintf("checkout %q", branch), err)
	}
	if createErr := r.repo.Storer.SetReference(plumbing.NewHashReference(localRef, remoteRef.Hash())); createErr != nil {
		return errors.GitOperationFailed(fmt.Sprintf("create local branch %q", branch), createErr)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: localRef}); err != nil {
		return errors.GitOperationFailed(fmt.Sprintf("checkout %q", branch), err)
	}
	return nil
}

// HeadCommit returns the hash of the working tree's current HEAD, which by
// convention is called after Checkout(branch) so it reflects that branch's
// tip.
func (r *Repo) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", errors.GitOperationFailed("resolve HEAD", err)
	}
	return head.Hash().String(), nil
}

// DiffResult partitions a commit-to-commit diff the way the sync engine
// needs it (spec §4.4 step 5).
type DiffResult struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// DiffCommits computes added/modified/deleted files between fromCommit and
// toCommit (both full hex hashes). fromCommit may be empty, in which case
// the caller should use AllTrackedFiles instead — this spec explicitly
// treats "no prior commit" as "full re-index", not a diff against the
// empty tree.
func (r *Repo) DiffCommits(fromCommit, toCommit string) (DiffResult, error) {
	toCommitObj, err := r.repo.CommitObject(plumbing.NewHash(toCommit))
	if err != nil {
		return DiffResult{}, errors.GitOperationFailed(fmt.Sprintf("resolve commit %q", toCommit), err)
	}
	toTree, err := toCommitObj.Tree()
	if err != nil {
		return DiffResult{}, errors.GitOperationFailed("resolve tree", err)
	}

	fromCommitObj, err := r.repo.CommitObject(plumbing.NewHash(fromCommit))
	if err != nil {
		return DiffResult{}, errors.GitOperationFailed(fmt.Sprintf("resolve commit %q", fromCommit), err)
	}
	fromTree, err := fromCommitObj.Tree()
	if err != nil {
		return DiffResult{}, errors.GitOperationFailed("resolve tree", err)
	}

	changes, err := fromTree.Diff(toTree)
	if err != nil {
		return DiffResult{}, errors.GitOperationFailed("diff trees", err)
	}

	var result DiffResult
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			continue
		}
		switch action {
		case merkletrie.Insert:
			result.Added = append(result.Added, change.To.Name)
		case merkletrie.Delete:
			result.Deleted = append(result.Deleted, change.From.Name)
		case merkletrie.Modify:
			result.Modified = append(result.Modified, change.To.Name)
		}
	}
	return result, nil
}

// AllTrackedFiles walks toCommit's tree and returns every blob path whose
// extension is in extensions (lower-cased, without the dot). Used for full
// re-index (no prior commit, force, or wipe recovery).
func (r *Repo) AllTrackedFiles(toCommit string, extensions map[string]bool) ([]string, error) {
	commitObj, err := r.repo.CommitObject(plumbing.NewHash(toCommit))
	if err != nil {
		return nil, errors.GitOperationFailed(fmt.Sprintf("resolve commit %q", toCommit), err)
	}
	tree, err := commitObj.Tree()
	if err != nil {
		return nil, errors.GitOperationFailed("resolve tree", err)
	}

	var files []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.GitOperationFailed("walk tree", err)
		}
		if entry.Mode.IsFile() {
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
			if extensions[ext] {
				files = append(files, name)
			}
		}
	}
	return files, nil
}
