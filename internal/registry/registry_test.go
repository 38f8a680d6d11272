package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddGetListRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repositories.yaml")
	r, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, r.Add(&Entry{Name: "repo-a", LocalPath: "/tmp/a", DefaultBranch: "main"}))
	require.NoError(t, r.Add(&Entry{Name: "repo-b", LocalPath: "/tmp/b", DefaultBranch: "main"}))

	err = r.Add(&Entry{Name: "repo-a", LocalPath: "/tmp/a2", DefaultBranch: "main"})
	require.Error(t, err)

	entries := r.List()
	require.Len(t, entries, 2)
	require.Equal(t, "repo-a", entries[0].Name)
	require.Equal(t, "repo-b", entries[1].Name)

	e, ok := r.Get("repo-a")
	require.True(t, ok)
	require.Equal(t, "main", e.ActiveBranch)

	require.NoError(t, r.Remove("repo-a"))
	_, ok = r.Get("repo-a")
	require.False(t, ok)
}

func TestRegistryPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repositories.yaml")
	r1, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r1.Add(&Entry{Name: "repo-a", LocalPath: "/tmp/a", DefaultBranch: "main"}))
	require.NoError(t, r1.SetLastSyncedCommit("repo-a", "main", "abc123"))

	r2, err := Load(path)
	require.NoError(t, err)
	e, ok := r2.Get("repo-a")
	require.True(t, ok)
	require.Equal(t, "abc123", e.LastSyncedCommits["main"])
}

func TestSetActiveBranchTracksBranch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repositories.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, r.Add(&Entry{Name: "repo-a", LocalPath: "/tmp/a", DefaultBranch: "main"}))

	require.NoError(t, r.SetActiveBranch("repo-a", "feature-x"))
	e, ok := r.Get("repo-a")
	require.True(t, ok)
	require.Equal(t, "feature-x", e.ActiveBranch)
	require.Contains(t, e.TrackedBranches, "feature-x")
}

func TestRemoveUnknownRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repositories.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	require.Error(t, r.Remove("does-not-exist"))
}
