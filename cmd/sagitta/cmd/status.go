package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagittacore/sagitta/internal/output"
)

// repoStatus reports one registered repository's collection health, the
// information "index-status" surfaces (spec §3's Repository entry plus
// §4.3's collection-integrity checks, queried read-only here).
type repoStatus struct {
	Name          string `json:"name"`
	ActiveBranch  string `json:"active_branch"`
	Collection    string `json:"collection"`
	Exists        bool   `json:"exists"`
	PointCount    uint64 `json:"point_count"`
	LastSynced    string `json:"last_synced_commit"`
}

func newIndexStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "index-status",
		Short: "Show collection health for every registered repository",
		Long: `Report, for every registered repository's active branch, whether its
vector-store collection exists and how many points it holds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndexStatus(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runIndexStatus(cmd *cobra.Command, jsonOutput bool) error {
	ctx := cmd.Context()
	deps, err := buildRuntimeDeps(ctx, ".", nil)
	if err != nil {
		return err
	}
	defer deps.Close()

	entries := deps.tools.Registry.List()
	statuses := make([]repoStatus, 0, len(entries))
	for _, e := range entries {
		collectionName := deps.tools.Collection.CollectionName(e.Name, e.ActiveBranch)
		info, err := deps.store.CollectionInfo(ctx, collectionName)
		var exists bool
		var count uint64
		if err == nil {
			exists = info.Exists
			count = info.PointCount
		}
		statuses = append(statuses, repoStatus{
			Name:         e.Name,
			ActiveBranch: e.ActiveBranch,
			Collection:   collectionName,
			Exists:       exists,
			PointCount:   count,
			LastSynced:   e.LastSyncedCommits[e.ActiveBranch],
		})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	out := output.New(cmd.OutOrStdout())
	if len(statuses) == 0 {
		out.Status("", "No repositories registered")
		return nil
	}
	for _, s := range statuses {
		state := "missing"
		if s.Exists {
			state = fmt.Sprintf("%d points", s.PointCount)
		}
		out.Statusf("", "%s@%s  %s  collection=%s", s.Name, s.ActiveBranch, state, s.Collection)
	}
	return nil
}
