package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/output"
)

// newRepoCmd groups the repository-registry subcommands (spec §3, §6).
func newRepoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Manage registered repositories",
		Long:  `Add, list, remove, sync, and switch branches on registered repositories.`,
	}

	cmd.AddCommand(newRepoAddCmd())
	cmd.AddCommand(newRepoListCmd())
	cmd.AddCommand(newRepoRemoveCmd())
	cmd.AddCommand(newRepoSyncCmd())
	cmd.AddCommand(newRepoSwitchBranchCmd())

	return cmd
}

// invokeTool runs a single named tool directly against freshly built
// runtime collaborators, bypassing the orchestrator's planning (a CLI
// invocation is always a single, already-resolved tool call).
func invokeTool(cmd *cobra.Command, name string, params map[string]any) (map[string]any, error) {
	ctx := cmd.Context()
	deps, err := buildRuntimeDeps(ctx, ".", nil)
	if err != nil {
		return nil, err
	}
	defer deps.Close()

	handlers := toolHandlers(deps)
	handler, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("no such tool %q", name)
	}
	return handler(ctx, orchestrator.ToolExecutionRequest{ToolName: name, Params: params}, func(string) {})
}

func newRepoAddCmd() *cobra.Command {
	var url, localPath, targetRef, sshKeyPath, sshKeyPassphrase string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Clone or adopt a repository and register it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			result, err := invokeTool(cmd, "repository_add", map[string]any{
				"name":               args[0],
				"url":                url,
				"local_path":         localPath,
				"target_ref":         targetRef,
				"ssh_key_path":       sshKeyPath,
				"ssh_key_passphrase": sshKeyPassphrase,
			})
			if err != nil {
				return err
			}
			out.Successf("registered %s (default branch: %s)", result["repository_name"], result["default_branch"])
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Remote URL to clone (empty adopts local_path as-is)")
	cmd.Flags().StringVar(&localPath, "local-path", "", "Local working tree path (defaults to the repository name)")
	cmd.Flags().StringVar(&targetRef, "target-ref", "", "Branch or ref to check out (defaults to HEAD's default branch)")
	cmd.Flags().StringVar(&sshKeyPath, "ssh-key", "", "Path to an SSH private key for cloning")
	cmd.Flags().StringVar(&sshKeyPassphrase, "ssh-key-passphrase", "", "Passphrase for --ssh-key")

	return cmd
}

func newRepoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every registered repository",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			result, err := invokeTool(cmd, "repository_list", nil)
			if err != nil {
				return err
			}
			repos, _ := result["repositories"].([]map[string]any)
			if len(repos) == 0 {
				out.Status("", "No repositories registered")
				return nil
			}
			for _, r := range repos {
				out.Statusf("", "%s  active=%s  default=%s  path=%s", r["name"], r["active_branch"], r["default_branch"], r["local_path"])
			}
			return nil
		},
	}
}

func newRepoRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Deregister a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			if _, err := invokeTool(cmd, "repository_remove", map[string]any{"name": args[0]}); err != nil {
				return err
			}
			out.Successf("removed %s from the registry", args[0])
			return nil
		},
	}
}

func newRepoSyncCmd() *cobra.Command {
	var branch string
	var force bool

	cmd := &cobra.Command{
		Use:   "sync <name>",
		Short: "Bring a repository's branch collection up to date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			result, err := invokeTool(cmd, "repository_sync", map[string]any{
				"name":        args[0],
				"branch_name": branch,
				"force":       force,
			})
			if err != nil {
				return err
			}
			out.Successf("%s: %v files indexed, %v files deleted", args[0], result["files_indexed"], result["files_deleted"])
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to sync (defaults to the repository's active branch)")
	cmd.Flags().BoolVar(&force, "force", false, "Force a full reindex")

	return cmd
}

func newRepoSwitchBranchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-branch <name> <branch>",
		Short: "Change a repository's active branch and check it out",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			result, err := invokeTool(cmd, "repository_switch_branch", map[string]any{
				"name":        args[0],
				"branch_name": args[1],
			})
			if err != nil {
				return err
			}
			out.Successf("%s is now on %s", args[0], result["active_branch"])
			return nil
		},
	}
}
