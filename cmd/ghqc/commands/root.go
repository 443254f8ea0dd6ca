// Package commands implements the ghqc CLI's subcommands with
// spf13/cobra, following jra3-linear-fuse's cmd/<bin>/commands layout.
// Unlike that teacher, this repo does not use viper (§10): runtime
// configuration is env-var + flag driven directly through cobra/pflag.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	repoPath  string
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "ghqc",
	Short: "A file-level QC workflow engine layered on a GitHub issue tracker",
	Long: `ghqc projects a remote issue thread, its comments, the local
repository's commit graph, and a configurable checklist into a single
derived QC status, and exposes operations to advance that state.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&repoPath, "repo", ".", "path to the local git repository")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".ghqc", "path to the ghqc configuration directory (options.yaml + checklists)")
}
