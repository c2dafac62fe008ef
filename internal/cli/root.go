package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	serverURL  string
)

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Self-maintaining knowledge graph engine",
	Long: "Synapse keeps a labeled graph in memory, mirrors it to SQLite, and runs background " +
		"passes that infer transitive edges, prune or reinforce edges under load, and cluster strongly connected nodes.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL for client commands (default $SYNAPSE_URL or http://127.0.0.1:37780)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(traverseCmd)
}
