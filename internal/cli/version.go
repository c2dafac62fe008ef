package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Stamped with -ldflags "-X github.com/lazypower/synapse/internal/cli.Version=..." at release.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "synapse %s\n", Version)
		fmt.Fprintf(out, "  commit: %s\n  built:  %s\n", Commit, BuildDate)
		fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

// VersionString is the short form reported by /api/health.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
