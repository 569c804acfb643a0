// internal/cli/version.go
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// SetVersionInfo records build metadata injected via ldflags
func SetVersionInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tauri-wd version %s (commit: %s, built: %s)\nGo: %s %s/%s\n",
			version, commit, buildTime,
			runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
