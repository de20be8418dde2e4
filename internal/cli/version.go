package cli

import (
	"fmt"
	"runtime"
	"strings"

	"etlpipe/internal/fetcher"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		version, commit, date := BuildInfo()
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "etlpipe %s\ncommit:  %s\nbuilt:   %s\n", version, commit, date)
		fmt.Fprintf(w, "go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "schemes: %s\n", strings.Join(fetcher.ListSchemes(), ", "))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
