package cli

import (
	"fmt"

	"github.com/andywolf/codeloop/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the codeloop build",
	Long: `Show which codeloop build is installed. With --verbose the commit and
build date are included, which is what ends up in cloud log labels.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if full, _ := cmd.Flags().GetBool("verbose"); full {
			_, err := fmt.Fprintln(out, version.Full())
			return err
		}
		_, err := fmt.Fprintln(out, version.Info())
		return err
	},
}

func init() {
	versionCmd.Flags().BoolP("verbose", "v", false, "include commit and build date")
	rootCmd.AddCommand(versionCmd)
}
