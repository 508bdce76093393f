package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/recorder/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "recorder",
	Short: "Capture recorder",
	Long: `recorder writes captured audio, video and timecode into a single MP4 or Matroska file.
It remaps multichannel capture audio into codec channel order and configures every track from the source format.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flag("version").Changed {
			info := version.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "recorder version %s, build %s\n", info["Version"], info["GitCommit"])
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information and exit")

	rootCmd.AddCommand(NewRecordCommand())
	rootCmd.AddCommand(NewLayoutCommand())
	rootCmd.AddCommand(NewTimecodeCommand())
	rootCmd.AddCommand(NewVersionCommand())
}
