package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/recorder/internal/version"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Info()
			out := cmd.OutOrStdout()
			bold := color.New(color.Bold)
			fmt.Fprintf(out, "%s %s\n", bold.Sprint("Version:   "), info["Version"])
			fmt.Fprintf(out, "%s %s\n", bold.Sprint("Go version:"), info["GoVersion"])
			fmt.Fprintf(out, "%s %s\n", bold.Sprint("Git commit:"), info["GitCommit"])
			fmt.Fprintf(out, "%s %s\n", bold.Sprint("Built:     "), info["FormattedTime"])
			fmt.Fprintf(out, "%s %s/%s\n", bold.Sprint("OS/Arch:   "), info["OS"], info["Arch"])
			return nil
		},
	}
}
