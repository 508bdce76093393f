package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/recorder/internal/chanlayout"
	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/remap"
)

// LayoutOptions holds command options
type LayoutOptions struct {
	Mode       string
	Bits       int
	SampleRate int
}

// NewLayoutCommand creates the layout command
func NewLayoutCommand() *cobra.Command {
	opts := &LayoutOptions{}

	cmd := &cobra.Command{
		Use:   "layout <layout>",
		Short: "Analyze a capture channel layout",
		Long: `Analyze a channel layout and show how it is remapped for a lossy audio track.

The layout is given as labels, a bitmap or a layout tag, for example:
  recorder layout labels:L,R,C,LFE,Ls,Rs,-,-
  recorder layout bitmap:0x3f
  recorder layout tag:5.1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "auto", "Remap mode: auto, compact or wide")
	cmd.Flags().IntVar(&opts.Bits, "bits", 16, "Bits per sample of the source")
	cmd.Flags().IntVar(&opts.SampleRate, "rate", 48000, "Sample rate of the source")

	return cmd
}

func runLayout(out io.Writer, arg string, opts *LayoutOptions) error {
	layout, err := chanlayout.ParseLayout(arg)
	if err != nil {
		return errors.Wrap(err, "invalid layout")
	}
	a := chanlayout.Analyze(layout)
	if a.Valid == 0 {
		return errors.Errorf("layout %s has no valid channels", layout)
	}

	mode := remap.ModeWide
	switch strings.ToLower(opts.Mode) {
	case "", "auto":
		if remap.Supported(a.Valid) {
			mode = remap.ModeCompact
		}
	default:
		if mode, err = remap.ParseMode(opts.Mode); err != nil {
			return err
		}
	}

	label := color.New(color.Bold)
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Layout:  "), layout)
	fmt.Fprintf(out, "%s %d\n", label.Sprint("Valid:   "), a.Valid)
	fmt.Fprintf(out, "%s %d\n", label.Sprint("Physical:"), a.Physical)
	fmt.Fprintf(out, "%s %t\n", label.Sprint("Reverse: "), a.Reverse)

	src := media.PCMDescription(opts.SampleRate, a.Physical, opts.Bits)
	plan, ok := remap.NewPlan(src, layout, mode)
	if !ok {
		fmt.Fprintf(out, "%s %s\n", label.Sprint("Remap:   "), color.YellowString("not possible in %s mode", mode))
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", label.Sprint("Mode:    "), plan.Mode)
	fmt.Fprintf(out, "%s %v\n", label.Sprint("Permute: "), []int(plan.Permutation))
	fmt.Fprintf(out, "%s %d channels, %s\n", label.Sprint("Output:  "), plan.OutputChannels(), plan.Layout)
	if !plan.Reorders() {
		fmt.Fprintln(out, color.GreenString("Source is already in codec order"))
	}
	return nil
}
