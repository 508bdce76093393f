package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/gbox/packages/recorder/internal/media"
	"github.com/babelcloud/gbox/packages/recorder/internal/timecode"
)

// TimecodeOptions holds command options
type TimecodeOptions struct {
	Rate string
	Drop bool
}

// NewTimecodeCommand creates the timecode command
func NewTimecodeCommand() *cobra.Command {
	opts := &TimecodeOptions{}

	cmd := &cobra.Command{
		Use:   "timecode <frame|HH:MM:SS:FF>...",
		Short: "Convert between frame counts and SMPTE timecode",
		Long: `Convert frame counts since midnight to SMPTE timecode labels and labels back to frame counts.

Examples:
  recorder timecode --rate 25 90000
  recorder timecode --rate 29.97 --drop 00:01:00;02`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimecode(cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Rate, "rate", "30", "Frame rate: an integer, 23.98, 29.97, 59.94 or num/den")
	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "Use drop-frame counting (29.97 and 59.94 only)")

	return cmd
}

func runTimecode(out io.Writer, args []string, opts *TimecodeOptions) error {
	rate, err := parseRate(opts.Rate)
	if err != nil {
		return err
	}
	quanta := rate.Quanta()
	drop := opts.Drop
	if drop && !(rate.IsNTSC() && timecode.SupportsDropFrame(quanta)) {
		return errors.Errorf("drop frame is not defined at %s fps", opts.Rate)
	}

	for _, arg := range args {
		if n, err := strconv.ParseInt(arg, 10, 64); err == nil {
			fmt.Fprintf(out, "%d\t%s\n", n, timecode.FromFrame(n, quanta, drop))
			continue
		}
		tc, err := timecode.Parse(arg)
		if err != nil {
			return err
		}
		if !tc.Valid(quanta) {
			return errors.Errorf("%s is not a valid label at %s fps", arg, opts.Rate)
		}
		fmt.Fprintf(out, "%s\t%d\n", tc, tc.Frame(quanta))
	}
	return nil
}

// parseRate reads "25", "29.97", "30000/1001" and similar.
func parseRate(s string) (media.Rational, error) {
	s = strings.TrimSpace(s)
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.Atoi(num)
		d, err2 := strconv.Atoi(den)
		r := media.Rational{Num: n, Den: d}
		if err1 != nil || err2 != nil || !r.Valid() {
			return media.Rational{}, errors.Errorf("invalid frame rate %q", s)
		}
		return r, nil
	}
	switch s {
	case "23.976", "23.98":
		return media.Rational{Num: 24000, Den: 1001}, nil
	case "29.97":
		return media.Rational{Num: 30000, Den: 1001}, nil
	case "59.94":
		return media.Rational{Num: 60000, Den: 1001}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return media.Rational{}, errors.Errorf("invalid frame rate %q", s)
	}
	return media.Rational{Num: n, Den: 1}, nil
}
