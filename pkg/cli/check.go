package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harryosmar/log-visibility/pkg/filter"
	"github.com/harryosmar/log-visibility/pkg/models"
	"github.com/spf13/cobra"
)

type checkOptions struct {
	mode string
	show []string
	hide []string
}

func newCheckCommand(g *globals) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Evaluate records against a visibility policy",
		Long: `Read JSON-lines records ({"channels":[...],"force":false,"content":"..."})
from a file or stdin and print PASS or DROP for each one.

The policy is the configured one. --show and --hide add exceptions on top
of it. --default switches its mode, which drops the configured exceptions
when the mode changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return &ExitError{Code: 1, Err: fmt.Errorf("opening input: %w", err)}
				}
				defer f.Close()
				in = f
			}
			return runCheck(cmd, g, opts, in)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "default", "", "default visibility: show_all or hide_all")
	f.StringSliceVar(&opts.show, "show", nil, "channels to show in addition to the policy")
	f.StringSliceVar(&opts.hide, "hide", nil, "channels to hide in addition to the policy")

	return cmd
}

// policy merges the flags into the configured policy
func (o *checkOptions) policy(base filter.Policy) filter.Policy {
	if o.mode != "" && !sameMode(o.mode, base.Default) {
		base = filter.Policy{Default: o.mode}
	}
	return filter.Policy{
		Default: base.Default,
		Show:    append(append([]string{}, base.Show...), o.show...),
		Hide:    append(append([]string{}, base.Hide...), o.hide...),
	}
}

func sameMode(a, b string) bool {
	ma, errA := filter.ParseMode(a)
	mb, errB := filter.ParseMode(b)
	return errA == nil && errB == nil && ma == mb
}

// checkRecord is the JSON form of a record read by check. Channels are
// strings, like every policy surface supplies them.
type checkRecord struct {
	Channels []string `json:"channels"`
	Force    bool     `json:"force"`
	Content  string   `json:"content"`
}

func (r checkRecord) record() models.Record {
	channels := make([]models.Channel, 0, len(r.Channels))
	for _, ch := range r.Channels {
		channels = append(channels, ch)
	}
	return models.Record{Channels: channels, Force: r.Force, Content: r.Content}
}

func runCheck(cmd *cobra.Command, g *globals, opts *checkOptions, in io.Reader) error {
	vis := filter.NewVisibilityFilter()
	if err := opts.policy(g.config.Policy).ApplyTo(vis); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	out := cmd.OutOrStdout()
	passed, dropped := 0, 0

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var cr checkRecord
		if err := json.Unmarshal([]byte(line), &cr); err != nil {
			return &ExitError{Code: 2, Err: fmt.Errorf("line %d: %w", n, err)}
		}
		rec := cr.record()

		verdict := "DROP"
		if vis.Passes(rec) {
			verdict = "PASS"
			passed++
		} else {
			dropped++
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", verdict, strings.Join(rec.ChannelNames(), ","), rec.Content)
	}
	if err := scanner.Err(); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("reading input: %w", err)}
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "policy %s: %d passed, %d dropped\n", vis.Snapshot(), passed, dropped)
	return nil
}
