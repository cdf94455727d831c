package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"codeqa/pkg/agent"
)

//nolint:gochecknoglobals // shared output styles
var (
	headingColor = color.New(color.FgCyan, color.Bold)
	codeColor    = color.New(color.FgGreen)
	faintColor   = color.New(color.Faint)
	levelColors  = map[string]*color.Color{
		"high":   color.New(color.FgGreen, color.Bold),
		"medium": color.New(color.FgYellow, color.Bold),
		"low":    color.New(color.FgRed, color.Bold),
	}
)

func (a *app) newAskCommand() *cobra.Command {
	var (
		asJSON   bool
		dump     bool
		embedded bool
	)

	cmd := &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Answer one question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if err := a.loadSecrets(cmd); err != nil {
				return err
			}
			rt, err := a.newRuntime(ctx, embedded)
			if err != nil {
				return err
			}
			defer rt.Close()

			ag, err := a.newAgent(rt)
			if err != nil {
				return err
			}

			start := time.Now()
			state, err := ag.Answer(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			out := cmd.OutOrStdout()

			switch {
			case dump:
				_, err = pp.Fprintln(out, state)
				return err
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(agent.NewResponse(state))
			default:
				renderAnswer(out, agent.NewResponse(state), elapsed)
				return nil
			}
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the API response as JSON")
	cmd.Flags().BoolVar(&dump, "dump", false, "pretty-print the full query state")
	cmd.Flags().BoolVar(&embedded, "embedded-index", false, "query the local index in-process")
	return cmd
}

// renderAnswer prints a response for a terminal reader.
func renderAnswer(w io.Writer, resp agent.Response, elapsed time.Duration) {
	headingColor.Fprintln(w, "Answer")
	fmt.Fprintln(w, resp.Explanation)

	if resp.Code != "" {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Code")
		for _, line := range strings.Split(strings.TrimRight(resp.Code, "\n"), "\n") {
			codeColor.Fprintln(w, "  "+line)
		}
	}
	if resp.Instruction != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "→ %s\n", resp.Instruction)
	}

	if len(resp.Sources) > 0 {
		fmt.Fprintln(w)
		headingColor.Fprintln(w, "Sources")
		for _, src := range resp.Sources {
			fmt.Fprintf(w, "  %s (%s)\n", src.File, src.Lines)
		}
	}

	level := resp.ConfidenceLevel
	if c, ok := levelColors[level]; ok {
		level = c.Sprint(level)
	}
	fmt.Fprintln(w)
	faintColor.Fprintf(w, "strategy %s · %s · confidence %.2f ", resp.Strategy, elapsed.Round(10*time.Millisecond), resp.Confidence)
	fmt.Fprintln(w, level)
	if len(resp.Metadata.Degraded) > 0 {
		faintColor.Fprintf(w, "degraded: %s\n", strings.Join(resp.Metadata.Degraded, ", "))
	}
}
