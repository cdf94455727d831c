package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"codeqa/pkg/metrics"
)

func (a *app) newStatsCommand() *cobra.Command {
	var prometheusURL string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize pipeline metrics from Prometheus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if prometheusURL == "" {
				prometheusURL = a.cfg.Metrics.PrometheusURL
			}
			qs, err := metrics.NewQueryService(prometheusURL)
			if err != nil {
				return err
			}

			summary, err := qs.GetSummary(cmd.Context())
			if err != nil {
				return err
			}
			tokens, err := qs.GetModelTokens(cmd.Context())
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), summary, tokens)
			return nil
		},
	}

	cmd.Flags().StringVar(&prometheusURL, "prometheus-url", "", "Prometheus base URL (default metrics.prometheus_url)")
	return cmd
}

func renderStats(w io.Writer, summary *metrics.Summary, tokens map[string]*metrics.ModelTokens) {
	headingColor.Fprintln(w, "Queries")
	fmt.Fprintf(w, "  total %d, average confidence %.2f\n", summary.TotalQueries, summary.AverageConfidence)

	sections := []struct {
		title  string
		values map[string]int64
	}{
		{"By status", summary.ByStatus},
		{"By strategy", summary.ByStrategy},
		{"By confidence level", summary.ByConfidenceLevel},
		{"Degrades", summary.Degrades},
		{"File locks", summary.FileLocks},
	}
	for _, s := range sections {
		if len(s.values) == 0 {
			continue
		}
		fmt.Fprintln(w)
		headingColor.Fprintln(w, s.title)
		for _, key := range sortedKeys(s.values) {
			fmt.Fprintf(w, "  %-16s %d\n", key, s.values[key])
		}
	}

	if len(tokens) == 0 {
		return
	}
	fmt.Fprintln(w)
	headingColor.Fprintln(w, "LLM usage")
	models := make([]string, 0, len(tokens))
	for name := range tokens {
		models = append(models, name)
	}
	sort.Strings(models)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  MODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL")
	for _, name := range models {
		t := tokens[name]
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\n", name, t.Requests, t.PromptTokens, t.CompletionTokens, t.TotalTokens)
	}
	_ = tw.Flush()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
