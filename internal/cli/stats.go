package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func (a *app) statsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show conversation and pattern counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}

			fmt.Fprintln(out, a.theme.titleStyle().Render("PyBot statistics"))
			fmt.Fprintf(out, "  conversations:    %s\n", humanize.Comma(st.TotalConversations))
			fmt.Fprintf(out, "  patterns:         %s\n", humanize.Comma(st.TotalPatterns))
			fmt.Fprintf(out, "  trained patterns: %s\n", humanize.Comma(st.TrainedPatterns))
			if len(st.Categories) == 0 {
				return nil
			}

			cats := make([]string, 0, len(st.Categories))
			for c := range st.Categories {
				cats = append(cats, c)
			}
			sort.Slice(cats, func(i, j int) bool {
				if st.Categories[cats[i]] != st.Categories[cats[j]] {
					return st.Categories[cats[i]] > st.Categories[cats[j]]
				}
				return cats[i] < cats[j]
			})
			fmt.Fprintln(out, a.theme.titleStyle().Render("Categories"))
			for _, c := range cats {
				fmt.Fprintf(out, "  %-16s %s\n", c, humanize.Comma(st.Categories[c]))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
