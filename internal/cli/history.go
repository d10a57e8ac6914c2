package cli

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const historyPreview = 72

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := a.store.RecentConversations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(out, a.theme.hintStyle().Render("no conversations yet"))
				return nil
			}
			for _, r := range recs {
				fmt.Fprintf(out, "%s %s\n",
					a.theme.titleStyle().Render(fmt.Sprintf("#%d", r.ID)),
					a.theme.hintStyle().Render(fmt.Sprintf("%s, %s, %.2f", humanize.Time(r.Timestamp), r.Category, r.Confidence)))
				fmt.Fprintf(out, "  > %s\n", preview(r.InputText))
				fmt.Fprintf(out, "  < %s\n", preview(r.Response))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of conversations")
	return cmd
}

// preview flattens s to one line and cuts it to historyPreview runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= historyPreview {
		return s
	}
	return string(r[:historyPreview-3]) + "..."
}
