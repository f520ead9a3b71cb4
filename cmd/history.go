package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/loader/internal/history"
	"github.com/surge-downloader/loader/internal/utils"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "List finished transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		initializeGlobalState(cmd)
		defer history.CloseDB()
		defer utils.CloseDebug()

		out := cmd.OutOrStdout()
		if id, _ := cmd.Flags().GetString("rm"); id != "" {
			if err := history.Remove(id); err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %s\n", id)
			return nil
		}
		if cmd.Flags().Changed("clear") {
			status, _ := cmd.Flags().GetString("clear")
			if status == "all" {
				status = ""
			}
			n, err := history.Clear(history.Status(status))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Removed %d records\n", n)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := history.List(limit)
		if err != nil {
			return err
		}
		printHistory(out, recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of records to show (0 for all)")
	historyCmd.Flags().String("clear", "", "Remove records with this status (completed, failed, closed); all when given without a value")
	historyCmd.Flags().Lookup("clear").NoOptDefVal = "all"
	historyCmd.Flags().String("rm", "", "Remove the record with this ID")
	rootCmd.AddCommand(historyCmd)
}

func printHistory(w io.Writer, recs []*history.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No transfers recorded."))
		return
	}
	fmt.Fprintf(w, "%-36s  %-9s  %10s  %-6s  %-19s  %s\n", "ID", "STATUS", "SIZE", "KIND", "FINISHED", "URL")
	for _, r := range recs {
		fmt.Fprintf(w, "%-36s  %-9s  %10s  %-6s  %-19s  %s\n",
			r.ID, statusStyle(r.Status).Render(string(r.Status)),
			utils.ConvertBytesToHumanReadable(r.Loaded),
			r.Kind,
			r.FinishedAt.Local().Format(time.DateTime),
			urlStyle.Render(r.URL))
	}
}

func statusStyle(s history.Status) lipgloss.Style {
	switch s {
	case history.StatusCompleted:
		return doneStyle
	case history.StatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}
