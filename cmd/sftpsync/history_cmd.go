package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/openmined/sftpsync/internal/config"
	"github.com/openmined/sftpsync/internal/history"
	"github.com/openmined/sftpsync/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(newHistoryCmd())
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfer outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true

			limit, _ := cmd.Flags().GetInt("limit")
			journal, err := history.Open(cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer journal.Close()

			entries, err := journal.Recent(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "number of outcomes to show")
	return cmd
}

var kindStyles = map[string]lipgloss.Style{
	"committed":  green,
	"deleted":    yellow,
	"conflicted": red.Bold(true),
	"failed":     red,
}

func printHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, gray.Render("no transfers recorded"))
		return
	}

	for _, e := range entries {
		style, ok := kindStyles[e.Kind]
		if !ok {
			style = gray
		}
		when := e.RecordedAt
		if t := e.Time(); !t.IsZero() {
			when = humanize.Time(t)
		}

		line := fmt.Sprintf("%s %-5s %s %s",
			gray.Render(fmt.Sprintf("%-16s", when)), e.Direction, style.Render(fmt.Sprintf("%-10s", e.Kind)), sync.DisplayPath(e.Path))
		if e.Size != nil {
			line += " " + lightGray.Render(humanize.Bytes(uint64(*e.Size)))
		}
		if e.Reason != "" {
			line += " " + lightGray.Render("("+e.Reason+")")
		}
		fmt.Fprintln(w, line)
	}
}
