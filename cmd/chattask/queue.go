package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nhle/chattask/internal/model"
	"github.com/nhle/chattask/internal/queue"
	"github.com/nhle/chattask/internal/store"
	"github.com/nhle/chattask/internal/theme"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect the reminder delivery queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := queue.New(s, cfg.Queue, logger, nil).Stats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
}

// renderStats draws the job counts as a bordered panel.
func renderStats(stats model.JobStats) string {
	rows := []struct {
		state string
		n     int
	}{
		{"waiting", stats.Waiting},
		{"delayed", stats.Delayed},
		{"active", stats.Active},
		{"completed", stats.Completed},
		{"failed", stats.Failed},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, theme.LabelStyle.Render(r.state)+theme.JobStateStyle(r.state).Render(fmt.Sprint(r.n)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		theme.HeaderStyle.Render("Delivery queue"),
		theme.BorderStyle.Render(strings.Join(lines, "\n")),
	)
}
