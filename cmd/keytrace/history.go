package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/stats"
	"github.com/verte-zerg/keytrace/internal/statsui"
	"github.com/verte-zerg/keytrace/internal/store"
)

var (
	historyName   string
	historySince  string
	historyLast   int
	historyShow   string
	historyDelete string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyName, "name", "", "session name prefix")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N sessions")
	cmd.Flags().StringVar(&historyShow, "show", "", "open the stored report with this id in the viewer")
	cmd.Flags().StringVar(&historyDelete, "delete", "", "delete the stored session with this id")
	cmd.MarkFlagsMutuallyExclusive("show", "delete")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	since, err := parseSince(historySince)
	if err != nil {
		return err
	}
	if historyLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case historyShow != "":
		rep, err := st.GetReport(ctx, historyShow)
		if err != nil {
			return storedSessionError(historyShow, err)
		}
		program := tea.NewProgram(statsui.NewModel([]model.Report{rep}), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
		return nil
	case historyDelete != "":
		if err := st.DeleteSession(ctx, historyDelete); err != nil {
			return storedSessionError(historyDelete, err)
		}
		logErrf("Deleted session %s\n", historyDelete)
		return nil
	}

	sessions, err := st.ListSessions(ctx, model.HistoryFilter{Name: historyName, Since: since, Last: historyLast})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		logErrln("No sessions found.")
		return nil
	}
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	rates, err := st.ListRates(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load typing rates: %w", err)
	}
	return writeHistory(cmd.OutOrStdout(), sessions, rates)
}

func storedSessionError(id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no stored session with id %s", id)
	}
	return fmt.Errorf("failed to load session %s: %w", id, err)
}

func writeHistory(w io.Writer, sessions []model.StoredSession, rates map[string][]float64) error {
	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, []string{
			sess.ID,
			sess.Name,
			sess.StartedAt.Local().Format(time.DateTime),
			strconv.FormatFloat(model.Round2(sess.Summary.TotalMinutes), 'f', 2, 64),
			strconv.FormatFloat(model.Round2(sess.Summary.ActiveMinutes), 'f', 2, 64),
			strconv.Itoa(sess.Summary.Insertions),
			strconv.Itoa(sess.Summary.Deletions),
			stats.Sparkline(rates[sess.ID]),
		})
	}
	lines := stats.FormatTable(
		[]string{"ID", "Name", "Started", "Total min", "Active min", "Ins", "Del", "Rate"},
		rows, 3, 4, 5, 6,
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
