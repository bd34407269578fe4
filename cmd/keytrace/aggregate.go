package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/keytrace/internal/aggregate"
	"github.com/verte-zerg/keytrace/internal/config"
	"github.com/verte-zerg/keytrace/internal/model"
)

var (
	aggregateClient        string
	aggregateDate          string
	aggregateAudio         string
	aggregateFormat        string
	aggregateNoise         int
	aggregateInterruptions int
	aggregateComplexity    int
	aggregateName          string
	aggregateSince         string
	aggregateLast          int
	aggregateCSVDir        string
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Combine stored sessions of one meeting",
		Args:  cobra.NoArgs,
		RunE:  runAggregateCmd,
	}
	cmd.Flags().StringVar(&aggregateClient, "client", "", "client code")
	cmd.Flags().StringVar(&aggregateDate, "date", "", "meeting date")
	cmd.Flags().StringVar(&aggregateAudio, "audio", "", "audio duration (HH:MM)")
	cmd.Flags().StringVar(&aggregateFormat, "format", "", "deliverable format (SYB, SYD, CRS)")
	cmd.Flags().IntVar(&aggregateNoise, "noise", 0, "noise score (0-10)")
	cmd.Flags().IntVar(&aggregateInterruptions, "interruptions", 0, "interruptions score (0-10)")
	cmd.Flags().IntVar(&aggregateComplexity, "complexity", 0, "complexity score (0-10)")
	cmd.Flags().StringVar(&aggregateName, "name", "", "session name prefix (default: client code)")
	cmd.Flags().StringVar(&aggregateSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&aggregateLast, "last", 0, "limit to last N sessions")
	cmd.Flags().StringVar(&aggregateCSVDir, "csv", "", "write the merged and pivot tables to this directory")
	for _, name := range []string{"client", "date", "audio", "format"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runAggregateCmd(cmd *cobra.Command, _ []string) error {
	since, err := parseSince(aggregateSince)
	if err != nil {
		return err
	}
	meta := aggregate.Metadata{
		Client:        aggregateClient,
		Date:          aggregateDate,
		AudioDuration: aggregateAudio,
		Format:        aggregate.Format(aggregateFormat),
	}
	scores := aggregate.Scores{
		Noise:         aggregateNoise,
		Interruptions: aggregateInterruptions,
		Complexity:    aggregateComplexity,
	}
	if err := meta.Validate(); err != nil {
		return err
	}
	if err := scores.Validate(); err != nil {
		return err
	}

	prefix := aggregateName
	if prefix == "" {
		prefix = aggregateClient
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
	sessions, err := st.ListSessions(ctx, model.HistoryFilter{Name: prefix, Since: since, Last: aggregateLast})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		logErrf("No stored sessions match %q.\n", prefix)
	}

	res, err := aggregate.Build(meta, scores, sessions)
	if err != nil {
		return err
	}
	if err := aggregate.RenderText(cmd.OutOrStdout(), res); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if aggregateCSVDir == "" {
		return nil
	}
	paths, err := aggregate.WriteCSV(config.ExpandHome(aggregateCSVDir), res, time.Now())
	if err != nil {
		return err
	}
	for _, path := range paths {
		logErrf("Wrote %s\n", path)
	}
	return nil
}
