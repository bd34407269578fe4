package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keytrace/internal/archive"
	"github.com/verte-zerg/keytrace/internal/config"
	"github.com/verte-zerg/keytrace/internal/eventlog"
	"github.com/verte-zerg/keytrace/internal/model"
	"github.com/verte-zerg/keytrace/internal/report"
	"github.com/verte-zerg/keytrace/internal/stats"
	"github.com/verte-zerg/keytrace/internal/statsui"
	"github.com/verte-zerg/keytrace/internal/store"
)

const plotHeight = 10

var (
	analyzeBucket       = stats.DefaultBucketWidth
	analyzeHeartbeat    = stats.DefaultHeartbeatInterval
	analyzeThreshold    = stats.DefaultActiveThreshold
	analyzeMinWordCount = stats.DefaultMinWordCount
	analyzeCSVDir       string
	analyzeNoStore      bool
	analyzeTUI          bool
)

type analyzeSettings struct {
	Config model.AnalyzeConfig
	// InferHeartbeat estimates the interval from each log instead of using Config.
	InferHeartbeat bool
	CSVDir         string
	Store          bool
	TUI            bool
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze LOG...",
		Short: "Replay capture logs and report session metrics",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyzeCmd,
	}
	cmd.Flags().DurationVar(&analyzeBucket, "bucket", stats.DefaultBucketWidth, "resampling bucket width")
	cmd.Flags().DurationVar(&analyzeHeartbeat, "heartbeat", stats.DefaultHeartbeatInterval, "heartbeat interval the logs were captured with (default: inferred from each log)")
	cmd.Flags().IntVar(&analyzeThreshold, "threshold", stats.DefaultActiveThreshold, "events above which a heartbeat window is active")
	cmd.Flags().IntVar(&analyzeMinWordCount, "min-word-count", stats.DefaultMinWordCount, "minimum occurrences for the word table")
	cmd.Flags().StringVar(&analyzeCSVDir, "csv", "", "write CSV tables to this directory")
	cmd.Flags().BoolVar(&analyzeNoStore, "no-store", false, "do not record sessions in the history")
	cmd.Flags().BoolVar(&analyzeTUI, "tui", false, "browse reports in the interactive viewer")
	return cmd
}

func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	settings := resolveAnalyzeSettings(cmd, fileCfg)
	if err := validateAnalyzeSettings(settings); err != nil {
		return err
	}
	logger, closer, err := newLogger(cmd, fileCfg)
	if err != nil {
		return err
	}
	defer closeLogger(closer)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return analyzeLogs(ctx, cmd.OutOrStdout(), args, settings, logger)
}

// resolveAnalyzeSettings merges analyze flags with the [analyze] config
// section. Flags the command does not define keep their defaults.
func resolveAnalyzeSettings(cmd *cobra.Command, fileCfg config.FileConfig) analyzeSettings {
	applyDurationConfig(cmd, "bucket", &analyzeBucket, fileCfg.Analyze.Bucket)
	applyDurationConfig(cmd, "heartbeat", &analyzeHeartbeat, fileCfg.Analyze.Heartbeat)
	applyIntConfig(cmd, "threshold", &analyzeThreshold, fileCfg.Analyze.Threshold)
	applyIntConfig(cmd, "min-word-count", &analyzeMinWordCount, fileCfg.Analyze.MinWordCount)
	applyStringConfig(cmd, "csv", &analyzeCSVDir, fileCfg.Analyze.CSVDir)
	applyNegatedBoolConfig(cmd, "no-store", &analyzeNoStore, fileCfg.Analyze.Store)

	return analyzeSettings{
		Config: model.AnalyzeConfig{
			BucketWidth:       analyzeBucket,
			HeartbeatInterval: analyzeHeartbeat,
			ActiveThreshold:   analyzeThreshold,
			MinWordCount:      analyzeMinWordCount,
		},
		InferHeartbeat: !cmd.Flags().Changed("heartbeat") && fileCfg.Analyze.Heartbeat == nil,
		CSVDir:         config.ExpandHome(analyzeCSVDir),
		Store:          !analyzeNoStore,
		TUI:            analyzeTUI,
	}
}

func validateAnalyzeSettings(s analyzeSettings) error {
	if s.Config.BucketWidth < stats.MinBucketWidth {
		return fmt.Errorf("--bucket must be at least %s", stats.MinBucketWidth)
	}
	if s.Config.HeartbeatInterval <= 0 {
		return fmt.Errorf("--heartbeat must be > 0")
	}
	if s.Config.ActiveThreshold < 0 {
		return fmt.Errorf("--threshold must be >= 0")
	}
	if s.Config.MinWordCount < 1 {
		return fmt.Errorf("--min-word-count must be >= 1")
	}
	return nil
}

// analyzeLogs replays and reports each file independently. A failing file is
// reported on stderr and the remaining files are still processed.
func analyzeLogs(ctx context.Context, out io.Writer, paths []string, s analyzeSettings, logger *slog.Logger) error {
	sinks := make([]report.Sink, 0, 3)
	if !s.TUI {
		sinks = append(sinks, report.TextSink{W: out, Height: plotHeight})
	}
	if s.CSVDir != "" {
		sinks = append(sinks, report.CSVSink{Dir: s.CSVDir})
	}
	if s.Store {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer closeStore(st)
		sinks = append(sinks, storeSink(st, logger))
	}
	sink := report.Multi(sinks...)

	var reports []model.Report
	failed := 0
	for _, path := range paths {
		rep, err := analyzeFile(path, s.Config, s.InferHeartbeat)
		if err == nil {
			err = sink.Write(ctx, rep)
		}
		if err != nil {
			failed++
			logger.Error("analysis failed", "path", path, "err", err)
			logErrf("%s: %v\n", path, err)
			continue
		}
		if rep.Series.Width > s.Config.BucketWidth {
			logErrf("%s: session too long for %s buckets, using %s\n", path, s.Config.BucketWidth, rep.Series.Width)
		}
		logger.Info("session analyzed", "path", path, "name", rep.Name, "insertions", rep.Summary.Insertions, "bucket", rep.Series.Width)
		reports = append(reports, rep)
	}

	if s.TUI && len(reports) > 0 {
		program := tea.NewProgram(statsui.NewModel(reports), tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run stats TUI: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d logs failed", failed, len(paths))
	}
	return nil
}

// analyzeFile replays one log. The stored log path is absolute so that
// re-analyzing the same file replaces its history entry.
func analyzeFile(path string, cfg model.AnalyzeConfig, inferHeartbeat bool) (model.Report, error) {
	events, err := eventlog.LoadFile(path)
	if err != nil {
		return model.Report{}, err
	}
	if inferHeartbeat {
		if interval, ok := stats.InferHeartbeatInterval(events); ok {
			cfg.HeartbeatInterval = interval
		}
	}
	rep := stats.Analyze(events, cfg)
	rep.Name = sessionName(path)
	rep.LogPath = path
	if abs, err := filepath.Abs(path); err == nil {
		rep.LogPath = abs
	}
	return rep, nil
}

// sessionName derives the session name from a log path, dropping the log
// and archive extensions.
func sessionName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, archive.Ext)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func storeSink(st *store.Store, logger *slog.Logger) report.Sink {
	return report.StoreSink{
		Store: st,
		OnStored: func(id string) {
			logger.Debug("session stored", "id", id)
		},
	}
}
