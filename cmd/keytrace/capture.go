package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/keytrace/internal/capture"
	"github.com/verte-zerg/keytrace/internal/config"
	"github.com/verte-zerg/keytrace/internal/tui"
)

var (
	captureName      string
	captureDir       string
	captureHeartbeat = capture.DefaultHeartbeatInterval
	captureStopCode  string
	captureNoAnalyze bool
)

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a capture session",
		Args:  cobra.NoArgs,
		RunE:  runCaptureCmd,
	}
	addCaptureFlags(cmd)
	return cmd
}

func addCaptureFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&captureName, "name", "", "session name (prompted when empty)")
	cmd.Flags().StringVar(&captureDir, "dir", "", "log directory (default: XDG data dir)")
	cmd.Flags().DurationVar(&captureHeartbeat, "heartbeat", capture.DefaultHeartbeatInterval, "heartbeat interval")
	cmd.Flags().StringVar(&captureStopCode, "stop-code", "", "code required to stop the capture")
	cmd.Flags().BoolVar(&captureNoAnalyze, "no-analyze", false, "skip analysis after the capture stops")
}

func runCaptureCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "dir", &captureDir, fileCfg.Capture.Dir)
	applyDurationConfig(cmd, "heartbeat", &captureHeartbeat, fileCfg.Capture.Heartbeat)
	applyStringConfig(cmd, "stop-code", &captureStopCode, fileCfg.Capture.StopCode)
	applyNegatedBoolConfig(cmd, "no-analyze", &captureNoAnalyze, fileCfg.Capture.Analyze)

	if captureHeartbeat <= 0 {
		return fmt.Errorf("--heartbeat must be > 0")
	}
	dir := config.ExpandHome(captureDir)
	if dir == "" {
		dir = config.DefaultLogDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	for _, combo := range capture.UnreachableHotkeys(fileCfg.Capture.Hotkeys) {
		alias, _ := capture.TerminalAlias(combo)
		logErrf("hotkey %s is ignored: terminals send it as %s\n", combo, alias)
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

	var session *capture.Session
	start := func(name string) (tui.Recorder, error) {
		s, err := capture.Start(ctx, capture.Options{
			Name:              name,
			Dir:               dir,
			HeartbeatInterval: captureHeartbeat,
			Hotkeys:           fileCfg.Capture.Hotkeys,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		session = s
		return s, nil
	}
	defer func() {
		if session != nil {
			if cerr := session.Close(); cerr != nil {
				logger.Warn("capture teardown failed", "err", cerr)
			}
		}
	}()

	m, err := tui.NewModel(tui.Options{
		Name:     captureName,
		StopCode: captureStopCode,
		Start:    start,
	})
	if err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	program := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	outcome := m.Outcome()
	if outcome.Err != nil {
		return fmt.Errorf("capture failed: %w", outcome.Err)
	}
	if session == nil {
		return nil
	}
	if !outcome.Stopped {
		logErrln("Capture aborted without a stop marker.")
	}
	logErrf("Log written to %s (%s)\n", session.Path(), time.Since(session.StartedAt()).Round(time.Second))
	if captureNoAnalyze {
		return nil
	}

	settings := resolveAnalyzeSettings(cmd, fileCfg)
	if fileCfg.Analyze.Heartbeat == nil {
		settings.Config.HeartbeatInterval = captureHeartbeat
	}
	settings.InferHeartbeat = false
	return analyzeLogs(ctx, cmd.OutOrStdout(), []string{session.Path()}, settings, logger)
}
