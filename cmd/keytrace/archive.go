package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/keytrace/internal/archive"
)

var (
	archiveDir    string
	archiveRemove bool
)

func newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive LOG...",
		Short: "Compress finished capture logs",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runArchiveCmd,
	}
	cmd.Flags().StringVar(&archiveDir, "dir", "", "archive directory (default: next to each log)")
	cmd.Flags().BoolVar(&archiveRemove, "remove", false, "remove each log after it is archived")
	return cmd
}

func runArchiveCmd(_ *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		dest, err := archiveLog(path, archiveDir, archiveRemove)
		if err != nil {
			failed++
			logErrf("%s: %v\n", path, err)
			continue
		}
		logErrf("Archived %s -> %s\n", path, dest)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d logs failed", failed, len(args))
	}
	return nil
}

func archiveLog(path, dir string, remove bool) (string, error) {
	if archive.IsArchive(path) {
		return "", fmt.Errorf("already archived")
	}
	dest, err := archive.Archive(path, dir)
	if err != nil {
		return "", err
	}
	if remove {
		if err := os.Remove(path); err != nil {
			return dest, fmt.Errorf("failed to remove log: %w", err)
		}
	}
	return dest, nil
}
