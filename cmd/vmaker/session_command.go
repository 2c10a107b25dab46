package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivishnuraj/vmaker/internal/sessions"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage client sessions",
	}
	sessionCmd.AddCommand(newSessionCleanupCommand(ctx))
	return sessionCmd
}

func newSessionCleanupCommand(ctx *commandContext) *cobra.Command {
	var keepClips, keepVideo bool

	cmd := &cobra.Command{
		Use:   "cleanup <session-id>",
		Short: "Delete the artifacts copied into a session",
		Long: "Delete the artifacts copied into a session.\n\n" +
			"Clips and the source video are both .mp4 files, so videos survive only when\n" +
			"--keep-clips and --keep-video are given together. Other files are always removed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			manager := sessions.NewManager(cfg.SessionsDir(), cliLogger(cmd))
			summary, err := manager.Cleanup(args[0], !keepClips, !keepVideo)
			if errors.Is(err, sessions.ErrSessionNotFound) {
				return fmt.Errorf("session %q not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Removed %d files (%s) from session %s\n",
				summary.FilesRemoved, humanize.Bytes(uint64(summary.BytesFreed)), args[0])
			if len(summary.Kept) > 0 {
				fmt.Fprintf(out, "Kept %d videos\n", len(summary.Kept))
			}
			if summary.DirRemoved {
				fmt.Fprintln(out, "Session directory removed")
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&keepClips, "keep-clips", false, "Keep .mp4 files in the session")
	cmd.Flags().BoolVar(&keepVideo, "keep-video", false, "Keep the downloaded source video")
	return cmd
}
