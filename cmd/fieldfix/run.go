package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldfix/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Rewrite matching files in place",
	Long: `Discover files below root (or [run].root of fieldfix.toml), apply every
configured rule and write changed files back. Files that fail are reported
individually; the command exits non-zero when any file failed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRewrite,
}

func init() {
	addSelectionFlags(runCmd)
	addFormatFlag(runCmd)
	runCmd.Flags().Bool("dry-run", false, "report what would change without writing")
	runCmd.Flags().Bool("diff", false, "print a line diff of every changed file")
	runCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

func runRewrite(cmd *cobra.Command, args []string) error {
	s, err := resolveRunSettings(cmd, args)
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}
	diff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	mode, err := readUIMode(uiValue)
	if err != nil {
		return err
	}

	files, err := s.listFiles(cmd.Context())
	if err != nil {
		return err
	}
	useUI := shouldUseTUI(mode, s.format == report.FormatText && !s.quiet)
	rep, err := s.execute(cmd.Context(), files, dryRun, diff, useUI)
	if err != nil {
		return err
	}

	// прогресс уже показал каждый файл, остаётся сводка
	textOpts := s.textOptions()
	if useUI {
		textOpts = report.TextOptions{Quiet: true}
	}
	if err := s.writeBatchReport(cmd.OutOrStdout(), rep, textOpts, diff); err != nil {
		return err
	}
	if rep.HasErrors() {
		return fmt.Errorf("%d of %d files failed", rep.Errored, rep.Total)
	}
	return nil
}
