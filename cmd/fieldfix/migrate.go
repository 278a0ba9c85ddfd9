package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldfix/internal/batch"
	"fieldfix/internal/config"
	"fieldfix/internal/migrate"
	"fieldfix/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [root]",
	Short: "Apply the one-off insertId patch table",
	Long: `Apply the built-in insertId patches plus any [[patch]] entries of
fieldfix.toml. Paths are relative to root. Files that need a manual edit are
listed but never touched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	addFormatFlag(migrateCmd)
	migrateCmd.Flags().Bool("dry-run", false, "report what would change without writing")
	migrateCmd.Flags().Bool("diff", false, "print a line diff of every patched file")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	start := "."
	if len(args) > 0 {
		start = args[0]
	}
	manifest, err := loadManifest(cmd, start)
	if err != nil {
		return err
	}
	root := start
	var cfg config.Config
	if manifest != nil {
		cfg = manifest.Config
		if len(args) == 0 {
			root = manifest.RunRoot()
		}
	}

	var (
		format           report.Format
		quiet, timings   bool
		dryRun, showDiff bool
	)
	if err := readOutputFlags(cmd, &format, &quiet, &timings); err != nil {
		return err
	}
	if dryRun, err = cmd.Flags().GetBool("dry-run"); err != nil {
		return err
	}
	if showDiff, err = cmd.Flags().GetBool("diff"); err != nil {
		return err
	}

	table := cfg.PatchTable()
	runner := migrate.Runner{
		FS:      batch.OSFileSystem{},
		Logger:  logger,
		DryRun:  dryRun,
		Preview: showDiff,
	}
	rep, err := runner.Run(cmd.Context(), root, table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format != report.FormatText {
		if err := report.Write(out, format, rep); err != nil {
			return err
		}
	} else {
		if showDiff {
			for _, f := range rep.Files {
				if !f.Changed {
					continue
				}
				if err := report.WriteDiff(out, f.Path, f.Before, f.After); err != nil {
					return err
				}
			}
		}
		if err := report.WriteMigrationText(out, rep, quiet); err != nil {
			return err
		}
	}
	if rep.HasErrors() {
		return fmt.Errorf("%d files could not be patched", rep.Errored)
	}
	return nil
}
