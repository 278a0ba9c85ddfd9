package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errWouldChange = errors.New("files would change")

var checkCmd = &cobra.Command{
	Use:   "check [root]",
	Short: "Fail when any file would be rewritten",
	Long:  "Dry run of `run` for CI: nothing is written, and the exit status is 1 when a file would change or could not be processed.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCheck,
}

func init() {
	addSelectionFlags(checkCmd)
	addFormatFlag(checkCmd)
	checkCmd.Flags().Bool("diff", false, "print a line diff of every file that would change")
}

func runCheck(cmd *cobra.Command, args []string) error {
	s, err := resolveRunSettings(cmd, args)
	if err != nil {
		return err
	}
	diff, err := cmd.Flags().GetBool("diff")
	if err != nil {
		return err
	}
	files, err := s.listFiles(cmd.Context())
	if err != nil {
		return err
	}
	rep, err := s.execute(cmd.Context(), files, true, diff, false)
	if err != nil {
		return err
	}
	if err := s.writeBatchReport(cmd.OutOrStdout(), rep, s.textOptions(), diff); err != nil {
		return err
	}
	switch {
	case rep.HasErrors():
		return fmt.Errorf("%d of %d files failed", rep.Errored, rep.Total)
	case rep.Fixed > 0:
		return fmt.Errorf("%d of %d %w", rep.Fixed, rep.Total, errWouldChange)
	}
	return nil
}
