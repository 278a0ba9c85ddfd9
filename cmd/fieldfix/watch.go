package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fieldfix/internal/report"
	"fieldfix/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Rewrite matching files whenever they are saved",
	Long: `Run once over root, then keep watching it and re-apply the rules to every
matching file that is created or written. Stop with Ctrl+C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	addSelectionFlags(watchCmd)
	watchCmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before a changed file is processed")
}

func runWatch(cmd *cobra.Command, args []string) error {
	s, err := resolveRunSettings(cmd, args)
	if err != nil {
		return err
	}
	debounce, err := cmd.Flags().GetDuration("debounce")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files, err := s.listFiles(ctx)
	if err != nil {
		return err
	}
	rep, err := s.execute(ctx, files, false, false, false)
	if err != nil {
		return err
	}
	if err := report.WriteText(out, rep, s.textOptions()); err != nil {
		return err
	}

	// повторная запись собственных правок даёт пустой прогон, правила идемпотентны
	handler := func(ctx context.Context, paths []string) {
		rep, err := s.execute(ctx, paths, false, false, false)
		if err != nil {
			logger.Error("watch batch failed", zap.Error(err))
			return
		}
		if rep.Fixed == 0 && rep.Errored == 0 {
			return
		}
		if err := report.WriteText(out, rep, s.textOptions()); err != nil {
			logger.Warn("report not written", zap.Error(err))
		}
	}
	w, err := watch.New(watch.Options{
		Matcher:  s.matcher,
		Debounce: debounce,
		Logger:   logger,
		Handler:  handler,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s (%s), press Ctrl+C to stop\n", s.matcher.Root, s.matcher.Pattern)
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
