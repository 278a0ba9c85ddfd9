package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"fieldfix/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "fieldfix",
	Short: "Inject missing fields into call-like fragments across a source tree",
	Long: `fieldfix finds balanced call-like fragments (such as insert(...).values({...}))
in matching files and appends missing field assignments, leaving already
complete fragments byte-identical.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRoot,
	PersistentPostRun: func(*cobra.Command, []string) { teardown() },
}

func init() {
	rootCmd.Version = version.Plain()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(versionCmd)

	// Глобальные флаги
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "print only the summary")
	rootCmd.PersistentFlags().Bool("timings", false, "show timing information")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	rootCmd.PersistentFlags().String("config", "", "path to fieldfix.toml (default: search upwards)")
	rootCmd.PersistentFlags().String("cpu-profile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("mem-profile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a runtime trace to file")
}

// main executes the root command. Any returned error exits with status 1.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	// PersistentPostRun не вызывается, если команда вернула ошибку
	teardown()
	if err != nil {
		os.Exit(1)
	}
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
