package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fieldfix/internal/prof"
)

var (
	// logger is replaced in setupRoot; commands never see a nil logger.
	logger = zap.NewNop()

	profiling *prof.Session
)

func setupRoot(cmd *cobra.Command, _ []string) error {
	flags := cmd.Root().PersistentFlags()
	colorMode, err := flags.GetString("color")
	if err != nil {
		return err
	}
	if err := applyColorMode(colorMode); err != nil {
		return err
	}
	level, err := flags.GetString("log-level")
	if err != nil {
		return err
	}
	asJSON, err := flags.GetBool("log-json")
	if err != nil {
		return err
	}
	l, err := newLogger(level, asJSON)
	if err != nil {
		return err
	}
	logger = l

	opts, err := readProfileFlags(cmd)
	if err != nil {
		return err
	}
	if opts.Enabled() {
		if profiling, err = prof.Start(opts); err != nil {
			return err
		}
	}
	return nil
}

func readProfileFlags(cmd *cobra.Command) (prof.Options, error) {
	flags := cmd.Root().PersistentFlags()
	var opts prof.Options
	var err error
	if opts.CPU, err = flags.GetString("cpu-profile"); err != nil {
		return opts, err
	}
	if opts.Mem, err = flags.GetString("mem-profile"); err != nil {
		return opts, err
	}
	opts.Trace, err = flags.GetString("runtime-trace")
	return opts, err
}

func applyColorMode(mode string) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		// fatih/color сам смотрит на NO_COLOR и tty
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

func newLogger(level string, asJSON bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if !asJSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if !color.NoColor && isTerminal(os.Stderr) {
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	return cfg.Build()
}

// teardown stops profilers and flushes the logger. It runs after every
// command, failed ones included, and may run twice.
func teardown() {
	if err := profiling.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write profiles: %v\n", err)
	}
	// Sync на stderr терминала возвращает EINVAL, игнорируем
	_ = logger.Sync()
}
