package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"fieldfix/internal/report"
	"fieldfix/internal/version"
)

type versionPayload struct {
	Tool      string `json:"tool" yaml:"tool"`
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show fieldfix build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, err := cmd.Flags().GetString("format")
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(raw)
		if err != nil {
			return err
		}
		payload := collectVersion()
		if format != report.FormatText {
			return report.Write(cmd.OutOrStdout(), format, payload)
		}
		renderVersionText(cmd.OutOrStdout(), payload)
		return nil
	},
}

func init() {
	addFormatFlag(versionCmd)
}

func collectVersion() versionPayload {
	return versionPayload{
		Tool:      appName,
		Version:   version.Plain(),
		GitCommit: strings.TrimSpace(version.GitCommit),
		BuildDate: strings.TrimSpace(version.BuildDate),
	}
}

func renderVersionText(out io.Writer, p versionPayload) {
	fmt.Fprintf(out, "%s %s\n", p.Tool, version.Colored())
	if p.GitCommit != "" {
		fmt.Fprintf(out, "commit: %s\n", p.GitCommit)
	}
	if p.BuildDate != "" {
		fmt.Fprintf(out, "built:  %s\n", p.BuildDate)
	}
}
