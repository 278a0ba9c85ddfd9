package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fieldfix/internal/config"
	"fieldfix/internal/report"
)

type ruleInfo struct {
	Name        string      `json:"name" yaml:"name"`
	Shape       string      `json:"shape" yaml:"shape"`
	Marker      string      `json:"marker" yaml:"marker"`
	Fields      []fieldInfo `json:"fields" yaml:"fields"`
	Fingerprint string      `json:"fingerprint" yaml:"fingerprint"`
}

type fieldInfo struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the configured rewrite rules",
	Args:  cobra.NoArgs,
	RunE:  runRules,
}

func init() {
	addFormatFlag(rulesCmd)
}

func runRules(cmd *cobra.Command, _ []string) error {
	manifest, err := loadManifest(cmd, ".")
	if err != nil {
		return err
	}
	var cfg config.Config
	if manifest != nil {
		cfg = manifest.Config
	}
	rules, err := selectRules(cfg, nil)
	if err != nil {
		return err
	}

	infos := make([]ruleInfo, len(rules))
	for i, r := range rules {
		spec := r.Spec()
		info := ruleInfo{
			Name:        spec.Name,
			Shape:       spec.Shape.String(),
			Marker:      spec.Marker,
			Fields:      make([]fieldInfo, len(spec.Fields)),
			Fingerprint: r.Fingerprint(),
		}
		for j, f := range spec.Fields {
			info.Fields[j] = fieldInfo{Name: f.Name, Value: f.Value}
		}
		infos[i] = info
	}

	raw, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(raw)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if format != report.FormatText {
		return report.Write(out, format, infos)
	}
	for _, info := range infos {
		fmt.Fprintf(out, "%s  %s\n", info.Name, info.Shape)
		fmt.Fprintf(out, "  marker: %s\n", info.Marker)
		for _, f := range info.Fields {
			fmt.Fprintf(out, "  + %s: %s\n", f.Name, f.Value)
		}
	}
	return nil
}
