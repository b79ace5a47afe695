package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	gatewaycore "github.com/ferro-labs/gateway-core"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config-file]",
		Short: "Validate a configuration file",
		Long:  "Load a JSON or YAML configuration, check it against the schema and the semantic rules, and print a summary.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintln(out, "✓ Config is valid")
	_, _ = fmt.Fprintf(out, "  Providers: %d\n", len(cfg.Providers))
	for _, p := range cfg.Providers {
		_, _ = fmt.Fprintf(out, "    %-20s kind=%s %s\n", p.Name, p.Kind, providerSummary(p))
	}
	if len(cfg.Notifications) > 0 {
		var sinks []string
		for _, n := range cfg.Notifications {
			status := "disabled"
			if n.Enabled {
				status = "enabled"
			}
			sinks = append(sinks, fmt.Sprintf("%s (%s)", n.Name, status))
		}
		_, _ = fmt.Fprintf(out, "  Sinks:     %s\n", strings.Join(sinks, ", "))
	}
	_, _ = fmt.Fprintf(out, "  Admin tokens: %d\n", len(cfg.Admin.Tokens))
	return nil
}

func providerSummary(p gatewaycore.ProviderConfig) string {
	var parts []string
	if !p.IsEnabled() {
		parts = append(parts, "disabled")
	}
	if p.PollingInterval != "" {
		parts = append(parts, "every "+p.PollingInterval)
	}
	if p.Priority != 0 {
		parts = append(parts, fmt.Sprintf("priority=%d", p.Priority))
	}
	if rl := p.RateLimit; rl != nil {
		parts = append(parts, fmt.Sprintf("rpm=%d tpm=%d concurrent=%d", rl.RequestsPerMinute, rl.TokensPerMinute, rl.ConcurrentRequests))
	}
	return strings.Join(parts, " ")
}
