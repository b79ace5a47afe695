package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	gatewaycore "github.com/ferro-labs/gateway-core"
	"github.com/ferro-labs/gateway-core/internal/logging"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatewaycore",
		Short:         "Provider catalog polling, health and admission control",
		Long:          "gatewaycore polls LLM provider catalogs on a schedule, tracks provider health and guards every upstream call with rate limits and circuit breakers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			logging.SetupWriter(cmd.ErrOrStderr(), level, format)
		},
	}

	root.PersistentFlags().StringP("config", "c", os.Getenv("GATEWAY_CONFIG"), "path to config file (JSON or YAML), defaults to $GATEWAY_CONFIG")
	root.PersistentFlags().String("log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", envOr("LOG_FORMAT", "json"), "log format: json or text")

	root.AddCommand(
		newServeCmd(),
		newValidateCmd(),
		newCheckCmd(),
		newSinksCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads and validates the config named by an argument or the
// --config flag.
func loadConfig(cmd *cobra.Command, args []string) (*gatewaycore.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return nil, errors.New("no config file: pass --config or set GATEWAY_CONFIG")
	}
	cfg, err := gatewaycore.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := gatewaycore.ValidateConfig(*cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
