// Command gatewaycore runs and inspects the provider scheduling core.
package main

import (
	"fmt"
	"os"

	// Register built-in notification sinks so they can be loaded from config.
	_ "github.com/ferro-labs/gateway-core/internal/sinks/logsink"
	_ "github.com/ferro-labs/gateway-core/internal/sinks/redissink"
	_ "github.com/ferro-labs/gateway-core/internal/sinks/sqlsink"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
