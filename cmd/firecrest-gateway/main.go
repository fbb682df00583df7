// Command firecrest-gateway is the HTTP server binary: it loads the YAML
// settings file, wires every internal package into a gateway.Server, and
// serves the API under apisRootPath until terminated. The CLI follows a
// cobra root-plus-subcommand shape with signal-driven graceful shutdown,
// also used by cmd/streamer-agent.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.WithField("component", "firecrest-gateway")

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "firecrest-gateway",
	Short:   "FirecREST v2 HTTP gateway",
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("firecrest-gateway %s (%s)\n", version, commit))
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateConfigCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	asJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
	if asJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
