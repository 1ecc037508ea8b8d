package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jasonkenneth/NServiceBus.RabbitMQ/configuration"
	"github.com/jasonkenneth/NServiceBus.RabbitMQ/topology"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "transport-check",
		Short: "Inspect RabbitMQ transport settings offline",
		Long: `transport-check resolves transport connection strings and previews
routing decisions without touching a broker. Useful for validating endpoint
configuration in CI before deployment.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
	}

	// Global flags
	var (
		endpointName string
		verbose      bool
	)

	rootCmd.PersistentFlags().StringVarP(&endpointName, "endpoint", "e", "transport-check", "Endpoint name used for client properties")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Validate command
	validateCmd := &cobra.Command{
		Use:   "validate <connection-string>",
		Short: "Resolve a connection string and print the effective settings",
		Long:  "Resolves the given connection string, applying defaults, and prints every effective setting. All validation problems are reported together.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

			cfg, err := configuration.Resolve(args[0], endpointName, configuration.WithLogger(logger))
			if err != nil {
				var verr *configuration.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(os.Stderr, "Connection string is invalid (%d problems):\n", len(verr.Messages))
					for _, msg := range verr.Messages {
						fmt.Fprintf(os.Stderr, "  - %s\n", msg)
					}
					os.Exit(1)
				}
				return err
			}

			printConfiguration(cfg, verbose)
			return nil
		},
	}

	// Delay command
	delayCmd := &cobra.Command{
		Use:   "delay",
		Short: "Preview delayed delivery routing",
	}

	var delayStr string
	delayKeyCmd := &cobra.Command{
		Use:   "key <destination-address>",
		Short: "Show the routing key and entry exchange for a delayed send",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := time.ParseDuration(delayStr)
			if err != nil {
				return fmt.Errorf("invalid delay %q: %w", delayStr, err)
			}

			key, level := topology.DelayRoutingKey(delay, args[0])
			fmt.Printf("Destination:    %s\n", args[0])
			fmt.Printf("Delay:          %s (max %s)\n", delay, topology.MaxDelay)
			fmt.Printf("Entry exchange: %s\n", topology.DelayEntryExchange(level))
			fmt.Printf("Routing key:    %s\n", key)
			return nil
		},
	}
	delayKeyCmd.Flags().StringVarP(&delayStr, "delay", "d", "30s", "Delay duration (Go syntax, e.g. 90s, 15m, 2h)")

	delayCmd.AddCommand(delayKeyCmd)

	rootCmd.AddCommand(validateCmd, delayCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func printConfiguration(cfg *configuration.ConnectionConfiguration, verbose bool) {
	fmt.Println("Connection string is valid")
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("%-22s %s\n", "Host:", cfg.Host)
	fmt.Printf("%-22s %d\n", "Port:", cfg.Port)
	fmt.Printf("%-22s %s\n", "Virtual host:", cfg.VirtualHost)
	fmt.Printf("%-22s %s\n", "User name:", cfg.UserName)
	fmt.Printf("%-22s %s\n", "TLS:", onOff(cfg.UseTLS))
	fmt.Printf("%-22s %s\n", "Requested heartbeat:", cfg.Heartbeat())
	fmt.Printf("%-22s %s\n", "Retry delay:", cfg.RetryDelay)
	if cfg.CertPath != "" {
		fmt.Printf("%-22s %s\n", "Client certificate:", cfg.CertPath)
	}

	if verbose {
		fmt.Println("\nClient properties:")
		for k, v := range cfg.ClientProperties {
			fmt.Printf("  %s: %v\n", k, v)
		}
		fmt.Printf("\nBroker URI: %s\n", cfg.URI())
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
