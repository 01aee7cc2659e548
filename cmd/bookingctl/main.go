// Command bookingctl is the operator tool for the booking service: schema
// migrations, reconciliation sweeps, Kafka topics and boarding pass reprints.
package main

import (
	"fmt"
	"os"

	"airline-booking/internal/config"
	"airline-booking/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "bookingctl",
		Short:        "Operate the airline booking service",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(topicsCmd())
	rootCmd.AddCommand(boardingPassCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *logger.Logger) {
	return config.Load(), logger.NewLogger("bookingctl")
}
