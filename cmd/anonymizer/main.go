package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// options holds the flags shared by every command
type options struct {
	driver    string
	host      string
	user      string
	password  string
	database  string
	port      string
	dataDir   string
	envFile   string
	logLevel  string
	runConfig string
	bundle    string
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "anonymizer",
		Short: "A tool to anonymize tabular datasets before they are shared",
		Long: `Data Anonymizer

A Go tool that masks a MySQL or PostgreSQL database, or a directory of CSV tables,
inside an isolated working copy: it imputes missing values, applies an ordered plan of
masking transforms to all rows or a random selection of them, and reports the
re-identification risk and the utility lost by masking.`,
		SilenceUsage: true,
	}

	// Define flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.driver, "driver", "D", "", "Database driver: mysql or postgres (default: mysql)")
	flags.StringVarP(&opts.host, "host", "H", "", "Database host (default: localhost)")
	flags.StringVarP(&opts.user, "user", "u", "", "Database user")
	flags.StringVarP(&opts.password, "password", "p", "", "Database password")
	flags.StringVarP(&opts.database, "database", "d", "", "Database name")
	flags.StringVarP(&opts.port, "port", "P", "", "Database port (default: 3306 or 5432)")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory of CSV tables to use instead of a database")
	flags.StringVarP(&opts.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&opts.runConfig, "run-config", "c", "", "Path to the run configuration file")
	flags.StringVarP(&opts.bundle, "bundle", "b", "", "Path to the preparation and transform bundle (default: from run config)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newAnalyzeCmd(opts),
		newSynthCmd(opts),
		newRevertCmd(opts),
		newPlanCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Execute
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}
