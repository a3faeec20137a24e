// specs runs a small shop catalogue through query specifications on both
// backends.
//
// Usage:
//
//	specs run [--backend=memory|sqlite] [--spec=<name>] [--dsn=<dsn>] [--verbose]
//	specs compare [--dsn=<dsn>] [--verbose]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootFlags struct {
	dsn     string
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "specs",
	Short: "Run query specifications against in-memory and SQLite backends",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.dsn, "dsn", ":memory:", "SQLite data source name")
	f.BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log generated SQL and execution events")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(compareCmd)
}

func newLogger() (*zap.Logger, error) {
	if !rootFlags.verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
