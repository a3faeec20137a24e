package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asaidimu/go-specs/sqlite"
	"github.com/spf13/cobra"
)

var runFlags struct {
	backend string
	spec    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a named specification and print the results as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, ok := specifications()[runFlags.spec]
		if !ok {
			return fmt.Errorf("unknown specification %q (have %s)", runFlags.spec, strings.Join(specNames(), ", "))
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		var shop *sqlite.Provider
		if runFlags.backend == "sqlite" {
			p, closeDB, err := openShop(ctx, rootFlags.dsn, logger)
			if err != nil {
				return err
			}
			defer closeDB()
			shop = p
		}

		orders, err := runSpec(ctx, runFlags.backend, s, shop, logger)
		if err != nil {
			return fmt.Errorf("%s: %w", runFlags.spec, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(orders)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.backend, "backend", "memory", "Backend to run against (memory, sqlite)")
	f.StringVar(&runFlags.spec, "spec", "all", "Named specification to run")
}
