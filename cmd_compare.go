package main

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run every named specification on both backends and diff the results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		shop, closeDB, err := openShop(ctx, rootFlags.dsn, logger)
		if err != nil {
			return err
		}
		defer closeDB()

		out := cmd.OutOrStdout()
		specs := specifications()
		mismatches := 0
		for _, name := range specNames() {
			var fromMemory, fromSQLite []Order
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				fromMemory, err = runSpec(gctx, "memory", specs[name], nil, logger)
				return err
			})
			g.Go(func() error {
				var err error
				fromSQLite, err = runSpec(gctx, "sqlite", specs[name], shop, logger)
				return err
			})
			if err := g.Wait(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}

			if diff := cmp.Diff(fromMemory, fromSQLite, cmpopts.EquateEmpty()); diff != "" {
				mismatches++
				fmt.Fprintf(out, "%-10s MISMATCH (-memory +sqlite):\n%s\n", name, diff)
				continue
			}
			fmt.Fprintf(out, "%-10s ok (%d rows)\n", name, len(fromMemory))
		}

		if mismatches > 0 {
			return fmt.Errorf("%d of %d specifications differ between backends", mismatches, len(specs))
		}
		return nil
	},
}
