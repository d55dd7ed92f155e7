package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockimport/internal/core"
)

func newPruneCmd(c *cli) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished jobs and audit entries past retention",
		Long: `Run one retention sweep over the configured stores. Imported products,
providers and movements are never deleted. Without --older-than the
IMPORT_HISTORY_RETENTION setting applies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			rc := c.cfg.RetentionConfig()
			if olderThan > 0 {
				rc.MaxAge = olderThan
			}

			n := core.SweepNow(cmd.Context(), rc, app.Sweepers)
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records older than %s\n", n, rc.MaxAge)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove records finished before this long ago")
	return cmd
}
