package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockimport/internal/batch"
)

func newBatchCmd(c *cli) *cobra.Command {
	var (
		flags      importFlags
		archiveDir string
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Import every file in a directory tree",
		Long: `Import the CSV and XLSX files found in <dir>/providers, <dir>/products and
<dir>/movements, in that order, one file at a time. Other directories are
ignored with a warning. Failed files are reported and the batch continues.`,
		Example: `
  importctl batch ./inbox
  importctl batch ./inbox --archive ./done --overwrite
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			result, err := batch.Run(cmd.Context(), app.Service, args[0], batch.Options{
				Tenant:     c.tenant,
				Import:     flags.options(),
				Timeout:    flags.timeout,
				ArchiveDir: archiveDir,
				OnFile: func(fr batch.FileResult) {
					printFileResult(out, fr)
					if fr.Err != nil {
						fmt.Fprintf(out, "  error: %v\n", fr.Err)
					}
				},
			})
			if err != nil {
				return err
			}

			success, errs, skipped := result.Totals()
			fmt.Fprintf(out, "Batch completed. Files: %d, Failed: %d, Rows ok: %d, Row errors: %d, Skipped: %d\n",
				len(result.Files), result.Failed(), success, errs, skipped)

			if n := result.Failed(); n > 0 {
				return fmt.Errorf("%d of %d files failed", n, len(result.Files))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&archiveDir, "archive", "", "Move imported files into this directory")
	return cmd
}
