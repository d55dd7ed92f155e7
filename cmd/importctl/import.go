package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockimport/internal/batch"
	"github.com/JonMunkholm/stockimport/internal/core"
)

// importFlags are shared by import and batch.
type importFlags struct {
	overwrite    bool
	validateOnly bool
	timeout      time.Duration
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.overwrite, "overwrite", false, "Update entities that already exist instead of skipping them")
	cmd.Flags().BoolVar(&f.validateOnly, "validate-only", false, "Validate every row without writing anything")
	cmd.Flags().DurationVar(&f.timeout, "timeout", batch.DefaultTimeout, "Maximum duration of a single file import")
}

func (f *importFlags) options() core.Options {
	return core.Options{Overwrite: f.overwrite, ValidateOnly: f.validateOnly}
}

func newImportCmd(c *cli) *cobra.Command {
	var (
		flags     importFlags
		errorsOut string
	)

	cmd := &cobra.Command{
		Use:   "import <type> <file>",
		Short: "Import a single CSV or XLSX file",
		Long: `Import one file and wait for the job to finish. Row errors do not stop the
import; use --errors to write them to a CSV for correction and re-upload.
The command fails when the job fails as a whole.`,
		Example: `
  importctl import providers ./proveedores.csv
  importctl import movements ./ajustes.xlsx --errors ./errores.csv
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.openApp(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			fr := batch.ImportFile(cmd.Context(), app.Service, c.tenant, args[0], args[1], flags.options(), flags.timeout)
			printFileResult(cmd.OutOrStdout(), fr)

			if errorsOut != "" && fr.JobID != "" && fr.Errors > 0 {
				if err := writeErrorsFile(cmd, app.Service, fr.JobID, errorsOut); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Row errors written to %s\n", errorsOut)
			}

			if fr.Failed() {
				return importError(fr)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&errorsOut, "errors", "", "Write row errors to this CSV file")
	return cmd
}

func writeErrorsFile(cmd *cobra.Command, svc *core.Service, jobID, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := svc.WriteErrorsCSV(cmd.Context(), jobID, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// importError turns a failed file into a user facing error.
func importError(fr batch.FileResult) error {
	switch {
	case fr.Err == nil:
		return fmt.Errorf("import %s", fr.Status)
	case core.IsUserFacing(fr.Err):
		return errors.New(core.FormatUserError(fr.Err))
	default:
		return fr.Err
	}
}

func printFileResult(w io.Writer, fr batch.FileResult) {
	if fr.JobID == "" {
		fmt.Fprintf(w, "%-10s %s: not started\n", fr.ImportType, fr.Path)
		return
	}
	fmt.Fprintf(w, "%-10s %s: %s (job %s) ok: %d, errors: %d, skipped: %d\n",
		fr.ImportType, fr.Path, fr.Status, fr.JobID, fr.Success, fr.Errors, fr.Skipped)
}
