package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockimport/internal/application"
)

func newTypesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List import types and the headers each accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := application.LoadRegistry(c.cfg.Headers.AliasFile)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range reg.Types() {
				fmt.Fprintf(tw, "%s\t%s\tcomplexity: %s\n", t.Key, t.Label, t.Complexity)
				for _, f := range t.Fields {
					required := ""
					if f.Required {
						required = "required"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.Field, f.Type, required, strings.Join(f.Aliases, ", "))
				}
			}
			return tw.Flush()
		},
	}
}

func newTemplateCmd(c *cli) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "template <type>",
		Short: "Write a CSV holding only the header row of an import type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := application.LoadRegistry(c.cfg.Headers.AliasFile)
			if err != nil {
				return err
			}
			header, err := reg.Template(args[0])
			if err != nil {
				return err
			}

			if output == "" {
				return writeTemplate(cmd.OutOrStdout(), header)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := writeTemplate(f, header); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func writeTemplate(w io.Writer, header []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
