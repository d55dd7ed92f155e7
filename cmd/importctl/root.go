package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockimport/internal/application"
	"github.com/JonMunkholm/stockimport/internal/config"
	"github.com/JonMunkholm/stockimport/internal/logging"
)

// cli carries the state shared by every subcommand.
type cli struct {
	envFile  string
	tenant   string
	logLevel string

	cfg *config.Config

	// openApp is replaced in tests.
	openApp func(ctx context.Context, cfg *config.Config) (*application.App, error)
}

func newRootCmd() *cobra.Command {
	c := &cli{openApp: application.New}

	rootCmd := &cobra.Command{
		Use:   "importctl",
		Short: "Import products, providers and stock movements from CSV/Excel files.",
		Long: `importctl validates spreadsheet exports and writes them to the stock database
configured by the same environment variables as the server (DB_DRIVER,
DATABASE_URL, SQLITE_PATH, REDIS_URL, ...). A .env file in the working
directory is read first; real environment variables win.

Import types:
- providers: proveedores
- products:  productos (placeholders created for unknown providers)
- movements: movimientos de stock (entrada, salida, ajuste)
`,
		Example: `
  # List import types and the headers each accepts
  importctl types

  # Write an empty template for products
  importctl template products -o plantilla_productos.csv

  # Check a file without writing anything
  importctl import products ./catalogo.xlsx --validate-only

  # Import every file under ./inbox/<type>/ and move finished files away
  importctl batch ./inbox --archive ./done

  # Drop finished jobs and audit entries older than a week
  importctl prune --older-than 168h
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().StringVarP(&c.tenant, "tenant", "t", "", "Tenant to import into (default: DEFAULT_TENANT)")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override: debug, info, warn, error")

	rootCmd.AddCommand(
		newImportCmd(c),
		newBatchCmd(c),
		newTypesCmd(c),
		newTemplateCmd(c),
		newPruneCmd(c),
	)
	return rootCmd
}

// loadConfig reads the environment and installs a logger on stderr so
// command output on stdout stays clean.
func (c *cli) loadConfig() error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if c.tenant == "" {
		c.tenant = cfg.Security.DefaultTenant
	}
	c.cfg = cfg
	return nil
}
