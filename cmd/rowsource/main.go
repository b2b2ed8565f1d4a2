// Command rowsource reads configured spreadsheet and database sources.
//
//	rowsource dump budget --limit 10
//	rowsource validate
//	rowsource tables shop
//	rowsource query shop "select * from orders"
//	rowsource serve --addr :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/koustreak/rowsource/internal/catalog"
	"github.com/koustreak/rowsource/internal/config"
	"github.com/koustreak/rowsource/internal/database"
	"github.com/koustreak/rowsource/internal/logger"
	"github.com/koustreak/rowsource/internal/server"
	"github.com/koustreak/rowsource/internal/source"
)

type globalFlags struct {
	config   string
	envFiles []string
	logLevel string
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "rowsource",
		Short:         "Read rows from configured spreadsheets and database tables",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&g.config, "config", "c", "rowsource.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&g.envFiles, "env", []string{".env"}, "Env files loaded before the config is expanded")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(
		newDumpCmd(&g),
		newValidateCmd(&g),
		newTablesCmd(&g),
		newQueryCmd(&g),
		newServeCmd(&g),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the environment and configuration and builds the catalog.
func setup(g *globalFlags, opts ...catalog.Option) (*config.Config, *logger.Logger, *catalog.Catalog, error) {
	if err := config.LoadEnv(g.envFiles...); err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	log := cfg.Log.Logger(os.Stderr)
	logger.SetGlobal(log)

	return cfg, log, catalog.New(cfg, log, opts...), nil
}

func newDumpCmd(g *globalFlags) *cobra.Command {
	var limit int
	var noHeader bool

	cmd := &cobra.Command{
		Use:   "dump <source>",
		Short: "Print a source's rows as JSON lines",
		Long: `Print the rows of a configured source, one JSON array per line, in key order.
The first line holds the column names unless --no-header is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, cat, err := setup(g)
			if err != nil {
				return err
			}
			defer cat.Close()
			return runDump(cmd.Context(), cat, args[0], limit, !noHeader, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many rows (0 for all)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the column name line")

	return cmd
}

func runDump(ctx context.Context, cat *catalog.Catalog, name string, limit int, header bool, out io.Writer) error {
	src, err := cat.Open(ctx, name)
	if err != nil {
		return err
	}
	return dumpRows(ctx, src, limit, header, out)
}

// dumpRows writes up to limit rows of src as JSON lines. A failed Close is
// joined into the returned error.
func dumpRows(ctx context.Context, src source.RowSource, limit int, header bool, out io.Writer) (err error) {
	if err := src.Open(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, src.Close())
	}()

	enc := json.NewEncoder(out)
	if header {
		m, err := src.Model(ctx)
		if err != nil {
			return err
		}
		if err := enc.Encode(m.ColumnNames()); err != nil {
			return err
		}
	}

	for n := 0; limit <= 0 || n < limit; n++ {
		row, err := src.NextRow()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Open and close every configured source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, cat, err := setup(g, catalog.WithConcurrency(concurrency))
			if err != nil {
				return err
			}
			defer cat.Close()

			results, err := cat.ValidateAll(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tSTATUS\tCOLUMNS\tURI")
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Source, status, r.Width, r.URI)
			}
			if ferr := w.Flush(); ferr != nil {
				return ferr
			}
			if err != nil {
				return errors.New("one or more sources failed validation")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", catalog.DefaultConcurrency, "Sources checked at once")

	return cmd
}

func newTablesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <database>",
		Short: "List the tables of a configured database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, cat, err := setup(g)
			if err != nil {
				return err
			}
			defer cat.Close()

			tables, err := cat.Tables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "query <database> <sql>",
		Short: "Run a query and print each row as a JSON object",
		Long: `Run a query against a configured database and print one JSON object per row.
Results that carry server warnings print nothing.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, log, cat, err := setup(g)
			if err != nil {
				return err
			}
			defer cat.Close()

			db, err := cat.Database(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			rows, err := database.NewMaterializer(log).ReadRows(cmd.Context(), db, args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range rows {
				if err := enc.Encode(r); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve source previews over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, cat, err := setup(g)
			if err != nil {
				return err
			}
			defer cat.Close()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			return server.New(cat, cfg.Server, log).ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}
