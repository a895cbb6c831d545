package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"tg_roster_bot/internal/importer"
	"tg_roster_bot/internal/store"
)

func newImportCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the roster spreadsheet once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			if source != "" {
				cfg.Import.Source = source
			}
			if !cfg.Import.Enabled() {
				return errors.New("no import source configured: set IMPORT_SOURCE or --source")
			}

			src, err := importer.NewSource(cfg.Import, logger)
			if err != nil {
				return err
			}

			connectCtx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
			backend, err := store.Open(connectCtx, cfg, logger)
			cancel()
			if err != nil {
				return err
			}
			defer closeStore(backend, logger)

			ctx, cancelImport := context.WithTimeout(cmd.Context(), importTimeout)
			defer cancelImport()

			result, err := importer.New(src, backend.Members, nil, logger).Import(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d, updated %d, rejected %d\n",
				result.Inserted, result.Updated, result.Rejected)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "spreadsheet path or URL, overrides IMPORT_SOURCE")
	return cmd
}
