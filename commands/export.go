package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/export"
	"github.com/tracklab/pricetrack/storage"
)

func newExportCommand(flags *rootFlags) *cobra.Command {
	var (
		formatStr string
		product   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export price histories to data/raw",
		Long: `Export writes the stored price histories to the workspace data
directory. By default every product goes into one combined file; with
--product a single product is written as a two-column Date,Price CSV.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags)
			if err != nil {
				return err
			}

			app := NewApp(env)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			exporter := app.exporter()

			if product != "" {
				p, err := app.store.GetProduct(ctx, product)
				if err != nil {
					if err == storage.ErrNotFound {
						return fmt.Errorf("unknown product: %s", product)
					}
					return err
				}
				path, err := exporter.ExportProduct(ctx, p)
				if err != nil {
					return err
				}
				fmt.Printf("Exported %s to %s\n", p.Title, path)
				return nil
			}

			if formatStr == "" {
				formatStr = env.Config.Export.Format
			}
			format, err := parseExportFormat(formatStr)
			if err != nil {
				return err
			}

			products, err := app.store.ListProducts(ctx)
			if err != nil {
				return err
			}
			path, rows, err := exporter.ExportAll(ctx, products, format)
			if err != nil {
				return err
			}
			if app.metrics != nil {
				app.metrics.ExportRowsTotal.Add(float64(rows))
			}
			fmt.Printf("Exported %d rows (%d products) to %s\n", rows, len(products), path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&formatStr, "format", "f", "", "Export format: csv or json (default from config)")
	cmd.Flags().StringVarP(&product, "product", "p", "", "Export a single product by slug")
	return cmd
}

func parseExportFormat(s string) (export.Format, error) {
	return export.ParseFormat(s)
}
