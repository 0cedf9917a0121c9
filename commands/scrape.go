package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/pipeline"
	"github.com/tracklab/pricetrack/seed"
)

// summaryLimit caps the number of products shown in the run summary.
const summaryLimit = 5

func newScrapeCommand(flags *rootFlags) *cobra.Command {
	var (
		noExport bool
		noSample bool
		workers  int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape all seed URLs once",
		Long: `Scrape loads product URLs from the configured seed lists, scrapes each
page with a bounded worker pool, stores the price histories and exports
the combined CSV into data/raw/.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags)
			if err != nil {
				return err
			}
			if workers > 0 {
				env.Config.Scrape.Workers = workers
			}
			if noSample {
				env.Config.Scrape.SampleFallback = false
			}
			if output != "" {
				env.Config.Export.Dir = output
			}

			urls, err := loadSeeds(env)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no seed URLs found (patterns: %v)", env.Config.Seeds.Patterns)
			}
			fmt.Printf("Loaded %d product URLs\n", len(urls))

			app := NewApp(env)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			report, err := app.engine.Run(ctx, urls)
			if err != nil {
				return err
			}

			printSummary(report)

			if !noExport {
				products, err := app.store.ListProducts(ctx)
				if err != nil {
					return fmt.Errorf("list products: %w", err)
				}
				format, err := parseExportFormat(env.Config.Export.Format)
				if err != nil {
					return err
				}
				path, rows, err := app.exporter().ExportAll(ctx, products, format)
				if err != nil {
					return fmt.Errorf("export: %w", err)
				}
				fmt.Printf("Exported %d rows to %s\n", rows, path)
			}

			if report.Run.Succeeded == 0 && report.Run.Failed > 0 {
				return fmt.Errorf("all %d URLs failed", report.Run.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noExport, "no-export", false, "Skip the CSV export after scraping")
	cmd.Flags().BoolVar(&noSample, "no-sample", false, "Never substitute a synthetic series when extraction finds no prices")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent scrape workers (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export directory (default <root>/data/raw)")
	return cmd
}

// loadSeeds resolves seed patterns relative to the workspace root.
func loadSeeds(env *Env) ([]string, error) {
	patterns := make([]string, len(env.Config.Seeds.Patterns))
	for i, p := range env.Config.Seeds.Patterns {
		if filepath.IsAbs(p) {
			patterns[i] = p
		} else {
			patterns[i] = filepath.Join(env.Config.Workspace.Root, p)
		}
	}

	loader := seed.NewLoader(env.Config.Scrape.BaseURL, patterns)
	return loader.Load()
}

// printSummary renders the run outcome and the first few products.
func printSummary(report *pipeline.Report) {
	run := report.Run
	fmt.Printf("\nRun %s: %d scraped, %d failed, %d points stored\n\n",
		run.Status, run.Succeeded, run.Failed, run.PointsStored)

	ok := make([]pipeline.URLResult, 0, len(report.Results))
	for _, r := range report.Results {
		if r.Err == nil && r.ProductID != "" {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Title", "Brand", "Points", "Source"})

	shown := ok
	if len(shown) > summaryLimit {
		shown = shown[:summaryLimit]
	}
	for _, r := range shown {
		source := "page"
		if r.Synthetic {
			source = "sample"
		}
		t.AppendRow(table.Row{r.Title, r.Brand, r.Points, source})
	}
	t.Render()

	if rest := len(ok) - len(shown); rest > 0 {
		fmt.Printf("... and %d more\n", rest)
	}
}
