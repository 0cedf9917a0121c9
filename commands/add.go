package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklab/pricetrack/pipeline"
	"github.com/tracklab/pricetrack/produrl"
)

func newAddCommand(flags *rootFlags) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Track a single product URL",
		Long: `Add scrapes one product page immediately and stores its history.
With --enqueue the URL is published to the scrape request queue for a
running daemon instead of being scraped in-process.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnv(flags)
			if err != nil {
				return err
			}

			url := args[0]
			if err := produrl.ValidateURL(url, env.Config.Scrape.AllowPrivate); err != nil {
				return fmt.Errorf("invalid URL: %w", err)
			}

			app := NewApp(env)
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer app.Shutdown()

			if enqueue {
				if err := pipeline.EnsureStream(ctx, app.js); err != nil {
					return err
				}
				if err := pipeline.PublishRequest(ctx, app.js, url); err != nil {
					return err
				}
				fmt.Printf("Enqueued %s\n", url)
				return nil
			}

			res, err := app.engine.ScrapeOne(ctx, url)
			if err != nil {
				return err
			}

			source := "page"
			if res.Synthetic {
				source = "sample"
			}
			fmt.Printf("Tracked %s\n", res.ProductID)
			fmt.Printf("  Title:  %s\n", res.Title)
			fmt.Printf("  Brand:  %s\n", res.Brand)
			fmt.Printf("  Points: %d (%s)\n", res.Points, source)
			return nil
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Publish to the daemon's request queue instead of scraping now")
	return cmd
}
