package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newHistoryCommand(flags *rootFlags) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "history <slug>",
		Short: "Show a product's price history",
		Long: `History prints the stored price points for one product, identified by
its slug (see 'pricetrack list'). Without a slug argument it prints a
summary of every product instead.`,
		Args: cobra.MaximumNArgs(1),
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

			if len(args) == 0 {
				return printHistorySummary(ctx, app)
			}

			slug := args[0]
			stats, err := app.repo.ProductStats(ctx, slug)
			if err != nil {
				return err
			}
			if stats == nil {
				return fmt.Errorf("unknown product: %s", slug)
			}

			var points []historyPoint
			if since != "" {
				raw, err := app.repo.PointsSince(ctx, slug, since)
				if err != nil {
					return err
				}
				for _, p := range raw {
					points = append(points, historyPoint{p.Date, p.Price})
				}
			} else {
				raw, err := app.repo.Points(ctx, slug)
				if err != nil {
					return err
				}
				for _, p := range raw {
					points = append(points, historyPoint{p.Date, p.Price})
				}
			}

			fmt.Printf("%s (%s)\n", stats.Title, stats.Brand)
			fmt.Printf("%d points, current %.2f, min %.2f, max %.2f, avg %.2f, change %+.2f (%+.1f%%)\n\n",
				stats.Points, stats.CurrentPrice, stats.MinPrice, stats.MaxPrice,
				stats.AvgPrice, stats.Change, stats.ChangePct)

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Date", "Price"})
			for _, p := range points {
				t.AppendRow(table.Row{p.date, fmt.Sprintf("%.2f", p.price)})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Only show points from this date (YYYY-MM-DD)")
	return cmd
}

type historyPoint struct {
	date  string
	price float64
}

func printHistorySummary(ctx context.Context, app *App) error {
	summary, err := app.repo.Summary(ctx)
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		fmt.Println("No price history stored yet.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Product", "Brand", "Points", "Current", "Min", "Max", "Change", "From", "To"})
	for _, s := range summary {
		t.AppendRow(table.Row{
			s.Title, s.Brand, s.Points,
			fmt.Sprintf("%.2f", s.CurrentPrice),
			fmt.Sprintf("%.2f", s.MinPrice),
			fmt.Sprintf("%.2f", s.MaxPrice),
			fmt.Sprintf("%+.1f%%", s.ChangePct),
			s.FirstDate, s.LastDate,
		})
	}
	t.Render()
	return nil
}
