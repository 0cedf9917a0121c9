package commands

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newListCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked products",
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

			products, err := app.store.ListProducts(ctx)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Println("No products tracked yet. Use 'pricetrack add <url>' or 'pricetrack scrape'.")
				return nil
			}

			sort.Slice(products, func(i, j int) bool {
				return products[i].Title < products[j].Title
			})

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Product", "Brand", "Points", "Last Scraped", "Slug"})
			for _, p := range products {
				last := ""
				if !p.LastScraped.IsZero() {
					last = p.LastScraped.Format("2006-01-02 15:04")
				}
				t.AppendRow(table.Row{p.Title, p.Brand, p.PointCount, last, p.Slug})
			}
			t.Render()
			fmt.Printf("(%d products)\n", len(products))
			return nil
		},
	}
}
