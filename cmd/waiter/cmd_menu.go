package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-waiter/internal/log"
)

var menuCategory string

func init() {
	menuCmd.Flags().StringVar(&menuCategory, "category", "", "only list this category")
	rootCmd.AddCommand(menuCmd)
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Print the available menu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := openStore(ctx, cfg, log.L())
		if err != nil {
			return err
		}
		defer store.Close()

		items, err := store.ListMenu(ctx, menuCategory)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCATEGORY\tNAME\tPRICE")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", it.ItemID, it.Category, it.Name, it.Price.StringFixed(2))
		}
		return w.Flush()
	},
}
