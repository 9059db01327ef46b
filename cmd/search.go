package cmd

import (
	"context"
	"fmt"
	"strings"

	"threatfeed/internal/search"

	"github.com/spf13/cobra"
)

var (
	searchType    string
	searchHasIOCs bool
	searchSize    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the article search index",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		client, err := search.NewClient(search.Config{
			Addresses: cfg.Search.Addresses,
			Index:     cfg.Search.Index,
			Username:  cfg.Search.Username,
			Password:  cfg.Search.Password,
		})
		if err != nil {
			return err
		}

		filters := search.Filters{SourceType: searchType}
		if cmd.Flags().Changed("has-iocs") {
			filters.HasIOCs = &searchHasIOCs
		}

		hits, total, err := client.Search(context.Background(), strings.Join(args, " "), filters, searchSize)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d results (showing %d)\n", total, len(hits))
		for _, h := range hits {
			fmt.Fprintf(cmd.OutOrStdout(), "- [%s] %s (%s) tags=%v iocs=%d\n",
				h.PublishedAt, h.TitleES, h.SourceName, h.Tags, len(h.IOCs))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "", "filter by source type")
	searchCmd.Flags().BoolVar(&searchHasIOCs, "has-iocs", false, "only articles with extracted IOCs")
	searchCmd.Flags().IntVar(&searchSize, "size", 20, "maximum results")
	rootCmd.AddCommand(searchCmd)
}
