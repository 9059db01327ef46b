package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var articlesLimit int

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Inspect stored articles",
}

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recently ingested articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		articles, err := store.RecentArticles(ctx, articlesLimit)
		if err != nil {
			return err
		}
		for _, a := range articles {
			indexed := "no"
			if a.IndexedAt != nil {
				indexed = "yes"
			}
			title := a.TitleES
			if title == "" {
				title = a.TitleRaw
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  [%s] %s  lang=%s translated=%v iocs=%d indexed=%s\n",
				a.PublishedAt.Format("2006-01-02 15:04"), a.ID, title,
				a.LanguageDetected, a.Translated, a.IOCCount, indexed)
		}
		return nil
	},
}

var articlesShowCmd = &cobra.Command{
	Use:   "show <article-id>",
	Short: "Show one article and its extracted indicators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		a, indicators, err := store.GetArticle(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", a.TitleES)
		fmt.Fprintf(out, "source_url:  %s\n", a.SourceURL)
		fmt.Fprintf(out, "published:   %s\n", a.PublishedAt.Format("2006-01-02 15:04"))
		fmt.Fprintf(out, "language:    %s (translated=%v, confidence=%.2f)\n",
			a.LanguageDetected, a.Translated, a.ConfidenceTranslation)
		fmt.Fprintf(out, "fingerprint: %s\n", a.Fingerprint)
		fmt.Fprintf(out, "tags:        %v\n", a.Tags)
		if a.SummaryES != "" {
			fmt.Fprintf(out, "\n%s\n", a.SummaryES)
		}
		if len(indicators) > 0 {
			fmt.Fprintf(out, "\nindicators (%d):\n", len(indicators))
			for _, ind := range indicators {
				fmt.Fprintf(out, "  %-12s %-50s confidence=%.2f\n", ind.Type, ind.Value, ind.Confidence)
			}
		}
		return nil
	},
}

func init() {
	articlesListCmd.Flags().IntVar(&articlesLimit, "limit", 20, "maximum articles to show")
	articlesCmd.AddCommand(articlesListCmd, articlesShowCmd)
	rootCmd.AddCommand(articlesCmd)
}
