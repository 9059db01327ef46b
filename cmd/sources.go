package cmd

import (
	"context"
	"fmt"
	"os"

	"threatfeed/internal/model"
	"threatfeed/internal/storage"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage configured feed sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		sources, err := store.ListSources(ctx)
		if err != nil {
			return err
		}
		for _, s := range sources {
			last := "never"
			if s.LastFetchedAt != nil {
				last = s.LastFetchedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-30s  enabled=%-5v  every %dm  last: %s\n",
				s.ID, s.Name, s.Enabled, s.FetchIntervalMinutes, last)
		}
		return nil
	},
}

var (
	srcURL      string
	srcType     string
	srcRegion   string
	srcCountry  string
	srcLanguage string
	srcInterval int
)

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		src := model.Source{
			Name:                 args[0],
			URL:                  srcURL,
			Type:                 srcType,
			Region:               srcRegion,
			Country:              srcCountry,
			Language:             srcLanguage,
			Enabled:              true,
			FetchIntervalMinutes: srcInterval,
		}
		if err := store.CreateSource(ctx, &src); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created source %s (%s)\n", src.Name, src.ID)
		return nil
	},
}

// seedFile is the YAML shape accepted by `sources import`.
type seedFile struct {
	Sources []struct {
		Name                 string `yaml:"name"`
		URL                  string `yaml:"url"`
		Type                 string `yaml:"type"`
		Region               string `yaml:"region"`
		Country              string `yaml:"country"`
		Language             string `yaml:"language"`
		FetchIntervalMinutes int    `yaml:"fetch_interval_minutes"`
	} `yaml:"sources"`
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import sources from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var seed seedFile
		if err := yaml.Unmarshal(raw, &seed); err != nil {
			return fmt.Errorf("parse seed file: %w", err)
		}

		ctx := context.Background()
		store, cleanup, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		for _, s := range seed.Sources {
			interval := s.FetchIntervalMinutes
			if interval == 0 {
				interval = 30
			}
			lang := s.Language
			if lang == "" {
				lang = "en"
			}
			typ := s.Type
			if typ == "" {
				typ = "threat_intel"
			}
			src := model.Source{
				Name:                 s.Name,
				URL:                  s.URL,
				Type:                 typ,
				Region:               s.Region,
				Country:              s.Country,
				Language:             lang,
				Enabled:              true,
				FetchIntervalMinutes: interval,
			}
			if err := store.CreateSource(ctx, &src); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", s.Name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created source %s (%s)\n", src.Name, src.ID)
		}
		return nil
	},
}

func openStore(ctx context.Context) (*storage.Store, func(), error) {
	cfg := GetConfig()
	store, err := storage.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, store.Close, nil
}

func init() {
	sourcesAddCmd.Flags().StringVar(&srcURL, "url", "", "feed URL (required)")
	sourcesAddCmd.Flags().StringVar(&srcType, "type", "threat_intel", "source type tag")
	sourcesAddCmd.Flags().StringVar(&srcRegion, "region", "", "source region tag")
	sourcesAddCmd.Flags().StringVar(&srcCountry, "country", "", "source country")
	sourcesAddCmd.Flags().StringVar(&srcLanguage, "language", "en", "expected feed language")
	sourcesAddCmd.Flags().IntVar(&srcInterval, "interval", 30, "fetch interval in minutes")
	sourcesAddCmd.MarkFlagRequired("url")

	sourcesCmd.AddCommand(sourcesListCmd, sourcesAddCmd, sourcesImportCmd)
	rootCmd.AddCommand(sourcesCmd)
}
