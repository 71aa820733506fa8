package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/yaml-translator/internal/apperr"
	"github.com/MimeLyc/yaml-translator/internal/cache"
	"github.com/MimeLyc/yaml-translator/internal/delivery"
	"github.com/MimeLyc/yaml-translator/internal/langindex"
	"github.com/MimeLyc/yaml-translator/internal/yamlout"
	"github.com/MimeLyc/yaml-translator/pkg/log"
)

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Mirror every published language file into LANGS_DIR",
		Long: `Download <lang>.yml for every ISO 639-1 code from SOURCE_BASE_URL, store
each valid file as <lang>.json in LANGS_DIR and rewrite the list of
translated languages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			refresher := langindex.NewRefresher(newRemoteSource(cfg.Source.BaseURL), cfg.Source.LangsDir,
				langindex.WithConcurrency(cfg.Refresh.Concurrency))
			idx, err := refresher.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d languages saved to %s: %s\n",
				len(idx.Translated), refresher.Dir(), strings.Join(idx.Translated, ", "))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		lang   string
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the saved progress of a language to <lang>.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			lang = strings.TrimSpace(lang)
			if lang == "" {
				return apperr.New(apperr.ErrValidation, "--lang is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Ephemeral {
				return apperr.New(apperr.ErrConfig, "nothing to export: EPHEMERAL keeps progress in memory only")
			}
			st, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			// Progress saved against another key set is stale and gets dropped.
			var order []string
			source, err := newSourceLoader(cfg, newRemoteSource(cfg.Source.BaseURL)).Load(cmd.Context(), cfg.Source.Language)
			if err != nil {
				log.Warn("Source file unavailable, exporting saved keys sorted and unverified: %v", err)
			} else {
				order = source.Keys
			}

			record, ok := cache.NewStore(st.medium).Load(cmd.Context(), lang, order)
			if !ok || len(record.Translations) == 0 {
				return apperr.Newf(apperr.ErrNotFound, "no saved progress for %q", lang)
			}
			count := len(yamlout.OrderedKeys(record.Translations, order))
			if count == 0 {
				return apperr.Newf(apperr.ErrNotFound, "no saved progress for %q matches the source keys", lang)
			}

			path, err := delivery.WriteFile(outDir, lang, yamlout.Serialize(record.Translations, order))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d translations to %s\n", count, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Language code to export")
	cmd.Flags().StringVar(&outDir, "out", ".", "Output directory")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "List or clear saved progress",
	}
	cmd.AddCommand(newCacheListCmd(), newCacheClearCmd())
	return cmd
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List languages with saved progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			store := cache.NewStore(st.medium)
			current, _ := store.CurrentLanguage(ctx)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LANGUAGE\tTRANSLATIONS\tPOSITION\tSAVED\t")
			for _, lang := range store.CachedLanguages(ctx) {
				record, ok := store.Load(ctx, lang, nil)
				if !ok {
					continue
				}
				marker := ""
				if lang == current {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s%s\t%d\t%d\t%s\t\n", lang, marker, len(record.Translations), record.Cursor+1,
					time.UnixMilli(record.SavedAt).Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [lang]",
		Short: "Clear saved progress for one language, or for all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			store := cache.NewStore(st.medium)
			if len(args) == 1 {
				store.Clear(cmd.Context(), args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared saved progress for %s\n", args[0])
				return nil
			}
			store.ClearAll(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared all saved progress")
			return nil
		},
	}
}
