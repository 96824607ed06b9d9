package main

import (
	"context"
	"fmt"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/fetch"
	"github.com/coolbeans/carta/pkg/scrape"
	"github.com/coolbeans/carta/pkg/watch"
	"github.com/spf13/cobra"
)

func watchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scrape again whenever the published page changes",
		Long: `Poll the official page and run a full scrape each time its content
changes. The content identifier of the latest archived source is the
starting point, so an unchanged page is never scraped twice.

Examples:
  carta watch --archive archive
  carta watch --archive archive --interval 6h
  carta watch --archive archive --once`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := applyScrapeFlags(cmd, cfg); err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Watch.Interval, _ = cmd.Flags().GetDuration("interval")
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			format, err := archive.ParseFormat(cfg.Output.Format)
			if err != nil {
				return err
			}
			rules, err := a.rules(cmd)
			if err != nil {
				return err
			}

			url, _ := cmd.Flags().GetString("url")
			if url == "" {
				if url, err = cfg.Fetch.URL(); err != nil {
					return err
				}
			}
			fetchConfig := cfg.Fetch
			fetchConfig.CacheDir = ""
			fetcher, err := fetch.NewFetcher(fetchConfig, nil, a.logger)
			if err != nil {
				return err
			}

			monitor, err := watch.NewMonitor(fetcher, url, cfg.Watch.Interval, a.logger)
			if err != nil {
				return err
			}
			if cfg.Output.Archive != "" {
				store, err := archive.OpenOrInit(cfg.Output.Archive)
				if err != nil {
					return err
				}
				if latest := store.Latest(); latest != nil {
					monitor.SetBaseline(latest.SourceCID)
				}
			}

			monitor.OnChange(func(ctx context.Context, change watch.Change) error {
				scraper, err := scrape.New(scrape.Options{
					Page:          change.Page,
					Fetch:         cfg.Fetch,
					Rules:         rules,
					OutputPath:    cfg.Output.Path,
					Format:        format,
					MarkdownPath:  cfg.Output.Markdown,
					HTMLPath:      cfg.Output.HTML,
					ArchiveDir:    cfg.Output.Archive,
					Gates:         &cfg.Gates,
					ProgressEvery: cfg.ProgressEvery,
					Logger:        a.logger,
				})
				if err != nil {
					return err
				}
				result, err := scraper.Run(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s changed (%s): wrote %s\n", change.URL, change.CID, cfg.Output.Path)
				if result.Run != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Archived run %s\n", result.Run.ID)
				}
				return nil
			})

			if once, _ := cmd.Flags().GetBool("once"); once {
				change, err := monitor.CheckNow(cmd.Context())
				if err != nil {
					return err
				}
				if change == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s unchanged\n", url)
				}
				if errs := monitor.Status().Errors; len(errs) > 0 {
					return fmt.Errorf("%s", errs[len(errs)-1])
				}
				return nil
			}
			return monitor.Run(cmd.Context())
		},
	}

	cmd.Flags().String("url", "", "Page URL (default: fetch.base_url + fetch.path)")
	cmd.Flags().StringP("output", "o", "", "Output file (default: output/constituicao.json)")
	cmd.Flags().String("format", "", "Output format: json or yaml")
	cmd.Flags().String("archive", "", "Archive directory holding the last known version")
	cmd.Flags().String("markdown", "", "Also render the document as Markdown to this file")
	cmd.Flags().String("html", "", "Also render the document as HTML to this file")
	cmd.Flags().String("rules", "", "Classifier rule file replacing the built-in rules")
	cmd.Flags().String("charset", "", "Force the page encoding (e.g. iso-8859-1)")
	cmd.Flags().Bool("strict", false, "Fail a run when a quality gate fails")
	cmd.Flags().Bool("fail-on-warn", false, "Fail a run on quality gate warnings")
	cmd.Flags().StringSlice("skip-gates", nil, "Quality gates to skip (source, structure, schema)")
	cmd.Flags().Duration("interval", 0, "Time between checks (default: watch.interval, 24h)")
	cmd.Flags().Bool("once", false, "Check once and exit")

	return cmd
}
