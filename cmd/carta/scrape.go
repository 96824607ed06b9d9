package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/config"
	"github.com/coolbeans/carta/pkg/scrape"
	"github.com/spf13/cobra"
)

func scrapeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch the Constitution and build the structured document",
		Long: `Fetch the official HTML page (or read a saved copy), classify every
paragraph, build the hierarchy, validate it against the schema and write
the result.

Flags override the matching keys of the configuration file.

Examples:
  carta scrape
  carta scrape -o out/constituicao.json --archive archive
  carta scrape --input constituicao.htm --format yaml -o constituicao.yaml
  carta scrape --markdown constituicao.md --html constituicao.html
  carta scrape --strict --gate-report gates.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			if err := applyScrapeFlags(cmd, cfg); err != nil {
				return err
			}
			format, err := archive.ParseFormat(cfg.Output.Format)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") && cfg.Output.Path == config.Default().Output.Path {
				cfg.Output.Path = strings.TrimSuffix(cfg.Output.Path, filepath.Ext(cfg.Output.Path)) + format.Extension()
			}

			rules, err := a.rules(cmd)
			if err != nil {
				return err
			}
			url, _ := cmd.Flags().GetString("url")
			inputFile, _ := cmd.Flags().GetString("input")
			persistInvalid, _ := cmd.Flags().GetBool("persist-invalid")

			scraper, err := scrape.New(scrape.Options{
				URL:            url,
				InputFile:      inputFile,
				Fetch:          cfg.Fetch,
				Rules:          rules,
				OutputPath:     cfg.Output.Path,
				Format:         format,
				MarkdownPath:   cfg.Output.Markdown,
				HTMLPath:       cfg.Output.HTML,
				ArchiveDir:     cfg.Output.Archive,
				PersistInvalid: persistInvalid,
				Gates:          &cfg.Gates,
				ProgressEvery:  cfg.ProgressEvery,
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}

			result, runErr := scraper.Run(cmd.Context())

			if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
				fmt.Fprint(cmd.OutOrStdout(), result.Stats.String())
			}
			if reportPath, _ := cmd.Flags().GetString("gate-report"); reportPath != "" && result.Gates != nil {
				if err := writeGateReport(a, reportPath, result); err != nil {
					return err
				}
			}
			if runErr != nil {
				return runErr
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes, %d articles)\n",
				cfg.Output.Path, len(result.Output), result.Stats.Elements["artigo"])
			if result.Run != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Archived run %s: output %s\n", result.Run.ID, result.Run.OutputCID)
			}
			return nil
		},
	}

	cmd.Flags().String("url", "", "Page URL (default: fetch.base_url + fetch.path)")
	cmd.Flags().String("input", "", "Read HTML from a file instead of fetching")
	cmd.Flags().StringP("output", "o", "", "Output file (default: output/constituicao.json)")
	cmd.Flags().String("format", "", "Output format: json or yaml")
	cmd.Flags().String("archive", "", "Record the source and output in this archive directory")
	cmd.Flags().String("markdown", "", "Also render the document as Markdown to this file")
	cmd.Flags().String("html", "", "Also render the document as HTML to this file")
	cmd.Flags().String("rules", "", "Classifier rule file replacing the built-in rules")
	cmd.Flags().String("cache-dir", "", "Cache fetched pages in this directory")
	cmd.Flags().String("charset", "", "Force the page encoding (e.g. iso-8859-1)")
	cmd.Flags().Bool("strict", false, "Fail the run when a quality gate fails")
	cmd.Flags().Bool("fail-on-warn", false, "Fail the run on quality gate warnings")
	cmd.Flags().StringSlice("skip-gates", nil, "Quality gates to skip (source, structure, schema)")
	cmd.Flags().Bool("persist-invalid", false, "Write the output even when validation fails")
	cmd.Flags().Bool("stats", false, "Print run statistics")
	cmd.Flags().String("gate-report", "", "Write the quality gate report (.md or .json)")

	return cmd
}

func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	strFlags := map[string]*string{
		"output":    &cfg.Output.Path,
		"format":    &cfg.Output.Format,
		"archive":   &cfg.Output.Archive,
		"markdown":  &cfg.Output.Markdown,
		"html":      &cfg.Output.HTML,
		"cache-dir": &cfg.Fetch.CacheDir,
		"charset":   &cfg.Fetch.Charset,
	}
	for name, target := range strFlags {
		if flags.Changed(name) {
			*target, _ = flags.GetString(name)
		}
	}
	if flags.Changed("strict") {
		cfg.Gates.StrictMode, _ = flags.GetBool("strict")
	}
	if flags.Changed("fail-on-warn") {
		cfg.Gates.FailOnWarn, _ = flags.GetBool("fail-on-warn")
	}
	if flags.Changed("skip-gates") {
		cfg.Gates.SkipGates, _ = flags.GetStringSlice("skip-gates")
	}
	return cfg.Validate()
}

func writeGateReport(a *app, path string, result *scrape.Result) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = result.Gates.ToJSON()
		if err != nil {
			return fmt.Errorf("encoding gate report: %w", err)
		}
	} else {
		data = []byte(result.Gates.ToMarkdown())
	}
	return archive.WriteFile(path, data, a.logger)
}
