package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coolbeans/carta/pkg/archive"
	"github.com/coolbeans/carta/pkg/extract"
	"github.com/coolbeans/carta/pkg/fetch"
	"github.com/coolbeans/carta/pkg/markup"
	"github.com/coolbeans/carta/pkg/pattern"
	"github.com/coolbeans/carta/pkg/validate"
	"github.com/spf13/cobra"
)

func verifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE",
		Short: "Check a saved JSON document against the schema",
		Long: `Check a saved JSON document against the embedded Constitution schema.

A file that is not JSON and a document that violates the schema are
reported as different failures; every violation is listed with its JSON
pointer.

Example:
  carta verify output/constituicao.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			in, err := input(cmd, path)
			if err != nil {
				return err
			}
			defer in.Close()

			validator, err := validate.NewValidator(a.logger)
			if err != nil {
				return err
			}
			err = validator.ValidateReader(in)
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)
				return nil
			case errors.Is(err, validate.ErrInvalidJSON):
				return fmt.Errorf("%s is not a JSON document: %w", path, err)
			}

			violations, ok := validate.AsValidations(err)
			if !ok {
				return err
			}
			for _, v := range violations {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", v.Path, v.Message)
			}
			return fmt.Errorf("%s violates the schema: %w", path, err)
		},
	}
}

func classifyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Label each paragraph and write the tuple stream",
		Long: `Classify every paragraph of an HTML page or a plain text file (one
paragraph per line) and write one JSON object per paragraph:

  {"classe": "artigo", "numero": "5", "titulo": null, "texto": "Art. 5º ..."}

The stream can be edited and fed back with "carta build". With --watch the
rule file's directory is watched and the input reclassified whenever the
rule file changes.

Examples:
  carta classify --input constituicao.htm -o tuples.jsonl
  carta classify --text paragrafos.txt --rules rules/custom.yaml --watch -o tuples.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			htmlPath, _ := cmd.Flags().GetString("input")
			textPath, _ := cmd.Flags().GetString("text")
			outPath, _ := cmd.Flags().GetString("output")
			watch, _ := cmd.Flags().GetBool("watch")

			if (htmlPath == "") == (textPath == "") {
				return fmt.Errorf("exactly one of --input or --text is required")
			}
			paragraphs, err := readParagraphs(a, htmlPath, textPath)
			if err != nil {
				return err
			}

			rules, err := a.rules(cmd)
			if err != nil {
				return err
			}
			run := func(rs *pattern.RuleSet) error {
				return writeClassifications(a, cmd, rs, paragraphs, outPath)
			}
			if err := run(rules); err != nil {
				return err
			}
			if !watch {
				return nil
			}

			rulesPath, _ := cmd.Flags().GetString("rules")
			if rulesPath == "" {
				rulesPath = a.cfg.Rules
			}
			if rulesPath == "" {
				return fmt.Errorf("--watch needs a rule file (--rules)")
			}
			return watchRules(cmd.Context(), a, rulesPath, rules, run)
		},
	}

	cmd.Flags().String("input", "", "HTML page to classify")
	cmd.Flags().String("text", "", "Plain text file to classify, one paragraph per line")
	cmd.Flags().StringP("output", "o", "", "Tuple file (default: standard output)")
	cmd.Flags().String("rules", "", "Classifier rule file replacing the built-in rules")
	cmd.Flags().Bool("watch", false, "Reclassify when the rule file changes")

	return cmd
}

func readParagraphs(a *app, htmlPath, textPath string) ([]extract.Paragraph, error) {
	if htmlPath != "" {
		raw, err := os.ReadFile(htmlPath)
		if err != nil {
			return nil, err
		}
		text, _, err := fetch.DecodeHTML(raw, a.cfg.Fetch.Charset)
		if err != nil {
			return nil, err
		}
		doc, err := markup.NewReader(a.logger).ReadString(text)
		if err != nil {
			return nil, err
		}
		return doc.Paragraphs, nil
	}

	f, err := os.Open(textPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paragraphs []extract.Paragraph
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if text := extract.Normalize(scanner.Text()); text != "" {
			paragraphs = append(paragraphs, extract.Paragraph{Text: text})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", textPath, err)
	}
	return paragraphs, nil
}

func writeClassifications(a *app, cmd *cobra.Command, rs *pattern.RuleSet, paragraphs []extract.Paragraph, outPath string) error {
	classifier, err := extract.NewClassifier(rs, a.logger)
	if err != nil {
		return err
	}
	classifications := classifier.ClassifyAll(paragraphs)

	w, closeOut, err := output(cmd, outPath)
	if err != nil {
		return err
	}
	if err := extract.WriteTuples(w, classifications); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	a.logger.Info("classified paragraphs", "paragraphs", len(classifications), "output", outPath)
	return nil
}

// watchRules reruns run with each new version of the rule file at path until
// ctx ends. A version that fails to compile leaves the previous one active.
func watchRules(ctx context.Context, a *app, path string, current *pattern.RuleSet, run func(*pattern.RuleSet) error) error {
	registry, err := pattern.NewRegistryWithDirectory(filepath.Dir(path), a.logger)
	if err != nil {
		return err
	}
	formatID := current.FormatID()
	registry.SetOnChange(func(event string, rs *pattern.RuleSet) {
		if rs == nil || rs.FormatID() != formatID {
			return
		}
		a.logger.Info("reclassifying with reloaded rules", "event", event, "version", rs.Version())
		if err := run(rs); err != nil {
			a.logger.Error("reclassification failed", "error", err)
		}
	})
	if err := registry.Watch(); err != nil {
		return err
	}
	defer registry.StopWatch()

	a.logger.Info("watching rule file", "path", path, "format_id", formatID)
	<-ctx.Done()
	return nil
}

func buildCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build TUPLES.jsonl",
		Short: "Build the document from a tuple stream",
		Long: `Build the nested document from a JSON Lines tuple stream as written by
"carta classify". Use "-" to read standard input.

Examples:
  carta build tuples.jsonl -o constituicao.json
  carta classify --input constituicao.htm | carta build - --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, _ := cmd.Flags().GetString("output")
			formatName, _ := cmd.Flags().GetString("format")
			skipSchema, _ := cmd.Flags().GetBool("no-validate")

			format, err := archive.ParseFormat(formatName)
			if err != nil {
				return err
			}

			in, err := input(cmd, args[0])
			if err != nil {
				return err
			}
			classifications, err := extract.ReadTuples(in)
			in.Close()
			if err != nil {
				return err
			}

			builder := extract.NewBuilder(a.logger)
			builder.SetProgressEvery(a.cfg.ProgressEvery)
			builder.AddAll(classifications)
			tree, err := builder.Finish()
			if err != nil {
				return err
			}
			report := builder.Report()
			a.logger.Info("built tree",
				"paragraphs", report.Paragraphs,
				"warnings", report.Warnings(),
				"unknown_kinds", report.Count(extract.CodeUnknownKind),
				"duplicates", report.Count(extract.CodeDuplicateElement),
			)

			doc := extract.Serialize(tree)
			if !skipSchema {
				validator, err := validate.NewValidator(a.logger)
				if err != nil {
					return err
				}
				if err := validator.Validate(doc); err != nil {
					return fmt.Errorf("built document: %w", err)
				}
			}

			data, err := format.Encode(doc)
			if err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := archive.WriteFile(outPath, data, a.logger); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes, %d issues)\n", outPath, len(data), len(report.Issues))
			return nil
		},
	}

	cmd.Flags().StringP("output", "o", "", "Output file (default: standard output)")
	cmd.Flags().String("format", "json", "Output format: json or yaml")
	cmd.Flags().Bool("no-validate", false, "Skip the schema check")

	return cmd
}

func archiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Read the content-addressed run archive",
		Long: `Read objects and runs recorded by "carta scrape --archive DIR".

Examples:
  carta archive runs --archive archive
  carta archive get bafkrei... --archive archive -o constituicao.json`,
	}
	cmd.PersistentFlags().String("archive", "", "Archive directory (default: output.archive from the config, or ./archive)")

	cmd.AddCommand(archiveGetCmd(a))
	cmd.AddCommand(archiveRunsCmd(a))
	return cmd
}

func (a *app) openArchive(cmd *cobra.Command) (*archive.Archive, error) {
	dir, _ := cmd.Flags().GetString("archive")
	if dir == "" {
		dir = a.cfg.Output.Archive
	}
	if dir == "" {
		dir = "archive"
	}
	return archive.Open(dir)
}

func archiveGetCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get CID",
		Short: "Print a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive(cmd)
			if err != nil {
				return err
			}
			data, err := store.Object(args[0])
			if err != nil {
				return err
			}
			outPath, _ := cmd.Flags().GetString("output")
			if outPath == "" || outPath == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return archive.WriteFile(outPath, data, a.logger)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Write the object to a file instead of standard output")
	return cmd
}

func archiveRunsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openArchive(cmd)
			if err != nil {
				return err
			}
			runs := store.Runs()
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-22s %-9s %-20s %s\n", "RUN", "STATUS", "RECORDED", "OUTPUT")
			fmt.Fprintln(out, strings.Repeat("-", 72))
			for _, run := range runs {
				detail := run.OutputCID
				if run.Error != "" {
					detail = run.Error
				}
				fmt.Fprintf(out, "%-22s %-9s %-20s %s\n", run.ID, run.Status, run.RecordedAt.Format("2006-01-02 15:04:05"), detail)
			}
			return nil
		},
	}
}
