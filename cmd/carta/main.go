// Command carta converts the published text of the Brazilian Federal
// Constitution into a nested, schema-checked document.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coolbeans/carta/pkg/config"
	"github.com/coolbeans/carta/pkg/pattern"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// app carries the configuration and logger shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "carta: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "carta",
		Short: "Brazilian Constitution structurer",
		Long: `Carta reads the official HTML publication of the Brazilian Federal
Constitution and rebuilds its hierarchy:

  preamble, TÍTULO, CAPÍTULO, Seção, Subseção, Art., §, inciso, alínea
  and the Ato das Disposições Constitucionais Transitórias.

The result is a nested JSON or YAML document checked against an embedded
JSON Schema, optionally rendered as Markdown or HTML and recorded in a
content-addressed archive.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(scrapeCmd(a))
	rootCmd.AddCommand(verifyCmd(a))
	rootCmd.AddCommand(classifyCmd(a))
	rootCmd.AddCommand(buildCmd(a))
	rootCmd.AddCommand(archiveCmd(a))
	rootCmd.AddCommand(watchCmd(a))

	return rootCmd
}

// setup loads the configuration, applies the global flags and builds the
// logger on the command's error stream.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	persistent := cmd.Root().PersistentFlags()
	if persistent.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if persistent.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// rules returns the rule set named by the --rules flag or the config file,
// or nil for the built-in rules.
func (a *app) rules(cmd *cobra.Command) (*pattern.RuleSet, error) {
	path := a.cfg.Rules
	if cmd.Flags().Changed("rules") {
		path, _ = cmd.Flags().GetString("rules")
	}
	if path == "" {
		return nil, nil
	}
	rs, err := pattern.LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded rule file", "path", path, "format_id", rs.FormatID(), "version", rs.Version(), "rules", rs.Len())
	return rs, nil
}

// output opens path for writing, or returns the command's standard output
// when path is empty or "-".
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// input opens path for reading; "-" reads the command's standard input.
func input(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}
