package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vadiminshakov/fusiontrader/config"
	"github.com/vadiminshakov/fusiontrader/internal"
	"github.com/vadiminshakov/fusiontrader/internal/domain"
	"github.com/vadiminshakov/fusiontrader/internal/services/marketdata"
	"github.com/vadiminshakov/fusiontrader/internal/setup"
	"github.com/vadiminshakov/fusiontrader/internal/storage/decisions"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	version           = "v0.3.0"
	defaultConfigPath = "config.yaml"
)

// rootOptions holds persistent flag values shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
	set        []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "fusiontrader",
		Short: "fusiontrader - regime-aware multi-strategy paper trader",
		Long: `fusiontrader fuses scalp, day and swing rule strategies with an AI vote,
passes the result through portfolio and risk gates and sizes entries with
ATR-based stop losses and laddered take profits.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Configuration file path (default $FUSION_CONFIG or config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringArrayVar(&opts.set, "set", nil, "Override a config key, e.g. --set global.min_equity_pct=40 (repeatable)")

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newDecideCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newJournalCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig resolves the config file, layers --set overrides and the environment.
func (o *rootOptions) loadConfig() (config.Config, error) {
	config.LoadDotEnv()

	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = config.ConfigPathFromEnv(defaultConfigPath)
		explicit = path != defaultConfigPath
	}

	var (
		conf config.Config
		err  error
	)
	if _, statErr := os.Stat(path); !explicit && os.IsNotExist(statErr) {
		conf = config.Default()
	} else {
		conf, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}

	if len(o.set) > 0 {
		patch, err := config.ParseSet(o.set)
		if err != nil {
			return config.Config{}, err
		}
		if conf, err = conf.Apply(patch); err != nil {
			return config.Config{}, err
		}
	}

	return conf.WithEnv(), nil
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newInitCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file with the interactive wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setup.RunTUI(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", defaultConfigPath, "Where to write the generated config")
	return cmd
}

func newDecideCmd(opts *rootOptions) *cobra.Command {
	var (
		feed    string
		asJSON  bool
		execute bool
	)

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Run one decision pass over a market feed",
		Long: `Read one market feed snapshot (file or http(s) URL), run the decision
pipeline for every entry and print the final decisions.
Example: fusiontrader decide --feed ./feed.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if feed == "" {
				feed = conf.App.Feed
			}
			if feed == "" {
				return errors.New("no feed given, use --feed or app.feed")
			}

			src := marketdata.NewSource(feed, conf.App.FeedTimeout, logger.Named("feed"))
			bot, err := internal.NewTradingBot(conf, src, logger)
			if err != nil {
				return err
			}
			defer bot.Close()

			entries, err := src.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			out := bot.Decide(cmd.Context(), entries)
			if execute {
				bot.Execute(cmd.Context(), out)
			}

			return printDecisions(cmd.OutOrStdout(), out, asJSON)
		},
	}

	cmd.Flags().StringVar(&feed, "feed", "", "Feed location, file path or http(s) URL (default app.feed)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print decisions as JSON")
	cmd.Flags().BoolVar(&execute, "execute", false, "Place resulting orders on the paper broker")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled trading loop and the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if conf.App.Feed == "" {
				return errors.New("app.feed must be set to serve")
			}
			logger, err := opts.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			src := marketdata.NewSource(conf.App.Feed, conf.App.FeedTimeout, logger.Named("feed"))
			bot, err := internal.NewTradingBot(conf, src, logger)
			if err != nil {
				return err
			}
			defer bot.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("trading bot stopped")
			return nil
		},
	}
}

func newJournalCmd(opts *rootOptions) *cobra.Command {
	var (
		after  uint64
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print journaled decisions and overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}

			store, err := decisions.NewWALStore(conf.App.JournalDir)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.EventsAfter(after)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "journal is empty")
				return nil
			}
			fmt.Fprintln(w, renderJournal(records))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&after, "after", 0, "Only show records after this WAL index")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(conf)
			if err != nil {
				return errors.Wrap(err, "encode config")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK (%d symbols)\n", len(conf.Symbols))
			return nil
		},
	})

	return configCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fusiontrader %s\n", version)
		},
	}
}

func printDecisions(w io.Writer, out []domain.FinalDecision, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	_, err := fmt.Fprintln(w, renderDecisions(out))
	return err
}
