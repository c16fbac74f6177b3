package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/captionrelay/core/buildinfo"
	corecmd "github.com/m3rciful/captionrelay/core/cmd"
	coreconfig "github.com/m3rciful/captionrelay/core/config"
	"github.com/m3rciful/captionrelay/internal/app"
)

const defaultConfigPath = "config.yaml"

var configPath string // --config

func main() {
	root := &cobra.Command{
		Use:           "captionbot",
		Short:         "Telegram bot relaying media to a channel with rewritten captions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml or config.toml (default: $CONFIG_PATH, then ./config.yaml)")

	root.AddCommand(runCmd(), checkCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "captionbot:", err)
		os.Exit(1)
	}
}

func loadConfig(path string, optional bool) (corecmd.ConfigCarrier, error) {
	return coreconfig.Load(path, optional)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        configPath,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig:        loadConfig,
				Bootstrap:         app.Bootstrap,
				Context:           cmd.Context(),
			})
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, optional := corecmd.ResolveConfigPath(configPath, "", defaultConfigPath)
			cfg, err := coreconfig.Load(path, optional)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: run_mode=%s relay.mode=%s queue_limit=%d journal=%t metrics=%q\n",
				cfg.Telegram.RunMode, cfg.Relay.Mode, cfg.Relay.QueueLimit,
				cfg.Database.Enabled, cfg.Metrics.Listen)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}
