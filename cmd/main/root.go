package main

import (
	"github.com/spf13/cobra"
	"twitchbot/internal/pkg/app"
)

type options struct {
	configPath string
	envPath    string
	app        *app.App
}

// wire builds the app on first use so --help works without a config file.
func (o *options) wire() (*app.App, error) {
	if o.app != nil {
		return o.app, nil
	}

	a, err := app.New(o.configPath, o.envPath)
	if err != nil {
		return nil, err
	}
	o.app = a
	return a, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "twitchbot",
		Short:        "Chat bot that runs several bot accounts at once",
		Long:         "twitchbot keeps one chat connection per configured session, answers bot commands in chat and renews expired credentials on its own.",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", app.DefaultConfigPath, "path to config.json")
	rootCmd.PersistentFlags().StringVar(&opts.envPath, "env", app.DefaultEnvPath, "dotenv file with TWITCH_CLIENT_ID / TWITCH_CLIENT_SECRET")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newCredsCmd(opts),
		newSessionsCmd(opts),
	)

	return rootCmd
}
