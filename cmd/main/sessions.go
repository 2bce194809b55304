package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"strings"
	"twitchbot/internal/app/infrastructure/storage"
)

func newSessionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}

	cmd.AddCommand(
		newSessionsListCmd(opts),
		newSessionsCreateCmd(opts),
		newSessionsDeleteCmd(opts),
	)

	return cmd
}

func newSessionsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			names, err := a.Overseer.KnownSessions(cmd.Context())
			if err != nil {
				return err
			}

			for _, name := range names {
				rec, err := a.Store.LoadSession(cmd.Context(), name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s://%s\t%s\n",
					name, rec.Credential, rec.Transport, rec.Addr(), strings.Join(rec.Channels, ","))
			}
			return nil
		},
	}
}

func newSessionsCreateCmd(opts *options) *cobra.Command {
	var rec storage.SessionRecord

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Store a new session bound to a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			if err := a.Overseer.CreateSession(cmd.Context(), args[0], rec); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created session %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&rec.Credential, "credential", "", "name of a stored credential")
	cmd.Flags().StringVar(&rec.Host, "host", "", "chat server host (default from config)")
	cmd.Flags().IntVar(&rec.Port, "port", 0, "chat server port (default from config)")
	cmd.Flags().StringVar(&rec.Transport, "transport", "", "tcp, tls or ws (default from config)")
	cmd.Flags().StringSliceVar(&rec.Channels, "channel", nil, "channel to join, repeatable")
	_ = cmd.MarkFlagRequired("credential")

	return cmd
}

func newSessionsDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			if err := a.Overseer.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted session %s\n", args[0])
			return nil
		},
	}
}
