package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"strings"
	"twitchbot/internal/app/domain/credential"
)

func newCredsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage stored credentials",
	}

	cmd.AddCommand(
		newCredsListCmd(opts),
		newCredsAddCmd(opts),
		newCredsDeleteCmd(opts),
		newCredsValidateCmd(opts),
	)

	return cmd
}

func newCredsListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			names, err := a.Overseer.Credentials(cmd.Context())
			if err != nil {
				return err
			}

			for _, name := range names {
				cred, err := a.Store.LoadCredential(cmd.Context(), name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, cred.Username, cred.Scopes)
			}
			return nil
		},
	}
}

func newCredsAddCmd(opts *options) *cobra.Command {
	var (
		cred     credential.Credential
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store a credential under name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			cred.AccessToken = strings.TrimPrefix(cred.AccessToken, "oauth:")
			if validate {
				who, err := a.API.ValidateToken(cmd.Context(), cred.AccessToken)
				if err != nil {
					return fmt.Errorf("validate access token: %w", err)
				}
				if cred.Username == "" {
					cred.Username = who.Login
				}
				if cred.Scopes == "" {
					cred.Scopes = strings.Join(who.Scopes, " ")
				}
			}

			if err := cred.Validate(); err != nil {
				return err
			}
			if err := a.Overseer.SaveCredential(cmd.Context(), args[0], cred); err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "saved credential %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&cred.Username, "username", "", "login the token belongs to")
	cmd.Flags().StringVar(&cred.AccessToken, "access-token", "", "OAuth access token")
	cmd.Flags().StringVar(&cred.RefreshToken, "refresh-token", "", "OAuth refresh token used for renewal")
	cmd.Flags().StringVar(&cred.Scopes, "scopes", "", "space separated scopes")
	cmd.Flags().BoolVar(&validate, "validate", false, "check the token online and fill username and scopes")
	_ = cmd.MarkFlagRequired("access-token")

	return cmd
}

func newCredsDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a credential no session refers to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			if err := a.Overseer.DeleteCredential(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted credential %s\n", args[0])
			return nil
		},
	}
}

func newCredsValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <name>",
		Short: "Ask the identity service whether a stored access token is still valid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			cred, err := a.Store.LoadCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			who, err := a.API.ValidateToken(cmd.Context(), cred.AccessToken)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "login: %s\nscopes: %s\nexpires in: %ds\n", who.Login, strings.Join(who.Scopes, " "), who.ExpiresIn)
			return nil
		},
	}
}
