package main

import (
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [session...]",
		Short: "Run the named sessions, or every stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.wire()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.Run(ctx, args)
		},
	}
}
