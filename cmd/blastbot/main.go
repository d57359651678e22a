package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blastbot/internal/app"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "blastbot",
		Short:         "Sequential message blaster over a chat-messaging transport",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./config.yaml", "path to config file (json or yaml)")

	var contactsPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "One-shot batch: load contacts, send to each, print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			sum, err := a.RunBatch(ctx, contactsPath)
			if err != nil {
				return err
			}
			fmt.Printf("total=%d sent=%d failed=%d\n", sum.Total, sum.Sent, sum.Failed)
			return nil
		},
	}
	runCmd.Flags().StringVar(&contactsPath, "contacts", "", "contact file (overrides dispatch.contacts)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Persistent mode: HTTP gateway plus scheduled blasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Serve(ctx)
		},
	}

	root.AddCommand(runCmd, serveCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
