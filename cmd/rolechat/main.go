// Package main is the entry point for the rolechat CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/rolechat/internal/mcpserver"
	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rolechat",
		Short:         "Roleplay chat server for Gemini and OpenAI-compatible models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(
		versionCmd(),
		serveCmd(),
		chatCmd(),
		modelsCmd(),
		configCmd(),
		setupCmd(),
		serviceCmd(),
		mcpCmd(),
	)
	return root
}

func params(cmd *cobra.Command) app.Params {
	cfgPath, _ := cmd.Flags().GetString("config")
	return app.Params{ConfigPath: cfgPath, Version: version}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and registered providers",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rolechat %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nProviders:")
			for _, k := range provider.RegisteredKinds() {
				fmt.Fprintf(out, "  %s\n", k)
			}
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(params(cmd))
		},
	}
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			p := params(cmd)
			p.LogOutput = cmd.ErrOrStderr()
			a, err := app.Build(ctx, p)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			models, err := a.Service.ListModels(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\n", m.Name, m.DisplayName)
			}
			return w.Flush()
		},
	}
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve reply suggestions and summaries as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			// stdout carries the protocol; logs go to stderr.
			p := params(cmd)
			p.LogOutput = os.Stderr
			a, err := app.Build(ctx, p)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

			srv := mcpserver.New(a.Service, version, a.Logger)
			return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		},
	}
}
