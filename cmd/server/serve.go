package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/mobi/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		app, err := server.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer app.Close() //nolint:errcheck

		return app.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "listen port (overrides server.port)")
}
