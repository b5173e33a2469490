package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-waiter/internal/log"
	"github.com/teslashibe/go-waiter/pkg/hub"
	"github.com/teslashibe/go-waiter/pkg/web"
)

var (
	servePort   string
	serveStatic string
)

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port; overrides PORT")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "directory served at / (dashboard assets)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard and voice session server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	logger := log.L()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events := hub.New("events", logger)
	st, err := buildStack(ctx, cfg, events, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := web.NewServer(web.Options{
		Port:      cfg.Port,
		Store:     st.store,
		Voice:     st.voice,
		Hub:       events,
		StaticDir: serveStatic,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		if err != nil {
			return err
		}
	}
	if err := srv.Shutdown(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
