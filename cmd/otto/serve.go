package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"otto/internal/server"
)

func newServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP orchestration server",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := buildContainer(configPath, true)
			if err != nil {
				return exitErr(exitUnavailable, err)
			}

			cfg := container.Config.Server
			if host != "" {
				cfg.Host = host
			}
			if port != 0 {
				cfg.Port = port
			}

			srv := server.NewServer(cfg, server.Deps{
				Orchestrator: container.Orchestrator,
				Bus:          container.Bus,
				Registry:     container.Registry,
				Memory:       container.Memory,
				LLM:          container.LLM,
				Obs:          container.Obs,
			})

			if obsCfg := container.Obs.Config(); obsCfg.Metrics.Enabled {
				if err := container.Obs.Metrics.StartPrometheusServer(obsCfg.Metrics.PrometheusPort); err != nil {
					return exitErr(exitUnavailable, err)
				}
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			fmt.Printf("%s listening on %s:%d (model %s, %d tools)\n",
				bold("otto"), cfg.Host, cfg.Port, container.LLM.Model(), len(container.Registry.List()))

			select {
			case err := <-errCh:
				return exitErr(exitUnavailable, err)
			case sig := <-stop:
				fmt.Printf("\n%s received %s, shutting down\n", gray("otto"), sig)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Stop(ctx); err != nil {
				return err
			}
			return container.Obs.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "bind address (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "bind port (overrides config)")
	return cmd
}
