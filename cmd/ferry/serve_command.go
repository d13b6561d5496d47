package main

import (
	"strings"

	"github.com/spf13/cobra"

	"ferry/internal/api"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only status API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(false)
			if err != nil {
				return err
			}
			defer s.close()

			addr := strings.TrimSpace(bind)
			if addr == "" {
				addr = s.cfg.Server.Bind
			}
			s.metrics.RegisterRuntime()

			runCtx, stop := runContext(cmd)
			defer stop()

			srv := api.NewServer(addr, s.store.Path(), s.store, s.metrics, s.logger)
			if err := srv.Start(runCtx); err != nil {
				return err
			}
			<-runCtx.Done()
			srv.Shutdown()
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default from config)")
	return cmd
}
