// ABOUTME: "mammoscope serve" starts the HTTP front-end until interrupted.
// ABOUTME: Flags override the listen address and debug diagnostics from config.
package main

import (
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and prediction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if debug {
				cfg.Debug = true
			}

			srv, err := web.NewServer(cfg, a.store, a.pipelines, a.logger)
			if err != nil {
				return err
			}
			_ = level.Info(a.logger).Log(
				"msg", "starting mammoscope",
				"version", version,
				"config", orDefault(cfg.Source()),
				"mock", cfg.Mock.Enabled,
				"debug", cfg.Debug,
			)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "attach engine diagnostics to every response")
	return cmd
}

func orDefault(source string) string {
	if source == "" {
		return "defaults"
	}
	return source
}
