// ABOUTME: "mammoscope mcp" serves the prediction tools over stdio for MCP clients.
// ABOUTME: stdout carries the protocol, so logs always go to stderr.
package main

import (
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP tool server over stdio",
		Long: `Starts an MCP server over stdin/stdout exposing predict_mammogram and
compare_models. Tools read images from paths on this host.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.build(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			srv, err := mcp.NewServer(version, a.store, a.pipelines, debug || a.cfg.Debug, logging.Component(a.logger, "mcp"))
			if err != nil {
				return err
			}
			_ = level.Info(a.logger).Log("msg", "starting MCP server over stdio", "version", version)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&debug, "debug", false, "attach engine diagnostics to every envelope")
	return cmd
}
