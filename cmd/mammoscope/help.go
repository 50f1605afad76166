// ABOUTME: Root help extension that reports the resolved configuration and engine status.
// ABOUTME: Provides printEnvironment for the help footer and envStatus for MAMMOSCOPE_* detection.
package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/config"
)

// envKeys are the variables config.Load reads.
var envKeys = []string{
	"MAMMOSCOPE_CONFIG",
	"MAMMOSCOPE_ADDR",
	"MAMMOSCOPE_UPLOAD_DIR",
	"MAMMOSCOPE_WORKDIR",
	"MAMMOSCOPE_PYTHON",
	"MAMMOSCOPE_LOG_LEVEL",
	"MAMMOSCOPE_DEBUG",
	"MAMMOSCOPE_MOCK",
}

// installHelp appends the environment report to the root command's help.
func installHelp(root *cobra.Command, opts *rootOptions) {
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		defaultHelp(cmd, args)
		if cmd != root {
			return
		}
		cfg, err := opts.loadConfig()
		fmt.Fprintln(cmd.OutOrStdout())
		printEnvironment(cmd.OutOrStdout(), cfg, err)
	})
}

// printEnvironment writes where config came from and whether the engine can run.
func printEnvironment(w io.Writer, cfg config.Config, loadErr error) {
	fmt.Fprintln(w, "Environment:")
	for _, key := range envKeys {
		fmt.Fprintf(w, "  %-22s %s\n", key, envStatus(key))
	}
	fmt.Fprintln(w)

	if loadErr != nil {
		fmt.Fprintf(w, "Config: [error] %v\n", loadErr)
		return
	}
	fmt.Fprintln(w, "Config:")
	fmt.Fprintf(w, "  %-10s %s\n", "source", orDefault(cfg.Source()))
	fmt.Fprintf(w, "  %-10s %s %s\n", "python", cfg.Python(), lookStatus(cfg.Python()))
	fmt.Fprintf(w, "  %-10s %s %s\n", "workdir", cfg.Workdir(), fileStatus(cfg.Workdir()))
	for _, name := range []string{"default", "woa", "ewoa"} {
		if p, ok := cfg.Model(name); ok {
			fmt.Fprintf(w, "  %-10s %s %s\n", name, p, fileStatus(p))
		}
	}
	fmt.Fprintf(w, "  %-10s %s\n", "uploads", cfg.Uploads.Dir)
	fmt.Fprintf(w, "  %-10s %v\n", "mock", cfg.Mock.Enabled)
}

// envStatus returns "[set]" if the named environment variable is non-empty,
// or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" {
		return "[set]"
	}
	return "[not set]"
}

func lookStatus(program string) string {
	if _, err := exec.LookPath(program); err != nil {
		return "[not found]"
	}
	return "[found]"
}

func fileStatus(path string) string {
	if _, err := os.Stat(path); err != nil {
		return "[missing]"
	}
	return "[ok]"
}
