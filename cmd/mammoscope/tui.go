// ABOUTME: "mammoscope tui" opens the Bubble Tea dashboard for selecting, submitting, and exporting results.
// ABOUTME: Logs go to --log-file (or nowhere) so they never draw over the alt screen.
package main

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/tui"
)

func newTUICmd(root *rootOptions) *cobra.Command {
	var (
		flags     requestFlags
		exportDir string
		logFile   string
	)
	cmd := &cobra.Command{
		Use:   "tui [image]",
		Short: "Interactive terminal dashboard",
		Long:  "Opens the terminal dashboard, optionally selecting an image first.\n\nKeys: " + tui.Help,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}

			p, err := flags.connect(root, logOut)
			if err != nil {
				return err
			}
			target := "local"
			if flags.server != "" {
				target = flags.server
			}

			appOpts := []tui.AppOption{tui.WithExportDir(exportDir)}
			if len(args) == 1 {
				appOpts = append(appOpts, tui.WithInitialPath(args[0]))
			}
			model := tui.NewAppModel(cmd.Context(), p, target, flags.options(), appOpts...)

			prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.server, "server", "", "base URL of a running mammoscope server (default: run in-process)")
	cmd.Flags().BoolVar(&flags.mock, "mock", false, "start with mock mode on (toggle with m)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "start with debug diagnostics on (toggle with d)")
	cmd.Flags().StringVar(&exportDir, "export-dir", ".", "directory CSV exports are written to")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file")
	return cmd
}
