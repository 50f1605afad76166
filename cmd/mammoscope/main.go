// ABOUTME: CLI entrypoint for mammoscope with serve, predict, compare, tui, and mcp subcommands.
// ABOUTME: Loads .env and config once per invocation and wires the artifact store, pipelines, and logger.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/2389-research/mammoscope/artifact"
	"github.com/2389-research/mammoscope/config"
	"github.com/2389-research/mammoscope/logging"
	"github.com/2389-research/mammoscope/pipeline"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	envFile    string
}

// app is the wiring every subcommand starts from.
type app struct {
	cfg       config.Config
	logger    log.Logger
	store     *artifact.Store
	pipelines *pipeline.Set
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "mammoscope",
		Short: "Mammogram classification front-ends for the WOA prediction engine",
		Long: "mammoscope runs the mammogram prediction engine on uploaded images and presents\n" +
			"the result as a web page, a terminal dashboard, a CSV or PDF report, or MCP tools.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.SetVersionTemplate("mammoscope {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default: $MAMMOSCOPE_CONFIG or $XDG_CONFIG_HOME/mammoscope/config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before config; existing variables win")

	root.AddCommand(
		newServeCmd(opts),
		newPredictCmd(opts),
		newCompareCmd(opts),
		newTUICmd(opts),
		newMCPCmd(opts),
	)
	installHelp(root, opts)
	return root
}

// loadConfig applies the dotenv file and builds the immutable config.
func (o *rootOptions) loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		if !logging.ValidLevel(o.logLevel) {
			return config.Config{}, fmt.Errorf("%w: unknown log level %q", config.ErrInvalidConfig, o.logLevel)
		}
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// build loads config and wires the store and pipelines. Logs go to logOut.
func (o *rootOptions) build(logOut io.Writer) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logOut, cfg.LogLevel)

	store, err := artifact.NewStore(cfg.Uploads.Dir)
	if err != nil {
		return nil, fmt.Errorf("open upload dir: %w", err)
	}
	set, err := pipeline.FromConfig(cfg, pipeline.NewRunner(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("build pipelines: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: store, pipelines: set}, nil
}
