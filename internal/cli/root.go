// Package cli implements the toolshim-mcp command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"toolshim-mcp/internal/config"
	"toolshim-mcp/internal/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "toolshim-mcp",
		Short: "Expose typed tools to model-driven clients over MCP and HTTP",
		Long: `toolshim-mcp serves a registry of named, typed tools. Clients list the
tools with their argument schemas and invoke them by name over MCP (stdio or
streamable HTTP), a JSON HTTP API or a websocket.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (json, console)")
	pf.String("log-file", "", "also append logs to this file")
	pf.String("automation-backend", "", "automation backend (none, rod)")

	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	cmd.AddCommand(newServeCmd(opts), newToolsCmd(opts), newCallCmd(opts))
	return cmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// setup loads configuration and installs the logger for cmd.
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	cfg, err := config.NewLoader(o.configPath, cmd.Flags()).Load()
	if err != nil {
		return nil, nil, err
	}
	lg, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, lg, nil
}
