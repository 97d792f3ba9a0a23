package cli

import (
	"bytes"
	"context"
	"io"

	"github.com/dimiro1/banner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"toolshim-mcp/internal/config"
	"toolshim-mcp/internal/telemetry"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tool server",
		Long: `Start the tool server. With the default stdio transport the server speaks
MCP on stdin/stdout and logs to stderr. With --transport http it serves the
JSON API, websocket and MCP streamable HTTP endpoints.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, lg, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer lg.Close()
			return runServe(cmd.Context(), cfg, cmd.ErrOrStderr())
		},
	}

	f := cmd.Flags()
	f.String("transport", "", "transport (stdio, http)")
	f.String("addr", "", "HTTP listen address")
	f.String("token", "", "bearer token required on /mcp routes")
	f.Duration("timeout", 0, "per-invocation timeout (0 = none)")
	return cmd
}

// runServe starts the server and blocks until ctx is done or a transport
// ends on its own.
func runServe(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	if cfg.Tracing.Enabled {
		telemetry.InitTracing(cfg.Server.Name)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			_ = telemetry.ShutdownTracing(shutdownCtx)
		}()
	}

	app, err := Build(cfg, true)
	if err != nil {
		return err
	}

	if cfg.Server.Transport == "http" {
		printBanner(stderr, cfg)
		if cfg.HTTP.Token == "" {
			log.Warn().Msg("http.token not set; /mcp endpoints are open")
		}
	}

	if err := app.Server.Start(ctx); err != nil {
		return err
	}

	var transportErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown requested")
	case transportErr = <-app.Server.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Stop(stopCtx); err != nil {
		return err
	}
	return transportErr
}

func printBanner(w io.Writer, cfg *config.Config) {
	tpl := "{{ .Title \"toolshim\" \"\" 0 }}\n" +
		"Version: " + cfg.Server.Version + "\n" +
		"Listening on " + cfg.HTTP.Addr + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
