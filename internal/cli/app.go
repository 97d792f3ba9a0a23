package cli

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"toolshim-mcp/internal/automation"
	"toolshim-mcp/internal/automation/roddriver"
	"toolshim-mcp/internal/cache"
	"toolshim-mcp/internal/config"
	"toolshim-mcp/internal/dispatch"
	"toolshim-mcp/internal/registry"
	"toolshim-mcp/internal/server"
	"toolshim-mcp/internal/telemetry"
	"toolshim-mcp/internal/tools"
)

// App is an assembled, not yet started, server.
type App struct {
	Config     *config.Config
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Server     *server.Server
	Metrics    *telemetry.Metrics
	// HTTP is set when the http transport is configured.
	HTTP *server.HTTPTransport
}

// Build wires the registry, dispatcher, resources and, when withTransports
// is set, the configured transport.
func Build(cfg *config.Config, withTransports bool) (*App, error) {
	app := &App{
		Config:   cfg,
		Registry: registry.New(),
		Metrics:  telemetry.NewMetrics(),
	}

	if err := tools.RegisterBuiltins(app.Registry); err != nil {
		return nil, err
	}

	var resources []server.Resource
	driver, err := automationDriver(cfg.Automation)
	if err != nil {
		return nil, err
	}
	if r, ok := driver.(server.Resource); ok {
		resources = append(resources, r)
	}
	if err := automation.Register(app.Registry, driver, automation.WithPause(cfg.Automation.Pause)); err != nil {
		return nil, err
	}
	app.Metrics.SetRegisteredTools(app.Registry.Len())

	opts := []dispatch.Option{
		dispatch.WithMetrics(app.Metrics),
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
	}
	if cfg.Dispatch.CacheTTL > 0 {
		results := cache.New[json.RawMessage]()
		opts = append(opts, dispatch.WithResultCache(results, cfg.Dispatch.CacheTTL))
		resources = append([]server.Resource{cache.NewSweeper(cfg.Dispatch.SweepSchedule, results)}, resources...)
	}
	app.Dispatcher = dispatch.New(app.Registry, opts...)

	srvOpts := []server.Option{server.WithResources(resources...)}
	if withTransports {
		switch cfg.Server.Transport {
		case "http":
			httpCfg := server.HTTPConfig{
				Addr:           cfg.HTTP.Addr,
				Token:          cfg.HTTP.Token,
				TLSCertFile:    cfg.HTTP.TLSCertFile,
				TLSKeyFile:     cfg.HTTP.TLSKeyFile,
				RequestTimeout: cfg.HTTP.RequestTimeout,
				WebSocket:      cfg.HTTP.WebSocket,
				Stream:         cfg.HTTP.Stream,
				ServerName:     cfg.Server.Name,
				ServerVersion:  cfg.Server.Version,
			}
			if cfg.HTTP.Metrics {
				httpCfg.Metrics = app.Metrics.Handler()
			}
			app.HTTP = server.NewHTTPTransport(httpCfg)
			srvOpts = append(srvOpts, server.WithTransports(app.HTTP))
		case "stdio":
			srvOpts = append(srvOpts, server.WithTransports(server.NewStdioTransport(cfg.Server.Name, cfg.Server.Version)))
		default:
			return nil, errors.Newf("unknown transport %q", cfg.Server.Transport)
		}
	}
	app.Server = server.New(app.Dispatcher, srvOpts...)
	return app, nil
}

func automationDriver(cfg config.AutomationConfig) (automation.Driver, error) {
	switch cfg.Backend {
	case "", "none":
		return automation.Unavailable("no backend configured, set automation.backend"), nil
	case "rod":
		return roddriver.New(roddriver.Config{
			Bin:       cfg.Rod.Bin,
			Headless:  cfg.Rod.Headless,
			NoSandbox: cfg.Rod.NoSandbox,
			Width:     cfg.Rod.Width,
			Height:    cfg.Rod.Height,
			URL:       cfg.Rod.URL,
		}), nil
	}
	return nil, errors.Newf("unknown automation backend %q", cfg.Backend)
}
