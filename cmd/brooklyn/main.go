// Package main provides the Brooklyn browser automation server. It
// serves a pooled, tenant-aware browser automation surface over MCP,
// either on a stdio pipe for spawned-child setups or over HTTP with
// streaming channels for shared deployments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/config"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/engine"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/maintenance"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/pool"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/router"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/security"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/session"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/transport"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration. Flags override the
// config file, which overrides built-in defaults.
type CLIConfig struct {
	ConfigFile   string
	EnvFile      string
	Mode         string
	Addr         string
	AuthToken    string
	TeamID       string
	MaxInstances int
	Engine       string
	Headful      bool
	NoInstall    bool
	ShowVersion  bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("Brooklyn v%s\n", version)
		return
	}

	if err := loadDotEnv(cli.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "shutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags with environment fallbacks.
func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", os.Getenv("BROOKLYN_CONFIG"), "Path to configuration file (YAML)")
	flag.StringVar(&cli.EnvFile, "env-file", ".env", "Path to optional .env file")
	flag.StringVar(&cli.Mode, "mode", envOr("BROOKLYN_MODE", "stdio"), "Transport mode: stdio or http")
	flag.StringVar(&cli.Addr, "addr", os.Getenv("BROOKLYN_HTTP_ADDR"), "HTTP listen address (http mode)")
	flag.StringVar(&cli.AuthToken, "auth-token", os.Getenv("BROOKLYN_AUTH_TOKEN"), "Bearer token required on the HTTP surface")
	flag.StringVar(&cli.TeamID, "team", os.Getenv("BROOKLYN_TEAM_ID"), "Default team attributed to calls that name none")
	flag.IntVar(&cli.MaxInstances, "max-instances", 0, "Browser instance cap (overrides config file)")
	flag.StringVar(&cli.Engine, "engine", "", "Default browser engine: chromium, firefox, or webkit")
	flag.BoolVar(&cli.Headful, "headful", false, "Launch browsers with a visible window by default")
	flag.BoolVar(&cli.NoInstall, "no-install", false, "Skip the browser runtime install step at startup")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Brooklyn - Pooled Browser Automation Server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: brooklyn [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Serve MCP on stdio (the default, for spawned-child clients)\n")
		fmt.Fprintf(os.Stderr, "  brooklyn\n\n")
		fmt.Fprintf(os.Stderr, "  # Serve HTTP with streaming channels on port 8900\n")
		fmt.Fprintf(os.Stderr, "  brooklyn -mode http -addr :8900\n\n")
		fmt.Fprintf(os.Stderr, "  # Shared deployment with auth and a config file\n")
		fmt.Fprintf(os.Stderr, "  brooklyn -mode http -config brooklyn.yaml -auth-token $TOKEN\n\n")
	}

	flag.Parse()
	return cli
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadDotEnv loads environment variables from path. A missing file is
// ignored so .env stays optional.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// run wires the server components and serves until ctx is cancelled.
func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	defaultEngine, err := engine.ParseType(cfg.Pool.DefaultEngine)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logErr := logging.NewLogger("server")
	if logErr != nil {
		// The fallback stderr logger is already active; in stdio mode
		// that is still safe because protocol frames go to stdout.
		fmt.Fprintf(os.Stderr, "warning: file logging unavailable: %v\n", logErr)
	}
	defer func() { _ = logger.Close() }()

	logger.Infof("Brooklyn v%s starting (mode=%s)", version, cli.Mode)

	eng := engine.NewPlaywrightEngine(logger)
	if err := eng.Initialize(cfg.Pool.InstallBrowsers); err != nil {
		return fmt.Errorf("failed to start browser engine: %w", err)
	}
	defer func() { _ = eng.Shutdown() }()

	factory := pool.NewFactory(eng, logger)
	instancePool := pool.New(factory, pool.Config{
		MaxInstances: cfg.Security.MaxInstances,
		IdleTimeout:  time.Duration(cfg.Pool.IdleTimeoutMs) * time.Millisecond,
	}, logger)
	defer instancePool.Shutdown()

	sessions := session.NewManager(instancePool, session.Config{
		DefaultEngine: defaultEngine,
		Headless:      cfg.Pool.Headless,
	}, logger)
	defer sessions.Shutdown()

	controller, err := security.NewController(cfg.Security, sessions, logger)
	if err != nil {
		return fmt.Errorf("failed to build admission controller: %w", err)
	}

	rt := router.New(controller, logger)
	rt.BindOperations(router.Bindings{
		Sessions: sessions,
		Security: controller,
		Pool:     instancePool,
	})

	janitor, err := maintenance.New(instancePool, controller, maintenance.Config{
		PoolSweepSchedule:      cfg.Maintenance.PoolSweepSchedule,
		RateLimitSweepSchedule: cfg.Maintenance.RateLimitSweepSchedule,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	janitor.Start()
	defer janitor.Stop()

	switch cli.Mode {
	case "stdio":
		server := transport.NewStdioServer("brooklyn", version, rt, cfg.Server.DefaultTeamID, logger)
		return server.Serve(ctx, os.Stdin, os.Stdout)
	case "http":
		server := transport.NewHTTPServer(transport.HTTPConfig{
			Addr:              cfg.Server.HTTPAddr,
			AuthToken:         cfg.Server.AuthToken,
			DefaultTeamID:     cfg.Server.DefaultTeamID,
			HeartbeatInterval: time.Duration(cfg.Server.HeartbeatIntervalMs) * time.Millisecond,
			ServerName:        "brooklyn",
			ServerVersion:     version,
		}, rt, logger)
		return server.ListenAndServe(ctx)
	default:
		return fmt.Errorf("invalid mode: %s (must be 'stdio' or 'http')", cli.Mode)
	}
}

// loadConfig reads the config file and applies CLI overrides.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cli.Addr != "" {
		cfg.Server.HTTPAddr = cli.Addr
	}
	if cli.AuthToken != "" {
		cfg.Server.AuthToken = cli.AuthToken
	}
	if cli.TeamID != "" {
		cfg.Server.DefaultTeamID = cli.TeamID
	}
	if cli.MaxInstances > 0 {
		cfg.Security.MaxInstances = cli.MaxInstances
	}
	if cli.Engine != "" {
		cfg.Pool.DefaultEngine = cli.Engine
	}
	if cli.Headful {
		cfg.Pool.Headless = false
	}
	if cli.NoInstall {
		cfg.Pool.InstallBrowsers = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
