package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dj707chen/postgres-mcp-server/internal/config"
	"github.com/dj707chen/postgres-mcp-server/internal/gateway"
	"github.com/dj707chen/postgres-mcp-server/internal/mcp"
	"github.com/dj707chen/postgres-mcp-server/internal/transport"
)

var version = "0.2.0"

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "postgres-mcp-server",
		Short:         "MCP server exposing a SQL database over JSON-RPC",
		Long:          "Model Context Protocol server that exposes a relational database as a read-only-by-default query tool and table resources.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, modeHTTP)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("database-url", "", "Database connection URL (overrides DATABASE_URL)")
	pf.String("driver", "", "Database driver: postgres, mysql, sqlite, duckdb")
	pf.Bool("allow-write", false, "DANGEROUS: allow mutating statements")
	pf.Bool("strict", false, "Reject anything but a single read statement")
	pf.Bool("validate-table-names", false, "Check resource table names against the catalog")
	pf.Duration("connect-timeout", gateway.DefaultConnectTimeout, "Database connect timeout")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text, json")

	addHTTPFlags(rootCmd.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve JSON-RPC over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, modeHTTP)
		},
	}
	addHTTPFlags(serveCmd.Flags())

	stdioCmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve line-delimited JSON-RPC on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, modeStdio)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	rootCmd.AddCommand(serveCmd, stdioCmd, versionCmd)
	return rootCmd
}

func addHTTPFlags(fs *pflag.FlagSet) {
	fs.String("host", config.DefaultHost, "HTTP listen host")
	fs.Int("port", config.DefaultPort, "HTTP listen port")
	fs.Float64("rate-limit-rps", 0, "Per-client requests per second (0 disables)")
	fs.Int("rate-limit-burst", 0, "Per-client burst size")
	fs.StringSlice("cors-origins", nil, "Allowed CORS origins")
}

type mode int

const (
	modeHTTP mode = iota
	modeStdio
)

// loadConfig applies flag > env > file > default.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	fs := cmd.Flags()
	path, _ := fs.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(fs, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}

	set("database-url", func() (e error) { cfg.DatabaseURL, e = fs.GetString("database-url"); return })
	set("driver", func() (e error) { cfg.Driver, e = fs.GetString("driver"); return })
	set("allow-write", func() (e error) { cfg.AllowWrite, e = fs.GetBool("allow-write"); return })
	set("strict", func() (e error) { cfg.StrictReadOnly, e = fs.GetBool("strict"); return })
	set("validate-table-names", func() (e error) { cfg.ValidateTableNames, e = fs.GetBool("validate-table-names"); return })
	set("connect-timeout", func() (e error) { cfg.ConnectTimeout, e = fs.GetDuration("connect-timeout"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = fs.GetString("log-level"); return })
	set("log-format", func() (e error) { cfg.LogFormat, e = fs.GetString("log-format"); return })

	if fs.Lookup("host") != nil {
		set("host", func() (e error) { cfg.Host, e = fs.GetString("host"); return })
		set("port", func() (e error) { cfg.Port, e = fs.GetInt("port"); return })
		set("rate-limit-rps", func() (e error) { cfg.RateLimitRPS, e = fs.GetFloat64("rate-limit-rps"); return })
		set("rate-limit-burst", func() (e error) { cfg.RateLimitBurst, e = fs.GetInt("rate-limit-burst"); return })
		set("cors-origins", func() (e error) { cfg.CORSAllowedOrigins, e = fs.GetStringSlice("cors-origins"); return })
	}
	return err
}

func run(cmd *cobra.Command, m mode) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// stdout carries the stdio transport, so logs always go to stderr.
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	dialect, dsn, err := cfg.Resolve(os.Getenv)
	if err != nil {
		return err
	}

	gw := gateway.New(cfg.GatewayConfig(dialect, dsn, logger))
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("failed to close database connection", "error", err)
		}
	}()

	if cfg.AllowWrite {
		logger.Warn("write operations are ENABLED")
	} else {
		logger.Info("read-only mode (write operations disabled)")
	}

	dispatcher := mcp.NewDispatcher(gw, version, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch m {
	case modeStdio:
		logger.Info("starting MCP server", "server", dialect.ServerName(), "transport", "stdio")
		err = transport.NewStdio(dispatcher, os.Stdin, os.Stdout, logger).Serve(ctx)
	default:
		logger.Info("starting MCP server", "server", dialect.ServerName(), "transport", "http",
			"health", "http://"+cfg.Addr()+"/health")
		router := transport.NewRouter(dispatcher, transport.HTTPConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RateLimit: transport.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitRPS,
				Burst:             cfg.RateLimitBurst,
			},
		}, logger)
		err = transport.ServeHTTP(ctx, cfg.Addr(), router, logger)
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("server shutdown gracefully")
		return nil
	}
	return err
}
