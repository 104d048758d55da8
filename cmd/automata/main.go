// Command automata runs the automaton registry.
//
//	automata [-config file] serve            serve the MCP surface
//	automata [-config file] migrate          apply schema migrations and exit
//	automata [-config file] import <file>    apply a YAML manifest
//	automata [-config file] verify <ref>     verify an automaton's change ledger
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/automata/internal/config"
	"github.com/ashita-ai/automata/internal/executor"
	"github.com/ashita-ai/automata/internal/manifest"
	"github.com/ashita-ai/automata/internal/mcp"
	"github.com/ashita-ai/automata/internal/server"
	"github.com/ashita-ai/automata/internal/service/registry"
	"github.com/ashita-ai/automata/internal/storage"
	"github.com/ashita-ai/automata/internal/storage/postgres"
	"github.com/ashita-ai/automata/internal/storage/sqlite"
	"github.com/ashita-ai/automata/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	configPath := flag.String("config", "", "YAML config file (environment variables override it)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: automata [-config file] serve|migrate|import <manifest>|verify <automaton>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	level, _ := cfg.SlogLevel() // validated by Load

	// stdout carries the MCP stdio transport and command output.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve", "migrate":
		if len(rest) != 0 {
			return fmt.Errorf("%s takes no arguments", cmd)
		}
	case "import", "verify":
		if len(rest) != 1 {
			return fmt.Errorf("%s takes exactly one argument", cmd)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}

	otelShutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cmd == "migrate" {
		logger.Info("migrations applied", "store", cfg.Store)
		return nil
	}

	svc := registry.New(store, newExecutor(cfg, logger), logger,
		registry.WithTestTimeout(cfg.TestTimeout),
		registry.WithPersistTimeout(cfg.PersistTimeout),
		registry.WithSuiteConcurrency(cfg.SuiteConcurrency),
		registry.WithResultPageSize(cfg.ResultPageSize),
	)

	switch cmd {
	case "import":
		return importManifest(ctx, svc, rest[0], cfg.Actor)
	case "verify":
		return verifyLedger(ctx, svc, rest[0])
	default:
		return serve(ctx, cfg, svc, store, logger)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		db, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		db.RegisterPoolMetrics()
		return db, nil
	default:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return db, nil
	}
}

// newExecutor returns nil when no tool server is configured; RunTest then
// records every run as an error.
func newExecutor(cfg config.Config, logger *slog.Logger) registry.Executor {
	if cfg.ToolServerURL == "" {
		logger.Info("executor: disabled (no tool server URL)")
		return nil
	}
	var opts []executor.Option
	if cfg.ToolServerToken != "" {
		opts = append(opts, executor.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.ToolServerToken,
		}))
	}
	logger.Info("executor: tool server", "url", cfg.ToolServerURL)
	return executor.New(cfg.ToolServerURL, logger, version, opts...)
}

func importManifest(ctx context.Context, svc *registry.Service, path, actor string) error {
	m, err := manifest.LoadFile(path)
	if err != nil {
		return err
	}
	summaries, err := manifest.Apply(ctx, svc, m, actor)
	if err != nil {
		return err
	}
	return printJSON(summaries)
}

func verifyLedger(ctx context.Context, svc *registry.Service, ref string) error {
	a, err := svc.ResolveAutomaton(ctx, ref)
	if err != nil {
		return err
	}
	report, err := svc.VerifyLedger(ctx, a.ID)
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("ledger of %s has %d mismatched entries", a.Name, len(report.Mismatched))
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func serve(ctx context.Context, cfg config.Config, svc *registry.Service, store storage.Store, logger *slog.Logger) error {
	mcpSrv := mcp.New(svc, logger, version, cfg.Actor)
	slog.Info("automata starting", "version", version, "transport", cfg.MCPTransport, "store", cfg.Store)

	if cfg.MCPTransport == config.TransportStdio {
		stdio := mcpserver.NewStdioServer(mcpSrv.MCPServer())
		if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		slog.Info("automata stopped")
		return nil
	}

	srv := server.New(server.ServerConfig{
		MCPServer: mcpSrv.MCPServer(),
		Store:     store,
		Logger:    logger,
		Addr:      cfg.MCPAddr,
		Version:   version,
		Token:     cfg.MCPToken,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("automata shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("automata stopped")
	return nil
}
