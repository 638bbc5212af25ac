// CLAUDE:SUMMARY CLI entry point for scandoc — HTTP + MCP server with heartbeats, stdio MCP, and one-shot stats/list/export/share/health modes.
// Command scandoc is the document scanner service.
//
// Usage:
//
//	scandoc -config scandoc.yaml            # serve HTTP API and MCP (/mcp)
//	scandoc -db data/scandoc.db -mcp-stdio  # serve MCP on stdin/stdout
//	scandoc -db data/scandoc.db -stats      # show stats and exit
//	scandoc -db data/scandoc.db -health     # show the server heartbeat and exit
//	scandoc -db data/scandoc.db -list       # list documents and exit
//	scandoc -db data/scandoc.db -export ID  # export one document and exit
//	scandoc -db data/scandoc.db -share ID   # export, share and exit
//	scandoc -db data/scandoc.db -maintenance on -maintenance-msg "disk swap"
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
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/term"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/scandoc/docscan"
)

var version = "dev"

type options struct {
	configPath string
	dbPath     string
	listen     string
	logLevel   string
	stats      bool
	health     bool
	list       bool
	exportID   string
	shareID    string
	mcpStdio   bool
	maint      string
	maintMsg   string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to scandoc.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address (overrides config)")
	flag.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	flag.BoolVar(&o.stats, "stats", false, "show stats and exit")
	flag.BoolVar(&o.health, "health", false, "show the latest server heartbeat and exit (exit 1 when stale)")
	flag.BoolVar(&o.list, "list", false, "list documents and exit")
	flag.StringVar(&o.exportID, "export", "", "export the document as PDF and exit")
	flag.StringVar(&o.shareID, "share", "", "export and share the document, then exit")
	flag.BoolVar(&o.mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout")
	flag.StringVar(&o.maint, "maintenance", "", "set maintenance mode (on|off) and exit")
	flag.StringVar(&o.maintMsg, "maintenance-msg", "", "message returned while in maintenance")
	flag.Parse()

	cfg, err := resolveConfig(o)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scandoc:", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, o); err != nil {
		logger.Error("scandoc: fatal", "error", err)
		os.Exit(1)
	}
}

func resolveConfig(o options) (*docscan.Config, error) {
	cfg := docscan.DefaultConfig()
	if o.configPath != "" {
		loaded, err := docscan.LoadConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, cfg.Validate()
}

// newLogger writes JSON to stderr, or text when stderr is a terminal.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(ctx context.Context, logger *slog.Logger, cfg *docscan.Config, o options) error {
	svc, err := docscan.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	switch {
	case o.stats:
		return printJSON(svc.Stats())
	case o.health:
		hs, err := svc.Heartbeat(ctx, 45*time.Second)
		if err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
		if err := printJSON(hs); err != nil {
			return err
		}
		if hs == nil || !hs.Alive {
			return errors.New("no live scandoc server")
		}
		return nil
	case o.list:
		return printJSON(svc.Documents())
	case o.exportID != "":
		path, err := svc.Export(ctx, o.exportID)
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return printJSON(map[string]string{"doc_id": o.exportID, "path": path})
	case o.shareID != "":
		res, err := svc.Share(ctx, o.shareID)
		if err != nil {
			return fmt.Errorf("share: %w", err)
		}
		return printJSON(res)
	case o.maint != "":
		active := strings.EqualFold(o.maint, "on")
		if !active && !strings.EqualFold(o.maint, "off") {
			return fmt.Errorf("-maintenance: want on or off, got %q", o.maint)
		}
		if err := svc.SetMaintenance(ctx, active, o.maintMsg); err != nil {
			return fmt.Errorf("maintenance: %w", err)
		}
		return printJSON(map[string]bool{"maintenance": active})
	case o.mcpStdio:
		srv := mcp.NewServer(&mcp.Implementation{Name: "scandoc", Version: version}, nil)
		svc.RegisterMCP(srv)
		logger.Info("scandoc: serving MCP on stdio", "db", cfg.DBPath)
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	svc.WatchMaintenance(ctx, 5*time.Second)
	svc.StartHeartbeat(ctx, 15*time.Second)

	r := chi.NewRouter()
	r.Mount("/mcp", svc.MCPHandler(&mcp.Implementation{Name: "scandoc", Version: version}))
	r.Mount("/", svc.Routes())

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("scandoc: listening", "addr", cfg.Listen, "db", cfg.DBPath, "export_dir", cfg.ExportDir)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("scandoc: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
