package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/relay/internal/api"
	"github.com/kalambet/relay/internal/composer"
	"github.com/kalambet/relay/internal/config"
	"github.com/kalambet/relay/internal/dispatch"
	"github.com/kalambet/relay/internal/memory"
	"github.com/kalambet/relay/internal/ollama"
	"github.com/kalambet/relay/internal/retrieval"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show relay system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath() string {
	return filepath.Join(config.DataDir(), "relay.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildMemory constructs the memory store per configuration. When vector
// mode is requested but the index cannot be opened, the store downgrades to
// session mode on its own; this only reports the failure.
func buildMemory(cfg config.Config) (*memory.Store, func() error, error) {
	noop := func() error { return nil }

	if !cfg.Memory.Enabled {
		return memory.New(memory.Options{
			Enabled:     false,
			StoragePath: cfg.Memory.StoragePath,
		}, nil), noop, nil
	}

	var vectors *memory.VectorMemory
	closer := noop
	if cfg.Memory.Mode == memory.ModeVector {
		embedder := retrieval.NewEmbedder(ollama.New(cfg.Local.BaseURL), cfg.Memory.EmbeddingModel)
		v, c, err := memory.OpenVector(cfg.Memory.StoragePath, embedder)
		if err != nil {
			slog.Warn("vector index unavailable", "error", err)
		} else {
			vectors = v
			closer = c
		}
	}

	store := memory.New(memory.Options{
		Enabled:     true,
		Mode:        cfg.Memory.Mode,
		StoragePath: cfg.Memory.StoragePath,
		MaxHistory:  cfg.Memory.MaxHistory,
	}, vectors)
	return store, closer, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "relay version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	// Ensure the management API token exists in the platform secret store.
	apiToken, err := config.EnsureAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to start twice. The health endpoint is the source of truth; the
	// PID file only names the culprit.
	pidPath := pidFilePath()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Verify Ollama readiness when anything depends on it.
	chatModel := ""
	if cfg.Backend.Active == string(dispatch.KindLocal) {
		chatModel = cfg.Local.Model
	}
	embedModel := ""
	if cfg.Memory.Enabled && cfg.Memory.Mode == memory.ModeVector {
		embedModel = cfg.Memory.EmbeddingModel
	}
	if chatModel != "" || embedModel != "" {
		client := ollama.New(cfg.Local.BaseURL)
		if err := ollama.EnsureReady(ctx, client, chatModel, embedModel, os.Stderr); err != nil {
			return err
		}
	}

	backend, err := dispatch.FromConfig(cfg)
	if err != nil {
		return err
	}

	mem, closeMem, err := buildMemory(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeMem(); err != nil {
			slog.Warn("closing vector index", "error", err)
		}
	}()

	dispatcher := dispatch.New(backend, mem, composer.New(0), slog.Default())

	handler := api.NewHandler(api.Deps{
		Dispatcher: dispatcher,
		Memory:     mem,
		Token:      apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server on stdio.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Dispatcher: dispatcher,
		Memory:     mem,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", addr, "backend", backend.Kind(), "memory", mem.Mode())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	pidPath := pidFilePath()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("relay is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop relay (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to relay (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Backend", "%s", cfg.Backend.Active)
	switch cfg.Backend.Active {
	case string(dispatch.KindOpenAI):
		printStatus("Model", "%s", cfg.OpenAI.Model)
	case string(dispatch.KindLocal):
		printStatus("Model", "%s", cfg.Local.Model)
	}

	if cfg.Backend.Active == string(dispatch.KindLocal) ||
		(cfg.Memory.Enabled && cfg.Memory.Mode == memory.ModeVector) {
		if resp, err := client.Get(cfg.Local.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			resp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Local.BaseURL)
		}
	}

	if cfg.Memory.Enabled {
		printStatus("Memory", "%s (max history %d)", cfg.Memory.Mode, cfg.Memory.MaxHistory)
	} else {
		printStatus("Memory", "disabled")
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			if resp, err := c.get(context.Background(), "/api/sessions"); err == nil {
				var result struct {
					Sessions []struct {
						ID string `json:"id"`
					} `json:"sessions"`
				}
				if decodeJSON(resp, &result) == nil {
					printStatus("Sessions", "%d", len(result.Sessions))
				}
			}
		}
	}

	printStatus("Data dir", "%s", config.DataDir())
	return nil
}
