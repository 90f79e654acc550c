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
	"golang.org/x/sync/errgroup"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/api"
	"github.com/apexai/apex/internal/classify"
	"github.com/apexai/apex/internal/config"
	"github.com/apexai/apex/internal/engine"
	"github.com/apexai/apex/internal/fetch"
	"github.com/apexai/apex/internal/metrics"
	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the apex server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running apex server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show apex system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
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

func detectConfig(cfg config.Config) engine.DetectConfig {
	return engine.DetectConfig{
		Provider:          cfg.Classifier.Provider,
		GeminiAPIKey:      cfg.Gemini.APIKey,
		GeminiBaseURL:     cfg.Gemini.BaseURL,
		OllamaBaseURL:     cfg.Ollama.BaseURL,
		OpenRouterAPIKey:  cfg.OpenRouter.APIKey,
		OpenRouterBaseURL: cfg.OpenRouter.BaseURL,
	}
}

func storageOptions(cfg config.Config) storage.Options {
	return storage.Options{
		Kind:          cfg.Storage.Backend,
		DataDir:       cfg.Storage.DataDir,
		MongoURI:      cfg.Storage.MongoURI,
		MongoDatabase: cfg.Storage.MongoDatabase,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
	}
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "apex version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Check if server is already running via health endpoint.
	pidPath := cfg.Layout().PIDFile()
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("apex is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("apex is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	// Open storage.
	backend, err := storage.Open(ctx, storageOptions(cfg))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()
	store := storage.NewStore(backend)
	slog.Info("storage ready", "backend", cfg.Storage.Backend)

	// Detect the classifier backend and make sure its model is available.
	dcfg := detectConfig(cfg)
	provider := engine.ResolveProvider(dcfg)
	model := cfg.ModelFor(provider)
	eng, err := engine.Detect(ctx, dcfg)
	if err != nil {
		return fmt.Errorf("detecting classifier backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, model, os.Stderr); err != nil {
		return err
	}
	slog.Info("classifier ready", "provider", provider, "model", model)

	timeout, err := cfg.ClassifierTimeout()
	if err != nil {
		return err
	}
	opts := []classify.Option{classify.WithTimeout(timeout)}
	if cfg.Classifier.PageExcerpts {
		opts = append(opts, classify.WithPageFetcher(fetch.New()))
	}
	clf := classify.New(eng, model, opts...)

	handler := api.NewAppHandler(api.AppDeps{
		Store:      store,
		Classifier: clf,
		Sessions:   session.NewResolver(store),
		Token:      apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "apex listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:      store,
			Classifier: clf,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := cfg.Layout().PIDFile()
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("apex is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop apex (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to apex (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
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

	dcfg := detectConfig(cfg)
	provider := engine.ResolveProvider(dcfg)
	printStatus("Classifier", "%s (%s)", provider, cfg.ModelFor(provider))
	if provider == engine.ProviderOllama {
		if ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version"); err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}
	printStatus("Storage", "%s", cfg.Storage.Backend)

	if out, err := session.NewFileCache(cfg.Layout().SessionDir()).Load(); err == nil {
		printStatus("Signed in", "%s (%s, %s)", out.Session.Name, out.Session.Role, out.Mode)
	} else {
		printStatus("Signed in", "no")
	}

	if running {
		if c, err := newAPIClient(); err == nil && c.session != nil {
			if resp, err := c.get(context.Background(), "/dashboard"); err == nil {
				var d aggregate.Dashboard
				if decodeJSON(resp, &d) == nil {
					printStatus("Feedback", "%d records visible", d.Stats.TotalFeedbacks)
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
