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

	"github.com/kalambet/cocreate/internal/api"
	"github.com/kalambet/cocreate/internal/config"
	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/ingest"
	"github.com/kalambet/cocreate/internal/llm"
	"github.com/kalambet/cocreate/internal/metrics"
	"github.com/kalambet/cocreate/internal/prompts"
	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the cocreate server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running cocreate server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cocreate system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "cocreate.pid")
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

// app is the fully wired service graph shared by the HTTP and MCP surfaces.
type app struct {
	store    *storage.Store
	profiles *voice.Store
	analyzer *voice.Analyzer
	gatherer *sources.Gatherer
	pipeline *generation.Pipeline
	metrics  http.Handler
}

func buildApp(cfg config.Config, store *storage.Store) (*app, error) {
	var loader *prompts.Loader
	var err error
	if cfg.Generation.PromptDir != "" {
		loader, err = prompts.NewLoaderDir(cfg.Generation.PromptDir)
	} else {
		loader, err = prompts.NewLoader()
	}
	if err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}
	builder := prompts.NewBuilder(loader)

	// A nil *llm.Client stored in the interface would not compare equal to
	// nil, so the interface is only assigned when a key exists.
	var completer llm.Completer
	if cfg.LLM.APIKey != "" {
		completer = llm.NewClientWithBaseURL(cfg.LLM.APIKey, cfg.LLM.BaseURL).WithMaxRetries(cfg.LLM.MaxRetries)
	} else {
		slog.Warn("no model API key configured; drafting will fail and other stages will fall back", "hint", config.APIKeyHint())
	}

	profiles := voice.NewStore(store)
	analyzer := voice.NewAnalyzer(profiles, completer, builder, cfg.LLM.AnalysisModel, cfg.StageTimeout())

	var observer generation.Observer
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := metrics.NewRegistry()
		pm, err := metrics.NewPipeline(reg)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		observer = pm
		metricsHandler = metrics.Handler(reg)
	}

	pipeline := generation.NewPipeline(generation.Deps{
		LLM:      completer,
		Prompts:  builder,
		Profiles: profiles,
		Analyzer: analyzer,
		Models: generation.Models{
			Fast:     cfg.LLM.FastModel,
			Draft:    cfg.LLM.DraftModel,
			Review:   cfg.LLM.ReviewModel,
			Analysis: cfg.LLM.AnalysisModel,
		},
		StageTimeout:         cfg.StageTimeout(),
		SufficiencyTimeout:   cfg.SufficiencyTimeout(),
		CautiousContentTypes: cfg.CautiousContentTypes(),
		Observer:             observer,
	})

	return &app{
		store:    store,
		profiles: profiles,
		analyzer: analyzer,
		gatherer: sources.NewGatherer(store),
		pipeline: pipeline,
		metrics:  metricsHandler,
	}, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "cocreate version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("cocreate is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("cocreate is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	a, err := buildApp(cfg, store)
	if err != nil {
		return err
	}

	handler := api.NewHandler(api.Deps{
		Store:          store,
		Pipeline:       a.pipeline,
		Profiles:       a.profiles,
		Analyzer:       a.analyzer,
		Sources:        a.gatherer,
		Token:          apiToken,
		RequestTimeout: cfg.RequestTimeout(),
		Metrics:        a.metrics,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var mcpUser string
	if withMCP {
		if mcpUser, err = actingUser(cfg.Client.UserID); err != nil {
			return fmt.Errorf("MCP needs a user: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	worker := ingest.NewWorker(store, a.gatherer, a.analyzer, 500*time.Millisecond)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:    store,
			Pipeline: a.pipeline,
			Profiles: a.profiles,
			Sources:  a.gatherer,
			UserID:   mcpUser,
			Timeout:  cfg.RequestTimeout(),
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)", "user_id", mcpUser)
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "cocreate listening on %s\n", addr)
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

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("cocreate is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop cocreate (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to cocreate (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
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

	if cfg.LLM.APIKey != "" {
		printStatus("Model API key", "set")
	} else {
		printStatus("Model API key", "unset (%s)", config.APIKeyHint())
	}
	printStatus("Draft model", "%s", cfg.LLM.DraftModel)
	printStatus("Review model", "%s", cfg.LLM.ReviewModel)
	printStatus("Fast model", "%s", cfg.LLM.FastModel)

	if running {
		if c, err := newAPIClient(); err == nil {
			if n, err := pendingRefreshes(ctx, c); err == nil {
				printStatus("Pending voice refreshes", "%d", n)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func pendingRefreshes(ctx context.Context, c *apiClient) (int, error) {
	resp, err := c.get(ctx, "/v1/status")
	if err != nil {
		return 0, err
	}
	var st struct {
		PendingVoiceRefresh int `json:"pending_voice_refresh"`
	}
	if err := decodeJSON(resp, &st); err != nil {
		return 0, err
	}
	return st.PendingVoiceRefresh, nil
}
