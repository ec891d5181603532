package main

import (
	"context"
	"encoding/json"
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

	"github.com/gildigital/autoapply/internal/ai"
	"github.com/gildigital/autoapply/internal/api"
	"github.com/gildigital/autoapply/internal/config"
	"github.com/gildigital/autoapply/internal/dispatch"
	"github.com/gildigital/autoapply/internal/executor"
	"github.com/gildigital/autoapply/internal/formfill"
	"github.com/gildigital/autoapply/internal/match"
	"github.com/gildigital/autoapply/internal/profile"
	"github.com/gildigital/autoapply/internal/queue"
	"github.com/gildigital/autoapply/internal/reconcile"
	"github.com/gildigital/autoapply/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the autoapply server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running autoapply server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show autoapply system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		return showStatus(userID)
	},
}

func init() {
	statusCmd.Flags().Int64("user", 0, "also show this user's queue status")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "autoapply.pid")
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

// workerControl adapts the dispatch loop to the HTTP admin surface, pinning
// its goroutines to the server's lifetime context instead of a request's.
type workerControl struct {
	ctx    context.Context
	worker *dispatch.Worker
}

func (c *workerControl) Start()              { c.worker.Start(c.ctx) }
func (c *workerControl) Stop()               { c.worker.Stop() }
func (c *workerControl) Running() bool       { return c.worker.Running() }
func (c *workerControl) EnsureRunning() bool { return c.worker.EnsureRunning(c.ctx) }

func runServer() error {
	fmt.Fprintf(os.Stderr, "autoapply version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	logger := slog.Default()

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("autoapply is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("autoapply is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build the scoring and answering chain: primary model first, secondary
	// as the retryable-failure fallback.
	aiClient := ai.NewClientWithBaseURL(cfg.AI.APIKey, cfg.AI.BaseURL)
	chain := ai.NewChain(
		ai.NewModelProvider(aiClient, cfg.AI.PrimaryModel),
		ai.NewModelProvider(aiClient, cfg.AI.SecondaryModel),
	)

	profiles := profile.NewManager(store)
	queueMgr := queue.NewManager(store, profiles)
	gate := match.NewGate(store, chain)
	execClient := executor.NewClient(cfg.Executor.BaseURL, cfg.Executor.SharedSecret)
	mapper := formfill.NewMapper(chain, logger)

	worker := dispatch.NewWorker(queueMgr, store, profiles, execClient, mapper, dispatch.Options{
		PollInterval: cfg.Worker.PollInterval,
		BatchSize:    cfg.Worker.BatchSize,
		StaleAfter:   cfg.Worker.StaleAfter,
		Logger:       logger,
	})
	workerCtl := &workerControl{ctx: ctx, worker: worker}

	reconciler := reconcile.NewReconciler(store, cfg.Executor.SharedSecret, logger)

	handler := api.NewHandler(api.AppDeps{
		Store:          store,
		Profiles:       profiles,
		Queue:          queueMgr,
		Gate:           gate,
		Reconciler:     reconciler,
		Worker:         workerCtl,
		Token:          cfg.Executor.SharedSecret,
		MatchThreshold: cfg.Worker.MatchThreshold,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the dispatch loop.
	worker.Start(ctx)

	// Build the MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		Profiles: profiles,
		Queue:    queueMgr,
		Worker:   workerCtl,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "autoapply listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		worker.Stop()
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
		printError("autoapply is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop autoapply (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to autoapply (PID %d)", pid)
	return nil
}

func showStatus(userID int64) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// Check server health.
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Executor", "%s", cfg.Executor.BaseURL)
	printStatus("Primary model", "%s", cfg.AI.PrimaryModel)
	printStatus("Secondary model", "%s", cfg.AI.SecondaryModel)

	if running {
		// Dispatch loop health.
		healthResp, err := apiGet(client, serverURL+"/worker/health", cfg.Executor.SharedSecret)
		if err == nil {
			var health struct {
				Running bool `json:"running"`
			}
			if json.NewDecoder(healthResp.Body).Decode(&health) == nil {
				if health.Running {
					printStatus("Dispatch loop", "running")
				} else {
					printStatus("Dispatch loop", "stopped")
				}
			}
			healthResp.Body.Close()
		}

		if userID > 0 {
			statusResp, err := apiGet(client, fmt.Sprintf("%s/queue/status?userId=%d", serverURL, userID), cfg.Executor.SharedSecret)
			if err == nil {
				var report struct {
					Counts         map[string]int `json:"counts"`
					AppliedToday   int            `json:"appliedToday"`
					DailyLimit     int            `json:"dailyLimit"`
					RemainingSlots int            `json:"remainingSlots"`
					Plan           string         `json:"plan"`
				}
				if json.NewDecoder(statusResp.Body).Decode(&report) == nil {
					printStatus("Plan", "%s", report.Plan)
					printStatus("Applied today", "%d of %d", report.AppliedToday, report.DailyLimit)
					printStatus("Remaining slots", "%d", report.RemainingSlots)
					for state, n := range report.Counts {
						printStatus("Queue "+state, "%d", n)
					}
				}
				statusResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
