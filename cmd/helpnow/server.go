package main

import (
	"context"
	"encoding/json"
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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mesenbrink/helpnow/internal/api"
	"github.com/mesenbrink/helpnow/internal/catalog"
	"github.com/mesenbrink/helpnow/internal/config"
	"github.com/mesenbrink/helpnow/internal/kartra"
	"github.com/mesenbrink/helpnow/internal/kv"
	"github.com/mesenbrink/helpnow/internal/personalize"
	"github.com/mesenbrink/helpnow/internal/search"
	"github.com/mesenbrink/helpnow/internal/session"
	"github.com/mesenbrink/helpnow/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the helpnow server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running helpnow server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show helpnow system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "helpnow.pid")
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

func newKartraClient(cfg config.Config) *kartra.Client {
	if cfg.Kartra.BaseURL != "" && cfg.Kartra.BaseURL != "https://app.kartra.com/api/v1" {
		return kartra.NewClientWithBaseURL(cfg.Kartra.APIKey, cfg.Kartra.APIPassword, cfg.Kartra.AppID, cfg.Kartra.BaseURL)
	}
	return kartra.NewClient(cfg.Kartra.APIKey, cfg.Kartra.APIPassword, cfg.Kartra.AppID)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "helpnow version %s\n", version)

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

	// Ensure the API token exists in the platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if the server is already running via the
	// health endpoint first.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("helpnow is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("helpnow is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load the bundled catalog and build the search index.
	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	index := search.Build(cat)
	slog.Info("catalog loaded", "behaviors", cat.NumBehaviors(), "situations", cat.NumSituations())

	// Open storage. If SQLite cannot be opened the service still runs,
	// with state in a flat JSON file and no view event log.
	var stateStore kv.Store
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		slog.Warn("sqlite unavailable, using file state store", "error", err)
		store = nil
		stateStore = kv.NewFileStore(filepath.Join(cfg.Storage.DataDir, "state.json"))
	} else {
		stateStore = store
		defer func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
			}
		}()
	}

	// Build the personalization stores and the session gate, warming
	// their caches from storage concurrently.
	favorites := personalize.NewFavorites(stateStore)
	recent := personalize.NewRecentlyViewed(stateStore)
	gate := session.NewGate(stateStore)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		favorites.Load(gctx)
		return nil
	})
	g.Go(func() error {
		recent.Load(gctx)
		return nil
	})
	g.Go(func() error {
		gate.Load(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("personalization caches warmed", "favorites", favorites.Len(), "recent", recent.Len())

	// Build HTTP handler and server.
	handler := api.NewHandler(api.Deps{
		Catalog:   cat,
		Index:     index,
		Favorites: favorites,
		Recent:    recent,
		Sessions:  gate,
		Verifier:  newKartraClient(cfg),
		Store:     store,
		Token:     apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "helpnow listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("helpnow is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop helpnow (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to helpnow (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	// The catalog ships with the binary; report it regardless of server state.
	if cat, err := catalog.Load(); err == nil {
		printStatus("Catalog", "%d behaviors, %d situations", cat.NumBehaviors(), cat.NumSituations())
	}

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

	if running {
		if cli, err := newAPIClient(); err == nil {
			if resp, err := cli.get(ctx, "/auth/session"); err == nil {
				if resp.StatusCode == 200 {
					var rec struct {
						Email string `json:"email"`
					}
					if json.NewDecoder(resp.Body).Decode(&rec) == nil {
						printStatus("Session", "signed in as %s", rec.Email)
					}
				} else {
					printStatus("Session", "signed out")
				}
				resp.Body.Close()
			}

			printListCount(ctx, cli, "Favorites", "/favorites")
			printListCount(ctx, cli, "Recently viewed", "/recent")
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printListCount(ctx context.Context, cli *apiClient, label, path string) {
	resp, err := cli.get(ctx, path)
	if err != nil {
		return
	}
	var items []json.RawMessage
	if decodeJSON(resp, &items) == nil {
		printStatus(label, "%d", len(items))
	}
}
