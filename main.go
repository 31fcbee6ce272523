package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/audit"
	bsvc "github.com/wardenhq/warden/internal/boundary"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/daemon"
	"github.com/wardenhq/warden/internal/domains"
	"github.com/wardenhq/warden/internal/gatekeeper"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/ops"
	"github.com/wardenhq/warden/internal/permission"
	"github.com/wardenhq/warden/internal/proctrack"
	"github.com/wardenhq/warden/internal/sandbox"
	"github.com/wardenhq/warden/internal/scan"
	"github.com/wardenhq/warden/internal/workspace"
)

// Version is set at build time via ldflags: -X main.Version=x.y.z
var Version = "1.0.0"

var log = logger.New("main")

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "start":
			runStart(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "stop":
			runStop()
			return
		case "status":
			runStatus()
			return
		case "logs":
			runLogs()
			return
		case "verify-audit":
			runVerifyAudit(os.Args[2:])
			return
		case "help", "-h", "--help":
			printUsage()
			return
		case "version", "-v", "--version":
			fmt.Printf("warden version %s\n", Version)
			return
		}
	}
	printUsage()
}

func printUsage() {
	fmt.Println(`warden - trust boundary for desktop AI agents

Usage:
  warden start [flags]         Start warden in the background
  warden serve [flags]         Run warden in the foreground
  warden stop                  Stop the background instance
  warden status                Check whether warden is running
  warden logs                  Show the daemon log location
  warden verify-audit [flags]  Verify audit log integrity
  warden version               Print version
  warden help                  Show this help

Flags for start/serve:
  --config PATH       Configuration file (default ~/.warden/config.yaml)
  --workspace PATH    Workspace root (overrides config)
  --port N            Management API port (overrides config, 0 disables)
  --log-level LEVEL   Log level: debug, info, warn, error
  --no-color          Disable colored log output

Secrets are read from the environment:
  WARDEN_CALLER_TOKEN  Shared token the trusted caller must present (required)
  WARDEN_DB_KEY        Grant database encryption key (optional, >= 16 chars)`)
}

// loadServeConfig parses the shared start/serve flags and returns a
// validated configuration plus the path it was loaded from.
func loadServeConfig(name string, args []string) (*config.Config, string, bool) {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := flags.String("config", config.DefaultConfigPath(), "Path to configuration file")
	workspaceRoot := flags.String("workspace", "", "Workspace root (overrides config)")
	apiPort := flags.Int("port", -1, "Management API port (overrides config, 0 disables)")
	logLevel := flags.String("log-level", "", "Log level: debug, info, warn, error")
	noColor := flags.Bool("no-color", false, "Disable colored log output")
	daemonMode := flags.Bool("daemon-mode", false, "Internal: indicates running as daemon")
	_ = flags.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Apply flag overrides before validating.
	if *workspaceRoot != "" {
		cfg.Workspace.Root = *workspaceRoot
	}
	if *apiPort >= 0 {
		cfg.Server.Port = *apiPort
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = *logLevel
	}
	if *noColor {
		cfg.Server.NoColor = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg, *configPath, *daemonMode
}

// runStart daemonizes: the binary re-executes itself with --daemon-mode and
// detaches. Config is validated before forking so flag mistakes surface in
// the foreground, not in the log file.
func runStart(args []string) {
	cfg, configPath, daemonMode := loadServeConfig("start", args)

	if daemonMode || daemon.IsDaemonMode() {
		serve(cfg, configPath, true)
		return
	}

	if running, pid := daemon.IsRunning(); running {
		fmt.Printf("warden is already running [PID %d]\n", pid)
		os.Exit(1)
	}

	pid, err := daemon.Daemonize(append([]string{"start"}, args...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	// Give the daemon a moment, then verify it came up.
	time.Sleep(500 * time.Millisecond)
	if running, _ := daemon.IsRunning(); !running {
		fmt.Fprintln(os.Stderr, "Failed to start warden. Check logs:")
		fmt.Fprintf(os.Stderr, "  %s\n", daemon.LogFileDisplay())
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("✓ warden started [PID %d]\n", pid)
	fmt.Printf("  Logs: %s\n", daemon.LogFileDisplay())
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  warden status  - Check status")
	fmt.Println("  warden logs    - View logs")
	fmt.Println("  warden stop    - Stop warden")
}

// runServe runs in the foreground; useful under a supervisor or for
// development.
func runServe(args []string) {
	cfg, configPath, _ := loadServeConfig("serve", args)
	serve(cfg, configPath, false)
}

// serve builds every component explicitly and wires them together. There
// are no package-level singletons: the dependency graph is visible here and
// nowhere else.
func serve(cfg *config.Config, configPath string, asDaemon bool) {
	level, _ := logger.ParseLevel(cfg.Server.LogLevel)
	logger.SetGlobalLevel(level)
	if asDaemon {
		// No terminal attached in daemon mode.
		logger.SetColored(false)
	} else {
		logger.SetColored(!cfg.Server.NoColor)
	}

	// SECURITY: secrets come from environment variables, never from flags
	// (flags are visible in ps auxww).
	secrets, err := config.LoadSecrets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets: %v\n", err)
		os.Exit(1)
	}
	if err := secrets.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := secrets.ValidateDBKey(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if asDaemon {
		if err := daemon.WritePID(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write PID file: %v\n", err)
			os.Exit(1)
		}
		defer daemon.CleanupPID()
		if cfg.Server.Port > 0 {
			_ = daemon.WritePort(cfg.Server.Port)
		}
	}

	log.Info("Starting warden...")

	boundary := workspace.NewBoundary()
	if cfg.Workspace.Root != "" {
		if err := boundary.SetRoot(cfg.Workspace.Root); err != nil {
			log.Error("Failed to set workspace root: %v", err)
			os.Exit(1)
		}
		log.Info("Workspace root: %s", boundary.Root())
	} else {
		log.Warn("No workspace root configured; file access is unrestricted until one is set")
	}

	auditLog, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		log.Error("Failed to open audit log: %v", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	if !secrets.HasDBEncryption() {
		log.Warn("Grant database encryption disabled (set WARDEN_DB_KEY to enable)")
	}
	store, err := permission.OpenStore(cfg.Store.DBPath, secrets.DBKey)
	if err != nil {
		log.Error("Failed to open grant store: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	perms := permission.NewService(store)

	allowlist := domains.NewAllowlist(cfg.Domains.Allowed)
	tracker := proctrack.NewTracker()
	files := scan.NewFileFilter(cfg.Scanner.ExemptExtensions)
	executor := sandbox.NewExecutor(boundary, perms, tracker, sandbox.Options{
		DefaultTimeout: time.Duration(cfg.Sandbox.TimeoutSeconds) * time.Second,
		AllowPrograms:  cfg.Sandbox.AllowPrograms,
	})

	operations := ops.New(boundary, perms, executor, allowlist, files, ops.Limits{
		MaxReadBytes:  cfg.Limits.MaxReadBytes,
		MaxWriteBytes: cfg.Limits.MaxWriteBytes,
		MaxResults:    cfg.Limits.MaxResults,
		MaxPageBytes:  cfg.Limits.MaxPageBytes,
	})

	// Hot reload for the config-extendable tables. Everything else in the
	// config shapes the process at startup and needs a restart.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		executor.Validator().SetExtraPrograms(next.Sandbox.AllowPrograms)
		files.SetExemptExtensions(next.Scanner.ExemptExtensions)
		allowlist.SeedPermanent(next.Domains.Allowed)
	})
	if err != nil {
		log.Warn("config watcher unavailable: %v", err)
	} else {
		if err := watcher.Start(); err != nil {
			log.Warn("config watcher failed to start: %v", err)
		}
		defer watcher.Stop()
	}

	var limiter *gatekeeper.RateLimiter
	if cfg.RateLimit.MaxCalls > 0 {
		limiter = gatekeeper.NewRateLimiter(cfg.RateLimit.MaxCalls,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)
	}
	keeper := gatekeeper.New(limiter, auditLog)
	if err := keeper.Initialize(secrets.CallerToken); err != nil {
		log.Error("Failed to initialize gatekeeper: %v", err)
		os.Exit(1)
	}
	guarded := bsvc.NewService(keeper, operations)
	log.Info("Gatekeeper initialized (caller token %s)", secrets.MaskCallerToken())

	var server *api.Server
	if cfg.Server.Port > 0 {
		server = api.NewServer(boundary, perms, auditLog, allowlist, tracker, operations, guarded)
		go func() {
			if err := server.Serve(cfg.Server.Port); err != nil {
				log.Error("Management API error: %v", err)
				os.Exit(1)
			}
		}()
	} else {
		log.Warn("Management API disabled (server.port = 0); agent surface is unreachable")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")

	// Tracked child processes die with the session.
	res := tracker.KillAll()
	if len(res.Killed) > 0 || len(res.Failed) > 0 {
		log.Info("Terminated %d tracked processes (%d failed)", len(res.Killed), len(res.Failed))
	}
	perms.ClearSession()
	allowlist.ClearSession()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("Management API forced shutdown: %v", err)
		}
	}

	log.Info("warden stopped")
}

func runStop() {
	if err := daemon.Stop(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("warden stopped")
}

func runStatus() {
	running, pid := daemon.IsRunning()
	if !running {
		fmt.Println("warden is not running")
		os.Exit(1)
	}
	fmt.Printf("warden is running [PID %d]\n", pid)

	port, err := daemon.ReadPort()
	if err != nil {
		return
	}
	fmt.Printf("  Management API: http://127.0.0.1:%d\n", port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	if err != nil {
		fmt.Println("  Health: unreachable")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		fmt.Println("  Health: ok")
	} else {
		fmt.Printf("  Health: %s\n", resp.Status)
	}
}

func runLogs() {
	path := daemon.LogFile()
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No logs at %s\n", daemon.LogFileDisplay())
		os.Exit(1)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	const tail = 50
	if len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	fmt.Printf("==> %s (last %d lines)\n", daemon.LogFileDisplay(), len(lines))
	for _, line := range lines {
		fmt.Println(line)
	}
}

// runVerifyAudit replays the audit log hash chain and reports the result.
func runVerifyAudit(args []string) {
	flags := flag.NewFlagSet("verify-audit", flag.ExitOnError)
	configPath := flags.String("config", config.DefaultConfigPath(), "Path to configuration file")
	auditPath := flags.String("file", "", "Audit log file (overrides config)")
	_ = flags.Parse(args)

	path := *auditPath
	if path == "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		path = cfg.Audit.Path
	}

	report, err := audit.VerifyFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Verification failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Audit log: %s\n", path)
	fmt.Printf("  Entries:  %d\n", report.Entries)
	fmt.Printf("  Segments: %d\n", report.Segments)
	if report.Valid {
		fmt.Println("  Chain:    intact")
		return
	}
	fmt.Printf("  Chain:    BROKEN at entry %d\n", report.BrokenAt)
	os.Exit(1)
}
