package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/appflight/appflight/internal/audit"
	"github.com/appflight/appflight/internal/download"
	"github.com/appflight/appflight/internal/health"
	"github.com/appflight/appflight/internal/install"
	"github.com/appflight/appflight/internal/packaging"
)

var (
	installListenAddr  string
	installTimeoutSecs int
	serveListenAddr    string
)

var installCmd = &cobra.Command{
	Use:   "install <archive>",
	Short: "Serve a processed archive to the platform installer",
	Long: `Serves the archive and its installation manifest from a local endpoint and
prints the trigger URL. The session ends when the install timeout elapses or
on interrupt.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		runInstall(a, args[0])
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local endpoint long-lived, serving completed downloads",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		runServe(a)
	},
}

func init() {
	installCmd.Flags().StringVar(&installListenAddr, "listen", "", "bind address for the session endpoint (default from config)")
	installCmd.Flags().IntVar(&installTimeoutSecs, "timeout", 0, "session timeout in seconds (default from config)")
	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "bind address (default from config)")

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(serveCmd)
}

func runInstall(a *app, archivePath string) {
	id, err := packaging.Inspect(archivePath)
	if err != nil {
		fatal(fmt.Errorf("inspect %s: %w", archivePath, err))
	}

	listen := installListenAddr
	if listen == "" {
		listen = a.cfg.ListenAddr
	}
	timeout := time.Duration(a.cfg.InstallTimeoutSeconds) * time.Second
	if installTimeoutSecs > 0 {
		timeout = time.Duration(installTimeoutSecs) * time.Second
	}

	coord := install.NewCoordinator(install.Options{
		Timeout:    timeout,
		ListenAddr: listen,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := coord.Begin(ctx, install.Request{
		BundleID:    id.BundleID,
		Version:     id.Version,
		Title:       id.Name,
		ArchivePath: archivePath,
	})
	if err != nil {
		fatal(err)
	}
	a.trail.Log(audit.EventInstallStarted, id.BundleID, map[string]any{"sessionId": s.ID, "addr": s.Addr})

	fmt.Printf("Serving %s v%s\n", id.Name, id.Version)
	fmt.Printf("Install page: http://%s/install\n", s.Addr)
	fmt.Printf("Trigger URL:  %s\n", s.TriggerURL)
	fmt.Printf("Session ends in %s or on Ctrl-C.\n", timeout)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
	case <-deadline.C:
	}
	coord.End(s.ID)
	a.trail.Log(audit.EventInstallEnded, id.BundleID, map[string]any{"sessionId": s.ID})
}

func runServe(a *app) {
	engine, err := a.engine()
	if err != nil {
		fatal(err)
	}

	monitor := health.NewMonitor()
	monitor.Update("engine", health.Healthy, "")
	go watchEngine(engine, monitor)

	listen := serveListenAddr
	if listen == "" {
		listen = a.cfg.ListenAddr
	}
	server := install.NewServer(listen, engine, monitor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Serving on %s (Ctrl-C to stop)\n", listen)
	if err := server.Run(ctx); err != nil {
		fatal(err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	engine.Shutdown(shutdownCtx)
	fmt.Fprintln(os.Stderr, "Stopped.")
}

// watchEngine mirrors engine activity into the health monitor: failed
// requests degrade the engine component until something succeeds again.
func watchEngine(engine *download.Engine, monitor *health.Monitor) {
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()
	for ev := range events {
		switch ev.Status {
		case download.StatusFailed:
			monitor.Update("engine", health.Degraded, ev.Error)
		case download.StatusCompleted:
			monitor.Update("engine", health.Healthy, "")
		}
	}
}
