package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/appflight/appflight/internal/audit"
	"github.com/appflight/appflight/internal/config"
	"github.com/appflight/appflight/internal/download"
	"github.com/appflight/appflight/internal/logging"
	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/store"
)

var (
	version = "0.1.0"
	cfgFile string
	region  string
)

var rootCmd = &cobra.Command{
	Use:   "appflight",
	Short: "AppFlight store client",
	Long:  `AppFlight - search, download, process and install store packages from the command line`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("AppFlight v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the user config dir)")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "storefront region override, e.g. US")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired services every command builds on.
type app struct {
	cfg      *config.Config
	client   *store.Client
	sessions *session.Store
	trail    *audit.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if region != "" {
		cfg.Region = region
	}
	cfg.Validate()

	var logOut io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w, err := logging.NewRotatingWriter(cfg.LogFile, 10, 3)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logOut = w
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, logOut)

	guid := cfg.GUID
	if guid == "" {
		guid, err = store.MachineGUID()
		if err != nil {
			return nil, fmt.Errorf("derive machine guid: %w", err)
		}
	}

	client := store.New(store.DefaultEndpoints(), guid, cfg.Region,
		time.Duration(cfg.HTTPTimeoutSeconds)*time.Second)

	ring, err := session.OpenRing(cfg.KeyringBackend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	// A broken audit trail degrades to logging only; commands still run.
	trail, err := audit.NewLogger(cfg.DataDir, 50, 3)
	if err != nil {
		logging.L("main").Warn("audit trail unavailable", "error", err)
	}

	return &app{
		cfg:      cfg,
		client:   client,
		sessions: session.NewStore(client, ring),
		trail:    trail,
	}, nil
}

// engine builds the download engine with its queue persisted under the data
// directory.
func (a *app) engine() (*download.Engine, error) {
	return download.NewEngine(download.Options{
		Dir:           a.cfg.DownloadDir,
		StatePath:     filepath.Join(a.cfg.DataDir, "downloads.json"),
		MaxConcurrent: a.cfg.MaxConcurrentDownloads,
		QueueSize:     a.cfg.DownloadQueueSize,
	})
}

// currentAccount is the guard every authenticated command goes through.
func (a *app) currentAccount() (session.Account, error) {
	acct, ok := a.sessions.Current()
	if !ok {
		return session.Account{}, fmt.Errorf("not signed in, run 'appflight auth login' first")
	}
	return acct, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
