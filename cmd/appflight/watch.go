package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/appflight/appflight/internal/download"
	"github.com/appflight/appflight/internal/websocket"
)

var watchServerURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow download progress from a running serve instance",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		serverURL := watchServerURL
		if serverURL == "" {
			serverURL = "http://" + a.cfg.ListenAddr
		}
		runWatch(serverURL)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchServerURL, "server", "", "serve endpoint URL (default from config listen address)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(serverURL string) {
	client := websocket.New(&websocket.Config{ServerURL: serverURL}, printEvent)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		client.Stop()
	}()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", serverURL)
	client.Start()
}

func printEvent(ev download.Event) {
	switch {
	case ev.Status == download.StatusDownloading && ev.BytesTotal > 0:
		fmt.Printf("%s  %5.1f%%  %s / %s\n",
			ev.RequestID, ev.Progress*100, byteSize(ev.BytesDone), byteSize(ev.BytesTotal))
	case ev.Error != "":
		fmt.Printf("%s  %s: %s\n", ev.RequestID, ev.Status, ev.Error)
	default:
		fmt.Printf("%s  %s\n", ev.RequestID, ev.Status)
	}
}
