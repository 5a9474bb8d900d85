package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/appflight/appflight/internal/audit"
	"github.com/appflight/appflight/internal/download"
	"github.com/appflight/appflight/internal/packaging"
	"github.com/appflight/appflight/internal/session"
	"github.com/appflight/appflight/internal/store"
)

var (
	downloadVersionID   int64
	downloadAutoBuy     bool
	downloadSkipProcess bool
	downloadOutputDir   string
)

var purchaseCmd = &cobra.Command{
	Use:   "purchase <bundle-id>",
	Short: "Acquire a license for a package",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		acct, err := a.currentAccount()
		if err != nil {
			fatal(err)
		}
		pkg, err := a.client.Lookup(cmd.Context(), args[0], a.cfg.Region)
		if err != nil {
			fatal(err)
		}
		if pkg.Price > 0 {
			fatal(fmt.Errorf("%s is a paid item, only free items can be acquired from the command line", pkg.BundleID))
		}
		if err := a.client.Purchase(cmd.Context(), pkg.ID, acct); err != nil {
			fatal(err)
		}
		a.trail.Log(audit.EventLicensePurchase, pkg.BundleID, map[string]any{"itemId": pkg.ID, "account": acct.Email})
		fmt.Printf("License acquired for %s\n", pkg.BundleID)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <bundle-id>",
	Short: "Download a package and process it into an installable archive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		acct, err := a.currentAccount()
		if err != nil {
			fatal(err)
		}
		if downloadOutputDir != "" {
			a.cfg.DownloadDir = downloadOutputDir
		}
		path, err := runDownload(cmd.Context(), a, acct, args[0])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Saved to %s\n", path)
	},
}

func init() {
	downloadCmd.Flags().Int64Var(&downloadVersionID, "version-id", 0, "external version id of a historical build (see 'appflight versions')")
	downloadCmd.Flags().BoolVar(&downloadAutoBuy, "purchase", false, "acquire a license automatically when the account has none")
	downloadCmd.Flags().BoolVar(&downloadSkipProcess, "raw", false, "keep the archive exactly as served, skipping signature injection")
	downloadCmd.Flags().StringVar(&downloadOutputDir, "output", "", "directory to save the archive to (default from config)")

	rootCmd.AddCommand(purchaseCmd)
	rootCmd.AddCommand(downloadCmd)
}

func runDownload(ctx context.Context, a *app, acct session.Account, bundleID string) (string, error) {
	pkg, err := a.client.Lookup(ctx, bundleID, a.cfg.Region)
	if err != nil {
		return "", err
	}

	grant, err := a.client.DownloadGrant(ctx, pkg.ID, acct, downloadVersionID)
	if errors.Is(err, store.ErrLicenseRequired) && downloadAutoBuy {
		if pkg.Price > 0 {
			return "", fmt.Errorf("account holds no license for %s and it is a paid item", pkg.BundleID)
		}
		fmt.Println("No license for this item, acquiring one...")
		if err := a.client.Purchase(ctx, pkg.ID, acct); err != nil {
			return "", err
		}
		a.trail.Log(audit.EventLicensePurchase, pkg.BundleID, map[string]any{"itemId": pkg.ID, "account": acct.Email})
		grant, err = a.client.DownloadGrant(ctx, pkg.ID, acct, downloadVersionID)
	}
	if errors.Is(err, store.ErrLicenseRequired) {
		return "", fmt.Errorf("account holds no license for %s, retry with --purchase or buy it in the storefront", pkg.BundleID)
	}
	if err != nil {
		return "", err
	}

	engine, err := a.engine()
	if err != nil {
		return "", err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(sctx)
	}()

	version := grant.Metadata.ShortVersion
	if version == "" {
		version = pkg.Version
	}
	req, err := engine.Enqueue(grant, download.Target{
		BundleID:          pkg.BundleID,
		Name:              pkg.Name,
		Version:           version,
		ItemID:            pkg.ID,
		ExternalVersionID: grant.Metadata.ExternalVersionID,
		IconURL:           pkg.ArtworkURL,
	})
	if err != nil {
		return "", err
	}

	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()
	if err := engine.Start(req.ID); err != nil {
		return "", err
	}
	a.trail.Log(audit.EventDownloadStarted, pkg.BundleID, map[string]any{"requestId": req.ID, "itemId": pkg.ID})

	printProgress(ctx, events, req.ID)

	final, err := engine.Wait(ctx, req.ID)
	if err != nil {
		return "", err
	}
	if final.Status != download.StatusCompleted {
		a.trail.Log(audit.EventDownloadFailed, pkg.BundleID, map[string]any{"requestId": req.ID, "error": final.Error})
		return "", fmt.Errorf("download %s: %s", final.Status, final.Error)
	}
	a.trail.Log(audit.EventDownloadCompleted, pkg.BundleID, map[string]any{"requestId": req.ID, "bytes": final.BytesDone})

	if downloadSkipProcess {
		return final.Path, nil
	}

	processor := &packaging.Processor{}
	path, err := processor.Process(final.Path, grant)
	if err != nil {
		return "", err
	}
	a.trail.Log(audit.EventArchiveProcessed, pkg.BundleID, map[string]any{"path": path, "sinfs": len(grant.Sinfs)})
	return path, nil
}

// printProgress consumes engine events until the request goes terminal,
// rendering a single updating line on stdout.
func printProgress(ctx context.Context, events <-chan download.Event, id string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.RequestID != id {
				continue
			}
			if ev.Status.Terminal() {
				fmt.Println()
				return
			}
			if ev.Status != download.StatusDownloading || ev.BytesTotal == 0 {
				continue
			}
			fmt.Printf("\r%5.1f%%  %s / %s  %s/s   ",
				ev.Progress*100,
				byteSize(ev.BytesDone),
				byteSize(ev.BytesTotal),
				byteSize(int64(ev.Speed)))
		}
	}
}

func byteSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
