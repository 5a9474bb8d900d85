package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/appflight/appflight/internal/store"
)

var searchLimit int

var lookupCmd = &cobra.Command{
	Use:   "lookup <bundle-id>",
	Short: "Look up a package by bundle identifier",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		pkg, err := a.client.Lookup(cmd.Context(), args[0], a.cfg.Region)
		if err != nil {
			fatal(err)
		}
		printPackage(pkg)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search the catalog",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fatal(err)
		}
		results, err := a.client.Search(cmd.Context(), args[0], a.cfg.Region, searchLimit)
		if err != nil {
			fatal(err)
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for _, pkg := range results {
			fmt.Printf("%-40s %-12s %12d  %s\n", pkg.BundleID, pkg.Version, pkg.ID, pkg.Name)
		}
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions <bundle-id>",
	Short: "List known versions of a package, newest first",
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
		versions, err := a.client.Versions(cmd.Context(), pkg.ID, acct)
		if err != nil {
			fatal(err)
		}
		for _, v := range versions {
			marker := " "
			if v.Current {
				marker = "*"
			}
			fmt.Printf("%s %-12d %s\n", marker, v.ExternalID, v.Label)
		}
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")

	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(versionsCmd)
}

func printPackage(pkg store.PackageSummary) {
	fmt.Printf("Name:      %s\n", pkg.Name)
	fmt.Printf("Bundle ID: %s\n", pkg.BundleID)
	fmt.Printf("Version:   %s\n", pkg.Version)
	fmt.Printf("Item ID:   %d\n", pkg.ID)
	fmt.Printf("Seller:    %s\n", pkg.SellerName)
	fmt.Printf("Price:     %.2f\n", pkg.Price)
	if pkg.SizeBytes != "" {
		fmt.Printf("Size:      %s bytes\n", pkg.SizeBytes)
	}
	if pkg.StoreURL != "" {
		fmt.Printf("Store URL: %s\n", pkg.StoreURL)
	}
}
