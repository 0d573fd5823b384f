// Package main provides a CLI for inspecting the storefront catalog backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/R3E-Network/miniapp_storefront/internal/catalog"
	"github.com/R3E-Network/miniapp_storefront/internal/config"
	"github.com/R3E-Network/miniapp_storefront/internal/domain"
	"github.com/R3E-Network/miniapp_storefront/internal/graphql"
	"github.com/R3E-Network/miniapp_storefront/pkg/logger"
)

func main() {
	storesCmd := flag.NewFlagSet("stores", flag.ExitOnError)
	storesEnv := storesCmd.String("env", "", "Optional .env file")
	storesInit := storesCmd.String("init-data", "", "Raw host init data to authenticate with")
	storesJSON := storesCmd.Bool("json", false, "Print JSON")

	catalogCmd := flag.NewFlagSet("catalog", flag.ExitOnError)
	catalogEnv := catalogCmd.String("env", "", "Optional .env file")
	catalogInit := catalogCmd.String("init-data", "", "Raw host init data to authenticate with")
	catalogJSON := catalogCmd.Bool("json", false, "Print JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "stores":
		storesCmd.Parse(os.Args[2:])
		client := mustClient(*storesEnv)
		handleStores(client, *storesInit, *storesJSON)
	case "catalog":
		catalogCmd.Parse(os.Args[2:])
		if catalogCmd.NArg() != 1 {
			fmt.Println("catalog requires a store id")
			printUsage()
			os.Exit(1)
		}
		client := mustClient(*catalogEnv)
		handleCatalog(client, catalogCmd.Arg(0), *catalogInit, *catalogJSON)
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Storefront Catalog CLI

Usage:
  catalog-cli <command> [options]

Commands:
  stores              List the stores visible to the buyer
  catalog <store-id>  List a store's products by category
  help                Show this help

Options:
  -env        .env file to load (STOREFRONT_* variables)
  -init-data  Raw host init data sent as the authorization credential
  -json       Print JSON instead of a table`)
}

func mustClient(envFile string) *catalog.Client {
	cfg, err := config.Load(envFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Component: "catalog-cli", Level: "warn", Format: "text", Output: os.Stderr})
	client, _, err := catalog.NewFromConfig(cfg.Backend, log)
	if err != nil {
		fmt.Printf("Failed to create catalog client: %v\n", err)
		os.Exit(1)
	}
	return client
}

func requestContext(initData string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	return graphql.WithInitData(ctx, initData), cancel
}

func handleStores(client *catalog.Client, initData string, asJSON bool) {
	ctx, cancel := requestContext(initData)
	defer cancel()

	stores, err := client.FetchStores(ctx)
	if err != nil {
		fmt.Printf("Failed to fetch stores: %v\n", err)
		os.Exit(1)
	}
	if asJSON {
		printJSON(stores)
		return
	}

	fmt.Printf("%d store(s)\n", len(stores))
	for _, s := range stores {
		fmt.Printf("  %-32s %-20s %s\n", s.ID, s.Slug, s.Name)
	}
}

func handleCatalog(client *catalog.Client, storeID, initData string, asJSON bool) {
	ctx, cancel := requestContext(initData)
	defer cancel()

	cats, err := client.FetchStoreCatalog(ctx, storeID)
	if err != nil {
		fmt.Printf("Failed to fetch catalog: %v\n", err)
		os.Exit(1)
	}
	sorted := domain.SortedCategories(cats)
	if asJSON {
		printJSON(sorted)
		return
	}

	for _, cat := range sorted {
		fmt.Printf("%s (%d)\n", cat.Name, len(cat.Products))
		for _, p := range cat.Products {
			price := "-"
			if p.Price != nil {
				price = p.Price.String()
			}
			status := "ok"
			if !p.Purchasable() {
				status = "not purchasable"
			}
			fmt.Printf("  %-32s %-30s %12s  %s\n", p.ID, p.Name, price, status)
		}
	}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Failed to encode output: %v\n", err)
		os.Exit(1)
	}
}
