package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/app"
	"github.com/foxzi/flowry/internal/mcpserver"
	"github.com/foxzi/flowry/internal/predict"
	"github.com/foxzi/flowry/internal/store"
)

var mcpOwner string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve campaign tools over MCP on stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout. Tools read campaigns
of the owner set by mcp.owner or --owner.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpOwner, "owner", "", "Owner whose campaigns the tools read (overrides mcp.owner)")
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	owner := cfg.MCP.Owner
	if mcpOwner != "" {
		owner = mcpOwner
	}
	if owner == "" {
		return fmt.Errorf("owner is required (set mcp.owner or use --owner)")
	}

	// stdout carries the protocol
	logger := app.SetupLogger(cfg.Logging, os.Stderr)

	catalog, err := app.LoadCatalog(cfg.Reference)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	handlers := mcpserver.NewHandlers(
		st,
		owner,
		app.NewAnalyzer(cfg.Readiness),
		predict.NewPredictor(catalog),
		logger.With("component", "mcp"),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting MCP server", "owner", owner)
	return mcpserver.Run(ctx, mcpserver.NewServer(handlers, version))
}
