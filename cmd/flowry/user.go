package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/app"
	"github.com/foxzi/flowry/internal/ratelimit"
	"github.com/foxzi/flowry/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User data commands",
}

var userPurgeCmd = &cobra.Command{
	Use:   "purge <owner>",
	Short: "Delete every campaign, job and quota counter of an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserPurge,
}

func init() {
	userCmd.AddCommand(userPurgeCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	owner := args[0]
	n, err := st.DeleteOwner(context.Background(), owner)
	if err != nil {
		return fmt.Errorf("failed to delete campaigns: %w", err)
	}

	// Counters live in the same database, drop them even if limiting is off now
	limiter, err := ratelimit.NewLimiter(st.DB(), app.RateLimitConfig(cfg.RateLimit))
	if err != nil {
		return fmt.Errorf("failed to open rate limiter: %w", err)
	}
	limiter.Forget(owner)
	if err := limiter.Stop(); err != nil {
		return fmt.Errorf("failed to remove quota counters: %w", err)
	}

	fmt.Printf("Deleted %d campaigns of %s\n", n, owner)
	return nil
}
