package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/jobs"
	"github.com/foxzi/flowry/internal/store"
)

var (
	jobsListStatus   string
	jobsListType     string
	jobsListCampaign string
	jobsListLimit    int
	cleanupOlderThan time.Duration
	cleanupStale     time.Duration
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Background job commands",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List background jobs",
	RunE:  runJobsList,
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job statistics",
	RunE:  runJobsStats,
}

var jobsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old finished jobs and fail stuck ones",
	RunE:  runJobsCleanup,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsListStatus, "status", "", "Filter by status (pending, processing, complete, failed)")
	jobsListCmd.Flags().StringVar(&jobsListType, "type", "", "Filter by type (copy_grading, funnel_analysis, ai_rewrite, pdf_export)")
	jobsListCmd.Flags().StringVar(&jobsListCampaign, "campaign", "", "Filter by campaign ID")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 50, "Maximum number of jobs to show")

	jobsCleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "Delete finished jobs older than this (default: jobs.retention)")
	jobsCleanupCmd.Flags().DurationVar(&cleanupStale, "stale", 0, "Fail jobs processing longer than this (default: jobs.stale_after)")

	jobsCmd.AddCommand(jobsListCmd, jobsStatsCmd, jobsCleanupCmd)
	rootCmd.AddCommand(jobsCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return st, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.ListJobs(context.Background(), jobs.ListFilter{
		CampaignID: jobsListCampaign,
		Status:     jobs.Status(jobsListStatus),
		Type:       jobs.Type(jobsListType),
		Limit:      jobsListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No jobs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCAMPAIGN\tOWNER\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t--------\t-----\t-------")

	for _, j := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			j.JobID,
			j.Type,
			j.Status,
			j.CampaignID,
			j.OwnerID,
			j.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d jobs\n", len(list))

	return nil
}

func runJobsStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.JobStats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Println("Job Statistics")
	fmt.Println("==============")
	fmt.Printf("Pending:    %d\n", stats.Pending)
	fmt.Printf("Processing: %d\n", stats.Processing)
	fmt.Printf("Complete:   %d\n", stats.Complete)
	fmt.Printf("Failed:     %d\n", stats.Failed)
	fmt.Printf("Total:      %d\n", stats.Total)

	return nil
}

func runJobsCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	olderThan := cleanupOlderThan
	if olderThan == 0 {
		olderThan = cfg.Jobs.Retention
	}
	stale := cleanupStale
	if stale == 0 {
		stale = cfg.Jobs.StaleAfter
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	if stale > 0 {
		n, err := st.FailStaleJobs(ctx, stale)
		if err != nil {
			return fmt.Errorf("failed to fail stale jobs: %w", err)
		}
		fmt.Printf("Failed %d stale jobs\n", n)
	}

	if olderThan > 0 {
		n, err := st.CleanupJobs(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("failed to clean up jobs: %w", err)
		}
		fmt.Printf("Deleted %d jobs older than %s\n", n, olderThan)
	}

	return nil
}
