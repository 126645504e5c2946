package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/flowry/internal/client"
)

var (
	serverURL    string
	apiKey       string
	exportFormat string
	exportWait   bool
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Work with campaigns on a running server",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns",
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show campaign details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

var campaignPreflightCmd = &cobra.Command{
	Use:   "preflight <campaign_id>",
	Short: "Run the readiness checks on a stored campaign",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignPreflight,
}

var campaignExportCmd = &cobra.Command{
	Use:   "export <campaign_id>",
	Short: "Start a campaign export",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignExport,
}

func init() {
	campaignCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("FLOWRY_SERVER", "http://localhost:8080"), "API server URL (env FLOWRY_SERVER)")
	campaignCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("FLOWRY_API_KEY"), "API key or bearer token (env FLOWRY_API_KEY)")

	campaignExportCmd.Flags().StringVar(&exportFormat, "format", "pdf", "Export format")
	campaignExportCmd.Flags().BoolVar(&exportWait, "wait", false, "Wait for the export to finish")

	campaignCmd.AddCommand(campaignListCmd, campaignShowCmd, campaignPreflightCmd, campaignExportCmd)
	rootCmd.AddCommand(campaignCmd)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newClient() (*client.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required (use --api-key or FLOWRY_API_KEY)")
	}
	return client.NewClient(serverURL, apiKey), nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	resp, err := c.ListCampaigns(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if len(resp.Campaigns) == 0 {
		fmt.Println("No campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBRAND\tSTATUS\tNODES\tUPDATED")
	fmt.Fprintln(w, "--\t----\t-----\t------\t-----\t-------")

	for _, camp := range resp.Campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			camp.ID,
			camp.Name,
			camp.Brand,
			camp.Status,
			len(camp.Structure.Nodes),
			camp.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d campaigns\n", len(resp.Campaigns))

	return nil
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	resp, err := c.GetCampaign(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}
	camp := resp.Campaign

	fmt.Printf("Campaign: %s\n\n", camp.ID)
	fmt.Printf("Name:      %s\n", camp.Name)
	fmt.Printf("Brand:     %s\n", camp.Brand)
	fmt.Printf("Goal:      %s\n", camp.Goal)
	fmt.Printf("Status:    %s\n", camp.Status)
	fmt.Printf("Version:   %d\n", camp.StructureVersion)
	fmt.Printf("Created:   %s\n", camp.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:   %s\n", camp.UpdatedAt.Format(time.RFC3339))

	fmt.Printf("\nNodes (%d):\n", len(camp.Structure.Nodes))
	for _, n := range camp.Structure.Nodes {
		fmt.Printf("  %-12s %s\n", n.Type, n.ID)
	}
	fmt.Printf("\nEdges (%d):\n", len(camp.Structure.Edges))
	for _, e := range camp.Structure.Edges {
		fmt.Printf("  %s -> %s\n", e.Source, e.Target)
	}

	if utm := camp.UTMParameters(); !utm.IsZero() {
		fmt.Printf("\nUTM: source=%s medium=%s campaign=%s\n", utm.Source, utm.Medium, utm.Campaign)
	}

	return nil
}

func runCampaignPreflight(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	report, err := c.Preflight(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to run preflight check: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runCampaignExport(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	ctx := context.Background()
	accepted, err := c.Export(ctx, args[0], exportFormat)
	if err != nil {
		return fmt.Errorf("failed to start export: %w", err)
	}

	fmt.Printf("Export job %s %s\n", accepted.JobID, accepted.Status)
	if !exportWait {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	job, err := c.WaitJob(ctx, accepted.JobID, time.Second)
	if err != nil {
		return fmt.Errorf("failed waiting for export: %w", err)
	}

	fmt.Printf("Status: %s\n", job.Status)
	if len(job.Result) > 0 {
		fmt.Printf("Result: %s\n", job.Result)
	}
	return nil
}
