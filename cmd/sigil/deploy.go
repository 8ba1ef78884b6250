package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigilhq/sigil/internal/deploy"
)

var (
	deployListStatus string
	deployListOrg    string
	deployListLimit  int
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deployment queue commands",
}

var deployListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployments in the queue",
	RunE:  runDeployList,
}

var deployShowCmd = &cobra.Command{
	Use:   "show <deployment_id>",
	Short: "Show deployment details",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeployShow,
}

var deployStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show deployment queue statistics",
	RunE:  runDeployStats,
}

var deployRetryCmd = &cobra.Command{
	Use:   "retry <deployment_id>",
	Short: "Retry a failed deployment",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeployRetry,
}

var deployDeleteCmd = &cobra.Command{
	Use:   "delete <deployment_id>",
	Short: "Delete a deployment from the queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeployDelete,
}

func init() {
	deployListCmd.Flags().StringVar(&deployListStatus, "status", "", "Filter by status (pending, deploying, deployed, failed, deferred)")
	deployListCmd.Flags().StringVar(&deployListOrg, "org", "", "Filter by organization")
	deployListCmd.Flags().IntVar(&deployListLimit, "limit", 50, "Maximum number of deployments to show")

	deployCmd.AddCommand(deployListCmd, deployShowCmd, deployStatsCmd, deployRetryCmd, deployDeleteCmd)
	rootCmd.AddCommand(deployCmd)
}

func openDeployStorage() (*deploy.BoltStorage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	storage, err := deploy.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open deployment storage: %w", err)
	}

	return storage, nil
}

func runDeployList(cmd *cobra.Command, args []string) error {
	storage, err := openDeployStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	filter := deploy.ListFilter{
		OrgID: deployListOrg,
		Limit: deployListLimit,
	}
	if deployListStatus != "" {
		filter.Status = deploy.Status(deployListStatus)
	}

	deployments, err := storage.List(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if len(deployments) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tORG\tMAILBOX\tPROVIDER\tCREATED\tRETRIES")
	fmt.Fprintln(w, "--\t------\t---\t-------\t--------\t-------\t-------")

	for _, d := range deployments {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			truncateID(d.ID),
			d.Status,
			d.OrgID,
			d.UserEmail,
			d.Provider,
			d.CreatedAt.Format("2006-01-02 15:04"),
			d.RetryCount,
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d deployments\n", len(deployments))

	return nil
}

func runDeployShow(cmd *cobra.Command, args []string) error {
	storage, err := openDeployStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	d, err := storage.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}
	if d == nil {
		return fmt.Errorf("deployment not found: %s", args[0])
	}

	fmt.Printf("Deployment: %s\n\n", d.ID)
	fmt.Printf("Status:      %s\n", d.Status)
	fmt.Printf("Org:         %s\n", d.OrgID)
	fmt.Printf("Template:    %s\n", d.TemplateID)
	fmt.Printf("Mailbox:     %s\n", d.UserEmail)
	fmt.Printf("Provider:    %s\n", d.Provider)
	fmt.Printf("Created:     %s\n", d.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:     %s\n", d.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("Retry Count: %d\n", d.RetryCount)

	if d.NextRetryAt.After(time.Time{}) {
		fmt.Printf("Next Retry:  %s\n", d.NextRetryAt.Format(time.RFC3339))
	}

	if d.LastError != "" {
		fmt.Printf("\nLast Error:\n  %s\n", d.LastError)
	}

	if d.HTML != "" {
		fmt.Println("\nSignature Preview (first 500 bytes):")
		fmt.Println("---")
		preview := d.HTML
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Println(preview)
		fmt.Println("---")
	}

	return nil
}

func runDeployStats(cmd *cobra.Command, args []string) error {
	storage, err := openDeployStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	stats, err := storage.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get queue stats: %w", err)
	}

	fmt.Println("Deployment Queue Statistics")
	fmt.Println("===========================")
	fmt.Printf("Total:     %d\n", stats.Total)
	fmt.Printf("Pending:   %d\n", stats.Pending)
	fmt.Printf("Deploying: %d\n", stats.Deploying)
	fmt.Printf("Deferred:  %d\n", stats.Deferred)
	fmt.Printf("Deployed:  %d\n", stats.Deployed)
	fmt.Printf("Failed:    %d\n", stats.Failed)

	return nil
}

func runDeployRetry(cmd *cobra.Command, args []string) error {
	storage, err := openDeployStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()
	d, err := storage.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}
	if d == nil {
		return fmt.Errorf("deployment not found: %s", args[0])
	}

	d.Status = deploy.StatusPending
	d.RetryCount = 0
	d.LastError = ""
	d.NextRetryAt = time.Time{}
	d.UpdatedAt = time.Now()

	if err := storage.Update(ctx, d); err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}

	fmt.Printf("Deployment %s queued for retry\n", args[0])
	return nil
}

func runDeployDelete(cmd *cobra.Command, args []string) error {
	storage, err := openDeployStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()
	d, err := storage.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}
	if d == nil {
		return fmt.Errorf("deployment not found: %s", args[0])
	}

	if err := storage.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete deployment: %w", err)
	}

	fmt.Printf("Deployment %s deleted\n", args[0])
	return nil
}

func truncateID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12] + "..."
}
