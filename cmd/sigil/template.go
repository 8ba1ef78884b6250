package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigilhq/sigil/internal/deploy"
	"github.com/sigilhq/sigil/internal/signature"
)

var (
	templateOrg         string
	templateName        string
	templateDescription string
	templateBlocksFile  string
	templateContextJSON string
	templateListLimit   int
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template management commands",
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List signature templates",
	RunE:  runTemplateList,
}

var templateCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new template",
	RunE:  runTemplateCreate,
}

var templateShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show template details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateShow,
}

var templatePreviewCmd = &cobra.Command{
	Use:   "preview <id>",
	Short: "Compile a template with test data",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatePreview,
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateDelete,
}

func init() {
	templateListCmd.Flags().StringVar(&templateOrg, "org", "", "Filter by organization")
	templateListCmd.Flags().IntVar(&templateListLimit, "limit", 50, "Maximum number of templates to show")

	templateCreateCmd.Flags().StringVar(&templateOrg, "org", "", "Organization ID (required)")
	templateCreateCmd.Flags().StringVar(&templateName, "name", "", "Template name (required)")
	templateCreateCmd.Flags().StringVar(&templateDescription, "description", "", "Template description")
	templateCreateCmd.Flags().StringVar(&templateBlocksFile, "blocks", "", "JSON file with signature blocks (required)")
	templateCreateCmd.MarkFlagRequired("org")
	templateCreateCmd.MarkFlagRequired("name")
	templateCreateCmd.MarkFlagRequired("blocks")

	templatePreviewCmd.Flags().StringVar(&templateContextJSON, "data", "{}", "JSON render context for preview")

	templateCmd.AddCommand(
		templateListCmd,
		templateCreateCmd,
		templateShowCmd,
		templatePreviewCmd,
		templateDeleteCmd,
	)
	rootCmd.AddCommand(templateCmd)
}

// openTemplateStorage opens template storage on the shared bbolt file.
func openTemplateStorage() (*signature.Storage, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	db, err := deploy.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	storage, err := signature.NewStorage(db.DB())
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open template storage: %w", err)
	}

	return storage, func() { db.Close() }, nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	storage, closeFn, err := openTemplateStorage()
	if err != nil {
		return err
	}
	defer closeFn()

	templates, err := storage.List(context.Background(), signature.ListFilter{
		OrgID: templateOrg,
		Limit: templateListLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if len(templates) == 0 {
		fmt.Println("No templates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tORG\tNAME\tBLOCKS\tVERSION\tUPDATED")
	fmt.Fprintln(w, "--\t---\t----\t------\t-------\t-------")

	for _, tmpl := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			truncateID(tmpl.ID),
			tmpl.OrgID,
			tmpl.Name,
			len(tmpl.Blocks),
			tmpl.Version,
			tmpl.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d templates\n", len(templates))

	return nil
}

func runTemplateCreate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(templateBlocksFile)
	if err != nil {
		return fmt.Errorf("failed to read blocks file: %w", err)
	}

	var blocks []signature.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("failed to parse blocks: %w", err)
	}

	storage, closeFn, err := openTemplateStorage()
	if err != nil {
		return err
	}
	defer closeFn()

	tmpl := &signature.Template{
		OrgID:       templateOrg,
		Name:        templateName,
		Description: templateDescription,
		Blocks:      blocks,
	}

	if err := storage.Create(context.Background(), tmpl); err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	fmt.Printf("Template created: %s\n", tmpl.ID)
	return nil
}

func runTemplateShow(cmd *cobra.Command, args []string) error {
	storage, closeFn, err := openTemplateStorage()
	if err != nil {
		return err
	}
	defer closeFn()

	tmpl, err := storage.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	fmt.Printf("Template: %s\n\n", tmpl.ID)
	fmt.Printf("Org:         %s\n", tmpl.OrgID)
	fmt.Printf("Name:        %s\n", tmpl.Name)
	if tmpl.Description != "" {
		fmt.Printf("Description: %s\n", tmpl.Description)
	}
	fmt.Printf("Version:     %d\n", tmpl.Version)
	fmt.Printf("Created:     %s\n", tmpl.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Updated:     %s\n", tmpl.UpdatedAt.Format(time.RFC3339))

	fmt.Printf("\nBlocks (%d):\n", len(tmpl.Blocks))
	for i, b := range tmpl.Blocks {
		fmt.Printf("  %d. %s", i+1, b.Type)
		switch b.Type {
		case signature.BlockVariable:
			fmt.Printf(" (%s)", b.Field)
		case signature.BlockText, signature.BlockDisclaimer:
			content := b.Content
			if len(content) > 40 {
				content = content[:37] + "..."
			}
			fmt.Printf(" %q", content)
		case signature.BlockImage, signature.BlockBanner:
			fmt.Printf(" %s", b.URL)
		}
		fmt.Println()
	}

	return nil
}

func runTemplatePreview(cmd *cobra.Command, args []string) error {
	storage, closeFn, err := openTemplateStorage()
	if err != nil {
		return err
	}
	defer closeFn()

	tmpl, err := storage.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	var renderCtx signature.RenderContext
	if err := json.Unmarshal([]byte(templateContextJSON), &renderCtx); err != nil {
		return fmt.Errorf("failed to parse --data: %w", err)
	}

	result := signature.Compile(tmpl.Blocks, renderCtx)
	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}

	fmt.Println(result.HTML)
	return nil
}

func runTemplateDelete(cmd *cobra.Command, args []string) error {
	storage, closeFn, err := openTemplateStorage()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	tmpl, err := storage.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get template: %w", err)
	}
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", args[0])
	}

	if err := storage.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	fmt.Printf("Template %s deleted\n", args[0])
	return nil
}
