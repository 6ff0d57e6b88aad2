package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	exportpkg "github.com/scraplink/linkaudit/internal/export"
	"github.com/scraplink/linkaudit/internal/types"
)

var (
	exportProjectID string
	exportKind      string
	exportFormat    string
	exportOutputDir string
)

// exportCmd writes every audited link for a project+kind to disk,
// independent of the batch API's own result surface.
func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write audited links for a project to a file",
		RunE:  runExport,
	}
	cmd.Flags().StringVar(&exportProjectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&exportKind, "kind", "batch", "link kind: batch or sheet")
	cmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, jsonl, csv")
	cmd.Flags().StringVar(&exportOutputDir, "output", ".", "directory to write the report into")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	kind := types.LinkKind(exportKind)
	if kind != types.LinkKindBatch && kind != types.LinkKindSheet {
		return fmt.Errorf("kind must be 'batch' or 'sheet', got %q", exportKind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build repository: %w", err)
	}
	defer closeRepo()

	links, err := repo.ListByProjectAndKind(ctx, exportProjectID, kind)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}

	logger := setupLogger()
	exporter, err := exportpkg.New(exportFormat, exportOutputDir, logger)
	if err != nil {
		return fmt.Errorf("build exporter: %w", err)
	}
	if err := exporter.Write(links); err != nil {
		return fmt.Errorf("write links: %w", err)
	}
	if err := exporter.Close(); err != nil {
		return fmt.Errorf("close exporter: %w", err)
	}

	fmt.Printf("exported %d links (project=%s kind=%s format=%s)\n", len(links), exportProjectID, exportKind, exportFormat)
	return nil
}
