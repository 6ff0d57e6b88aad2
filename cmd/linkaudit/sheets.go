package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scraplink/linkaudit/internal/types"
)

var (
	sheetProjectID     string
	sheetUserID        string
	sheetSpreadsheetID string
	sheetGID           int64
	sheetTargetDomain  string
	sheetURLColumn     string
	sheetTargetColumn  string
	sheetResultRange   string
	sheetInterval      string
)

// sheetsCmd groups subcommands for managing recurring sheet audits.
func sheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Manage recurring spreadsheet audits",
	}
	cmd.AddCommand(sheetsAddCmd())
	cmd.AddCommand(sheetsCancelCmd())
	return cmd
}

func sheetsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a spreadsheet tab for recurring auditing",
		RunE:  runSheetsAdd,
	}
	cmd.Flags().StringVar(&sheetProjectID, "project", "", "project id (required)")
	cmd.Flags().StringVar(&sheetUserID, "user", "", "user id whose plan sets queue priority (required)")
	cmd.Flags().StringVar(&sheetSpreadsheetID, "spreadsheet-id", "", "Google Sheets spreadsheet id (required)")
	cmd.Flags().Int64Var(&sheetGID, "gid", 0, "sheet tab gid")
	cmd.Flags().StringVar(&sheetTargetDomain, "target-domain", "", "default target domain (required)")
	cmd.Flags().StringVar(&sheetURLColumn, "url-column", "A", "column holding source URLs")
	cmd.Flags().StringVar(&sheetTargetColumn, "target-column", "", "column holding a per-row target domain override")
	cmd.Flags().StringVar(&sheetResultRange, "result-range", "C,D,E,F,G", "comma-separated 5 write-back columns")
	cmd.Flags().StringVar(&sheetInterval, "interval", "manual", "recurrence: manual,5m,30m,1h,4h,8h,12h,1d,3d,1w,1M")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("spreadsheet-id")
	_ = cmd.MarkFlagRequired("target-domain")
	return cmd
}

func runSheetsAdd(cmd *cobra.Command, args []string) error {
	resultRange := strings.Split(sheetResultRange, ",")
	for i := range resultRange {
		resultRange[i] = strings.TrimSpace(resultRange[i])
	}

	sheet := &types.Sheet{
		// epoch fixed at 0: this derives the sheet's own stable id, not a
		// per-run job id, so it must never change across runs.
		ID:        types.DeterministicJobID(types.LinkKindSheet, sheetSpreadsheetID, sheetProjectID, 0),
		ProjectID: sheetProjectID,
		UserID:    sheetUserID,
		SpreadsheetRef: types.SpreadsheetRef{
			SpreadsheetID: sheetSpreadsheetID,
			SheetGID:      sheetGID,
		},
		TargetDomain: types.NormaliseDomain(sheetTargetDomain),
		URLColumn:    sheetURLColumn,
		TargetColumn: sheetTargetColumn,
		ResultRange:  resultRange,
		Interval:     types.Interval(sheetInterval),
		Status:       types.SheetStatusNotStarted,
	}
	if err := sheet.Validate(); err != nil {
		return fmt.Errorf("invalid sheet: %w", err)
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

	if err := repo.UpdateSheet(ctx, sheet); err != nil {
		return fmt.Errorf("persist sheet: %w", err)
	}

	fmt.Printf("registered sheet %s (interval=%s)\n", sheet.ID, sheet.Interval)
	fmt.Println("restart 'linkaudit serve' (or wait for the next bootstrap) to arm its timer")
	return nil
}

func sheetsCancelCmd() *cobra.Command {
	var sheetID string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Deactivate a recurring sheet audit",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			sheet, err := repo.GetSheet(ctx, sheetID)
			if err != nil {
				return fmt.Errorf("load sheet: %w", err)
			}
			sheet.Status = types.SheetStatusInactive
			if err := repo.UpdateSheet(ctx, sheet); err != nil {
				return fmt.Errorf("persist sheet: %w", err)
			}
			fmt.Printf("sheet %s marked inactive\n", sheetID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sheetID, "id", "", "sheet id to cancel (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
