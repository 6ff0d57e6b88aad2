package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scraplink/linkaudit/internal/types"
)

var (
	enqueueProjectID string
	enqueueUserID    string
)

// enqueueCmd submits a single (source_url, target_domain) pair
// directly onto the queue, bypassing the batch API — useful for
// scripting and for verifying a deployment without curl.
func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue [source_url] [target_domain]",
		Short: "Submit one link for a one-off audit",
		Args:  cobra.ExactArgs(2),
		RunE:  runEnqueue,
	}
	cmd.Flags().StringVar(&enqueueProjectID, "project", "default", "project id the result belongs to")
	cmd.Flags().StringVar(&enqueueUserID, "user", "cli", "user id whose plan sets queue priority")
	return cmd
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	sourceURL, targetDomain := args[0], args[1]

	if err := types.ValidateURL(sourceURL); err != nil {
		return fmt.Errorf("invalid source url: %w", err)
	}
	targetDomain = types.NormaliseDomain(targetDomain)

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

	logger := setupLogger()
	q, closeQueue, err := buildQueue(cfg, logger)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}
	defer closeQueue()

	priority, err := repo.GetUserPriority(ctx, enqueueUserID)
	if err != nil {
		priority = types.PriorityFree
	}

	linkID := types.LinkIDFor(types.LinkKindBatch, sourceURL, targetDomain, enqueueProjectID)
	link := &types.Link{
		ID:           linkID,
		ProjectID:    enqueueProjectID,
		SourceURL:    sourceURL,
		TargetDomain: targetDomain,
		Kind:         types.LinkKindBatch,
		State:        types.LinkStatePending,
		RowIndex:     -1,
	}
	if err := repo.UpsertLink(ctx, link); err != nil {
		return fmt.Errorf("persist link: %w", err)
	}

	job := &types.Job{
		JobID:        types.DeterministicJobID(types.LinkKindBatch, sourceURL, enqueueProjectID, 0),
		Kind:         types.LinkKindBatch,
		UserID:       enqueueUserID,
		ProjectID:    enqueueProjectID,
		Payload:      types.BatchJob{LinkID: linkID},
		SourceURL:    sourceURL,
		TargetDomain: targetDomain,
		Priority:     priority,
		EnqueuedAt:   time.Now(),
	}
	admitted, err := q.Enqueue(ctx, job)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	if !admitted {
		fmt.Printf("job %s already waiting or in flight (link %s), not re-enqueued\n", job.JobID, linkID)
		return nil
	}

	fmt.Printf("enqueued job %s (link %s)\n", job.JobID, linkID)
	return nil
}
