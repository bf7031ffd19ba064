package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"loom/internal/workqueue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive the durable work queue",
	}
	cmd.AddCommand(newQueueAddCommand(ctx))
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueShowCommand(ctx))
	cmd.AddCommand(newQueueClaimCommand(ctx))
	cmd.AddCommand(newQueueCompleteCommand(ctx))
	cmd.AddCommand(newQueueFailCommand(ctx))
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		queueName   string
		unit        string
		payloadJSON string
		idemKey     string
		priority    int
		maxAttempts int
		autoKey     bool
	)

	cmd := &cobra.Command{
		Use:   "add <task-type>",
		Short: "Enqueue a work item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}

			var payload map[string]any
			if strings.TrimSpace(payloadJSON) != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					return fmt.Errorf("parse --payload: %w", err)
				}
			}
			if autoKey && idemKey == "" {
				idemKey = uuid.NewString()
			}

			var priorityArg *int
			if cmd.Flags().Changed("priority") {
				priorityArg = &priority
			}

			res, err := q.Enqueue(cmd.Context(), workqueue.EnqueueRequest{
				Queue:          queueName,
				TaskType:       args[0],
				Payload:        payload,
				BusinessUnit:   unit,
				IdempotencyKey: idemKey,
				Priority:       priorityArg,
				MaxAttempts:    maxAttempts,
				CreatedBy:      "loom-cli",
			})
			if err != nil {
				return err
			}

			if useJSON(ctx) {
				return writeJSON(cmd, res)
			}
			if res.Duplicate {
				if res.WorkItemID > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "duplicate of work item %d (%s)\n", res.WorkItemID, res.Status)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "duplicate (existing item could not be identified)")
				}
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued work item %d\n", res.WorkItemID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "sync", "Queue name")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "Business unit")
	cmd.Flags().StringVarP(&payloadJSON, "payload", "p", "", "Payload as a JSON object")
	cmd.Flags().StringVarP(&idemKey, "key", "k", "", "Idempotency key")
	cmd.Flags().BoolVar(&autoKey, "auto-key", false, "Generate a random idempotency key")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority (lower runs first; omit to use the configured default)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget (0 uses the configured default)")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		queueName string
		status    string
		unit      string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}

			filter := workqueue.Filter{Queue: queueName, BusinessUnit: unit, Limit: limit}
			if status != "" {
				parsed, ok := workqueue.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = parsed
			}

			items, err := q.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if useJSON(ctx) {
				return writeJSON(cmd, items)
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					item.Queue,
					item.TaskType,
					string(item.Status),
					strconv.Itoa(item.Priority),
					fmt.Sprintf("%d/%d", item.Attempts, item.MaxAttempts),
					item.ClaimedBy,
					item.UpdatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Queue", "Task", "Status", "Priority", "Attempts", "Claimed By", "Updated"},
				rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&queueName, "queue", "q", "", "Filter by queue")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "Filter by business unit")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (default 50)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one work item in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}
			item, err := q.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if item == nil {
				return fmt.Errorf("work item %d not found", id)
			}
			return writeJSON(cmd, item)
		},
	}
}

func newQueueClaimCommand(ctx *commandContext) *cobra.Command {
	var (
		workerID string
		queues   []string
		limit    int
		lease    int
	)

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim eligible work items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}
			if workerID == "" {
				workerID = "loom-cli-" + uuid.NewString()[:8]
			}
			items, err := q.Claim(cmd.Context(), workerID, queues, limit, lease)
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, map[string]any{"worker_id": workerID, "items": items})
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing eligible")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "claimed %d (%s/%s) as %s, lease expires %s\n",
					item.ID, item.Queue, item.TaskType, workerID,
					item.ClaimExpiresAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker identity (random when omitted)")
	cmd.Flags().StringSliceVarP(&queues, "queue", "q", nil, "Queues to draw from (all when omitted)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 1, "Maximum items to claim")
	cmd.Flags().IntVar(&lease, "lease", 0, "Lease seconds (0 uses the configured default)")
	return cmd
}

func newQueueCompleteCommand(ctx *commandContext) *cobra.Command {
	var (
		workerID   string
		resultJSON string
	)

	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark a claimed work item succeeded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}

			result := map[string]any{"ok": true}
			if strings.TrimSpace(resultJSON) != "" {
				if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
					return fmt.Errorf("parse --result: %w", err)
				}
			}

			ok, err := q.Complete(cmd.Context(), id, workerID, result)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("work item %d is not claimed by %q", id, workerID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "work item %d succeeded\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker identity that claimed the item")
	cmd.Flags().StringVar(&resultJSON, "result", "", "Result as a JSON object")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}

func newQueueFailCommand(ctx *commandContext) *cobra.Command {
	var (
		workerID  string
		errorText string
	)

	cmd := &cobra.Command{
		Use:   "fail <id>",
		Short: "Mark a claimed work item failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			q, err := ctx.workQueue()
			if err != nil {
				return err
			}

			ok, err := q.Fail(cmd.Context(), id, workerID, errorText, map[string]any{"kind": "manual"})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("work item %d is not claimed by %q", id, workerID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "work item %d failed\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workerID, "worker", "w", "", "Worker identity that claimed the item")
	cmd.Flags().StringVarP(&errorText, "error", "e", "", "Error description")
	_ = cmd.MarkFlagRequired("worker")
	return cmd
}
