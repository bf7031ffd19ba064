package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/ingestion"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Track ingestion runs",
	}
	cmd.AddCommand(newJobBeginCommand(ctx))
	cmd.AddCommand(newJobFinalizeCommand(ctx))
	cmd.AddCommand(newJobListCommand(ctx))
	return cmd
}

func jobKeyFlags(cmd *cobra.Command, key *ingestion.Key) {
	cmd.Flags().StringVar(&key.Provider, "provider", "", "Connector name (gmail, calendar, ...)")
	cmd.Flags().StringVarP(&key.BusinessUnit, "unit", "u", "", "Business unit")
	cmd.Flags().StringVar(&key.JobType, "type", "", "Job type within the provider")
	cmd.Flags().StringVarP(&key.IdempotencyKey, "key", "k", "", "Run idempotency key")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("key")
}

func parseDetails(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(raw), &details); err != nil {
		return nil, fmt.Errorf("parse --details: %w", err)
	}
	return details, nil
}

func newJobBeginCommand(ctx *commandContext) *cobra.Command {
	var (
		key         ingestion.Key
		detailsJSON string
	)

	cmd := &cobra.Command{
		Use:   "begin",
		Short: "Register the start of an ingestion run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := ctx.tracker()
			if err != nil {
				return err
			}
			details, err := parseDetails(detailsJSON)
			if err != nil {
				return err
			}

			res, err := tr.Begin(cmd.Context(), key, details)
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, res)
			}
			switch {
			case res.Reclaimed:
				fmt.Fprintf(cmd.OutOrStdout(), "reclaimed stale run %s\n", res.IdempotencyKey)
			case res.Accepted:
				fmt.Fprintf(cmd.OutOrStdout(), "started run %s\n", res.IdempotencyKey)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "duplicate: run %s is %s\n", res.IdempotencyKey, res.Status)
			}
			return nil
		},
	}

	jobKeyFlags(cmd, &key)
	cmd.Flags().StringVar(&detailsJSON, "details", "", "Details as a JSON object")
	return cmd
}

func newJobFinalizeCommand(ctx *commandContext) *cobra.Command {
	var (
		key         ingestion.Key
		status      string
		detailsJSON string
	)

	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Record an ingestion run's outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := ctx.tracker()
			if err != nil {
				return err
			}
			details, err := parseDetails(detailsJSON)
			if err != nil {
				return err
			}

			found, err := tr.Finalize(cmd.Context(), key, status, details)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no run matches key %q", key.IdempotencyKey)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s finalized as %s\n", key.IdempotencyKey, strings.ToLower(status))
			return nil
		},
	}

	jobKeyFlags(cmd, &key)
	cmd.Flags().StringVarP(&status, "status", "s", "", "Terminal status (ok, error, succeeded, failed, ...)")
	cmd.Flags().StringVar(&detailsJSON, "details", "", "Details as a JSON object")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var (
		provider string
		unit     string
		status   string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := ctx.tracker()
			if err != nil {
				return err
			}
			jobs, err := tr.List(cmd.Context(), ingestion.Filter{
				Provider:     provider,
				BusinessUnit: unit,
				Status:       status,
				Limit:        limit,
			})
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, jobs)
			}
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.Provider,
					job.BusinessUnit,
					job.JobType,
					job.IdempotencyKey,
					job.Status,
					job.UpdatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Provider", "Unit", "Type", "Key", "Status", "Updated"},
				rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().StringVarP(&unit, "unit", "u", "", "Filter by business unit")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (default 50)")
	return cmd
}
