package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/contacts"
)

func newContactCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Maintain the shared contact graph",
	}
	cmd.AddCommand(newContactUpsertCommand(ctx))
	cmd.AddCommand(newContactShowCommand(ctx))
	cmd.AddCommand(newContactSearchCommand(ctx))
	cmd.AddCommand(newContactThreadsCommand(ctx))
	return cmd
}

func newContactUpsertCommand(ctx *commandContext) *cobra.Command {
	var (
		unit         string
		fullName     string
		email        string
		company      string
		source       string
		provider     string
		externalID   string
		metadataJSON string
	)

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Apply one connector observation of a contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.directory()
			if err != nil {
				return err
			}

			var metadata map[string]any
			if strings.TrimSpace(metadataJSON) != "" {
				if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
					return fmt.Errorf("parse --metadata: %w", err)
				}
			}

			id, err := d.UpsertContact(cmd.Context(), contacts.UpsertContactRequest{
				BusinessUnit:  unit,
				FullName:      fullName,
				PrimaryEmail:  email,
				Company:       company,
				SourceOfTruth: source,
				Provider:      provider,
				ExternalID:    externalID,
				Metadata:      metadata,
			})
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, map[string]any{"contact_id": id})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "contact %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&unit, "unit", "u", "", "Business unit")
	cmd.Flags().StringVar(&fullName, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Primary email (match key)")
	cmd.Flags().StringVar(&company, "company", "", "Company")
	cmd.Flags().StringVar(&source, "source-of-truth", "", "System that owns this contact")
	cmd.Flags().StringVar(&provider, "provider", "", "Observing connector")
	cmd.Flags().StringVar(&externalID, "external-id", "", "Connector-scoped identifier")
	cmd.Flags().StringVar(&metadataJSON, "metadata", "", "Metadata as a JSON object")
	_ = cmd.MarkFlagRequired("unit")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("external-id")
	return cmd
}

func newContactShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the unified view of one contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse id: %w", err)
			}
			d, err := ctx.directory()
			if err != nil {
				return err
			}
			view, err := d.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if view == nil {
				return fmt.Errorf("contact %d not found", id)
			}
			return writeJSON(cmd, view)
		},
	}
}

func newContactSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		unit  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search contacts by name, email, or company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.directory()
			if err != nil {
				return err
			}
			results, err := d.Search(cmd.Context(), args[0], unit, limit)
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, results)
			}
			rows := make([][]string, 0, len(results))
			for _, contact := range results {
				rows = append(rows, []string{
					strconv.FormatInt(contact.ID, 10),
					contact.BusinessUnit,
					contact.FullName,
					contact.PrimaryEmail,
					contact.Company,
					contact.UpdatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Unit", "Name", "Email", "Company", "Updated"},
				rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&unit, "unit", "u", "", "Restrict to one business unit")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (default 10)")
	return cmd
}

func newContactThreadsCommand(ctx *commandContext) *cobra.Command {
	var (
		source string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List recent message threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := ctx.directory()
			if err != nil {
				return err
			}
			threads, err := d.RecentThreads(cmd.Context(), source, limit)
			if err != nil {
				return err
			}
			if useJSON(ctx) {
				return writeJSON(cmd, threads)
			}
			rows := make([][]string, 0, len(threads))
			for _, thread := range threads {
				latest := ""
				if thread.LatestMessageAt != nil {
					latest = thread.LatestMessageAt.Format(time.RFC3339)
				}
				rows = append(rows, []string{
					thread.Source,
					thread.ExternalThreadID,
					thread.BusinessUnit,
					strconv.Itoa(thread.MessageCount),
					strings.Join(thread.Participants, ", "),
					latest,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Source", "Thread", "Unit", "Messages", "Participants", "Latest"},
				rows))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Restrict to one source")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows (default 20)")
	return cmd
}
