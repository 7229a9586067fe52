package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diogo/checkin/internal/history"
	"github.com/diogo/checkin/internal/render"
)

// NewHistoryCmd creates the history command tree
func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage local check-in transcripts",
		Long: `View and manage the transcripts recorded on this machine.

` + history.Help(),
	}

	cmd.AddCommand(newHistoryListCmd(deps))
	cmd.AddCommand(newHistoryShowCmd(deps))
	cmd.AddCommand(newHistoryExportCmd(deps))
	cmd.AddCommand(newHistoryDeleteCmd(deps))
	cmd.AddCommand(newHistoryClearCmd(deps))
	return cmd
}

func openHistory(deps *Dependencies) (*history.Store, error) {
	store, err := history.NewStore(deps.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

func newHistoryListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(deps)
			if err != nil {
				return err
			}
			conversations, err := store.ListConversations()
			if err != nil {
				return fmt.Errorf("failed to list conversations: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(conversations) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tID\tTITLE\tMESSAGES\tMOOD\tUPDATED")
			_, _ = fmt.Fprintln(w, "-\t--\t-----\t--------\t----\t-------")
			for i, conv := range conversations {
				mood := "-"
				if scores := conv.MoodScores(); len(scores) > 0 {
					mood = fmt.Sprintf("%+.2f", scores[len(scores)-1])
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					i+1, conv.ID[:8], truncate(conv.Title, 40), len(conv.Messages), mood,
					history.FormatRelativeTime(conv.UpdatedAt))
			}
			return w.Flush()
		},
	}
}

func newHistoryShowCmd(deps *Dependencies) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <ref>",
		Short: "Show a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(deps)
			if err != nil {
				return err
			}
			exportFormat, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			data, err := store.Export(id, exportFormat)
			if err != nil {
				return fmt.Errorf("conversation not found: %w", err)
			}

			out := cmd.OutOrStdout()
			if exportFormat == history.ExportFormatMarkdown && isStdoutTTY() {
				rendered, err := render.Markdown(string(data), render.FromConfig(deps.Config.Markdown, getTerminalWidth()))
				if err == nil {
					fmt.Fprint(out, rendered)
					return nil
				}
			}
			fmt.Fprintln(out, string(data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	return cmd
}

func newHistoryExportCmd(deps *Dependencies) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export <ref> <file>",
		Short: "Write a transcript to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(deps)
			if err != nil {
				return err
			}
			if format == "" {
				format = "markdown"
				if filepath.Ext(args[1]) == ".json" {
					format = "json"
				}
			}
			exportFormat, err := history.ParseExportFormat(format)
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			data, err := store.Export(id, exportFormat)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", id, args[1])
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "markdown or json (default from file extension)")
	return cmd
}

func newHistoryDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <ref>",
		Short: "Delete a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(deps)
			if err != nil {
				return err
			}
			id, err := history.NewResolver(store).Resolve(args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteConversation(id); err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted conversation: %s\n", id)
			return nil
		},
	}
}

func newHistoryClearCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(deps)
			if err != nil {
				return err
			}
			n, err := store.ClearAll()
			if err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d conversations.\n", n)
			return nil
		},
	}
}
