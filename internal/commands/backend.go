package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/diogo/checkin/internal/models"
)

// NewExercisesCmd lists the backend's wellbeing exercises
func NewExercisesCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "exercises",
		Short: "List suggested exercises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exercises, err := deps.Client.Exercises(cmd.Context(), deps.Sessions.Session())
			if err != nil {
				return fmt.Errorf("failed to fetch exercises: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(exercises) == 0 {
				fmt.Fprintln(out, "No exercises available.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "KEY\tTITLE\tDURATION\tDESCRIPTION")
			_, _ = fmt.Fprintln(w, "---\t-----\t--------\t-----------")
			for _, e := range exercises {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Key, e.Title, e.Duration, truncate(e.Description, 60))
			}
			return w.Flush()
		},
	}
}

// NewMoodsCmd shows the mood scores recorded by the backend
func NewMoodsCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "moods",
		Short: "Show recorded mood scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := deps.Client.MoodHistory(cmd.Context(), deps.Sessions.Session())
			if err != nil {
				return fmt.Errorf("failed to fetch mood history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No check-ins recorded yet.")
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "WHEN\tSCORE\tMOOD\tEXERCISE")
			_, _ = fmt.Fprintln(w, "----\t-----\t----\t--------")
			var sum float64
			for _, e := range entries {
				when := "-"
				if !e.Timestamp.IsZero() {
					when = e.Timestamp.Local().Format("2006-01-02 15:04")
				}
				exercise := e.ExerciseType
				if exercise == "" {
					exercise = "-"
				}
				_, _ = fmt.Fprintf(w, "%s\t%+.2f\t%s\t%s\n", when, e.MoodScore, models.MoodLabel(e.MoodScore), exercise)
				sum += e.MoodScore
			}
			if err := w.Flush(); err != nil {
				return err
			}

			avg := sum / float64(len(entries))
			fmt.Fprintf(out, "\nAverage over %d check-ins: %+.2f (%s)\n", len(entries), avg, models.MoodLabel(avg))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the most recent N entries")
	return cmd
}
