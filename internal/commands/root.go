// Package commands provides CLI commands for checkin.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

var defaultDeps = NewDependencies()

// rootCmd represents the base command
var rootCmd = NewRootCmd(defaultDeps)

// NewRootCmd builds the command tree over deps
func NewRootCmd(deps *Dependencies) *cobra.Command {
	var overrides Overrides

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Voice check-in client",
		Long: `checkin holds a spoken check-in conversation with a wellbeing backend.
Speak (or type) how you feel, and the assistant answers with text and audio.

Examples:
  checkin register                    Create an account
  checkin login                       Sign in and store the session
  checkin chat                        Open the voice check-in screen
  checkin chat --keyboard             Type instead of speaking
  checkin say "I slept badly"         One typed check-in
  checkin moods                       Show recorded mood scores
  checkin history show @last          Show the last local transcript`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.Init(overrides)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "checkin %s (built %s)\n", Version, BuildTime)
				return nil
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&overrides.BaseURL, "base-url", "", "Backend address (overrides config)")
	cmd.PersistentFlags().StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&overrides.LogPath, "log-path", "", "Directory for checkin.log")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.AddCommand(NewChatCmd(deps))
	cmd.AddCommand(NewSayCmd(deps))
	cmd.AddCommand(NewLoginCmd(deps))
	cmd.AddCommand(NewRegisterCmd(deps))
	cmd.AddCommand(NewLogoutCmd(deps))
	cmd.AddCommand(NewStatusCmd(deps))
	cmd.AddCommand(NewExercisesCmd(deps))
	cmd.AddCommand(NewMoodsCmd(deps))
	cmd.AddCommand(NewHistoryCmd(deps))
	cmd.AddCommand(NewConfigCmd(deps))

	return cmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	defaultDeps.Close()

	if err != nil {
		fmt.Fprintln(os.Stderr, formatErrorMessage(err, "Error"))
		os.Exit(1)
	}
}
