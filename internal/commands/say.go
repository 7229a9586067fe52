package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/diogo/checkin/internal/api"
	"github.com/diogo/checkin/internal/conversation"
	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
	"github.com/diogo/checkin/internal/render"
	"github.com/diogo/checkin/internal/speech"
)

// NewSayCmd creates the single check-in command
func NewSayCmd(deps *Dependencies) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Send one typed check-in",
		Long: `Send one check-in message and print the assistant's reply.

The exchange is recorded in the local history like a chat session.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSay(cmd, deps, strings.Join(args, " "), raw)
		},
	}

	cmd.Flags().BoolVarP(&raw, "raw", "r", false, "Print only the reply text")
	return cmd
}

// failureCapture remembers the last transport error, which the conversation
// core absorbs into its fallback reply
type failureCapture struct {
	conversation.Transport

	mu  sync.Mutex
	err error
}

func (f *failureCapture) CheckIn(ctx context.Context, creds api.Credentials, message string) (*models.CheckInResponse, error) {
	resp, err := f.Transport.CheckIn(ctx, creds, message)
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	return resp, err
}

func (f *failureCapture) last() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// typedTranscript runs text through a keyboard capture session, the same
// path the chat screen uses for typed input
func typedTranscript(text string, logger zerolog.Logger) (string, error) {
	kb := speech.NewTextEngine()
	ctrl := speech.NewController(kb, logger)
	if err := ctrl.Start(); err != nil {
		return "", err
	}
	if err := kb.Feed(text); err != nil {
		_, _ = ctrl.Stop()
		return "", err
	}
	return ctrl.Stop()
}

func runSay(cmd *cobra.Command, deps *Dependencies, text string, raw bool) error {
	transcript, err := typedTranscript(text, deps.Logger)
	if err != nil {
		return err
	}
	if transcript == "" {
		return apierrors.ErrEmptyTranscript
	}

	transport := &failureCapture{Transport: deps.Client}
	opts := []conversation.Option{conversation.WithTimeout(deps.Config.Timeout())}
	if recorder := newRecorder(deps); recorder != nil {
		opts = append(opts, conversation.WithRecorder(recorder))
	}
	core := conversation.New(transport, deps.Sessions.Session(), deps.Logger, opts...)

	var spin *spinner
	if !raw && isStdoutTTY() {
		spin = newSpinner("Checking in")
		spin.start()
	}

	err = core.Submit(cmd.Context(), transcript)
	reply, ok := core.LastAssistant()
	if err == nil && ok && reply.IsFallback() {
		err = apierrors.ErrCheckInFailed
		if cause := transport.last(); cause != nil {
			err = fmt.Errorf("%w: %w", apierrors.ErrCheckInFailed, cause)
		}
	}
	if err != nil {
		if spin != nil {
			spin.stopWithError()
		}
		return err
	}
	if spin != nil {
		spin.stopWithSuccess("Reply received")
	}

	out := cmd.OutOrStdout()
	if raw {
		fmt.Fprintln(out, reply.Text)
		return nil
	}

	width := getTerminalWidth()
	header := labelStyle.Render("◉ Assistant")
	var notes []string
	if mood := render.MoodLine(reply.MoodScore); mood != "" {
		notes = append(notes, mood)
	}
	if reply.HasAudio() {
		notes = append(notes, "♪ audio reply (play it in 'checkin chat')")
	}
	if len(notes) > 0 {
		header += "  " + moodStyle.Render(strings.Join(notes, " • "))
	}

	body := render.Reply(reply, render.FromConfig(deps.Config.Markdown, width-8))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out, assistantBubbleStyle.Width(width-4).Render(body))
	return nil
}
