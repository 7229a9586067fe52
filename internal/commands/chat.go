package commands

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/diogo/checkin/internal/audio"
	"github.com/diogo/checkin/internal/config"
	"github.com/diogo/checkin/internal/conversation"
	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/history"
	"github.com/diogo/checkin/internal/playback"
	"github.com/diogo/checkin/internal/render"
	"github.com/diogo/checkin/internal/speech"
	"github.com/diogo/checkin/internal/tui"
)

// NewChatCmd creates the interactive check-in command
func NewChatCmd(deps *Dependencies) *cobra.Command {
	var keyboard bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the voice check-in screen",
		Long: `Open an interactive check-in. Press space to start talking and again to
send what you said. Replies are shown as text and played as audio.

Without DEEPGRAM_API_KEY (or with --keyboard) you type instead of speaking.

KEYBOARD SHORTCUTS:
  Space / Ctrl+R   Start or stop talking
  Enter            Send typed text (keyboard mode)
  Esc              Cancel the pending reply or discard the recording
  Ctrl+Y           Copy the last reply
  Ctrl+P           Replay the last audio reply
  Ctrl+C           Quit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, deps, keyboard)
		},
	}

	cmd.Flags().BoolVarP(&keyboard, "keyboard", "k", false, "Type instead of speaking")
	return cmd
}

func runChat(cmd *cobra.Command, deps *Dependencies, keyboard bool) error {
	cfg := deps.Config
	logger := deps.Logger
	sess := deps.Sessions.Session()
	stderr := cmd.ErrOrStderr()

	if !sess.Authenticated() {
		fmt.Fprintln(stderr, dimStyle.Render("Not logged in: the backend will reject check-ins. Run 'checkin login' first."))
	}

	var kb *speech.TextEngine
	var engine speech.Engine
	if keyboard || cfg.Speech.Provider == config.ProviderKeyboard {
		kb = speech.NewTextEngine()
		engine = kb
	} else {
		mic, closeAudio, err := newMicrophoneEngine(cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("microphone capture unavailable, using keyboard")
			fmt.Fprintln(stderr, dimStyle.Render(fmt.Sprintf("%v; switching to keyboard input", err)))
			kb = speech.NewTextEngine()
			engine = kb
		} else {
			defer closeAudio()
			engine = mic
		}
	}
	ctrl := speech.NewController(engine, logger)

	var sink playback.Sink
	if cfg.Playback.Enabled {
		oto := playback.NewOtoSink(logger)
		defer oto.Close()
		sink = oto
	}
	player := playback.New(sink, logger)

	events := tui.NewEvents()
	opts := []conversation.Option{
		conversation.WithPlayer(player),
		conversation.WithTimeout(cfg.Timeout()),
		conversation.WithOnChange(events.Changed),
	}
	recorder := newRecorder(deps)
	if recorder != nil {
		opts = append(opts, conversation.WithRecorder(recorder))
	}
	core := conversation.New(deps.Client, sess, logger, opts...)

	model := tui.NewModel(tui.Options{
		Core:     core,
		Speech:   ctrl,
		Keyboard: kb,
		Replayer: player,
		Events:   events,
		Render:   render.FromConfig(cfg.Markdown, 0),
		AutoCopy: cfg.CopyToClipboard,
		Username: sessionUser(deps),
		BaseURL:  cfg.BaseURL,
	})

	if err := deps.TUI.Run(model); err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}

	if recorder != nil && recorder.ID() != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Transcript saved: checkin history show %s\n", recorder.ID())
	}
	return nil
}

// newMicrophoneEngine opens the default capture device and returns the
// streaming engine with a release function
func newMicrophoneEngine(cfg config.Config, logger zerolog.Logger) (speech.Engine, func(), error) {
	if cfg.Speech.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not set", apierrors.ErrCaptureUnavailable)
	}

	audioCtx, err := audio.NewContext()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", apierrors.ErrCaptureUnavailable, err)
	}

	engine := speech.NewDeepgramEngine(speech.DeepgramConfig{
		APIKey:     cfg.Speech.APIKey,
		Model:      cfg.Speech.Model,
		Language:   cfg.Speech.Language,
		SampleRate: cfg.Speech.SampleRate,
	}, audioCtx, logger)

	return engine, audioCtx.Close, nil
}

// newRecorder returns a history recorder, or nil when the store cannot be
// opened
func newRecorder(deps *Dependencies) *history.Recorder {
	store, err := history.NewStore(deps.ConfigDir)
	if err != nil {
		deps.Logger.Warn().Err(err).Msg("history disabled")
		return nil
	}
	return store.NewRecorder(deps.Config.BaseURL)
}

// sessionUser returns the token subject, if the token is a readable JWT
func sessionUser(deps *Dependencies) string {
	claims, err := deps.Sessions.Claims()
	if err != nil || claims == nil {
		return ""
	}
	return claims.Subject
}
