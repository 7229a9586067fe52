package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/diogo/checkin/internal/api"
	"github.com/diogo/checkin/internal/config"
	"github.com/diogo/checkin/internal/log"
	"github.com/diogo/checkin/internal/session"
	"github.com/diogo/checkin/internal/tui"
)

// TUIInterface defines the methods required from the TUI package.
type TUIInterface interface {
	Run(m tui.Model) error
}

// DefaultTUI is the production implementation of TUIInterface.
type DefaultTUI struct{}

func (d *DefaultTUI) Run(m tui.Model) error {
	return tui.Run(m)
}

// Prompter reads interactive input
type Prompter interface {
	// Line reads one line of visible input
	Line(prompt string) (string, error)
	// Password reads one line without echo when attached to a terminal
	Password(prompt string) (string, error)
}

// TermPrompter prompts on stderr and reads from in
type TermPrompter struct {
	in     *os.File
	out    io.Writer
	reader *bufio.Reader
}

// NewTermPrompter creates a prompter over stdin/stderr
func NewTermPrompter() *TermPrompter {
	return &TermPrompter{in: os.Stdin, out: os.Stderr, reader: bufio.NewReader(os.Stdin)}
}

func (p *TermPrompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *TermPrompter) Password(prompt string) (string, error) {
	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		line, err := p.Line(prompt)
		return line, err
	}
	fmt.Fprint(p.out, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Dependencies holds the external dependencies for the commands.
// This allows for dependency injection and easier testing.
type Dependencies struct {
	// Config is the effective configuration (file, env, flags).
	Config config.Config

	// ConfigDir holds config, credentials, logs and history.
	ConfigDir string

	Logger zerolog.Logger

	// Client is the backend client.
	Client api.BackendClient

	// Sessions owns the credential.
	Sessions *session.Manager

	// TUI is the terminal user interface.
	TUI TUIInterface

	Prompter Prompter

	ready    bool
	closeLog func() error
}

// Overrides carries persistent flag values into Init
type Overrides struct {
	BaseURL  string
	LogLevel string
	LogPath  string
}

// NewDependencies creates a new Dependencies struct with default implementations.
// The remaining fields are filled by Init.
func NewDependencies() *Dependencies {
	return &Dependencies{
		TUI:      &DefaultTUI{},
		Prompter: NewTermPrompter(),
		Logger:   log.Nop(),
	}
}

// Init loads configuration, opens the log, builds the client and restores
// the persisted session. Fields set before Init are kept. It is a no-op after
// the first successful call.
func (d *Dependencies) Init(o Overrides) error {
	if d.ready {
		return nil
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	d.Config = cfg

	if d.ConfigDir == "" {
		dir, err := config.EnsureConfigDir()
		if err != nil {
			return err
		}
		d.ConfigDir = dir
	}

	logDir, err := log.ResolveDir(o.LogPath, d.ConfigDir)
	if err != nil {
		return err
	}
	logger, closeLog, err := log.Open(logDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (logging disabled)\n", err)
		logger = log.Nop()
	}
	d.Logger = logger
	d.closeLog = closeLog

	if d.Client == nil {
		client, err := api.NewClient(cfg.BaseURL, api.WithTimeoutSeconds(cfg.RequestTimeout+5))
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}
		d.Client = client
	}

	if d.Sessions == nil {
		store, err := config.NewCredentialStore(cfg.CredentialBackend)
		if err != nil {
			return err
		}
		d.Sessions = session.NewManager(d.Client, store, d.Logger)
		if _, err := d.Sessions.Restore(); err != nil {
			d.Logger.Warn().Err(err).Msg("could not restore session")
		}
	}

	d.Logger.Debug().
		Str("base_url", cfg.BaseURL).
		Bool("authenticated", d.Sessions.Session().Authenticated()).
		Msg("initialized")

	d.ready = true
	return nil
}

// Close releases the log file
func (d *Dependencies) Close() {
	if d.closeLog != nil {
		_ = d.closeLog()
		d.closeLog = nil
	}
}
