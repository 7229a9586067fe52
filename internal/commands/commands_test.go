package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/diogo/checkin/internal/api"
	"github.com/diogo/checkin/internal/config"
	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/history"
	"github.com/diogo/checkin/internal/models"
	"github.com/diogo/checkin/internal/session"
	"github.com/diogo/checkin/internal/tui"
)

type fakePrompter struct {
	lines     []string
	passwords []string
}

func (p *fakePrompter) Line(string) (string, error) {
	if len(p.lines) == 0 {
		return "", errors.New("no input")
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

func (p *fakePrompter) Password(string) (string, error) {
	if len(p.passwords) == 0 {
		return "", errors.New("no input")
	}
	pw := p.passwords[0]
	p.passwords = p.passwords[1:]
	return pw, nil
}

type fakeTUI struct {
	runs int
	err  error
}

func (f *fakeTUI) Run(tui.Model) error {
	f.runs++
	return f.err
}

type memoryStore struct {
	token string
}

func (s *memoryStore) Load() (string, error) { return s.token, nil }
func (s *memoryStore) Save(token string) error {
	s.token = token
	return nil
}
func (s *memoryStore) Clear() error {
	s.token = ""
	return nil
}

type testEnv struct {
	deps     *Dependencies
	client   *api.MockClient
	store    *memoryStore
	prompter *fakePrompter
	tui      *fakeTUI
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)

	cfg := config.DefaultConfig()
	cfg.Speech.Provider = config.ProviderKeyboard
	cfg.Playback.Enabled = false
	cfg.Markdown.Style = "notty"

	client := &api.MockClient{BaseURLVal: cfg.BaseURL}
	store := &memoryStore{}
	prompter := &fakePrompter{}
	fake := &fakeTUI{}

	deps := &Dependencies{
		Config:    cfg,
		ConfigDir: dir,
		Logger:    zerolog.Nop(),
		Client:    client,
		Sessions:  session.NewManager(client, store, zerolog.Nop()),
		TUI:       fake,
		Prompter:  prompter,
		ready:     true,
	}
	return &testEnv{deps: deps, client: client, store: store, prompter: prompter, tui: fake, dir: dir}
}

func (e *testEnv) run(args ...string) (string, string, error) {
	cmd := NewRootCmd(e.deps)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (e *testEnv) login(t *testing.T, token string) {
	t.Helper()
	e.client.LoginToken = token
	if err := e.deps.Sessions.Login(context.Background(), "sam", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func jwtFor(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestRootCommand(t *testing.T) {
	env := newTestEnv(t)
	cmd := NewRootCmd(env.deps)

	if cmd.Use != "checkin" {
		t.Errorf("Use = %s", cmd.Use)
	}
	for _, name := range []string{"chat", "say", "login", "register", "logout", "status", "exercises", "moods", "history", "config"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("subcommand %q missing", name)
		}
	}
	for _, flag := range []string{"base-url", "log-level", "log-path"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag %q missing", flag)
		}
	}

	out, _, err := env.run("--version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "checkin "+Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		lines     []string
		passwords []string
		token     string
		loginErr  error
		wantErr   error
		wantUser  string
	}{
		{
			name:      "username argument",
			args:      []string{"login", "sam"},
			passwords: []string{"pw"},
			token:     "tok-1",
			wantUser:  "sam",
		},
		{
			name:      "prompted username",
			args:      []string{"login"},
			lines:     []string{"alex"},
			passwords: []string{"pw"},
			token:     "tok-2",
			wantUser:  "alex",
		},
		{
			name:      "rejected",
			args:      []string{"login", "sam"},
			passwords: []string{"bad"},
			loginErr:  fmt.Errorf("%w: wrong password", apierrors.ErrInvalidCredentials),
			wantErr:   apierrors.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.prompter.lines = tt.lines
			env.prompter.passwords = tt.passwords
			env.client.LoginToken = tt.token
			env.client.LoginErr = tt.loginErr

			out, _, err := env.run(tt.args...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if env.store.token != "" {
					t.Error("no credential should be stored on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("login error = %v", err)
			}
			if env.client.LastUsername != tt.wantUser {
				t.Errorf("username = %q, want %q", env.client.LastUsername, tt.wantUser)
			}
			if env.store.token != tt.token {
				t.Errorf("stored token = %q, want %q", env.store.token, tt.token)
			}
			if !strings.Contains(out, "Logged in as "+tt.wantUser) {
				t.Errorf("output = %q", out)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	t.Run("passwords must match", func(t *testing.T) {
		env := newTestEnv(t)
		env.prompter.passwords = []string{"one", "two"}

		_, _, err := env.run("register", "sam")
		if !errors.Is(err, errPasswordMismatch) {
			t.Fatalf("err = %v, want password mismatch", err)
		}
		if err.Error() != "passwords do not match" {
			t.Errorf("message = %q", err.Error())
		}
		if env.client.RegisterCalls != 0 {
			t.Error("no request expected on mismatch")
		}
	})

	t.Run("success does not log in", func(t *testing.T) {
		env := newTestEnv(t)
		env.prompter.passwords = []string{"pw", "pw"}

		out, _, err := env.run("register", "sam")
		if err != nil {
			t.Fatal(err)
		}
		if env.client.RegisterCalls != 1 || env.client.LastUsername != "sam" || env.client.LastPassword != "pw" {
			t.Errorf("register call = %d %q %q", env.client.RegisterCalls, env.client.LastUsername, env.client.LastPassword)
		}
		if env.deps.Sessions.Session().Authenticated() {
			t.Error("registration must not create a session")
		}
		if !strings.Contains(out, "checkin login") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("backend failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.prompter.passwords = []string{"pw", "pw"}
		env.client.RegisterErr = fmt.Errorf("%w: username taken", apierrors.ErrRegistrationFailed)

		if _, _, err := env.run("register", "sam"); !errors.Is(err, apierrors.ErrRegistrationFailed) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "tok")

	out, _, err := env.run("logout")
	if err != nil {
		t.Fatal(err)
	}
	if env.store.token != "" {
		t.Error("credential should be cleared")
	}
	if env.deps.Sessions.Session().Authenticated() {
		t.Error("session should be cleared")
	}
	if !strings.Contains(out, "Logged out.") {
		t.Errorf("output = %q", out)
	}
}

func TestStatus(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		env := newTestEnv(t)
		out, _, err := env.run("status")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "not logged in") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("jwt claims", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, jwtFor(t, "sam", time.Now().Add(time.Hour)))

		out, _, err := env.run("status")
		if err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{"logged in", "User:        sam", "(valid)"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q: %q", want, out)
			}
		}
		if env.client.ExercisesCalls != 0 {
			t.Error("status without --verify must not contact the backend")
		}
	})

	t.Run("opaque token", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, "opaque-token")
		out, _, _ := env.run("status")
		if !strings.Contains(out, "opaque") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("verify accepted", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, "tok")
		out, _, err := env.run("status", "--verify")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "accepted by backend") {
			t.Errorf("output = %q", out)
		}
		if env.client.LastToken != "tok" {
			t.Errorf("verify sent token %q", env.client.LastToken)
		}
	})

	t.Run("verify rejected", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, "tok")
		env.client.ExercisesErr = apierrors.NewAPIError(401, models.EndpointExercises, "expired")

		out, _, err := env.run("status", "--verify")
		if !errors.Is(err, apierrors.ErrNotAuthenticated) {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(out, "rejected by backend") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestExercises(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "tok")
	env.client.ExercisesVal = []models.Exercise{
		{Key: "breathing", Title: "Box breathing", Duration: "5 minutes", Description: "Breathe in for four counts"},
		{Key: "walk", Title: "Short walk", Duration: "10 minutes", Description: "Step outside"},
	}

	out, _, err := env.run("exercises")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"KEY", "breathing", "Box breathing", "10 minutes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if env.client.LastToken != "tok" {
		t.Errorf("exercises sent token %q", env.client.LastToken)
	}

	env.client.ExercisesVal = nil
	out, _, _ = env.run("exercises")
	if !strings.Contains(out, "No exercises") {
		t.Errorf("empty output = %q", out)
	}
}

func TestMoods(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.client.MoodHistoryVal = []models.MoodEntry{
		{Timestamp: base, MoodScore: -0.6, ExerciseType: "breathing"},
		{Timestamp: base.Add(24 * time.Hour), MoodScore: 0.2},
		{Timestamp: base.Add(48 * time.Hour), MoodScore: 0.7},
	}

	out, _, err := env.run("moods")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"-0.60", "low", "breathing", "+0.70", "positive", "Average over 3 check-ins: +0.10 (okay)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}

	out, _, _ = env.run("moods", "--limit", "1")
	if strings.Contains(out, "-0.60") || !strings.Contains(out, "Average over 1 check-ins") {
		t.Errorf("limited output = %q", out)
	}

	env.client.MoodHistoryErr = apierrors.NewNetworkError("mood history", models.EndpointHistory, errors.New("refused"))
	if _, _, err := env.run("moods"); err == nil {
		t.Error("expected error")
	}
}

func TestSay(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, "tok")
		score := 0.3
		env.client.CheckInVal = &models.CheckInResponse{Response: "Thanks for telling me.", Audio: "AAAA", MoodScore: &score}

		out, _, err := env.run("say", "I", "slept", "badly")
		if err != nil {
			t.Fatal(err)
		}
		if env.client.LastMessage != "I slept badly" {
			t.Errorf("message = %q", env.client.LastMessage)
		}
		if env.client.LastToken != "tok" {
			t.Errorf("token = %q", env.client.LastToken)
		}
		for _, want := range []string{"Thanks for telling me.", "mood 0.30 (okay)", "audio reply"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q: %q", want, out)
			}
		}

		store, _ := history.NewStore(env.dir)
		convs, err := store.ListConversations()
		if err != nil || len(convs) != 1 || len(convs[0].Messages) != 2 {
			t.Fatalf("history = %v, %v", convs, err)
		}
	})

	t.Run("raw", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.CheckInVal = &models.CheckInResponse{Response: "Plain reply"}
		out, _, err := env.run("say", "--raw", "hello")
		if err != nil {
			t.Fatal(err)
		}
		if out != "Plain reply\n" {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("failure surfaces cause", func(t *testing.T) {
		env := newTestEnv(t)
		env.client.CheckInErr = apierrors.NewAPIError(401, models.EndpointCheckIn, "missing token")

		_, _, err := env.run("say", "hello")
		if !errors.Is(err, apierrors.ErrCheckInFailed) {
			t.Fatalf("err = %v, want ErrCheckInFailed", err)
		}
		if !apierrors.IsAuthError(err) {
			t.Errorf("cause should be kept: %v", err)
		}
	})

	t.Run("blank", func(t *testing.T) {
		env := newTestEnv(t)
		if _, _, err := env.run("say", "   "); !errors.Is(err, apierrors.ErrEmptyTranscript) {
			t.Errorf("err = %v", err)
		}
		if env.client.Calls() != 0 {
			t.Error("no request expected")
		}
	})
}

func TestChat(t *testing.T) {
	t.Run("keyboard flag", func(t *testing.T) {
		env := newTestEnv(t)
		_, stderr, err := env.run("chat", "--keyboard")
		if err != nil {
			t.Fatal(err)
		}
		if env.tui.runs != 1 {
			t.Errorf("TUI runs = %d", env.tui.runs)
		}
		if !strings.Contains(stderr, "Not logged in") {
			t.Errorf("stderr = %q", stderr)
		}
	})

	t.Run("no api key falls back to keyboard", func(t *testing.T) {
		env := newTestEnv(t)
		env.login(t, "tok")
		env.deps.Config.Speech.Provider = config.ProviderDeepgram
		env.deps.Config.Speech.APIKey = ""

		_, stderr, err := env.run("chat")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(stderr, "switching to keyboard") {
			t.Errorf("stderr = %q", stderr)
		}
		if strings.Contains(stderr, "Not logged in") {
			t.Error("logged-in user should not be warned")
		}
	})

	t.Run("tui error", func(t *testing.T) {
		env := newTestEnv(t)
		env.tui.err = errors.New("no tty")
		if _, _, err := env.run("chat", "-k"); err == nil || !strings.Contains(err.Error(), "no tty") {
			t.Errorf("err = %v", err)
		}
	})
}

func seedHistory(t *testing.T, dir string, texts ...string) *history.Store {
	t.Helper()
	store, err := history.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range texts {
		rec := store.NewRecorder("http://localhost:5000")
		if err := rec.Record(models.UserMessage(text)); err != nil {
			t.Fatal(err)
		}
		if err := rec.Record(models.AssistantMessage(&models.CheckInResponse{Response: "reply to " + text})); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return store
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t)

	out, _, err := env.run("history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No conversations found.") {
		t.Errorf("empty list = %q", out)
	}

	store := seedHistory(t, env.dir, "tired after work", "better today")

	out, _, err = env.run("history", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "tired after work") || !strings.Contains(out, "better today") {
		t.Errorf("list = %q", out)
	}

	out, _, err = env.run("history", "show", "@last", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"content": "better today"`) {
		t.Errorf("json show = %q", out)
	}

	out, _, err = env.run("history", "show", "tired")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "reply to tired after work") {
		t.Errorf("markdown show = %q", out)
	}

	if _, _, err := env.run("history", "show", "@last", "--format", "yaml"); err == nil {
		t.Error("unknown format should fail")
	}

	target := filepath.Join(t.TempDir(), "out.json")
	if _, _, err := env.run("history", "export", "@first", target); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil || !strings.Contains(string(data), "tired after work") {
		t.Errorf("export = %q, %v", data, err)
	}

	if _, _, err := env.run("history", "delete", "@last"); err != nil {
		t.Fatal(err)
	}
	convs, _ := store.ListConversations()
	if len(convs) != 1 || convs[0].Title != "tired after work" {
		t.Errorf("after delete = %v", convs)
	}

	out, _, err = env.run("history", "clear")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Deleted 1 conversations.") {
		t.Errorf("clear = %q", out)
	}
}

func TestConfigCmd(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("CHECKIN_BASE_URL", "http://from-env:5000")

	if _, _, err := env.run("config", "set", "base_url", "https://checkin.example.com/"); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://checkin.example.com" {
		t.Errorf("saved base_url = %q", cfg.BaseURL)
	}

	if _, _, err := env.run("config", "set", "nope", "1"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v", err)
	}

	env.deps.Config.Speech.APIKey = "secret"
	out, _, err := env.run("config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"base_url"`) || strings.Contains(out, "secret") {
		t.Errorf("show = %q", out)
	}
	if !strings.Contains(out, "DEEPGRAM_API_KEY: set") {
		t.Errorf("show should report the key presence: %q", out)
	}

	out, _, _ = env.run("config", "keys")
	if !strings.Contains(out, "speech.provider") {
		t.Errorf("keys = %q", out)
	}
}

func TestDependenciesInit(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	t.Setenv("CHECKIN_BASE_URL", "")
	t.Setenv("CHECKIN_LOG_PATH", "")
	t.Setenv("CHECKIN_CREDENTIAL_BACKEND", "")

	if err := config.NewFileStore(filepath.Join(dir, "credentials.json")).Save("persisted"); err != nil {
		t.Fatal(err)
	}

	deps := NewDependencies()
	if err := deps.Init(Overrides{BaseURL: "http://backend.test:5000", LogLevel: "debug"}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer deps.Close()

	if deps.Client.BaseURL() != "http://backend.test:5000" {
		t.Errorf("BaseURL = %s", deps.Client.BaseURL())
	}
	if deps.Config.LogLevel != "debug" {
		t.Errorf("LogLevel = %s", deps.Config.LogLevel)
	}
	if got := deps.Sessions.Session().Token(); got != "persisted" {
		t.Errorf("restored token = %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "checkin.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}

	client := deps.Client
	if err := deps.Init(Overrides{BaseURL: "http://other:1"}); err != nil {
		t.Fatal(err)
	}
	if deps.Client != client {
		t.Error("second Init should be a no-op")
	}
}

func TestFormatErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want []string
	}{
		{"api auth", apierrors.NewAPIError(401, "/api/check-in", "expired"), []string{"HTTP Status: 401", "Endpoint: /api/check-in", "checkin login"}},
		{"timeout", apierrors.NewTimeoutError("/api/check-in", context.DeadlineExceeded), []string{"timed out", "request_timeout"}},
		{"network", apierrors.NewNetworkError("login", "/api/login", errors.New("refused")), []string{"Is the backend running"}},
		{"capture", apierrors.ErrCaptureUnavailable, []string{"--keyboard"}},
		{"plain", errors.New("boom"), []string{"✗ Failed: boom"}},
	}

	if formatErrorMessage(nil, "x") != "" {
		t.Error("nil error should format as empty")
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := formatErrorMessage(tt.err, "Failed")
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("missing %q in %q", want, out)
				}
			}
		})
	}
}

func TestReadCredentials(t *testing.T) {
	p := &fakePrompter{passwords: []string{"pw", "pw"}}
	user, pass, err := readCredentials(p, []string{"  sam  "}, true)
	if err != nil || user != "sam" || pass != "pw" {
		t.Errorf("readCredentials = %q %q %v", user, pass, err)
	}

	p = &fakePrompter{}
	if _, _, err := readCredentials(p, nil, false); err == nil {
		t.Error("expected prompt error")
	}
}

func TestTypedTranscript(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  I slept badly \n", "I slept badly"},
		{"fine", "fine"},
		{"   ", ""},
	}
	for _, tt := range tests {
		got, err := typedTranscript(tt.in, zerolog.Nop())
		if err != nil {
			t.Fatalf("typedTranscript(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("typedTranscript(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
