package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/diogo/checkin/internal/api"
	"github.com/diogo/checkin/internal/config"
	apierrors "github.com/diogo/checkin/internal/errors"
)

// memoryStore is an in-memory CredentialStore that counts calls
type memoryStore struct {
	token   string
	loadErr error
	saveErr error
	clrErr  error
	loads   int
	saves   int
	clears  int
}

func (s *memoryStore) Load() (string, error) {
	s.loads++
	return s.token, s.loadErr
}

func (s *memoryStore) Save(token string) error {
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.token = token
	return nil
}

func (s *memoryStore) Clear() error {
	s.clears++
	if s.clrErr != nil {
		return s.clrErr
	}
	s.token = ""
	return nil
}

func newTestManager(client *api.MockClient, store config.CredentialStore) *Manager {
	return NewManager(client, store, zerolog.Nop())
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return tok
}

func TestSession_ZeroValue(t *testing.T) {
	var s Session
	if s.Authenticated() {
		t.Error("zero session should not be authenticated")
	}
	if s.Token() != "" {
		t.Error("zero session should have no token")
	}

	var nilSession *Session
	if nilSession.Token() != "" {
		t.Error("nil session should have no token")
	}
}

func TestManager_Login(t *testing.T) {
	client := &api.MockClient{LoginToken: "tok-1"}
	store := &memoryStore{}
	m := newTestManager(client, store)

	if err := m.Login(context.Background(), " ana ", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !m.Session().Authenticated() || m.Session().Token() != "tok-1" {
		t.Errorf("session token = %q", m.Session().Token())
	}
	if store.token != "tok-1" {
		t.Errorf("persisted token = %q, want tok-1", store.token)
	}
	if client.LastUsername != "ana" {
		t.Errorf("username = %q, want trimmed", client.LastUsername)
	}
}

func TestManager_LoginFailureKeepsPriorCredential(t *testing.T) {
	client := &api.MockClient{LoginErr: apierrors.ErrInvalidCredentials}
	store := &memoryStore{token: "old"}
	m := newTestManager(client, store)
	if _, err := m.Restore(); err != nil {
		t.Fatal(err)
	}

	err := m.Login(context.Background(), "ana", "wrong")
	if !errors.Is(err, apierrors.ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
	if m.Session().Token() != "old" {
		t.Errorf("token = %q, want old", m.Session().Token())
	}
	if store.saves != 0 {
		t.Error("failed login must not write storage")
	}
}

func TestManager_LoginValidation(t *testing.T) {
	client := &api.MockClient{LoginToken: "x"}
	m := newTestManager(client, &memoryStore{})

	for _, creds := range [][2]string{{"", "p"}, {"  ", "p"}, {"u", ""}} {
		err := m.Login(context.Background(), creds[0], creds[1])
		if !errors.Is(err, apierrors.ErrInvalidCredentials) {
			t.Errorf("Login(%q, %q) error = %v", creds[0], creds[1], err)
		}
	}
	if client.LoginCalls != 0 {
		t.Errorf("LoginCalls = %d, want 0", client.LoginCalls)
	}
}

func TestManager_LoginPersistFailureStillAuthenticates(t *testing.T) {
	client := &api.MockClient{LoginToken: "tok"}
	m := newTestManager(client, &memoryStore{saveErr: errors.New("disk full")})

	if err := m.Login(context.Background(), "ana", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !m.Session().Authenticated() {
		t.Error("session should be authenticated for this process")
	}
}

func TestManager_Register(t *testing.T) {
	client := &api.MockClient{}
	store := &memoryStore{}
	m := newTestManager(client, store)

	if err := m.Register(context.Background(), "ana", "secret"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if m.Session().Authenticated() {
		t.Error("register must not create a session")
	}
	if store.saves != 0 {
		t.Error("register must not persist anything")
	}

	client.RegisterErr = apierrors.ErrRegistrationFailed
	if err := m.Register(context.Background(), "ana", "secret"); !errors.Is(err, apierrors.ErrRegistrationFailed) {
		t.Errorf("error = %v, want ErrRegistrationFailed", err)
	}
}

func TestManager_AuthRequestsCarryExistingCredential(t *testing.T) {
	client := &api.MockClient{LoginToken: "new"}
	m := newTestManager(client, &memoryStore{})

	if err := m.Register(context.Background(), "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	if client.LastToken != "" {
		t.Errorf("register without a session sent token %q", client.LastToken)
	}

	m = newTestManager(client, &memoryStore{token: "old"})
	if _, err := m.Restore(); err != nil {
		t.Fatal(err)
	}
	if err := m.Login(context.Background(), "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	if client.LastToken != "old" {
		t.Errorf("login sent token %q, want the restored one", client.LastToken)
	}

	if err := m.Register(context.Background(), "bo", "secret"); err != nil {
		t.Fatal(err)
	}
	if client.LastToken != "new" {
		t.Errorf("register sent token %q, want the current one", client.LastToken)
	}
}

func TestManager_Logout(t *testing.T) {
	client := &api.MockClient{LoginToken: "tok"}
	store := &memoryStore{}
	m := newTestManager(client, store)

	if err := m.Login(context.Background(), "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	m.Logout()

	if m.Session().Authenticated() {
		t.Error("session should be cleared")
	}
	if store.token != "" || store.clears != 1 {
		t.Errorf("store token = %q clears = %d", store.token, store.clears)
	}

	// storage failure is swallowed
	failing := newTestManager(client, &memoryStore{token: "x", clrErr: errors.New("locked")})
	_, _ = failing.Restore()
	failing.Logout()
	if failing.Session().Authenticated() {
		t.Error("in-memory session should be cleared even if storage fails")
	}
}

func TestManager_BearerFollowsLoginAndLogout(t *testing.T) {
	client := &api.MockClient{LoginToken: "tok-xyz", CheckInVal: nil}
	m := newTestManager(client, &memoryStore{})
	ctx := context.Background()

	if err := m.Login(ctx, "ana", "secret"); err != nil {
		t.Fatal(err)
	}
	_, _ = client.CheckIn(ctx, m.Session(), "hello")
	if client.LastToken != "tok-xyz" {
		t.Errorf("token after login = %q, want tok-xyz", client.LastToken)
	}

	m.Logout()
	_, _ = client.CheckIn(ctx, m.Session(), "hello")
	if client.LastToken != "" {
		t.Errorf("token after logout = %q, want empty", client.LastToken)
	}
}

func TestManager_RestoreWithoutNetwork(t *testing.T) {
	dir := t.TempDir()
	store := config.NewFileStore(filepath.Join(dir, "credentials.json"))
	if err := store.Save("persisted"); err != nil {
		t.Fatal(err)
	}

	client := &api.MockClient{}
	m := newTestManager(client, store)

	ok, err := m.Restore()
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !ok || !m.Session().Authenticated() || m.Session().Token() != "persisted" {
		t.Errorf("Restore() = %v, token %q", ok, m.Session().Token())
	}
	if client.LoginCalls+client.RegisterCalls+client.ExercisesCalls+client.CheckInCalls != 0 {
		t.Error("restore must not touch the network")
	}
}

func TestManager_RestoreEmptyAndError(t *testing.T) {
	m := newTestManager(&api.MockClient{}, &memoryStore{})
	ok, err := m.Restore()
	if err != nil || ok {
		t.Errorf("Restore() = %v, %v; want false, nil", ok, err)
	}

	m = newTestManager(&api.MockClient{}, &memoryStore{loadErr: errors.New("corrupt")})
	if _, err := m.Restore(); err == nil {
		t.Error("expected load error")
	}
	if m.Session().Authenticated() {
		t.Error("session must stay empty on load error")
	}
}

func TestManager_Verify(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		err       error
		wantErr   bool
		wantNoAut bool
		wantCalls int
	}{
		{"no credential", "", nil, true, true, 0},
		{"valid", "tok", nil, false, false, 1},
		{"rejected", "tok", apierrors.NewAPIError(401, "/api/exercises", ""), true, true, 1},
		{"server down", "tok", apierrors.NewNetworkError("exercises", "/api/exercises", errors.New("refused")), true, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &api.MockClient{ExercisesErr: tt.err}
			m := newTestManager(client, &memoryStore{token: tt.token})
			_, _ = m.Restore()

			err := m.Verify(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if IsNotAuthenticated(err) != tt.wantNoAut {
				t.Errorf("IsNotAuthenticated = %v, want %v", !tt.wantNoAut, tt.wantNoAut)
			}
			if client.ExercisesCalls != tt.wantCalls {
				t.Errorf("ExercisesCalls = %d, want %d", client.ExercisesCalls, tt.wantCalls)
			}
			if tt.token != "" && client.LastToken != tt.token && tt.wantCalls > 0 {
				t.Errorf("Verify sent token %q", client.LastToken)
			}
		})
	}
}

func TestManager_Claims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signedToken(t, jwt.MapClaims{"sub": "ana", "exp": exp.Unix(), "iat": exp.Add(-2 * time.Hour).Unix()})

	m := newTestManager(&api.MockClient{}, &memoryStore{token: tok})
	if _, err := m.Claims(); !errors.Is(err, apierrors.ErrNotAuthenticated) {
		t.Errorf("Claims() before restore error = %v", err)
	}
	_, _ = m.Restore()

	claims, err := m.Claims()
	if err != nil {
		t.Fatalf("Claims() error = %v", err)
	}
	if claims.Subject != "ana" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
	if claims.Expired(time.Now()) {
		t.Error("token should not be expired yet")
	}
	if !claims.Expired(exp.Add(time.Minute)) {
		t.Error("token should be expired after exp")
	}
}

func TestParseClaims(t *testing.T) {
	numeric := signedToken(t, jwt.MapClaims{"sub": float64(42)})
	claims, err := ParseClaims(numeric)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if claims.Subject != "42" {
		t.Errorf("Subject = %q, want 42", claims.Subject)
	}
	if claims.Expired(time.Now()) {
		t.Error("token without exp never expires")
	}

	if _, err := ParseClaims("opaque-token"); err == nil {
		t.Error("expected error for non-JWT token")
	}
}
