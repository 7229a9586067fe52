package api

import (
	"context"
	"sync"

	"github.com/diogo/checkin/internal/models"
)

// MockClient is a mock implementation of BackendClient for testing
type MockClient struct {
	mu sync.Mutex

	// Mock return values
	BaseURLVal     string
	CheckInVal     *models.CheckInResponse
	CheckInErr     error
	LoginToken     string
	LoginErr       error
	RegisterErr    error
	ExercisesVal   []models.Exercise
	ExercisesErr   error
	MoodHistoryVal []models.MoodEntry
	MoodHistoryErr error

	// CheckInFunc, when set, replaces CheckInVal/CheckInErr
	CheckInFunc func(ctx context.Context, creds Credentials, message string) (*models.CheckInResponse, error)

	// Call recorders
	CheckInCalls   int
	LoginCalls     int
	RegisterCalls  int
	ExercisesCalls int
	LastMessage    string
	LastToken      string
	LastUsername   string
	LastPassword   string
}

// Ensure MockClient implements BackendClient
var _ BackendClient = (*MockClient)(nil)

func (m *MockClient) record(creds Credentials) {
	if creds != nil {
		m.LastToken = creds.Token()
	} else {
		m.LastToken = ""
	}
}

func (m *MockClient) BaseURL() string {
	return m.BaseURLVal
}

func (m *MockClient) CheckIn(ctx context.Context, creds Credentials, message string) (*models.CheckInResponse, error) {
	m.mu.Lock()
	m.CheckInCalls++
	m.LastMessage = message
	m.record(creds)
	fn := m.CheckInFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, creds, message)
	}
	return m.CheckInVal, m.CheckInErr
}

func (m *MockClient) Login(ctx context.Context, creds Credentials, username, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginCalls++
	m.LastUsername = username
	m.LastPassword = password
	m.record(creds)
	return m.LoginToken, m.LoginErr
}

func (m *MockClient) Register(ctx context.Context, creds Credentials, username, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RegisterCalls++
	m.LastUsername = username
	m.LastPassword = password
	m.record(creds)
	return m.RegisterErr
}

func (m *MockClient) Exercises(ctx context.Context, creds Credentials) ([]models.Exercise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExercisesCalls++
	m.record(creds)
	return m.ExercisesVal, m.ExercisesErr
}

func (m *MockClient) MoodHistory(ctx context.Context, creds Credentials) ([]models.MoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(creds)
	return m.MoodHistoryVal, m.MoodHistoryErr
}

// Calls returns the number of CheckIn invocations so far
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CheckInCalls
}
