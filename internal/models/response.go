package models

import "time"

// CheckInRequest is the body of POST /api/check-in
type CheckInRequest struct {
	Message string `json:"message"`
}

// CheckInResponse is the reply to a check-in
type CheckInResponse struct {
	Response  string
	Audio     string   // base64, optional
	MoodScore *float64 // optional
}

// Credentials is the body of POST /api/login and /api/register
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Exercise is one entry of GET /api/exercises
type Exercise struct {
	Key         string
	Title       string
	Duration    string
	Description string
}

// MoodEntry is one recorded check-in from GET /api/history
type MoodEntry struct {
	Timestamp    time.Time
	MoodScore    float64
	ExerciseType string
}

// MoodLabel buckets a score the way the backend picks its reply
func MoodLabel(score float64) string {
	switch {
	case score > 0.5:
		return "positive"
	case score > 0:
		return "okay"
	case score > -0.5:
		return "a bit down"
	default:
		return "low"
	}
}
